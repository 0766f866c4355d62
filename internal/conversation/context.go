// Package conversation holds the shared context of one primary-agent turn:
// the ordered message log every handler reads, and the helpers that quote it
// for auxiliary agents.
package conversation

import (
	"sync"

	"preflight/internal/types"
)

// Context is the ordered message log of the current turn.
// Readers take copies through Snapshot; only the controller calls Apply.
type Context struct {
	mu       sync.RWMutex
	messages []types.Message
}

// New creates a context seeded with copies of msgs.
func New(msgs ...types.Message) *Context {
	return &Context{messages: types.CloneMessages(msgs)}
}

// Snapshot returns a deep copy of the current messages.
func (c *Context) Snapshot() []types.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := types.CloneMessages(c.messages)
	if out == nil {
		out = []types.Message{}
	}
	return out
}

// Len returns the number of messages.
func (c *Context) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Apply appends a delta. Messages are copied so later edits by the caller
// cannot reach the log.
func (c *Context) Apply(delta types.Delta) {
	if delta.Empty() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range delta {
		c.messages = append(c.messages, m.Clone())
	}
}

// Since returns copies of the messages appended after the first n.
func (c *Context) Since(n int) []types.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if n < 0 {
		n = 0
	}
	if n >= len(c.messages) {
		return nil
	}
	return types.CloneMessages(c.messages[n:])
}

// Extend returns a new slice holding snapshot followed by delta.
// It is how a session previews the context its confirmed delta would produce.
func Extend(snapshot []types.Message, delta types.Delta) []types.Message {
	out := make([]types.Message, 0, len(snapshot)+len(delta))
	out = append(out, types.CloneMessages(snapshot)...)
	out = append(out, types.CloneMessages(delta)...)
	return out
}
