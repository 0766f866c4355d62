// Package handlers defines the handler pipeline's building blocks: the
// Handler contract, the static registry of built-in handlers, and the loader
// that turns configuration entries into ready handlers.
package handlers

import (
	"context"
	"fmt"

	"preflight/internal/agent"
	"preflight/internal/confirm"
	"preflight/internal/mcp"
	"preflight/internal/types"
	"preflight/internal/ux"
	"preflight/internal/world"
)

// Capability declares what the controller does with a handler's delta.
type Capability int

const (
	// Mutating handlers' deltas are applied to the shared context.
	Mutating Capability = iota + 1
	// Observing handlers only report; their deltas are discarded.
	Observing
)

func (c Capability) String() string {
	switch c {
	case Mutating:
		return "mutating"
	case Observing:
		return "observing"
	default:
		return fmt.Sprintf("capability(%d)", int(c))
	}
}

// Valid reports whether c is a known capability.
func (c Capability) Valid() bool {
	return c == Mutating || c == Observing
}

// Handler inspects a snapshot of the shared context and proposes a delta.
// Handlers never modify the snapshot they are given.
type Handler interface {
	Handle(ctx context.Context, snapshot []types.Message) (types.Delta, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, snapshot []types.Message) (types.Delta, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, snapshot []types.Message) (types.Delta, error) {
	return f(ctx, snapshot)
}

// AgentResolver finds an auxiliary agent by name; "" means the default agent.
type AgentResolver interface {
	Resolve(name string) (agent.Binding, error)
}

// Deps are the collaborators handed to every constructor.
type Deps struct {
	Agents      AgentResolver
	Gate        *confirm.Gate
	Out         ux.Output
	Workspace   *world.Workspace
	Store       *mcp.Store // nil disables tool persistence
	Reflections int        // default bound on agent requests per invocation
	Verbose     bool
}

// Constructor builds a handler from its option map.
type Constructor func(ctx context.Context, opts map[string]interface{}, deps Deps) (Handler, error)

// Registration declares a built-in handler.
type Registration struct {
	Name        string
	Capability  Capability
	Description string
	New         Constructor
}

// Loaded is a constructed handler ready for the controller.
type Loaded struct {
	Name       string
	Capability Capability
	Handler    Handler
}

func (d Deps) output() ux.Output {
	if d.Out == nil {
		return ux.Discard
	}
	return d.Out
}
