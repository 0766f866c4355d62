// Package types provides shared type definitions used across preflight packages.
// This package exists to break import cycles between the agent transports,
// the tool dispatcher and the handler pipeline.
// Types in this package should be foundational data structures with no complex dependencies.
package types

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// =============================================================================
// MESSAGE TYPES
// =============================================================================

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// Message is one entry of a conversation.
// Messages are treated as immutable once appended; use Clone before editing.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // Set on RoleTool results
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // Set on assistant tool requests
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	out := m
	if m.ToolCalls != nil {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			out.ToolCalls[i] = tc.Clone()
		}
	}
	return out
}

// HasToolCalls returns true if the message requests tool invocations.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// SystemMessage builds a system message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds an assistant text message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ToolResultMessage builds a tool result for the given call id.
func ToolResultMessage(callID, content string) Message {
	return Message{Role: RoleTool, ToolCallID: callID, Content: content}
}

// CloneMessages deep-copies a message slice.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// Delta is the ordered list of messages a handler proposes to append to the
// shared context.
type Delta []Message

// Empty returns true if the delta carries no messages.
func (d Delta) Empty() bool {
	return len(d) == 0
}

// =============================================================================
// TOOL TYPES
// =============================================================================

// ToolDefinition describes a tool that the auxiliary agent can invoke.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"` // JSON Schema for parameters
}

// Summary returns the first line of the description.
func (d ToolDefinition) Summary() string {
	line, _, _ := strings.Cut(d.Description, "\n")
	return strings.TrimSpace(line)
}

// ToolCall represents a tool invocation requested by the auxiliary agent.
type ToolCall struct {
	ID        string                 `json:"id"`        // Unique ID for this tool use
	Name      string                 `json:"name"`      // Tool name to invoke
	Arguments map[string]interface{} `json:"arguments"` // Tool arguments
}

// Clone returns a copy of the call with a shallow copy of its arguments.
func (c ToolCall) Clone() ToolCall {
	out := c
	if c.Arguments != nil {
		out.Arguments = make(map[string]interface{}, len(c.Arguments))
		for k, v := range c.Arguments {
			out.Arguments[k] = v
		}
	}
	return out
}

// ArgumentsJSON renders the arguments as compact JSON with sorted keys.
func (c ToolCall) ArgumentsJSON() string {
	if len(c.Arguments) == 0 {
		return "{}"
	}
	data, err := json.Marshal(c.Arguments)
	if err != nil {
		return fmt.Sprintf("%v", c.Arguments)
	}
	return string(data)
}

// Signature identifies a call by name and arguments, ignoring its id.
// Two requests for the same tool with the same arguments share a signature.
func (c ToolCall) Signature() string {
	return c.Name + " " + c.ArgumentsJSON()
}

// ParseArguments decodes a JSON argument string as sent by chat-completion APIs.
// An empty string decodes to an empty map.
func ParseArguments(raw string) (map[string]interface{}, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]interface{}{}, nil
	}
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return args, nil
}

// ToolNames returns the sorted names of the given definitions.
func ToolNames(defs []ToolDefinition) []string {
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
	}
	sort.Strings(names)
	return names
}

// ToolUsage records one executed tool call.
type ToolUsage struct {
	Provider string
	Tool     string
	Success  bool
	Latency  time.Duration
	Error    string
}
