package types

import (
	"context"
)

// AgentRequest is what a reflection session sends to an auxiliary agent.
type AgentRequest struct {
	Messages []Message        `json:"messages"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
}

// AgentClient defines the interface for auxiliary-agent transports.
// The reply is a single assistant message carrying free text, tool calls, or both.
type AgentClient interface {
	Complete(ctx context.Context, req AgentRequest) (*Message, error)
}

// AgentClientFunc adapts a function to AgentClient.
type AgentClientFunc func(ctx context.Context, req AgentRequest) (*Message, error)

// Complete calls f.
func (f AgentClientFunc) Complete(ctx context.Context, req AgentRequest) (*Message, error) {
	return f(ctx, req)
}
