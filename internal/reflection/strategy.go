package reflection

import (
	"context"

	"preflight/internal/types"
)

// Item is one actionable thing an auxiliary agent surfaced: a file to add,
// a tool call to run. Key identifies it for convergence tracking.
type Item struct {
	Key    string
	Label  string
	Detail string
	Value  interface{}
}

// Evaluation is what a strategy extracted from one reply.
type Evaluation struct {
	Items    []Item
	Continue bool // the agent answered with the CONTINUE sentinel
}

// Effect is the outcome of applying one round's items.
type Effect struct {
	// Delta holds confirmed messages for the shared context.
	Delta types.Delta
	// Turns follow the agent's reply in the negotiation transcript.
	Turns []types.Message
	// Done ends the session after this round.
	Done bool
}

// Prompts frame a session. System may contain {fence_start} and {fence_end},
// which are replaced by the fence quoting the context.
type Prompts struct {
	System   string
	Reminder string
}

// Strategy is the handler-specific part of a session.
type Strategy interface {
	Prompts() Prompts
	// Evaluate extracts actionable items from the agent's reply.
	Evaluate(ctx context.Context, reply *types.Message) (Evaluation, error)
	// Apply gates items with the user and performs the confirmed ones.
	Apply(ctx context.Context, reply *types.Message, items []Item) (Effect, error)
}
