// Package agent provides the transports preflight uses to talk to auxiliary
// agents. Every client implements types.AgentClient.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"preflight/internal/config"
	"preflight/internal/types"
)

var (
	// ErrNoChoices is returned when a provider answers without a candidate reply.
	ErrNoChoices = errors.New("no choices in response")
	// ErrMissingAPIKey is returned by New when a provider needs a key and none is configured.
	ErrMissingAPIKey = errors.New("API key not configured")
)

// TransportError wraps any failure to obtain a reply from an auxiliary agent.
type TransportError struct {
	Agent string
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("agent %s: %v", e.Agent, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err is or wraps a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// New builds the client for one configured agent.
func New(name string, cfg config.AgentConfig) (types.AgentClient, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return NewOpenAIClient(name, cfg), nil
	case config.ProviderGemini:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("agent %s: %w", name, ErrMissingAPIKey)
		}
		return NewGeminiClient(context.Background(), name, cfg)
	default:
		return nil, fmt.Errorf("agent %s: unknown provider %q", name, cfg.Provider)
	}
}

// withTimeout applies the agent timeout when ctx carries no deadline.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok || timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
