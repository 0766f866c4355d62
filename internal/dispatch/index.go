// Package dispatch routes tool calls requested by an auxiliary agent to the
// providers that own them and runs each provider's share concurrently.
package dispatch

import (
	"context"

	"golang.org/x/sync/errgroup"

	"preflight/internal/logging"
	"preflight/internal/types"
)

// Provider is an external service exposing named tools with a
// connect/call/disconnect lifecycle.
type Provider interface {
	ID() string
	Connect(ctx context.Context) error
	ListTools(ctx context.Context) ([]types.ToolDefinition, error)
	CallTool(ctx context.Context, call types.ToolCall) (string, error)
	// Disconnect must be safe after a failed Connect.
	Disconnect() error
}

// Index maps tool names to the provider that advertised them.
// It is built once and read-only afterwards.
type Index struct {
	providers []Provider
	owners    map[string]int // tool name -> index into providers
	tools     []types.ToolDefinition
	byID      map[string][]types.ToolDefinition
	failed    map[string]error
}

// NewIndex lists every provider's tools concurrently and builds the index.
// A provider that cannot be listed is logged and owns no tools. When two
// providers advertise the same name, the earlier provider keeps it.
func NewIndex(ctx context.Context, providers []Provider) *Index {
	listed := make([][]types.ToolDefinition, len(providers))
	errs := make([]error, len(providers))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range providers {
		g.Go(func() error {
			listed[i], errs[i] = discover(gctx, p)
			return nil
		})
	}
	_ = g.Wait()

	ix := &Index{
		providers: providers,
		owners:    make(map[string]int),
		byID:      make(map[string][]types.ToolDefinition),
		failed:    make(map[string]error),
	}
	for i, p := range providers {
		if errs[i] != nil {
			logging.Get(logging.CategoryTools).Warn("Error getting tools from %s: %v", p.ID(), errs[i])
			ix.failed[p.ID()] = errs[i]
			continue
		}
		for _, def := range listed[i] {
			if owner, taken := ix.owners[def.Name]; taken {
				logging.Get(logging.CategoryTools).Warn("Tool %s from %s shadowed by %s", def.Name, p.ID(), providers[owner].ID())
				continue
			}
			ix.owners[def.Name] = i
			ix.tools = append(ix.tools, def)
			ix.byID[p.ID()] = append(ix.byID[p.ID()], def)
		}
		logging.ToolsDebug("Discovered %d tools on %s", len(ix.byID[p.ID()]), p.ID())
	}
	return ix
}

// discover runs connect, list and disconnect for one provider.
func discover(ctx context.Context, p Provider) (defs []types.ToolDefinition, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	defer func() {
		if derr := p.Disconnect(); derr != nil {
			logging.Get(logging.CategoryTools).Warn("Error disconnecting from %s: %v", p.ID(), derr)
		}
	}()

	if err := p.Connect(ctx); err != nil {
		return nil, err
	}
	return p.ListTools(ctx)
}

// Tools returns every indexed tool in provider order.
func (ix *Index) Tools() []types.ToolDefinition {
	return ix.tools
}

// Providers returns the providers in configuration order, including failed ones.
func (ix *Index) Providers() []Provider {
	return ix.providers
}

// ProviderTools returns the tools owned by the provider with the given id.
func (ix *Index) ProviderTools(id string) []types.ToolDefinition {
	return ix.byID[id]
}

// Failed returns the discovery error for a provider, if any.
func (ix *Index) Failed(id string) error {
	return ix.failed[id]
}

// Owner returns the provider that owns the named tool.
func (ix *Index) Owner(name string) (Provider, bool) {
	i, ok := ix.owners[name]
	if !ok {
		return nil, false
	}
	return ix.providers[i], true
}

// Len returns the number of indexed tools.
func (ix *Index) Len() int {
	return len(ix.owners)
}

// Batch is the share of a call list owned by one provider, in call order.
type Batch struct {
	Provider Provider
	Calls    []types.ToolCall

	positions []int
}

// Partition groups calls by owning provider. Batches follow provider
// configuration order and keep call order within a provider. Calls for
// unknown tools are returned separately.
func (ix *Index) Partition(calls []types.ToolCall) ([]Batch, []types.ToolCall) {
	byProvider := make(map[int]*Batch)
	var unowned []types.ToolCall

	for i, call := range calls {
		owner, ok := ix.owners[call.Name]
		if !ok {
			unowned = append(unowned, call)
			continue
		}
		b, ok := byProvider[owner]
		if !ok {
			b = &Batch{Provider: ix.providers[owner]}
			byProvider[owner] = b
		}
		b.Calls = append(b.Calls, call)
		b.positions = append(b.positions, i)
	}

	batches := make([]Batch, 0, len(byProvider))
	for i := range ix.providers {
		if b, ok := byProvider[i]; ok {
			batches = append(batches, *b)
		}
	}
	return batches, unowned
}
