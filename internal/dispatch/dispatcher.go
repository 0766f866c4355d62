package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"preflight/internal/logging"
	"preflight/internal/types"
)

// ErrUnknownTool is reported for calls no provider owns.
var ErrUnknownTool = errors.New("unknown tool")

// UsageRecorder receives one record per executed call.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, usage types.ToolUsage) error
}

// Dispatcher executes tool calls against an Index.
type Dispatcher struct {
	index    *Index
	recorder UsageRecorder
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRecorder records usage of every executed call.
func WithRecorder(r UsageRecorder) Option {
	return func(d *Dispatcher) {
		d.recorder = r
	}
}

// New creates a dispatcher over index.
func New(index *Index, opts ...Option) *Dispatcher {
	d := &Dispatcher{index: index}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Index returns the dispatcher's index.
func (d *Dispatcher) Index() *Index {
	return d.index
}

// Dispatch executes calls and returns exactly one tool-result message per
// call, in call order. Each provider's calls run sequentially on their own
// goroutine over a single connection; providers run concurrently. Failures
// never escape: a failed connection, a failed call, an unknown tool or a
// panic becomes a tool result carrying the error text.
// Dispatch returns only after every provider task has finished.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []types.ToolCall) []types.Message {
	results := make([]types.Message, len(calls))
	if len(calls) == 0 {
		return results
	}

	batches, _ := d.index.Partition(calls)
	for i, call := range calls {
		if _, ok := d.index.Owner(call.Name); !ok {
			logging.Get(logging.CategoryTools).Warn("No provider owns tool %s", call.Name)
			results[i] = errorResult(call, ErrUnknownTool)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, b := range batches {
		g.Go(func() error {
			d.runBatch(gctx, b, results)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// runBatch executes one provider's calls, writing only its own positions of results.
func (d *Dispatcher) runBatch(ctx context.Context, b Batch, results []types.Message) {
	p := b.Provider
	done := make([]bool, len(b.Calls))

	defer func() {
		if r := recover(); r != nil {
			stack := make([]byte, 4096)
			length := runtime.Stack(stack, false)
			logging.Get(logging.CategoryTools).Error("Provider %s panicked: %v\n%s", p.ID(), r, stack[:length])
			for i, call := range b.Calls {
				if !done[i] {
					results[b.positions[i]] = errorResult(call, panicError(r))
				}
			}
		}
	}()
	defer func() {
		if err := p.Disconnect(); err != nil {
			logging.Get(logging.CategoryTools).Warn("Error disconnecting from %s: %v", p.ID(), err)
		}
	}()

	if err := p.Connect(ctx); err != nil {
		logging.Get(logging.CategoryTools).Warn("Could not connect to server %s: %v", p.ID(), err)
		for i, call := range b.Calls {
			results[b.positions[i]] = connectionResult(p.ID(), call, err)
			done[i] = true
		}
		return
	}

	for i, call := range b.Calls {
		if err := ctx.Err(); err != nil {
			results[b.positions[i]] = errorResult(call, err)
			done[i] = true
			continue
		}

		logging.ToolsDebug("Executing %s on %s", call.Name, p.ID())
		start := time.Now()
		out, err := p.CallTool(ctx, call)
		d.record(ctx, p.ID(), call, time.Since(start), err)

		if err != nil {
			logging.Get(logging.CategoryTools).Warn("Error executing tool call %s: %v", call.Name, err)
			results[b.positions[i]] = errorResult(call, err)
		} else {
			results[b.positions[i]] = types.ToolResultMessage(call.ID, out)
		}
		done[i] = true
	}
}

func (d *Dispatcher) record(ctx context.Context, provider string, call types.ToolCall, latency time.Duration, err error) {
	if d.recorder == nil {
		return
	}
	usage := types.ToolUsage{
		Provider: provider,
		Tool:     call.Name,
		Success:  err == nil,
		Latency:  latency,
	}
	if err != nil {
		usage.Error = err.Error()
	}
	// Recording is best effort; the store logs its own failures.
	_ = d.recorder.RecordUsage(context.WithoutCancel(ctx), usage)
}

// errorResult is the synthetic tool result for a failed call.
func errorResult(call types.ToolCall, err error) types.Message {
	return types.ToolResultMessage(call.ID, fmt.Sprintf("Error executing tool call %s: %v", call.Name, err))
}

// connectionResult is the synthetic tool result for a call whose provider
// could not be reached.
func connectionResult(provider string, call types.ToolCall, err error) types.Message {
	return types.ToolResultMessage(call.ID, fmt.Sprintf("Could not connect to server %s\n%v", provider, err))
}

func panicError(r interface{}) error {
	return fmt.Errorf("panic: %v", r)
}
