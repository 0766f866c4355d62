package controller

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"preflight/internal/config"
	"preflight/internal/confirm"
	"preflight/internal/conversation"
	"preflight/internal/handlers"
	"preflight/internal/types"
	"preflight/internal/ux"
)

// appender returns a handler proposing one message and recording the
// snapshot length it saw.
func appender(content string, seen *[]int) handlers.Handler {
	return handlers.HandlerFunc(func(ctx context.Context, snapshot []types.Message) (types.Delta, error) {
		*seen = append(*seen, len(snapshot))
		return types.Delta{types.UserMessage(content)}, nil
	})
}

func failing(err error) handlers.Handler {
	return handlers.HandlerFunc(func(ctx context.Context, snapshot []types.Message) (types.Delta, error) {
		return types.Delta{types.UserMessage("partial")}, err
	})
}

func initial() *conversation.Context {
	return conversation.New(types.SystemMessage("sys"), types.UserMessage("request"))
}

func contents(msgs []types.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}

func TestRun_AppliesMutatingDeltasInOrder(t *testing.T) {
	var seen []int
	ctl := New([]handlers.Loaded{
		{Name: "first", Capability: handlers.Mutating, Handler: appender("one", &seen)},
		{Name: "observer", Capability: handlers.Observing, Handler: appender("advice", &seen)},
		{Name: "second", Capability: handlers.Mutating, Handler: appender("two", &seen)},
	}, nil)
	assert.Equal(t, []string{"first", "observer", "second"}, ctl.Handlers())

	conv, err := ctl.Run(context.Background(), initial())
	require.NoError(t, err)

	want := []string{"sys", "request", "one", "two"}
	if diff := cmp.Diff(want, contents(conv.Snapshot())); diff != "" {
		t.Errorf("context mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []int{2, 3, 3}, seen, "later handlers see earlier mutations")
}

func TestRun_FailingHandlersAreSkipped(t *testing.T) {
	var seen []int
	out := &ux.Recorder{}
	ctl := New([]handlers.Loaded{
		{Name: "broken", Capability: handlers.Mutating, Handler: failing(errors.New("model unavailable"))},
		{Name: "panicky", Capability: handlers.Mutating, Handler: handlers.HandlerFunc(func(ctx context.Context, snapshot []types.Message) (types.Delta, error) {
			panic("nil map")
		})},
		{Name: "ok", Capability: handlers.Mutating, Handler: appender("one", &seen)},
	}, out)

	conv, err := ctl.Run(context.Background(), initial())
	require.NoError(t, err)
	assert.Equal(t, []string{"sys", "request", "one"}, contents(conv.Snapshot()))

	warnings := out.Texts("warning")
	require.Len(t, warnings, 2)
	assert.Equal(t, "Handler broken failed: model unavailable", warnings[0])
	assert.Equal(t, "Handler panicky failed: panic: nil map", warnings[1])
}

func TestRun_CancellationAbortsTurn(t *testing.T) {
	for _, cause := range []error{confirm.ErrCancelled, context.Canceled} {
		t.Run(cause.Error(), func(t *testing.T) {
			var seen []int
			ctl := New([]handlers.Loaded{
				{Name: "first", Capability: handlers.Mutating, Handler: appender("one", &seen)},
				{Name: "asks", Capability: handlers.Mutating, Handler: failing(cause)},
				{Name: "never", Capability: handlers.Mutating, Handler: appender("two", &seen)},
			}, nil)

			conv, err := ctl.Run(context.Background(), initial())
			assert.ErrorIs(t, err, cause)
			assert.Equal(t, []string{"sys", "request", "one"}, contents(conv.Snapshot()))
			assert.Len(t, seen, 1)
		})
	}
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var seen []int
	ctl := New([]handlers.Loaded{{Name: "first", Capability: handlers.Mutating, Handler: appender("one", &seen)}}, nil)

	_, err := ctl.Run(ctx, initial())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, seen)
}

func TestRun_ConstructorPanicLeavesOthersRunning(t *testing.T) {
	var seen []int
	reg := handlers.MustRegistry(
		handlers.Registration{Name: "exploding", Capability: handlers.Mutating, New: func(ctx context.Context, opts map[string]interface{}, deps handlers.Deps) (handlers.Handler, error) {
			panic("constructor exploded")
		}},
		handlers.Registration{Name: "quiet", Capability: handlers.Mutating, New: func(ctx context.Context, opts map[string]interface{}, deps handlers.Deps) (handlers.Handler, error) {
			return handlers.HandlerFunc(func(ctx context.Context, snapshot []types.Message) (types.Delta, error) {
				seen = append(seen, len(snapshot))
				return nil, nil
			}), nil
		}},
	)

	out := &ux.Recorder{}
	loaded := reg.Load(context.Background(), []config.HandlerEntry{{Name: "exploding"}, {Name: "quiet"}}, handlers.Deps{Out: out})
	require.Len(t, loaded, 1)

	conv, err := New(loaded, out).Run(context.Background(), initial())
	require.NoError(t, err)
	assert.Equal(t, []string{"sys", "request"}, contents(conv.Snapshot()))
	assert.Equal(t, []int{2}, seen)
	assert.Contains(t, out.Texts("warning")[0], "constructor exploded")
}

func TestRun_NoHandlers(t *testing.T) {
	conv, err := New(nil, nil).Run(context.Background(), initial())
	require.NoError(t, err)
	assert.Equal(t, 2, conv.Len())
}
