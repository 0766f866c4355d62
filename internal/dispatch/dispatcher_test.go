package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"preflight/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeProvider is an in-memory Provider.
type fakeProvider struct {
	id         string
	tools      []string
	connectErr error
	listErr    error
	callErr    map[string]error
	panicOn    string
	delay      time.Duration

	mu          sync.Mutex
	calls       []string
	connects    int32
	disconnects int32
	connected   bool
}

func newFake(id string, tools ...string) *fakeProvider {
	return &fakeProvider{id: id, tools: tools, callErr: map[string]error{}}
}

func (f *fakeProvider) ID() string { return f.id }

func (f *fakeProvider) Connect(ctx context.Context) error {
	atomic.AddInt32(&f.connects, 1)
	if f.connectErr != nil {
		return f.connectErr
	}
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	return nil
}

func (f *fakeProvider) ListTools(ctx context.Context) ([]types.ToolDefinition, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	defs := make([]types.ToolDefinition, 0, len(f.tools))
	for _, name := range f.tools {
		defs = append(defs, types.ToolDefinition{Name: name, Description: name + " tool"})
	}
	return defs, nil
}

func (f *fakeProvider) CallTool(ctx context.Context, call types.ToolCall) (string, error) {
	f.mu.Lock()
	if !f.connected {
		f.mu.Unlock()
		return "", errors.New("not connected")
	}
	f.calls = append(f.calls, call.ID)
	f.mu.Unlock()

	if call.Name == f.panicOn {
		panic("provider exploded")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err := f.callErr[call.Name]; err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%s(%s)", f.id, call.Name, call.ArgumentsJSON()), nil
}

func (f *fakeProvider) Disconnect() error {
	atomic.AddInt32(&f.disconnects, 1)
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	return nil
}

func (f *fakeProvider) resetCounters() {
	atomic.StoreInt32(&f.connects, 0)
	atomic.StoreInt32(&f.disconnects, 0)
}

type recorder struct {
	mu    sync.Mutex
	usage []types.ToolUsage
}

func (r *recorder) RecordUsage(ctx context.Context, u types.ToolUsage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.usage = append(r.usage, u)
	return nil
}

func call(id, name string) types.ToolCall {
	return types.ToolCall{ID: id, Name: name, Arguments: map[string]interface{}{"id": id}}
}

func TestNewIndex(t *testing.T) {
	a := newFake("a", "read", "grep")
	b := newFake("b", "grep", "fetch")
	broken := newFake("broken", "nope")
	broken.connectErr = errors.New("refused")

	ix := NewIndex(context.Background(), []Provider{a, broken, b})

	assert.Equal(t, []string{"fetch", "grep", "read"}, types.ToolNames(ix.Tools()))
	assert.Equal(t, 3, ix.Len())

	owner, ok := ix.Owner("grep")
	require.True(t, ok)
	assert.Equal(t, "a", owner.ID(), "first provider in configuration order keeps a shared name")

	_, ok = ix.Owner("nope")
	assert.False(t, ok)
	assert.Error(t, ix.Failed("broken"))
	assert.NoError(t, ix.Failed("a"))
	assert.Len(t, ix.ProviderTools("b"), 1)

	for _, p := range []*fakeProvider{a, b, broken} {
		assert.EqualValues(t, 1, atomic.LoadInt32(&p.disconnects), "%s must be disconnected after discovery", p.id)
	}
}

func TestPartition(t *testing.T) {
	a := newFake("a", "read")
	b := newFake("b", "fetch")
	ix := NewIndex(context.Background(), []Provider{a, b})

	batches, unowned := ix.Partition([]types.ToolCall{
		call("1", "fetch"), call("2", "read"), call("3", "mystery"), call("4", "fetch"),
	})

	require.Len(t, batches, 2)
	assert.Equal(t, "a", batches[0].Provider.ID())
	assert.Equal(t, "b", batches[1].Provider.ID())
	assert.Equal(t, []string{"1", "4"}, []string{batches[1].Calls[0].ID, batches[1].Calls[1].ID})
	require.Len(t, unowned, 1)
	assert.Equal(t, "mystery", unowned[0].Name)
}

func TestDispatch_FailedConnectionIsIsolated(t *testing.T) {
	a := newFake("a", "alpha")
	b := newFake("b", "beta", "gamma")
	ix := NewIndex(context.Background(), []Provider{a, b})
	a.connectErr = errors.New("connection refused")

	rec := &recorder{}
	d := New(ix, WithRecorder(rec))
	results := d.Dispatch(context.Background(), []types.ToolCall{
		call("c1", "beta"), call("c2", "alpha"), call("c3", "gamma"),
	})

	require.Len(t, results, 3)
	var synthetic, ok int
	for _, r := range results {
		assert.Equal(t, types.RoleTool, r.Role)
		if strings.HasPrefix(r.Content, "Could not connect to server a") {
			synthetic++
		} else {
			ok++
		}
	}
	assert.Equal(t, 1, synthetic)
	assert.Equal(t, 2, ok)

	assert.Equal(t, "c1", results[0].ToolCallID)
	assert.Equal(t, `b:beta({"id":"c1"})`, results[0].Content)
	assert.Equal(t, "c2", results[1].ToolCallID)
	assert.Contains(t, results[1].Content, "connection refused")
	assert.Equal(t, `b:gamma({"id":"c3"})`, results[2].Content)

	assert.Equal(t, []string{"c1", "c3"}, b.calls, "calls within a provider run in call order")
	assert.EqualValues(t, 2, atomic.LoadInt32(&a.disconnects), "disconnect follows a failed connect")
	assert.Len(t, rec.usage, 2, "only executed calls are recorded")
}

func TestDispatch_CallErrorsAndUnknownTools(t *testing.T) {
	a := newFake("a", "ok", "bad")
	a.callErr["bad"] = errors.New("bad input")
	ix := NewIndex(context.Background(), []Provider{a})

	rec := &recorder{}
	results := New(ix, WithRecorder(rec)).Dispatch(context.Background(), []types.ToolCall{
		call("1", "bad"), call("2", "ghost"), call("3", "ok"),
	})

	require.Len(t, results, 3)
	assert.Contains(t, results[0].Content, "bad input")
	assert.Equal(t, "2", results[1].ToolCallID)
	assert.Contains(t, results[1].Content, ErrUnknownTool.Error())
	assert.Equal(t, `a:ok({"id":"3"})`, results[2].Content)

	require.Len(t, rec.usage, 2)
	assert.False(t, rec.usage[0].Success)
	assert.Equal(t, "bad input", rec.usage[0].Error)
	assert.True(t, rec.usage[1].Success)
}

func TestDispatch_PanicBecomesSyntheticResults(t *testing.T) {
	a := newFake("a", "first", "explode", "never")
	a.panicOn = "explode"
	b := newFake("b", "other")
	ix := NewIndex(context.Background(), []Provider{a, b})

	results := New(ix).Dispatch(context.Background(), []types.ToolCall{
		call("1", "first"), call("2", "explode"), call("3", "never"), call("4", "other"),
	})

	require.Len(t, results, 4)
	assert.Equal(t, `a:first({"id":"1"})`, results[0].Content)
	assert.Contains(t, results[1].Content, "panic")
	assert.Contains(t, results[2].Content, "panic")
	assert.Equal(t, "3", results[2].ToolCallID)
	assert.Equal(t, `b:other({"id":"4"})`, results[3].Content)
}

func TestDispatch_ProvidersRunConcurrently(t *testing.T) {
	providers := make([]Provider, 0, 4)
	calls := make([]types.ToolCall, 0, 4)
	for i := 0; i < 4; i++ {
		p := newFake(fmt.Sprintf("p%d", i), fmt.Sprintf("tool%d", i))
		p.delay = 200 * time.Millisecond
		providers = append(providers, p)
		calls = append(calls, call(fmt.Sprint(i), fmt.Sprintf("tool%d", i)))
	}
	ix := NewIndex(context.Background(), providers)

	start := time.Now()
	results := New(ix).Dispatch(context.Background(), calls)
	elapsed := time.Since(start)

	require.Len(t, results, 4)
	for _, r := range results {
		assert.NotContains(t, r.Content, "Error")
	}
	assert.Less(t, elapsed, 700*time.Millisecond, "four 200ms providers should overlap")
}

func TestDispatch_Cancelled(t *testing.T) {
	a := newFake("a", "slow", "after")
	a.delay = 5 * time.Second
	ix := NewIndex(context.Background(), []Provider{a})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	results := New(ix).Dispatch(ctx, []types.ToolCall{call("1", "slow"), call("2", "after")})
	require.Len(t, results, 2)
	assert.Contains(t, results[0].Content, context.Canceled.Error())
	assert.Contains(t, results[1].Content, context.Canceled.Error())
	assert.Equal(t, []string{"1"}, a.calls)
}

func TestDispatch_Empty(t *testing.T) {
	a := newFake("a", "x")
	ix := NewIndex(context.Background(), []Provider{a})
	a.resetCounters()

	assert.Empty(t, New(ix).Dispatch(context.Background(), nil))
	assert.EqualValues(t, 0, atomic.LoadInt32(&a.connects))
}
