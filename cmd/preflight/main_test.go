package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"preflight/internal/config"
	"preflight/internal/confirm"
	"preflight/internal/handlers"
	"preflight/internal/types"
	"preflight/internal/ux"
	"preflight/internal/world"
)

func newTestWorkspace(t *testing.T) *world.Workspace {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "foo.py"), []byte("print('foo')\n"), 0o644))
	ws, err := world.NewWorkspace(dir)
	require.NoError(t, err)
	return ws
}

// newScriptedChatServer answers successive chat completions with replies.
func newScriptedChatServer(t *testing.T, replies ...string) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(&calls, 1)) - 1
		content := "CONTINUE"
		if n < len(replies) {
			content = replies[n]
		}
		body, _ := json.Marshal(map[string]interface{}{
			"id":     "chatcmpl-test",
			"object": "chat.completion",
			"choices": []map[string]interface{}{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]interface{}{"role": "assistant", "content": content},
			}},
		})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func setConfig(t *testing.T, c *config.Config) {
	t.Helper()
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
}

func TestBuildTurn(t *testing.T) {
	ws := newTestWorkspace(t)

	msgs, err := buildTurn(ws, "fix foo", []string{"src/foo.py"})
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, types.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[1].Content, "File added to the chat: src/foo.py")
	assert.Contains(t, msgs[1].Content, "print('foo')")
	assert.Equal(t, types.UserMessage("fix foo"), msgs[2])

	_, err = buildTurn(ws, "fix", []string{"../etc/passwd"})
	assert.ErrorIs(t, err, world.ErrOutsideWorkspace)
}

func TestRunTurn_AddsConfirmedFile(t *testing.T) {
	srv, calls := newScriptedChatServer(t, "src/foo.py", "CONTINUE")
	ws := newTestWorkspace(t)

	c := config.DefaultConfig()
	c.Workspace = ws.Root()
	c.Store.Path = ""
	c.Agents["default"] = config.AgentConfig{
		Provider: config.ProviderOpenAI,
		Model:    "test-model",
		APIKey:   "sk-test",
		BaseURL:  srv.URL + "/v1",
		Timeout:  "5s",
		Reminder: config.ReminderSystem,
	}
	setConfig(t, c)

	var out bytes.Buffer
	err := runTurn(context.Background(), "what does foo print?", nil, sessionOptions{
		in:        strings.NewReader(""),
		out:       &out,
		styles:    ux.PlainStyles(),
		yesAlways: true,
	})
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
	text := out.String()
	assert.Contains(t, text, "Added src/foo.py to the chat")
	assert.Contains(t, text, "Added 1 message(s) to the context:")
	assert.Contains(t, text, "File added to the chat: src/foo.py")
}

func TestRunTurn_NoControllerModel(t *testing.T) {
	ws := newTestWorkspace(t)
	c := config.DefaultConfig()
	c.Workspace = ws.Root()
	c.Store.Path = ""
	c.Controller.Model = ""
	setConfig(t, c)

	var out bytes.Buffer
	err := runTurn(context.Background(), "hello", nil, sessionOptions{
		in:     strings.NewReader(""),
		out:    &out,
		styles: ux.PlainStyles(),
	})
	require.NoError(t, err)
	assert.Equal(t, "No context added.\n", out.String())
}

func TestRunTurn_EOFAtPromptCancels(t *testing.T) {
	srv, _ := newScriptedChatServer(t, "src/foo.py")
	ws := newTestWorkspace(t)

	c := config.DefaultConfig()
	c.Workspace = ws.Root()
	c.Store.Path = ""
	c.Agents["default"] = config.AgentConfig{
		Provider: config.ProviderOpenAI,
		Model:    "test-model",
		APIKey:   "sk-test",
		BaseURL:  srv.URL + "/v1",
	}
	setConfig(t, c)

	var out bytes.Buffer
	err := runTurn(context.Background(), "fix foo", nil, sessionOptions{
		in:     strings.NewReader(""),
		out:    &out,
		styles: ux.PlainStyles(),
	})
	require.ErrorIs(t, err, confirm.ErrCancelled)
	assert.Contains(t, out.String(), "Cancelled.")
	assert.NotContains(t, out.String(), "Added 1 message(s)")
}

func TestListHandlers(t *testing.T) {
	c := config.DefaultConfig()
	c.Controller.Handlers = []config.HandlerEntry{
		{Name: "file-adder"},
		{Name: "bogus"},
		{Options: map[string]interface{}{"model": "x"}},
	}

	var out bytes.Buffer
	require.NoError(t, listHandlers(&out, handlers.Builtin(), c))

	text := out.String()
	for _, name := range []string{"file-adder", "mcp", "advisor"} {
		assert.Contains(t, text, name)
	}
	assert.Contains(t, text, "observing")
	assert.Contains(t, text, "1. file-adder\n")
	assert.Contains(t, text, "2. bogus (unknown)")
	assert.Contains(t, text, "(missing name)")
}

func TestListHandlers_Disabled(t *testing.T) {
	c := config.DefaultConfig()
	c.Controller.Model = ""

	var out bytes.Buffer
	require.NoError(t, listHandlers(&out, handlers.Builtin(), c))
	assert.Contains(t, out.String(), "Pipeline: disabled")
}

func TestPrintAdded(t *testing.T) {
	var out bytes.Buffer
	printAdded(&out, nil)
	assert.Equal(t, "No context added.\n", out.String())

	out.Reset()
	printAdded(&out, []types.Message{types.UserMessage("hi")})
	assert.Equal(t, "Added 1 message(s) to the context:\n\nUSER: hi\n", out.String())
}
