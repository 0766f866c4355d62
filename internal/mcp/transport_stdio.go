package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"preflight/internal/logging"
)

// maxLineSize bounds a single JSON-RPC message read from the server.
const maxLineSize = 4 * 1024 * 1024

// StdioTransport implements Transport over a subprocess's stdin/stdout,
// one JSON-RPC message per line.
type StdioTransport struct {
	mu sync.Mutex

	command string
	args    []string
	env     []string

	cmd       *exec.Cmd
	stdin     io.WriteCloser
	connected bool
	exited    bool
	info      ServerInfo

	pending map[int64]chan *rpcResponse
	nextID  int64

	wg sync.WaitGroup
}

// NewStdioTransport creates a new stdio transport. env entries are added to
// the current process environment.
func NewStdioTransport(command string, args []string, env map[string]string) *StdioTransport {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+env[k])
	}

	return &StdioTransport{
		command: command,
		args:    args,
		env:     pairs,
		pending: make(map[int64]chan *rpcResponse),
	}
}

// Connect starts the subprocess, the reader loops and the initialize handshake.
func (t *StdioTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.connected {
		t.mu.Unlock()
		return nil
	}
	if t.command == "" {
		t.mu.Unlock()
		return fmt.Errorf("empty command for stdio transport")
	}

	cmd := exec.Command(t.command, t.args...)
	if len(t.env) > 0 {
		cmd.Env = append(os.Environ(), t.env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		t.mu.Unlock()
		return fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.mu.Unlock()
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		t.mu.Unlock()
		return fmt.Errorf("failed to get stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		t.mu.Unlock()
		return fmt.Errorf("failed to start command %s: %w", t.command, err)
	}

	t.cmd = cmd
	t.stdin = stdin
	t.connected = true
	t.exited = false
	t.pending = make(map[int64]chan *rpcResponse)

	t.wg.Add(2)
	go t.readStderr(stderr)
	go t.readStdout(stdout)
	t.mu.Unlock()

	// The reader needs the lock to deliver responses, so the handshake runs unlocked.
	resp, err := t.call(ctx, "initialize", initializeParams())
	if err != nil {
		_ = t.Disconnect()
		return fmt.Errorf("initialize %s: %w", t.command, err)
	}

	t.mu.Lock()
	t.info = parseServerInfo(resp.Result)
	err = t.writeLocked(rpcNotification{JSONRPC: "2.0", Method: "notifications/initialized"})
	t.mu.Unlock()
	if err != nil {
		_ = t.Disconnect()
		return err
	}

	logging.ToolsDebug("MCP stdio transport started %s (pid %d)", t.command, cmd.Process.Pid)
	return nil
}

// Disconnect kills the process and cleans up. Safe to call when not connected.
func (t *StdioTransport) Disconnect() error {
	t.mu.Lock()
	cmd := t.cmd
	if cmd == nil {
		t.mu.Unlock()
		return nil
	}
	t.cmd = nil
	t.connected = false

	if t.stdin != nil {
		_ = t.stdin.Close()
	}
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	t.failPendingLocked()
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		logging.Get(logging.CategoryTools).Warn("Timeout waiting for stdio transport readers of %s to exit", t.command)
	}

	// Wait closes our pipe ends, which also releases a reader stuck above.
	_ = cmd.Wait()
	<-done

	logging.ToolsDebug("MCP stdio transport stopped %s", t.command)
	return nil
}

// ListTools retrieves available tools from the server.
func (t *StdioTransport) ListTools(ctx context.Context) ([]toolSchema, error) {
	resp, err := t.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	return parseToolList(resp.Result)
}

// CallTool invokes a tool on the MCP server.
func (t *StdioTransport) CallTool(ctx context.Context, name string, args map[string]interface{}) (json.RawMessage, error) {
	resp, err := t.call(ctx, "tools/call", map[string]interface{}{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// Info returns what the server reported during initialize.
func (t *StdioTransport) Info() ServerInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.info
}

// IsConnected returns current connection status.
func (t *StdioTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected && !t.exited
}

// readStderr forwards the server's stderr to the tools log.
func (t *StdioTransport) readStderr(r io.Reader) {
	defer t.wg.Done()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		logging.ToolsDebug("[%s stderr] %s", t.command, scanner.Text())
	}
}

// readStdout reads JSON-RPC messages from stdout and routes responses to callers.
func (t *StdioTransport) readStdout(r io.Reader) {
	defer t.wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var probe struct {
			ID     *int64 `json:"id"`
			Method string `json:"method"`
		}
		if err := json.Unmarshal(line, &probe); err != nil {
			logging.Get(logging.CategoryTools).Warn("Failed to parse JSON from %s: %v", t.command, err)
			continue
		}
		if probe.ID == nil || probe.Method != "" {
			logging.ToolsDebug("Ignoring server message from %s: %s", t.command, string(line))
			continue
		}

		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			logging.Get(logging.CategoryTools).Warn("Failed to unmarshal response from %s: %v", t.command, err)
			continue
		}

		t.mu.Lock()
		if ch, ok := t.pending[resp.ID]; ok {
			delete(t.pending, resp.ID)
			ch <- &resp
		} else {
			logging.ToolsDebug("Received response for unknown id %d from %s", resp.ID, t.command)
		}
		t.mu.Unlock()
	}

	if err := scanner.Err(); err != nil {
		logging.ToolsDebug("Stopped reading %s: %v", t.command, err)
	}

	t.mu.Lock()
	t.exited = true
	t.failPendingLocked()
	t.mu.Unlock()
}

// call sends a request and waits for its response.
func (t *StdioTransport) call(ctx context.Context, method string, params interface{}) (*rpcResponse, error) {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return nil, ErrNotConnected
	}
	if t.exited {
		t.mu.Unlock()
		return nil, ErrConnectionClosed
	}

	t.nextID++
	id := t.nextID
	ch := make(chan *rpcResponse, 1)
	t.pending[id] = ch

	if err := t.writeLocked(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}); err != nil {
		delete(t.pending, id)
		t.mu.Unlock()
		return nil, err
	}
	t.mu.Unlock()

	select {
	case resp, ok := <-ch:
		if !ok || resp == nil {
			return nil, ErrConnectionClosed
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp, nil
	case <-ctx.Done():
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
		return nil, ctx.Err()
	}
}

// writeLocked writes one message line (must hold lock).
func (t *StdioTransport) writeLocked(msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write to stdin: %w", err)
	}
	return nil
}

// failPendingLocked releases every waiting caller (must hold lock).
func (t *StdioTransport) failPendingLocked() {
	for id, ch := range t.pending {
		close(ch)
		delete(t.pending, id)
	}
}

var _ Transport = (*StdioTransport)(nil)
