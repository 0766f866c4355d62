package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"preflight/internal/logging"
)

// HTTPTransport implements Transport as JSON-RPC over HTTP POST.
type HTTPTransport struct {
	mu sync.RWMutex

	baseURL   string
	client    *http.Client
	connected bool
	info      ServerInfo
	nextID    atomic.Int64
}

// NewHTTPTransport creates a new HTTP transport for MCP communication.
func NewHTTPTransport(baseURL string, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Connect performs the initialize handshake.
func (t *HTTPTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connected {
		return nil
	}

	resp, err := t.post(ctx, "initialize", initializeParams())
	if err != nil {
		return fmt.Errorf("initialize %s: %w", t.baseURL, err)
	}
	t.info = parseServerInfo(resp.Result)
	t.connected = true

	logging.ToolsDebug("MCP HTTP transport connected to %s", t.baseURL)
	return nil
}

// Disconnect forgets the session. HTTP holds no connection state of its own.
func (t *HTTPTransport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		return nil
	}
	t.connected = false
	t.client.CloseIdleConnections()
	logging.ToolsDebug("MCP HTTP transport disconnected from %s", t.baseURL)
	return nil
}

// ListTools retrieves available tools from the server.
func (t *HTTPTransport) ListTools(ctx context.Context) ([]toolSchema, error) {
	resp, err := t.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	tools, err := parseToolList(resp.Result)
	if err != nil {
		return nil, err
	}
	logging.ToolsDebug("MCP server %s returned %d tools", t.baseURL, len(tools))
	return tools, nil
}

// CallTool invokes a tool on the MCP server.
func (t *HTTPTransport) CallTool(ctx context.Context, name string, args map[string]interface{}) (json.RawMessage, error) {
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
func (t *HTTPTransport) Info() ServerInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.info
}

// IsConnected returns current connection status.
func (t *HTTPTransport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

func (t *HTTPTransport) call(ctx context.Context, method string, params interface{}) (*rpcResponse, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.connected {
		return nil, ErrNotConnected
	}
	return t.post(ctx, method, params)
}

// post makes a JSON-RPC call (must hold at least read lock).
func (t *HTTPTransport) post(ctx context.Context, method string, params interface{}) (*rpcResponse, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      t.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return nil, fmt.Errorf("server returned status %d: %s", httpResp.StatusCode, string(bodyBytes))
	}

	var resp rpcResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return &resp, nil
}

var _ Transport = (*HTTPTransport)(nil)
