// Package mcp provides MCP (Model Context Protocol) tool providers.
// A Server wraps one configured MCP server behind the connect/list/call/
// disconnect lifecycle the tool dispatcher consumes, over HTTP or stdio
// JSON-RPC.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Protocol represents the MCP transport protocol.
type Protocol string

const (
	ProtocolHTTP  Protocol = "http"
	ProtocolStdio Protocol = "stdio"
)

// protocolVersion is sent in the initialize handshake.
const protocolVersion = "2024-11-05"

// defaultTimeout applies when a server config has no usable timeout.
const defaultTimeout = 30 * time.Second

// ServerConfig configures one MCP server. It is decoded from the `servers`
// option of the mcp handler.
type ServerConfig struct {
	Name     string            `mapstructure:"name" validate:"required"`
	Protocol Protocol          `mapstructure:"protocol" validate:"omitempty,oneof=http stdio"`
	URL      string            `mapstructure:"url" validate:"omitempty,url"`
	Command  string            `mapstructure:"command"`
	Args     []string          `mapstructure:"args"`
	Env      map[string]string `mapstructure:"env"`
	Timeout  string            `mapstructure:"timeout"`
}

// GetProtocol returns the configured protocol, inferring http when only a URL is set.
func (c ServerConfig) GetProtocol() Protocol {
	if c.Protocol != "" {
		return c.Protocol
	}
	if c.URL != "" {
		return ProtocolHTTP
	}
	return ProtocolStdio
}

// GetTimeout returns the per-request timeout.
func (c ServerConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return defaultTimeout
	}
	return d
}

// Validate checks the config for the selected protocol.
func (c ServerConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("mcp server %q: %s failed %q", c.Name, verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("mcp server %q: %w", c.Name, err)
	}
	switch c.GetProtocol() {
	case ProtocolHTTP:
		if c.URL == "" {
			return fmt.Errorf("mcp server %q: http protocol requires url", c.Name)
		}
	case ProtocolStdio:
		if c.Command == "" {
			return fmt.Errorf("mcp server %q: stdio protocol requires command", c.Name)
		}
	}
	return nil
}

// ServerInfo is what a server reports about itself during initialize.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// toolSchema represents the raw tool schema from an MCP server.
type toolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// callResult is the tools/call result payload.
type callResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"content"`
	IsError bool `json:"isError"`
}

// Transport defines the interface for MCP protocol transports.
type Transport interface {
	// Connect establishes the connection and performs the initialize handshake.
	Connect(ctx context.Context) error

	// Disconnect closes the connection. It is safe to call at any time.
	Disconnect() error

	// ListTools retrieves available tools from the server.
	ListTools(ctx context.Context) ([]toolSchema, error)

	// CallTool invokes a tool and returns the raw result payload.
	CallTool(ctx context.Context, name string, args map[string]interface{}) (json.RawMessage, error)

	// Info returns what the server reported during initialize.
	Info() ServerInfo

	// IsConnected returns current connection status.
	IsConnected() bool
}

// rpcRequest represents a JSON-RPC request.
type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int64       `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// rpcNotification is a JSON-RPC message without an id.
type rpcNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
}

// rpcResponse represents a JSON-RPC response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents an error in a JSON-RPC response.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func initializeParams() map[string]interface{} {
	return map[string]interface{}{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]interface{}{},
		"clientInfo": map[string]string{
			"name":    "preflight",
			"version": "1.0.0",
		},
	}
}

func parseServerInfo(raw json.RawMessage) ServerInfo {
	var result struct {
		ServerInfo ServerInfo `json:"serverInfo"`
	}
	_ = json.Unmarshal(raw, &result)
	return result.ServerInfo
}

func parseToolList(raw json.RawMessage) ([]toolSchema, error) {
	var result struct {
		Tools []toolSchema `json:"tools"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to parse tools response: %w", err)
	}
	return result.Tools, nil
}
