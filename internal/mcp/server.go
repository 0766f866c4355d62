package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"preflight/internal/logging"
	"preflight/internal/types"
)

// Server is one configured MCP server exposed as a tool provider.
type Server struct {
	cfg       ServerConfig
	transport Transport
}

// NewServer validates cfg and builds the transport for its protocol.
func NewServer(cfg ServerConfig) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var transport Transport
	switch cfg.GetProtocol() {
	case ProtocolHTTP:
		transport = NewHTTPTransport(cfg.URL, cfg.GetTimeout())
	case ProtocolStdio:
		transport = NewStdioTransport(cfg.Command, cfg.Args, cfg.Env)
	default:
		return nil, fmt.Errorf("unsupported protocol: %s", cfg.Protocol)
	}
	return &Server{cfg: cfg, transport: transport}, nil
}

// NewServerWithTransport wraps an existing transport.
func NewServerWithTransport(name string, transport Transport) *Server {
	return &Server{cfg: ServerConfig{Name: name}, transport: transport}
}

// ID returns the configured server name.
func (s *Server) ID() string {
	return s.cfg.Name
}

// Info returns what the server reported about itself. Valid after Connect.
func (s *Server) Info() ServerInfo {
	return s.transport.Info()
}

// Connect opens the transport. Failures are returned as *ConnectionError.
func (s *Server) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.GetTimeout())
	defer cancel()

	if err := s.transport.Connect(ctx); err != nil {
		return &ConnectionError{Server: s.cfg.Name, Err: err}
	}
	logging.Tools("Connected to MCP server %s", s.cfg.Name)
	return nil
}

// Disconnect closes the transport. Safe after a failed Connect.
func (s *Server) Disconnect() error {
	return s.transport.Disconnect()
}

// ListTools returns the server's advertised tools.
func (s *Server) ListTools(ctx context.Context) ([]types.ToolDefinition, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.GetTimeout())
	defer cancel()

	schemas, err := s.transport.ListTools(ctx)
	if err != nil {
		return nil, &ConnectionError{Server: s.cfg.Name, Err: err}
	}

	defs := make([]types.ToolDefinition, 0, len(schemas))
	for _, schema := range schemas {
		if schema.Name == "" {
			continue
		}
		def := types.ToolDefinition{
			Name:        schema.Name,
			Description: schema.Description,
		}
		if len(schema.InputSchema) > 0 {
			if err := json.Unmarshal(schema.InputSchema, &def.InputSchema); err != nil {
				logging.Get(logging.CategoryTools).Warn("Tool %s on %s has an unreadable input schema: %v", schema.Name, s.cfg.Name, err)
			}
		}
		if def.InputSchema == nil {
			def.InputSchema = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// CallTool invokes call and renders the result as text.
// Failures are returned as *InvocationError.
func (s *Server) CallTool(ctx context.Context, call types.ToolCall) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.GetTimeout())
	defer cancel()

	args := call.Arguments
	if args == nil {
		args = map[string]interface{}{}
	}

	raw, err := s.transport.CallTool(ctx, call.Name, args)
	if err != nil {
		return "", &InvocationError{Server: s.cfg.Name, Tool: call.Name, Err: err}
	}

	text, isError := renderResult(raw)
	if isError {
		return "", &InvocationError{Server: s.cfg.Name, Tool: call.Name, Err: errors.New(text)}
	}
	return text, nil
}

// renderResult flattens a tools/call result into text. Results that do not
// follow the content-list shape are returned as raw JSON.
func renderResult(raw json.RawMessage) (string, bool) {
	var result callResult
	if err := json.Unmarshal(raw, &result); err != nil || result.Content == nil {
		return strings.TrimSpace(string(raw)), false
	}

	parts := make([]string, 0, len(result.Content))
	for _, c := range result.Content {
		switch c.Type {
		case "text":
			parts = append(parts, c.Text)
		default:
			parts = append(parts, fmt.Sprintf("[%s content]", c.Type))
		}
	}
	text := strings.Join(parts, "\n")
	if result.IsError && text == "" {
		text = "tool reported an error"
	}
	return text, result.IsError
}
