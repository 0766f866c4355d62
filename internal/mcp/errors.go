package mcp

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when a request is made before Connect.
	ErrNotConnected = errors.New("not connected to MCP server")

	// ErrConnectionClosed is returned to callers waiting on a transport that went away.
	ErrConnectionClosed = errors.New("connection closed")
)

// ConnectionError reports that a server could not be reached or initialized.
type ConnectionError struct {
	Server string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to MCP server %s: %v", e.Server, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// InvocationError reports that a tool call failed on a connected server.
type InvocationError struct {
	Server string
	Tool   string
	Err    error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("tool %s on %s failed: %v", e.Tool, e.Server, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }
