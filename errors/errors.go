package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions
var (
	// ErrToolNotFound indicates that no registered tool has the requested name
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolNameCollision indicates that two servers expose a tool with the same name
	ErrToolNameCollision = errors.New("tool name collision")

	// ErrInvalidArguments indicates that tool arguments do not match the input schema
	ErrInvalidArguments = errors.New("invalid tool arguments")

	// ErrTimeout indicates that a call did not complete before its deadline
	ErrTimeout = errors.New("timeout")

	// ErrClientClosed is returned when a connector has already been closed
	ErrClientClosed = errors.New("mcp client closed")

	// ErrUnsupportedTransport indicates an unknown transport kind in a server config
	ErrUnsupportedTransport = errors.New("unsupported transport")

	// ErrInvalidConfig indicates that configuration validation failed
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ConnectionError is returned when the transport to a tool server could not be established.
type ConnectionError struct {
	Server    string
	Transport string
	Err       error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect to server %q over %s: %v", e.Server, e.Transport, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// DiscoveryError wraps a per-server failure during tool discovery.
type DiscoveryError struct {
	Server string
	Err    error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discover tools from server %q: %v", e.Server, e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// InvocationError is returned when a tool call fails at the transport level.
// Tool-level failures reported by the server are results, not InvocationErrors.
type InvocationError struct {
	Server string
	Tool   string
	Err    error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("invoke tool %q on server %q: %v", e.Tool, e.Server, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}
