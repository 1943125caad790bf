// Package math is a stdio MCP server exposing basic arithmetic tools.
package math

import (
	"context"
	"errors"
	"strconv"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sweetpotato0/toolmesh/pkg/logging"
)

// Version is reported to clients during initialization.
const Version = "0.1.0"

// Args are the operands shared by every arithmetic tool.
type Args struct {
	A float64 `json:"a" jsonschema:"first operand"`
	B float64 `json:"b" jsonschema:"second operand"`
}

type operation struct {
	name        string
	description string
	apply       func(a, b float64) (float64, error)
}

var errDivideByZero = errors.New("division by zero")

var operations = []operation{
	{"add", "Add two numbers", func(a, b float64) (float64, error) { return a + b, nil }},
	{"subtract", "Subtract b from a", func(a, b float64) (float64, error) { return a - b, nil }},
	{"multiply", "Multiply two numbers", func(a, b float64) (float64, error) { return a * b, nil }},
	{"divide", "Divide a by b", func(a, b float64) (float64, error) {
		if b == 0 {
			return 0, errDivideByZero
		}
		return a / b, nil
	}},
}

// NewServer builds the math MCP server.
func NewServer() *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "Math",
		Version: Version,
		Title:   "toolmesh math server",
	}, nil)

	logger := logging.WithComponent("math_server")
	for _, op := range operations {
		op := op
		mcp.AddTool(server, &mcp.Tool{
			Name:        op.name,
			Description: op.description,
		}, func(ctx context.Context, req *mcp.CallToolRequest, a Args) (*mcp.CallToolResult, any, error) {
			logger.Debug("tool called", "tool", op.name, "a", a.A, "b", a.B)
			v, err := op.apply(a.A, a.B)
			if err != nil {
				return &mcp.CallToolResult{
					IsError: true,
					Content: []mcp.Content{&mcp.TextContent{Text: "Error: " + err.Error()}},
				}, nil, nil
			}
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: Format(v)}},
			}, nil, nil
		})
	}

	return server
}

// Format renders a result without trailing zeros, so 12 prints as "12".
func Format(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
