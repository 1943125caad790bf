package mcp

import (
	"context"
	"encoding/json"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	errorskg "github.com/sweetpotato0/toolmesh/errors"
	"github.com/sweetpotato0/toolmesh/tool"
)

// CallResult is the outcome of a tool invocation that reached the server.
type CallResult struct {
	// Text is the textual content, one line per content block.
	Text string `json:"text"`
	// Structured carries the structured content when the server returned any.
	Structured any `json:"structured,omitempty"`
	// IsError marks a failure reported by the tool itself.
	IsError bool `json:"isError,omitempty"`
}

// ListTools returns the full set of tools exposed by the MCP server,
// following pagination cursors until the server reports no more pages.
func (c *Client) ListTools(ctx context.Context) ([]*tool.Descriptor, error) {
	defs, err := c.listAllTools(ctx)
	if err != nil {
		return nil, err
	}

	descriptors := make([]*tool.Descriptor, 0, len(defs))
	for _, def := range defs {
		if def == nil || def.Name == "" {
			continue
		}

		description := def.Description
		if description == "" && def.Annotations != nil {
			description = def.Annotations.Title
		}

		descriptors = append(descriptors, tool.NewDescriptor(def.Name, description, schemaMap(def.InputSchema)))
	}
	return descriptors, nil
}

func (c *Client) listAllTools(ctx context.Context) ([]*sdkmcp.Tool, error) {
	if c.session == nil || c.closed() {
		return nil, errorskg.ErrClientClosed
	}
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	params := &sdkmcp.ListToolsParams{}
	var tools []*sdkmcp.Tool

	for {
		res, err := c.session.ListTools(ctx, params)
		if err != nil {
			return nil, err
		}
		tools = append(tools, res.Tools...)
		if res.NextCursor == "" {
			break
		}
		params = &sdkmcp.ListToolsParams{Cursor: res.NextCursor}
	}

	return tools, nil
}

// CallTool invokes a remote MCP tool.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error) {
	if c.session == nil || c.closed() {
		return nil, errorskg.ErrClientClosed
	}
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	if args == nil {
		args = make(map[string]any)
	}
	params := &sdkmcp.CallToolParams{
		Name:      name,
		Arguments: args,
	}

	result, err := c.session.CallTool(ctx, params)
	if err != nil {
		return nil, err
	}

	out := &CallResult{
		Text:       normalizeContent(result.Content),
		Structured: result.StructuredContent,
		IsError:    result.IsError,
	}
	if out.IsError && out.Text == "" {
		out.Text = "tool returned error without message"
	}
	return out, nil
}

func normalizeContent(content []sdkmcp.Content) string {
	if len(content) == 0 {
		return ""
	}

	parts := make([]string, 0, len(content))
	for _, c := range content {
		switch v := c.(type) {
		case *sdkmcp.TextContent:
			parts = append(parts, v.Text)
		default:
			if data, err := json.Marshal(c); err == nil {
				parts = append(parts, string(data))
			}
		}
	}

	return strings.TrimSpace(strings.Join(parts, "\n"))
}
