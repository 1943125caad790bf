package mcp

import (
	"context"
	"fmt"

	"github.com/sweetpotato0/toolmesh/config"
	errorskg "github.com/sweetpotato0/toolmesh/errors"
	"github.com/sweetpotato0/toolmesh/tool"
)

// Connector is a live channel to one tool server. Both transports, the
// subprocess and the streamable HTTP one, are served by *Client.
type Connector interface {
	// Name returns the configured server name.
	Name() string
	// ListTools returns every tool the server advertises.
	ListTools(ctx context.Context) ([]*tool.Descriptor, error)
	// CallTool invokes a tool by its server-side name. A non-nil error means
	// the call failed at the transport or protocol level; tool failures are
	// reported through CallResult.IsError.
	CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error)
	// Close releases the transport. It is safe to call more than once.
	Close() error
}

// Connect opens a Connector for the server according to its transport kind.
func Connect(ctx context.Context, server config.ServerConfig, opts ...Option) (Connector, error) {
	var (
		client *Client
		err    error
	)
	switch server.Transport {
	case config.TransportSubprocess:
		client, err = NewStdioClient(ctx, server, opts...)
	case config.TransportHTTPStream:
		client, err = NewStreamableClient(ctx, server, opts...)
	default:
		return nil, &errorskg.ConnectionError{
			Server:    server.Name,
			Transport: string(server.Transport),
			Err:       fmt.Errorf("%w %q", errorskg.ErrUnsupportedTransport, server.Transport),
		}
	}
	if err != nil {
		return nil, err
	}
	return client, nil
}
