package mcp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	errorskg "github.com/sweetpotato0/toolmesh/errors"
	mcpclient "github.com/sweetpotato0/toolmesh/mcp"
	"github.com/sweetpotato0/toolmesh/tool"
)

// Handle binds a discovered tool to the connector of the server that owns it.
type Handle struct {
	// Descriptor carries the registry name, which differs from RemoteName
	// when tools are namespaced.
	Descriptor *tool.Descriptor
	// Server is the configured name of the owning server.
	Server string
	// RemoteName is the tool name as the server knows it.
	RemoteName string
	// FunctionName is the name offered to function-calling models. It equals
	// the registry name unless that contains characters models reject.
	FunctionName string
	// Connector is the owning server's live channel.
	Connector mcpclient.Connector
}

// Name returns the registry name of the tool.
func (h *Handle) Name() string {
	return h.Descriptor.Name
}

// Registry is the flat, name-keyed set of tools discovered across servers.
// It is immutable once Discover returns and safe for concurrent reads.
type Registry struct {
	handles    map[string]*Handle
	// aliases maps function names back to registry names.
	aliases    map[string]string
	connectors []mcpclient.Connector
	proxy      *Proxy

	closeOnce sync.Once
	closeErr  error
}

var _ tool.Provider = (*Registry)(nil)

// Get retrieves a tool handle by registry name or function name.
func (r *Registry) Get(name string) (*Handle, error) {
	if h, ok := r.handles[name]; ok {
		return h, nil
	}
	if registered, ok := r.aliases[name]; ok {
		if h, ok := r.handles[registered]; ok {
			return h, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", errorskg.ErrToolNotFound, name)
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.handles)
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handles))
	for name := range r.handles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handles returns every handle sorted by name.
func (r *Registry) Handles() []*Handle {
	names := r.Names()
	out := make([]*Handle, 0, len(names))
	for _, name := range names {
		out = append(out, r.handles[name])
	}
	return out
}

// Servers returns the names of the connected servers in discovery order.
func (r *Registry) Servers() []string {
	out := make([]string, 0, len(r.connectors))
	for _, c := range r.connectors {
		out = append(out, c.Name())
	}
	return out
}

// ToJSONSchemas returns all tools in function-calling format, sorted by
// registry name and published under their function names.
func (r *Registry) ToJSONSchemas() []map[string]any {
	handles := r.Handles()
	schemas := make([]map[string]any, 0, len(handles))
	for _, h := range handles {
		d := h.Descriptor
		if h.FunctionName != "" && h.FunctionName != d.Name {
			d = d.Renamed(h.FunctionName)
		}
		schemas = append(schemas, d.ToJSONSchema())
	}
	return schemas
}

// Call invokes a tool by registry or function name. Unknown names fail with
// ErrToolNotFound before any transport is touched.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (*mcpclient.CallResult, error) {
	h, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return r.proxy.Call(ctx, h, args)
}

// Execute implements tool.Provider. Tool-level failures are returned as text.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	res, err := r.Call(ctx, name, args)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// Close releases every connector exactly once and joins their errors.
func (r *Registry) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = closeAll(r.connectors)
	})
	return r.closeErr
}

func closeAll(connectors []mcpclient.Connector) error {
	var errs []error
	for _, c := range connectors {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.Name(), err))
		}
	}
	return errors.Join(errs...)
}
