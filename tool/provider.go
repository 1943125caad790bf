package tool

import "context"

// Provider is the flat set of invocable tools an agent consumes.
type Provider interface {
	// ToJSONSchemas returns every tool in function-calling format.
	ToJSONSchemas() []map[string]any
	// Execute invokes the named tool and returns its textual result.
	// Tool-level failures are reported in the text; err is reserved for
	// unknown tools and transport failures.
	Execute(ctx context.Context, name string, args map[string]any) (string, error)
}
