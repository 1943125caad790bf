package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/sweetpotato0/toolmesh/config"
	errorskg "github.com/sweetpotato0/toolmesh/errors"
	mcpclient "github.com/sweetpotato0/toolmesh/mcp"
	"github.com/sweetpotato0/toolmesh/pkg/logging"
	"github.com/sweetpotato0/toolmesh/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// ConnectFunc opens a connector for one server. mcpclient.Connect is the default.
type ConnectFunc func(ctx context.Context, server config.ServerConfig, opts ...mcpclient.Option) (mcpclient.Connector, error)

// DiscoverOption configures Discover.
type DiscoverOption func(*discoverConfig)

type discoverConfig struct {
	policy         config.CollisionPolicy
	connectTimeout time.Duration
	callTimeout    time.Duration
	strictArgs     bool
	clientOpts     []mcpclient.Option
	logger         *slog.Logger
	connect        ConnectFunc
}

// WithCollisionPolicy selects how duplicate tool names are handled.
func WithCollisionPolicy(policy config.CollisionPolicy) DiscoverOption {
	return func(cfg *discoverConfig) {
		if policy != "" {
			cfg.policy = policy
		}
	}
}

// WithConnectTimeout bounds connecting to and listing each server.
func WithConnectTimeout(d time.Duration) DiscoverOption {
	return func(cfg *discoverConfig) {
		cfg.connectTimeout = d
	}
}

// WithCallTimeout bounds every tool invocation made through the registry.
func WithCallTimeout(d time.Duration) DiscoverOption {
	return func(cfg *discoverConfig) {
		cfg.callTimeout = d
	}
}

// WithStrictArgs rejects arguments that do not match a tool's input schema.
func WithStrictArgs() DiscoverOption {
	return func(cfg *discoverConfig) {
		cfg.strictArgs = true
	}
}

// WithClientOptions passes options to every connector.
func WithClientOptions(opts ...mcpclient.Option) DiscoverOption {
	return func(cfg *discoverConfig) {
		cfg.clientOpts = append(cfg.clientOpts, opts...)
	}
}

// WithLogger sets the logger used for discovery and invocations.
func WithLogger(logger *slog.Logger) DiscoverOption {
	return func(cfg *discoverConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithConnectFunc replaces the function used to open connectors.
func WithConnectFunc(fn ConnectFunc) DiscoverOption {
	return func(cfg *discoverConfig) {
		if fn != nil {
			cfg.connect = fn
		}
	}
}

// OptionsFromConfig maps the orchestrator configuration onto discovery options.
func OptionsFromConfig(cfg *config.Config) []DiscoverOption {
	opts := []DiscoverOption{
		WithCollisionPolicy(cfg.CollisionPolicy),
		WithConnectTimeout(cfg.ConnectTimeout),
		WithCallTimeout(cfg.CallTimeout),
	}
	if cfg.StrictArgs {
		opts = append(opts, WithStrictArgs())
	}
	return opts
}

// Discover connects to every server in order, lists its tools and merges them
// into one registry. Discovery is all-or-nothing: the first failing server
// aborts with an *errors.DiscoveryError naming it, every connector opened so
// far is closed, and no registry is returned.
func Discover(ctx context.Context, servers []config.ServerConfig, opts ...DiscoverOption) (reg *Registry, err error) {
	cfg := discoverConfig{
		policy:  config.CollisionError,
		logger:  logging.WithComponent("tool_discovery"),
		connect: mcpclient.Connect,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx, span := telemetry.Start(ctx, "mcp.discover",
		attribute.Int("mcp.servers", len(servers)),
		attribute.String("mcp.collision_policy", string(cfg.policy)),
	)
	defer func() { telemetry.End(span, err) }()

	building := &Registry{
		handles: make(map[string]*Handle),
		aliases: make(map[string]string),
		proxy:   NewProxy(cfg.callTimeout, cfg.strictArgs, cfg.logger),
	}

	for _, server := range servers {
		if serr := discoverServer(ctx, building, server, &cfg); serr != nil {
			if cerr := closeAll(building.connectors); cerr != nil {
				cfg.logger.Warn("closing connectors after failed discovery", "error", cerr)
			}
			return nil, &errorskg.DiscoveryError{Server: server.Name, Err: serr}
		}
	}

	span.SetAttributes(attribute.Int("mcp.tools", building.Len()))
	cfg.logger.Info("tool discovery complete", "servers", len(servers), "tools", building.Len())
	return building, nil
}

func discoverServer(ctx context.Context, reg *Registry, server config.ServerConfig, cfg *discoverConfig) error {
	connectCtx := ctx
	if cfg.connectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, cfg.connectTimeout)
		defer cancel()
	}

	conn, err := cfg.connect(connectCtx, server, cfg.clientOpts...)
	if err != nil {
		return timeoutCause(connectCtx, err)
	}
	reg.connectors = append(reg.connectors, conn)

	descriptors, err := conn.ListTools(connectCtx)
	if err != nil {
		return fmt.Errorf("list tools: %w", timeoutCause(connectCtx, err))
	}

	include := toSet(server.Include)
	exclude := toSet(server.Exclude)

	count := 0
	for _, d := range descriptors {
		if len(include) > 0 {
			if !include[d.Name] {
				continue
			}
		} else if exclude[d.Name] {
			continue
		}

		namespaced := cfg.policy == config.CollisionNamespace
		name := d.Name
		if namespaced {
			name = NamespacedName(server.Name, d.Name)
		}
		alias := FunctionName(server.Name, d.Name, namespaced)
		if owner, ok := reg.aliases[alias]; ok && owner != name {
			return fmt.Errorf("%w: %q and %q share the function name %q",
				errorskg.ErrToolNameCollision, owner, name, alias)
		}

		if existing, ok := reg.handles[name]; ok {
			if cfg.policy != config.CollisionOverwrite {
				return fmt.Errorf("%w: %q is already provided by server %q",
					errorskg.ErrToolNameCollision, name, existing.Server)
			}
			cfg.logger.Warn("tool name collision, keeping the later server",
				"tool", name,
				"previous_server", existing.Server,
				"server", server.Name,
			)
		}

		desc := d
		if name != d.Name {
			desc = d.Renamed(name)
		}
		reg.handles[name] = &Handle{
			Descriptor:   desc,
			Server:       server.Name,
			RemoteName:   d.Name,
			FunctionName: alias,
			Connector:    conn,
		}
		reg.aliases[alias] = name
		count++

		cfg.logger.Debug("registered tool", "tool", name, "server", server.Name)
	}

	cfg.logger.Info("discovered server tools",
		"server", server.Name,
		"transport", server.Transport,
		"advertised", len(descriptors),
		"registered", count,
	)
	return nil
}

// NamespacedName returns the registry name of a tool under CollisionNamespace.
func NamespacedName(server, toolName string) string {
	return server + "." + toolName
}

var (
	invalidFunctionChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)
	invalidSegmentChars  = regexp.MustCompile(`[^a-z0-9]+`)
)

// FunctionName returns the name a tool is offered under to function-calling
// models, which only accept [a-zA-Z0-9_-]. Namespaced tools become
// mcp_{server}_{tool} with both parts lowercased; other tool names only have
// invalid characters replaced by underscores.
func FunctionName(server, toolName string, namespaced bool) string {
	if namespaced {
		return fmt.Sprintf("mcp_%s_%s", functionSegment(server), functionSegment(toolName))
	}
	return invalidFunctionChars.ReplaceAllString(toolName, "_")
}

func functionSegment(s string) string {
	return strings.Trim(invalidSegmentChars.ReplaceAllString(strings.ToLower(s), "_"), "_")
}

func timeoutCause(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, errorskg.ErrTimeout) {
		return fmt.Errorf("%w: %w", errorskg.ErrTimeout, err)
	}
	return err
}

func toSet(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}
