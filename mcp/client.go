package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sweetpotato0/toolmesh/config"
	errorskg "github.com/sweetpotato0/toolmesh/errors"
	"github.com/sweetpotato0/toolmesh/pkg/logging"
	"github.com/sweetpotato0/toolmesh/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// Option configures optional MCP client behaviour.
type Option func(*clientConfig)

type clientConfig struct {
	implementation    sdkmcp.Implementation
	logger            *slog.Logger
	keepAlive         time.Duration
	terminateTimeout  time.Duration
	httpClient        *http.Client
	streamableRetries *int
}

// WithClientInfo sets the client metadata advertised to the MCP server.
func WithClientInfo(info ClientInfo) Option {
	return func(cfg *clientConfig) {
		if info.Name != "" {
			cfg.implementation.Name = info.Name
		}
		if info.Title != "" {
			cfg.implementation.Title = info.Title
		}
		if info.Version != "" {
			cfg.implementation.Version = info.Version
		}
	}
}

// WithLogger configures logging for the MCP client. If nil, logging is discarded.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *clientConfig) {
		if logger == nil {
			logger = logging.Discard()
		}
		cfg.logger = logger
	}
}

// WithKeepAlive configures periodic ping requests to keep the session healthy.
func WithKeepAlive(interval time.Duration) Option {
	return func(cfg *clientConfig) {
		cfg.keepAlive = interval
	}
}

// WithTerminateTimeout sets how long to wait for graceful server shutdown before sending SIGTERM.
func WithTerminateTimeout(d time.Duration) Option {
	return func(cfg *clientConfig) {
		cfg.terminateTimeout = d
	}
}

// WithHTTPClient supplies a custom HTTP client for the streamable HTTP transport.
func WithHTTPClient(client *http.Client) Option {
	return func(cfg *clientConfig) {
		cfg.httpClient = client
	}
}

// WithStreamableMaxRetries overrides the retry count for reconnect attempts when using
// the streamable HTTP transport.
func WithStreamableMaxRetries(retries int) Option {
	return func(cfg *clientConfig) {
		cfg.streamableRetries = &retries
	}
}

// ClientInfo describes the client metadata sent to the MCP server.
type ClientInfo struct {
	Name    string `json:"name"`
	Title   string `json:"title,omitempty"`
	Version string `json:"version"`
}

// ServerInfo contains information about the connected MCP server.
type ServerInfo struct {
	Name            string `json:"name"`
	Title           string `json:"title,omitempty"`
	Version         string `json:"version"`
	ProtocolVersion string `json:"protocolVersion"`
	Instructions    string `json:"instructions,omitempty"`
}

// Client is the Connector implementation for both transports. It wraps the
// official MCP Go SDK client session and serializes calls on it.
type Client struct {
	name      string
	transport config.Transport

	sdkClient *sdkmcp.Client
	session   *sdkmcp.ClientSession
	logger    *slog.Logger

	// sem admits one request at a time.
	sem  chan struct{}
	done chan struct{}

	// cancel ends the context the session was connected with.
	cancel    context.CancelFunc
	closeOnce sync.Once
	closeErr  error

	cmd *exec.Cmd

	initialize *sdkmcp.InitializeResult
}

var _ Connector = (*Client)(nil)

// NewStdioClient launches the configured command and performs the MCP
// initialization handshake over its stdin/stdout. The process is terminated
// when the client is closed.
func NewStdioClient(ctx context.Context, server config.ServerConfig, opts ...Option) (*Client, error) {
	if strings.TrimSpace(server.Command) == "" {
		return nil, &errorskg.ConnectionError{
			Server:    server.Name,
			Transport: string(config.TransportSubprocess),
			Err:       errors.New("command cannot be empty"),
		}
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := cfg.logger.With("mcp_server", server.Name)

	cmd := exec.Command(server.Command, server.Args...)
	if server.Dir != "" {
		cmd.Dir = server.Dir
	}
	if env := server.EnvList(); len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	cmd.Stderr = logWriter{logger: logger}

	transport := &sdkmcp.CommandTransport{
		Command:           cmd,
		TerminateDuration: cfg.terminateTimeout,
	}
	client, err := connect(ctx, server.Name, config.TransportSubprocess, transport, cfg)
	if err != nil {
		return nil, err
	}
	client.cmd = cmd
	return client, nil
}

// NewStreamableClient connects to an MCP server over the streamable HTTP transport
// (SSE + HTTP POST) as defined by the MCP specification.
func NewStreamableClient(ctx context.Context, server config.ServerConfig, opts ...Option) (*Client, error) {
	if strings.TrimSpace(server.URL) == "" {
		return nil, &errorskg.ConnectionError{
			Server:    server.Name,
			Transport: string(config.TransportHTTPStream),
			Err:       errors.New("endpoint cannot be empty"),
		}
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	transport := &sdkmcp.StreamableClientTransport{
		Endpoint: server.URL,
	}
	httpClient := cfg.httpClient
	if len(server.Headers) > 0 {
		httpClient = withHeaders(httpClient, server.Headers)
	}
	if httpClient != nil {
		transport.HTTPClient = httpClient
	}
	if cfg.streamableRetries != nil {
		transport.MaxRetries = *cfg.streamableRetries
	}
	return connect(ctx, server.Name, config.TransportHTTPStream, transport, cfg)
}

// connect performs the handshake on an arbitrary SDK transport.
func connect(ctx context.Context, name string, kind config.Transport, transport sdkmcp.Transport, cfg clientConfig) (client *Client, err error) {
	ctx, span := telemetry.Start(ctx, "mcp.connect",
		attribute.String("mcp.server", name),
		attribute.String("mcp.transport", string(kind)),
	)
	defer func() { telemetry.End(span, err) }()

	client = &Client{
		name:      name,
		transport: kind,
		logger:    cfg.logger.With("mcp_server", name),
		sem:       make(chan struct{}, 1),
		done:      make(chan struct{}),
	}

	clientOpts := &sdkmcp.ClientOptions{
		ToolListChangedHandler: func(context.Context, *sdkmcp.ToolListChangedRequest) {
			client.logger.Info("server reported a tool list change; it takes effect on the next discovery")
		},
		LoggingMessageHandler: func(_ context.Context, req *sdkmcp.LoggingMessageRequest) {
			if req != nil && req.Params != nil {
				client.logger.Info("mcp server log", "level", req.Params.Level, "data", req.Params.Data)
			}
		},
		KeepAlive: cfg.keepAlive,
	}

	client.sdkClient = sdkmcp.NewClient(&cfg.implementation, clientOpts)

	// The SDK keeps using the connect context for the life of the session,
	// so the session gets its own and ctx only bounds the handshake.
	lifetime, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(ctx, cancel)
	session, err := client.sdkClient.Connect(lifetime, transport, nil)
	if !stop() {
		if session != nil {
			_ = session.Close()
		}
		cancel()
		if err == nil {
			err = ctx.Err()
		} else {
			err = fmt.Errorf("%w: %w", ctx.Err(), err)
		}
		return nil, &errorskg.ConnectionError{Server: name, Transport: string(kind), Err: err}
	}
	if err != nil {
		cancel()
		return nil, &errorskg.ConnectionError{Server: name, Transport: string(kind), Err: err}
	}
	client.session = session
	client.cancel = cancel
	client.initialize = session.InitializeResult()

	info := client.ServerInfo()
	client.logger.Debug("mcp session established",
		"transport", kind,
		"server_name", info.Name,
		"server_version", info.Version,
		"protocol", info.ProtocolVersion,
	)

	go client.monitorSession()

	return client, nil
}

// Name returns the configured server name.
func (c *Client) Name() string {
	return c.name
}

// Transport returns the transport kind of the connection.
func (c *Client) Transport() config.Transport {
	return c.transport
}

// Close terminates the MCP session and the underlying transport: the child
// process for stdio servers, the HTTP session for streamable servers.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.session != nil {
			c.closeErr = c.session.Close()
			if errors.Is(c.closeErr, sdkmcp.ErrConnectionClosed) {
				c.closeErr = nil
			}
		}
		if c.cancel != nil {
			c.cancel()
		}
		close(c.done)
	})
	return c.closeErr
}

// Pid returns the process id of a subprocess server, or 0 for HTTP servers
// and processes that never started.
func (c *Client) Pid() int {
	if c.cmd == nil || c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

// Done returns a channel that is closed when the client shuts down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// acquire waits for the request slot or ctx.
func (c *Client) acquire(ctx context.Context) error {
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return errorskg.ErrClientClosed
	}
}

func (c *Client) release() {
	<-c.sem
}

func (c *Client) monitorSession() {
	if c.session == nil {
		return
	}
	if err := c.session.Wait(); err != nil && !errors.Is(err, sdkmcp.ErrConnectionClosed) {
		c.logger.Warn("mcp session ended with error", "error", err)
	}
	_ = c.Close()
}

func defaultConfig() clientConfig {
	return clientConfig{
		implementation: sdkmcp.Implementation{
			Name:    "toolmesh",
			Version: "0.1.0",
		},
		logger:           logging.WithComponent("mcp"),
		terminateTimeout: 5 * time.Second,
	}
}

type logWriter struct {
	logger *slog.Logger
}

func (w logWriter) Write(p []byte) (int, error) {
	if w.logger != nil {
		for _, line := range strings.Split(string(p), "\n") {
			if msg := strings.TrimSpace(line); msg != "" {
				w.logger.Debug("mcp server stderr", "line", msg)
			}
		}
	}
	return len(p), nil
}

// headerTransport injects static headers into every request.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}

func withHeaders(client *http.Client, headers map[string]string) *http.Client {
	var cp http.Client
	if client != nil {
		cp = *client
	}
	base := cp.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	cp.Transport = &headerTransport{base: base, headers: headers}
	return &cp
}

// ServerInfo returns the negotiated initialization metadata.
func (c *Client) ServerInfo() ServerInfo {
	return convertInitializeResult(c.initialize)
}

func convertInitializeResult(res *sdkmcp.InitializeResult) ServerInfo {
	if res == nil {
		return ServerInfo{}
	}
	info := ServerInfo{
		ProtocolVersion: res.ProtocolVersion,
		Instructions:    res.Instructions,
	}
	if res.ServerInfo != nil {
		info.Name = res.ServerInfo.Name
		info.Title = res.ServerInfo.Title
		info.Version = res.ServerInfo.Version
	}
	return info
}

// schemaMap converts an SDK input schema into a plain map.
func schemaMap(schema any) map[string]any {
	switch value := schema.(type) {
	case nil:
		return nil
	case map[string]any:
		return value
	case json.RawMessage:
		return unmarshalMap(value)
	case []byte:
		return unmarshalMap(value)
	default:
		data, err := json.Marshal(value)
		if err != nil {
			return nil
		}
		return unmarshalMap(data)
	}
}

func unmarshalMap(data []byte) map[string]any {
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

func (c *Client) String() string {
	return fmt.Sprintf("%s(%s)", c.name, c.transport)
}
