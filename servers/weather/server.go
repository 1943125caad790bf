// Package weather is an MCP server exposing current weather lookups backed by
// OpenWeather, served over streamable HTTP.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sweetpotato0/toolmesh/pkg/logging"
)

const (
	// Version is reported to clients during initialization.
	Version = "0.1.0"
	// DefaultPath is where the MCP endpoint is mounted.
	DefaultPath = "/mcp"
	// DefaultCacheTTL is how long a lookup result is reused.
	DefaultCacheTTL = 10 * time.Minute

	// EnvAPIKey names the variable holding the OpenWeather key.
	EnvAPIKey = "OPENWEATHER_API_KEY"
)

const missingKeyText = "Error: API key not found."

// Config configures the weather service.
type Config struct {
	APIKey  string
	BaseURL string
	// CacheTTL of zero uses DefaultCacheTTL; a negative value disables caching.
	CacheTTL time.Duration
	// RedisAddr selects the Redis cache; empty keeps results in memory.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	HTTPClient    *http.Client
	Logger        *slog.Logger
}

// Service answers weather lookups and exposes them as an MCP tool.
type Service struct {
	client   *Client
	cache    Cache
	cacheTTL time.Duration
	logger   *slog.Logger
}

// New creates a weather service.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.WithComponent("weather_server")
	}

	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = DefaultCacheTTL
	}

	var cache Cache
	switch {
	case ttl < 0:
	case cfg.RedisAddr != "":
		cache = NewRedisCache(RedisConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	default:
		cache = NewMemoryCache()
	}

	return &Service{
		client:   NewClient(cfg.BaseURL, cfg.APIKey, cfg.HTTPClient),
		cache:    cache,
		cacheTTL: ttl,
		logger:   logger,
	}
}

// Lookup returns the rendered weather for a location. Failures are described
// in the returned text; the tool never fails at the protocol level.
func (s *Service) Lookup(ctx context.Context, location string) string {
	if s.client.APIKey == "" {
		return missingKeyText
	}

	key := cacheKey(location)
	if entry, ok := s.cached(ctx, key, location); ok {
		return entry.render(location)
	}

	report, err := s.client.Current(ctx, location)
	var entry cacheEntry
	switch {
	case errors.Is(err, ErrCityNotFound):
		entry.NotFound = true
	case err != nil:
		s.logger.Warn("weather lookup failed", "location", location, "error", err)
		return fmt.Sprintf("Error fetching weather: %v", err)
	default:
		entry.Report = report
	}

	s.store(ctx, key, location, entry)
	return entry.render(location)
}

// cacheEntry is the cached outcome of a lookup. Text is rendered per call so
// a not-found answer echoes the caller's own spelling.
type cacheEntry struct {
	Report   *Report `json:"report,omitempty"`
	NotFound bool    `json:"not_found,omitempty"`
}

func (e cacheEntry) render(location string) string {
	if e.NotFound || e.Report == nil {
		return fmt.Sprintf("City '%s' not found.", location)
	}
	return Render(e.Report)
}

func (s *Service) cached(ctx context.Context, key, location string) (cacheEntry, bool) {
	var entry cacheEntry
	if s.cache == nil {
		return entry, false
	}
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("weather cache read failed", "location", location, "error", err)
		return entry, false
	}
	if !ok {
		return entry, false
	}
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		s.logger.Warn("discarding unreadable weather cache entry", "location", location, "error", err)
		return entry, false
	}
	s.logger.Debug("weather cache hit", "location", location)
	return entry, true
}

func (s *Service) store(ctx context.Context, key, location string, entry cacheEntry) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		s.logger.Warn("encode weather cache entry", "location", location, "error", err)
		return
	}
	if err := s.cache.Set(ctx, key, string(raw), s.cacheTTL); err != nil {
		s.logger.Warn("weather cache write failed", "location", location, "error", err)
	}
}

// Render formats a report as the tool's answer.
func Render(r *Report) string {
	return fmt.Sprintf("Weather in %s, %s: %s. %s°C (feels like %s°C), %d%% humidity.",
		r.City, r.Country, r.Description,
		formatTemp(r.Temp), formatTemp(r.FeelsLike), r.Humidity)
}

// Args are the get_weather tool arguments.
type Args struct {
	Location string `json:"location" jsonschema:"city name, optionally with country code, e.g. Hyderabad or London,GB"`
}

// MCPServer builds the MCP server exposing get_weather.
func (s *Service) MCPServer() *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "Weather",
		Version: Version,
		Title:   "toolmesh weather server",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_weather",
		Description: "Get the current weather for a given location.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, a Args) (*mcp.CallToolResult, any, error) {
		location := strings.TrimSpace(a.Location)
		s.logger.Debug("tool called", "tool", "get_weather", "location", location)
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: s.Lookup(ctx, location)}},
		}, nil, nil
	})

	return server
}

// Router mounts the streamable MCP endpoint at path and a /healthz health check.
func (s *Service) Router(path string) http.Handler {
	if path == "" {
		path = DefaultPath
	}
	server := s.MCPServer()
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle(path, handler)
	return r
}

// Close releases the cache.
func (s *Service) Close() error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Close()
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	if rc, ok := s.cache.(*RedisCache); ok {
		if err := rc.Ping(r.Context()); err != nil {
			http.Error(w, "cache unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Service) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"elapsed", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func cacheKey(location string) string {
	return strings.ToLower(strings.Join(strings.Fields(location), " "))
}

func formatTemp(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
