package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sweetpotato0/toolmesh/pkg/logging"
)

const hyderabadJSON = `{
	"cod": 200,
	"name": "Hyderabad",
	"sys": {"country": "IN"},
	"main": {"temp": 31.2, "feels_like": 35, "humidity": 58},
	"weather": [{"description": "scattered clouds"}]
}`

func fakeOpenWeather(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/data/2.5/weather" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("appid") != "test-key" || q.Get("units") != "metric" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		switch q.Get("q") {
		case "Hyderabad":
			_, _ = w.Write([]byte(hyderabadJSON))
		case "Atlantis":
			_, _ = w.Write([]byte(`{"cod":"404","message":"city not found"}`))
		case "Broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"cod":"404","message":"city not found"}`))
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newService(t *testing.T, baseURL, apiKey string) *Service {
	t.Helper()
	svc := New(Config{APIKey: apiKey, BaseURL: baseURL, Logger: logging.Discard()})
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestLookupKnownCity(t *testing.T) {
	var hits atomic.Int32
	ts := fakeOpenWeather(t, &hits)
	svc := newService(t, ts.URL, "test-key")

	got := svc.Lookup(context.Background(), "Hyderabad")
	want := "Weather in Hyderabad, IN: scattered clouds. 31.2°C (feels like 35°C), 58% humidity."
	if got != want {
		t.Fatalf("Lookup() = %q, want %q", got, want)
	}
}

func TestLookupUnknownCity(t *testing.T) {
	var hits atomic.Int32
	ts := fakeOpenWeather(t, &hits)
	svc := newService(t, ts.URL, "test-key")

	if got := svc.Lookup(context.Background(), "NotARealCityHere"); got != "City 'NotARealCityHere' not found." {
		t.Fatalf("unexpected text for HTTP 404: %q", got)
	}
	if got := svc.Lookup(context.Background(), "Atlantis"); got != "City 'Atlantis' not found." {
		t.Fatalf("unexpected text for cod 404: %q", got)
	}
}

func TestLookupUpstreamFailure(t *testing.T) {
	var hits atomic.Int32
	ts := fakeOpenWeather(t, &hits)
	svc := newService(t, ts.URL, "test-key")

	got := svc.Lookup(context.Background(), "Broken")
	if !strings.HasPrefix(got, "Error fetching weather: ") || !strings.Contains(got, "500") {
		t.Fatalf("unexpected text %q", got)
	}

	// Failures are not cached.
	svc.Lookup(context.Background(), "Broken")
	if hits.Load() != 2 {
		t.Fatalf("expected 2 upstream requests, got %d", hits.Load())
	}
}

func TestLookupMissingKeyMakesNoRequest(t *testing.T) {
	var hits atomic.Int32
	ts := fakeOpenWeather(t, &hits)
	svc := newService(t, ts.URL, "")

	if got := svc.Lookup(context.Background(), "Hyderabad"); got != "Error: API key not found." {
		t.Fatalf("unexpected text %q", got)
	}
	if hits.Load() != 0 {
		t.Fatalf("expected no outbound request, got %d", hits.Load())
	}
}

func TestLookupNotFoundEchoesEachSpelling(t *testing.T) {
	var hits atomic.Int32
	ts := fakeOpenWeather(t, &hits)
	svc := newService(t, ts.URL, "test-key")

	if got := svc.Lookup(context.Background(), "Atlantis"); got != "City 'Atlantis' not found." {
		t.Fatalf("unexpected first answer %q", got)
	}
	if got := svc.Lookup(context.Background(), "atlantis"); got != "City 'atlantis' not found." {
		t.Fatalf("cached not-found answer kept the first spelling: %q", got)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected 1 upstream request, got %d", hits.Load())
	}
}

func TestLookupDiscardsUnreadableCacheEntry(t *testing.T) {
	var hits atomic.Int32
	ts := fakeOpenWeather(t, &hits)
	svc := newService(t, ts.URL, "test-key")

	if err := svc.cache.Set(context.Background(), cacheKey("Hyderabad"), "not json", time.Minute); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	if got := svc.Lookup(context.Background(), "Hyderabad"); !strings.HasPrefix(got, "Weather in Hyderabad") {
		t.Fatalf("unexpected answer %q", got)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected a fresh upstream request, got %d", hits.Load())
	}
}

func TestLookupCachesByNormalizedLocation(t *testing.T) {
	var hits atomic.Int32
	ts := fakeOpenWeather(t, &hits)
	svc := newService(t, ts.URL, "test-key")

	first := svc.Lookup(context.Background(), "Hyderabad")
	second := svc.Lookup(context.Background(), "  hyderabad ")
	if first != second {
		t.Fatalf("cached result differs: %q vs %q", first, second)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected 1 upstream request, got %d", hits.Load())
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache()
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_ = c.Set(ctx, "k", "v", time.Minute)
	if v, ok, _ := c.Get(ctx, "k"); !ok || v != "v" {
		t.Fatalf("expected cached value, got %q %v", v, ok)
	}
	now = now.Add(2 * time.Minute)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatal("expected entry to expire")
	}
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	c := NewRedisCache(RedisConfig{Addr: addr, Prefix: "toolmesh:test:" + time.Now().Format("150405.000") + ":"})
	defer c.Close()

	if err := c.Ping(ctx); err != nil {
		t.Fatalf("Ping() error: %v", err)
	}
	if _, ok, err := c.Get(ctx, "hyderabad"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := c.Set(ctx, "hyderabad", "sunny", time.Minute); err != nil {
		t.Fatalf("Set() error: %v", err)
	}
	if v, ok, err := c.Get(ctx, "hyderabad"); err != nil || !ok || v != "sunny" {
		t.Fatalf("unexpected Get() = %q %v %v", v, ok, err)
	}
}

func TestRouterServesMCPAndHealth(t *testing.T) {
	var hits atomic.Int32
	upstream := fakeOpenWeather(t, &hits)
	svc := newService(t, upstream.URL, "test-key")

	ts := httptest.NewServer(svc.Router("/mcp"))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected health status %d", resp.StatusCode)
	}

	ctx := context.Background()
	client := mcp.NewClient(&mcp.Implementation{Name: "test", Version: "0.0.1"}, nil)
	session, err := client.Connect(ctx, &mcp.StreamableClientTransport{Endpoint: ts.URL + "/mcp"}, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer session.Close()

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "get_weather",
		Arguments: map[string]any{"location": "NotARealCityHere"},
	})
	if err != nil {
		t.Fatalf("CallTool() error: %v", err)
	}
	if res.IsError {
		t.Fatal("unknown city should be a normal result")
	}
	text := res.Content[0].(*mcp.TextContent).Text
	if text != "City 'NotARealCityHere' not found." {
		t.Fatalf("unexpected text %q", text)
	}
}
