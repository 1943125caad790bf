package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweetpotato0/toolmesh/config"
	"github.com/sweetpotato0/toolmesh/pkg/logging"
	"github.com/sweetpotato0/toolmesh/servers/weather"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:3000", "Address to bind")
	path := flag.String("path", weather.DefaultPath, "HTTP path used for the MCP streamable endpoint")
	envFile := flag.String("env-file", ".env", "Optional dotenv file with OPENWEATHER_API_KEY")
	cacheTTL := flag.Duration("cache-ttl", weather.DefaultCacheTTL, "How long results are cached; negative disables caching")
	redisAddr := flag.String("redis-addr", os.Getenv("REDIS_ADDR"), "Redis address for the result cache; empty keeps results in memory")
	flag.Parse()

	logger := logging.WithComponent("weatherserver")

	if err := config.LoadDotEnv(*envFile); err != nil {
		logger.Error("load env file", "path", *envFile, "error", err)
		os.Exit(1)
	}

	apiKey := os.Getenv(weather.EnvAPIKey)
	if apiKey == "" {
		logger.Warn("OPENWEATHER_API_KEY not set; get_weather will report a missing key")
	}

	svc := weather.New(weather.Config{
		APIKey:    apiKey,
		BaseURL:   os.Getenv("OPENWEATHER_BASE_URL"),
		CacheTTL:  *cacheTTL,
		RedisAddr: *redisAddr,
	})
	defer svc.Close()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           svc.Router(*path),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving MCP streamable endpoint", "url", "http://"+*addr+*path, "version", weather.Version)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server stopped", "error", err)
		os.Exit(1)
	}
}
