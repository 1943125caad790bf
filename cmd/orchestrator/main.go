package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sweetpotato0/toolmesh/agent"
	"github.com/sweetpotato0/toolmesh/config"
	"github.com/sweetpotato0/toolmesh/contrib/provider/groq"
	"github.com/sweetpotato0/toolmesh/pkg/logging"
	"github.com/sweetpotato0/toolmesh/pkg/telemetry"
	toolmcp "github.com/sweetpotato0/toolmesh/tool/mcp"
)

var defaultPrompts = []string{
	"what's (3 + 5) x 12?",
	"what is the weather in Hyderabad, India?",
	"what is the weather in NotARealCityHere?",
}

type promptList []string

func (p *promptList) String() string { return strings.Join(*p, "; ") }

func (p *promptList) Set(v string) error {
	*p = append(*p, v)
	return nil
}

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "YAML configuration file; empty uses the built-in Math and Weather servers")
	envFile := flag.String("env-file", ".env", "Optional dotenv file with GROQ_API_KEY")
	trace := flag.Bool("trace", false, "Export traces even without OTEL_EXPORTER_OTLP_ENDPOINT")
	var prompts promptList
	flag.Var(&prompts, "prompt", "Prompt to send to the agent (repeatable)")
	flag.Parse()
	if len(prompts) == 0 {
		prompts = defaultPrompts
	}

	logger := logging.WithComponent("orchestrator")

	if err := config.LoadDotEnv(*envFile); err != nil {
		logger.Error("load env file", "error", err)
		return 1
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load configuration", "error", err)
		return 1
	}
	if err := cfg.ValidateCredentials(); err != nil {
		logger.Error("missing credentials", "error", err)
		return 1
	}
	if cfg.OpenWeatherAPIKey == "" {
		logger.Warn("OPENWEATHER_API_KEY not set in the client environment; the weather server needs its own")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "toolmesh-orchestrator",
		Disable:     !*trace && os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "",
	})
	if err != nil {
		logger.Error("init telemetry", "error", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(flushCtx)
	}()

	registry, err := toolmcp.Discover(ctx, cfg.Servers, toolmcp.OptionsFromConfig(cfg)...)
	if err != nil {
		logger.Error("tool discovery failed", "error", err)
		return 1
	}
	defer func() {
		if err := registry.Close(); err != nil {
			logger.Warn("closing tool servers", "error", err)
		}
	}()

	fmt.Printf("Fetched %d tools:\n", registry.Len())
	for _, h := range registry.Handles() {
		fmt.Printf("- %s (%s): %s\n", h.Name(), h.Server, h.Descriptor.Description)
	}

	llm := groq.New(&groq.Config{
		APIKey:    cfg.GroqAPIKey,
		Model:     cfg.Model,
		MaxTokens: 2048,
		Timeout:   60 * time.Second,
	})
	ag := agent.New(
		agent.WithName("toolmesh"),
		agent.WithSystemPrompt("You are a helpful assistant. Use the available tools for arithmetic and weather questions."),
		agent.WithProvider(llm),
		agent.WithToolProvider(registry),
		agent.WithMaxIterations(cfg.MaxIterations),
	)

	for _, prompt := range prompts {
		if ctx.Err() != nil {
			break
		}
		fmt.Printf("\n> %s\n", prompt)
		msgs, err := ag.Converse(ctx, prompt)
		if err != nil {
			fmt.Printf("query failed: %v\n", err)
			continue
		}
		for _, msg := range msgs[1 : len(msgs)-1] {
			for _, call := range msg.ToolCalls {
				fmt.Printf("  tool %s(%v) -> %s\n", call.Name, call.Args, call.Response)
			}
		}
		fmt.Printf("Final answer: %s\n", msgs[len(msgs)-1].Content)
	}
	return 0
}
