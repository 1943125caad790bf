package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sweetpotato0/toolmesh/message"
	"github.com/sweetpotato0/toolmesh/pkg/logging"
	"github.com/sweetpotato0/toolmesh/tool"
)

// ErrMaxIterations is returned when the model keeps requesting tools past the iteration limit.
var ErrMaxIterations = errors.New("agent: max iterations reached")

// LLMClient defines the interface for LLM providers
type LLMClient interface {
	// Generate generates a response from the LLM
	Generate(ctx context.Context, messages []*message.Message, tools []map[string]any) (*message.Message, error)

	// SetTemperature updates the temperature setting for generation
	SetTemperature(temp float64)

	// SetMaxTokens updates the maximum tokens limit for generation
	SetMaxTokens(max int64)

	// SetModel updates the model to use for generation
	SetModel(model string)
}

// Agent runs a tool-calling loop between an LLM and a tool provider.
// Every Run starts a fresh conversation.
type Agent struct {
	name          string
	systemPrompt  string
	maxIterations int
	enableTools   bool
	llm           LLMClient
	tools         tool.Provider
	logger        *slog.Logger
}

// Option is a function that configures an Agent
type Option func(*Agent)

// WithName sets the agent name
func WithName(name string) Option {
	return func(a *Agent) {
		a.name = name
	}
}

// WithSystemPrompt sets the system prompt
func WithSystemPrompt(prompt string) Option {
	return func(a *Agent) {
		a.systemPrompt = prompt
	}
}

// WithMaxIterations sets the maximum iterations for tool calling
func WithMaxIterations(max int) Option {
	return func(a *Agent) {
		if max > 0 {
			a.maxIterations = max
		}
	}
}

// WithTemperature sets the temperature for LLM generation. Apply it after WithProvider.
func WithTemperature(temp float64) Option {
	return func(a *Agent) {
		if a.llm != nil {
			a.llm.SetTemperature(temp)
		}
	}
}

// WithTools enables or disables tool usage
func WithTools(enable bool) Option {
	return func(a *Agent) {
		a.enableTools = enable
	}
}

// WithProvider sets the LLM provider
func WithProvider(provider LLMClient) Option {
	return func(a *Agent) {
		a.llm = provider
	}
}

// WithToolProvider sets the provider that supplies and executes tools.
func WithToolProvider(provider tool.Provider) Option {
	return func(a *Agent) {
		a.tools = provider
	}
}

// WithLogger sets the agent logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates a new agent with the given options
func New(opts ...Option) *Agent {
	agent := &Agent{
		name:          "Agent",
		systemPrompt:  "You are a helpful AI assistant.",
		maxIterations: 10,
		enableTools:   true,
		logger:        logging.WithComponent("agent"),
	}

	for _, opt := range opts {
		opt(agent)
	}

	return agent
}

// Name returns the agent name.
func (a *Agent) Name() string {
	return a.name
}

// Run executes the agent with the given input and returns the final answer.
func (a *Agent) Run(ctx context.Context, input string) (string, error) {
	msgs, err := a.Converse(ctx, input)
	if err != nil {
		return "", err
	}
	return msgs[len(msgs)-1].Content, nil
}

// Converse executes the agent and returns the whole conversation, starting
// with the user message and ending with the final assistant reply. Tool
// invocations that fail are reported back to the model as tool messages so
// the conversation can continue.
func (a *Agent) Converse(ctx context.Context, input string) ([]*message.Message, error) {
	if a.llm == nil {
		return nil, errors.New("agent: no LLM provider configured")
	}

	var history []*message.Message
	if a.systemPrompt != "" {
		history = append(history, message.NewMessage(message.RoleSystem, a.systemPrompt))
	}
	start := len(history)
	history = append(history, message.NewMessage(message.RoleUser, input))

	var toolSchemas []map[string]any
	if a.enableTools && a.tools != nil {
		toolSchemas = a.tools.ToJSONSchemas()
	}

	for i := 0; i < a.maxIterations; i++ {
		reply, err := a.llm.Generate(ctx, history, toolSchemas)
		if err != nil {
			return nil, fmt.Errorf("LLM generation failed: %w", err)
		}
		// Tool outcomes are recorded on the calls; keep the provider's reply untouched.
		response := message.Clone(reply)
		history = append(history, response)

		if !response.HasToolCalls() {
			return history[start:], nil
		}

		for idx := range response.ToolCalls {
			call := &response.ToolCalls[idx]
			result, err := a.executeTool(ctx, call)
			if err != nil {
				return nil, err
			}
			history = append(history, message.NewToolResponseMessage(call.ID, result))
		}
	}

	return nil, fmt.Errorf("%w (%d)", ErrMaxIterations, a.maxIterations)
}

// executeTool runs one tool call. Invocation failures become the tool's
// response; only cancellation of ctx aborts the run.
func (a *Agent) executeTool(ctx context.Context, call *message.ToolCall) (string, error) {
	if !a.enableTools || a.tools == nil {
		call.Failed = true
		call.Response = fmt.Sprintf("Error executing tool %s: tools are disabled", call.Name)
		return call.Response, nil
	}

	result, err := a.tools.Execute(ctx, call.Name, call.Args)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		a.logger.Warn("tool call failed", "agent", a.name, "tool", call.Name, "error", err)
		call.Failed = true
		result = fmt.Sprintf("Error executing tool %s: %v", call.Name, err)
	}
	call.Response = result
	return result, nil
}
