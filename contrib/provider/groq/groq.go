package groq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"github.com/sweetpotato0/toolmesh/message"
)

const (
	// DefaultBaseURL is Groq's OpenAI-compatible API root.
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	// DefaultModel is the model used when none is configured.
	DefaultModel = "llama3-70b-8192"
)

// Config holds Groq provider configuration
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int64
	Temperature float64
	Timeout     time.Duration
	// MaxRetries overrides the SDK's retry count when non-nil.
	MaxRetries *int
	HTTPClient *http.Client
}

// DefaultConfig returns default Groq configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:      apiKey,
		Model:       DefaultModel,
		BaseURL:     DefaultBaseURL,
		MaxTokens:   2048,
		Temperature: 0,
		Timeout:     60 * time.Second,
	}
}

// Provider implements agent.LLMClient for Groq chat completions with
// function calling, through the OpenAI SDK pointed at Groq's endpoint.
type Provider struct {
	config *Config
	client openaisdk.Client
}

// New creates a new Groq provider
func New(config *Config) *Provider {
	if config == nil {
		config = DefaultConfig("")
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}

	options := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithBaseURL(config.BaseURL),
	}
	if config.Timeout > 0 {
		options = append(options, option.WithRequestTimeout(config.Timeout))
	}
	if config.MaxRetries != nil {
		options = append(options, option.WithMaxRetries(*config.MaxRetries))
	}
	if config.HTTPClient != nil {
		options = append(options, option.WithHTTPClient(config.HTTPClient))
	}

	return &Provider{
		config: config,
		client: openaisdk.NewClient(options...),
	}
}

// Generate sends the conversation and tool schemas and returns the assistant
// reply, which carries ToolCalls when the model wants tools invoked.
func (p *Provider) Generate(ctx context.Context, messages []*message.Message, tools []map[string]any) (*message.Message, error) {
	if p.config.APIKey == "" {
		return nil, errors.New("groq: API key not configured")
	}

	msgs, err := encodeMessages(messages)
	if err != nil {
		return nil, err
	}

	params := openaisdk.ChatCompletionNewParams{
		Messages:    msgs,
		Model:       openaisdk.ChatModel(p.config.Model),
		Temperature: openaisdk.Float(p.config.Temperature),
	}
	if p.config.MaxTokens > 0 {
		params.MaxCompletionTokens = openaisdk.Int(p.config.MaxTokens)
	}
	if len(tools) > 0 {
		params.Tools, err = encodeTools(tools)
		if err != nil {
			return nil, err
		}
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("groq: chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, errors.New("groq: no choices in response")
	}

	return decodeMessage(completion.Choices[0].Message)
}

func encodeMessages(messages []*message.Message) ([]openaisdk.ChatCompletionMessageParamUnion, error) {
	out := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case message.RoleSystem:
			out = append(out, openaisdk.SystemMessage(msg.Content))
		case message.RoleUser:
			out = append(out, openaisdk.UserMessage(msg.Content))
		case message.RoleAssistant:
			assistant := openaisdk.AssistantMessage(msg.Content)
			if len(msg.ToolCalls) > 0 && assistant.OfAssistant != nil {
				calls, err := encodeToolCalls(msg.ToolCalls)
				if err != nil {
					return nil, err
				}
				assistant.OfAssistant.ToolCalls = calls
			}
			out = append(out, assistant)
		case message.RoleTool:
			out = append(out, openaisdk.ToolMessage(msg.Content, msg.ToolID))
		default:
			return nil, fmt.Errorf("groq: unsupported message role %q", msg.Role)
		}
	}
	return out, nil
}

func encodeToolCalls(calls []message.ToolCall) ([]openaisdk.ChatCompletionMessageToolCallUnionParam, error) {
	params := make([]openaisdk.ChatCompletionMessageToolCallUnionParam, 0, len(calls))
	for _, tc := range calls {
		args := tc.Args
		if args == nil {
			args = map[string]any{}
		}
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("groq: encode arguments for tool %s: %w", tc.Name, err)
		}
		params = append(params, openaisdk.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openaisdk.ChatCompletionMessageFunctionToolCallParam{
				ID: tc.ID,
				Function: openaisdk.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      tc.Name,
					Arguments: string(raw),
				},
			},
		})
	}
	return params, nil
}

// encodeTools converts {"type":"function","function":{...}} schemas into
// SDK tool params.
func encodeTools(tools []map[string]any) ([]openaisdk.ChatCompletionToolUnionParam, error) {
	out := make([]openaisdk.ChatCompletionToolUnionParam, 0, len(tools))
	for _, schema := range tools {
		fn, _ := schema["function"].(map[string]any)
		name, _ := fn["name"].(string)
		if name == "" {
			return nil, errors.New("groq: tool schema without a function name")
		}
		def := shared.FunctionDefinitionParam{Name: name}
		if desc, _ := fn["description"].(string); desc != "" {
			def.Description = openaisdk.String(desc)
		}
		if params, ok := fn["parameters"].(map[string]any); ok {
			def.Parameters = shared.FunctionParameters(params)
		}
		out = append(out, openaisdk.ChatCompletionFunctionTool(def))
	}
	return out, nil
}

func decodeMessage(reply openaisdk.ChatCompletionMessage) (*message.Message, error) {
	if len(reply.ToolCalls) == 0 {
		return message.NewMessage(message.RoleAssistant, reply.Content), nil
	}

	calls := make([]message.ToolCall, 0, len(reply.ToolCalls))
	for _, tc := range reply.ToolCalls {
		args := make(map[string]any)
		if raw := strings.TrimSpace(tc.Function.Arguments); raw != "" && raw != "null" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return nil, fmt.Errorf("groq: invalid arguments for tool %s: %w", tc.Function.Name, err)
			}
		}
		id := tc.ID
		if id == "" {
			id = message.NewToolCallID()
		}
		calls = append(calls, message.ToolCall{ID: id, Name: tc.Function.Name, Args: args})
	}

	msg := message.NewToolCallMessage(calls)
	msg.Content = reply.Content
	return msg, nil
}

// SetTemperature updates the temperature setting
func (p *Provider) SetTemperature(temp float64) {
	p.config.Temperature = temp
}

// SetMaxTokens updates the max tokens setting
func (p *Provider) SetMaxTokens(max int64) {
	p.config.MaxTokens = max
}

// SetModel updates the model
func (p *Provider) SetModel(model string) {
	p.config.Model = model
}
