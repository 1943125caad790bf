package groq

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	openaisdk "github.com/openai/openai-go/v3"
	"github.com/sweetpotato0/toolmesh/message"
)

// chatRequest is the subset of the wire request the tests inspect.
type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role       string `json:"role"`
		ToolCallID string `json:"tool_call_id"`
		ToolCalls  []struct {
			ID       string `json:"id"`
			Type     string `json:"type"`
			Function struct {
				Name      string `json:"name"`
				Arguments string `json:"arguments"`
			} `json:"function"`
		} `json:"tool_calls"`
	} `json:"messages"`
	Tools []struct {
		Type     string `json:"type"`
		Function struct {
			Name       string         `json:"name"`
			Parameters map[string]any `json:"parameters"`
		} `json:"function"`
	} `json:"tools"`
	MaxCompletionTokens int64 `json:"max_completion_tokens"`
}

func newTestProvider(url string) *Provider {
	noRetries := 0
	cfg := DefaultConfig("test-key")
	cfg.BaseURL = url
	cfg.MaxRetries = &noRetries
	return New(cfg)
}

func TestGenerateToolCalls(t *testing.T) {
	var got chatRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"llama3-70b-8192",
			"choices":[{"index":0,"finish_reason":"tool_calls","message":{"role":"assistant","content":"","tool_calls":[
				{"id":"call_1","type":"function","function":{"name":"add","arguments":"{\"a\":3,\"b\":5}"}}
			]}}]}`))
	}))
	defer ts.Close()

	tools := []map[string]any{{"type": "function", "function": map[string]any{
		"name":        "add",
		"description": "Add two numbers",
		"parameters":  map[string]any{"type": "object", "properties": map[string]any{"a": map[string]any{"type": "number"}}},
	}}}
	history := []*message.Message{
		message.NewMessage(message.RoleSystem, "be brief"),
		message.NewMessage(message.RoleUser, "what's (3 + 5) x 12?"),
	}

	msg, err := newTestProvider(ts.URL).Generate(context.Background(), history, tools)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if got.Model != DefaultModel || len(got.Messages) != 2 || got.MaxCompletionTokens != 2048 {
		t.Fatalf("unexpected request %+v", got)
	}
	if len(got.Tools) != 1 || got.Tools[0].Type != "function" || got.Tools[0].Function.Name != "add" {
		t.Fatalf("unexpected tools %+v", got.Tools)
	}
	if got.Tools[0].Function.Parameters["type"] != "object" {
		t.Fatalf("tool parameters were not forwarded: %+v", got.Tools[0].Function.Parameters)
	}
	if len(msg.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(msg.ToolCalls))
	}
	call := msg.ToolCalls[0]
	if call.ID != "call_1" || call.Name != "add" || call.Args["a"] != 3.0 || call.Args["b"] != 5.0 {
		t.Fatalf("unexpected tool call %+v", call)
	}
}

func TestGenerateSendsToolResults(t *testing.T) {
	var got chatRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-2","object":"chat.completion","created":1,"model":"llama3-70b-8192",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"96"}}]}`))
	}))
	defer ts.Close()

	history := []*message.Message{
		message.NewMessage(message.RoleUser, "what's (3 + 5) x 12?"),
		message.NewToolCallMessage([]message.ToolCall{{ID: "call_1", Name: "add", Args: map[string]any{"a": 3.0, "b": 5.0}}}),
		message.NewToolResponseMessage("call_1", "8"),
	}

	msg, err := newTestProvider(ts.URL).Generate(context.Background(), history, nil)
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if msg.Content != "96" || len(msg.ToolCalls) != 0 {
		t.Fatalf("unexpected reply %+v", msg)
	}
	if len(got.Tools) != 0 {
		t.Fatalf("tools should be omitted when none are offered: %+v", got.Tools)
	}
	if len(got.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got.Messages))
	}
	assistant := got.Messages[1]
	if len(assistant.ToolCalls) != 1 || assistant.ToolCalls[0].Function.Arguments != `{"a":3,"b":5}` {
		t.Fatalf("unexpected assistant message %+v", assistant)
	}
	if got.Messages[2].Role != "tool" || got.Messages[2].ToolCallID != "call_1" {
		t.Fatalf("unexpected tool message %+v", got.Messages[2])
	}
}

func TestGenerateErrors(t *testing.T) {
	if _, err := New(DefaultConfig("")).Generate(context.Background(), nil, nil); err == nil {
		t.Fatal("expected error without API key")
	}

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key","type":"invalid_request_error"}}`))
	}))
	defer ts.Close()

	_, err := newTestProvider(ts.URL).Generate(context.Background(), []*message.Message{message.NewMessage(message.RoleUser, "hi")}, nil)
	var apiErr *openaisdk.Error
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected a 401 API error, got %v", err)
	}
}

func TestEncodeToolsRequiresName(t *testing.T) {
	if _, err := encodeTools([]map[string]any{{"type": "function", "function": map[string]any{}}}); err == nil {
		t.Fatal("expected error for a schema without a function name")
	}
}
