package message

import (
	"strings"
	"testing"
)

func TestNewMessage(t *testing.T) {
	msg := NewMessage(RoleUser, "Hello, world!")

	if msg.Role != RoleUser {
		t.Errorf("Expected role %s, got %s", RoleUser, msg.Role)
	}

	if msg.Content != "Hello, world!" {
		t.Errorf("Expected content 'Hello, world!', got '%s'", msg.Content)
	}

	if msg.ID == "" {
		t.Error("Expected non-empty ID")
	}

	if msg.CreatedAt.IsZero() {
		t.Error("Expected non-zero created time")
	}
}

func TestNewToolCallMessage(t *testing.T) {
	toolCalls := []ToolCall{
		{ID: "call1", Name: "tool1", Args: map[string]any{"arg1": "value1"}},
	}

	msg := NewToolCallMessage(toolCalls)

	if msg.Role != RoleAssistant {
		t.Errorf("Expected role %s, got %s", RoleAssistant, msg.Role)
	}

	if len(msg.ToolCalls) != 1 {
		t.Errorf("Expected 1 tool call, got %d", len(msg.ToolCalls))
	}

	if msg.ToolCalls[0].Name != "tool1" {
		t.Errorf("Expected tool name 'tool1', got '%s'", msg.ToolCalls[0].Name)
	}
}

func TestNewToolResponseMessage(t *testing.T) {
	msg := NewToolResponseMessage("call1", "result")

	if msg.Role != RoleTool {
		t.Errorf("Expected role %s, got %s", RoleTool, msg.Role)
	}

	if msg.Content != "result" {
		t.Errorf("Expected content 'result', got '%s'", msg.Content)
	}

	if msg.ToolID != "call1" {
		t.Errorf("Expected tool ID 'call1', got '%s'", msg.ToolID)
	}
}

func TestMessageIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewMessage(RoleUser, "hi").ID
		if seen[id] {
			t.Fatalf("duplicate message ID %q", id)
		}
		seen[id] = true
	}
	if id := NewToolCallID(); !strings.HasPrefix(id, "call_") {
		t.Fatalf("unexpected tool call ID %q", id)
	}
}

func TestCloneCopiesToolCalls(t *testing.T) {
	msg := NewToolCallMessage([]ToolCall{{ID: "1", Name: "add", Args: map[string]any{"a": 1.0}}})
	cloned := Clone(msg)
	cloned.ToolCalls[0].Args["a"] = 2.0
	cloned.ToolCalls[0].Failed = true
	if msg.ToolCalls[0].Args["a"] != 1.0 {
		t.Fatal("clone shares argument map with the original")
	}
	if msg.ToolCalls[0].Failed {
		t.Fatal("clone shares tool calls with the original")
	}
	if cloned.ID != msg.ID || !cloned.HasToolCalls() {
		t.Fatalf("clone lost fields: %+v", cloned)
	}
	if Clone(nil) != nil {
		t.Fatal("Clone(nil) should be nil")
	}
}

func TestHasToolCalls(t *testing.T) {
	if NewMessage(RoleAssistant, "done").HasToolCalls() {
		t.Fatal("plain reply reported tool calls")
	}
	var nilMsg *Message
	if nilMsg.HasToolCalls() {
		t.Fatal("nil message reported tool calls")
	}
}
