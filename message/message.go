// Package message holds the conversation records exchanged between the agent,
// the LLM provider and the tool registry.
package message

import (
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Role is who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message is one turn of a conversation.
type Message struct {
	ID        string     `json:"id"`
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// ToolID links a RoleTool message to the ToolCall it answers.
	ToolID    string     `json:"tool_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
	// Response is filled in once the call has run.
	Response string `json:"response,omitempty"`
	// Failed marks a response produced because the invocation could not reach the tool.
	Failed bool `json:"failed,omitempty"`
}

func newMessage(role Role) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      role,
		CreatedAt: time.Now(),
	}
}

// NewMessage creates a message with the given role and content.
func NewMessage(role Role, content string) *Message {
	msg := newMessage(role)
	msg.Content = content
	return msg
}

// NewToolCallMessage creates an assistant message requesting tool calls.
func NewToolCallMessage(toolCalls []ToolCall) *Message {
	msg := newMessage(RoleAssistant)
	msg.ToolCalls = toolCalls
	return msg
}

// NewToolResponseMessage creates the tool message answering call toolID.
func NewToolResponseMessage(toolID, content string) *Message {
	msg := newMessage(RoleTool)
	msg.Content = content
	msg.ToolID = toolID
	return msg
}

// NewToolCallID returns an identifier for a tool call the model left unnamed.
func NewToolCallID() string {
	return "call_" + uuid.NewString()
}

// HasToolCalls reports whether the model asked for tools to be run.
func (m *Message) HasToolCalls() bool {
	return m != nil && len(m.ToolCalls) > 0
}

// Clone returns a copy of msg that shares no tool calls or arguments with it.
func Clone(msg *Message) *Message {
	if msg == nil {
		return nil
	}
	cloned := *msg
	cloned.ToolCalls = slices.Clone(msg.ToolCalls)
	for i := range cloned.ToolCalls {
		cloned.ToolCalls[i].Args = maps.Clone(msg.ToolCalls[i].Args)
	}
	return &cloned
}
