package interfaces

import (
	"context"
	"encoding/json"
)

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents a single message in a tool-calling conversation
type Message struct {
	// Role identifies the message sender: "system", "user", "assistant" or "tool"
	Role string `json:"role"`

	// Content contains the text content of the message.
	// For tool messages it holds the JSON result of the call.
	Content string `json:"content,omitempty"`

	// ToolCalls are the calls an assistant message asked for
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a tool message to the call it answers
	ToolCallID string `json:"tool_call_id,omitempty"`

	// Name is the tool name on tool messages
	Name string `json:"name,omitempty"`

	// IsError marks a tool message whose result is the error shape
	IsError bool `json:"is_error,omitempty"`
}

// ToolCall is one function invocation requested by the model
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolSpec advertises a tool to the model.
// Parameters is a JSON schema object ("type", "properties", "required").
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// ToolExecutor runs the tools a session may call.
// Execute never fails; failures come back as the error shape with isError set.
type ToolExecutor interface {
	Tools() []ToolSpec
	Execute(ctx context.Context, name string, args json.RawMessage) (content string, isError bool)
}

// ConversationRunner drives a conversation to its final turn
type ConversationRunner interface {
	Run(ctx context.Context, conversation []Message) ([]Message, error)
}
