package types

import (
	"encoding/json"
	"time"
)

// Role represents the role of a message participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleFunction  Role = "function"
	RoleTool      Role = "tool"
)

// ToolCall represents a tool invocation request from the LLM.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Message represents a single conversation turn. Messages are immutable value
// objects: they are created once, compared by value, and never mutated after
// being appended to a history.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Timestamp  time.Time  `json:"timestamp,omitempty"`
}

// NewMessage creates a new message with the given role and content.
func NewMessage(role Role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message {
	return NewMessage(RoleSystem, content)
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return NewMessage(RoleAssistant, content)
}

// NewToolMessage creates a new tool result message.
func NewToolMessage(toolCallID, name, content string) Message {
	return Message{
		Role:       RoleTool,
		Content:    content,
		Name:       name,
		ToolCallID: toolCallID,
		Timestamp:  time.Now().UTC().Truncate(time.Millisecond),
	}
}

// WithToolCalls returns a copy of the message carrying the given tool calls.
func (m Message) WithToolCalls(calls []ToolCall) Message {
	m.ToolCalls = calls
	return m
}

// ToJSON serializes the message.
func (m Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// MessageFromJSON deserializes a message. Round-trips losslessly with ToJSON.
func MessageFromJSON(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, err
	}
	return m, nil
}

// Equal reports whether two messages carry the same value.
func (m Message) Equal(other Message) bool {
	if m.Role != other.Role || m.Content != other.Content ||
		m.Name != other.Name || m.ToolCallID != other.ToolCallID ||
		!m.Timestamp.Equal(other.Timestamp) ||
		len(m.ToolCalls) != len(other.ToolCalls) {
		return false
	}
	for i := range m.ToolCalls {
		if m.ToolCalls[i].ID != other.ToolCalls[i].ID ||
			m.ToolCalls[i].Name != other.ToolCalls[i].Name ||
			string(m.ToolCalls[i].Arguments) != string(other.ToolCalls[i].Arguments) {
			return false
		}
	}
	return true
}
