package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessage(t *testing.T) {
	msg := NewMessage(RoleUser, "hello")
	assert.Equal(t, RoleUser, msg.Role)
	assert.Equal(t, "hello", msg.Content)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestMessageConstructors(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		role Role
	}{
		{"system", NewSystemMessage("s"), RoleSystem},
		{"user", NewUserMessage("u"), RoleUser},
		{"assistant", NewAssistantMessage("a"), RoleAssistant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.role, tt.msg.Role)
		})
	}
}

func TestNewToolMessage(t *testing.T) {
	msg := NewToolMessage("call-1", "search", `{"hits":3}`)
	assert.Equal(t, RoleTool, msg.Role)
	assert.Equal(t, "call-1", msg.ToolCallID)
	assert.Equal(t, "search", msg.Name)
	assert.Equal(t, `{"hits":3}`, msg.Content)
}

func TestMessageJSONRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"plain user", NewUserMessage("what is the weather?")},
		{"system", NewSystemMessage("you are terse")},
		{"tool result", NewToolMessage("tc-9", "lookup", "42")},
		{
			"assistant with tool calls",
			NewAssistantMessage("").WithToolCalls([]ToolCall{
				{ID: "tc-1", Name: "add", Arguments: json.RawMessage(`{"x":1,"y":2}`)},
			}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.msg.ToJSON()
			require.NoError(t, err)

			got, err := MessageFromJSON(data)
			require.NoError(t, err)
			assert.True(t, tt.msg.Equal(got), "round-trip altered the message")
		})
	}
}

func TestMessageEqual(t *testing.T) {
	ts := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	a := Message{Role: RoleUser, Content: "x", Timestamp: ts}
	b := Message{Role: RoleUser, Content: "x", Timestamp: ts}
	c := Message{Role: RoleUser, Content: "y", Timestamp: ts}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}
