// Package llm defines the normalized provider contract every agent depends on.
// Concrete clients live under providers/ and convert each provider's native wire
// shape into ChatResponse immediately after the HTTP call, so the rest of the
// system only ever sees one typed shape.
package llm

import (
	"context"
	"time"

	"github.com/agentkit-go/agentkit/types"
)

// ChatRequest is the normalized chat-completion request.
type ChatRequest struct {
	TraceID     string             `json:"trace_id,omitempty"`
	Model       string             `json:"model"`
	Messages    []types.Message    `json:"messages"`
	MaxTokens   int                `json:"max_tokens,omitempty"`
	Temperature float32            `json:"temperature,omitempty"`
	TopP        float32            `json:"top_p,omitempty"`
	TopK        int                `json:"top_k,omitempty"`
	Stop        []string           `json:"stop,omitempty"`
	Tools       []types.ToolSchema `json:"tools,omitempty"`
	ToolChoice  string             `json:"tool_choice,omitempty"` // auto | none | <tool name>
	Timeout     time.Duration      `json:"timeout,omitempty"`
	Metadata    map[string]string  `json:"metadata,omitempty"`
}

// ChatUsage reports token consumption for one call.
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// ChatChoice is one completion alternative.
type ChatChoice struct {
	Index        int           `json:"index"`
	FinishReason string        `json:"finish_reason,omitempty"`
	Message      types.Message `json:"message"`
}

// ChatResponse is the normalized chat-completion response. Regardless of the
// underlying provider, Choices and Usage are always populated.
type ChatResponse struct {
	ID        string       `json:"id,omitempty"`
	Provider  string       `json:"provider,omitempty"`
	Model     string       `json:"model"`
	Choices   []ChatChoice `json:"choices"`
	Usage     ChatUsage    `json:"usage,omitempty"`
	CreatedAt time.Time    `json:"created_at,omitempty"`
}

// Text returns the first choice's content, or "" when there are no choices.
func (r *ChatResponse) Text() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// ToolCalls returns the first choice's tool calls.
func (r *ChatResponse) ToolCalls() []types.ToolCall {
	if r == nil || len(r.Choices) == 0 {
		return nil
	}
	return r.Choices[0].Message.ToolCalls
}

// StreamChunk is one incremental delta from a streaming completion.
type StreamChunk struct {
	ID           string        `json:"id,omitempty"`
	Provider     string        `json:"provider,omitempty"`
	Model        string        `json:"model,omitempty"`
	Index        int           `json:"index,omitempty"`
	Delta        types.Message `json:"delta"`
	FinishReason string        `json:"finish_reason,omitempty"`
	Usage        *ChatUsage    `json:"usage,omitempty"` // final chunk may carry usage
	Err          *types.Error  `json:"error,omitempty"`
}

// HealthStatus reports the result of a provider health probe.
type HealthStatus struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
}

// Provider is the unified LLM adapter interface. Tool invocations travel
// through ChatRequest.Tools; the LLM answers with ToolCalls on the response
// message, and tool execution belongs to the agent layer.
type Provider interface {
	// Completion issues a synchronous chat request and returns the full response.
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Stream issues a streaming chat request and returns a channel of deltas.
	// The channel is closed when the stream ends; a chunk with Err set reports
	// a mid-stream failure.
	Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error)

	// HealthCheck performs a lightweight liveness probe.
	HealthCheck(ctx context.Context) (*HealthStatus, error)

	// Name returns the provider's unique identifier.
	Name() string

	// SupportsNativeFunctionCalling reports whether the provider understands
	// structured tool calls on the wire. When false, the agent falls back to
	// the textual function-call protocol.
	SupportsNativeFunctionCalling() bool

	// SupportsNativeStreaming reports whether Stream forwards wire deltas.
	// When false, the agent paces a simulated stream from the full response.
	SupportsNativeStreaming() bool
}
