// Package mocks provides deterministic test doubles for the provider
// contract. Behavior is configured builder-style; every call is recorded
// for assertion.
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/agentkit-go/agentkit/llm"
	"github.com/agentkit-go/agentkit/types"
)

// MockProvider implements llm.Provider with scripted responses.
type MockProvider struct {
	mu sync.Mutex

	name         string
	responses    []string
	toolCalls    []types.ToolCall
	streamChunks []string
	err          error

	promptTokens     int
	completionTokens int

	nativeFunctions bool
	nativeStreaming bool

	completionFunc func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)

	calls     []*llm.ChatRequest
	callCount int
}

// NewMockProvider creates a mock with a single canned response.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		name:             "mock",
		responses:        []string{"mock response"},
		promptTokens:     10,
		completionTokens: 20,
		nativeFunctions:  true,
		nativeStreaming:  true,
	}
}

// WithName sets the provider name.
func (m *MockProvider) WithName(name string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.name = name
	return m
}

// WithResponse sets a single fixed response.
func (m *MockProvider) WithResponse(response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = []string{response}
	return m
}

// WithResponses sets sequential responses, one per Completion call. The
// last response repeats once the script runs out.
func (m *MockProvider) WithResponses(responses ...string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = responses
	return m
}

// WithError makes every call fail with err.
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithToolCalls attaches tool calls to the next response message.
func (m *MockProvider) WithToolCalls(toolCalls ...types.ToolCall) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toolCalls = toolCalls
	return m
}

// WithStreamChunks sets the deltas Stream emits.
func (m *MockProvider) WithStreamChunks(chunks ...string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamChunks = chunks
	return m
}

// WithTokenUsage sets the usage reported on every response.
func (m *MockProvider) WithTokenUsage(prompt, completion int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promptTokens = prompt
	m.completionTokens = completion
	return m
}

// WithNativeFunctionCalling toggles the capability flag.
func (m *MockProvider) WithNativeFunctionCalling(v bool) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nativeFunctions = v
	return m
}

// WithNativeStreaming toggles the capability flag.
func (m *MockProvider) WithNativeStreaming(v bool) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nativeStreaming = v
	return m
}

// WithCompletionFunc overrides Completion entirely.
func (m *MockProvider) WithCompletionFunc(fn func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completionFunc = fn
	return m
}

func (m *MockProvider) Name() string { return m.name }

func (m *MockProvider) SupportsNativeFunctionCalling() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nativeFunctions
}

func (m *MockProvider) SupportsNativeStreaming() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nativeStreaming
}

// Completion returns the next scripted response.
func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.calls = append(m.calls, req)
	idx := m.callCount
	m.callCount++
	fn := m.completionFunc
	err := m.err
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	content := ""
	if idx >= 0 {
		content = m.responses[idx]
	}
	toolCalls := m.toolCalls
	prompt, completion := m.promptTokens, m.completionTokens
	name := m.name
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	msg := types.NewAssistantMessage(content)
	if len(toolCalls) > 0 {
		msg = msg.WithToolCalls(toolCalls)
	}
	finish := "stop"
	if len(toolCalls) > 0 {
		finish = "tool_calls"
	}
	return &llm.ChatResponse{
		ID:       "mock-1",
		Provider: name,
		Model:    req.Model,
		Choices: []llm.ChatChoice{{
			Index:        0,
			FinishReason: finish,
			Message:      msg,
		}},
		Usage: llm.ChatUsage{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      prompt + completion,
		},
	}, nil
}

// Stream emits the configured chunks and closes.
func (m *MockProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	err := m.err
	chunks := append([]string(nil), m.streamChunks...)
	name := m.name
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}

	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)
		for i, c := range chunks {
			chunk := llm.StreamChunk{
				Provider: name,
				Delta:    types.Message{Role: types.RoleAssistant, Content: c},
			}
			if i == len(chunks)-1 {
				chunk.FinishReason = "stop"
			}
			select {
			case ch <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// HealthCheck always reports healthy unless an error is configured.
func (m *MockProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	m.mu.Lock()
	err := m.err
	m.mu.Unlock()
	if err != nil {
		return &llm.HealthStatus{Healthy: false}, err
	}
	return &llm.HealthStatus{Healthy: true, Latency: time.Millisecond}, nil
}

// Calls returns the recorded requests.
func (m *MockProvider) Calls() []*llm.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*llm.ChatRequest(nil), m.calls...)
}

// CallCount returns how many Completion calls were made.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// LastCall returns the most recent request, or nil.
func (m *MockProvider) LastCall() *llm.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	return m.calls[len(m.calls)-1]
}
