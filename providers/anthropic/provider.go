// Package anthropic implements the Anthropic messages-API client. The
// wire format differs from OpenAI in four ways: x-api-key auth, the
// system prompt travels outside the message list, content is an array
// of typed blocks, and streaming is typed SSE events rather than one
// chunk shape.
package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/agentkit-go/agentkit/internal/metrics"
	"github.com/agentkit-go/agentkit/internal/telemetry"
	"github.com/agentkit-go/agentkit/llm"
	"github.com/agentkit-go/agentkit/llm/retry"
	"github.com/agentkit-go/agentkit/providers"
	"github.com/agentkit-go/agentkit/types"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	defaultModel     = "claude-3-5-sonnet-20241022"
	defaultMaxTokens = 4096
	apiVersion       = "2023-06-01"
	endpointMessages = "messages"

	// Anthropic returns 529 when the model is overloaded.
	statusOverloaded = 529
)

// Provider speaks the Anthropic messages wire format.
type Provider struct {
	cfg     providers.AnthropicConfig
	client  *http.Client
	logger  *zap.Logger
	limiter *llm.EndpointLimiter
	retryer *retry.Retryer
}

// New creates an Anthropic provider.
func New(cfg providers.AnthropicConfig, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		// Large completions can take a while.
		cfg.Timeout = 60 * time.Second
	}

	policy := retry.DefaultPolicy()
	if cfg.MaxRetries > 0 {
		policy.MaxRetries = cfg.MaxRetries
	}
	if cfg.RetryDelay > 0 {
		policy.RetryDelay = cfg.RetryDelay
	}
	policy.AttemptTimeout = cfg.Timeout
	policy.OnRetry = func(int, error, time.Duration) { metrics.ObserveRetry("anthropic") }

	limiter := llm.NewEndpointLimiter(logger)
	if rl := cfg.RateLimit; rl != nil {
		limiter.Configure(endpointMessages, rl.Limit, rl.Window)
	}

	return &Provider{
		cfg:     cfg,
		client:  &http.Client{},
		logger:  logger.With(zap.String("provider", "anthropic")),
		limiter: limiter,
		retryer: retry.New(policy, logger),
	}
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) SupportsNativeFunctionCalling() bool { return true }

func (p *Provider) SupportsNativeStreaming() bool { return true }

type wireContent struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

type wireMessage struct {
	Role    string        `json:"role"`
	Content []wireContent `json:"content"`
}

type wireTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	System      string        `json:"system,omitempty"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float32       `json:"temperature,omitempty"`
	TopP        float32       `json:"top_p,omitempty"`
	TopK        int           `json:"top_k,omitempty"`
	StopSeq     []string      `json:"stop_sequences,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
	Tools       []wireTool    `json:"tools,omitempty"`
}

type wireUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type wireResponse struct {
	ID         string        `json:"id"`
	Role       string        `json:"role"`
	Content    []wireContent `json:"content"`
	Model      string        `json:"model"`
	StopReason string        `json:"stop_reason"`
	Usage      *wireUsage    `json:"usage,omitempty"`
}

type wireStreamEvent struct {
	Type         string        `json:"type"`
	Index        int           `json:"index,omitempty"`
	Delta        *wireDelta    `json:"delta,omitempty"`
	ContentBlock *wireContent  `json:"content_block,omitempty"`
	Message      *wireResponse `json:"message,omitempty"`
	Usage        *wireUsage    `json:"usage,omitempty"`
}

type wireDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	StopReason  string `json:"stop_reason,omitempty"`
}

func (p *Provider) buildHeaders(req *http.Request) {
	req.Header.Set("x-api-key", p.cfg.APIKey)
	req.Header.Set("anthropic-version", apiVersion)
	req.Header.Set("Content-Type", "application/json")
}

// toWireMessages extracts the system prompt and converts the rest. Tool
// results become user-role tool_result blocks; assistant tool calls
// become tool_use blocks.
func toWireMessages(msgs []types.Message) (string, []wireMessage) {
	var system string
	var out []wireMessage

	for _, m := range msgs {
		if m.Role == types.RoleSystem {
			system = m.Content
			continue
		}
		if m.Role == types.RoleTool || m.Role == types.RoleFunction {
			out = append(out, wireMessage{
				Role: "user",
				Content: []wireContent{{
					Type:      "tool_result",
					ToolUseID: m.ToolCallID,
					Content:   m.Content,
				}},
			})
			continue
		}

		wm := wireMessage{Role: string(m.Role)}
		if m.Content != "" {
			wm.Content = append(wm.Content, wireContent{Type: "text", Text: m.Content})
		}
		for _, tc := range m.ToolCalls {
			wm.Content = append(wm.Content, wireContent{
				Type:  "tool_use",
				ID:    tc.ID,
				Name:  tc.Name,
				Input: tc.Arguments,
			})
		}
		if len(wm.Content) > 0 {
			out = append(out, wm)
		}
	}
	return system, out
}

func toWireTools(tools []types.ToolSchema) []wireTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]wireTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, wireTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		})
	}
	return out
}

func (p *Provider) buildBody(req *llm.ChatRequest, stream bool) wireRequest {
	system, messages := toWireMessages(req.Messages)
	return wireRequest{
		Model:       providers.ChooseModel(req, p.cfg.Model, defaultModel),
		Messages:    messages,
		System:      system,
		MaxTokens:   providers.ChooseMaxTokens(req, defaultMaxTokens),
		Temperature: req.Temperature,
		TopP:        req.TopP,
		TopK:        req.TopK,
		StopSeq:     req.Stop,
		Stream:      stream,
		Tools:       toWireTools(req.Tools),
	}
}

// Completion issues one rate-limited, retried messages call.
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "anthropic.completion",
		attribute.String("model", providers.ChooseModel(req, p.cfg.Model, defaultModel)))
	start := time.Now()

	resp, err := retry.DoWithResult(p.retryer, ctx, func(ctx context.Context) (*llm.ChatResponse, error) {
		if err := p.limiter.Acquire(ctx, endpointMessages); err != nil {
			return nil, err
		}
		return p.completionOnce(ctx, req)
	})

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	metrics.ObserveProviderRequest(p.Name(), outcome, time.Since(start))
	telemetry.EndSpan(span, err)
	return resp, err
}

func (p *Provider) completionOnce(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, providers.ChooseTimeout(req, p.cfg.Timeout, 30*time.Second))
	defer cancel()

	payload, err := json.Marshal(p.buildBody(req, false))
	if err != nil {
		return nil, types.NewError(types.ErrInvalidInput, "marshal request").WithCause(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		providers.JoinURL(p.cfg.BaseURL, "v1/messages"), bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrInvalidInput, "build request").WithCause(err)
	}
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, providers.TransportError(err, p.Name())
	}
	defer resp.Body.Close()

	p.limiter.ObserveHeaders(endpointMessages, resp.Header)

	if resp.StatusCode >= 400 {
		return nil, p.mapError(resp.StatusCode, providers.ReadErrorMessage(resp.Body))
	}

	var wr wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return nil, providers.DecodeError(err, p.Name())
	}
	return p.normalize(wr), nil
}

// mapError adds the Anthropic-specific overload status on top of the
// shared mapping.
func (p *Provider) mapError(status int, msg string) *types.Error {
	if status == statusOverloaded {
		return types.NewError(types.ErrResourceExhausted, msg).
			WithHTTPStatus(status).
			WithProvider(p.Name()).
			WithRetryable(true)
	}
	return providers.MapHTTPError(status, msg, p.Name())
}

func (p *Provider) normalize(wr wireResponse) *llm.ChatResponse {
	msg := types.Message{Role: types.RoleAssistant}
	for _, c := range wr.Content {
		switch c.Type {
		case "text":
			msg.Content += c.Text
		case "tool_use":
			msg.ToolCalls = append(msg.ToolCalls, types.ToolCall{
				ID:        c.ID,
				Name:      c.Name,
				Arguments: c.Input,
			})
		}
	}

	out := &llm.ChatResponse{
		ID:       wr.ID,
		Provider: p.Name(),
		Model:    wr.Model,
		Choices: []llm.ChatChoice{{
			Index:        0,
			FinishReason: wr.StopReason,
			Message:      msg,
		}},
	}
	if wr.Usage != nil {
		out.Usage = llm.ChatUsage{
			PromptTokens:     wr.Usage.InputTokens,
			CompletionTokens: wr.Usage.OutputTokens,
			TotalTokens:      wr.Usage.InputTokens + wr.Usage.OutputTokens,
		}
	}
	return out
}

// Stream issues a streaming messages call and translates the typed SSE
// events into normalized chunks. Tool-call input JSON arrives as
// fragments and is accumulated until its content block closes.
func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	if err := p.limiter.Acquire(ctx, endpointMessages); err != nil {
		return nil, err
	}

	// The per-call timeout bounds the whole stream, not just the dial.
	ctx, cancel := context.WithTimeout(ctx, providers.ChooseTimeout(req, p.cfg.Timeout, 30*time.Second))

	payload, err := json.Marshal(p.buildBody(req, true))
	if err != nil {
		cancel()
		return nil, types.NewError(types.ErrInvalidInput, "marshal request").WithCause(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		providers.JoinURL(p.cfg.BaseURL, "v1/messages"), bytes.NewReader(payload))
	if err != nil {
		cancel()
		return nil, types.NewError(types.ErrInvalidInput, "build request").WithCause(err)
	}
	p.buildHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		cancel()
		return nil, providers.TransportError(err, p.Name())
	}

	p.limiter.ObserveHeaders(endpointMessages, resp.Header)

	if resp.StatusCode >= 400 {
		defer cancel()
		defer resp.Body.Close()
		return nil, p.mapError(resp.StatusCode, providers.ReadErrorMessage(resp.Body))
	}

	ch := make(chan llm.StreamChunk)
	go func() {
		defer cancel()
		p.readStream(resp.Body, ch)
	}()
	return ch, nil
}

func (p *Provider) readStream(body io.ReadCloser, ch chan<- llm.StreamChunk) {
	defer body.Close()
	defer close(ch)

	var (
		id        string
		model     string
		toolCalls = make(map[int]*types.ToolCall)
	)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

		var event wireStreamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			ch <- llm.StreamChunk{Err: providers.DecodeError(err, p.Name())}
			return
		}

		switch event.Type {
		case "message_start":
			if event.Message != nil {
				id = event.Message.ID
				model = event.Message.Model
			}

		case "content_block_start":
			if cb := event.ContentBlock; cb != nil && cb.Type == "tool_use" {
				toolCalls[event.Index] = &types.ToolCall{ID: cb.ID, Name: cb.Name}
			}

		case "content_block_delta":
			if event.Delta == nil {
				continue
			}
			switch event.Delta.Type {
			case "text_delta":
				ch <- llm.StreamChunk{
					ID:       id,
					Provider: p.Name(),
					Model:    model,
					Index:    event.Index,
					Delta: types.Message{
						Role:    types.RoleAssistant,
						Content: event.Delta.Text,
					},
				}
			case "input_json_delta":
				if tc, ok := toolCalls[event.Index]; ok {
					tc.Arguments = append(tc.Arguments, event.Delta.PartialJSON...)
				}
			}

		case "content_block_stop":
			if tc, ok := toolCalls[event.Index]; ok {
				delete(toolCalls, event.Index)
				ch <- llm.StreamChunk{
					ID:       id,
					Provider: p.Name(),
					Model:    model,
					Index:    event.Index,
					Delta: types.Message{
						Role:      types.RoleAssistant,
						ToolCalls: []types.ToolCall{*tc},
					},
				}
			}

		case "message_delta":
			if event.Delta != nil && event.Delta.StopReason != "" {
				chunk := llm.StreamChunk{
					ID:           id,
					Provider:     p.Name(),
					Model:        model,
					FinishReason: event.Delta.StopReason,
				}
				if event.Usage != nil {
					chunk.Usage = &llm.ChatUsage{
						PromptTokens:     event.Usage.InputTokens,
						CompletionTokens: event.Usage.OutputTokens,
						TotalTokens:      event.Usage.InputTokens + event.Usage.OutputTokens,
					}
				}
				ch <- chunk
			}

		case "message_stop":
			return
		}
	}

	if err := scanner.Err(); err != nil {
		ch <- llm.StreamChunk{Err: providers.TransportError(err, p.Name())}
	}
}

// HealthCheck probes the models listing endpoint.
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		providers.JoinURL(p.cfg.BaseURL, "v1/models"), nil)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidInput, "build request").WithCause(err)
	}
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency}, providers.TransportError(err, p.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &llm.HealthStatus{Healthy: false, Latency: latency},
			fmt.Errorf("anthropic health check failed: status=%d", resp.StatusCode)
	}
	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}
