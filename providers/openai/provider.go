// Package openai implements the OpenAI-style chat-completions client.
package openai

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
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
	endpointChat   = "chat/completions"
)

// Provider speaks the OpenAI chat-completions wire format: Bearer auth,
// tool calls as typed message fields, SSE streaming terminated by [DONE].
type Provider struct {
	cfg     providers.OpenAIConfig
	client  *http.Client
	logger  *zap.Logger
	limiter *llm.EndpointLimiter
	retryer *retry.Retryer
}

// New creates an OpenAI provider.
func New(cfg providers.OpenAIConfig, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	policy := retry.DefaultPolicy()
	if cfg.MaxRetries > 0 {
		policy.MaxRetries = cfg.MaxRetries
	}
	if cfg.RetryDelay > 0 {
		policy.RetryDelay = cfg.RetryDelay
	}
	policy.AttemptTimeout = cfg.Timeout
	policy.OnRetry = func(int, error, time.Duration) { metrics.ObserveRetry("openai") }

	limiter := llm.NewEndpointLimiter(logger)
	if rl := cfg.RateLimit; rl != nil {
		limiter.Configure(endpointChat, rl.Limit, rl.Window)
	}

	return &Provider{
		cfg:     cfg,
		client:  &http.Client{},
		logger:  logger.With(zap.String("provider", "openai")),
		limiter: limiter,
		retryer: retry.New(policy, logger),
	}
}

func (p *Provider) Name() string { return "openai" }

func (p *Provider) SupportsNativeFunctionCalling() bool { return true }

func (p *Provider) SupportsNativeStreaming() bool { return true }

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	Name       string         `json:"name,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	Index    int    `json:"index,omitempty"`
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function"`
}

type wireTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description,omitempty"`
		Parameters  json.RawMessage `json:"parameters,omitempty"`
	} `json:"function"`
}

type wireRequest struct {
	Model         string        `json:"model"`
	Messages      []wireMessage `json:"messages"`
	MaxTokens     int           `json:"max_tokens,omitempty"`
	Temperature   float32       `json:"temperature,omitempty"`
	TopP          float32       `json:"top_p,omitempty"`
	Stop          []string      `json:"stop,omitempty"`
	Stream        bool          `json:"stream,omitempty"`
	StreamOptions *struct {
		IncludeUsage bool `json:"include_usage"`
	} `json:"stream_options,omitempty"`
	Tools      []wireTool `json:"tools,omitempty"`
	ToolChoice any        `json:"tool_choice,omitempty"`
}

type wireChoice struct {
	Index        int         `json:"index"`
	Message      wireMessage `json:"message"`
	Delta        wireMessage `json:"delta"`
	FinishReason string      `json:"finish_reason,omitempty"`
}

type wireResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Created int64        `json:"created"`
	Choices []wireChoice `json:"choices"`
	Usage   *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
}

func (p *Provider) buildHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.Organization != "" {
		req.Header.Set("OpenAI-Organization", p.cfg.Organization)
	}
}

func toWireMessages(msgs []types.Message) []wireMessage {
	out := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		wm := wireMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			wtc := wireToolCall{ID: tc.ID, Type: "function"}
			wtc.Function.Name = tc.Name
			wtc.Function.Arguments = string(tc.Arguments)
			wm.ToolCalls = append(wm.ToolCalls, wtc)
		}
		out = append(out, wm)
	}
	return out
}

func toWireTools(tools []types.ToolSchema) []wireTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]wireTool, 0, len(tools))
	for _, t := range tools {
		var wt wireTool
		wt.Type = "function"
		wt.Function.Name = t.Name
		wt.Function.Description = t.Description
		wt.Function.Parameters = t.Parameters
		out = append(out, wt)
	}
	return out
}

func toWireToolChoice(choice string) any {
	switch choice {
	case "", "auto":
		return nil
	case "none", "required":
		return choice
	default:
		return map[string]any{
			"type":     "function",
			"function": map[string]any{"name": choice},
		}
	}
}

func fromWireMessage(wm wireMessage) types.Message {
	msg := types.Message{
		Role:    types.Role(wm.Role),
		Content: wm.Content,
	}
	if msg.Role == "" {
		msg.Role = types.RoleAssistant
	}
	for _, tc := range wm.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, types.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return msg
}

func (p *Provider) buildBody(req *llm.ChatRequest, stream bool) wireRequest {
	body := wireRequest{
		Model:       providers.ChooseModel(req, p.cfg.Model, defaultModel),
		Messages:    toWireMessages(req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
		Stream:      stream,
		Tools:       toWireTools(req.Tools),
		ToolChoice:  toWireToolChoice(req.ToolChoice),
	}
	if stream {
		body.StreamOptions = &struct {
			IncludeUsage bool `json:"include_usage"`
		}{IncludeUsage: true}
	}
	return body
}

// Completion issues one rate-limited, retried chat call and normalizes
// the response.
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "openai.completion",
		attribute.String("model", providers.ChooseModel(req, p.cfg.Model, defaultModel)))
	start := time.Now()

	resp, err := retry.DoWithResult(p.retryer, ctx, func(ctx context.Context) (*llm.ChatResponse, error) {
		if err := p.limiter.Acquire(ctx, endpointChat); err != nil {
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
		providers.JoinURL(p.cfg.BaseURL, endpointChat), bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrInvalidInput, "build request").WithCause(err)
	}
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, providers.TransportError(err, p.Name())
	}
	defer resp.Body.Close()

	p.limiter.ObserveHeaders(endpointChat, resp.Header)

	if resp.StatusCode >= 400 {
		return nil, providers.MapHTTPError(resp.StatusCode, providers.ReadErrorMessage(resp.Body), p.Name())
	}

	var wr wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return nil, providers.DecodeError(err, p.Name())
	}
	return p.normalize(wr), nil
}

func (p *Provider) normalize(wr wireResponse) *llm.ChatResponse {
	out := &llm.ChatResponse{
		ID:       wr.ID,
		Provider: p.Name(),
		Model:    wr.Model,
	}
	if wr.Created > 0 {
		out.CreatedAt = time.Unix(wr.Created, 0).UTC()
	}
	for _, c := range wr.Choices {
		out.Choices = append(out.Choices, llm.ChatChoice{
			Index:        c.Index,
			FinishReason: c.FinishReason,
			Message:      fromWireMessage(c.Message),
		})
	}
	if wr.Usage != nil {
		out.Usage = llm.ChatUsage{
			PromptTokens:     wr.Usage.PromptTokens,
			CompletionTokens: wr.Usage.CompletionTokens,
			TotalTokens:      wr.Usage.TotalTokens,
		}
	}
	return out
}

// Stream issues a streaming chat call. The connection is made once; a
// mid-stream failure surfaces as a chunk with Err set.
func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	if err := p.limiter.Acquire(ctx, endpointChat); err != nil {
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
		providers.JoinURL(p.cfg.BaseURL, endpointChat), bytes.NewReader(payload))
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

	p.limiter.ObserveHeaders(endpointChat, resp.Header)

	if resp.StatusCode >= 400 {
		defer cancel()
		defer resp.Body.Close()
		return nil, providers.MapHTTPError(resp.StatusCode, providers.ReadErrorMessage(resp.Body), p.Name())
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

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return
		}

		var wr wireResponse
		if err := json.Unmarshal([]byte(data), &wr); err != nil {
			ch <- llm.StreamChunk{Err: providers.DecodeError(err, p.Name())}
			return
		}

		chunk := llm.StreamChunk{
			ID:       wr.ID,
			Provider: p.Name(),
			Model:    wr.Model,
		}
		if wr.Usage != nil {
			chunk.Usage = &llm.ChatUsage{
				PromptTokens:     wr.Usage.PromptTokens,
				CompletionTokens: wr.Usage.CompletionTokens,
				TotalTokens:      wr.Usage.TotalTokens,
			}
		}
		if len(wr.Choices) > 0 {
			c := wr.Choices[0]
			chunk.Index = c.Index
			chunk.FinishReason = c.FinishReason
			chunk.Delta = fromWireMessage(c.Delta)
		}
		ch <- chunk
	}

	if err := scanner.Err(); err != nil {
		ch <- llm.StreamChunk{Err: providers.TransportError(err, p.Name())}
	}
}

// HealthCheck probes the models listing endpoint.
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		providers.JoinURL(p.cfg.BaseURL, "models"), nil)
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
			fmt.Errorf("openai health check failed: status=%d", resp.StatusCode)
	}
	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}
