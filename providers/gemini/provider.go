// Package gemini implements the Google generative-language client. The
// wire format uses x-goog-api-key auth, "model" instead of "assistant",
// parts arrays instead of flat content, and a per-model URL path
// (models/<name>:generateContent).
package gemini

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
	defaultBaseURL   = "https://generativelanguage.googleapis.com"
	defaultModel     = "gemini-2.0-flash"
	endpointGenerate = "generateContent"
)

// Provider speaks the Gemini generateContent wire format.
type Provider struct {
	cfg     providers.GeminiConfig
	client  *http.Client
	logger  *zap.Logger
	limiter *llm.EndpointLimiter
	retryer *retry.Retryer
}

// New creates a Gemini provider.
func New(cfg providers.GeminiConfig, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
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
	policy.OnRetry = func(int, error, time.Duration) { metrics.ObserveRetry("gemini") }

	limiter := llm.NewEndpointLimiter(logger)
	if rl := cfg.RateLimit; rl != nil {
		limiter.Configure(endpointGenerate, rl.Limit, rl.Window)
	}

	return &Provider{
		cfg:     cfg,
		client:  &http.Client{},
		logger:  logger.With(zap.String("provider", "gemini")),
		limiter: limiter,
		retryer: retry.New(policy, logger),
	}
}

func (p *Provider) Name() string { return "gemini" }

func (p *Provider) SupportsNativeFunctionCalling() bool { return true }

func (p *Provider) SupportsNativeStreaming() bool { return true }

type wirePart struct {
	Text             string            `json:"text,omitempty"`
	FunctionCall     *wireFunctionCall `json:"functionCall,omitempty"`
	FunctionResponse *wireFunctionResp `json:"functionResponse,omitempty"`
}

type wireFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type wireFunctionResp struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

type wireTool struct {
	FunctionDeclarations []wireFunctionDecl `json:"functionDeclarations,omitempty"`
}

type wireFunctionDecl struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type wireGenerationConfig struct {
	Temperature     float32  `json:"temperature,omitempty"`
	TopP            float32  `json:"topP,omitempty"`
	TopK            int      `json:"topK,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type wireRequest struct {
	Contents          []wireContent         `json:"contents"`
	Tools             []wireTool            `json:"tools,omitempty"`
	GenerationConfig  *wireGenerationConfig `json:"generationConfig,omitempty"`
	SystemInstruction *wireContent          `json:"systemInstruction,omitempty"`
}

type wireCandidate struct {
	Content      wireContent `json:"content"`
	FinishReason string      `json:"finishReason,omitempty"`
	Index        int         `json:"index"`
}

type wireUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type wireResponse struct {
	Candidates    []wireCandidate `json:"candidates"`
	UsageMetadata *wireUsage      `json:"usageMetadata,omitempty"`
	ModelVersion  string          `json:"modelVersion,omitempty"`
	ResponseID    string          `json:"responseId,omitempty"`
}

func (p *Provider) buildHeaders(req *http.Request) {
	req.Header.Set("x-goog-api-key", p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
}

// toWireContents converts messages, pulling the system prompt into
// systemInstruction and renaming assistant to model.
func toWireContents(msgs []types.Message) (*wireContent, []wireContent) {
	var system *wireContent
	var contents []wireContent

	for _, m := range msgs {
		if m.Role == types.RoleSystem {
			system = &wireContent{Parts: []wirePart{{Text: m.Content}}}
			continue
		}
		if m.Role == types.RoleTool || m.Role == types.RoleFunction {
			var response map[string]any
			if err := json.Unmarshal([]byte(m.Content), &response); err != nil {
				response = map[string]any{"result": m.Content}
			}
			contents = append(contents, wireContent{
				Role: "user",
				Parts: []wirePart{{
					FunctionResponse: &wireFunctionResp{Name: m.Name, Response: response},
				}},
			})
			continue
		}

		role := string(m.Role)
		if m.Role == types.RoleAssistant {
			role = "model"
		}

		content := wireContent{Role: role}
		if m.Content != "" {
			content.Parts = append(content.Parts, wirePart{Text: m.Content})
		}
		for _, tc := range m.ToolCalls {
			var args map[string]any
			if err := json.Unmarshal(tc.Arguments, &args); err != nil {
				continue
			}
			content.Parts = append(content.Parts, wirePart{
				FunctionCall: &wireFunctionCall{Name: tc.Name, Args: args},
			})
		}
		if len(content.Parts) > 0 {
			contents = append(contents, content)
		}
	}
	return system, contents
}

func toWireTools(tools []types.ToolSchema) []wireTool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]wireFunctionDecl, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, wireFunctionDecl{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return []wireTool{{FunctionDeclarations: decls}}
}

func (p *Provider) buildBody(req *llm.ChatRequest) wireRequest {
	system, contents := toWireContents(req.Messages)
	body := wireRequest{
		Contents:          contents,
		Tools:             toWireTools(req.Tools),
		SystemInstruction: system,
	}
	if req.Temperature != 0 || req.TopP != 0 || req.TopK != 0 || req.MaxTokens != 0 || len(req.Stop) > 0 {
		body.GenerationConfig = &wireGenerationConfig{
			Temperature:     req.Temperature,
			TopP:            req.TopP,
			TopK:            req.TopK,
			MaxOutputTokens: req.MaxTokens,
			StopSequences:   req.Stop,
		}
	}
	return body
}

func (p *Provider) endpoint(req *llm.ChatRequest, method string) string {
	model := providers.ChooseModel(req, p.cfg.Model, defaultModel)
	return providers.JoinURL(p.cfg.BaseURL, fmt.Sprintf("v1beta/models/%s:%s", model, method))
}

// Completion issues one rate-limited, retried generateContent call.
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "gemini.completion",
		attribute.String("model", providers.ChooseModel(req, p.cfg.Model, defaultModel)))
	start := time.Now()

	resp, err := retry.DoWithResult(p.retryer, ctx, func(ctx context.Context) (*llm.ChatResponse, error) {
		if err := p.limiter.Acquire(ctx, endpointGenerate); err != nil {
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

	payload, err := json.Marshal(p.buildBody(req))
	if err != nil {
		return nil, types.NewError(types.ErrInvalidInput, "marshal request").WithCause(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.endpoint(req, "generateContent"), bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrInvalidInput, "build request").WithCause(err)
	}
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, providers.TransportError(err, p.Name())
	}
	defer resp.Body.Close()

	p.limiter.ObserveHeaders(endpointGenerate, resp.Header)

	if resp.StatusCode >= 400 {
		return nil, providers.MapHTTPError(resp.StatusCode, providers.ReadErrorMessage(resp.Body), p.Name())
	}

	var wr wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return nil, providers.DecodeError(err, p.Name())
	}
	return p.normalize(wr, req), nil
}

func (p *Provider) normalize(wr wireResponse, req *llm.ChatRequest) *llm.ChatResponse {
	out := &llm.ChatResponse{
		ID:       wr.ResponseID,
		Provider: p.Name(),
		Model:    providers.ChooseModel(req, p.cfg.Model, defaultModel),
	}
	if wr.ModelVersion != "" {
		out.Model = wr.ModelVersion
	}

	for _, cand := range wr.Candidates {
		msg := types.Message{Role: types.RoleAssistant}
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				msg.Content += part.Text
			}
			if fc := part.FunctionCall; fc != nil {
				args, _ := json.Marshal(fc.Args)
				msg.ToolCalls = append(msg.ToolCalls, types.ToolCall{
					ID:        fc.Name,
					Name:      fc.Name,
					Arguments: args,
				})
			}
		}
		out.Choices = append(out.Choices, llm.ChatChoice{
			Index:        cand.Index,
			FinishReason: strings.ToLower(cand.FinishReason),
			Message:      msg,
		})
	}

	if wr.UsageMetadata != nil {
		out.Usage = llm.ChatUsage{
			PromptTokens:     wr.UsageMetadata.PromptTokenCount,
			CompletionTokens: wr.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      wr.UsageMetadata.TotalTokenCount,
		}
	}
	return out
}

// Stream issues a streamGenerateContent call with SSE framing.
func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	if err := p.limiter.Acquire(ctx, endpointGenerate); err != nil {
		return nil, err
	}

	// The per-call timeout bounds the whole stream, not just the dial.
	ctx, cancel := context.WithTimeout(ctx, providers.ChooseTimeout(req, p.cfg.Timeout, 30*time.Second))

	payload, err := json.Marshal(p.buildBody(req))
	if err != nil {
		cancel()
		return nil, types.NewError(types.ErrInvalidInput, "marshal request").WithCause(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.endpoint(req, "streamGenerateContent")+"?alt=sse", bytes.NewReader(payload))
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

	p.limiter.ObserveHeaders(endpointGenerate, resp.Header)

	if resp.StatusCode >= 400 {
		defer cancel()
		defer resp.Body.Close()
		return nil, providers.MapHTTPError(resp.StatusCode, providers.ReadErrorMessage(resp.Body), p.Name())
	}

	ch := make(chan llm.StreamChunk)
	go func() {
		defer cancel()
		p.readStream(resp.Body, ch, req)
	}()
	return ch, nil
}

func (p *Provider) readStream(body io.ReadCloser, ch chan<- llm.StreamChunk, req *llm.ChatRequest) {
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

		var wr wireResponse
		if err := json.Unmarshal([]byte(data), &wr); err != nil {
			ch <- llm.StreamChunk{Err: providers.DecodeError(err, p.Name())}
			return
		}

		normalized := p.normalize(wr, req)
		chunk := llm.StreamChunk{
			ID:       normalized.ID,
			Provider: p.Name(),
			Model:    normalized.Model,
		}
		if len(normalized.Choices) > 0 {
			c := normalized.Choices[0]
			chunk.Index = c.Index
			chunk.FinishReason = c.FinishReason
			chunk.Delta = c.Message
		}
		if wr.UsageMetadata != nil {
			u := normalized.Usage
			chunk.Usage = &u
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
		providers.JoinURL(p.cfg.BaseURL, "v1beta/models"), nil)
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
			fmt.Errorf("gemini health check failed: status=%d", resp.StatusCode)
	}
	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}
