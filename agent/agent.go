// Package agent binds a provider, state, history, tools, and an optional
// output schema into one executable unit. Execute runs a four-phase state
// machine and routes the model's answer to tool dispatch, schema
// validation, or raw text.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/agentkit-go/agentkit/history"
	"github.com/agentkit-go/agentkit/internal/telemetry"
	"github.com/agentkit-go/agentkit/llm"
	"github.com/agentkit-go/agentkit/schema"
	"github.com/agentkit-go/agentkit/state"
	"github.com/agentkit-go/agentkit/types"
)

// DefaultStreamDelay paces simulated streams for providers without
// native streaming. Real wire chunks are never delayed.
const DefaultStreamDelay = 50 * time.Millisecond

// progressSteps is the number of phases one Execute call reports.
const progressSteps = 4

// Config configures an Agent. All fields are plain and validated
// eagerly by New; missing required fields fail construction, not the
// first Execute.
type Config struct {
	// Name identifies the agent in logs and chain results.
	Name string

	// Provider is the bound LLM client. Required.
	Provider llm.Provider

	// Model overrides the provider's default model when set.
	Model string

	// SystemPrompt is prepended as a system message when non-empty.
	SystemPrompt string

	// IncludeStateContext renders the agent's state data into an extra
	// system message so the model sees accumulated context.
	IncludeStateContext bool

	Temperature   float32
	TopP          float32
	TopK          int
	MaxTokens     int
	StopSequences []string

	// Timeout bounds each provider call.
	Timeout time.Duration

	// MaxInputTokens rejects oversized input before calling the
	// provider. Zero disables the check.
	MaxInputTokens int

	// Tokenizer counts input tokens; defaults to the estimate tokenizer
	// when MaxInputTokens is set and no tokenizer is given.
	Tokenizer types.Tokenizer

	// OutputSchema, when set, validates the model's JSON answer.
	OutputSchema *schema.OutputSchema

	// History persists the conversation when set.
	History *history.History

	// State seeds the agent's immutable state snapshot.
	State *state.State

	// StreamDelay overrides the simulated-stream pacing. Zero means
	// DefaultStreamDelay; use a negative value to disable pacing.
	StreamDelay time.Duration
}

// Validate reports the first configuration problem.
func (c *Config) Validate() error {
	if c.Provider == nil {
		return types.NewError(types.ErrInvalidConfiguration, "agent requires a provider")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return types.NewErrorf(types.ErrInvalidConfiguration, "temperature %v out of range [0, 2]", c.Temperature)
	}
	if c.MaxTokens < 0 {
		return types.NewError(types.ErrInvalidConfiguration, "max tokens must not be negative")
	}
	if c.MaxInputTokens < 0 {
		return types.NewError(types.ErrInvalidConfiguration, "max input tokens must not be negative")
	}
	return nil
}

// Agent executes prompts against its bound provider.
type Agent struct {
	cfg    Config
	logger *zap.Logger
	tools  *toolRegistry

	mu          sync.Mutex
	state       *state.State
	usage       types.TokenUsage
	progressFns []ProgressFunc

	streamDelay time.Duration
}

// New creates an Agent, validating cfg eagerly.
func New(cfg Config, logger *zap.Logger) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = "agent"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Tokenizer == nil {
		cfg.Tokenizer = types.NewEstimateTokenizer()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	st := cfg.State
	if st == nil {
		st = state.New()
	}

	delay := cfg.StreamDelay
	if delay == 0 {
		delay = DefaultStreamDelay
	} else if delay < 0 {
		delay = 0
	}

	return &Agent{
		cfg:         cfg,
		logger:      logger.With(zap.String("agent", cfg.Name)),
		tools:       newToolRegistry(),
		state:       st,
		streamDelay: delay,
	}, nil
}

// Name returns the agent's configured name.
func (a *Agent) Name() string { return a.cfg.Name }

// RegisterTool adds a tool; duplicate names fail.
func (a *Agent) RegisterTool(t Tool) error {
	return a.tools.register(t)
}

// OnProgress registers a progress callback.
func (a *Agent) OnProgress(fn ProgressFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.progressFns = append(a.progressFns, fn)
}

// State returns the agent's current state snapshot.
func (a *Agent) State() *state.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// SetState replaces the agent's state snapshot.
func (a *Agent) SetState(st *state.State) {
	if st == nil {
		st = state.New()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = st
}

// Usage returns the accumulated token usage across Execute calls.
func (a *Agent) Usage() types.TokenUsage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.usage
}

func (a *Agent) emit(status Status, index int, metadata map[string]any) {
	a.mu.Lock()
	fns := append([]ProgressFunc(nil), a.progressFns...)
	a.mu.Unlock()

	if len(fns) == 0 {
		return
	}
	p := Progress{
		Status:       status,
		CurrentIndex: index,
		TotalCount:   progressSteps,
		Timestamp:    time.Now().UTC(),
		Metadata:     metadata,
	}
	for _, fn := range fns {
		fn(p)
	}
}

// Execute runs one turn: validate, assemble, call, route, persist.
// Any failure aborts with an error and no Result.
func (a *Agent) Execute(ctx context.Context, input string) (*Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "agent.execute",
		attribute.String("agent", a.cfg.Name))
	result, err := a.execute(ctx, input)
	telemetry.EndSpan(span, err)
	if err != nil {
		a.emit(StatusError, progressSteps, map[string]any{"error": err.Error()})
		return nil, err
	}
	return result, nil
}

func (a *Agent) execute(ctx context.Context, input string) (*Result, error) {
	a.emit(StatusInitializing, 0, nil)

	if err := a.validateInput(input); err != nil {
		return nil, err
	}
	messages, err := a.assembleMessages(ctx, input)
	if err != nil {
		return nil, err
	}

	a.emit(StatusProcessing, 1, nil)

	resp, err := a.cfg.Provider.Completion(ctx, a.buildRequest(messages))
	if err != nil {
		return nil, err
	}

	a.emit(StatusPostProcessing, 2, nil)

	result, err := a.route(ctx, resp)
	if err != nil {
		return nil, err
	}

	if err := a.persistTurn(ctx, input, resp); err != nil {
		return nil, err
	}

	result.Usage = types.TokenUsage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}

	a.mu.Lock()
	a.usage.Add(result.Usage)
	result.StateVariables = a.state.Data()
	a.mu.Unlock()

	a.emit(StatusCompleted, 3, map[string]any{"tokens": resp.Usage.TotalTokens})
	return result, nil
}

func (a *Agent) validateInput(input string) error {
	if strings.TrimSpace(input) == "" {
		return types.NewError(types.ErrInvalidInput, "input is empty")
	}
	if a.cfg.MaxInputTokens > 0 {
		count := a.cfg.Tokenizer.CountTokens(input)
		if count > a.cfg.MaxInputTokens {
			return types.NewErrorf(types.ErrTokenLimitExceeded,
				"input is %d tokens, budget is %d", count, a.cfg.MaxInputTokens).
				WithDetail("tokens", count).
				WithDetail("budget", a.cfg.MaxInputTokens).
				WithRecoverySteps("shorten the input or raise MaxInputTokens")
		}
	}
	return nil
}

// assembleMessages builds system context, prior history, then the new
// user message.
func (a *Agent) assembleMessages(ctx context.Context, input string) ([]types.Message, error) {
	var messages []types.Message

	if a.cfg.SystemPrompt != "" {
		messages = append(messages, types.NewSystemMessage(a.cfg.SystemPrompt))
	}
	if a.cfg.IncludeStateContext {
		if rendered := a.renderStateContext(); rendered != "" {
			messages = append(messages, types.NewSystemMessage(rendered))
		}
	}

	if h := a.cfg.History; h != nil {
		if err := h.Load(ctx); err != nil {
			return nil, err
		}
		messages = append(messages, h.Messages()...)
	}

	return append(messages, types.NewUserMessage(input)), nil
}

func (a *Agent) renderStateContext() string {
	a.mu.Lock()
	st := a.state
	a.mu.Unlock()

	if st.Len() == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Context:\n")
	for _, key := range st.Keys() {
		if v, ok := st.Get(key); ok {
			fmt.Fprintf(&sb, "- %s: %v\n", key, v)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (a *Agent) buildRequest(messages []types.Message) *llm.ChatRequest {
	req := &llm.ChatRequest{
		Model:       a.cfg.Model,
		Messages:    messages,
		MaxTokens:   a.cfg.MaxTokens,
		Temperature: a.cfg.Temperature,
		TopP:        a.cfg.TopP,
		TopK:        a.cfg.TopK,
		Stop:        a.cfg.StopSequences,
		Timeout:     a.cfg.Timeout,
	}
	if a.cfg.Provider.SupportsNativeFunctionCalling() {
		req.Tools = a.tools.schemas()
	}
	return req
}

// route decides what the model's answer was: native tool calls, a
// textual function call, a schema-bound object, or plain text.
func (a *Agent) route(ctx context.Context, resp *llm.ChatResponse) (*Result, error) {
	text := resp.Text()

	if calls := resp.ToolCalls(); len(calls) > 0 {
		return a.dispatchNative(ctx, text, calls)
	}

	if !a.cfg.Provider.SupportsNativeFunctionCalling() {
		call, err := DetectFunctionCall(text)
		if err != nil {
			return nil, err
		}
		if call != nil {
			out, err := a.tools.dispatch(ctx, call.Name, call.Args)
			if err != nil {
				return nil, err
			}
			return &Result{
				Output: map[string]any{call.Name: out},
				Text:   text,
				Metadata: map[string]any{
					"routed": "function_call",
				},
			}, nil
		}
	}

	if s := a.cfg.OutputSchema; s != nil {
		validated, err := s.ValidateJSON(text)
		if err != nil {
			return nil, err
		}
		return &Result{
			Output:   validated,
			Text:     text,
			Metadata: map[string]any{"routed": "schema"},
		}, nil
	}

	return &Result{
		Output:   text,
		Text:     text,
		Metadata: map[string]any{"routed": "text"},
	}, nil
}

func (a *Agent) dispatchNative(ctx context.Context, text string, calls []types.ToolCall) (*Result, error) {
	outputs := make(map[string]any, len(calls))
	for _, call := range calls {
		args, err := decodeToolArgs(call.Arguments)
		if err != nil {
			return nil, err
		}
		out, err := a.tools.dispatch(ctx, call.Name, args)
		if err != nil {
			return nil, err
		}
		outputs[call.Name] = out
	}
	return &Result{
		Output:    outputs,
		Text:      text,
		ToolCalls: calls,
		Metadata:  map[string]any{"routed": "tool_calls"},
	}, nil
}

// persistTurn records the user input and assistant answer.
func (a *Agent) persistTurn(ctx context.Context, input string, resp *llm.ChatResponse) error {
	h := a.cfg.History
	if h == nil {
		return nil
	}
	if err := h.AddMessage(ctx, types.NewUserMessage(input)); err != nil {
		return err
	}
	assistant := types.NewAssistantMessage(resp.Text())
	if calls := resp.ToolCalls(); len(calls) > 0 {
		assistant = assistant.WithToolCalls(calls)
	}
	return h.AddMessage(ctx, assistant)
}

// ExecuteStream runs one turn and delivers the answer as text chunks.
// Providers with native streaming forward wire deltas untouched; others
// get the full answer split on whitespace with pacing between chunks.
func (a *Agent) ExecuteStream(ctx context.Context, input string) (*Result, error) {
	a.emit(StatusInitializing, 0, nil)

	if err := a.validateInput(input); err != nil {
		a.emit(StatusError, progressSteps, map[string]any{"error": err.Error()})
		return nil, err
	}
	messages, err := a.assembleMessages(ctx, input)
	if err != nil {
		a.emit(StatusError, progressSteps, map[string]any{"error": err.Error()})
		return nil, err
	}

	a.emit(StatusProcessing, 1, nil)

	if a.cfg.Provider.SupportsNativeStreaming() {
		return a.streamNative(ctx, input, messages)
	}
	return a.streamSimulated(ctx, input, messages)
}

func (a *Agent) streamNative(ctx context.Context, input string, messages []types.Message) (*Result, error) {
	chunks, err := a.cfg.Provider.Stream(ctx, a.buildRequest(messages))
	if err != nil {
		a.emit(StatusError, progressSteps, map[string]any{"error": err.Error()})
		return nil, err
	}

	out := make(chan string)
	go func() {
		defer close(out)
		var full strings.Builder
		for chunk := range chunks {
			if chunk.Err != nil {
				a.logger.Warn("stream aborted", zap.Error(chunk.Err))
				a.emit(StatusError, progressSteps, map[string]any{"error": chunk.Err.Error()})
				return
			}
			if chunk.Delta.Content == "" {
				continue
			}
			full.WriteString(chunk.Delta.Content)
			select {
			case out <- chunk.Delta.Content:
			case <-ctx.Done():
				return
			}
		}
		a.finishStream(ctx, input, full.String())
	}()

	return &Result{Stream: out, Metadata: map[string]any{"routed": "stream"}}, nil
}

func (a *Agent) streamSimulated(ctx context.Context, input string, messages []types.Message) (*Result, error) {
	resp, err := a.cfg.Provider.Completion(ctx, a.buildRequest(messages))
	if err != nil {
		a.emit(StatusError, progressSteps, map[string]any{"error": err.Error()})
		return nil, err
	}
	text := resp.Text()

	out := make(chan string)
	go func() {
		defer close(out)
		var pacer *rate.Limiter
		if a.streamDelay > 0 {
			pacer = rate.NewLimiter(rate.Every(a.streamDelay), 1)
		}
		words := strings.Fields(text)
		for i, w := range words {
			if pacer != nil {
				if err := pacer.Wait(ctx); err != nil {
					return
				}
			}
			if i < len(words)-1 {
				w += " "
			}
			select {
			case out <- w:
			case <-ctx.Done():
				return
			}
		}
		a.finishStream(ctx, input, text)
	}()

	return &Result{Stream: out, Text: text, Metadata: map[string]any{"routed": "stream"}}, nil
}

// finishStream persists the completed turn and emits the terminal
// transitions once the whole answer has been delivered.
func (a *Agent) finishStream(ctx context.Context, input, text string) {
	a.emit(StatusPostProcessing, 2, nil)
	if h := a.cfg.History; h != nil {
		if err := h.AddMessage(ctx, types.NewUserMessage(input)); err != nil {
			a.logger.Warn("persist user turn failed", zap.Error(err))
		} else if err := h.AddMessage(ctx, types.NewAssistantMessage(text)); err != nil {
			a.logger.Warn("persist assistant turn failed", zap.Error(err))
		}
	}
	a.emit(StatusCompleted, 3, nil)
}

// ToolSchemasJSON renders the registered tools' declarations, mainly
// for prompt construction against providers without native calling.
func (a *Agent) ToolSchemasJSON() (string, error) {
	schemas := a.tools.schemas()
	if len(schemas) == 0 {
		return "", nil
	}
	data, err := json.MarshalIndent(schemas, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
