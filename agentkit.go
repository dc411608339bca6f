// Package agentkit provides a top-level convenience entry point for creating
// agents with minimal boilerplate.
//
// Usage:
//
//	import "github.com/agentkit-go/agentkit"
//
//	a, err := agentkit.New(agentkit.WithOpenAI("gpt-4o-mini"))
//	a, err := agentkit.New(agentkit.WithAnthropic("claude-3-5-sonnet-20241022"))
//	a, err := agentkit.New(agentkit.WithProvider(myProvider))
//
// For full control, build agent.Config directly; this package only covers the
// common cases.
package agentkit

import (
	"os"

	"go.uber.org/zap"

	"github.com/agentkit-go/agentkit/agent"
	"github.com/agentkit-go/agentkit/config"
	"github.com/agentkit-go/agentkit/llm"
	"github.com/agentkit-go/agentkit/providers"
	"github.com/agentkit-go/agentkit/providers/anthropic"
	"github.com/agentkit-go/agentkit/providers/gemini"
	"github.com/agentkit-go/agentkit/providers/openai"
	"github.com/agentkit-go/agentkit/types"
)

// Option configures the agent created by New.
type Option func(*options)

type options struct {
	name         string
	model        string
	systemPrompt string
	provider     llm.Provider
	logger       *zap.Logger

	// Provider shortcut fields, used when provider is nil.
	providerName string
	apiKey       string
}

// WithProvider sets a pre-built LLM provider.
func WithProvider(p llm.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithOpenAI selects the OpenAI provider with the given model. The API key is
// read from OPENAI_API_KEY unless WithAPIKey overrides it.
func WithOpenAI(model string) Option {
	return func(o *options) {
		o.providerName = "openai"
		o.model = model
		if o.apiKey == "" {
			o.apiKey = os.Getenv("OPENAI_API_KEY")
		}
	}
}

// WithAnthropic selects the Anthropic provider with the given model. The API
// key is read from ANTHROPIC_API_KEY unless WithAPIKey overrides it.
func WithAnthropic(model string) Option {
	return func(o *options) {
		o.providerName = "anthropic"
		o.model = model
		if o.apiKey == "" {
			o.apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
}

// WithGemini selects the Google provider with the given model. The API key is
// read from GEMINI_API_KEY unless WithAPIKey overrides it.
func WithGemini(model string) Option {
	return func(o *options) {
		o.providerName = "gemini"
		o.model = model
		if o.apiKey == "" {
			o.apiKey = os.Getenv("GEMINI_API_KEY")
		}
	}
}

// WithModel overrides the model set by a provider shortcut.
func WithModel(model string) Option {
	return func(o *options) { o.model = model }
}

// WithName sets the agent name.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithSystemPrompt sets the system prompt.
func WithSystemPrompt(prompt string) Option {
	return func(o *options) { o.systemPrompt = prompt }
}

// WithLogger sets a custom zap logger. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithAPIKey overrides the API key for provider shortcuts.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// New creates an agent with minimal configuration. A provider must be given
// via WithProvider or one of the provider shortcuts.
func New(opts ...Option) (*agent.Agent, error) {
	o := &options{name: "agentkit-agent"}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	provider := o.provider
	if provider == nil {
		var err error
		provider, err = buildProvider(o.providerName, o.apiKey, o.model, o.logger)
		if err != nil {
			return nil, err
		}
	}

	return agent.New(agent.Config{
		Name:         o.name,
		Provider:     provider,
		Model:        o.model,
		SystemPrompt: o.systemPrompt,
	}, o.logger)
}

// NewFromConfig builds an agent from a loaded configuration. The logger may
// be nil, in which case one is built from the log section.
func NewFromConfig(cfg *config.Config, logger *zap.Logger) (*agent.Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		var err error
		logger, err = cfg.Log.BuildLogger()
		if err != nil {
			return nil, err
		}
	}

	provider, err := providerFromConfig(cfg.Provider, logger)
	if err != nil {
		return nil, err
	}
	return agent.New(agent.Config{
		Name:           cfg.Agent.Name,
		Provider:       provider,
		Model:          cfg.Provider.Model,
		SystemPrompt:   cfg.Agent.SystemPrompt,
		Temperature:    float32(cfg.Agent.Temperature),
		TopP:           float32(cfg.Agent.TopP),
		TopK:           cfg.Agent.TopK,
		MaxTokens:      cfg.Agent.MaxTokens,
		StopSequences:  cfg.Agent.StopSequences,
		Timeout:        cfg.Agent.Timeout,
		MaxInputTokens: cfg.Agent.MaxInputTokens,
	}, logger)
}

func buildProvider(name, apiKey, model string, logger *zap.Logger) (llm.Provider, error) {
	switch name {
	case "openai":
		return openai.New(providers.OpenAIConfig{APIKey: apiKey, Model: model}, logger), nil
	case "anthropic":
		return anthropic.New(providers.AnthropicConfig{APIKey: apiKey, Model: model}, logger), nil
	case "gemini":
		return gemini.New(providers.GeminiConfig{APIKey: apiKey, Model: model}, logger), nil
	case "":
		return nil, types.NewError(types.ErrInvalidConfiguration,
			"no provider configured: use WithProvider or a provider shortcut")
	default:
		return nil, types.NewErrorf(types.ErrInvalidConfiguration, "unknown provider %q", name)
	}
}

func providerFromConfig(pc config.ProviderConfig, logger *zap.Logger) (llm.Provider, error) {
	var rl *providers.RateLimit
	if pc.RateLimit > 0 {
		rl = &providers.RateLimit{Limit: pc.RateLimit, Window: pc.RateWindow}
	}
	switch pc.Name {
	case "openai":
		return openai.New(providers.OpenAIConfig{
			APIKey:     pc.APIKey,
			BaseURL:    pc.BaseURL,
			Model:      pc.Model,
			Timeout:    pc.Timeout,
			MaxRetries: pc.MaxRetries,
			RetryDelay: pc.RetryDelay,
			RateLimit:  rl,
		}, logger), nil
	case "anthropic":
		return anthropic.New(providers.AnthropicConfig{
			APIKey:     pc.APIKey,
			BaseURL:    pc.BaseURL,
			Model:      pc.Model,
			Timeout:    pc.Timeout,
			MaxRetries: pc.MaxRetries,
			RetryDelay: pc.RetryDelay,
			RateLimit:  rl,
		}, logger), nil
	case "gemini":
		return gemini.New(providers.GeminiConfig{
			APIKey:     pc.APIKey,
			BaseURL:    pc.BaseURL,
			Model:      pc.Model,
			Timeout:    pc.Timeout,
			MaxRetries: pc.MaxRetries,
			RetryDelay: pc.RetryDelay,
			RateLimit:  rl,
		}, logger), nil
	default:
		return nil, types.NewErrorf(types.ErrInvalidConfiguration, "unknown provider %q", pc.Name)
	}
}
