// Package providers holds the configuration types and HTTP error mapping
// shared by the concrete provider clients.
package providers

import "time"

// RateLimit configures one logical endpoint's local request budget. The
// client blocks once Limit calls have been made within Window; headers
// returned by the provider override the local estimate.
type RateLimit struct {
	Limit  int           `json:"limit" yaml:"limit"`
	Window time.Duration `json:"window" yaml:"window"`
}

// OpenAIConfig configures the OpenAI-style provider.
type OpenAIConfig struct {
	APIKey       string        `json:"api_key" yaml:"api_key"`
	BaseURL      string        `json:"base_url" yaml:"base_url"`
	Organization string        `json:"organization,omitempty" yaml:"organization,omitempty"`
	Model        string        `json:"model,omitempty" yaml:"model,omitempty"`
	Timeout      time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	MaxRetries   int           `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	RetryDelay   time.Duration `json:"retry_delay,omitempty" yaml:"retry_delay,omitempty"`
	RateLimit    *RateLimit    `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
}

// AnthropicConfig configures the Anthropic-style provider.
type AnthropicConfig struct {
	APIKey     string        `json:"api_key" yaml:"api_key"`
	BaseURL    string        `json:"base_url" yaml:"base_url"`
	Model      string        `json:"model,omitempty" yaml:"model,omitempty"`
	Timeout    time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	MaxRetries int           `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	RetryDelay time.Duration `json:"retry_delay,omitempty" yaml:"retry_delay,omitempty"`
	RateLimit  *RateLimit    `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
}

// GeminiConfig configures the Google-style provider.
type GeminiConfig struct {
	APIKey     string        `json:"api_key" yaml:"api_key"`
	BaseURL    string        `json:"base_url" yaml:"base_url"`
	Model      string        `json:"model,omitempty" yaml:"model,omitempty"`
	Timeout    time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	MaxRetries int           `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	RetryDelay time.Duration `json:"retry_delay,omitempty" yaml:"retry_delay,omitempty"`
	RateLimit  *RateLimit    `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
}
