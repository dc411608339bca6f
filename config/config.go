// Package config loads framework configuration from defaults, an optional
// YAML file, and environment-variable overrides, in that order. Load fails
// fast: the merged configuration is validated before it is returned.
package config

import (
	"strings"
	"time"

	"github.com/agentkit-go/agentkit/types"
)

// Config is the complete framework configuration.
type Config struct {
	// Provider selects and configures the LLM backend.
	Provider ProviderConfig `yaml:"provider" env:"PROVIDER"`

	// Agent holds the default agent tuning knobs.
	Agent AgentConfig `yaml:"agent" env:"AGENT"`

	// History configures per-thread message retention.
	History HistoryConfig `yaml:"history" env:"HISTORY"`

	// Cache configures the response cache.
	Cache CacheConfig `yaml:"cache" env:"CACHE"`

	// Redis configures the Redis store backend.
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database configures the SQL store backend.
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log" env:"LOG"`
}

// ProviderConfig selects the LLM backend and its transport settings.
type ProviderConfig struct {
	// Name is one of: openai, anthropic, gemini.
	Name       string        `yaml:"name" env:"NAME"`
	APIKey     string        `yaml:"api_key" env:"API_KEY"`
	BaseURL    string        `yaml:"base_url" env:"BASE_URL"`
	Model      string        `yaml:"model" env:"MODEL"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
	MaxRetries int           `yaml:"max_retries" env:"MAX_RETRIES"`
	RetryDelay time.Duration `yaml:"retry_delay" env:"RETRY_DELAY"`
	// RateLimit is requests allowed per RateWindow; zero disables the
	// client-side limiter.
	RateLimit  int           `yaml:"rate_limit" env:"RATE_LIMIT"`
	RateWindow time.Duration `yaml:"rate_window" env:"RATE_WINDOW"`
}

// AgentConfig carries the default generation parameters.
type AgentConfig struct {
	Name           string        `yaml:"name" env:"NAME"`
	SystemPrompt   string        `yaml:"system_prompt" env:"SYSTEM_PROMPT"`
	Temperature    float64       `yaml:"temperature" env:"TEMPERATURE"`
	TopP           float64       `yaml:"top_p" env:"TOP_P"`
	TopK           int           `yaml:"top_k" env:"TOP_K"`
	MaxTokens      int           `yaml:"max_tokens" env:"MAX_TOKENS"`
	MaxInputTokens int           `yaml:"max_input_tokens" env:"MAX_INPUT_TOKENS"`
	StopSequences  []string      `yaml:"stop_sequences" env:"STOP_SEQUENCES"`
	Timeout        time.Duration `yaml:"timeout" env:"TIMEOUT"`
	Stream         bool          `yaml:"stream" env:"STREAM"`
	ThreadID       string        `yaml:"thread_id" env:"THREAD_ID"`
}

// HistoryConfig bounds per-thread message retention.
type HistoryConfig struct {
	MaxMessages   int           `yaml:"max_messages" env:"MAX_MESSAGES"`
	MaxTokens     int           `yaml:"max_tokens" env:"MAX_TOKENS"`
	IdleTimeout   time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`
}

// CacheConfig configures the two-tier response cache.
type CacheConfig struct {
	Enabled  bool          `yaml:"enabled" env:"ENABLED"`
	TTL      time.Duration `yaml:"ttl" env:"TTL"`
	MaxItems int           `yaml:"max_items" env:"MAX_ITEMS"`
	DiskDir  string        `yaml:"disk_dir" env:"DISK_DIR"`
	MaxBytes int64         `yaml:"max_bytes" env:"MAX_BYTES"`
}

// RedisConfig configures the Redis-backed store.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
	PoolSize int    `yaml:"pool_size" env:"POOL_SIZE"`
}

// DatabaseConfig configures the SQL-backed store.
type DatabaseConfig struct {
	// Driver currently supports sqlite.
	Driver string `yaml:"driver" env:"DRIVER"`
	DSN    string `yaml:"dsn" env:"DSN"`
}

// LogConfig configures zap.
type LogConfig struct {
	// Level is one of: debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format is json or console.
	Format string `yaml:"format" env:"FORMAT"`
}

// DefaultConfig returns the configuration used when nothing else is set.
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			Name:       "openai",
			Timeout:    30 * time.Second,
			MaxRetries: 3,
			RetryDelay: time.Second,
			RateWindow: time.Minute,
		},
		Agent: AgentConfig{
			Name:        "agent",
			Temperature: 0.7,
			MaxTokens:   4096,
			Timeout:     30 * time.Second,
			ThreadID:    "default",
		},
		History: HistoryConfig{
			MaxMessages:   100,
			MaxTokens:     8000,
			IdleTimeout:   30 * time.Minute,
			SweepInterval: 5 * time.Minute,
		},
		Cache: CacheConfig{
			TTL:      time.Hour,
			MaxItems: 1000,
			MaxBytes: 64 << 20,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "agentkit.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

var (
	validProviders = map[string]bool{"openai": true, "anthropic": true, "gemini": true}
	validLevels    = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validFormats   = map[string]bool{"json": true, "console": true}
)

// Validate checks the merged configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if !validProviders[c.Provider.Name] {
		errs = append(errs, "provider.name must be one of openai, anthropic, gemini")
	}
	if c.Provider.MaxRetries < 0 {
		errs = append(errs, "provider.max_retries must be non-negative")
	}
	if c.Provider.RateLimit < 0 {
		errs = append(errs, "provider.rate_limit must be non-negative")
	}
	if c.Provider.RateLimit > 0 && c.Provider.RateWindow <= 0 {
		errs = append(errs, "provider.rate_window must be positive when rate_limit is set")
	}

	if c.Agent.Temperature < 0 || c.Agent.Temperature > 2 {
		errs = append(errs, "agent.temperature must be in [0, 2]")
	}
	if c.Agent.MaxTokens < 0 {
		errs = append(errs, "agent.max_tokens must be non-negative")
	}
	if c.Agent.MaxInputTokens < 0 {
		errs = append(errs, "agent.max_input_tokens must be non-negative")
	}
	if c.Agent.TopK < 0 {
		errs = append(errs, "agent.top_k must be non-negative")
	}

	if c.History.MaxMessages < 0 {
		errs = append(errs, "history.max_messages must be non-negative")
	}
	if c.History.MaxTokens < 0 {
		errs = append(errs, "history.max_tokens must be non-negative")
	}

	if c.Cache.MaxItems < 0 {
		errs = append(errs, "cache.max_items must be non-negative")
	}
	if c.Cache.MaxBytes < 0 {
		errs = append(errs, "cache.max_bytes must be non-negative")
	}

	if c.Database.Driver != "sqlite" {
		errs = append(errs, "database.driver must be sqlite")
	}

	if !validLevels[c.Log.Level] {
		errs = append(errs, "log.level must be one of debug, info, warn, error")
	}
	if !validFormats[c.Log.Format] {
		errs = append(errs, "log.format must be json or console")
	}

	if len(errs) > 0 {
		return types.NewErrorf(types.ErrInvalidConfiguration, "invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}
