package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentkit-go/agentkit/types"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Provider.Name)
	assert.Equal(t, 3, cfg.Provider.MaxRetries)
	assert.Equal(t, 0.7, cfg.Agent.Temperature)
	assert.Equal(t, 100, cfg.History.MaxMessages)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
provider:
  name: anthropic
  model: claude-3-5-sonnet-20241022
  timeout: 10s
agent:
  temperature: 0.2
  stop_sequences: [END, STOP]
  stream: true
history:
  max_messages: 20
cache:
  enabled: true
  ttl: 5m
`)
	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.Provider.Name)
	assert.Equal(t, "claude-3-5-sonnet-20241022", cfg.Provider.Model)
	assert.Equal(t, 10*time.Second, cfg.Provider.Timeout)
	assert.Equal(t, 0.2, cfg.Agent.Temperature)
	assert.Equal(t, []string{"END", "STOP"}, cfg.Agent.StopSequences)
	assert.True(t, cfg.Agent.Stream)
	assert.Equal(t, 20, cfg.History.MaxMessages)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)

	assert.Equal(t, 3, cfg.Provider.MaxRetries, "unset keys keep their defaults")
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Provider.Name)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
provider:
  name: anthropic
`)
	t.Setenv("AGENTKIT_PROVIDER_NAME", "gemini")
	t.Setenv("AGENTKIT_PROVIDER_API_KEY", "env-key")
	t.Setenv("AGENTKIT_AGENT_TEMPERATURE", "1.5")
	t.Setenv("AGENTKIT_AGENT_TIMEOUT", "45s")
	t.Setenv("AGENTKIT_AGENT_STOP_SEQUENCES", "a, b ,c")
	t.Setenv("AGENTKIT_CACHE_ENABLED", "true")
	t.Setenv("AGENTKIT_HISTORY_MAX_MESSAGES", "7")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "gemini", cfg.Provider.Name)
	assert.Equal(t, "env-key", cfg.Provider.APIKey)
	assert.Equal(t, 1.5, cfg.Agent.Temperature)
	assert.Equal(t, 45*time.Second, cfg.Agent.Timeout)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Agent.StopSequences)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 7, cfg.History.MaxMessages)
}

func TestLoadCustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_PROVIDER_NAME", "anthropic")

	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.Provider.Name)
}

func TestLoadValidatesEagerly(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "unknown provider", yaml: "provider:\n  name: cohere\n"},
		{name: "temperature out of range", yaml: "agent:\n  temperature: 3.0\n"},
		{name: "negative retries", yaml: "provider:\n  max_retries: -1\n"},
		{name: "bad log level", yaml: "log:\n  level: loud\n"},
		{name: "unsupported driver", yaml: "database:\n  driver: oracle\n"},
		{name: "rate limit without window", yaml: "provider:\n  rate_limit: 10\n  rate_window: 0s\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, tt.yaml)
			_, err := NewLoader().WithConfigPath(path).Load()
			require.Error(t, err)
			assert.Equal(t, types.ErrInvalidConfiguration, types.GetErrorCode(err))
		})
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfigFile(t, "provider: [not a map")
	_, err := NewLoader().WithConfigPath(path).Load()
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidConfiguration, types.GetErrorCode(err))
}

func TestLoadRejectsBadEnvValue(t *testing.T) {
	t.Setenv("AGENTKIT_AGENT_MAX_TOKENS", "lots")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidConfiguration, types.GetErrorCode(err))
}

func TestBuildLogger(t *testing.T) {
	logger, err := (&LogConfig{Level: "debug", Format: "console"}).BuildLogger()
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = (&LogConfig{Level: "noisy", Format: "json"}).BuildLogger()
	require.Error(t, err)
}
