package providers

import (
	"strings"
	"time"

	"github.com/agentkit-go/agentkit/llm"
)

// ChooseModel picks the request's model, then the configured default,
// then fallback.
func ChooseModel(req *llm.ChatRequest, configured, fallback string) string {
	if req != nil && req.Model != "" {
		return req.Model
	}
	if configured != "" {
		return configured
	}
	return fallback
}

// ChooseMaxTokens returns the request's max tokens or fallback. Some
// providers require the field on every request.
func ChooseMaxTokens(req *llm.ChatRequest, fallback int) int {
	if req != nil && req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return fallback
}

// ChooseTimeout returns the per-call timeout: request override first,
// then the configured client default, then fallback.
func ChooseTimeout(req *llm.ChatRequest, configured, fallback time.Duration) time.Duration {
	if req != nil && req.Timeout > 0 {
		return req.Timeout
	}
	if configured > 0 {
		return configured
	}
	return fallback
}

// JoinURL glues a base URL and path without doubling slashes.
func JoinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
