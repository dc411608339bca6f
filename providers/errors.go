package providers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/agentkit-go/agentkit/types"
)

// wireError covers the common error envelope shapes: OpenAI's
// {"error":{"message":...}} doubles for Anthropic and Gemini closely
// enough that one decode attempt handles all three.
type wireError struct {
	Error struct {
		Type    string `json:"type,omitempty"`
		Code    any    `json:"code,omitempty"`
		Message string `json:"message"`
	} `json:"error"`
}

// ReadErrorMessage drains body and extracts the provider's error message,
// falling back to the raw bytes when the envelope does not parse.
func ReadErrorMessage(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, 64<<10))
	var we wireError
	if err := json.Unmarshal(data, &we); err == nil && we.Error.Message != "" {
		return we.Error.Message
	}
	return string(data)
}

// MapHTTPError converts a non-2xx provider response into the error
// taxonomy: auth failures are terminal with remediation hints, 429 and
// 5xx are retryable, everything else is a generic provider error that
// keeps the status and body for diagnostics.
func MapHTTPError(status int, msg, provider string) *types.Error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return types.NewError(types.ErrAuthentication, msg).
			WithHTTPStatus(status).
			WithProvider(provider).
			WithRecoverySteps(
				"verify the API key is set and has not been revoked",
				"confirm the key's account has access to the requested model",
			)
	case status == http.StatusTooManyRequests:
		return types.NewError(types.ErrRateLimitExceeded, msg).
			WithHTTPStatus(status).
			WithProvider(provider).
			WithRetryable(true)
	case status >= 500:
		return types.NewError(types.ErrNetwork, msg).
			WithHTTPStatus(status).
			WithProvider(provider).
			WithRetryable(true)
	default:
		return types.NewError(types.ErrProvider, msg).
			WithHTTPStatus(status).
			WithProvider(provider).
			WithDetail("status", status).
			WithDetail("body", msg)
	}
}

// TransportError wraps a failed round trip (DNS, connect, TLS, timeout)
// as a retryable network error.
func TransportError(err error, provider string) *types.Error {
	return types.NewError(types.ErrNetwork, err.Error()).
		WithCause(err).
		WithProvider(provider).
		WithRetryable(true)
}

// DecodeError wraps an unparseable success body.
func DecodeError(err error, provider string) *types.Error {
	return types.NewError(types.ErrProvider, "malformed provider response").
		WithCause(err).
		WithProvider(provider)
}
