package llm

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentkit-go/agentkit/internal/metrics"
	"github.com/agentkit-go/agentkit/types"
)

// EndpointLimiter rate-limits calls per logical endpoint (e.g. "messages",
// "embeddings"). The local estimate is a fixed window of limit calls; a call
// past the budget blocks until the current window ends. Server-declared
// rate-limit headers, when present, take precedence over the local window.
type EndpointLimiter struct {
	mu        sync.Mutex
	endpoints map[string]*endpointState
	logger    *zap.Logger
}

type endpointState struct {
	limit       int
	window      time.Duration
	windowStart time.Time
	count       int
	// blockedUntil is set from server headers when the upstream reports the
	// quota as exhausted. It overrides the local window until it passes.
	blockedUntil time.Time
}

// NewEndpointLimiter creates an EndpointLimiter.
func NewEndpointLimiter(logger *zap.Logger) *EndpointLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EndpointLimiter{
		endpoints: make(map[string]*endpointState),
		logger:    logger.With(zap.String("component", "ratelimit")),
	}
}

// Configure sets the request budget for an endpoint. Unconfigured endpoints
// are unlimited.
func (l *EndpointLimiter) Configure(endpoint string, limit int, window time.Duration) {
	if limit <= 0 || window <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.endpoints[endpoint] = &endpointState{limit: limit, window: window}
}

// Acquire blocks until the endpoint admits one more call, or ctx is done.
// When the window budget is spent the caller sleeps until the window
// boundary, then competes for a slot in the fresh window.
func (l *EndpointLimiter) Acquire(ctx context.Context, endpoint string) error {
	for {
		l.mu.Lock()
		st, ok := l.endpoints[endpoint]
		if !ok {
			l.mu.Unlock()
			return nil
		}

		now := time.Now()
		var wait time.Duration
		switch {
		case st.blockedUntil.After(now):
			wait = st.blockedUntil.Sub(now)
		case st.limit <= 0:
			l.mu.Unlock()
			return nil
		default:
			if st.windowStart.IsZero() || now.Sub(st.windowStart) >= st.window {
				st.windowStart = now
				st.count = 0
			}
			if st.count < st.limit {
				st.count++
				l.mu.Unlock()
				return nil
			}
			wait = st.window - now.Sub(st.windowStart)
		}
		l.mu.Unlock()

		metrics.ObserveRateLimitWait(endpoint)
		l.logger.Debug("waiting for rate limit window",
			zap.String("endpoint", endpoint),
			zap.Duration("wait", wait),
		)
		select {
		case <-ctx.Done():
			return types.NewError(types.ErrTimeout, "rate limit wait cancelled").WithCause(ctx.Err())
		case <-time.After(wait):
		}
	}
}

// ObserveHeaders folds server rate-limit headers into the endpoint state.
// Recognized: X-RateLimit-Remaining with X-RateLimit-Reset (seconds until
// reset), and Retry-After (seconds). Parse failures keep the local estimate
// and are logged at Warn so operators can see drift from upstream contracts.
func (l *EndpointLimiter) ObserveHeaders(endpoint string, h http.Header) {
	if h == nil {
		return
	}

	var blockedUntil time.Time
	if retryAfter := h.Get("Retry-After"); retryAfter != "" {
		secs, err := strconv.ParseFloat(retryAfter, 64)
		if err != nil {
			l.logger.Warn("unparseable Retry-After header, keeping local estimate",
				zap.String("endpoint", endpoint),
				zap.String("value", retryAfter),
			)
		} else {
			blockedUntil = time.Now().Add(time.Duration(secs * float64(time.Second)))
		}
	}

	if remaining := h.Get("X-RateLimit-Remaining"); remaining != "" {
		rem, err := strconv.Atoi(remaining)
		if err != nil {
			l.logger.Warn("unparseable X-RateLimit-Remaining header, keeping local estimate",
				zap.String("endpoint", endpoint),
				zap.String("value", remaining),
			)
		} else if rem <= 0 {
			reset := h.Get("X-RateLimit-Reset")
			secs, err := strconv.ParseFloat(reset, 64)
			if err != nil {
				l.logger.Warn("unparseable X-RateLimit-Reset header, keeping local estimate",
					zap.String("endpoint", endpoint),
					zap.String("value", reset),
				)
			} else if until := time.Now().Add(time.Duration(secs * float64(time.Second))); until.After(blockedUntil) {
				blockedUntil = until
			}
		}
	}

	if blockedUntil.IsZero() {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.endpoints[endpoint]
	if !ok {
		st = &endpointState{}
		l.endpoints[endpoint] = st
	}
	if blockedUntil.After(st.blockedUntil) {
		st.blockedUntil = blockedUntil
	}
}
