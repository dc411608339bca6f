// Package retry implements the request-failure retry loop shared by all
// provider clients: exponential backoff with bounded jitter, per-attempt
// timeouts, and error-kind filtering.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/agentkit-go/agentkit/types"
)

// Policy configures the retry loop. The zero value is not usable; start from
// DefaultPolicy.
type Policy struct {
	// MaxRetries is the number of attempts after the first (0 disables retry).
	MaxRetries int
	// RetryDelay is the base delay; attempt n waits RetryDelay * 2^(n-1).
	RetryDelay time.Duration
	// MaxDelay caps the computed backoff.
	MaxDelay time.Duration
	// JitterCap bounds the random additive jitter. Jitter never exceeds a
	// quarter of the computed delay, so successive delays stay non-decreasing.
	JitterCap time.Duration
	// AttemptTimeout bounds each individual attempt.
	AttemptTimeout time.Duration
	// OnRetry is invoked before every retry sleep.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy matches the framework defaults: 3 retries, 1s base delay
// doubling up to 60s, jitter up to 2.5s, 30s per attempt.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxRetries:     3,
		RetryDelay:     time.Second,
		MaxDelay:       60 * time.Second,
		JitterCap:      2500 * time.Millisecond,
		AttemptTimeout: 30 * time.Second,
	}
}

// Retryer runs functions under a retry policy.
type Retryer struct {
	policy *Policy
	logger *zap.Logger
	// rand is swappable for deterministic tests.
	rand func() float64
}

// New creates a Retryer, normalizing out-of-range policy values.
func New(policy *Policy, logger *zap.Logger) *Retryer {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.RetryDelay <= 0 {
		policy.RetryDelay = time.Second
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 60 * time.Second
	}
	if policy.AttemptTimeout <= 0 {
		policy.AttemptTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retryer{policy: policy, logger: logger, rand: rand.Float64}
}

// Do runs fn under the policy. Each attempt gets its own timeout; an expired
// attempt surfaces as a retryable Timeout error. Non-retryable errors (per
// types.IsRetryable, with plain errors treated as transient) stop the loop
// immediately. Exhausting the budget returns a Timeout error wrapping the
// last underlying failure.
func (r *Retryer) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := DoWithResult(r, ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoWithResult is the type-safe generic retry entry point.
func DoWithResult[T any](r *Retryer, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.Delay(attempt)
			r.logger.Debug("retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", r.policy.MaxRetries),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if r.policy.OnRetry != nil {
				r.policy.OnRetry(attempt, lastErr, delay)
			}
			select {
			case <-ctx.Done():
				return zero, types.NewError(types.ErrTimeout, "retry cancelled").WithCause(ctx.Err())
			case <-time.After(delay):
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, r.policy.AttemptTimeout)
		result, err := fn(attemptCtx)
		timedOut := attemptCtx.Err() == context.DeadlineExceeded
		cancel()

		if err == nil {
			if attempt > 0 {
				r.logger.Info("retry succeeded", zap.Int("attempt", attempt))
			}
			return result, nil
		}

		if timedOut {
			err = types.NewError(types.ErrTimeout, "attempt timed out").
				WithRetryable(true).
				WithCause(err)
		}
		lastErr = err

		if !retryable(err) {
			return zero, err
		}
	}

	r.logger.Warn("retry budget exhausted",
		zap.Int("attempts", r.policy.MaxRetries+1),
		zap.Error(lastErr),
	)
	return zero, types.NewErrorf(types.ErrTimeout, "all %d attempts failed", r.policy.MaxRetries+1).
		WithCause(lastErr)
}

// Delay computes the backoff before the given attempt (attempt >= 1).
func (r *Retryer) Delay(attempt int) time.Duration {
	delay := float64(r.policy.RetryDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(r.policy.MaxDelay) {
		delay = float64(r.policy.MaxDelay)
	}

	jitterCap := delay / 4
	if c := float64(r.policy.JitterCap); c > 0 && c < jitterCap {
		jitterCap = c
	}
	delay += r.rand() * jitterCap

	return time.Duration(delay)
}

// retryable treats typed errors per their Retryable flag and anything else
// (raw transport errors) as transient.
func retryable(err error) bool {
	if code := types.GetErrorCode(err); code != "" {
		return types.IsRetryable(err)
	}
	return true
}
