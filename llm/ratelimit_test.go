package llm

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAcquireUnconfiguredEndpointIsFree(t *testing.T) {
	l := NewEndpointLimiter(zap.NewNop())

	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Acquire(context.Background(), "messages"))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestAcquireBlocksSurplusCallUntilWindowEnd(t *testing.T) {
	l := NewEndpointLimiter(zap.NewNop())
	window := 300 * time.Millisecond
	l.Configure("messages", 3, window)

	start := time.Now()
	// The first `limit` calls spend the window budget without blocking.
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(context.Background(), "messages"))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	// The limit+1th call must sleep out the rest of the window.
	require.NoError(t, l.Acquire(context.Background(), "messages"))
	assert.GreaterOrEqual(t, time.Since(start), window)

	// It lands in the fresh window, so two more calls pass immediately.
	require.NoError(t, l.Acquire(context.Background(), "messages"))
	require.NoError(t, l.Acquire(context.Background(), "messages"))
	assert.Less(t, time.Since(start), window+100*time.Millisecond)
}

func TestAcquireHonorsContext(t *testing.T) {
	l := NewEndpointLimiter(zap.NewNop())
	l.Configure("messages", 1, time.Hour)
	require.NoError(t, l.Acquire(context.Background(), "messages"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Acquire(ctx, "messages")
	assert.Error(t, err)
}

func TestObserveHeadersRetryAfterBlocks(t *testing.T) {
	l := NewEndpointLimiter(zap.NewNop())
	l.Configure("messages", 100, time.Second)

	h := http.Header{}
	h.Set("Retry-After", "0.1")
	l.ObserveHeaders("messages", h)

	start := time.Now()
	require.NoError(t, l.Acquire(context.Background(), "messages"))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestObserveHeadersRemainingZeroBlocksUntilReset(t *testing.T) {
	l := NewEndpointLimiter(zap.NewNop())
	l.Configure("messages", 100, time.Second)

	h := http.Header{}
	h.Set("X-RateLimit-Remaining", "0")
	h.Set("X-RateLimit-Reset", "0.1")
	l.ObserveHeaders("messages", h)

	start := time.Now()
	require.NoError(t, l.Acquire(context.Background(), "messages"))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestObserveHeadersParseFailureKeepsLocalEstimate(t *testing.T) {
	l := NewEndpointLimiter(zap.NewNop())
	l.Configure("messages", 100, time.Second)

	h := http.Header{}
	h.Set("Retry-After", "soon")
	h.Set("X-RateLimit-Remaining", "lots")
	l.ObserveHeaders("messages", h)

	start := time.Now()
	require.NoError(t, l.Acquire(context.Background(), "messages"))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}
