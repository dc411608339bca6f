// Package metrics exposes prometheus instruments for the framework's hot
// paths. Collectors are registered on a private registry so embedding
// applications can expose them (or not) on their own terms.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry = prometheus.NewRegistry()

	providerRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentkit",
		Subsystem: "provider",
		Name:      "requests_total",
		Help:      "Provider chat completion requests by provider and outcome.",
	}, []string{"provider", "outcome"})

	providerLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "agentkit",
		Subsystem: "provider",
		Name:      "request_duration_seconds",
		Help:      "Provider chat completion latency.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"provider"})

	retryAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentkit",
		Subsystem: "provider",
		Name:      "retry_attempts_total",
		Help:      "Retry attempts by provider.",
	}, []string{"provider"})

	rateLimitWaits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentkit",
		Subsystem: "ratelimit",
		Name:      "waits_total",
		Help:      "Calls that blocked on the endpoint rate limiter.",
	}, []string{"endpoint"})

	cacheOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agentkit",
		Subsystem: "cache",
		Name:      "operations_total",
		Help:      "Cache lookups by tier and outcome.",
	}, []string{"tier", "outcome"})
)

func init() {
	registry.MustRegister(providerRequests, providerLatency, retryAttempts, rateLimitWaits, cacheOps)
}

// Registry returns the framework's collector registry for exposition.
func Registry() *prometheus.Registry {
	return registry
}

// ObserveProviderRequest records one completed provider call.
func ObserveProviderRequest(provider, outcome string, elapsed time.Duration) {
	providerRequests.WithLabelValues(provider, outcome).Inc()
	providerLatency.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// ObserveRetry records one retry attempt.
func ObserveRetry(provider string) {
	retryAttempts.WithLabelValues(provider).Inc()
}

// ObserveRateLimitWait records a call that had to wait for limiter capacity.
func ObserveRateLimitWait(endpoint string) {
	rateLimitWaits.WithLabelValues(endpoint).Inc()
}

// ObserveCache records a cache lookup outcome ("hit", "miss", "corrupt").
func ObserveCache(tier, outcome string) {
	cacheOps.WithLabelValues(tier, outcome).Inc()
}
