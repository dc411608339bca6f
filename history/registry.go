package history

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentkit-go/agentkit/store"
)

const (
	// DefaultIdleTimeout is how long an untouched history stays cached.
	DefaultIdleTimeout = time.Hour
	// DefaultSweepInterval is how often the idle sweep runs.
	DefaultSweepInterval = 5 * time.Minute
)

// Registry caches one History instance per thread ID so repeated lookups
// with the same ID return the same object. It is an explicit, injectable
// object with its own lifecycle (Close stops the sweeper) rather than a
// package-level singleton, so tests and multi-tenant processes can hold
// independent registries.
type Registry struct {
	store  store.Store
	cfg    Config
	logger *zap.Logger

	mu        sync.Mutex
	histories map[string]*History

	idleTimeout   time.Duration
	sweepInterval time.Duration
	done          chan struct{}
	closeOnce     sync.Once
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithIdleTimeout overrides the idle eviction window.
func WithIdleTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.idleTimeout = d
		}
	}
}

// WithSweepInterval overrides how often idle histories are collected.
func WithSweepInterval(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.sweepInterval = d
		}
	}
}

// NewRegistry creates a Registry whose histories share st and cfg. The idle
// sweeper starts immediately; call Close to stop it.
func NewRegistry(st store.Store, cfg Config, logger *zap.Logger, opts ...RegistryOption) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		store:         st,
		cfg:           cfg,
		logger:        logger.With(zap.String("component", "history_registry")),
		histories:     make(map[string]*History),
		idleTimeout:   DefaultIdleTimeout,
		sweepInterval: DefaultSweepInterval,
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	go r.sweepLoop()
	return r
}

// Get returns the History for threadID, creating it lazily on first
// reference. The same ID always yields the same instance until eviction.
func (r *Registry) Get(threadID string) *History {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.histories[threadID]; ok {
		return h
	}
	h := NewHistory(threadID, r.store, r.cfg, r.logger)
	h.onClear = func() { r.Evict(threadID) }
	r.histories[threadID] = h
	return h
}

// Evict drops the cached instance for threadID. The persisted record is
// untouched; the next Get creates a fresh instance that can Load it.
func (r *Registry) Evict(threadID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.histories, threadID)
}

// Len returns the number of cached histories.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.histories)
}

// Close stops the idle sweeper.
func (r *Registry) Close() {
	r.closeOnce.Do(func() { close(r.done) })
}

func (r *Registry) sweepLoop() {
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *Registry) sweep() {
	cutoff := time.Now().Add(-r.idleTimeout)

	r.mu.Lock()
	var evicted []string
	for id, h := range r.histories {
		if h.idleSince(cutoff) {
			delete(r.histories, id)
			evicted = append(evicted, id)
		}
	}
	r.mu.Unlock()

	if len(evicted) > 0 {
		r.logger.Debug("evicted idle histories", zap.Strings("thread_ids", evicted))
	}
}
