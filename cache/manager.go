package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentkit-go/agentkit/internal/metrics"
)

// ErrCacheMiss is returned by Get when the key is absent or expired.
var ErrCacheMiss = fmt.Errorf("cache miss")

// IsCacheMiss reports whether err is a cache miss.
func IsCacheMiss(err error) bool {
	return err == ErrCacheMiss
}

// Entry is one cached value with its bookkeeping. ExpiresAt is compared
// against the wall clock on every read; an entry whose TTL was zero is
// expired the moment it is written.
type Entry struct {
	Key       string    `json:"key"`
	Value     any       `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Tags      []string  `json:"tags,omitempty"`
	Priority  int       `json:"priority"`
}

func (e *Entry) expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

func (e *Entry) hasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// SetOptions carries the per-entry knobs for Set.
type SetOptions struct {
	// TTL bounds the entry's lifetime. Zero means immediately expired.
	TTL time.Duration

	// Tags group entries for ClearTag.
	Tags []string

	// Priority is recorded on the entry for callers that rank results.
	Priority int
}

// Config configures a cache Manager.
type Config struct {
	// MaxItems caps the memory tier. Above it the lowest-access-count
	// entries are evicted first.
	MaxItems int `yaml:"max_items" json:"max_items"`

	// DiskDir enables the persisted tier when non-empty. Entries are
	// written as one JSON file per content-hashed key.
	DiskDir string `yaml:"disk_dir" json:"disk_dir"`

	// MaxBytes caps the persisted tier. Above it the oldest-modified
	// files are deleted first until under budget.
	MaxBytes int64 `yaml:"max_bytes" json:"max_bytes"`
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		MaxItems: 1000,
		MaxBytes: 64 << 20,
	}
}

type memEntry struct {
	entry       *Entry
	accessCount uint64
}

// Manager is the two-tier cache. The memory map is the only shared
// mutable structure; every read-modify-write sequence holds mu.
type Manager struct {
	config Config
	logger *zap.Logger
	disk   *diskTier

	mu      sync.Mutex
	entries map[string]*memEntry

	now func() time.Time
}

// NewManager creates a cache manager. When cfg.DiskDir is set the
// directory is created if needed.
func NewManager(cfg Config, logger *zap.Logger) (*Manager, error) {
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = DefaultConfig().MaxItems
	}
	m := &Manager{
		config:  cfg,
		logger:  logger.With(zap.String("component", "cache")),
		entries: make(map[string]*memEntry),
		now:     time.Now,
	}
	if cfg.DiskDir != "" {
		dt, err := newDiskTier(cfg.DiskDir, cfg.MaxBytes, m.logger)
		if err != nil {
			return nil, err
		}
		m.disk = dt
	}
	return m, nil
}

// Set stores value under key. A zero opts.TTL produces an entry that is
// already expired, which callers use to invalidate without removing.
func (m *Manager) Set(ctx context.Context, key string, value any, opts SetOptions) error {
	now := m.now()
	e := &Entry{
		Key:       key,
		Value:     value,
		CreatedAt: now,
		ExpiresAt: now.Add(opts.TTL),
		Tags:      opts.Tags,
		Priority:  opts.Priority,
	}

	m.mu.Lock()
	m.entries[key] = &memEntry{entry: e}
	m.evictLocked()
	m.mu.Unlock()

	if m.disk != nil {
		if err := m.disk.write(ctx, e); err != nil {
			m.logger.Warn("disk cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return nil
}

// Get returns the cached value for key, consulting the memory tier first
// and falling back to disk. A disk hit is promoted into memory.
func (m *Manager) Get(ctx context.Context, key string) (any, error) {
	now := m.now()

	m.mu.Lock()
	if me, ok := m.entries[key]; ok {
		if me.entry.expired(now) {
			delete(m.entries, key)
			m.mu.Unlock()
			metrics.ObserveCache("memory", "miss")
		} else {
			me.accessCount++
			v := me.entry.Value
			m.mu.Unlock()
			metrics.ObserveCache("memory", "hit")
			return v, nil
		}
	} else {
		m.mu.Unlock()
		metrics.ObserveCache("memory", "miss")
	}

	if m.disk == nil {
		return nil, ErrCacheMiss
	}
	e, err := m.disk.read(ctx, key)
	if err != nil {
		metrics.ObserveCache("disk", "miss")
		return nil, ErrCacheMiss
	}
	if e.expired(now) {
		m.disk.remove(ctx, key)
		metrics.ObserveCache("disk", "miss")
		return nil, ErrCacheMiss
	}
	metrics.ObserveCache("disk", "hit")

	m.mu.Lock()
	m.entries[key] = &memEntry{entry: e, accessCount: 1}
	m.evictLocked()
	m.mu.Unlock()
	return e.Value, nil
}

// Remove deletes the given keys from both tiers. Absent keys are not an
// error.
func (m *Manager) Remove(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	for _, k := range keys {
		delete(m.entries, k)
	}
	m.mu.Unlock()

	if m.disk != nil {
		for _, k := range keys {
			m.disk.remove(ctx, k)
		}
	}
	return nil
}

// Clear empties both tiers.
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.entries = make(map[string]*memEntry)
	m.mu.Unlock()

	if m.disk != nil {
		return m.disk.clear(ctx)
	}
	return nil
}

// ClearTag removes every entry carrying tag from both tiers.
func (m *Manager) ClearTag(ctx context.Context, tag string) error {
	m.mu.Lock()
	for k, me := range m.entries {
		if me.entry.hasTag(tag) {
			delete(m.entries, k)
		}
	}
	m.mu.Unlock()

	if m.disk != nil {
		return m.disk.clearTag(ctx, tag)
	}
	return nil
}

// Len reports the memory tier's entry count.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// evictLocked drops lowest-access-count entries until the memory tier is
// within MaxItems. Caller holds mu.
func (m *Manager) evictLocked() {
	over := len(m.entries) - m.config.MaxItems
	if over <= 0 {
		return
	}
	type candidate struct {
		key   string
		count uint64
	}
	cands := make([]candidate, 0, len(m.entries))
	for k, me := range m.entries {
		cands = append(cands, candidate{key: k, count: me.accessCount})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].count != cands[j].count {
			return cands[i].count < cands[j].count
		}
		return cands[i].key < cands[j].key
	})
	for i := 0; i < over; i++ {
		delete(m.entries, cands[i].key)
		metrics.ObserveCache("memory", "evict")
	}
	m.logger.Debug("memory cache evicted", zap.Int("count", over))
}
