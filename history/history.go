// Package history manages thread-scoped message logs: bounded append,
// write-through persistence, and a registry that caches one History per
// thread with idle eviction.
package history

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentkit-go/agentkit/store"
	"github.com/agentkit-go/agentkit/types"
)

const (
	// DefaultMaxMessages bounds the in-memory and persisted log length.
	DefaultMaxMessages = 100
	// DefaultMaxSaveBytes is the hard ceiling on one serialized history.
	DefaultMaxSaveBytes = 5 * 1024 * 1024
	// keyPrefix namespaces persisted histories in the store.
	keyPrefix = "history:"
)

// Config configures a History.
type Config struct {
	// MaxMessages trims the log drop-oldest. <= 0 uses DefaultMaxMessages.
	MaxMessages int
	// MaxTokens, when > 0 and Tokenizer is set, additionally trims oldest
	// messages until the log fits the token budget.
	MaxTokens int
	// Tokenizer counts tokens for the MaxTokens bound.
	Tokenizer types.Tokenizer
	// MaxSaveBytes rejects saves whose serialized form exceeds it.
	// <= 0 uses DefaultMaxSaveBytes.
	MaxSaveBytes int
}

func (c Config) withDefaults() Config {
	if c.MaxMessages <= 0 {
		c.MaxMessages = DefaultMaxMessages
	}
	if c.MaxSaveBytes <= 0 {
		c.MaxSaveBytes = DefaultMaxSaveBytes
	}
	return c
}

// persistedMessage is the stored wire form: one JSON array of these per
// thread, under a key namespaced by thread ID.
type persistedMessage struct {
	Role      types.Role `json:"role"`
	Content   string     `json:"content"`
	Timestamp time.Time  `json:"timestamp"`
}

// History is one thread's ordered message log. Individual operations are
// serialized by an internal mutex; single-writer-per-thread discipline beyond
// that is the caller's responsibility.
type History struct {
	threadID string
	cfg      Config
	store    store.Store
	logger   *zap.Logger

	mu         sync.Mutex
	messages   []types.Message
	loaded     bool
	lastAccess time.Time

	// onClear detaches this history from its registry, when it has one.
	onClear func()
}

// NewHistory creates a History for threadID backed by st. Most callers should
// go through a Registry instead, which deduplicates instances per thread.
func NewHistory(threadID string, st store.Store, cfg Config, logger *zap.Logger) *History {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &History{
		threadID:   threadID,
		cfg:        cfg.withDefaults(),
		store:      st,
		logger:     logger.With(zap.String("component", "history"), zap.String("thread_id", threadID)),
		lastAccess: time.Now(),
	}
}

// ThreadID returns the owning thread's identifier.
func (h *History) ThreadID() string { return h.threadID }

// Len returns the number of messages currently held.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

// Messages returns a copy of the message sequence, oldest first.
func (h *History) Messages() []types.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastAccess = time.Now()
	out := make([]types.Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// AddMessage appends msg, trims to the configured bounds (oldest evicted
// first), and persists the full sequence. A failed save propagates and leaves
// the in-memory log unchanged.
func (h *History) AddMessage(ctx context.Context, msg types.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	next := append(append([]types.Message(nil), h.messages...), msg)
	next = h.trim(next)

	if err := h.saveLocked(ctx, next); err != nil {
		return err
	}
	h.messages = next
	h.lastAccess = time.Now()
	return nil
}

func (h *History) trim(msgs []types.Message) []types.Message {
	if over := len(msgs) - h.cfg.MaxMessages; over > 0 {
		msgs = msgs[over:]
	}
	if h.cfg.MaxTokens > 0 && h.cfg.Tokenizer != nil {
		for len(msgs) > 1 && h.cfg.Tokenizer.CountMessagesTokens(msgs) > h.cfg.MaxTokens {
			msgs = msgs[1:]
		}
	}
	return msgs
}

// Load hydrates the in-memory sequence from the store, replacing (not
// merging) current contents. It is idempotent: once loaded, further calls
// return immediately, and concurrent callers serialize through the mutex so
// hydration happens exactly once.
func (h *History) Load(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.loaded {
		return nil
	}

	raw, err := h.store.GetString(ctx, keyPrefix+h.threadID)
	if err == store.ErrNotFound {
		h.loaded = true
		return nil
	}
	if err != nil {
		return types.NewError(types.ErrState, "load history").WithCause(err)
	}

	var persisted []persistedMessage
	if err := json.Unmarshal([]byte(raw), &persisted); err != nil {
		return types.NewError(types.ErrState, "corrupt persisted history").WithCause(err)
	}

	msgs := make([]types.Message, len(persisted))
	for i, p := range persisted {
		msgs[i] = types.Message{Role: p.Role, Content: p.Content, Timestamp: p.Timestamp}
	}
	h.messages = msgs
	h.loaded = true
	h.lastAccess = time.Now()
	h.logger.Debug("history hydrated", zap.Int("messages", len(msgs)))
	return nil
}

// Save serializes and persists the full in-memory sequence.
func (h *History) Save(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.saveLocked(ctx, h.messages)
}

func (h *History) saveLocked(ctx context.Context, msgs []types.Message) error {
	persisted := make([]persistedMessage, len(msgs))
	for i, m := range msgs {
		persisted[i] = persistedMessage{Role: m.Role, Content: m.Content, Timestamp: m.Timestamp}
	}
	data, err := json.Marshal(persisted)
	if err != nil {
		return types.NewError(types.ErrState, "serialize history").WithCause(err)
	}

	// Hard reject, not truncation: the caller must trim before retrying.
	if len(data) > h.cfg.MaxSaveBytes {
		return types.NewErrorf(types.ErrResourceExhausted,
			"serialized history is %d bytes, over the %d byte ceiling",
			len(data), h.cfg.MaxSaveBytes).
			WithDetail("thread_id", h.threadID).
			WithRecoverySteps("reduce MaxMessages or MaxTokens and retry")
	}

	if err := h.store.SetString(ctx, keyPrefix+h.threadID, string(data)); err != nil {
		return types.NewError(types.ErrState, "persist history").WithCause(err)
	}
	return nil
}

// Clear empties the in-memory log, deletes the persisted record, and evicts
// this history from its registry.
func (h *History) Clear(ctx context.Context) error {
	h.mu.Lock()
	if err := h.store.Remove(ctx, keyPrefix+h.threadID); err != nil {
		h.mu.Unlock()
		return types.NewError(types.ErrState, "delete persisted history").WithCause(err)
	}
	h.messages = nil
	h.loaded = true
	onClear := h.onClear
	h.mu.Unlock()

	if onClear != nil {
		onClear()
	}
	return nil
}

func (h *History) idleSince(cutoff time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastAccess.Before(cutoff)
}
