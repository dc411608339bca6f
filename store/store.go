// Package store defines the capability-scoped persistence contract required
// by message histories and the cache: string get/set/remove, nothing more.
// Backends: in-process memory, Redis, and SQL (sqlite via gorm).
package store

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by GetString when the key has no value.
var ErrNotFound = errors.New("store: key not found")

// Store is the persistence capability the framework depends on.
type Store interface {
	// GetString returns the value for key, or ErrNotFound.
	GetString(ctx context.Context, key string) (string, error)
	// SetString stores value under key, replacing any previous value.
	SetString(ctx context.Context, key, value string) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
}

// MemoryStore is a process-local Store, safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) GetString(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *MemoryStore) SetString(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// Len returns the number of stored keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}
