package mocks

import (
	"context"
	"sync"

	"github.com/agentkit-go/agentkit/store"
)

// MockStore is a store.Store with per-operation error injection and call
// counting. Configure with the builder methods, then hand it to a history or
// cache under test.
type MockStore struct {
	mu     sync.RWMutex
	values map[string]string

	getErr    error
	setErr    error
	removeErr error

	getCalls    int
	setCalls    int
	removeCalls int
}

// NewMockStore creates an empty MockStore.
func NewMockStore() *MockStore {
	return &MockStore{values: map[string]string{}}
}

// WithGetError makes every GetString return err.
func (s *MockStore) WithGetError(err error) *MockStore {
	s.getErr = err
	return s
}

// WithSetError makes every SetString return err.
func (s *MockStore) WithSetError(err error) *MockStore {
	s.setErr = err
	return s
}

// WithRemoveError makes every Remove return err.
func (s *MockStore) WithRemoveError(err error) *MockStore {
	s.removeErr = err
	return s
}

// WithValue seeds a stored key.
func (s *MockStore) WithValue(key, value string) *MockStore {
	s.values[key] = value
	return s
}

func (s *MockStore) GetString(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	if s.getErr != nil {
		return "", s.getErr
	}
	v, ok := s.values[key]
	if !ok {
		return "", store.ErrNotFound
	}
	return v, nil
}

func (s *MockStore) SetString(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setCalls++
	if s.setErr != nil {
		return s.setErr
	}
	s.values[key] = value
	return nil
}

func (s *MockStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeCalls++
	if s.removeErr != nil {
		return s.removeErr
	}
	delete(s.values, key)
	return nil
}

// Value returns the stored value and whether it exists.
func (s *MockStore) Value(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// GetCalls returns the number of GetString calls.
func (s *MockStore) GetCalls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getCalls
}

// SetCalls returns the number of SetString calls.
func (s *MockStore) SetCalls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.setCalls
}

// RemoveCalls returns the number of Remove calls.
func (s *MockStore) RemoveCalls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.removeCalls
}
