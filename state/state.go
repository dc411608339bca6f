// Package state provides the immutable key/value snapshot shared across an
// agent workflow. Every mutator returns a new snapshot; the previous one stays
// valid, so callers can hold, compare, and roll back without defensive copies.
package state

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agentkit-go/agentkit/types"
)

// DefaultMaxHistorySize bounds the audit trail kept on each snapshot.
const DefaultMaxHistorySize = 50

// State is a versioned copy-on-write snapshot. The zero value is not usable;
// construct with New.
type State struct {
	data           map[string]any
	metadata       map[string]any
	changeHistory  []string
	maxHistorySize int
	version        int
}

// Option configures a new State.
type Option func(*State)

// WithMaxHistorySize overrides the audit-trail bound.
func WithMaxHistorySize(n int) Option {
	return func(s *State) {
		if n > 0 {
			s.maxHistorySize = n
		}
	}
}

// New creates an empty snapshot.
func New(opts ...Option) *State {
	s := &State{
		data:           map[string]any{},
		metadata:       map[string]any{},
		maxHistorySize: DefaultMaxHistorySize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the raw value for key.
func (s *State) Get(key string) (any, bool) {
	v, ok := s.data[key]
	return v, ok
}

// GetTyped returns the value for key converted to T. Missing keys fail with
// StateError; a stored value of the wrong runtime type fails with TypeMismatch.
func GetTyped[T any](s *State, key string) (T, error) {
	var zero T
	v, ok := s.data[key]
	if !ok {
		return zero, types.NewErrorf(types.ErrState, "state key %q not found", key)
	}
	typed, ok := v.(T)
	if !ok {
		return zero, types.NewErrorf(types.ErrTypeMismatch,
			"state key %q holds %T, not %T", key, v, zero)
	}
	return typed, nil
}

// Metadata returns the metadata value for key.
func (s *State) Metadata(key string) (any, bool) {
	v, ok := s.metadata[key]
	return v, ok
}

// Keys returns the data keys in sorted order.
func (s *State) Keys() []string {
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of data entries.
func (s *State) Len() int { return len(s.data) }

// Version returns the snapshot's monotonically increasing version.
func (s *State) Version() int { return s.version }

// ChangeHistory returns a copy of the audit trail, oldest first.
func (s *State) ChangeHistory() []string {
	out := make([]string, len(s.changeHistory))
	copy(out, s.changeHistory)
	return out
}

// Data returns a shallow copy of the data map.
func (s *State) Data() map[string]any {
	out := make(map[string]any, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

// CopyWith returns a new snapshot with newData and newMetadata shallowly
// merged over the current maps. Nil values in newData are not representable
// entries and fail with ValidationError (use Remove to delete a key). An
// empty requested change returns the receiver unchanged.
func (s *State) CopyWith(newData, newMetadata map[string]any) (*State, error) {
	if len(newData) == 0 && len(newMetadata) == 0 {
		return s, nil
	}

	for k, v := range newData {
		if v == nil {
			return nil, types.NewErrorf(types.ErrValidation,
				"nil value for state key %q: use Remove to delete entries", k)
		}
	}

	next := s.clone()
	changed := make([]string, 0, len(newData))
	for k, v := range newData {
		next.data[k] = v
		changed = append(changed, k)
	}
	for k, v := range newMetadata {
		next.metadata[k] = v
	}
	sort.Strings(changed)

	switch {
	case len(changed) > 0:
		next.appendAudit(fmt.Sprintf("set %s", strings.Join(changed, ", ")))
	default:
		next.appendAudit(fmt.Sprintf("updated metadata (%d keys)", len(newMetadata)))
	}
	return next, nil
}

// Merge folds another state's data and metadata into this one, equivalent to
// CopyWith(other.data, other.metadata).
func (s *State) Merge(other *State) (*State, error) {
	if other == nil || (len(other.data) == 0 && len(other.metadata) == 0) {
		return s, nil
	}
	return s.CopyWith(other.data, other.metadata)
}

// Remove returns a new snapshot without key. Removing an absent key is a
// no-op returning the receiver.
func (s *State) Remove(key string) *State {
	if _, ok := s.data[key]; !ok {
		return s
	}
	next := s.clone()
	delete(next.data, key)
	next.appendAudit(fmt.Sprintf("removed %s", key))
	return next
}

// Clear returns an empty snapshot. Clearing an already empty state is a
// no-op returning the receiver.
func (s *State) Clear() *State {
	if len(s.data) == 0 && len(s.metadata) == 0 {
		return s
	}
	next := &State{
		data:           map[string]any{},
		metadata:       map[string]any{},
		changeHistory:  append([]string(nil), s.changeHistory...),
		maxHistorySize: s.maxHistorySize,
		version:        s.version + 1,
	}
	next.appendAudit("cleared all entries")
	return next
}

func (s *State) clone() *State {
	next := &State{
		data:           make(map[string]any, len(s.data)),
		metadata:       make(map[string]any, len(s.metadata)),
		changeHistory:  append([]string(nil), s.changeHistory...),
		maxHistorySize: s.maxHistorySize,
		version:        s.version + 1,
	}
	for k, v := range s.data {
		next.data[k] = v
	}
	for k, v := range s.metadata {
		next.metadata[k] = v
	}
	return next
}

func (s *State) appendAudit(entry string) {
	line := fmt.Sprintf("%s v%d: %s", time.Now().UTC().Format(time.RFC3339), s.version, entry)
	s.changeHistory = append(s.changeHistory, line)
	if over := len(s.changeHistory) - s.maxHistorySize; over > 0 {
		s.changeHistory = s.changeHistory[over:]
	}
}
