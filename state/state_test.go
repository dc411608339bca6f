package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentkit-go/agentkit/types"
)

func TestCopyWithDoesNotMutateOriginal(t *testing.T) {
	s0 := New()
	s1, err := s0.CopyWith(map[string]any{"a": 1}, nil)
	require.NoError(t, err)

	_, ok := s0.Get("a")
	assert.False(t, ok, "original snapshot must not see the new key")

	v, err := GetTyped[int](s1, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, s1.Version())
}

func TestCopyWithEmptyChangeIsNoOp(t *testing.T) {
	s, err := New().CopyWith(map[string]any{"a": 1}, nil)
	require.NoError(t, err)

	same, err := s.CopyWith(nil, nil)
	require.NoError(t, err)
	assert.Same(t, s, same, "empty update must return the receiver")
	assert.Equal(t, s.Data(), same.Data())
}

func TestCopyWithRejectsNilValues(t *testing.T) {
	_, err := New().CopyWith(map[string]any{"a": nil}, nil)
	assert.Equal(t, types.ErrValidation, types.GetErrorCode(err))
}

func TestGetTypedMismatch(t *testing.T) {
	s, err := New().CopyWith(map[string]any{"n": "not an int"}, nil)
	require.NoError(t, err)

	_, err = GetTyped[int](s, "n")
	assert.Equal(t, types.ErrTypeMismatch, types.GetErrorCode(err))

	_, err = GetTyped[int](s, "missing")
	assert.Equal(t, types.ErrState, types.GetErrorCode(err))
}

func TestMerge(t *testing.T) {
	a, err := New().CopyWith(map[string]any{"x": 1}, map[string]any{"src": "a"})
	require.NoError(t, err)
	b, err := New().CopyWith(map[string]any{"y": 2}, nil)
	require.NoError(t, err)

	merged, err := a.Merge(b)
	require.NoError(t, err)

	x, err := GetTyped[int](merged, "x")
	require.NoError(t, err)
	y, err := GetTyped[int](merged, "y")
	require.NoError(t, err)
	assert.Equal(t, 1, x)
	assert.Equal(t, 2, y)

	same, err := a.Merge(New())
	require.NoError(t, err)
	assert.Same(t, a, same)
}

func TestRemoveAndClear(t *testing.T) {
	s, err := New().CopyWith(map[string]any{"a": 1, "b": 2}, nil)
	require.NoError(t, err)

	removed := s.Remove("a")
	_, ok := removed.Get("a")
	assert.False(t, ok)
	_, ok = s.Get("a")
	assert.True(t, ok, "original keeps the removed key")

	assert.Same(t, s, s.Remove("missing"), "removing absent keys is a no-op")

	cleared := s.Clear()
	assert.Equal(t, 0, cleared.Len())
	assert.Same(t, cleared, cleared.Clear())
}

func TestChangeHistoryBound(t *testing.T) {
	s := New(WithMaxHistorySize(3))
	var err error
	for i := 0; i < 10; i++ {
		s, err = s.CopyWith(map[string]any{"k": i}, nil)
		require.NoError(t, err)
	}

	history := s.ChangeHistory()
	assert.Len(t, history, 3, "audit trail must stay bounded")
}

func TestChangeHistoryRecordsKeys(t *testing.T) {
	s, err := New().CopyWith(map[string]any{"alpha": 1}, nil)
	require.NoError(t, err)

	history := s.ChangeHistory()
	require.Len(t, history, 1)
	assert.Contains(t, history[0], "set alpha")
}
