package cache

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMemManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	m, err := NewManager(cfg, zap.NewNop())
	require.NoError(t, err)
	return m
}

func TestSetGetRoundTrip(t *testing.T) {
	m := newMemManager(t, Config{MaxItems: 10})
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", "v", SetOptions{TTL: time.Minute}))
	v, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestZeroTTLIsImmediatelyExpired(t *testing.T) {
	m := newMemManager(t, Config{MaxItems: 10})
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", "v", SetOptions{}))
	_, err := m.Get(ctx, "k")
	assert.True(t, IsCacheMiss(err))
}

func TestExpiryFollowsWallClock(t *testing.T) {
	m := newMemManager(t, Config{MaxItems: 10})
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	require.NoError(t, m.Set(ctx, "k", "v", SetOptions{TTL: time.Minute}))

	m.now = func() time.Time { return base.Add(30 * time.Second) }
	_, err := m.Get(ctx, "k")
	assert.NoError(t, err)

	m.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, err = m.Get(ctx, "k")
	assert.True(t, IsCacheMiss(err))
	assert.Equal(t, 0, m.Len(), "expired entry is dropped on read")
}

func TestMemoryEvictionByAccessCount(t *testing.T) {
	m := newMemManager(t, Config{MaxItems: 2})
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "hot", 1, SetOptions{TTL: time.Minute}))
	require.NoError(t, m.Set(ctx, "warm", 2, SetOptions{TTL: time.Minute}))

	// Read counts decide who survives the next insert.
	for i := 0; i < 3; i++ {
		_, err := m.Get(ctx, "hot")
		require.NoError(t, err)
	}
	_, err := m.Get(ctx, "warm")
	require.NoError(t, err)

	require.NoError(t, m.Set(ctx, "new", 3, SetOptions{TTL: time.Minute}))
	require.Equal(t, 2, m.Len())

	_, err = m.Get(ctx, "hot")
	assert.NoError(t, err, "most-read entry survives")
	_, err = m.Get(ctx, "new")
	assert.True(t, IsCacheMiss(err), "zero-access newcomer is the first casualty")
}

func TestRemoveAndClear(t *testing.T) {
	m := newMemManager(t, Config{MaxItems: 10})
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "a", 1, SetOptions{TTL: time.Minute}))
	require.NoError(t, m.Set(ctx, "b", 2, SetOptions{TTL: time.Minute}))

	require.NoError(t, m.Remove(ctx, "a", "missing"))
	_, err := m.Get(ctx, "a")
	assert.True(t, IsCacheMiss(err))

	require.NoError(t, m.Clear(ctx))
	assert.Equal(t, 0, m.Len())
}

func TestClearTag(t *testing.T) {
	m := newMemManager(t, Config{MaxItems: 10})
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "a", 1, SetOptions{TTL: time.Minute, Tags: []string{"session"}}))
	require.NoError(t, m.Set(ctx, "b", 2, SetOptions{TTL: time.Minute, Tags: []string{"session", "user"}}))
	require.NoError(t, m.Set(ctx, "c", 3, SetOptions{TTL: time.Minute}))

	require.NoError(t, m.ClearTag(ctx, "session"))

	_, err := m.Get(ctx, "a")
	assert.True(t, IsCacheMiss(err))
	_, err = m.Get(ctx, "b")
	assert.True(t, IsCacheMiss(err))
	_, err = m.Get(ctx, "c")
	assert.NoError(t, err)
}

func TestDiskTierSurvivesMemoryEviction(t *testing.T) {
	dir := t.TempDir()
	m := newMemManager(t, Config{MaxItems: 10, DiskDir: dir})
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", "persisted", SetOptions{TTL: time.Hour}))

	// Drop the memory copy; the disk copy must answer and get promoted.
	m.mu.Lock()
	delete(m.entries, "k")
	m.mu.Unlock()

	v, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "persisted", v)
	assert.Equal(t, 1, m.Len())
}

func TestCorruptDiskFileIsMissAndRemoved(t *testing.T) {
	dir := t.TempDir()
	m := newMemManager(t, Config{MaxItems: 10, DiskDir: dir})
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", "v", SetOptions{TTL: time.Hour}))
	m.mu.Lock()
	delete(m.entries, "k")
	m.mu.Unlock()

	p := m.disk.path("k")
	require.NoError(t, os.WriteFile(p, []byte("{not json"), 0o644))

	_, err := m.Get(ctx, "k")
	assert.True(t, IsCacheMiss(err))
	_, statErr := os.Stat(p)
	assert.True(t, os.IsNotExist(statErr), "corrupt file is deleted, not surfaced")
}

func TestDiskEvictionOldestModifiedFirst(t *testing.T) {
	dir := t.TempDir()
	m := newMemManager(t, Config{MaxItems: 10, DiskDir: dir, MaxBytes: 600})
	ctx := context.Background()

	payload := strings.Repeat("x", 200)
	require.NoError(t, m.Set(ctx, "old", payload, SetOptions{TTL: time.Hour}))

	// Age the first file so modification order is unambiguous.
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(m.disk.path("old"), past, past))

	require.NoError(t, m.Set(ctx, "mid", payload, SetOptions{TTL: time.Hour}))
	require.NoError(t, m.Set(ctx, "new", payload, SetOptions{TTL: time.Hour}))

	_, err := os.Stat(m.disk.path("old"))
	assert.True(t, os.IsNotExist(err), "oldest file evicted first")
	_, err = os.Stat(m.disk.path("new"))
	assert.NoError(t, err)
}

func TestClearRemovesDiskFiles(t *testing.T) {
	dir := t.TempDir()
	m := newMemManager(t, Config{MaxItems: 10, DiskDir: dir})
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "a", 1, SetOptions{TTL: time.Hour}))
	require.NoError(t, m.Set(ctx, "b", 2, SetOptions{TTL: time.Hour}))
	require.NoError(t, m.Clear(ctx))

	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	require.NoError(t, err)
	assert.Empty(t, files)
}
