package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// storeContract runs the Store contract against any backend.
func storeContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.GetString(ctx, "absent")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SetString(ctx, "k", "v1"))
	got, err := s.GetString(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", got)

	require.NoError(t, s.SetString(ctx, "k", "v2"))
	got, err = s.GetString(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", got, "set must replace")

	require.NoError(t, s.Remove(ctx, "k"))
	_, err = s.GetString(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, s.Remove(ctx, "never-existed"))
}

func TestMemoryStoreContract(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestRedisStoreContract(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := DefaultRedisConfig()
	cfg.Addr = mr.Addr()
	s, err := NewRedisStore(cfg, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	storeContract(t, s)
}

func TestRedisStoreKeyPrefix(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := RedisConfig{Addr: mr.Addr(), KeyPrefix: "pfx:"}
	s, err := NewRedisStore(cfg, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SetString(context.Background(), "thread-1", "[]"))
	assert.True(t, mr.Exists("pfx:thread-1"))
}

func TestSQLiteStoreContract(t *testing.T) {
	s, err := NewSQLiteStore(":memory:", zap.NewNop())
	require.NoError(t, err)

	storeContract(t, s)
}

func TestSQLiteStorePersistsAcrossHandles(t *testing.T) {
	path := t.TempDir() + "/kv.db"

	s1, err := NewSQLiteStore(path, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s1.SetString(context.Background(), "k", "survives"))

	s2, err := NewSQLiteStore(path, zap.NewNop())
	require.NoError(t, err)
	got, err := s2.GetString(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "survives", got)
}
