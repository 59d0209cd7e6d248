package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/layer-3/credgate/core"
	"github.com/layer-3/credgate/ports"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore runs the behaviour every Store implementation must share.
func exerciseStore(t *testing.T, s ports.Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrKeyNotFound)

	require.NoError(t, s.Set(ctx, "nonce:0xabc", "n-1", time.Minute))
	got, err := s.Get(ctx, "nonce:0xabc")
	require.NoError(t, err)
	assert.Equal(t, "n-1", got)

	require.NoError(t, s.Set(ctx, "nonce:0xabc", "n-2", time.Minute))
	got, err = s.Take(ctx, "nonce:0xabc")
	require.NoError(t, err)
	assert.Equal(t, "n-2", got)

	_, err = s.Take(ctx, "nonce:0xabc")
	assert.ErrorIs(t, err, core.ErrKeyNotFound)

	require.NoError(t, s.Set(ctx, "session", "tok", 0))
	require.NoError(t, s.Delete(ctx, "session"))
	require.NoError(t, s.Delete(ctx, "session"))
	_, err = s.Get(ctx, "session")
	assert.ErrorIs(t, err, core.ErrKeyNotFound)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", "v", time.Second))
	now = now.Add(2 * time.Second)

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, core.ErrKeyNotFound)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := NewRedisStore(client, "credgate:")
	exerciseStore(t, s)

	require.NoError(t, s.Set(context.Background(), "k", "v", time.Minute))
	assert.True(t, mr.Exists("credgate:k"))

	mr.FastForward(2 * time.Minute)
	_, err := s.Get(context.Background(), "k")
	assert.ErrorIs(t, err, core.ErrKeyNotFound)
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sessions.yaml")
	exerciseStore(t, NewFileStore(path))
}

func TestFileStorePersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.yaml")
	ctx := context.Background()

	require.NoError(t, NewFileStore(path).Set(ctx, "session_token:0xabc", "tok-1", 0))

	got, err := NewFileStore(path).Get(ctx, "session_token:0xabc")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", got)
}

func TestFileStoreExpiry(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "sessions.yaml"))
	now := time.Now()
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", "v", time.Minute))
	now = now.Add(time.Hour)

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, core.ErrKeyNotFound)
}
