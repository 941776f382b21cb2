package kv

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, KeyTier)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, KeyTier, []byte("free")))
	got, err := s.Get(ctx, KeyTier)
	require.NoError(t, err)
	assert.Equal(t, "free", string(got))

	require.NoError(t, s.Set(ctx, KeyTier, []byte("premium")))
	str, err := GetString(ctx, s, KeyTier)
	require.NoError(t, err)
	assert.Equal(t, "premium", str)

	require.NoError(t, s.Delete(ctx, KeyTier))
	str, err = GetString(ctx, s, KeyTier)
	require.NoError(t, err)
	assert.Empty(t, str)

	type payload struct {
		Count int `json:"count"`
	}
	require.NoError(t, SetJSON(ctx, s, KeySessionCount, payload{Count: 4}))
	var p payload
	require.NoError(t, GetJSON(ctx, s, KeySessionCount, &p))
	assert.Equal(t, 4, p.Count)
}

func TestMemory(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	buf := []byte("free")
	require.NoError(t, m.Set(ctx, KeyTier, buf))
	buf[0] = 'X'
	got, err := m.Get(ctx, KeyTier)
	require.NoError(t, err)
	assert.Equal(t, "free", string(got))
}

func TestSQLite(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "device.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	exerciseStore(t, s)
}

func TestSQLitePersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "device.db")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, KeyLastPath, []byte("/calendar")))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	got, err := GetString(ctx, s, KeyLastPath)
	require.NoError(t, err)
	assert.Equal(t, "/calendar", got)
}

func TestRedis(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	r, err := DialRedis(context.Background(), url, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	exerciseStore(t, Prefixed(r, "test-"+time.Now().Format("150405.000")))
}

func TestPrefixedIsolatesNamespaces(t *testing.T) {
	ctx := context.Background()
	base := NewMemory()
	a := Prefixed(base, "anon_a")
	b := Prefixed(base, "anon_b")

	require.NoError(t, a.Set(ctx, KeyAnonymousSessions, []byte("[1]")))
	_, err := b.Get(ctx, KeyAnonymousSessions)
	require.ErrorIs(t, err, ErrNotFound)

	raw, err := base.Get(ctx, "anon_a:"+KeyAnonymousSessions)
	require.NoError(t, err)
	assert.Equal(t, "[1]", string(raw))
}
