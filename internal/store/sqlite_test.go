package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_PutGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "osv", "npm/lodash@4.17.15", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, "osv", "npm/lodash@4.17.15", []byte(`["GHSA-1"]`)))
	v, ok, err := s.Get(ctx, "osv", "npm/lodash@4.17.15", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `["GHSA-1"]`, string(v))

	// Namespaces are isolated.
	_, ok, err = s.Get(ctx, "other", "npm/lodash@4.17.15", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	// Overwrite.
	require.NoError(t, s.Put(ctx, "osv", "npm/lodash@4.17.15", []byte(`[]`)))
	v, ok, err = s.Get(ctx, "osv", "npm/lodash@4.17.15", 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, `[]`, string(v))
}

func TestSQLiteStore_Expiry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	require.NoError(t, s.Put(ctx, "osv", "a", []byte("1")))
	require.NoError(t, s.Put(ctx, "osv", "b", []byte("2")))

	s.now = func() time.Time { return base.Add(2 * time.Hour) }
	require.NoError(t, s.Put(ctx, "osv", "c", []byte("3")))

	_, ok, err := s.Get(ctx, "osv", "a", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok, "stale entry should be treated as missing")

	_, ok, err = s.Get(ctx, "osv", "a", 0)
	require.NoError(t, err)
	assert.True(t, ok, "zero maxAge disables expiry")

	n, err := s.Purge(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	entries, err := s.List(ctx, "osv")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "c", entries[0].Key)
	assert.Equal(t, []byte("3"), entries[0].Value)
}
