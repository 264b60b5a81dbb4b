package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "autodelete.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	t1 := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 6, 1, 22, 30, 0, 0, time.UTC)
	want := map[string]time.Time{"10": t1, "11": t2}

	require.NoError(t, s.Save(ctx, want))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSQLiteStoreLoadEmpty(t *testing.T) {
	s := newTestSQLiteStore(t)

	entries, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSQLiteStoreUpsertOverwrites(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	first := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	second := first.Add(3 * time.Hour)

	require.NoError(t, s.Upsert(ctx, "42", first))
	require.NoError(t, s.Upsert(ctx, "42", second))

	entries, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, second, entries["42"])
}

func TestSQLiteStoreRemove(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "42", time.Now().UTC()))
	require.NoError(t, s.Remove(ctx, "42"))

	entries, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, s.Remove(ctx, "42"))
}

func TestSQLiteStoreSaveReplaces(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, map[string]time.Time{
		"1": time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		"2": time.Date(2024, 6, 1, 11, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, s.Save(ctx, map[string]time.Time{
		"3": time.Date(2024, 6, 2, 10, 0, 0, 0, time.UTC),
	}))

	entries, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries, "3")
}
