package carequeue

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

func exerciseStorage(t *testing.T, s Storage) {
	t.Helper()
	ctx := context.Background()

	_, found, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, s.Set(ctx, "k", []byte("v1")))
	v, found, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v1", string(v))

	require.NoError(t, s.Set(ctx, "k", []byte("v2")))
	v, _, err = s.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v2", string(v))

	require.NoError(t, s.Delete(ctx, "k"))
	_, found, err = s.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, found)

	// Deleting a missing key is fine.
	require.NoError(t, s.Delete(ctx, "k"))
}

func TestMemoryStorage(t *testing.T) {
	exerciseStorage(t, NewMemoryStorage())
}

func TestMemoryStorage_CopiesValues(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()
	buf := []byte("abc")
	require.NoError(t, s.Set(ctx, "k", buf))
	buf[0] = 'x'
	v, _, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "abc", string(v))
}

func TestSQLiteStorage(t *testing.T) {
	s, err := OpenSQLiteStorage(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	defer s.Close()
	exerciseStorage(t, s)

	var journalMode string
	require.NoError(t, s.DB.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	require.Equal(t, "wal", journalMode)
}

func TestNewSQLiteStorage_InMemory(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()
	// Each pooled connection would get its own :memory: database.
	db.SetMaxOpenConns(1)

	s, err := NewSQLiteStorage(db)
	require.NoError(t, err)
	exerciseStorage(t, s)

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='_carequeue_kv'").Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestNewSQLiteStorage_NilDB(t *testing.T) {
	_, err := NewSQLiteStorage(nil)
	require.Error(t, err)
}
