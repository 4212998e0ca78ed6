package iocache

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/ktestci/ktestci/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteCache(t *testing.T) *CacheStoreImpl {
	t.Helper()
	store, err := NewCacheStore(listingTable, schema.SQLiteBackend, filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCacheStoreSQLite(t *testing.T) {
	store := newSQLiteCache(t)

	_, _, _, err := store.Get("tests/fs/xfs.ktest")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	require.NoError(t, store.Set("tests/fs/xfs.ktest", []byte(`["a","b"]`), 1, 1700000000))
	value, version, ts, err := store.Get("tests/fs/xfs.ktest")
	require.NoError(t, err)
	assert.Equal(t, `["a","b"]`, string(value))
	assert.Equal(t, 1, version)
	assert.Equal(t, int64(1700000000), ts)

	// Set replaces the whole row.
	require.NoError(t, store.Set("tests/fs/xfs.ktest", []byte(`["c"]`), 2, 1700000100))
	value, version, ts, err = store.Get("tests/fs/xfs.ktest")
	require.NoError(t, err)
	assert.Equal(t, `["c"]`, string(value))
	assert.Equal(t, 2, version)
	assert.Equal(t, int64(1700000100), ts)
}

func TestCacheStoreStatus(t *testing.T) {
	store := newSQLiteCache(t)

	status, err := store.GetStatus()
	require.NoError(t, err)
	assert.True(t, status.Connected)
	assert.Equal(t, "sqlite", status.Backend)
	assert.Zero(t, status.TotalEntries)

	require.NoError(t, store.Set("a", []byte("x"), 1, 100))
	require.NoError(t, store.Set("b", []byte("y"), 1, 300))

	status, err = store.GetStatus()
	require.NoError(t, err)
	assert.Equal(t, 2, status.TotalEntries)
	assert.Equal(t, int64(300), status.LastEntryTime.Unix())
	assert.Equal(t, int64(100), status.OldestEntryTime.Unix())
	assert.Positive(t, status.TableSizeBytes)
}

func TestCacheStoreNone(t *testing.T) {
	store, err := NewCacheStore("test_table", schema.NoneBackend, "")
	require.NoError(t, err)

	_, _, _, err = store.Get("k")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, store.Set("k", []byte("v"), 1, 1))
	_, _, _, err = store.Get("k")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	status, err := store.GetStatus()
	require.NoError(t, err)
	assert.False(t, status.Connected)
	assert.NoError(t, store.Close())
}

func TestNewCacheStoreErrors(t *testing.T) {
	_, err := NewCacheStore("bad-name", schema.NoneBackend, "")
	assert.Error(t, err)

	_, err = NewCacheStore(listingTable, schema.DatabaseBackend("oracle"), "x")
	assert.ErrorContains(t, err, "unsupported backend")

	_, err = NewCacheStore(listingTable, schema.SQLiteBackend, "")
	assert.Error(t, err)
}

func TestValidateTableName(t *testing.T) {
	tests := []struct {
		tableName string
		wantErr   bool
	}{
		{"test_table", false},
		{"test_table_123", false},
		{"_test_table", false},
		{"TestTable_123", false},
		{"", true},
		{"123_table", true},
		{"test-table", true},
		{"test table", true},
		{"table; DROP TABLE users", true},
	}
	for _, tt := range tests {
		t.Run(tt.tableName, func(t *testing.T) {
			err := validateTableName(tt.tableName)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "?, ?, ?", placeholders(schema.SQLiteBackend, 3))
	assert.Equal(t, "?, ?", placeholders(schema.MySQLBackend, 2))
	assert.Equal(t, "$1, $2, $3", placeholders(schema.PostgreSQLBackend, 3))
	assert.Equal(t, "`t`", quoteTableName("t", schema.MySQLBackend))
	assert.Equal(t, `"t"`, quoteTableName("t", schema.PostgreSQLBackend))
}
