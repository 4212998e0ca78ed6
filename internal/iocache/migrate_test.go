package iocache

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/ktestci/ktestci/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateHistoryNoneBackend(t *testing.T) {
	err := MigrateHistory(&bytes.Buffer{}, schema.NoneBackend, "", -1)
	assert.ErrorContains(t, err, "not supported")
}

func TestMigrateHistorySQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	var buf bytes.Buffer

	require.NoError(t, MigrateHistory(&buf, schema.SQLiteBackend, dbPath, -1))
	assert.Contains(t, buf.String(), "to version 2")

	buf.Reset()
	require.NoError(t, MigrateHistory(&buf, schema.SQLiteBackend, dbPath, -1))
	assert.Contains(t, buf.String(), "No migration needed")

	require.NoError(t, MigrateHistory(&buf, schema.SQLiteBackend, dbPath, 1))
	require.NoError(t, MigrateHistory(&buf, schema.SQLiteBackend, dbPath, 0))

	buf.Reset()
	require.NoError(t, MigrateHistory(&buf, schema.SQLiteBackend, dbPath, 2))
	assert.Contains(t, buf.String(), "from version 0 to version 2")

	// The store opens cleanly on a migrated database.
	store, err := NewHistoryStore(schema.SQLiteBackend, dbPath)
	require.NoError(t, err)
	require.NoError(t, store.RecordDispatch(dispatch(1)))
	require.NoError(t, store.Close())
}

func TestMigrateHistoryAfterStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")

	store, err := NewHistoryStore(schema.SQLiteBackend, dbPath)
	require.NoError(t, err)
	require.NoError(t, store.RecordDispatch(dispatch(1)))
	require.NoError(t, store.Close())

	require.NoError(t, MigrateHistory(&bytes.Buffer{}, schema.SQLiteBackend, dbPath, -1))

	store, err = NewHistoryStore(schema.SQLiteBackend, dbPath)
	require.NoError(t, err)
	defer store.Close()
	recent, err := store.Recent(10)
	require.NoError(t, err)
	assert.Len(t, recent, 1, "migrating an existing table keeps its rows")
}
