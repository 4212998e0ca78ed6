package iocache

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ktestci/ktestci/internal/contract"
	"github.com/ktestci/ktestci/schema"
)

// dispatchHistoryTable records one row per job handed to a worker.
const dispatchHistoryTable = "ktestci_dispatch_history"

const historyColumns = `dispatch_id, user_name, branch, commit_id, test, subtests,
	hostname, workdir, expected_seconds, dispatched_at`

// HistoryStoreImpl implements the HistoryStore interface.
type HistoryStoreImpl struct {
	db      *sql.DB
	backend schema.DatabaseBackend
}

var _ contract.HistoryStore = &HistoryStoreImpl{} // Compile-time check

// NewHistoryStore creates a new HistoryStore with the specified backend.
// The none backend returns a store that accepts and discards every write.
func NewHistoryStore(backend schema.DatabaseBackend, connStr string) (*HistoryStoreImpl, error) {
	if backend == schema.NoneBackend || backend == "" {
		return &HistoryStoreImpl{backend: schema.NoneBackend}, nil
	}

	db, err := openDB(backend, connStr)
	if err != nil {
		return nil, fmt.Errorf("history store: %w", err)
	}

	if _, err := db.Exec(getCreateHistoryTableQuery(backend)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create table %s: %w", dispatchHistoryTable, err)
	}

	return &HistoryStoreImpl{db: db, backend: backend}, nil
}

// getCreateHistoryTableQuery returns the CREATE TABLE query for ktestci_dispatch_history.
func getCreateHistoryTableQuery(backend schema.DatabaseBackend) string {
	quotedTableName := quoteTableName(dispatchHistoryTable, backend)

	switch backend {
	case schema.MySQLBackend:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				dispatch_id VARCHAR(36) PRIMARY KEY,
				user_name VARCHAR(255) NOT NULL,
				branch VARCHAR(255) NOT NULL,
				commit_id VARCHAR(64) NOT NULL,
				test VARCHAR(512) NOT NULL,
				subtests TEXT NOT NULL,
				hostname VARCHAR(255) NOT NULL,
				workdir VARCHAR(512) NOT NULL,
				expected_seconds BIGINT NOT NULL,
				dispatched_at DATETIME(6) NOT NULL
			);
		`, quotedTableName)

	case schema.PostgreSQLBackend:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				dispatch_id TEXT PRIMARY KEY,
				user_name TEXT NOT NULL,
				branch TEXT NOT NULL,
				commit_id TEXT NOT NULL,
				test TEXT NOT NULL,
				subtests TEXT NOT NULL,
				hostname TEXT NOT NULL,
				workdir TEXT NOT NULL,
				expected_seconds BIGINT NOT NULL,
				dispatched_at TIMESTAMPTZ NOT NULL
			);
		`, quotedTableName)

	default: // SQLite
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				dispatch_id TEXT PRIMARY KEY,
				user_name TEXT NOT NULL,
				branch TEXT NOT NULL,
				commit_id TEXT NOT NULL,
				test TEXT NOT NULL,
				subtests TEXT NOT NULL,
				hostname TEXT NOT NULL,
				workdir TEXT NOT NULL,
				expected_seconds INTEGER NOT NULL,
				dispatched_at TEXT NOT NULL
			);
		`, quotedTableName)
	}
}

// RecordDispatch stores one dispatch.
func (hs *HistoryStoreImpl) RecordDispatch(rec schema.DispatchRecord) error {
	if hs.db == nil {
		return nil
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		quoteTableName(dispatchHistoryTable, hs.backend), historyColumns, placeholders(hs.backend, 10))

	_, err := hs.db.Exec(query,
		rec.DispatchID, rec.User, rec.Branch, rec.CommitID, rec.Test, rec.Subtests,
		rec.Hostname, rec.Workdir, rec.ExpectedSecs, formatTime(rec.DispatchedAt, hs.backend))
	if err != nil {
		return fmt.Errorf("failed to insert dispatch %s: %w", rec.DispatchID, err)
	}
	return nil
}

// Recent returns the newest dispatches, newest first.
func (hs *HistoryStoreImpl) Recent(limit int) ([]schema.DispatchRecord, error) {
	if hs.db == nil || limit <= 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY dispatched_at DESC, dispatch_id DESC LIMIT %s`,
		historyColumns, quoteTableName(dispatchHistoryTable, hs.backend), placeholder(hs.backend, 1))
	return hs.query(query, limit)
}

// Since returns all dispatches at or after t, oldest first.
func (hs *HistoryStoreImpl) Since(t time.Time) ([]schema.DispatchRecord, error) {
	if hs.db == nil {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE dispatched_at >= %s ORDER BY dispatched_at ASC, dispatch_id ASC`,
		historyColumns, quoteTableName(dispatchHistoryTable, hs.backend), placeholder(hs.backend, 1))
	return hs.query(query, formatTime(t, hs.backend))
}

func (hs *HistoryStoreImpl) query(query string, args ...any) ([]schema.DispatchRecord, error) {
	rows, err := hs.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query dispatch history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []schema.DispatchRecord
	for rows.Next() {
		var rec schema.DispatchRecord
		dest := []any{
			&rec.DispatchID, &rec.User, &rec.Branch, &rec.CommitID, &rec.Test, &rec.Subtests,
			&rec.Hostname, &rec.Workdir, &rec.ExpectedSecs,
		}

		switch hs.backend {
		case schema.SQLiteBackend:
			var at string
			if err := rows.Scan(append(dest, &at)...); err != nil {
				return nil, fmt.Errorf("failed to scan dispatch: %w", err)
			}
			if rec.DispatchedAt, err = parseTime(at); err != nil {
				return nil, fmt.Errorf("failed to parse dispatched_at: %w", err)
			}
		default: // MySQL and PostgreSQL store as native datetime
			if err := rows.Scan(append(dest, &rec.DispatchedAt)...); err != nil {
				return nil, fmt.Errorf("failed to scan dispatch: %w", err)
			}
			rec.DispatchedAt = rec.DispatchedAt.UTC()
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dispatch history: %w", err)
	}
	return records, nil
}

// Close closes the underlying connection.
func (hs *HistoryStoreImpl) Close() error {
	if hs.db != nil {
		return hs.db.Close()
	}
	return nil
}

// GetStatus returns status information about the history store.
func (hs *HistoryStoreImpl) GetStatus() (schema.HistoryStatus, error) {
	status := schema.HistoryStatus{
		Backend:    string(hs.backend),
		Connected:  hs.db != nil,
		TableSizes: make(map[string]int64),
	}
	if hs.db == nil {
		return status, nil
	}

	quotedTableName := quoteTableName(dispatchHistoryTable, hs.backend)

	row := hs.db.QueryRow(fmt.Sprintf("SELECT COUNT(*), COALESCE(SUM(expected_seconds), 0) FROM %s", quotedTableName))
	if err := row.Scan(&status.TotalDispatches, &status.DispatchedSeconds); err != nil {
		return status, fmt.Errorf("failed to get total dispatches: %w", err)
	}
	status.TableSizes[dispatchHistoryTable] = int64(status.TotalDispatches)
	if status.TotalDispatches == 0 {
		return status, nil
	}

	row = hs.db.QueryRow(fmt.Sprintf("SELECT MAX(dispatched_at), MIN(dispatched_at) FROM %s", quotedTableName))
	switch hs.backend {
	case schema.SQLiteBackend:
		var last, oldest string
		if err := row.Scan(&last, &oldest); err != nil {
			return status, fmt.Errorf("failed to get dispatch times: %w", err)
		}
		var err error
		if status.LastDispatch, err = parseTime(last); err != nil {
			return status, fmt.Errorf("failed to parse last dispatch time: %w", err)
		}
		if status.OldestDispatch, err = parseTime(oldest); err != nil {
			return status, fmt.Errorf("failed to parse oldest dispatch time: %w", err)
		}
	default: // MySQL and PostgreSQL store as native datetime
		if err := row.Scan(&status.LastDispatch, &status.OldestDispatch); err != nil {
			return status, fmt.Errorf("failed to get dispatch times: %w", err)
		}
	}
	return status, nil
}
