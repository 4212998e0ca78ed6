package iocache

import (
	"database/sql"
	"fmt"
	"os"
	"sync"

	"github.com/ktestci/ktestci/internal/contract"
	"github.com/ktestci/ktestci/schema"
)

// Global Manager instance for main logic.
var (
	Manager   = &StoreManager{}
	initOnce  sync.Once
	closeOnce sync.Once
)

// CacheConnString returns the connection string for the listing cache,
// defaulting SQLite to a file inside the output directory.
func CacheConnString(cfg *contract.Config) string {
	if cfg.CacheBackend == schema.SQLiteBackend && cfg.CacheDBConnect == "" {
		return contract.GetCacheDBFilePath(cfg.OutputDir)
	}
	return cfg.CacheDBConnect
}

// HistoryConnString returns the connection string for the dispatch history,
// defaulting SQLite to a file inside the output directory.
func HistoryConnString(cfg *contract.Config) string {
	if cfg.HistoryBackend == schema.SQLiteBackend && cfg.HistoryDBConnect == "" {
		return contract.GetHistoryDBFilePath(cfg.OutputDir)
	}
	return cfg.HistoryDBConnect
}

// InitStores initializes the global manager with the listing cache and the
// dispatch history. Unconfigured backends yield no-op stores.
func InitStores(cfg *contract.Config) error {
	var initErr error

	initOnce.Do(func() {
		cacheStore, err := NewCacheStore(listingTable, cfg.CacheBackend, CacheConnString(cfg))
		if err != nil {
			initErr = fmt.Errorf("failed to initialize listing cache: %w", err)
			return
		}

		historyStore, err := NewHistoryStore(cfg.HistoryBackend, HistoryConnString(cfg))
		if err != nil {
			_ = cacheStore.Close()
			initErr = fmt.Errorf("failed to initialize dispatch history: %w", err)
			return
		}

		Manager.Lock()
		defer Manager.Unlock()
		Manager.cache = cacheStore
		Manager.history = historyStore
	})

	return initErr
}

// CloseStores should be called on application shutdown.
func CloseStores() {
	closeOnce.Do(func() {
		Manager.Lock()
		defer Manager.Unlock()
		if Manager.cache != nil {
			_ = Manager.cache.Close()
		}
		if Manager.history != nil {
			_ = Manager.history.Close()
		}
	})
}

// ClearCache removes every cached listing.
// For SQLite, it deletes the database file.
// For MySQL and PostgreSQL, it drops the table.
func ClearCache(backend schema.DatabaseBackend, connStr string) error {
	return clearBackend(backend, connStr, listingTable)
}

// ClearHistory removes the dispatch history.
// For SQLite, it deletes the database file.
// For MySQL and PostgreSQL, it drops the table and its migration bookkeeping.
func ClearHistory(backend schema.DatabaseBackend, connStr string) error {
	return clearBackend(backend, connStr, dispatchHistoryTable, migrationsTable)
}

func clearBackend(backend schema.DatabaseBackend, connStr string, tables ...string) error {
	switch backend {
	case schema.SQLiteBackend:
		if connStr == "" {
			return fmt.Errorf("database file cannot be empty for SQLite backend")
		}
		if err := os.Remove(connStr); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove SQLite database file %s: %w", connStr, err)
		}
		return nil

	case schema.MySQLBackend, schema.PostgreSQLBackend:
		for _, table := range tables {
			if err := clearSQLTable(backend, connStr, table); err != nil {
				return err
			}
		}
		return nil

	case schema.NoneBackend, "":
		return nil

	default:
		return fmt.Errorf("unsupported backend for clearing: %s", backend)
	}
}

// clearSQLTable connects to the SQL database and drops the table if it exists.
func clearSQLTable(backend schema.DatabaseBackend, connStr, tableName string) error {
	db, err := sql.Open(driverName(backend), connStr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s database: %w", backend, err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping %s database: %w", backend, err)
	}

	query := fmt.Sprintf("DROP TABLE IF EXISTS %s", quoteTableName(tableName, backend))
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", tableName, err)
	}
	return nil
}
