// Package contract provides interfaces and shared utilities for internal architecture.
package contract

import (
	"context"
	"time"

	"github.com/ktestci/ktestci/schema"
)

// GitClient defines the git operations the job pipeline depends on.
// This allows the generator and maintenance logic to be tested without a real git executable.
type GitClient interface {
	// --- Generic / Low-Level ---

	// Run executes a git command and returns its standard output.
	// Its use should be minimized in favor of the explicit methods below.
	Run(ctx context.Context, repoPath string, args ...string) ([]byte, error)

	// --- Reference Resolution ---

	// ResolveRef returns the commit id a reference points to.
	ResolveRef(ctx context.Context, repoPath string, ref string) (string, error)

	// Ancestors returns up to limit commits reachable from ref, newest first, with messages.
	Ancestors(ctx context.Context, repoPath string, ref string, limit int) ([]schema.CommitInfo, error)

	// CommitsInRange returns the commits reachable from to but not from from.
	CommitsInRange(ctx context.Context, repoPath string, from, to string) ([]string, error)

	// CommitMessage returns the full message of a commit.
	CommitMessage(ctx context.Context, repoPath string, commit string) (string, error)

	// --- Remote Updates ---

	// Fetch runs git fetch with the given arguments.
	Fetch(ctx context.Context, repoPath string, args ...string) error

	// SetBranch force-points a local branch at target.
	SetBranch(ctx context.Context, repoPath string, branch, target string) error
}

// SubtestLister returns the subtests a test binary reports for itself.
type SubtestLister interface {
	ListSubtests(ctx context.Context, test string) ([]string, error)
}

// StoreManager defines the interface for managing the SQL-backed stores.
// This allows the store layer to be mocked for testing.
type StoreManager interface {
	GetCacheStore() CacheStore
	GetHistoryStore() HistoryStore
}

// CacheStore defines the interface for cache data storage.
// This allows mocking the store for testing.
type CacheStore interface {
	Get(key string) ([]byte, int, int64, error)
	Set(key string, value []byte, version int, timestamp int64) error
	GetStatus() (schema.CacheStatus, error)
	Close() error
}

// HistoryStore records every job dispatched to a worker.
type HistoryStore interface {
	// RecordDispatch stores one dispatch.
	RecordDispatch(rec schema.DispatchRecord) error

	// Recent returns the newest dispatches, newest first.
	Recent(limit int) ([]schema.DispatchRecord, error)

	// Since returns all dispatches at or after t, oldest first.
	Since(t time.Time) ([]schema.DispatchRecord, error)

	// GetStatus returns status information about the history store
	GetStatus() (schema.HistoryStatus, error)

	// Close closes the underlying connection
	Close() error
}
