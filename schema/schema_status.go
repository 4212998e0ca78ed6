package schema

import "time"

// CacheStatus represents the status of the listing cache store.
type CacheStatus struct {
	Backend         string    `json:"backend"`
	Connected       bool      `json:"connected"`
	TotalEntries    int       `json:"total_entries"`
	LastEntryTime   time.Time `json:"last_entry_time"`
	OldestEntryTime time.Time `json:"oldest_entry_time"`
	TableSizeBytes  int64     `json:"table_size_bytes"`
}

// HistoryStatus represents the status of the dispatch history store.
type HistoryStatus struct {
	Backend           string           `json:"backend"`
	Connected         bool             `json:"connected"`
	TotalDispatches   int              `json:"total_dispatches"`
	LastDispatch      time.Time        `json:"last_dispatch"`
	OldestDispatch    time.Time        `json:"oldest_dispatch"`
	DispatchedSeconds uint64           `json:"dispatched_seconds"`
	TableSizes        map[string]int64 `json:"table_sizes"`
}

// DispatchRecord represents a row from the ktestci_dispatch_history table.
type DispatchRecord struct {
	DispatchID   string    `json:"dispatch_id"`
	User         string    `json:"user"`
	Branch       string    `json:"branch"`
	CommitID     string    `json:"commit"`
	Test         string    `json:"test"`
	Subtests     string    `json:"subtests"` // space separated
	Hostname     string    `json:"hostname"`
	Workdir      string    `json:"workdir"`
	ExpectedSecs uint64    `json:"expected_seconds"`
	DispatchedAt time.Time `json:"dispatched_at"`
}
