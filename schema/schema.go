// Package schema has the records, constants and helpers shared by every part of ktestci.
package schema

import "time"

// TestResult is the outcome of one subtest on one commit.
type TestResult struct {
	Status    TestStatus `json:"status"`
	StartTime time.Time  `json:"start_time"`
	Duration  uint64     `json:"duration"` // seconds
}

// CommitResults is the cached record for a commit, keyed by fully-qualified subtest name.
type CommitResults struct {
	CommitID string                `json:"commit"`
	Message  string                `json:"message,omitempty"`
	Tests    map[string]TestResult `json:"tests"`
}

// CommitInfo is one entry of an ancestry walk.
type CommitInfo struct {
	ID      string
	Message string
}

// TestJob is one unit of missing work. It is never persisted on its own.
type TestJob struct {
	User     string
	Branch   string
	Commit   string
	Age      uint64 // distance from the branch tip
	Nice     uint64
	Duration uint64 // expected seconds
	Test     string
	Subtest  string
}

// JobBatch is the result of one claim pass: subtests of a single (commit, test).
type JobBatch struct {
	User     string
	Branch   string
	Commit   string
	Age      uint64
	Test     string
	Subtests []string
	Duration uint64 // sum of expected durations
}

// Worker is a heartbeat record for one (hostname, workdir) slot.
type Worker struct {
	Hostname  string    `json:"hostname"`
	Workdir   string    `json:"workdir"`
	StartTime time.Time `json:"starttime"`
	User      string    `json:"user"`
	Branch    string    `json:"branch"`
	Age       uint64    `json:"age"`
	Commit    string    `json:"commit"`
	Tests     string    `json:"tests"`
}

// Idle reports whether the worker heartbeated without work.
func (w Worker) Idle() bool {
	return w.Branch == "" && w.Tests == ""
}

// UserStats is the runtime accounting for one user.
type UserStats struct {
	User        string    `json:"user"`
	Total       uint64    `json:"total_seconds"`
	Recent      float64   `json:"recent_seconds"` // as of LastUpdated
	LastUpdated time.Time `json:"last_updated"`
}

// TestStats is one row of the duration table.
type TestStats struct {
	Name     string `json:"name"`
	Runs     uint64 `json:"nr"`
	Passed   uint64 `json:"passed"`
	Failed   uint64 `json:"failed"`
	Duration uint64 `json:"duration"` // average seconds
}

// BranchEntry summarizes one commit of a branch log.
type BranchEntry struct {
	CommitID   string `json:"commit"`
	Message    string `json:"message"`
	Passed     uint32 `json:"passed"`
	Failed     uint32 `json:"failed"`
	NotRun     uint32 `json:"notrun"`
	NotStarted uint32 `json:"notstarted"`
	InProgress uint32 `json:"inprogress"`
	Unknown    uint32 `json:"unknown"`
	Duration   uint64 `json:"duration"`
}

// QueueStats counts pending queue lines and running workers.
type QueueStats struct {
	PendingByUser map[string]int `json:"pending_by_user"`
	RunningByUser map[string]int `json:"running_by_user"`
	TotalPending  int            `json:"pending"`
	TotalRunning  int            `json:"running"`
}

// SummaryRow is one user's line of the queue summary.
type SummaryRow struct {
	User         string  `json:"user"`
	Pending      int     `json:"pending"`
	Running      int     `json:"running"`
	TotalSeconds uint64  `json:"total_seconds"`
	Recent       float64 `json:"recent_seconds"` // decayed to the report time
	Nice         int64   `json:"nice"`
	Effective    float64 `json:"effective_seconds"`
}
