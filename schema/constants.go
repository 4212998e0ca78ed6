package schema

// Custom string types for type safety.
type (
	// OutputMode represents the format of the output.
	OutputMode string

	// DatabaseBackend represents the database backend for the SQL stores.
	DatabaseBackend string
)

// TestStatus is the outcome of a single subtest run.
type TestStatus uint8

// All test statuses. The numeric values are part of the record encoding.
const (
	StatusInProgress TestStatus = iota
	StatusPassed
	StatusFailed
	StatusNotRun
	StatusNotStarted
	StatusUnknown
)

// AllTestStatuses lists every status in encoding order.
var AllTestStatuses = []TestStatus{
	StatusInProgress,
	StatusPassed,
	StatusFailed,
	StatusNotRun,
	StatusNotStarted,
	StatusUnknown,
}

// All output modes supported.
const (
	TextOut OutputMode = "text" // default
	JSONOut OutputMode = "json"
)

// All database backends supported.
const (
	SQLiteBackend     DatabaseBackend = "sqlite"
	MySQLBackend      DatabaseBackend = "mysql"
	PostgreSQLBackend DatabaseBackend = "postgresql"
	NoneBackend       DatabaseBackend = "none" // default
)

// ValidOutputModes lists all valid output modes.
var ValidOutputModes = map[OutputMode]struct{}{
	TextOut: {},
	JSONOut: {},
}

// ValidDatabaseBackends lists all valid database backends.
var ValidDatabaseBackends = map[DatabaseBackend]struct{}{
	SQLiteBackend:     {},
	MySQLBackend:      {},
	PostgreSQLBackend: {},
	NoneBackend:       {},
}

// File and directory names inside output_dir.
const (
	JobsFilePrefix     = "jobs."
	JobsLockFile       = "jobs.lock"
	FetchLockFile      = "fetch.lock"
	WorkersFile        = "workers.pb"
	WorkersLockFile    = "workers.lock"
	UserStatsFile      = "user_stats.pb"
	UserStatsLockFile  = "user_stats.lock"
	DurationsFile      = "test_durations.pb"
	StatusFileName     = "status"
	DurationFileName   = "duration"
	RecordSuffix       = ".pb"
	TempSuffix         = ".new"
	LockSuffix         = ".lock"
	BranchLogPrefix    = "branch."
	CommitIDLength     = 40
	DefaultConfigFile  = "/etc/ktest-ci.toml"
	DefaultTestsSubdir = "tests"
)

// Timing constants shared by the generator, claimer and scheduler.
const (
	ClaimTimeoutSeconds     = 3600      // zero-length claim older than this is abandoned
	InProgressGraceSeconds  = 30 * 60   // InProgress results younger than this are being handled
	FetchCooldownSeconds    = 30        // fetch.lock mtime inside this window means unchanged
	RecentHalfLifeSeconds   = 24 * 3600 // half-life of decayed recent runtime
	MinNiceMultiplier       = 0.1
	DefaultSubtestDuration  = 120
	DefaultSubtestBudget    = 3600
	BranchLogWalkLimit      = 150
	BranchLogCommitLimit    = 50
	BranchLogMaxEmptyStreak = 100
)

// Test group defaults applied when a user file leaves a field unset.
const (
	DefaultMaxCommits           = 50
	DefaultGroupNice            = 0
	DefaultTestDurationNice     = 180
	DefaultTestAlwaysPassesNice = 10
)
