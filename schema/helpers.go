package schema

import (
	"fmt"
	"strings"
)

// String returns the display name of a status.
func (s TestStatus) String() string {
	switch s {
	case StatusInProgress:
		return "In progress"
	case StatusPassed:
		return "Passed"
	case StatusFailed:
		return "Failed"
	case StatusNotRun:
		return "Not run"
	case StatusNotStarted:
		return "Not started"
	default:
		return "Unknown"
	}
}

// MarshalText renders the status by display name, so JSON output stays readable.
func (s TestStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseTestStatus maps the contents of a status marker file to a TestStatus.
// An empty marker is a claim that has not produced a result yet.
func ParseTestStatus(marker string) TestStatus {
	switch {
	case marker == "", strings.Contains(marker, "IN PROGRESS"):
		return StatusInProgress
	case strings.Contains(marker, "PASSED"):
		return StatusPassed
	case strings.Contains(marker, "FAILED"):
		return StatusFailed
	case strings.Contains(marker, "NOTRUN"):
		return StatusNotRun
	case strings.Contains(marker, "NOT STARTED"):
		return StatusNotStarted
	default:
		return StatusUnknown
	}
}

// SubtestFullName builds the fully-qualified name used for result directories
// and the duration table: "fs/xfs.ktest" + "generic/001" -> "fs.xfs.generic.001".
func SubtestFullName(test, subtest string) string {
	name := strings.ReplaceAll(test, ".ktest", "") + "." + subtest
	return strings.ReplaceAll(name, "/", ".")
}

// FormatDuration renders seconds in the most natural unit.
func FormatDuration(secs uint64) string {
	switch {
	case secs < 60:
		return fmt.Sprintf("%ds", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm", secs/60)
	case secs < 86400:
		return fmt.Sprintf("%.1fh", float64(secs)/3600)
	default:
		return fmt.Sprintf("%.1fd", float64(secs)/86400)
	}
}

// IsCommitID reports whether s looks like a full hex commit id.
func IsCommitID(s string) bool {
	if len(s) != CommitIDLength {
		return false
	}
	return IsHex(s)
}

// IsHex reports whether s is non-empty and only hex digits.
func IsHex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// CountStatus counts the tests of a commit with the given status.
func CountStatus(tests map[string]TestResult, status TestStatus) uint32 {
	var n uint32
	for _, r := range tests {
		if r.Status == status {
			n++
		}
	}
	return n
}

// TotalDuration sums the durations of all tests of a commit.
func TotalDuration(tests map[string]TestResult) uint64 {
	var sum uint64
	for _, r := range tests {
		sum += r.Duration
	}
	return sum
}

// NewBranchEntry summarizes a commit's results for the branch log.
func NewBranchEntry(id, message string, tests map[string]TestResult) BranchEntry {
	return BranchEntry{
		CommitID:   id,
		Message:    message,
		Passed:     CountStatus(tests, StatusPassed),
		Failed:     CountStatus(tests, StatusFailed),
		NotRun:     CountStatus(tests, StatusNotRun),
		NotStarted: CountStatus(tests, StatusNotStarted),
		InProgress: CountStatus(tests, StatusInProgress),
		Unknown:    CountStatus(tests, StatusUnknown),
		Duration:   TotalDuration(tests),
	}
}

// Subject returns the first line of a commit message.
func Subject(message string) string {
	subject, _, _ := strings.Cut(message, "\n")
	return subject
}
