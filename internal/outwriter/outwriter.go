// Package outwriter has output and writer logic.
package outwriter

import (
	"time"

	"github.com/ktestci/ktestci/internal/contract"
	"github.com/ktestci/ktestci/schema"
)

// OutWriter provides a unified interface for all output operations.
// It encapsulates the various output formats and provides a clean API for the commands.
type OutWriter struct {
	cfg *contract.Config
	now func() time.Time
}

// NewOutWriter creates a new instance of the output writer.
func NewOutWriter(cfg *contract.Config) *OutWriter {
	return &OutWriter{cfg: cfg, now: time.Now}
}

// WriteBranchLog prints a branch log using the configured output format.
func (ow *OutWriter) WriteBranchLog(user, branch string, entries []schema.BranchEntry) error {
	return PrintBranchLog(user, branch, entries, ow.cfg)
}

// WriteCommitResults prints one commit's results using the configured output format.
func (ow *OutWriter) WriteCommitResults(res schema.CommitResults) error {
	return PrintCommitResults(res, ow.cfg, ow.now())
}

// WriteWorkers prints the worker registry using the configured output format.
func (ow *OutWriter) WriteWorkers(workers []schema.Worker) error {
	return PrintWorkers(workers, ow.cfg, ow.now())
}

// WriteSummary prints queue and fair-share state using the configured output format.
func (ow *OutWriter) WriteSummary(stats schema.QueueStats, rows []schema.SummaryRow) error {
	return PrintSummary(stats, rows, ow.cfg)
}

// WriteDurations prints duration table rows using the configured output format.
func (ow *OutWriter) WriteDurations(stats []schema.TestStats) error {
	return PrintDurations(stats, ow.cfg)
}
