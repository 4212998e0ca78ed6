package outwriter

import (
	"fmt"
	"io"

	"github.com/ktestci/ktestci/internal/contract"
	"github.com/ktestci/ktestci/schema"
)

// PrintBranchLog outputs a branch log, dispatching based on the output format configured.
func PrintBranchLog(user, branch string, entries []schema.BranchEntry, cfg *contract.Config) error {
	return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
		return WriteBranchLog(w, user, branch, entries, cfg)
	}, "Wrote branch log")
}

// WriteBranchLog writes per-commit status counts, newest commit first.
func WriteBranchLog(w io.Writer, user, branch string, entries []schema.BranchEntry, cfg *contract.Config) error {
	if cfg.Output == schema.JSONOut {
		return writeJSON(w, struct {
			User    string               `json:"user"`
			Branch  string               `json:"branch"`
			Commits []schema.BranchEntry `json:"commits"`
		}{user, branch, entries})
	}

	headers := []string{"Commit", "Subject", "Passed", "Failed", "Not run", "Not started", "In progress", "Unknown", "Duration"}
	subjectWidth := GetMaxTextWidth(cfg, 95)

	var data [][]string
	var passed, failed uint32
	for _, e := range entries {
		data = append(data, []string{
			shortCommit(e.CommitID),
			contract.TruncateString(schema.Subject(e.Message), subjectWidth),
			colorCount(e.Passed, passedColor),
			colorCount(e.Failed, failedColor),
			fmt.Sprint(e.NotRun),
			fmt.Sprint(e.NotStarted),
			colorCount(e.InProgress, inProgressColor),
			fmt.Sprint(e.Unknown),
			schema.FormatDuration(e.Duration),
		})
		passed += e.Passed
		failed += e.Failed
	}
	if err := writeTable(w, headers, data); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%s/%s: %d commits, %d passed, %d failed\n", user, branch, len(entries), passed, failed)
	return err
}
