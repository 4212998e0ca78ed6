package outwriter

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ktestci/ktestci/internal/contract"
	"github.com/ktestci/ktestci/schema"
)

// PrintCommitResults outputs one commit's results, dispatching based on the output format configured.
func PrintCommitResults(res schema.CommitResults, cfg *contract.Config, now time.Time) error {
	return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
		return WriteCommitResults(w, res, cfg, now)
	}, "Wrote commit results")
}

// WriteCommitResults writes one row per subtest, sorted by name.
func WriteCommitResults(w io.Writer, res schema.CommitResults, cfg *contract.Config, now time.Time) error {
	if cfg.Output == schema.JSONOut {
		return writeJSON(w, res)
	}

	if res.Message != "" {
		if _, err := fmt.Fprintf(w, "%s %s\n", shortCommit(res.CommitID), schema.Subject(res.Message)); err != nil {
			return err
		}
	}

	var data [][]string
	for _, name := range contract.SortedKeys(res.Tests) {
		r := res.Tests[name]
		started := "-"
		if !r.StartTime.IsZero() {
			started = humanize.RelTime(r.StartTime, now, "ago", "from now")
		}
		data = append(data, []string{name, ColorStatus(r.Status), schema.FormatDuration(r.Duration), started})
	}
	if err := writeTable(w, []string{"Test", "Status", "Duration", "Started"}, data); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "%d tests: %d passed, %d failed, %d in progress, total %s\n",
		len(res.Tests),
		schema.CountStatus(res.Tests, schema.StatusPassed),
		schema.CountStatus(res.Tests, schema.StatusFailed),
		schema.CountStatus(res.Tests, schema.StatusInProgress),
		schema.FormatDuration(schema.TotalDuration(res.Tests)))
	return err
}
