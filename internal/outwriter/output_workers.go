package outwriter

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ktestci/ktestci/internal/contract"
	"github.com/ktestci/ktestci/schema"
)

// PrintWorkers outputs the worker registry, dispatching based on the output format configured.
func PrintWorkers(workers []schema.Worker, cfg *contract.Config, now time.Time) error {
	return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
		return WriteWorkers(w, workers, cfg, now)
	}, "Wrote workers")
}

// WriteWorkers writes one row per (hostname, workdir) slot, ordered by host.
func WriteWorkers(w io.Writer, workers []schema.Worker, cfg *contract.Config, now time.Time) error {
	sorted := slices.Clone(workers)
	slices.SortFunc(sorted, func(a, b schema.Worker) int {
		return cmp.Or(cmp.Compare(a.Hostname, b.Hostname), cmp.Compare(a.Workdir, b.Workdir))
	})

	if cfg.Output == schema.JSONOut {
		if sorted == nil {
			sorted = []schema.Worker{}
		}
		return writeJSON(w, sorted)
	}

	testsWidth := GetMaxTextWidth(cfg, 90)
	var data [][]string
	busy := 0
	for _, wk := range sorted {
		since := humanize.RelTime(wk.StartTime, now, "ago", "from now")
		if wk.Idle() {
			data = append(data, []string{wk.Hostname, wk.Workdir, idleColor.Sprint("idle"), "", "", "", "", since})
			continue
		}
		busy++
		data = append(data, []string{
			wk.Hostname,
			wk.Workdir,
			wk.User,
			wk.Branch,
			shortCommit(wk.Commit),
			fmt.Sprint(wk.Age),
			contract.TruncateString(wk.Tests, testsWidth),
			since,
		})
	}
	headers := []string{"Host", "Workdir", "User", "Branch", "Commit", "Age", "Tests", "Since"}
	if err := writeTable(w, headers, data); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d workers, %d busy\n", len(sorted), busy)
	return err
}
