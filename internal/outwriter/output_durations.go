package outwriter

import (
	"fmt"
	"io"

	"github.com/ktestci/ktestci/internal/contract"
	"github.com/ktestci/ktestci/schema"
)

// PrintDurations outputs duration table rows, dispatching based on the output format configured.
func PrintDurations(stats []schema.TestStats, cfg *contract.Config) error {
	return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
		return WriteDurations(w, stats, cfg)
	}, "Wrote durations")
}

// WriteDurations writes run counts and the average duration per subtest.
func WriteDurations(w io.Writer, stats []schema.TestStats, cfg *contract.Config) error {
	if cfg.Output == schema.JSONOut {
		if stats == nil {
			stats = []schema.TestStats{}
		}
		return writeJSON(w, stats)
	}

	var data [][]string
	for _, s := range stats {
		rate := "-"
		if s.Runs > 0 {
			rate = fmt.Sprintf("%.0f%%", 100*float64(s.Passed)/float64(s.Runs))
		}
		data = append(data, []string{
			s.Name,
			fmt.Sprint(s.Runs),
			fmt.Sprint(s.Passed),
			fmt.Sprint(s.Failed),
			rate,
			schema.FormatDuration(s.Duration),
		})
	}
	return writeTable(w, []string{"Test", "Runs", "Passed", "Failed", "Pass rate", "Duration"}, data)
}
