package outwriter

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/ktestci/ktestci/internal/contract"
	"github.com/ktestci/ktestci/schema"
)

// PrintSummary outputs the queue summary, dispatching based on the output format configured.
func PrintSummary(stats schema.QueueStats, rows []schema.SummaryRow, cfg *contract.Config) error {
	return writeWithFile(cfg.OutputFile, func(w io.Writer) error {
		return WriteSummary(w, stats, rows, cfg)
	}, "Wrote summary")
}

// WriteSummary writes pending and running work plus fair-share standing per user.
func WriteSummary(w io.Writer, stats schema.QueueStats, rows []schema.SummaryRow, cfg *contract.Config) error {
	if cfg.Output == schema.JSONOut {
		return writeJSON(w, struct {
			TotalPending int          `json:"pending"`
			TotalRunning int          `json:"running"`
			Users        []schema.SummaryRow `json:"users"`
		}{stats.TotalPending, stats.TotalRunning, rows})
	}

	var data [][]string
	for _, r := range rows {
		data = append(data, []string{
			r.User,
			humanize.Comma(int64(r.Pending)),
			fmt.Sprint(r.Running),
			schema.FormatDuration(r.TotalSeconds),
			schema.FormatDuration(uint64(r.Recent)),
			fmt.Sprint(r.Nice),
		})
	}
	if err := writeTable(w, []string{"User", "Pending", "Running", "Total", "Recent", "Nice"}, data); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%s jobs pending, %d running\n", humanize.Comma(int64(stats.TotalPending)), stats.TotalRunning)
	return err
}
