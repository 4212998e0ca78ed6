package iocache

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ktestci/ktestci/internal/contract"
	"github.com/ktestci/ktestci/internal/parquet"
)

// ExportHistory writes every recorded dispatch to "<outputFile>.dispatch.parquet".
func ExportHistory(w io.Writer, store contract.HistoryStore, outputFile string) error {
	if outputFile == "" {
		return errors.New("--output-file is required for export command")
	}

	status, err := store.GetStatus()
	if err != nil {
		return fmt.Errorf("failed to get history status: %w", err)
	}
	if status.TotalDispatches == 0 {
		return errors.New("no dispatch history found to export")
	}
	_, _ = fmt.Fprintf(w, "Exporting %d dispatches from %s backend...\n", status.TotalDispatches, status.Backend)

	records, err := store.Since(time.Unix(0, 0))
	if err != nil {
		return fmt.Errorf("failed to retrieve dispatch history: %w", err)
	}

	path := outputFile + ".dispatch.parquet"
	if err := parquet.WriteDispatchesParquet(parquet.ConvertDispatchRecords(records), path); err != nil {
		return fmt.Errorf("failed to write dispatch history: %w", err)
	}
	_, _ = fmt.Fprintf(w, "Exported %d dispatches to: %s\n", len(records), path)
	return nil
}
