package iocache

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/ktestci/ktestci/internal/contract"
	"github.com/ktestci/ktestci/schema"
)

const statusTimeLayout = "2006-01-02 15:04:05"

// PrintCacheStatus prints listing cache status information.
func PrintCacheStatus(w io.Writer, status schema.CacheStatus) {
	_, _ = fmt.Fprintf(w, "Cache Backend: %s\n", status.Backend)
	_, _ = fmt.Fprintf(w, "Connected: %t\n", status.Connected)
	if !status.Connected {
		return
	}
	_, _ = fmt.Fprintf(w, "Total Entries: %d\n", status.TotalEntries)
	if status.TotalEntries > 0 {
		_, _ = fmt.Fprintf(w, "Newest Listing: %s\n", status.LastEntryTime.Format(statusTimeLayout))
		_, _ = fmt.Fprintf(w, "Oldest Listing: %s\n", status.OldestEntryTime.Format(statusTimeLayout))
	}
	_, _ = fmt.Fprintf(w, "Table Size: %s\n", humanize.Bytes(uint64(max(status.TableSizeBytes, 0))))
}

// PrintHistoryStatus prints dispatch history status information.
func PrintHistoryStatus(w io.Writer, status schema.HistoryStatus) {
	_, _ = fmt.Fprintf(w, "History Backend: %s\n", status.Backend)
	_, _ = fmt.Fprintf(w, "Connected: %t\n", status.Connected)
	if !status.Connected {
		return
	}
	_, _ = fmt.Fprintf(w, "Total Dispatches: %d\n", status.TotalDispatches)
	if status.TotalDispatches > 0 {
		_, _ = fmt.Fprintf(w, "Last Dispatch: %s (%s)\n", status.LastDispatch.Format(statusTimeLayout), humanize.Time(status.LastDispatch))
		_, _ = fmt.Fprintf(w, "Oldest Dispatch: %s\n", status.OldestDispatch.Format(statusTimeLayout))
		_, _ = fmt.Fprintf(w, "Dispatched Work: %s\n", schema.FormatDuration(status.DispatchedSeconds))
	}
	_, _ = fmt.Fprintln(w, "Table Sizes:")
	for _, table := range contract.SortedKeys(status.TableSizes) {
		_, _ = fmt.Fprintf(w, "  %s: %d rows\n", table, status.TableSizes[table])
	}
}
