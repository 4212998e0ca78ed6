// Package parquet exports the duration table and dispatch history to Parquet
// files using github.com/parquet-go/parquet-go.
package parquet

import (
	"fmt"
	"os"
	"time"

	"github.com/ktestci/ktestci/schema"
	"github.com/parquet-go/parquet-go"
)

// TestDuration is one row of the duration table.
type TestDuration struct {
	// Name is the fully-qualified subtest name, e.g. "fs.xfs.generic.001"
	Name string `parquet:"name,snappy"`

	Runs   int64 `parquet:"runs,snappy"`
	Passed int64 `parquet:"passed,snappy"`
	Failed int64 `parquet:"failed,snappy"`

	// DurationSecs is the average runtime over every recorded run
	DurationSecs int64 `parquet:"duration_seconds,snappy"`
}

// Dispatch is one job handed to a worker.
// This struct maps to the ktestci_dispatch_history database table.
type Dispatch struct {
	DispatchID string `parquet:"dispatch_id,snappy"`
	User       string `parquet:"user,snappy,dict"`
	Branch     string `parquet:"branch,snappy,dict"`
	CommitID   string `parquet:"commit_id,snappy"`
	Test       string `parquet:"test,snappy,dict"`

	// Subtests is space separated, in claim order
	Subtests string `parquet:"subtests,snappy"`

	Hostname     string `parquet:"hostname,snappy,dict"`
	Workdir      string `parquet:"workdir,snappy"`
	ExpectedSecs int64  `parquet:"expected_seconds,snappy"`

	// DispatchedAt is stored as TIMESTAMP with nanosecond precision
	DispatchedAt time.Time `parquet:"dispatched_at,snappy"`
}

// WriteDurationsParquet writes the duration table to a Parquet file.
func WriteDurationsParquet(data []TestDuration, outputPath string) error {
	return writeParquet(data, outputPath)
}

// WriteDispatchesParquet writes dispatch history rows to a Parquet file.
func WriteDispatchesParquet(data []Dispatch, outputPath string) error {
	return writeParquet(data, outputPath)
}

// writeParquet derives the schema from T's struct tags and writes every row.
func writeParquet[T any](data []T, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = file.Close() }()

	writer := parquet.NewGenericWriter[T](file)
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write data to parquet file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finish parquet file: %w", err)
	}
	return file.Close()
}

// ConvertTestStats converts duration table entries for Parquet export.
func ConvertTestStats(stats []schema.TestStats) []TestDuration {
	result := make([]TestDuration, len(stats))
	for i, s := range stats {
		result[i] = TestDuration{
			Name:         s.Name,
			Runs:         int64(s.Runs),
			Passed:       int64(s.Passed),
			Failed:       int64(s.Failed),
			DurationSecs: int64(s.Duration),
		}
	}
	return result
}

// ConvertDispatchRecords converts history rows for Parquet export.
func ConvertDispatchRecords(records []schema.DispatchRecord) []Dispatch {
	result := make([]Dispatch, len(records))
	for i, r := range records {
		result[i] = Dispatch{
			DispatchID:   r.DispatchID,
			User:         r.User,
			Branch:       r.Branch,
			CommitID:     r.CommitID,
			Test:         r.Test,
			Subtests:     r.Subtests,
			Hostname:     r.Hostname,
			Workdir:      r.Workdir,
			ExpectedSecs: int64(r.ExpectedSecs),
			DispatchedAt: r.DispatchedAt,
		}
	}
	return result
}
