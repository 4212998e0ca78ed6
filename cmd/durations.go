package cmd

import (
	"fmt"

	"github.com/ktestci/ktestci/internal/durations"
	"github.com/ktestci/ktestci/internal/outwriter"
	"github.com/ktestci/ktestci/internal/parquet"
	"github.com/ktestci/ktestci/internal/results"
	"github.com/ktestci/ktestci/schema"
	"github.com/spf13/cobra"
)

// durationsCmd groups the duration table commands.
var durationsCmd = &cobra.Command{
	Use:   "durations",
	Short: "Manage the per-subtest duration table",
	Long: `The duration table holds, for every subtest ever run, its run, pass and
fail counts and its average duration. The job generator and the claimer use
it to size batches and to prioritize tests.

Subcommands:
  rebuild - Recompute the table from every result record
  get     - Show the entry of one subtest, or every entry
  export  - Write the table as Parquet`,
}

var durationsRebuildCmd = &cobra.Command{
	Use:     "rebuild",
	Short:   "Recompute the duration table from every result record",
	PreRunE: configSetupWrapper,
	RunE: func(_ *cobra.Command, _ []string) error {
		_, err := durations.Rebuild(rootCtx, results.NewStore(cfg.OutputDir, logger))
		return err
	},
}

var durationsGetCmd = &cobra.Command{
	Use:   "get [<test> <subtest>]",
	Short: "Show duration statistics",
	Long: `Show the duration table entry of one subtest, or the whole table when no
arguments are given.

Examples:
  ktestci durations get fs/bcachefs/single_device.ktest mount_remount
  ktestci durations get --output json`,
	Args:    noneOrTwo,
	PreRunE: configSetupWrapper,
	RunE: func(_ *cobra.Command, args []string) error {
		idx := durations.Open(durations.Path(cfg.OutputDir))
		defer func() { _ = idx.Close() }()
		if err := idx.Err(); err != nil {
			return err
		}

		if len(args) == 2 {
			stats, ok := idx.Lookup(args[0], args[1])
			if !ok {
				return fmt.Errorf("no duration recorded for %s", schema.SubtestFullName(args[0], args[1]))
			}
			return outwriter.PrintDurations([]schema.TestStats{stats}, cfg)
		}
		all, err := idx.All()
		if err != nil {
			return err
		}
		return outwriter.PrintDurations(all, cfg)
	},
}

var durationsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the duration table to <output-file>.durations.parquet",
	PreRunE: configSetupWrapper,
	RunE: func(_ *cobra.Command, _ []string) error {
		if cfg.OutputFile == "" {
			return fmt.Errorf("--output-file is required for export")
		}
		idx := durations.Open(durations.Path(cfg.OutputDir))
		defer func() { _ = idx.Close() }()
		if err := idx.Err(); err != nil {
			return err
		}
		all, err := idx.All()
		if err != nil {
			return err
		}
		path := cfg.OutputFile + ".durations.parquet"
		if err := parquet.WriteDurationsParquet(parquet.ConvertTestStats(all), path); err != nil {
			return err
		}
		logger.Info().Int("tests", len(all)).Str("path", path).Msg("exported durations")
		return nil
	},
}

func noneOrTwo(_ *cobra.Command, args []string) error {
	if len(args) != 0 && len(args) != 2 {
		return fmt.Errorf("expected no arguments or <test> <subtest>, got %d", len(args))
	}
	return nil
}
