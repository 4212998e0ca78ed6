package cmd

import (
	"fmt"

	"github.com/ktestci/ktestci/internal/iocache"
	"github.com/spf13/cobra"
)

// historyCmd manages the dispatch history.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Manage the dispatch history",
	Long: `Every job handed out by get-job is recorded in the dispatch history when
a history backend is configured (--history-backend).

Subcommands:
  status  - Show history statistics
  clear   - Remove the whole history
  migrate - Move the history schema to a given version
  export  - Write the history as Parquet`,
}

var historyStatusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Display dispatch history statistics",
	PreRunE: sharedSetupWrapper,
	RunE: func(cmd *cobra.Command, _ []string) error {
		status, err := iocache.Manager.GetHistoryStore().GetStatus()
		if err != nil {
			return fmt.Errorf("failed to get history status: %w", err)
		}
		iocache.PrintHistoryStatus(cmd.OutOrStdout(), status)
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the whole dispatch history",
	Long: `For SQLite: Deletes the database file
For MySQL/PostgreSQL: Drops the history table`,
	PreRunE: configSetupWrapper,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := iocache.ClearHistory(cfg.HistoryBackend, iocache.HistoryConnString(cfg)); err != nil {
			return fmt.Errorf("failed to clear history: %w", err)
		}
		_, err := fmt.Fprintln(cmd.OutOrStdout(), "History cleared successfully.")
		return err
	},
}

var historyMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the dispatch history schema",
	Long: `Apply or roll back schema migrations of the dispatch history table.

Examples:
  # Migrate to the latest version
  ktestci history migrate

  # Roll back everything
  ktestci history migrate --target-version 0`,
	PreRunE: configSetupWrapper,
	RunE: func(cmd *cobra.Command, _ []string) error {
		target, _ := cmd.Flags().GetInt("target-version")
		return iocache.MigrateHistory(cmd.OutOrStdout(), cfg.HistoryBackend, iocache.HistoryConnString(cfg), target)
	},
}

var historyExportCmd = &cobra.Command{
	Use:     "export",
	Short:   "Write the dispatch history to <output-file>.dispatch.parquet",
	PreRunE: sharedSetupWrapper,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return iocache.ExportHistory(cmd.OutOrStdout(), iocache.Manager.GetHistoryStore(), cfg.OutputFile)
	},
}
