// Package cmd defines the command-line interface for ktestci.
package cmd

import (
	"time"

	"github.com/ktestci/ktestci/internal/contract"
	"github.com/ktestci/ktestci/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	// Call initConfig on Cobra's initialization
	cobra.OnInitialize(initConfig)

	// Add primary subcommands to the root command
	rootCmd.AddCommand(genJobsCmd)
	rootCmd.AddCommand(getJobCmd)
	rootCmd.AddCommand(loopCmd)
	rootCmd.AddCommand(commitSummaryCmd)
	rootCmd.AddCommand(branchSummaryCmd)
	rootCmd.AddCommand(gcResultsCmd)
	rootCmd.AddCommand(rmResultsCmd)
	rootCmd.AddCommand(migrateMessagesCmd)
	rootCmd.AddCommand(durationsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)

	durationsCmd.AddCommand(durationsRebuildCmd)
	durationsCmd.AddCommand(durationsGetCmd)
	durationsCmd.AddCommand(durationsExportCmd)

	statusCmd.AddCommand(statusLogCmd)
	statusCmd.AddCommand(statusShowCmd)
	statusCmd.AddCommand(statusWorkersCmd)
	statusCmd.AddCommand(statusSummaryCmd)

	historyCmd.AddCommand(historyStatusCmd)
	historyCmd.AddCommand(historyClearCmd)
	historyCmd.AddCommand(historyMigrateCmd)
	historyCmd.AddCommand(historyExportCmd)

	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheStatusCmd)

	// Bind all persistent flags of rootCmd to Viper
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default "+schema.DefaultConfigFile+")")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("output", string(schema.TextOut), "Output format: text or json")
	rootCmd.PersistentFlags().String("output-file", "", "Optional path to write output to")
	rootCmd.PersistentFlags().Int("width", 0, "Terminal width override (0 = auto-detect)")
	rootCmd.PersistentFlags().String("color", "yes", "Enable colored labels in output (yes/no/true/false/1/0)")
	rootCmd.PersistentFlags().String("cache-backend", string(schema.NoneBackend), "Listing cache backend: sqlite or mysql or postgresql or none")
	rootCmd.PersistentFlags().String("cache-db-connect", "", "Database connection string for mysql/postgresql (e.g., user:pass@tcp(host:port)/dbname)")
	rootCmd.PersistentFlags().String("history-backend", string(schema.NoneBackend), "Dispatch history backend: sqlite or mysql or postgresql or none")
	rootCmd.PersistentFlags().String("history-db-connect", "", "Database connection string for the dispatch history")
	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		contract.LogFatal("Error binding root flags", err)
	}

	// Local flags are read from the command itself; several share a name.
	genJobsCmd.Flags().Bool("force", false, "Rebuild the queues even when no branch moved")
	getJobCmd.Flags().Bool("dry-run", false, "Show the batch without claiming it")
	migrateMessagesCmd.Flags().Bool("dry-run", false, "Only report which records would change")
	gcResultsCmd.Flags().Bool("dry-run", false, "Only report what would be removed")
	rmResultsCmd.Flags().Bool("dry-run", false, "Only report what would be removed")
	branchSummaryCmd.Flags().String("user", "", "Only this user")
	branchSummaryCmd.Flags().String("branch", "", "Only this branch (requires --user)")
	loopCmd.Flags().Duration("interval", 60*time.Second, "Time between loop iterations")
	loopCmd.Flags().Int("durations-every", 10, "Rebuild the duration table every N iterations (0 disables)")
	historyMigrateCmd.Flags().Int("target-version", -1, "Target migration version (-1 means latest, 0 means rollback to initial state)")
}
