package cmd

import (
	"fmt"

	"github.com/ktestci/ktestci/internal/iocache"
	"github.com/spf13/cobra"
)

// cacheCmd focused on cache management.
//
// Note: clear only loads the configuration; it must not hold the store open
// while dropping it.
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the subtest listing cache",
	Long: `Manage the cache of "list-tests" output that speeds up gen-jobs.

Each test binary is asked for its subtests once per modification time; the
answer is kept in the configured cache backend.

Supported backends: SQLite, MySQL, PostgreSQL, or None (default, no caching)

Subcommands:
  status - Show cache statistics and connection info
  clear  - Remove all cached listings`,
}

// cacheClearCmd clears the cache.
var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cached subtest listings",
	Long: `Delete all cached listings from the configured backend.

For SQLite: Deletes the database file
For MySQL/PostgreSQL: Drops the cache table

Examples:
  ktestci cache clear

  # Clear a MySQL cache (set connection string via env variable)
  KTESTCI_CACHE_BACKEND=mysql KTESTCI_CACHE_DB_CONNECT="..." ktestci cache clear`,
	PreRunE: configSetupWrapper,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := iocache.ClearCache(cfg.CacheBackend, iocache.CacheConnString(cfg)); err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
		_, err := fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared successfully.")
		return err
	},
}

// cacheStatusCmd shows cache status.
var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display cache statistics and connection details",
	Long: `Show the backend, connection status, number of cached listings, the
newest and oldest listing and the size of the cache table.`,
	PreRunE: sharedSetupWrapper,
	RunE: func(cmd *cobra.Command, _ []string) error {
		status, err := iocache.Manager.GetCacheStore().GetStatus()
		if err != nil {
			return fmt.Errorf("failed to get cache status: %w", err)
		}
		iocache.PrintCacheStatus(cmd.OutOrStdout(), status)
		return nil
	},
}
