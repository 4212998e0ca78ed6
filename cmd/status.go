package cmd

import (
	"fmt"
	"time"

	"github.com/ktestci/ktestci/core"
	"github.com/ktestci/ktestci/internal/contract"
	"github.com/ktestci/ktestci/internal/outwriter"
	"github.com/ktestci/ktestci/internal/results"
	"github.com/ktestci/ktestci/internal/workers"
	"github.com/ktestci/ktestci/schema"
	"github.com/spf13/cobra"
)

// statusCmd groups the read-only reports.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report on queues, workers, results and branches",
	Long: `Read-only reports over the output directory. Every report prints a table
by default and JSON with --output json.

Subcommands:
  log     - Per-commit status counts of one branch
  show    - Per-subtest results of one commit
  workers - The worker registry
  summary - Pending and running jobs, and fair-share standing, per user`,
}

var statusLogCmd = &cobra.Command{
	Use:     "log <user> <branch>",
	Short:   "Show the published branch log of a user's branch",
	Args:    cobra.ExactArgs(2),
	PreRunE: configSetupWrapper,
	RunE: func(_ *cobra.Command, args []string) error {
		user, branch := args[0], args[1]
		entry, ok := cfg.Users[user]
		if !ok || entry.Err != nil {
			return fmt.Errorf("user %s not found", user)
		}
		if _, ok := entry.Config.Branches[branch]; !ok {
			return fmt.Errorf("user %s has no branch %s", user, branch)
		}
		entries, err := core.NewMaintenance(cfg, contract.NewLocalGitClient(), logger).ReadBranchLog(user, branch)
		if err != nil {
			return fmt.Errorf("reading branch log (run branch-summary first): %w", err)
		}
		return outwriter.PrintBranchLog(user, branch, entries, cfg)
	},
}

var statusShowCmd = &cobra.Command{
	Use:     "show <commit>",
	Short:   "Show the recorded results of a commit",
	Args:    cobra.ExactArgs(1),
	PreRunE: configSetupWrapper,
	RunE: func(_ *cobra.Command, args []string) error {
		if !schema.IsHex(args[0]) {
			return fmt.Errorf("invalid commit id %q", args[0])
		}
		res, err := results.NewStore(cfg.OutputDir, logger).Read(args[0])
		if err != nil {
			return err
		}
		return outwriter.PrintCommitResults(res, cfg, time.Now())
	},
}

var statusWorkersCmd = &cobra.Command{
	Use:     "workers",
	Short:   "Show every worker slot and what it last took",
	PreRunE: configSetupWrapper,
	RunE: func(_ *cobra.Command, _ []string) error {
		ws, err := workers.NewRegistry(cfg.OutputDir, logger).Workers()
		if err != nil {
			return err
		}
		return outwriter.PrintWorkers(ws, cfg, time.Now())
	},
}

var statusSummaryCmd = &cobra.Command{
	Use:     "summary",
	Short:   "Show queue depth and fair-share standing per user",
	PreRunE: configSetupWrapper,
	RunE: func(_ *cobra.Command, _ []string) error {
		registry := workers.NewRegistry(cfg.OutputDir, logger)
		stats, err := core.QueueStats(cfg, core.NewQueueStore(cfg.OutputDir), registry)
		if err != nil {
			return err
		}
		users, err := registry.UserStats()
		if err != nil {
			return err
		}
		return outwriter.PrintSummary(stats, core.SummaryRows(stats, users, cfg.UserNice, time.Now()), cfg)
	},
}
