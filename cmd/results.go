package cmd

import (
	"fmt"
	"time"

	"github.com/ktestci/ktestci/core"
	"github.com/ktestci/ktestci/internal/contract"
	"github.com/ktestci/ktestci/internal/outwriter"
	"github.com/ktestci/ktestci/schema"
	"github.com/spf13/cobra"
)

func newMaintenance(cmd *cobra.Command) *core.Maintenance {
	m := core.NewMaintenance(cfg, contract.NewLocalGitClient(), logger)
	if f := cmd.Flags().Lookup("dry-run"); f != nil {
		m.DryRun, _ = cmd.Flags().GetBool("dry-run")
	}
	return m
}

// commitSummaryCmd rebuilds one commit's record.
var commitSummaryCmd = &cobra.Command{
	Use:   "commit-summary <commit>",
	Short: "Rebuild a commit's result record from its result directories",
	Long: `Rescan <output_dir>/<commit>/*/status and publish <output_dir>/<commit>.pb.
The commit message of an existing record is kept. The rebuilt results are
printed.`,
	Args:    cobra.ExactArgs(1),
	PreRunE: configSetupWrapper,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !schema.IsHex(args[0]) {
			return fmt.Errorf("invalid commit id %q", args[0])
		}
		res, err := newMaintenance(cmd).CommitSummary(args[0])
		if err != nil {
			return err
		}
		return outwriter.PrintCommitResults(res, cfg, time.Now())
	},
}

// branchSummaryCmd publishes branch logs.
var branchSummaryCmd = &cobra.Command{
	Use:   "branch-summary",
	Short: "Publish per-commit status counts of tracked branches",
	Long: `Walk each tracked branch from its tip and publish the per-commit status
counts to <output_dir>/branch.<user>.<branch>.pb. Without flags every branch
of every valid user is written.

Examples:
  ktestci branch-summary
  ktestci branch-summary --user kent --branch bcachefs-testing`,
	PreRunE: configSetupWrapper,
	RunE: func(cmd *cobra.Command, _ []string) error {
		user, _ := cmd.Flags().GetString("user")
		branch, _ := cmd.Flags().GetString("branch")
		if branch != "" && user == "" {
			return fmt.Errorf("--branch requires --user")
		}
		_, err := newMaintenance(cmd).WriteBranchLogs(rootCtx, user, branch)
		return err
	},
}

// gcResultsCmd deletes results outside every test window.
var gcResultsCmd = &cobra.Command{
	Use:   "gc-results",
	Short: "Delete results of commits no user is testing anymore",
	Long: `Remove the result directories and records of commits outside every valid
user's test window (branch tip times the group's max_commits). Refuses to
run when no live commit can be found, since that usually means the
repository or the configuration is broken.`,
	PreRunE: configSetupWrapper,
	RunE: func(cmd *cobra.Command, _ []string) error {
		removed, err := newMaintenance(cmd).GC(rootCtx)
		logger.Info().Int("removed", len(removed)).Msg("gc-results")
		return err
	},
}

// rmResultsCmd deletes selected subtest results.
var rmResultsCmd = &cobra.Command{
	Use:   "rm-results <pattern> [<commit>|<from>..<to>]",
	Short: "Delete subtest results matching a pattern",
	Long: `Delete the subtest results whose fully-qualified name matches the glob
pattern, so they are scheduled again. A slash in the pattern matches the dot
of a stored name. The records of affected commits are rebuilt.

Examples:
  # Rerun every xfstests subtest on every commit
  ktestci rm-results 'xfstests.*'

  # Only on the commits of a range
  ktestci rm-results 'fs/bcachefs.*' v6.9..for-next`,
	Args:    cobra.RangeArgs(1, 2),
	PreRunE: configSetupWrapper,
	RunE: func(cmd *cobra.Command, args []string) error {
		var rev string
		if len(args) == 2 {
			rev = args[1]
		}
		m := newMaintenance(cmd)
		matched, err := m.RemoveResults(rootCtx, args[0], rev)
		for _, p := range matched {
			logger.Info().Str("path", p).Bool("dry_run", m.DryRun).Msg("removing result")
		}
		return err
	},
}

// migrateMessagesCmd backfills commit messages into records.
var migrateMessagesCmd = &cobra.Command{
	Use:   "migrate-messages",
	Short: "Backfill commit messages into existing result records",
	PreRunE: configSetupWrapper,
	RunE: func(cmd *cobra.Command, _ []string) error {
		counts, err := newMaintenance(cmd).MigrateMessages(rootCtx)
		logger.Info().
			Int("updated", counts.Updated).
			Int("skipped", counts.Skipped).
			Int("errors", counts.Errors).
			Msg("migrate-messages")
		return err
	},
}
