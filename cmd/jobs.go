package cmd

import (
	"fmt"
	"time"

	"github.com/ktestci/ktestci/core"
	"github.com/ktestci/ktestci/internal/contract"
	"github.com/ktestci/ktestci/internal/durations"
	"github.com/ktestci/ktestci/internal/iocache"
	"github.com/ktestci/ktestci/internal/results"
	"github.com/spf13/cobra"
)

// newGenerator wires the generator to the local git binary and the listing cache.
func newGenerator() *core.Generator {
	lister := contract.NewExecSubtestLister(cfg.KtestDir, iocache.Manager.GetCacheStore(), logger)
	return core.NewGenerator(cfg, contract.NewLocalGitClient(), lister, logger)
}

// genJobsCmd regenerates every user's queue.
var genJobsCmd = &cobra.Command{
	Use:   "gen-jobs",
	Short: "Fetch tracked branches and rebuild every user's job queue",
	Long: `Fetch every configured branch, then walk each branch's recent commits and
write the subtests still lacking a result to <output_dir>/jobs.<user>, most
urgent job last.

The queues are only rebuilt when the fetch moved something, unless --force
is given.

Examples:
  # Regular cron invocation
  ktestci gen-jobs

  # Rebuild after editing a user's test groups
  ktestci gen-jobs --force`,
	PreRunE: sharedSetupWrapper,
	RunE: func(cmd *cobra.Command, _ []string) error {
		force, _ := cmd.Flags().GetBool("force")
		counts, err := newGenerator().Run(rootCtx, force)
		if err != nil {
			return err
		}
		for _, user := range contract.SortedKeys(counts) {
			logger.Info().Str("user", user).Int("jobs", counts[user]).Msg("wrote job list")
		}
		return nil
	},
}

// getJobCmd hands one batch to a worker.
var getJobCmd = &cobra.Command{
	Use:   "get-job <hostname> <workdir>",
	Short: "Claim the next batch of subtests for a worker",
	Long: `Pick the user with the lowest decayed runtime that still has claimable
work, claim a batch of subtests from the end of that user's queue and print
it as a single line:

  TEST_JOB <branch> <commit> <test> <subtest>...

Nothing is printed when no job is available; that is not an error. The
worker's slot in the registry is refreshed either way.

Examples:
  ktestci get-job build1 /var/lib/ktest/0

  # Show what would be handed out without claiming anything
  ktestci get-job --dry-run build1 /var/lib/ktest/0`,
	Args:    cobra.ExactArgs(2),
	PreRunE: sharedSetupWrapper,
	RunE: func(cmd *cobra.Command, args []string) error {
		d := core.NewDispatcher(cfg, iocache.Manager.GetHistoryStore(), logger)
		d.DryRun, _ = cmd.Flags().GetBool("dry-run")

		batch, err := d.GetJob(rootCtx, args[0], args[1])
		if err != nil {
			return err
		}
		if batch == nil {
			logger.Debug().Str("host", args[0]).Msg("no job available")
			return nil
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "TEST_JOB %s %s %s\n", batch.Branch, batch.Commit, core.BatchTests(batch))
		return err
	},
}

// loopCmd runs the periodic maintenance cycle forever.
var loopCmd = &cobra.Command{
	Use:   "loop",
	Short: "Regenerate queues periodically, with results GC and duration rebuilds",
	Long: `Run gen-jobs followed by gc-results every --interval, rebuilding the
duration table first on every --durations-every-th iteration.

The main config file and the user files are read again on every iteration;
a change to the user configuration regenerates the queues even when the
remotes did not move. Changing the cache or history backend needs a
restart.

Failures of one iteration are logged; the loop keeps going until the
process is stopped.`,
	PreRunE: sharedSetupWrapper,
	RunE: func(cmd *cobra.Command, _ []string) error {
		interval, _ := cmd.Flags().GetDuration("interval")
		every, _ := cmd.Flags().GetInt("durations-every")
		if interval <= 0 {
			return fmt.Errorf("--interval must be positive")
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for i := 0; ; i++ {
			force := i > 0 && reloadConfig()
			runLoopIteration(force, every > 0 && i%every == 0)

			select {
			case <-rootCtx.Done():
				return rootCtx.Err()
			case <-ticker.C:
			}
		}
	},
}

// runLoopIteration runs one loop cycle against the current configuration.
func runLoopIteration(force, rebuildDurations bool) {
	if rebuildDurations {
		if _, err := durations.Rebuild(rootCtx, results.NewStore(cfg.OutputDir, logger)); err != nil {
			logger.Warn().Err(err).Msg("rebuilding durations")
		}
	}

	gen := newGenerator()
	if _, err := gen.Run(rootCtx, force); err != nil {
		logger.Warn().Err(err).Msg("gen-jobs")
	}
	if _, err := core.NewMaintenance(cfg, gen.Git, logger).GC(rootCtx); err != nil {
		logger.Warn().Err(err).Msg("collecting results")
	}
}
