package core

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"al.essio.dev/pkg/shellescape"
	"github.com/hashicorp/go-multierror"
	"github.com/ktestci/ktestci/internal/claims"
	"github.com/ktestci/ktestci/internal/contract"
	"github.com/ktestci/ktestci/internal/durations"
	"github.com/ktestci/ktestci/internal/lockfile"
	"github.com/ktestci/ktestci/internal/results"
	"github.com/ktestci/ktestci/schema"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrFetchBusy is returned by FetchRemotes when another process holds fetch.lock.
var ErrFetchBusy = errors.New("fetch already in progress")

// Generator derives every user's queue from git history, the result store,
// the claim files and the duration table.
type Generator struct {
	Cfg     *contract.Config
	Git     contract.GitClient
	Lister  contract.SubtestLister
	Results *results.Store
	Claims  *claims.Store
	Queues  *QueueStore
	Logger  zerolog.Logger
	Now     func() time.Time
}

// NewGenerator wires a Generator over cfg's output directory.
func NewGenerator(cfg *contract.Config, git contract.GitClient, lister contract.SubtestLister, logger zerolog.Logger) *Generator {
	return &Generator{
		Cfg:     cfg,
		Git:     git,
		Lister:  lister,
		Results: results.NewStore(cfg.OutputDir, logger),
		Claims:  claims.NewStore(cfg.OutputDir, logger),
		Queues:  NewQueueStore(cfg.OutputDir),
		Logger:  logger,
		Now:     time.Now,
	}
}

// FetchRemotes fetches every configured branch into the local repository
// and points <user>/<branch> at the result. It reports false without
// fetching when the previous fetch finished within the cooldown window.
// Per-branch failures are logged and do not stop the others.
func (g *Generator) FetchRemotes(ctx context.Context) (bool, error) {
	path := filepath.Join(g.Cfg.OutputDir, schema.FetchLockFile)
	if fi, err := os.Stat(path); err == nil && g.Now().Sub(fi.ModTime()) < schema.FetchCooldownSeconds*time.Second {
		return false, nil
	}

	l, ok, err := lockfile.TryAcquire(path)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrFetchBusy
	}
	defer func() { _ = l.Unlock() }()

	g.Logger.Info().Msg("fetching remotes")
	for _, user := range g.Cfg.ValidUsers() {
		cfg := g.Cfg.Users[user].Config
		for _, branch := range contract.SortedKeys(cfg.Branches) {
			if err := g.fetchBranch(ctx, user, branch, cfg.Branches[branch]); err != nil {
				g.Logger.Warn().Err(err).Str("user", user).Str("branch", branch).Msg("fetch failed")
			}
		}
	}

	// Rewriting the lock file stamps the fetch time.
	if err := l.File().Truncate(0); err != nil {
		return true, err
	}
	if _, err := l.File().WriteAt([]byte("ok"), 0); err != nil {
		return true, err
	}
	return true, nil
}

func (g *Generator) fetchBranch(ctx context.Context, user, branch string, bc contract.BranchConfig) error {
	args := strings.Fields(bc.Fetch)
	g.Logger.Debug().
		Str("cmd", shellescape.QuoteCommand(append([]string{"git", "-C", g.Cfg.LinuxRepo, "fetch"}, args...))).
		Msg("fetch")
	if err := g.Git.Fetch(ctx, g.Cfg.LinuxRepo, args...); err != nil {
		return err
	}
	return g.Git.SetBranch(ctx, g.Cfg.LinuxRepo, user+"/"+branch, "FETCH_HEAD")
}

// ResolveBranch returns the tip of a user's branch, preferring the CI
// remote's tracking ref when one is configured.
func (g *Generator) ResolveBranch(ctx context.Context, user, branch string) (string, error) {
	return resolveBranch(ctx, g.Git, g.Cfg, user, branch)
}

func resolveBranch(ctx context.Context, git contract.GitClient, cfg *contract.Config, user, branch string) (string, error) {
	if cfg.CIRemote != "" {
		if id, err := git.ResolveRef(ctx, cfg.LinuxRepo, "refs/remotes/"+cfg.CIRemote+"/"+branch); err == nil {
			return id, nil
		}
	}
	id, err := git.ResolveRef(ctx, cfg.LinuxRepo, user+"/"+branch)
	if err != nil {
		return "", fmt.Errorf("branch %s/%s not found: %w", user, branch, err)
	}
	return id, nil
}

// Run fetches, then regenerates every valid user's queue unless the fetch
// reported no change and force is unset. A failed fetch still regenerates.
// It returns the number of jobs written per user.
func (g *Generator) Run(ctx context.Context, force bool) (map[string]int, error) {
	changed, err := g.FetchRemotes(ctx)
	if err != nil {
		g.Logger.Warn().Err(err).Msg("fetching remotes")
	} else if !changed && !force {
		g.Logger.Info().Msg("remotes unchanged, skipping updating job lists")
		return nil, nil
	}
	return g.Regenerate(ctx)
}

// Regenerate rewrites every valid user's queue and deletes the queues of
// users no longer configured. Users whose configuration failed to load keep
// their previous queue.
func (g *Generator) Regenerate(ctx context.Context) (map[string]int, error) {
	idx := durations.Open(durations.Path(g.Cfg.OutputDir))
	defer func() { _ = idx.Close() }()
	if err := idx.Err(); err != nil {
		g.Logger.Warn().Err(err).Msg("using default durations")
	}

	listings := g.listSubtests(ctx)
	dirty := claims.DirtySet{}

	queues := make(map[string][]schema.TestJob)
	for _, user := range contract.SortedKeys(g.Cfg.Users) {
		entry := g.Cfg.Users[user]
		if entry.Err != nil {
			g.Logger.Warn().Err(entry.Err).Str("user", user).Msg("skipping user with broken config")
			continue
		}
		queues[user] = g.UserJobs(ctx, user, entry.Config, idx, listings, dirty)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	counts, err := g.publish(queues)
	g.Results.RebuildAll(dirty.Commits())
	return counts, err
}

func (g *Generator) publish(queues map[string][]schema.TestJob) (map[string]int, error) {
	l, err := g.Queues.Lock()
	if err != nil {
		return nil, err
	}
	defer func() { _ = l.Unlock() }()

	var errs *multierror.Error
	counts := make(map[string]int, len(queues))
	for _, user := range contract.SortedKeys(queues) {
		if err := g.Queues.Write(user, queues[user]); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("writing queue for %s: %w", user, err))
			continue
		}
		counts[user] = len(queues[user])
		g.Logger.Info().Str("user", user).Int("jobs", counts[user]).Msg("wrote job list")
	}

	existing, err := g.Queues.Users()
	if err != nil {
		errs = multierror.Append(errs, err)
	}
	for _, user := range existing {
		if _, ok := g.Cfg.Users[user]; ok {
			continue
		}
		if err := g.Queues.Remove(user); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		g.Logger.Info().Str("user", user).Msg("removed job list of unconfigured user")
	}
	return counts, errs.ErrorOrNil()
}

// listSubtests asks every configured test for its subtests, concurrently.
// Tests that cannot list themselves are left out.
func (g *Generator) listSubtests(ctx context.Context) map[string][]string {
	tests := make(map[string]struct{})
	for _, user := range g.Cfg.ValidUsers() {
		for _, group := range g.Cfg.Users[user].Config.TestGroups {
			for _, t := range group.Tests {
				tests[t] = struct{}{}
			}
		}
	}

	var mu sync.Mutex
	out := make(map[string][]string, len(tests))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(8)
	for t := range tests {
		eg.Go(func() error {
			subtests, err := g.Lister.ListSubtests(ctx, t)
			if err != nil {
				g.Logger.Warn().Err(err).Str("test", t).Msg("listing subtests")
				return nil
			}
			mu.Lock()
			out[t] = subtests
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()
	return out
}

// UserJobs computes one user's queue, most urgent job last.
func (g *Generator) UserJobs(ctx context.Context, user string, cfg *contract.UserConfig,
	idx *durations.Index, listings map[string][]string, dirty claims.DirtySet,
) []schema.TestJob {
	now := g.Now()
	commitResults := make(map[string]map[string]schema.TestResult)
	var jobs []schema.TestJob

	for _, branch := range contract.SortedKeys(cfg.Branches) {
		if ctx.Err() != nil {
			break
		}
		bc := cfg.Branches[branch]

		var groups []contract.TestGroup
		var depth uint64
		for _, name := range bc.Tests {
			group, ok := cfg.TestGroups[name]
			if !ok {
				g.Logger.Warn().Str("user", user).Str("branch", branch).Str("group", name).Msg("unknown test group")
				continue
			}
			groups = append(groups, group)
			depth = max(depth, group.MaxCommits)
		}
		if len(groups) == 0 {
			continue
		}

		tip, err := g.ResolveBranch(ctx, user, branch)
		if err != nil {
			g.Logger.Warn().Err(err).Str("user", user).Str("branch", branch).Msg("skipping branch")
			continue
		}
		commits, err := g.Git.Ancestors(ctx, g.Cfg.LinuxRepo, tip, int(depth))
		if err != nil {
			g.Logger.Warn().Err(err).Str("user", user).Str("branch", branch).Msg("walking branch")
			continue
		}

		for _, group := range groups {
			window := commits[:min(uint64(len(commits)), group.MaxCommits)]
			for _, test := range group.Tests {
				subtests, ok := listings[test]
				if !ok {
					continue
				}
				for age, c := range window {
					res, ok := commitResults[c.ID]
					if !ok {
						res = g.Results.Tests(c.ID)
						commitResults[c.ID] = res
					}
					for _, sub := range subtests {
						job, ok := g.missingJob(res, c.ID, test, sub, now, dirty)
						if !ok {
							continue
						}
						stats, found := idx.Lookup(test, sub)
						job.User = user
						job.Branch = branch
						job.Age = uint64(age)
						job.Nice = JobNice(group, stats, found)
						job.Duration = g.Cfg.SubtestDurationDef
						if found {
							job.Duration = stats.Duration
						}
						jobs = append(jobs, job)
					}
				}
			}
		}
	}

	SortQueue(jobs)
	return jobs
}

func (g *Generator) missingJob(res map[string]schema.TestResult, commit, test, sub string,
	now time.Time, dirty claims.DirtySet,
) (schema.TestJob, bool) {
	fq := schema.SubtestFullName(test, sub)
	if HaveResult(res, fq, now) {
		return schema.TestJob{}, false
	}
	claimed, err := g.Claims.Exists(commit, fq, dirty)
	if err != nil {
		g.Logger.Warn().Err(err).Str("commit", commit).Str("subtest", fq).Msg("checking claim")
		return schema.TestJob{}, false
	}
	if claimed {
		return schema.TestJob{}, false
	}
	return schema.TestJob{Commit: commit, Test: test, Subtest: sub}, true
}

// HaveResult reports whether a subtest already has an outcome or is being
// handled. An in-progress result counts only while it is recent.
func HaveResult(res map[string]schema.TestResult, subtest string, now time.Time) bool {
	r, ok := res[subtest]
	if !ok {
		return false
	}
	return r.Status != schema.StatusInProgress || now.Sub(r.StartTime) < schema.InProgressGraceSeconds*time.Second
}

// JobNice computes the scheduling penalty of a subtest in group. Tests with
// a long one-sided history and slow tests are pushed back.
func JobNice(group contract.TestGroup, stats schema.TestStats, found bool) uint64 {
	nice := group.Nice
	if !found {
		return nice
	}
	if group.TestAlwaysPassesNice != 0 &&
		(stats.Passed == 0) != (stats.Failed == 0) &&
		stats.Passed+stats.Failed > group.TestAlwaysPassesNice {
		nice += group.TestAlwaysPassesNice
	}
	if group.TestDurationNice != 0 {
		nice += stats.Duration / group.TestDurationNice
	}
	return nice
}

// SortQueue orders jobs by (age+nice, commit, test, duration) descending,
// so the most urgent job ends up last.
func SortQueue(jobs []schema.TestJob) {
	slices.SortStableFunc(jobs, func(a, b schema.TestJob) int {
		return cmp.Or(
			cmp.Compare(a.Age+a.Nice, b.Age+b.Nice),
			strings.Compare(a.Commit, b.Commit),
			strings.Compare(a.Test, b.Test),
			cmp.Compare(a.Duration, b.Duration),
		)
	})
	slices.Reverse(jobs)
}
