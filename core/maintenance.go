package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"github.com/hashicorp/go-multierror"
	"github.com/ktestci/ktestci/internal/contract"
	"github.com/ktestci/ktestci/internal/results"
	"github.com/ktestci/ktestci/internal/wire"
	"github.com/ktestci/ktestci/schema"
	"github.com/rs/zerolog"
)

// ErrNoLiveCommits is returned by GC when configured branches resolve to no
// commits at all, which would otherwise delete every result.
var ErrNoLiveCommits = errors.New("no live commits found, refusing to collect")

// Maintenance groups the repair and housekeeping operations on the output
// directory.
type Maintenance struct {
	Cfg     *contract.Config
	Git     contract.GitClient
	Results *results.Store
	DryRun  bool
	Logger  zerolog.Logger
}

// NewMaintenance wires a Maintenance over cfg's output directory.
func NewMaintenance(cfg *contract.Config, git contract.GitClient, logger zerolog.Logger) *Maintenance {
	return &Maintenance{
		Cfg:     cfg,
		Git:     git,
		Results: results.NewStore(cfg.OutputDir, logger),
		Logger:  logger,
	}
}

// CommitSummary rebuilds one commit's record from its result directories.
func (m *Maintenance) CommitSummary(commit string) (schema.CommitResults, error) {
	if err := m.Results.Write(commit); err != nil {
		return schema.CommitResults{}, err
	}
	return m.Results.Read(commit)
}

// BranchLogPath returns where the log of user's branch is published.
func BranchLogPath(outputDir, user, branch string) string {
	return filepath.Join(outputDir, schema.BranchLogPrefix+user+"."+branch+schema.RecordSuffix)
}

// BranchLog summarizes the recent commits of a user's branch that have
// results. The walk stops early after a long run of commits without any.
func (m *Maintenance) BranchLog(ctx context.Context, user, branch string) ([]schema.BranchEntry, error) {
	tip, err := resolveBranch(ctx, m.Git, m.Cfg, user, branch)
	if err != nil {
		return nil, err
	}
	commits, err := m.Git.Ancestors(ctx, m.Cfg.LinuxRepo, tip, schema.BranchLogWalkLimit)
	if err != nil {
		return nil, err
	}

	type row struct {
		info  schema.CommitInfo
		tests map[string]schema.TestResult
	}
	var rows []row
	var empty int
	for _, c := range commits {
		tests := m.Results.Tests(c.ID)
		if len(tests) == 0 {
			empty++
			if empty > schema.BranchLogMaxEmptyStreak {
				break
			}
		} else {
			empty = 0
		}
		rows = append(rows, row{c, tests})
		if len(rows) > schema.BranchLogCommitLimit {
			break
		}
	}

	var out []schema.BranchEntry
	for _, r := range rows {
		if len(r.tests) > 0 {
			out = append(out, schema.NewBranchEntry(r.info.ID, r.info.Message, r.tests))
		}
	}
	return out, nil
}

// WriteBranchLogs regenerates the branch logs of every valid user, or only
// of user and branch when they are set. It returns entries written per log.
func (m *Maintenance) WriteBranchLogs(ctx context.Context, user, branch string) (map[string]int, error) {
	users := m.Cfg.ValidUsers()
	if user != "" {
		entry, ok := m.Cfg.Users[user]
		if !ok {
			return nil, fmt.Errorf("user %s not found", user)
		}
		if entry.Err != nil {
			return nil, fmt.Errorf("config for user %s: %w", user, entry.Err)
		}
		users = []string{user}
	}

	var errs *multierror.Error
	written := make(map[string]int)
	for _, u := range users {
		branches := contract.SortedKeys(m.Cfg.Users[u].Config.Branches)
		if branch != "" {
			branches = []string{branch}
		}
		for _, b := range branches {
			entries, err := m.BranchLog(ctx, u, b)
			if err == nil {
				err = contract.WriteBytesAtomic(BranchLogPath(m.Cfg.OutputDir, u, b), wire.EncodeBranchLog(entries))
			}
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("branch log %s/%s: %w", u, b, err))
				continue
			}
			written[u+"/"+b] = len(entries)
			m.Logger.Info().Str("user", u).Str("branch", b).Int("commits", len(entries)).Msg("generated branch log")
		}
	}
	return written, errs.ErrorOrNil()
}

// ReadBranchLog loads a published branch log.
func (m *Maintenance) ReadBranchLog(user, branch string) ([]schema.BranchEntry, error) {
	data, err := os.ReadFile(BranchLogPath(m.Cfg.OutputDir, user, branch))
	if err != nil {
		return nil, err
	}
	return wire.DecodeBranchLog(data)
}

// LiveCommits returns every commit inside some user's test window.
func (m *Maintenance) LiveCommits(ctx context.Context) (map[string]struct{}, error) {
	live := make(map[string]struct{})
	for _, user := range m.Cfg.ValidUsers() {
		cfg := m.Cfg.Users[user].Config
		for _, branch := range contract.SortedKeys(cfg.Branches) {
			var depth uint64
			for _, name := range cfg.Branches[branch].Tests {
				depth = max(depth, cfg.TestGroups[name].MaxCommits)
			}
			if depth == 0 {
				continue
			}
			tip, err := resolveBranch(ctx, m.Git, m.Cfg, user, branch)
			if err != nil {
				m.Logger.Warn().Err(err).Str("user", user).Str("branch", branch).Msg("skipping branch")
				continue
			}
			commits, err := m.Git.Ancestors(ctx, m.Cfg.LinuxRepo, tip, int(depth))
			if err != nil {
				m.Logger.Warn().Err(err).Str("user", user).Str("branch", branch).Msg("walking branch")
				continue
			}
			for _, c := range commits {
				live[c.ID] = struct{}{}
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return live, nil
}

// collectable reports whether an output directory entry belongs to a commit
// outside live. Names that do not start with a commit id are never collected.
func collectable(name string, live map[string]struct{}) bool {
	if len(name) < schema.CommitIDLength || !schema.IsHex(name[:schema.CommitIDLength]) {
		return false
	}
	_, ok := live[name[:schema.CommitIDLength]]
	return !ok
}

// GC removes the result directories and records of commits no longer in
// any user's window. It returns the removed paths.
func (m *Maintenance) GC(ctx context.Context) ([]string, error) {
	live, err := m.LiveCommits(ctx)
	if err != nil {
		return nil, err
	}
	if len(live) == 0 && len(m.Cfg.ValidUsers()) > 0 {
		return nil, ErrNoLiveCommits
	}

	entries, err := os.ReadDir(m.Cfg.OutputDir)
	if err != nil {
		return nil, err
	}
	var errs *multierror.Error
	var removed []string
	for _, e := range entries {
		if !collectable(e.Name(), live) {
			continue
		}
		path := filepath.Join(m.Cfg.OutputDir, e.Name())
		m.Logger.Info().Str("path", path).Bool("dry_run", m.DryRun).Msg("removing")
		if !m.DryRun {
			if err := os.RemoveAll(path); err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
		}
		removed = append(removed, path)
	}
	return removed, errs.ErrorOrNil()
}

// skipForRemoval reports output directory entries that never hold results.
func skipForRemoval(name string) bool {
	for _, p := range []string{schema.JobsFilePrefix, "workers", "user_stats", "test_durations", "fetch"} {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return strings.HasSuffix(name, schema.LockSuffix) ||
		strings.HasSuffix(name, schema.TempSuffix) ||
		strings.HasSuffix(name, schema.RecordSuffix) ||
		len(name) < schema.CommitIDLength
}

// commitFilter resolves "a..b" to the commits of that range, and anything
// else to a single commit. An empty rev matches every commit.
func (m *Maintenance) commitFilter(ctx context.Context, rev string) (map[string]struct{}, error) {
	if rev == "" {
		return nil, nil
	}
	set := make(map[string]struct{})
	if from, to, ok := strings.Cut(rev, ".."); ok {
		commits, err := m.Git.CommitsInRange(ctx, m.Cfg.LinuxRepo, from, to)
		if err != nil {
			return nil, fmt.Errorf("parsing range %q: %w", rev, err)
		}
		for _, c := range commits {
			set[c] = struct{}{}
		}
		return set, nil
	}
	id, err := m.Git.ResolveRef(ctx, m.Cfg.LinuxRepo, rev)
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", rev, err)
	}
	set[id] = struct{}{}
	return set, nil
}

// RemoveResults deletes the subtest results whose name matches pattern,
// optionally only for the commits named by rev, then rebuilds the
// records of the affected commits. Slashes in pattern match the dots of
// stored names. It returns the matched paths.
func (m *Maintenance) RemoveResults(ctx context.Context, pattern, rev string) ([]string, error) {
	g, err := glob.Compile(strings.ReplaceAll(pattern, "/", "."))
	if err != nil {
		return nil, fmt.Errorf("invalid test pattern %q: %w", pattern, err)
	}
	commits, err := m.commitFilter(ctx, rev)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(m.Cfg.OutputDir)
	if err != nil {
		return nil, err
	}
	var matched []string
	affected := make(map[string]struct{})
	for _, e := range entries {
		name := e.Name()
		if skipForRemoval(name) || !e.IsDir() {
			continue
		}
		if commits != nil {
			if _, ok := commits[name[:schema.CommitIDLength]]; !ok {
				continue
			}
		}
		tests, err := os.ReadDir(filepath.Join(m.Cfg.OutputDir, name))
		if err != nil {
			continue
		}
		for _, t := range tests {
			if g.Match(t.Name()) {
				matched = append(matched, filepath.Join(m.Cfg.OutputDir, name, t.Name()))
				affected[name] = struct{}{}
			}
		}
	}
	if m.DryRun || len(matched) == 0 {
		return matched, nil
	}

	var errs *multierror.Error
	for _, p := range matched {
		if err := os.RemoveAll(p); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	m.Results.RebuildAll(contract.SortedKeys(affected))
	return matched, errs.ErrorOrNil()
}

// MigrateCounts summarizes a MigrateMessages run.
type MigrateCounts struct {
	Updated int
	Skipped int // commit unknown to git
	Errors  int
}

// MigrateMessages backfills the commit message of every record in the
// output directory from git.
func (m *Maintenance) MigrateMessages(ctx context.Context) (MigrateCounts, error) {
	var counts MigrateCounts
	commits, err := m.Results.RecordedCommits(20)
	if err != nil {
		return counts, err
	}
	for _, c := range commits {
		if err := ctx.Err(); err != nil {
			return counts, err
		}
		msg, err := m.Git.CommitMessage(ctx, m.Cfg.LinuxRepo, c)
		if err != nil {
			counts.Skipped++
			continue
		}
		short := c[:min(12, len(c))]
		if m.DryRun {
			m.Logger.Info().Str("commit", short).Str("subject", schema.Subject(msg)).Msg("would update")
			counts.Updated++
			continue
		}
		if err := m.Results.SetMessage(c, msg); err != nil {
			m.Logger.Warn().Err(err).Str("commit", short).Msg("updating message")
			counts.Errors++
			continue
		}
		m.Logger.Info().Str("commit", short).Str("subject", schema.Subject(msg)).Msg("updated")
		counts.Updated++
	}
	return counts, nil
}
