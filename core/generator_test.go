package core

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ktestci/ktestci/internal/contract"
	"github.com/ktestci/ktestci/internal/wire"
	"github.com/ktestci/ktestci/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRegenerateWritesQueue(t *testing.T) {
	cfg := testConfig(t, "alice")
	git := new(contract.MockGitClient)
	commits := history(5)
	mockBranch(git, "alice", commits)
	g := newTestGenerator(t, cfg, git)

	counts, err := g.Regenerate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"alice": 10}, counts)

	lines := readLines(t, g.Queues.Path("alice"))
	require.Len(t, lines, 10)
	assert.Equal(t, "master "+commits[0].ID+" 0 "+testPath+" one", lines[9], "most urgent job last")
	assert.Equal(t, "master "+commits[0].ID+" 0 "+testPath+" two", lines[8])
	assert.Equal(t, "master "+commits[4].ID+" 4 "+testPath+" one", lines[1])
	git.AssertExpectations(t)
}

func TestRegenerateSkipsExistingResults(t *testing.T) {
	cfg := testConfig(t, "alice")
	git := new(contract.MockGitClient)
	commits := history(5)
	mockBranch(git, "alice", commits)
	g := newTestGenerator(t, cfg, git)

	putResult(t, cfg.OutputDir, commits[0].ID, "fs.basic.one", "PASSED", time.Hour)
	putResult(t, cfg.OutputDir, commits[1].ID, "fs.basic.two", "IN PROGRESS", time.Minute)
	require.NoError(t, g.Results.Write(commits[0].ID))
	require.NoError(t, g.Results.Write(commits[1].ID))

	// The record says in progress for hours but the directory is gone:
	// the run was lost and needs rescheduling.
	putResult(t, cfg.OutputDir, commits[3].ID, "fs.basic.one", "IN PROGRESS", 2*time.Hour)
	require.NoError(t, g.Results.Write(commits[3].ID))
	require.NoError(t, os.RemoveAll(filepath.Join(cfg.OutputDir, commits[3].ID)))

	// A live claim without a record yet.
	_, err := g.Claims.TryClaim(commits[2].ID, "fs.basic.two", nil)
	require.NoError(t, err)

	counts, err := g.Regenerate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, counts["alice"])

	lines := readLines(t, g.Queues.Path("alice"))
	assert.NotContains(t, lines, "master "+commits[0].ID+" 0 "+testPath+" one")
	assert.Contains(t, lines, "master "+commits[3].ID+" 3 "+testPath+" one")
	assert.NotContains(t, lines, "master "+commits[1].ID+" 1 "+testPath+" two")
	assert.NotContains(t, lines, "master "+commits[2].ID+" 2 "+testPath+" two")
}

func TestRegenerateReclaimsStaleLocks(t *testing.T) {
	cfg := testConfig(t, "alice")
	git := new(contract.MockGitClient)
	commits := history(5)
	mockBranch(git, "alice", commits)
	g := newTestGenerator(t, cfg, git)

	stale := g.Claims.Path(commits[3].ID, "fs.basic.one")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, nil, 0o644))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	counts, err := g.Regenerate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, counts["alice"])

	_, err = os.Stat(stale)
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(g.Results.RecordPath(commits[3].ID))
	assert.NoError(t, err, "dirty commit rebuilt")
}

func TestRegenerateUsers(t *testing.T) {
	cfg := testConfig(t, "alice")
	cfg.Users["carol"] = contract.UserEntry{Err: errors.New("bad toml")}
	git := new(contract.MockGitClient)
	mockBranch(git, "alice", history(2))
	g := newTestGenerator(t, cfg, git)

	require.NoError(t, os.WriteFile(g.Queues.Path("bob"), []byte("old\n"), 0o644))
	require.NoError(t, os.WriteFile(g.Queues.Path("carol"), []byte("kept\n"), 0o644))

	_, err := g.Regenerate(context.Background())
	require.NoError(t, err)

	_, err = os.Stat(g.Queues.Path("bob"))
	assert.ErrorIs(t, err, os.ErrNotExist, "unconfigured user's queue removed")
	data, err := os.ReadFile(g.Queues.Path("carol"))
	require.NoError(t, err)
	assert.Equal(t, "kept\n", string(data), "broken user keeps old queue")
}

func TestRegenerateSkipsUnresolvableBranch(t *testing.T) {
	cfg := testConfig(t, "alice", "bob")
	git := new(contract.MockGitClient)
	mockBranch(git, "alice", history(1))
	git.On("ResolveRef", mock.Anything, repo, "bob/master").Return("", errors.New("unknown revision"))
	g := newTestGenerator(t, cfg, git)

	counts, err := g.Regenerate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"alice": 2, "bob": 0}, counts)
}

func TestResolveBranchPrefersRemote(t *testing.T) {
	cfg := testConfig(t, "alice")
	cfg.CIRemote = "ci"
	git := new(contract.MockGitClient)
	git.On("ResolveRef", mock.Anything, repo, "refs/remotes/ci/master").Return(commitID(7), nil).Once()
	git.On("ResolveRef", mock.Anything, repo, "refs/remotes/ci/next").Return("", errors.New("nope")).Once()
	git.On("ResolveRef", mock.Anything, repo, "alice/next").Return(commitID(8), nil).Once()
	g := newTestGenerator(t, cfg, git)

	id, err := g.ResolveBranch(context.Background(), "alice", "master")
	require.NoError(t, err)
	assert.Equal(t, commitID(7), id)

	id, err = g.ResolveBranch(context.Background(), "alice", "next")
	require.NoError(t, err)
	assert.Equal(t, commitID(8), id)
	git.AssertExpectations(t)
}

func TestRunFetchCooldown(t *testing.T) {
	cfg := testConfig(t, "alice")
	git := new(contract.MockGitClient)
	mockBranch(git, "alice", history(1))
	git.On("Fetch", mock.Anything, repo, "git://example.org/linux.git", "master").Return(nil)
	git.On("SetBranch", mock.Anything, repo, "alice/master", "FETCH_HEAD").Return(nil)
	g := newTestGenerator(t, cfg, git)
	ctx := context.Background()

	counts, err := g.Run(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, counts["alice"])
	git.AssertNumberOfCalls(t, "Fetch", 1)

	data, err := os.ReadFile(filepath.Join(cfg.OutputDir, schema.FetchLockFile))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))

	counts, err = g.Run(ctx, false)
	require.NoError(t, err)
	assert.Nil(t, counts, "unchanged remotes skip regeneration")
	git.AssertNumberOfCalls(t, "Fetch", 1)

	counts, err = g.Run(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 2, counts["alice"], "forced")

	g.Now = func() time.Time { return time.Now().Add(time.Minute) }
	_, err = g.Run(ctx, false)
	require.NoError(t, err)
	git.AssertNumberOfCalls(t, "Fetch", 2)
}

func TestFetchFailureStillRegenerates(t *testing.T) {
	cfg := testConfig(t, "alice")
	git := new(contract.MockGitClient)
	mockBranch(git, "alice", history(1))
	git.On("Fetch", mock.Anything, repo, mock.Anything, mock.Anything).Return(errors.New("network down"))
	g := newTestGenerator(t, cfg, git)

	counts, err := g.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 2, counts["alice"])
	git.AssertNotCalled(t, "SetBranch", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestJobNice(t *testing.T) {
	group := contract.TestGroup{Nice: 3, TestDurationNice: 60, TestAlwaysPassesNice: 10}

	assert.Equal(t, uint64(3), JobNice(group, schema.TestStats{}, false))
	assert.Equal(t, uint64(3+2), JobNice(group, schema.TestStats{Passed: 5, Duration: 120}, true), "too few runs")
	assert.Equal(t, uint64(3+10+2), JobNice(group, schema.TestStats{Passed: 11, Duration: 120}, true), "always passes")
	assert.Equal(t, uint64(3+10), JobNice(group, schema.TestStats{Failed: 20, Duration: 30}, true), "always fails")
	assert.Equal(t, uint64(3+2), JobNice(group, schema.TestStats{Passed: 20, Failed: 1, Duration: 120}, true), "flaky")

	group.TestDurationNice = 0
	group.TestAlwaysPassesNice = 0
	assert.Equal(t, uint64(3), JobNice(group, schema.TestStats{Passed: 50, Duration: 9999}, true))
}

func TestGeneratorUsesDurations(t *testing.T) {
	cfg := testConfig(t, "alice")
	git := new(contract.MockGitClient)
	commits := history(2)
	mockBranch(git, "alice", commits)
	g := newTestGenerator(t, cfg, git)

	// "one" is slow enough to fall behind "two" of the next commit.
	table := wire.EncodeDurations([]schema.TestStats{{Name: "fs.basic.one", Runs: 1, Passed: 1, Duration: 360}})
	require.NoError(t, os.WriteFile(filepath.Join(cfg.OutputDir, schema.DurationsFile), table, 0o644))

	_, err := g.Regenerate(context.Background())
	require.NoError(t, err)
	lines := readLines(t, g.Queues.Path("alice"))
	assert.Equal(t, []string{
		"master " + commits[1].ID + " 1 " + testPath + " one",
		"master " + commits[0].ID + " 0 " + testPath + " one",
		"master " + commits[1].ID + " 1 " + testPath + " two",
		"master " + commits[0].ID + " 0 " + testPath + " two",
	}, lines)
}

func TestSortQueue(t *testing.T) {
	jobs := []schema.TestJob{
		{Commit: "b", Test: "t", Age: 1},
		{Commit: "a", Test: "t", Age: 0, Nice: 1},
		{Commit: "a", Test: "t", Age: 0},
		{Commit: "a", Test: "s", Age: 0, Duration: 5},
		{Commit: "a", Test: "s", Age: 0, Duration: 1},
	}
	SortQueue(jobs)
	assert.Equal(t, []schema.TestJob{
		{Commit: "b", Test: "t", Age: 1},
		{Commit: "a", Test: "t", Age: 0, Nice: 1},
		{Commit: "a", Test: "t", Age: 0},
		{Commit: "a", Test: "s", Age: 0, Duration: 5},
		{Commit: "a", Test: "s", Age: 0, Duration: 1},
	}, jobs)
}

func TestHaveResult(t *testing.T) {
	now := time.Now()
	res := map[string]schema.TestResult{
		"passed":  {Status: schema.StatusPassed, StartTime: now.Add(-24 * time.Hour)},
		"running": {Status: schema.StatusInProgress, StartTime: now.Add(-10 * time.Minute)},
		"stuck":   {Status: schema.StatusInProgress, StartTime: now.Add(-31 * time.Minute)},
	}
	assert.True(t, HaveResult(res, "passed", now))
	assert.True(t, HaveResult(res, "running", now))
	assert.False(t, HaveResult(res, "stuck", now))
	assert.False(t, HaveResult(res, "missing", now))
}

func TestFetchRemotes(t *testing.T) {
	cfg := testConfig(t, "alice")
	git := new(contract.MockGitClient)
	git.On("Fetch", mock.Anything, repo, "git://example.org/linux.git", "master").Return(nil).Once()
	git.On("SetBranch", mock.Anything, repo, "alice/master", "FETCH_HEAD").Return(nil).Once()
	g := newTestGenerator(t, cfg, git)

	changed, err := g.FetchRemotes(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)

	data, err := os.ReadFile(filepath.Join(cfg.OutputDir, schema.FetchLockFile))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))

	// Inside the cooldown nothing is fetched again.
	changed, err = g.FetchRemotes(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)

	g.Now = func() time.Time { return time.Now().Add(time.Minute) }
	git.On("Fetch", mock.Anything, repo, "git://example.org/linux.git", "master").Return(errors.New("unreachable")).Once()
	changed, err = g.FetchRemotes(context.Background())
	require.NoError(t, err, "a failed branch fetch is logged, not returned")
	assert.True(t, changed)
	git.AssertExpectations(t)
}
