package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ktestci/ktestci/internal/contract"
	"github.com/ktestci/ktestci/schema"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	repo     = "/src/linux"
	testPath = "fs/basic.ktest"
)

// commitID returns a distinct fake commit id.
func commitID(i int) string {
	return fmt.Sprintf("%040x", 0xc0ffee00+i)
}

// history returns n fake commits, newest first.
func history(n int) []schema.CommitInfo {
	out := make([]schema.CommitInfo, n)
	for i := range out {
		out[i] = schema.CommitInfo{ID: commitID(i), Message: fmt.Sprintf("commit %d\n\nbody", i)}
	}
	return out
}

func userConfig(maxCommits uint64) *contract.UserConfig {
	return &contract.UserConfig{
		TestGroups: map[string]contract.TestGroup{
			"quick": {MaxCommits: maxCommits, TestDurationNice: 180, TestAlwaysPassesNice: 10, Tests: []string{testPath}},
		},
		Branches: map[string]contract.BranchConfig{
			"master": {Fetch: "git://example.org/linux.git master", Tests: []string{"quick"}},
		},
	}
}

func testConfig(t *testing.T, users ...string) *contract.Config {
	t.Helper()
	cfg := &contract.Config{
		LinuxRepo:          repo,
		OutputDir:          t.TempDir(),
		SubtestDurationMax: 100,
		SubtestDurationDef: 100,
		Users:              map[string]contract.UserEntry{},
	}
	for _, u := range users {
		cfg.Users[u] = contract.UserEntry{Config: userConfig(5)}
	}
	return cfg
}

// mockBranch makes user's master resolve to the tip of commits.
func mockBranch(g *contract.MockGitClient, user string, commits []schema.CommitInfo) {
	g.On("ResolveRef", mock.Anything, repo, user+"/master").Return(commits[0].ID, nil)
	g.On("Ancestors", mock.Anything, repo, commits[0].ID, mock.Anything).Return(commits, nil)
}

func newTestGenerator(t *testing.T, cfg *contract.Config, git contract.GitClient) *Generator {
	t.Helper()
	g := NewGenerator(cfg, git, contract.StaticLister{testPath: {"one", "two"}}, zerolog.Nop())
	return g
}

// putResult writes a result directory for a subtest of commit.
func putResult(t *testing.T, outputDir, commit, subtest, marker string, age time.Duration) {
	t.Helper()
	dir := filepath.Join(outputDir, commit, subtest)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	status := filepath.Join(dir, schema.StatusFileName)
	require.NoError(t, os.WriteFile(status, []byte(marker), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, schema.DurationFileName), []byte("42\n"), 0o644))
	mtime := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(status, mtime, mtime))
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var lines []string
	for _, l := range strings.Split(string(data), "\n") {
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
