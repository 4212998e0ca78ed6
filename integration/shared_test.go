//go:build basic || database

package integration

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	// sharedBinaryPath holds the path to a shared ktestci binary built once for all tests.
	sharedBinaryPath string

	// buildOnce ensures we only build the binary once.
	buildOnce sync.Once

	// buildMutex protects the shared binary path.
	buildMutex sync.Mutex

	// tempDir holds the temp directory for cleanup.
	tempDir string
)

// TestMain handles setup and cleanup for all integration tests.
func TestMain(m *testing.M) {
	// Run all tests
	code := m.Run()

	// Cleanup the shared binary after all tests
	if tempDir != "" {
		_ = os.RemoveAll(tempDir)
	}

	os.Exit(code)
}

// getBinary returns the path to the ktestci binary, building it once if needed.
func getBinary() string {
	buildMutex.Lock()
	defer buildMutex.Unlock()

	buildOnce.Do(func() {
		// Create a temp directory for the binary
		var err error
		tempDir, err = os.MkdirTemp("", "ktestci-integration-*")
		if err != nil {
			panic(fmt.Sprintf("failed to create temp dir: %v", err))
		}

		binPath := filepath.Join(tempDir, "ktestci")
		buildCmd := exec.Command("go", "build", "-o", binPath, ".")
		buildCmd.Dir = ".." // Build from parent directory (project root)
		if out, err := buildCmd.CombinedOutput(); err != nil {
			panic(fmt.Sprintf("failed to build ktestci: %v\n%s", err, out))
		}

		sharedBinaryPath = binPath
	})

	return sharedBinaryPath
}

// fixture is a self-contained CI installation: an upstream repository with
// a few commits, an empty local repository to fetch into, a ktest checkout
// with one test, one user, and the main config file.
type fixture struct {
	Root     string
	Upstream string
	Config   string
	Output   string
	Commits  []string // upstream history, oldest first
}

func git(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=ci", "GIT_AUTHOR_EMAIL=ci@example.org",
		"GIT_COMMITTER_NAME=ci", "GIT_COMMITTER_EMAIL=ci@example.org",
	)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
	return strings.TrimSpace(string(out))
}

func newFixture(t *testing.T, extraConfig string) *fixture {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}

	root := t.TempDir()
	f := &fixture{
		Root:     root,
		Upstream: filepath.Join(root, "upstream"),
		Config:   filepath.Join(root, "ktest-ci.toml"),
		Output:   filepath.Join(root, "out"),
	}

	require.NoError(t, os.MkdirAll(f.Upstream, 0o755))
	git(t, f.Upstream, "init", "-q", "-b", "master")
	for i := range 3 {
		git(t, f.Upstream, "commit", "-q", "--allow-empty", "-m", fmt.Sprintf("commit %d", i))
		f.Commits = append(f.Commits, git(t, f.Upstream, "rev-parse", "HEAD"))
	}

	linux := filepath.Join(root, "linux")
	require.NoError(t, os.MkdirAll(linux, 0o755))
	git(t, linux, "init", "-q")

	tests := filepath.Join(root, "ktest", "tests", "fs")
	require.NoError(t, os.MkdirAll(tests, 0o755))
	script := "#!/bin/sh\nif [ \"$1\" = list-tests ]; then echo basic fsck; fi\n"
	require.NoError(t, os.WriteFile(filepath.Join(tests, "quick.ktest"), []byte(script), 0o755))

	users := filepath.Join(root, "users")
	require.NoError(t, os.MkdirAll(users, 0o755))
	user := fmt.Sprintf(`
[test_group.quick]
max_commits = 2
tests = ["fs/quick.ktest"]

[branch.master]
fetch = "%s master"
tests = ["quick"]
`, f.Upstream)
	require.NoError(t, os.WriteFile(filepath.Join(users, "alice.toml"), []byte(user), 0o644))

	require.NoError(t, os.MkdirAll(f.Output, 0o755))
	main := fmt.Sprintf(`linux_repo = %q
output_dir = %q
ktest_dir = %q
users_dir = %q
%s`, linux, f.Output, filepath.Join(root, "ktest"), users, extraConfig)
	require.NoError(t, os.WriteFile(f.Config, []byte(main), 0o644))
	return f
}

// run executes the binary against the fixture's config and returns stdout.
func (f *fixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := exec.Command(getBinary(), append(args, "--config", f.Config, "--color", "no")...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		t.Logf("Command failed: %s\nStderr: %s", cmd.String(), stderr.String())
	}
	return stdout.String(), err
}
