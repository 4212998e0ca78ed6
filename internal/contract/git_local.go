package contract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/ktestci/ktestci/schema"
)

// Separators used by the Ancestors log format.
const (
	fieldSep  = "\x1f"
	recordSep = "\x1e"
)

// LocalGitClient implements the GitClient interface by executing the
// local 'git' binary installed on the machine.
type LocalGitClient struct{}

var _ GitClient = &LocalGitClient{} // Compile-time check

// NewLocalGitClient creates a new instance of the local Git client.
func NewLocalGitClient() *LocalGitClient {
	return &LocalGitClient{}
}

// Run executes a git command and returns its stdout output.
func (c *LocalGitClient) Run(ctx context.Context, repoPath string, args ...string) ([]byte, error) {
	fullArgs := append([]string{"-C", repoPath}, args...)
	cmd := exec.CommandContext(ctx, "git", fullArgs...)
	out, err := cmd.Output()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		stderr := strings.TrimSpace(string(exitErr.Stderr))
		return nil, fmt.Errorf("git command failed in %q: %s", repoPath, stderr)
	} else if err != nil {
		return nil, fmt.Errorf("git command failed: %w. Ensure Git is installed and available on your PATH", err)
	}
	return out, nil
}

// ResolveRef implements the GitClient interface.
func (c *LocalGitClient) ResolveRef(ctx context.Context, repoPath string, ref string) (string, error) {
	out, err := c.Run(ctx, repoPath, "rev-parse", "--verify", "-q", ref+"^{commit}")
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", ref, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Ancestors implements the GitClient interface.
func (c *LocalGitClient) Ancestors(ctx context.Context, repoPath string, ref string, limit int) ([]schema.CommitInfo, error) {
	args := []string{
		"log",
		"--format=%H" + fieldSep + "%B" + recordSep,
		"-n", strconv.Itoa(limit),
		ref,
		"--",
	}
	out, err := c.Run(ctx, repoPath, args...)
	if err != nil {
		return nil, err
	}
	return ParseAncestors(out), nil
}

// ParseAncestors splits the output of the Ancestors log format into commits.
func ParseAncestors(out []byte) []schema.CommitInfo {
	var commits []schema.CommitInfo
	for rec := range bytes.SplitSeq(out, []byte(recordSep)) {
		rec = bytes.TrimLeft(rec, "\n")
		if len(rec) == 0 {
			continue
		}
		id, msg, _ := strings.Cut(string(rec), fieldSep)
		commits = append(commits, schema.CommitInfo{ID: id, Message: msg})
	}
	return commits
}

// CommitsInRange implements the GitClient interface.
func (c *LocalGitClient) CommitsInRange(ctx context.Context, repoPath string, from, to string) ([]string, error) {
	out, err := c.Run(ctx, repoPath, "rev-list", to, "^"+from, "--")
	if err != nil {
		return nil, err
	}
	return strings.Fields(string(out)), nil
}

// CommitMessage implements the GitClient interface.
func (c *LocalGitClient) CommitMessage(ctx context.Context, repoPath string, commit string) (string, error) {
	out, err := c.Run(ctx, repoPath, "log", "-n", "1", "--format=%B", commit, "--")
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(out), "\n"), nil
}

// Fetch implements the GitClient interface.
func (c *LocalGitClient) Fetch(ctx context.Context, repoPath string, args ...string) error {
	_, err := c.Run(ctx, repoPath, append([]string{"fetch"}, args...)...)
	return err
}

// SetBranch implements the GitClient interface.
func (c *LocalGitClient) SetBranch(ctx context.Context, repoPath string, branch, target string) error {
	_, err := c.Run(ctx, repoPath, "branch", "-f", branch, target)
	return err
}
