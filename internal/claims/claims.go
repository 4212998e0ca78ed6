// Package claims hands out exclusive claims on (commit, subtest) pairs.
//
// A claim is the file output_dir/<commit>/<subtest>/status, created with
// O_EXCL. It starts empty and later receives the test runner's status
// marker. An empty claim older than the timeout is abandoned and may be
// reclaimed.
package claims

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ktestci/ktestci/internal/lockfile"
	"github.com/ktestci/ktestci/schema"
	"github.com/rs/zerolog"
)

// ErrAlreadyClaimed is returned by TryClaim when a live claim exists.
var ErrAlreadyClaimed = errors.New("subtest already claimed")

// Store manages claim files under an output directory.
type Store struct {
	OutputDir string
	Timeout   time.Duration
	Logger    zerolog.Logger
	Now       func() time.Time
}

// NewStore creates a Store with the default one hour timeout.
func NewStore(outputDir string, logger zerolog.Logger) *Store {
	return &Store{
		OutputDir: outputDir,
		Timeout:   schema.ClaimTimeoutSeconds * time.Second,
		Logger:    logger,
		Now:       time.Now,
	}
}

// Claim is a successfully created claim file.
type Claim struct {
	Commit  string
	Subtest string
	Path    string
}

// DirtySet collects commits whose results changed because a stale claim was
// removed. Their records need rebuilding.
type DirtySet map[string]struct{}

// Add marks commit dirty.
func (d DirtySet) Add(commit string) {
	d[commit] = struct{}{}
}

// Commits returns the dirty commits in order.
func (d DirtySet) Commits() []string {
	out := make([]string, 0, len(d))
	for c := range d {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Path returns the claim file of a fully-qualified subtest.
func (s *Store) Path(commit, subtest string) string {
	return filepath.Join(s.OutputDir, commit, subtest, schema.StatusFileName)
}

func (s *Store) stale(fi fs.FileInfo) bool {
	return fi.Mode().IsRegular() && fi.Size() == 0 && s.Now().Sub(fi.ModTime()) > s.Timeout
}

// reclaim removes the claim file when it is stale. The subtest directory is
// flocked and the file re-checked, so racing callers remove it at most once
// and never remove a claim created after the first removal.
func (s *Store) reclaim(commit, subtest string, dirty DirtySet) error {
	path := s.Path(commit, subtest)
	fi, err := os.Stat(path)
	if err != nil || !s.stale(fi) {
		return nil
	}

	l, err := lockfile.AcquireDir(filepath.Dir(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer func() { _ = l.Unlock() }()

	fi, err = os.Stat(path)
	if err != nil || !s.stale(fi) {
		return nil
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("removing stale claim %s: %w", path, err)
	}
	s.Logger.Info().
		Str("path", path).
		Time("mtime", fi.ModTime()).
		Dur("elapsed", s.Now().Sub(fi.ModTime())).
		Msg("deleted stale lock file")
	if dirty != nil {
		dirty.Add(commit)
	}
	return nil
}

// Exists reports whether subtest of commit is claimed or has a result,
// removing a stale claim first.
func (s *Store) Exists(commit, subtest string, dirty DirtySet) (bool, error) {
	if err := s.reclaim(commit, subtest, dirty); err != nil {
		return false, err
	}
	_, err := os.Lstat(s.Path(commit, subtest))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Peek is Exists without side effects: a stale claim reads as absent but is
// left in place.
func (s *Store) Peek(commit, subtest string) bool {
	fi, err := os.Lstat(s.Path(commit, subtest))
	if err != nil {
		return false
	}
	return !s.stale(fi)
}

// TryClaim creates the claim file of subtest, reclaiming a stale one first.
// It returns ErrAlreadyClaimed when another caller holds the claim.
func (s *Store) TryClaim(commit, subtest string, dirty DirtySet) (*Claim, error) {
	if err := s.reclaim(commit, subtest, dirty); err != nil {
		return nil, err
	}

	path := s.Path(commit, subtest)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating claim directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return nil, ErrAlreadyClaimed
	}
	if err != nil {
		return nil, fmt.Errorf("creating claim %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return &Claim{Commit: commit, Subtest: subtest, Path: path}, nil
}
