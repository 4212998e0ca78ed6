// Package results is the per-commit store of test outcomes.
//
// The per-subtest status directories under output_dir/<commit>/ are the
// source of truth; output_dir/<commit>.pb is a derived record rebuilt from
// them and published by rename.
package results

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ktestci/ktestci/internal/contract"
	"github.com/ktestci/ktestci/internal/wire"
	"github.com/ktestci/ktestci/schema"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned by Read when a commit has no cached record.
var ErrNotFound = errors.New("no results for commit")

// Store reads and publishes commit records in an output directory.
type Store struct {
	OutputDir string
	Logger    zerolog.Logger
}

// NewStore creates a Store rooted at outputDir.
func NewStore(outputDir string, logger zerolog.Logger) *Store {
	return &Store{OutputDir: outputDir, Logger: logger}
}

// RecordPath returns the path of a commit's cached record.
func (s *Store) RecordPath(commit string) string {
	return filepath.Join(s.OutputDir, commit+schema.RecordSuffix)
}

// CommitDir returns the directory holding a commit's per-subtest results.
func (s *Store) CommitDir(commit string) string {
	return filepath.Join(s.OutputDir, commit)
}

// ScanFS reads every subtest directory of a commit. Directories without a
// readable status file are skipped.
func (s *Store) ScanFS(commit string) map[string]schema.TestResult {
	tests := make(map[string]schema.TestResult)

	entries, err := os.ReadDir(s.CommitDir(commit))
	if err != nil {
		return tests
	}
	for _, e := range entries {
		if r, ok := readTestResult(filepath.Join(s.CommitDir(commit), e.Name())); ok {
			tests[e.Name()] = r
		}
	}
	return tests
}

func readTestResult(dir string) (schema.TestResult, bool) {
	statusPath := filepath.Join(dir, schema.StatusFileName)
	marker, err := os.ReadFile(statusPath)
	if err != nil {
		return schema.TestResult{}, false
	}
	fi, err := os.Stat(statusPath)
	if err != nil {
		return schema.TestResult{}, false
	}

	var duration uint64
	if raw, err := os.ReadFile(filepath.Join(dir, schema.DurationFileName)); err == nil {
		duration, _ = strconv.ParseUint(strings.TrimSpace(string(raw)), 10, 64)
	}

	return schema.TestResult{
		Status:    schema.ParseTestStatus(string(marker)),
		StartTime: fi.ModTime().Truncate(time.Second).UTC(),
		Duration:  duration,
	}, true
}

// Write rescans a commit's results on disk and republishes its record.
// A message already present in the old record is carried over.
func (s *Store) Write(commit string) error {
	var message string
	if old, err := s.Read(commit); err == nil {
		message = old.Message
	}
	return s.WriteWithMessage(commit, message)
}

// WriteWithMessage rescans a commit's results on disk and publishes them with message.
func (s *Store) WriteWithMessage(commit, message string) error {
	return s.publish(schema.CommitResults{
		CommitID: commit,
		Message:  message,
		Tests:    s.ScanFS(commit),
	})
}

// SetMessage replaces only the message of an existing record. The commit
// directory is not consulted, so this works after it has been collected.
func (s *Store) SetMessage(commit, message string) error {
	r, err := s.Read(commit)
	if err != nil {
		return err
	}
	r.Message = message
	return s.publish(r)
}

func (s *Store) publish(r schema.CommitResults) error {
	if err := contract.WriteBytesAtomic(s.RecordPath(r.CommitID), wire.EncodeCommit(r)); err != nil {
		return fmt.Errorf("publishing results for %s: %w", r.CommitID, err)
	}
	return nil
}

// Read returns a commit's cached record.
func (s *Store) Read(commit string) (schema.CommitResults, error) {
	data, err := os.ReadFile(s.RecordPath(commit))
	if errors.Is(err, fs.ErrNotExist) {
		return schema.CommitResults{}, ErrNotFound
	}
	if err != nil {
		return schema.CommitResults{}, err
	}
	r, err := wire.DecodeCommit(data)
	if err != nil {
		return schema.CommitResults{}, fmt.Errorf("decoding %s: %w", s.RecordPath(commit), err)
	}
	if r.CommitID == "" {
		r.CommitID = commit
	}
	return r, nil
}

// Tests returns a commit's cached results, or an empty map when the record
// is missing or unreadable. Records are regenerable, so damage is logged and
// treated as "no results yet".
func (s *Store) Tests(commit string) map[string]schema.TestResult {
	r, err := s.Read(commit)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.Logger.Warn().Err(err).Str("commit", commit).Msg("ignoring unreadable results")
		}
		return map[string]schema.TestResult{}
	}
	return r.Tests
}

// RebuildAll republishes the record of every commit in commits, logging failures.
func (s *Store) RebuildAll(commits []string) {
	for _, c := range commits {
		if err := s.Write(c); err != nil {
			s.Logger.Warn().Err(err).Str("commit", c).Msg("rebuilding results")
		}
	}
}

// RecordedCommits lists the commit-like stems of every record in the output directory.
// minLen bounds how short a hex stem may be.
func (s *Store) RecordedCommits(minLen int) ([]string, error) {
	entries, err := os.ReadDir(s.OutputDir)
	if err != nil {
		return nil, err
	}
	var commits []string
	for _, e := range entries {
		stem, ok := strings.CutSuffix(e.Name(), schema.RecordSuffix)
		if !ok || e.IsDir() || len(stem) < minLen || !schema.IsHex(stem) {
			continue
		}
		commits = append(commits, stem)
	}
	return commits, nil
}
