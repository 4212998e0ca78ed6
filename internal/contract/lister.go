package contract

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// listingCacheVersion is bumped when the cached listing encoding changes.
const listingCacheVersion = 1

// ExecSubtestLister runs "<ktest_dir>/tests/<test> list-tests" and memoizes the
// answer until the test file's mtime changes. When Cache is set, listings are
// also persisted keyed by test path and stamped with that mtime.
type ExecSubtestLister struct {
	TestsDir string
	Cache    CacheStore
	Logger   zerolog.Logger

	mu   sync.Mutex
	memo map[string]listing
}

type listing struct {
	stamp    int64 // test file mtime, nanoseconds
	subtests []string
}

var _ SubtestLister = &ExecSubtestLister{} // Compile-time check

// NewExecSubtestLister creates a lister rooted at ktestDir/tests.
func NewExecSubtestLister(ktestDir string, cache CacheStore, logger zerolog.Logger) *ExecSubtestLister {
	return &ExecSubtestLister{
		TestsDir: filepath.Join(ktestDir, "tests"),
		Cache:    cache,
		Logger:   logger,
		memo:     make(map[string]listing),
	}
}

// ListSubtests implements the SubtestLister interface.
func (l *ExecSubtestLister) ListSubtests(ctx context.Context, test string) ([]string, error) {
	path := filepath.Join(l.TestsDir, test)
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("test %s: %w", test, err)
	}
	mtime := fi.ModTime()

	l.mu.Lock()
	if m, ok := l.memo[test]; ok && m.stamp == mtime.UnixNano() {
		l.mu.Unlock()
		return m.subtests, nil
	}
	l.mu.Unlock()

	stamp := mtime.Unix()
	subtests, ok := l.fromCache(path, stamp)
	if !ok {
		out, err := exec.CommandContext(ctx, path, "list-tests").Output()
		if err != nil {
			return nil, fmt.Errorf("%s list-tests: %w", path, err)
		}
		subtests = strings.Fields(string(out))
		l.toCache(path, stamp, subtests)
	}

	l.mu.Lock()
	l.memo[test] = listing{stamp: mtime.UnixNano(), subtests: subtests}
	l.mu.Unlock()
	return subtests, nil
}

func (l *ExecSubtestLister) fromCache(path string, stamp int64) ([]string, bool) {
	if l.Cache == nil {
		return nil, false
	}
	data, version, ts, err := l.Cache.Get(path)
	if err != nil || data == nil || version != listingCacheVersion || ts != stamp {
		return nil, false
	}
	var subtests []string
	if err := json.Unmarshal(data, &subtests); err != nil {
		return nil, false
	}
	return subtests, true
}

func (l *ExecSubtestLister) toCache(path string, stamp int64, subtests []string) {
	if l.Cache == nil {
		return
	}
	data, err := json.Marshal(subtests)
	if err != nil {
		return
	}
	if err := l.Cache.Set(path, data, listingCacheVersion, stamp); err != nil {
		l.Logger.Warn().Err(err).Str("path", path).Msg("caching subtest listing")
	}
}
