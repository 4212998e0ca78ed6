package claims

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const commit = "0123456789abcdef0123456789abcdef01234567"

func newStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir(), zerolog.Nop())
}

func makeStale(t *testing.T, s *Store, subtest string) {
	t.Helper()
	path := s.Path(commit, subtest)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))
}

func TestTryClaim(t *testing.T) {
	s := newStore(t)

	c, err := s.TryClaim(commit, "fs.basic.one", nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.OutputDir, commit, "fs.basic.one", "status"), c.Path)

	fi, err := os.Stat(c.Path)
	require.NoError(t, err)
	assert.Zero(t, fi.Size())

	_, err = s.TryClaim(commit, "fs.basic.one", nil)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
}

func TestConcurrentClaimsOneWinner(t *testing.T) {
	s := newStore(t)

	var wins, losses int32
	var wg sync.WaitGroup
	for range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.TryClaim(commit, "fs.race", nil)
			switch {
			case err == nil:
				atomic.AddInt32(&wins, 1)
			case errors.Is(err, ErrAlreadyClaimed):
				atomic.AddInt32(&losses, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
	assert.Equal(t, int32(31), losses)
}

func TestStaleReclaimIdempotent(t *testing.T) {
	s := newStore(t)
	makeStale(t, s, "fs.stale")

	var wins int32
	var mu sync.Mutex
	dirty := DirtySet{}
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := DirtySet{}
			_, err := s.TryClaim(commit, "fs.stale", local)
			if err == nil {
				atomic.AddInt32(&wins, 1)
			} else {
				assert.ErrorIs(t, err, ErrAlreadyClaimed)
			}
			mu.Lock()
			for c := range local {
				dirty.Add(c)
			}
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
	assert.Equal(t, []string{commit}, dirty.Commits())

	// The new claim is fresh and survives further attempts.
	_, err := s.TryClaim(commit, "fs.stale", nil)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
}

func TestNonEmptyClaimNeverStale(t *testing.T) {
	s := newStore(t)
	path := s.Path(commit, "fs.done")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("PASSED\n"), 0o644))
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	dirty := DirtySet{}
	ok, err := s.Exists(commit, "fs.done", dirty)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, dirty)
}

func TestExistsReclaimsStale(t *testing.T) {
	s := newStore(t)
	makeStale(t, s, "fs.old")

	dirty := DirtySet{}
	ok, err := s.Exists(commit, "fs.old", dirty)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, dirty, commit)

	ok, err = s.Exists(commit, "fs.never", dirty)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPeekLeavesStaleInPlace(t *testing.T) {
	s := newStore(t)
	makeStale(t, s, "fs.old")

	assert.False(t, s.Peek(commit, "fs.old"))
	_, err := os.Stat(s.Path(commit, "fs.old"))
	assert.NoError(t, err)

	_, err = s.TryClaim(commit, "fs.fresh", nil)
	require.NoError(t, err)
	assert.True(t, s.Peek(commit, "fs.fresh"))
	assert.False(t, s.Peek(commit, "fs.missing"))
}

func TestInjectedClock(t *testing.T) {
	s := newStore(t)
	_, err := s.TryClaim(commit, "fs.clock", nil)
	require.NoError(t, err)

	s.Now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	c, err := s.TryClaim(commit, "fs.clock", nil)
	require.NoError(t, err)
	assert.Equal(t, "fs.clock", c.Subtest)
}
