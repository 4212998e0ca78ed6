package durations

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/ktestci/ktestci/internal/results"
	"github.com/ktestci/ktestci/internal/wire"
	"github.com/ktestci/ktestci/schema"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func syntheticTable(n int) []schema.TestStats {
	stats := make([]schema.TestStats, n)
	for i := range stats {
		// even numbers only, so odd names fall between entries
		stats[i] = schema.TestStats{Name: fmt.Sprintf("test.%05d", 2*i), Runs: uint64(i + 1), Duration: uint64(10 * i)}
	}
	return stats
}

func writeTable(t *testing.T, stats []schema.TestStats) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), schema.DurationsFile)
	require.NoError(t, os.WriteFile(path, wire.EncodeDurations(stats), 0o644))
	return path
}

func TestLookupFindsEveryKey(t *testing.T) {
	for _, n := range []int{1, 2, 7, 100} {
		stats := syntheticTable(n)
		idx := Open(writeTable(t, stats))
		require.NoError(t, idx.Err())
		assert.Equal(t, n, idx.Len())

		for _, want := range stats {
			got, ok := idx.LookupName(want.Name)
			require.True(t, ok, want.Name)
			assert.Equal(t, want, got)
		}
		for i := 0; i <= n; i++ {
			_, ok := idx.LookupName(fmt.Sprintf("test.%05d", 2*i-1))
			assert.False(t, ok)
		}
		_, ok := idx.LookupName("")
		assert.False(t, ok, "before first")
		_, ok = idx.LookupName("zzz")
		assert.False(t, ok, "after last")
		require.NoError(t, idx.Close())
	}
}

func TestLookupBySubtest(t *testing.T) {
	idx := FromBytes(wire.EncodeDurations([]schema.TestStats{
		{Name: "fs.quick.basic", Runs: 3, Passed: 3, Duration: 50},
	}), false)
	got, ok := idx.Lookup("fs/quick.ktest", "basic")
	require.True(t, ok)
	assert.Equal(t, uint64(50), got.Duration)
}

func TestOpenMissingAndEmpty(t *testing.T) {
	idx := Open(filepath.Join(t.TempDir(), "nope"))
	assert.NoError(t, idx.Err())
	assert.Equal(t, 0, idx.Len())
	_, ok := idx.LookupName("x")
	assert.False(t, ok)
	assert.NoError(t, idx.Close())

	empty := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	idx = Open(empty)
	assert.NoError(t, idx.Err())
	assert.Equal(t, 0, idx.Len())
}

func TestCorruptTableDegrades(t *testing.T) {
	b := wire.EncodeDurations(syntheticTable(5))
	path := filepath.Join(t.TempDir(), "t")
	require.NoError(t, os.WriteFile(path, b[:len(b)-3], 0o644))

	idx := Open(path)
	assert.ErrorIs(t, idx.Err(), ErrUnavailable)
	_, ok := idx.LookupName("test.00000")
	assert.False(t, ok)
	_, err := idx.All()
	assert.Error(t, err)
	assert.NoError(t, idx.Close())
}

func TestSnapshotSurvivesReplace(t *testing.T) {
	path := writeTable(t, syntheticTable(3))
	idx := Open(path)
	defer func() { _ = idx.Close() }()

	replacement := path + ".new"
	require.NoError(t, os.WriteFile(replacement, wire.EncodeDurations(nil), 0o644))
	require.NoError(t, os.Rename(replacement, path))

	_, ok := idx.LookupName("test.00002")
	assert.True(t, ok, "old mapping still readable")
	assert.Equal(t, 0, Open(path).Len())
}

func putResult(t *testing.T, out, commit, name, marker, duration string) {
	t.Helper()
	dir := filepath.Join(out, commit, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "status"), []byte(marker), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "duration"), []byte(duration), 0o644))
}

func TestRebuild(t *testing.T) {
	out := t.TempDir()
	store := results.NewStore(out, zerolog.Nop())

	c1 := "1111111111111111111111111111111111111111"
	c2 := "2222222222222222222222222222222222222222"
	c3 := "3333333333333333333333333333333333333333" // directory without a record
	putResult(t, out, c1, "a.one", "PASSED", "10")
	putResult(t, out, c1, "a.two", "FAILED", "100")
	putResult(t, out, c2, "a.one", "FAILED", "20")
	putResult(t, out, c3, "a.one", "PASSED", "1000")
	require.NoError(t, store.Write(c1))
	require.NoError(t, store.Write(c2))

	n, err := Rebuild(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	idx := Open(Path(out))
	defer func() { _ = idx.Close() }()
	all, err := idx.All()
	require.NoError(t, err)
	assert.Equal(t, []schema.TestStats{
		{Name: "a.one", Runs: 2, Passed: 1, Failed: 1, Duration: 15},
		{Name: "a.two", Runs: 1, Passed: 0, Failed: 1, Duration: 100},
	}, all)
}

func TestRebuildCancelled(t *testing.T) {
	out := t.TempDir()
	store := results.NewStore(out, zerolog.Nop())
	putResult(t, out, "4444444444444444444444444444444444444444", "x.y", "PASSED", "1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Rebuild(ctx, store)
	assert.ErrorIs(t, err, context.Canceled)
}

