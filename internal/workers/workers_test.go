package workers

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ktestci/ktestci/schema"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestHeartbeatReplacesSlot(t *testing.T) {
	r := NewRegistry(t.TempDir(), zerolog.Nop())

	ws, err := r.Workers()
	require.NoError(t, err)
	assert.Empty(t, ws)

	busy := schema.Worker{
		Hostname: "h1", Workdir: "/w/0", StartTime: t0,
		User: "kent", Branch: "master", Age: 3,
		Commit: "0123456789abcdef0123456789abcdef01234567", Tests: "fs/xfs.ktest generic.001",
	}
	require.NoError(t, r.Heartbeat(busy))
	require.NoError(t, r.Heartbeat(schema.Worker{Hostname: "h1", Workdir: "/w/1", StartTime: t0}))
	require.NoError(t, r.Heartbeat(schema.Worker{Hostname: "h2", Workdir: "/w/0", StartTime: t0}))

	idle := schema.Worker{Hostname: "h1", Workdir: "/w/0", StartTime: t0.Add(time.Minute)}
	require.NoError(t, r.Heartbeat(idle))

	ws, err = r.Workers()
	require.NoError(t, err)
	require.Len(t, ws, 3)
	assert.Equal(t, "/w/1", ws[0].Workdir)
	assert.Equal(t, "h2", ws[1].Hostname)
	assert.Equal(t, idle, ws[2])
	assert.True(t, ws[2].Idle())
}

func TestHeartbeatConcurrent(t *testing.T) {
	r := NewRegistry(t.TempDir(), zerolog.Nop())

	var wg sync.WaitGroup
	for i := range 12 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, r.Heartbeat(schema.Worker{Hostname: fmt.Sprintf("h%d", i), Workdir: "/w", StartTime: t0}))
		}()
	}
	wg.Wait()

	ws, err := r.Workers()
	require.NoError(t, err)
	assert.Len(t, ws, 12, "no heartbeat lost to a concurrent rewrite")
}

func TestDamagedRegistryIsReplaced(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry(dir, zerolog.Nop())
	require.NoError(t, os.WriteFile(filepath.Join(dir, schema.WorkersFile), []byte{0x0a, 0x7f}, 0o644))

	ws, err := r.Workers()
	require.NoError(t, err)
	assert.Empty(t, ws)

	require.NoError(t, r.Heartbeat(schema.Worker{Hostname: "h", Workdir: "w", StartTime: t0}))
	ws, err = r.Workers()
	require.NoError(t, err)
	assert.Len(t, ws, 1)
}

func TestUpdateUserStats(t *testing.T) {
	r := NewRegistry(t.TempDir(), zerolog.Nop())

	var seen [][]schema.UserStats
	add := func(u schema.UserStats) func([]schema.UserStats) []schema.UserStats {
		return func(stats []schema.UserStats) []schema.UserStats {
			seen = append(seen, append([]schema.UserStats(nil), stats...))
			return append(stats, u)
		}
	}
	alice := schema.UserStats{User: "alice", Total: 600, Recent: 600, LastUpdated: t0}
	bob := schema.UserStats{User: "bob", Total: 60, Recent: 60, LastUpdated: t0}
	require.NoError(t, r.UpdateUserStats(add(alice)))
	require.NoError(t, r.UpdateUserStats(add(bob)))

	assert.Empty(t, seen[0], "no accounting file yet")
	assert.Equal(t, []schema.UserStats{alice}, seen[1])

	stats, err := r.UserStats()
	require.NoError(t, err)
	assert.Equal(t, []schema.UserStats{alice, bob}, stats)
}

func TestUpdateUserStatsConcurrent(t *testing.T) {
	r := NewRegistry(t.TempDir(), zerolog.Nop())

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, r.UpdateUserStats(func(stats []schema.UserStats) []schema.UserStats {
				if len(stats) == 0 {
					return []schema.UserStats{{User: "alice", Total: 1, LastUpdated: t0}}
				}
				stats[0].Total++
				return stats
			}))
		}()
	}
	wg.Wait()

	stats, err := r.UserStats()
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, uint64(8), stats[0].Total, "updates are serialized by the lock")
}
