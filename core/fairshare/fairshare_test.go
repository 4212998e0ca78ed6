package fairshare

import (
	"testing"
	"time"

	"github.com/ktestci/ktestci/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestDecay(t *testing.T) {
	assert.InDelta(t, 1000.0, Decay(1000, t0, t0), 1e-9)
	assert.InDelta(t, 500.0, Decay(1000, t0, t0.Add(HalfLife)), 1e-9)
	assert.InDelta(t, 250.0, Decay(1000, t0, t0.Add(2*HalfLife)), 1e-9)
	assert.InDelta(t, 1000.0, Decay(1000, t0, t0.Add(-time.Hour)), 1e-9, "clock skew decays nothing")

	far := Decay(1e6, t0, t0.Add(40*HalfLife))
	assert.Less(t, far, 1e-3)
}

func TestMultiplier(t *testing.T) {
	assert.Equal(t, 1.0, Multiplier(0))
	assert.Equal(t, 3.0, Multiplier(2))
	assert.Equal(t, schema.MinNiceMultiplier, Multiplier(-1))
	assert.Equal(t, schema.MinNiceMultiplier, Multiplier(-10))
}

func TestRank(t *testing.T) {
	stats := []schema.UserStats{
		{User: "alice", Recent: 1000, LastUpdated: t0},
		{User: "bob", Recent: 400, LastUpdated: t0},
		{User: "carol", Recent: 4000, LastUpdated: t0.Add(-2 * HalfLife)},
	}

	t.Run("lowest effective first", func(t *testing.T) {
		ranked := Rank([]string{"alice", "bob", "carol"}, stats, nil, t0)
		require.Len(t, ranked, 3)
		assert.Equal(t, "bob", ranked[0].User)
		assert.Equal(t, "alice", ranked[1].User)
		assert.Equal(t, "carol", ranked[2].User)
		assert.InDelta(t, 1000.0, ranked[2].Effective, 1e-6)
	})

	t.Run("new users first", func(t *testing.T) {
		ranked := Rank([]string{"alice", "dave"}, stats, nil, t0)
		assert.Equal(t, "dave", ranked[0].User)
		assert.Zero(t, ranked[0].Effective)
	})

	t.Run("nice override", func(t *testing.T) {
		ranked := Rank([]string{"alice", "bob"}, stats, map[string]int64{"bob": 2}, t0)
		assert.Equal(t, "alice", ranked[0].User)
		assert.InDelta(t, 1200.0, ranked[1].Effective, 1e-6)

		ranked = Rank([]string{"alice", "bob"}, stats, map[string]int64{"alice": -1}, t0)
		assert.Equal(t, "alice", ranked[0].User)
		assert.InDelta(t, 100.0, ranked[0].Effective, 1e-6)
	})

	t.Run("ties keep input order", func(t *testing.T) {
		ranked := Rank([]string{"x", "y", "z"}, nil, nil, t0)
		assert.Equal(t, []Candidate{{User: "x"}, {User: "y"}, {User: "z"}}, ranked)
	})

	t.Run("idle user becomes eligible again", func(t *testing.T) {
		heavy := []schema.UserStats{
			{User: "busy", Recent: 1e6, LastUpdated: t0.Add(-20 * HalfLife)},
			{User: "steady", Recent: 10, LastUpdated: t0},
		}
		user, ok := Select([]string{"busy", "steady"}, heavy, nil, t0)
		require.True(t, ok)
		assert.Equal(t, "busy", user)
	})
}

func TestSelectEmpty(t *testing.T) {
	_, ok := Select(nil, nil, nil, t0)
	assert.False(t, ok)
}

func TestCharge(t *testing.T) {
	stats := Charge(nil, "alice", 300, t0)
	require.Len(t, stats, 1)
	assert.Equal(t, schema.UserStats{User: "alice", Total: 300, Recent: 300, LastUpdated: t0}, stats[0])

	stats = Charge(stats, "alice", 100, t0.Add(HalfLife))
	require.Len(t, stats, 1)
	assert.Equal(t, uint64(400), stats[0].Total)
	assert.InDelta(t, 250.0, stats[0].Recent, 1e-9)
	assert.Equal(t, t0.Add(HalfLife), stats[0].LastUpdated)

	stats = Charge(stats, "bob", 50, t0)
	require.Len(t, stats, 2)
	assert.Equal(t, "bob", stats[1].User)
}
