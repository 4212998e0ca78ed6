// Package fairshare picks which user's queue to serve next, by time-decayed
// recent runtime scaled by a per-user nice override.
package fairshare

import (
	"math"
	"sort"
	"time"

	"github.com/ktestci/ktestci/schema"
)

// HalfLife is how long it takes recent runtime to halve.
const HalfLife = schema.RecentHalfLifeSeconds * time.Second

// Decay returns recent decayed from lastUpdated to now. A clock that went
// backwards decays nothing.
func Decay(recent float64, lastUpdated, now time.Time) float64 {
	elapsed := math.Max(0, now.Sub(lastUpdated).Seconds())
	return recent * math.Exp(-elapsed*math.Ln2/HalfLife.Seconds())
}

// Multiplier converts a nice override into a runtime scale factor.
func Multiplier(nice int64) float64 {
	return math.Max(schema.MinNiceMultiplier, 1+float64(nice))
}

// Candidate is a user with its effective runtime at ranking time.
type Candidate struct {
	User      string
	Effective float64
}

// Rank orders users by effective runtime, lowest first. Users without stats
// rank as zero. Ties keep the order of users.
func Rank(users []string, stats []schema.UserStats, nice map[string]int64, now time.Time) []Candidate {
	byUser := make(map[string]schema.UserStats, len(stats))
	for _, s := range stats {
		byUser[s.User] = s
	}

	out := make([]Candidate, 0, len(users))
	for _, u := range users {
		var eff float64
		if s, ok := byUser[u]; ok {
			eff = Decay(s.Recent, s.LastUpdated, now) * Multiplier(nice[u])
		}
		out = append(out, Candidate{User: u, Effective: eff})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Effective < out[j].Effective
	})
	return out
}

// Select returns the user to serve next.
func Select(users []string, stats []schema.UserStats, nice map[string]int64, now time.Time) (string, bool) {
	ranked := Rank(users, stats, nice, now)
	if len(ranked) == 0 {
		return "", false
	}
	return ranked[0].User, true
}

// Charge records a dispatch of duration seconds to user. Recent runtime is
// decayed to now before the charge; total is a plain sum.
func Charge(stats []schema.UserStats, user string, duration uint64, now time.Time) []schema.UserStats {
	now = now.Truncate(time.Second).UTC()
	for i := range stats {
		s := &stats[i]
		if s.User != user {
			continue
		}
		s.Recent = Decay(s.Recent, s.LastUpdated, now) + float64(duration)
		s.Total += duration
		s.LastUpdated = now
		return stats
	}
	return append(stats, schema.UserStats{
		User:        user,
		Total:       duration,
		Recent:      float64(duration),
		LastUpdated: now,
	})
}
