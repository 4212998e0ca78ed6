package core

import (
	"maps"
	"slices"
	"time"

	"github.com/ktestci/ktestci/core/fairshare"
	"github.com/ktestci/ktestci/internal/contract"
	"github.com/ktestci/ktestci/internal/workers"
	"github.com/ktestci/ktestci/schema"
)

// QueueStats counts pending queue lines and busy workers per configured user.
func QueueStats(cfg *contract.Config, queues *QueueStore, registry *workers.Registry) (schema.QueueStats, error) {
	stats := schema.QueueStats{
		PendingByUser: make(map[string]int),
		RunningByUser: make(map[string]int),
	}
	for _, user := range contract.SortedKeys(cfg.Users) {
		n, err := queues.Pending(user)
		if err != nil {
			return stats, err
		}
		if n > 0 {
			stats.PendingByUser[user] = n
			stats.TotalPending += n
		}
	}

	ws, err := registry.Workers()
	if err != nil {
		return stats, err
	}
	for _, w := range ws {
		if w.User != "" && w.Tests != "" {
			stats.RunningByUser[w.User]++
			stats.TotalRunning++
		}
	}
	return stats, nil
}

// SummaryRows joins queue counts with fair-share accounting, one row per user
// that has pending work, running work, or recorded runtime.
func SummaryRows(stats schema.QueueStats, users []schema.UserStats, nice map[string]int64, now time.Time) []schema.SummaryRow {
	names := make(map[string]struct{})
	for u := range stats.PendingByUser {
		names[u] = struct{}{}
	}
	for u := range stats.RunningByUser {
		names[u] = struct{}{}
	}
	byUser := make(map[string]schema.UserStats, len(users))
	for _, u := range users {
		byUser[u.User] = u
		names[u.User] = struct{}{}
	}

	rows := make([]schema.SummaryRow, 0, len(names))
	for _, name := range slices.Sorted(maps.Keys(names)) {
		us := byUser[name]
		recent := 0.0
		if us.User != "" {
			recent = fairshare.Decay(us.Recent, us.LastUpdated, now)
		}
		rows = append(rows, schema.SummaryRow{
			User:         name,
			Pending:      stats.PendingByUser[name],
			Running:      stats.RunningByUser[name],
			TotalSeconds: us.Total,
			Recent:       recent,
			Nice:         nice[name],
			Effective:    recent * fairshare.Multiplier(nice[name]),
		})
	}
	return rows
}
