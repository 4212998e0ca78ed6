// Package workers keeps the worker heartbeat registry and the per-user
// fair-share accounting file. Both are small lists rewritten whole under
// their own lock.
package workers

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ktestci/ktestci/internal/contract"
	"github.com/ktestci/ktestci/internal/lockfile"
	"github.com/ktestci/ktestci/internal/wire"
	"github.com/ktestci/ktestci/schema"
	"github.com/rs/zerolog"
)

// Registry reads and updates the state files in an output directory.
type Registry struct {
	OutputDir string
	Logger    zerolog.Logger
}

// NewRegistry creates a Registry rooted at outputDir.
func NewRegistry(outputDir string, logger zerolog.Logger) *Registry {
	return &Registry{OutputDir: outputDir, Logger: logger}
}

func (r *Registry) path(name string) string {
	return filepath.Join(r.OutputDir, name)
}

// readList loads a list file. A missing file is an empty list; a damaged
// one is logged and also read as empty, since the next rewrite replaces it.
func readList[T any](r *Registry, name string, decode func([]byte) ([]T, error)) ([]T, error) {
	data, err := os.ReadFile(r.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	items, err := decode(data)
	if err != nil {
		r.Logger.Warn().Err(err).Str("path", r.path(name)).Msg("ignoring damaged state file")
		return nil, nil
	}
	return items, nil
}

// Workers returns the registry in heartbeat order.
func (r *Registry) Workers() ([]schema.Worker, error) {
	return readList(r, schema.WorkersFile, wire.DecodeWorkers)
}

// Heartbeat replaces the entry for w's (hostname, workdir) slot with w.
func (r *Registry) Heartbeat(w schema.Worker) error {
	r.Logger.Debug().
		Str("host", w.Hostname).
		Str("workdir", w.Workdir).
		Str("user", w.User).
		Str("tests", w.Tests).
		Msg("worker heartbeat")

	return lockfile.With(r.path(schema.WorkersLockFile), func() error {
		current, err := r.Workers()
		if err != nil {
			return err
		}
		next := make([]schema.Worker, 0, len(current)+1)
		for _, old := range current {
			if old.Hostname != w.Hostname || old.Workdir != w.Workdir {
				next = append(next, old)
			}
		}
		next = append(next, w)
		if err := contract.WriteBytesAtomic(r.path(schema.WorkersFile), wire.EncodeWorkers(next)); err != nil {
			return fmt.Errorf("writing workers: %w", err)
		}
		return nil
	})
}

// UserStats returns the stored accounting of every user, undecayed.
func (r *Registry) UserStats() ([]schema.UserStats, error) {
	return readList(r, schema.UserStatsFile, wire.DecodeUserStats)
}

// UpdateUserStats rewrites the accounting file with the result of fn, which
// receives the stored list, under the user-stats lock.
func (r *Registry) UpdateUserStats(fn func([]schema.UserStats) []schema.UserStats) error {
	return lockfile.With(r.path(schema.UserStatsLockFile), func() error {
		stats, err := r.UserStats()
		if err != nil {
			return err
		}
		if err := contract.WriteBytesAtomic(r.path(schema.UserStatsFile), wire.EncodeUserStats(fn(stats))); err != nil {
			return fmt.Errorf("writing user stats: %w", err)
		}
		return nil
	})
}
