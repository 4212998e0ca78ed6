package durations

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/ktestci/ktestci/internal/contract"
	"github.com/ktestci/ktestci/internal/results"
	"github.com/ktestci/ktestci/internal/wire"
	"github.com/ktestci/ktestci/schema"
	"golang.org/x/sync/errgroup"
)

type sums struct {
	secs, nr, passed, failed uint64
}

func (s *sums) add(r schema.TestResult) {
	s.secs += r.Duration
	s.nr++
	if r.Status == schema.StatusPassed {
		s.passed++
	}
	if r.Status == schema.StatusFailed {
		s.failed++
	}
}

// Compute accumulates statistics over every commit directory in the store's
// output directory. Commits without a readable record contribute nothing.
func Compute(ctx context.Context, store *results.Store) ([]schema.TestStats, error) {
	entries, err := os.ReadDir(store.OutputDir)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	total := make(map[string]*sums)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		commit := e.Name()
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := store.Read(commit)
			if err != nil {
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			for name, res := range r.Tests {
				s, ok := total[name]
				if !ok {
					s = &sums{}
					total[name] = s
				}
				s.add(res)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats := make([]schema.TestStats, 0, len(total))
	for name, s := range total {
		stats = append(stats, schema.TestStats{
			Name:     name,
			Runs:     s.nr,
			Passed:   s.passed,
			Failed:   s.failed,
			Duration: s.secs / s.nr,
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats, nil
}

// Rebuild recomputes the table from the whole result corpus and publishes it
// at output_dir/test_durations.pb. It returns the number of entries written.
func Rebuild(ctx context.Context, store *results.Store) (int, error) {
	stats, err := Compute(ctx, store)
	if err != nil {
		return 0, err
	}
	path := Path(store.OutputDir)
	if err := contract.WriteBytesAtomic(path, wire.EncodeDurations(stats)); err != nil {
		return 0, err
	}
	store.Logger.Info().Int("tests", len(stats)).Str("path", path).Msg("wrote durations")
	return len(stats), nil
}

// Path returns the location of the table in outputDir.
func Path(outputDir string) string {
	return filepath.Join(outputDir, schema.DurationsFile)
}
