package core

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ktestci/ktestci/core/fairshare"
	"github.com/ktestci/ktestci/internal/claims"
	"github.com/ktestci/ktestci/internal/contract"
	"github.com/ktestci/ktestci/internal/durations"
	"github.com/ktestci/ktestci/internal/results"
	"github.com/ktestci/ktestci/internal/workers"
	"github.com/ktestci/ktestci/schema"
	"github.com/rs/zerolog"
)

// Dispatcher answers a worker's request for work: it picks a user fairly,
// claims a batch from that user's queue and records the dispatch.
type Dispatcher struct {
	Cfg      *contract.Config
	Queues   *QueueStore
	Claims   *claims.Store
	Results  *results.Store
	Registry *workers.Registry
	History  contract.HistoryStore // optional
	DryRun   bool
	Logger   zerolog.Logger
	Now      func() time.Time
}

// NewDispatcher wires a Dispatcher over cfg's output directory.
func NewDispatcher(cfg *contract.Config, history contract.HistoryStore, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		Cfg:      cfg,
		Queues:   NewQueueStore(cfg.OutputDir),
		Claims:   claims.NewStore(cfg.OutputDir, logger),
		Results:  results.NewStore(cfg.OutputDir, logger),
		Registry: workers.NewRegistry(cfg.OutputDir, logger),
		History:  history,
		Logger:   logger,
		Now:      time.Now,
	}
}

// ChargeUser adds a dispatch of duration seconds to user's fair-share
// accounting in registry.
func ChargeUser(registry *workers.Registry, user string, duration uint64, now time.Time) error {
	return registry.UpdateUserStats(func(stats []schema.UserStats) []schema.UserStats {
		return fairshare.Charge(stats, user, duration, now)
	})
}

// BatchTests renders a batch as "<test> <subtest>...", the form used in
// TEST_JOB lines and worker records.
func BatchTests(b *schema.JobBatch) string {
	return b.Test + " " + strings.Join(b.Subtests, " ")
}

// GetJob claims the next batch for the worker slot (hostname, workdir).
// The slot heartbeats either way, idle when nil is returned. Outside dry
// runs the chosen user is charged the batch's expected duration.
func (d *Dispatcher) GetJob(ctx context.Context, hostname, workdir string) (*schema.JobBatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	batch, err := d.claimFair()
	if err != nil {
		return nil, err
	}
	now := d.Now()

	w := schema.Worker{Hostname: hostname, Workdir: workdir, StartTime: now.Truncate(time.Second).UTC()}
	if batch != nil {
		w.User = batch.User
		w.Branch = batch.Branch
		w.Age = batch.Age
		w.Commit = batch.Commit
		w.Tests = BatchTests(batch)

		if !d.DryRun {
			if err := ChargeUser(d.Registry, batch.User, batch.Duration, now); err != nil {
				d.Logger.Warn().Err(err).Str("user", batch.User).Msg("updating user stats")
			}
			d.record(batch, hostname, workdir, now)
		}
	}
	if err := d.Registry.Heartbeat(w); err != nil {
		d.Logger.Warn().Err(err).Str("host", hostname).Msg("updating workers")
	}
	return batch, nil
}

// claimFair tries users in ascending effective runtime until one yields a batch.
func (d *Dispatcher) claimFair() (*schema.JobBatch, error) {
	l, err := d.Queues.Lock()
	if err != nil {
		return nil, err
	}
	defer func() { _ = l.Unlock() }()

	users, err := d.Queues.AvailableUsers()
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		d.Logger.Debug().Msg("no users with pending jobs")
		return nil, nil
	}

	stats, err := d.Registry.UserStats()
	if err != nil {
		d.Logger.Warn().Err(err).Msg("reading user stats")
	}

	idx := durations.Open(durations.Path(d.Cfg.OutputDir))
	defer func() { _ = idx.Close() }()

	c := &Claimer{
		Queues:          d.Queues,
		Claims:          d.Claims,
		Results:         d.Results,
		Durations:       idx,
		Budget:          d.Cfg.SubtestDurationMax,
		DefaultDuration: d.Cfg.SubtestDurationDef,
		DryRun:          d.DryRun,
		Logger:          d.Logger,
	}
	for _, cand := range fairshare.Rank(users, stats, d.Cfg.UserNice, d.Now()) {
		d.Logger.Debug().Str("user", cand.User).Float64("effective", cand.Effective).Msg("trying user")
		batch, err := c.Claim(cand.User)
		if err != nil {
			return nil, err
		}
		if batch != nil {
			return batch, nil
		}
	}
	return nil, nil
}

func (d *Dispatcher) record(b *schema.JobBatch, hostname, workdir string, now time.Time) {
	if d.History == nil {
		return
	}
	rec := schema.DispatchRecord{
		DispatchID:   uuid.NewString(),
		User:         b.User,
		Branch:       b.Branch,
		CommitID:     b.Commit,
		Test:         b.Test,
		Subtests:     strings.Join(b.Subtests, " "),
		Hostname:     hostname,
		Workdir:      workdir,
		ExpectedSecs: b.Duration,
		DispatchedAt: now.UTC(),
	}
	if err := d.History.RecordDispatch(rec); err != nil {
		d.Logger.Warn().Err(err).Str("user", b.User).Msg("recording dispatch")
	}
}
