package core

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/ktestci/ktestci/internal/claims"
	"github.com/ktestci/ktestci/internal/durations"
	"github.com/ktestci/ktestci/internal/results"
	"github.com/ktestci/ktestci/schema"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// Claimer pulls one batch of work off the end of a user's queue.
// Callers must hold the queue lock.
type Claimer struct {
	Queues    *QueueStore
	Claims    *claims.Store
	Results   *results.Store
	Durations *durations.Index

	Budget          uint64 // max expected seconds per batch
	DefaultDuration uint64 // expected seconds of a subtest without history
	DryRun          bool

	Logger zerolog.Logger
}

// expected returns the expected duration of a subtest.
func (c *Claimer) expected(test, subtest string) uint64 {
	if c.Durations != nil {
		if s, ok := c.Durations.Lookup(test, subtest); ok {
			return s.Duration
		}
	}
	return c.DefaultDuration
}

// Claim scans user's queue from the end and claims consecutive subtests of
// one (commit, test) until the budget is spent. The consumed tail of the
// queue is truncated away. It returns nil when nothing could be claimed.
func (c *Claimer) Claim(user string) (*schema.JobBatch, error) {
	f, err := os.OpenFile(c.Queues.Path(user), os.O_RDWR, 0)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size() == 0 {
		c.Logger.Debug().Str("user", user).Msg("no jobs")
		return nil, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(fi.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mapping queue of %s: %w", user, err)
	}
	dirty := claims.DirtySet{}
	batch, keep, err := c.scan(user, data, dirty)
	if uerr := unix.Munmap(data); err == nil {
		err = uerr
	}
	if err != nil {
		return nil, err
	}

	if batch != nil && !c.DryRun {
		if err := f.Truncate(int64(keep)); err != nil {
			return nil, fmt.Errorf("truncating queue of %s: %w", user, err)
		}
	}
	c.Results.RebuildAll(dirty.Commits())

	if batch != nil {
		c.Logger.Debug().Str("user", user).Str("commit", batch.Commit).Strs("subtests", batch.Subtests).Msg("claimed")
	}
	return batch, nil
}

// scan walks the lines of data from the end. It returns the batch and the
// offset of the oldest consumed line, which is where the queue is cut.
func (c *Claimer) scan(user string, data []byte, dirty claims.DirtySet) (*schema.JobBatch, int, error) {
	var batch *schema.JobBatch
	keep := len(data)

	end := len(data)
	for end >= 0 {
		start := bytes.LastIndexByte(data[:end], '\n') + 1
		line := data[start:end]
		end = start - 1

		if len(line) == 0 {
			continue
		}
		job, err := ParseJobLine(string(line))
		if err != nil {
			return nil, 0, fmt.Errorf("queue of %s: %w", user, err)
		}

		if batch != nil && (job.Commit != batch.Commit || job.Test != batch.Test) {
			c.Logger.Debug().Str("user", user).Msg("subtest from different test, stopping")
			break
		}

		d := c.expected(job.Test, job.Subtest)
		if batch != nil && batch.Duration != 0 && batch.Duration+d > c.Budget {
			c.Logger.Debug().Str("user", user).Uint64("seconds", batch.Duration+d).Msg("budget reached, stopping")
			break
		}

		ok, err := c.claim(job, dirty)
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			c.Logger.Debug().Str("user", user).Str("job", string(line)).Msg("already in progress")
			continue
		}

		if batch == nil {
			batch = &schema.JobBatch{
				User:   user,
				Branch: job.Branch,
				Commit: job.Commit,
				Age:    job.Age,
				Test:   job.Test,
			}
		}
		batch.Subtests = append(batch.Subtests, job.Subtest)
		batch.Duration += d
		keep = start
	}
	return batch, keep, nil
}

func (c *Claimer) claim(job schema.TestJob, dirty claims.DirtySet) (bool, error) {
	fq := schema.SubtestFullName(job.Test, job.Subtest)
	if c.DryRun {
		return !c.Claims.Peek(job.Commit, fq), nil
	}
	_, err := c.Claims.TryClaim(job.Commit, fq, dirty)
	if errors.Is(err, claims.ErrAlreadyClaimed) {
		return false, nil
	}
	return err == nil, err
}
