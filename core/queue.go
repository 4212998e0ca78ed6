// Package core generates per-user job queues, claims batches from them for
// workers in fair-share order, and maintains the result corpus.
package core

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ktestci/ktestci/internal/contract"
	"github.com/ktestci/ktestci/internal/lockfile"
	"github.com/ktestci/ktestci/schema"
)

// ErrQueueParse is returned for a queue line that is not
// "<branch> <commit> <age> <test> <subtest>".
var ErrQueueParse = errors.New("malformed queue line")

// QueueStore owns the per-user queue files and the lock serializing
// regeneration against claiming.
type QueueStore struct {
	OutputDir string
}

// NewQueueStore creates a QueueStore rooted at outputDir.
func NewQueueStore(outputDir string) *QueueStore {
	return &QueueStore{OutputDir: outputDir}
}

// Lock takes jobs.lock. Callers release it with Unlock on every path.
func (q *QueueStore) Lock() (*lockfile.Lock, error) {
	return lockfile.Acquire(filepath.Join(q.OutputDir, schema.JobsLockFile))
}

// Path returns the queue file of user.
func (q *QueueStore) Path(user string) string {
	return filepath.Join(q.OutputDir, schema.JobsFilePrefix+user)
}

// queueUser returns the user a file name in the output directory is the
// queue of, if any.
func queueUser(name string) (string, bool) {
	user, ok := strings.CutPrefix(name, schema.JobsFilePrefix)
	if !ok || user == "" || strings.HasSuffix(name, schema.TempSuffix) || strings.HasSuffix(name, schema.LockSuffix) {
		return "", false
	}
	return user, true
}

// Users lists every user with a queue file, sorted.
func (q *QueueStore) Users() ([]string, error) {
	entries, err := os.ReadDir(q.OutputDir)
	if err != nil {
		return nil, err
	}
	var users []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if user, ok := queueUser(e.Name()); ok {
			users = append(users, user)
		}
	}
	sort.Strings(users)
	return users, nil
}

// AvailableUsers lists users whose queue file is non-empty, sorted.
func (q *QueueStore) AvailableUsers() ([]string, error) {
	users, err := q.Users()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, u := range users {
		fi, err := os.Stat(q.Path(u))
		if err == nil && fi.Size() > 0 {
			out = append(out, u)
		}
	}
	return out, nil
}

// Write replaces user's queue with jobs, in the given order.
func (q *QueueStore) Write(user string, jobs []schema.TestJob) error {
	return contract.WriteFileAtomic(q.Path(user), func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		for _, j := range jobs {
			if _, err := bw.WriteString(FormatJobLine(j)); err != nil {
				return err
			}
		}
		return bw.Flush()
	})
}

// Remove deletes user's queue file.
func (q *QueueStore) Remove(user string) error {
	err := os.Remove(q.Path(user))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Pending counts the non-empty lines of user's queue. A missing queue has none.
func (q *QueueStore) Pending(user string) (int, error) {
	f, err := os.Open(q.Path(user))
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	var n int
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if len(sc.Bytes()) > 0 {
			n++
		}
	}
	return n, sc.Err()
}

// FormatJobLine renders a job as one queue line, newline included.
func FormatJobLine(j schema.TestJob) string {
	return j.Branch + " " + j.Commit + " " + strconv.FormatUint(j.Age, 10) + " " + j.Test + " " + j.Subtest + "\n"
}

// ParseJobLine parses one queue line without its newline. Fields past the
// fifth are ignored.
func ParseJobLine(line string) (schema.TestJob, error) {
	fields := strings.SplitN(line, " ", 6)
	if len(fields) < 5 {
		return schema.TestJob{}, fmt.Errorf("%w: %q", ErrQueueParse, line)
	}
	age, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return schema.TestJob{}, fmt.Errorf("%w: bad age in %q", ErrQueueParse, line)
	}
	return schema.TestJob{
		Branch:  fields[0],
		Commit:  fields[1],
		Age:     age,
		Test:    fields[3],
		Subtest: fields[4],
	}, nil
}
