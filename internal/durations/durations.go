// Package durations is the read-mostly table of historical per-subtest
// run statistics, used to estimate how long a job will take.
package durations

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/ktestci/ktestci/internal/wire"
	"github.com/ktestci/ktestci/schema"
	"golang.org/x/sys/unix"
)

// ErrUnavailable is reported by Err when the table could not be parsed.
var ErrUnavailable = errors.New("duration table unavailable")

// Index is a read-only snapshot of the duration table. The file is mapped,
// not read, and entries are addressed by offset into the mapping. A table
// that is replaced while mapped stays readable as the old snapshot.
type Index struct {
	data    []byte
	entries [][]byte
	err     error
}

// Open maps the table at path. A missing or empty file yields an empty
// index. A table that fails to parse yields an index whose lookups all miss
// and whose Err reports why.
func Open(path string) *Index {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Index{}
	}
	if err != nil {
		return &Index{err: fmt.Errorf("%w: %v", ErrUnavailable, err)}
	}
	defer func() { _ = f.Close() }()

	fi, err := f.Stat()
	if err != nil {
		return &Index{err: fmt.Errorf("%w: %v", ErrUnavailable, err)}
	}
	if fi.Size() == 0 {
		return &Index{}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(fi.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return &Index{err: fmt.Errorf("%w: mmap: %v", ErrUnavailable, err)}
	}
	return FromBytes(data, true)
}

// FromBytes indexes an in-memory table. When mapped is set, Close unmaps data.
func FromBytes(data []byte, mapped bool) *Index {
	idx := &Index{}
	if mapped {
		idx.data = data
	}
	entries, err := wire.Entries(data)
	if err != nil {
		idx.err = fmt.Errorf("%w: %v", ErrUnavailable, err)
		return idx
	}
	idx.entries = entries
	return idx
}

// Err reports whether the table was unusable.
func (idx *Index) Err() error {
	return idx.err
}

// Len returns the number of entries.
func (idx *Index) Len() int {
	return len(idx.entries)
}

// Lookup returns the statistics of a subtest of a test.
func (idx *Index) Lookup(test, subtest string) (schema.TestStats, bool) {
	return idx.LookupName(schema.SubtestFullName(test, subtest))
}

// LookupName binary-searches the table by fully-qualified name. Any parse
// error met on the way is a miss.
func (idx *Index) LookupName(name string) (schema.TestStats, bool) {
	key := []byte(name)
	var bad bool
	i := sort.Search(len(idx.entries), func(i int) bool {
		n, err := wire.TestStatsName(idx.entries[i])
		if err != nil {
			bad = true
			return true
		}
		return bytes.Compare(n, key) >= 0
	})
	if bad || i == len(idx.entries) {
		return schema.TestStats{}, false
	}
	stats, err := wire.DecodeTestStats(idx.entries[i])
	if err != nil || stats.Name != name {
		return schema.TestStats{}, false
	}
	return stats, true
}

// All decodes every entry, in table order.
func (idx *Index) All() ([]schema.TestStats, error) {
	if idx.err != nil {
		return nil, idx.err
	}
	out := make([]schema.TestStats, 0, len(idx.entries))
	for _, e := range idx.entries {
		s, err := wire.DecodeTestStats(e)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// Close releases the mapping. The index must not be used afterwards.
func (idx *Index) Close() error {
	idx.entries = nil
	if idx.data == nil {
		return nil
	}
	data := idx.data
	idx.data = nil
	return unix.Munmap(data)
}
