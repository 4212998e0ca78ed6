package wire

import (
	"sort"

	"github.com/ktestci/ktestci/schema"
	"google.golang.org/protobuf/encoding/protowire"
)

// Commit record fields.
const (
	commitID      protowire.Number = 1
	commitMessage protowire.Number = 2
	commitEntry   protowire.Number = 3

	entryName     protowire.Number = 1
	entryStatus   protowire.Number = 2
	entryDuration protowire.Number = 3
	entryStart    protowire.Number = 4
)

// EncodeCommit serializes a commit's results. Entries are written in name order.
func EncodeCommit(r schema.CommitResults) []byte {
	var b []byte
	b = appendString(b, commitID, r.CommitID)
	b = appendString(b, commitMessage, r.Message)

	names := make([]string, 0, len(r.Tests))
	for name := range r.Tests {
		names = append(names, name)
	}
	sort.Strings(names)

	var e []byte
	for _, name := range names {
		t := r.Tests[name]
		e = appendString(e[:0], entryName, name)
		e = appendUint(e, entryStatus, uint64(t.Status))
		e = appendUint(e, entryDuration, t.Duration)
		e = appendTime(e, entryStart, t.StartTime)
		b = appendMessage(b, commitEntry, e)
	}
	return b
}

// DecodeCommit parses a commit record.
func DecodeCommit(b []byte) (schema.CommitResults, error) {
	r := schema.CommitResults{Tests: make(map[string]schema.TestResult)}
	err := eachField(b, func(num protowire.Number, _ protowire.Type, val []byte, _ uint64) error {
		switch num {
		case commitID:
			r.CommitID = string(val)
		case commitMessage:
			r.Message = string(val)
		case commitEntry:
			name, res, err := decodeEntry(val)
			if err != nil {
				return err
			}
			r.Tests[name] = res
		}
		return nil
	})
	if err != nil {
		return schema.CommitResults{}, err
	}
	return r, nil
}

func decodeEntry(b []byte) (string, schema.TestResult, error) {
	var name string
	var res schema.TestResult
	err := eachField(b, func(num protowire.Number, _ protowire.Type, val []byte, u uint64) error {
		switch num {
		case entryName:
			name = string(val)
		case entryStatus:
			res.Status = schema.TestStatus(u)
			if u > uint64(schema.StatusUnknown) {
				res.Status = schema.StatusUnknown
			}
		case entryDuration:
			res.Duration = u
		case entryStart:
			res.StartTime = decodeTime(u)
		}
		return nil
	})
	return name, res, err
}
