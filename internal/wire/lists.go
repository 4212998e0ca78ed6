package wire

import (
	"math"

	"github.com/ktestci/ktestci/schema"
	"google.golang.org/protobuf/encoding/protowire"
)

// EncodeWorkers serializes the worker registry.
func EncodeWorkers(workers []schema.Worker) []byte {
	return encodeList(workers, func(b []byte, w schema.Worker) []byte {
		b = appendString(b, 1, w.Hostname)
		b = appendString(b, 2, w.Workdir)
		b = appendTime(b, 3, w.StartTime)
		b = appendString(b, 4, w.User)
		b = appendString(b, 5, w.Branch)
		b = appendUint(b, 6, w.Age)
		b = appendString(b, 7, w.Commit)
		return appendString(b, 8, w.Tests)
	})
}

// DecodeWorkers parses the worker registry. An empty buffer is an empty registry.
func DecodeWorkers(b []byte) ([]schema.Worker, error) {
	return decodeList(b, func(e []byte) (schema.Worker, error) {
		var w schema.Worker
		err := eachField(e, func(num protowire.Number, _ protowire.Type, val []byte, u uint64) error {
			switch num {
			case 1:
				w.Hostname = string(val)
			case 2:
				w.Workdir = string(val)
			case 3:
				w.StartTime = decodeTime(u)
			case 4:
				w.User = string(val)
			case 5:
				w.Branch = string(val)
			case 6:
				w.Age = u
			case 7:
				w.Commit = string(val)
			case 8:
				w.Tests = string(val)
			}
			return nil
		})
		return w, err
	})
}

// EncodeUserStats serializes the per-user accounting table.
func EncodeUserStats(stats []schema.UserStats) []byte {
	return encodeList(stats, func(b []byte, s schema.UserStats) []byte {
		b = appendString(b, 1, s.User)
		b = appendUint(b, 2, s.Total)
		b = appendFloat(b, 3, s.Recent)
		return appendTime(b, 4, s.LastUpdated)
	})
}

// DecodeUserStats parses the per-user accounting table.
func DecodeUserStats(b []byte) ([]schema.UserStats, error) {
	return decodeList(b, func(e []byte) (schema.UserStats, error) {
		var s schema.UserStats
		err := eachField(e, func(num protowire.Number, _ protowire.Type, val []byte, u uint64) error {
			switch num {
			case 1:
				s.User = string(val)
			case 2:
				s.Total = u
			case 3:
				s.Recent = math.Float64frombits(u)
			case 4:
				s.LastUpdated = decodeTime(u)
			}
			return nil
		})
		return s, err
	})
}

// EncodeDurations serializes the duration table. Callers pass it sorted by name.
func EncodeDurations(stats []schema.TestStats) []byte {
	return encodeList(stats, func(b []byte, s schema.TestStats) []byte {
		b = appendString(b, 1, s.Name)
		b = appendUint(b, 2, s.Runs)
		b = appendUint(b, 3, s.Passed)
		b = appendUint(b, 4, s.Failed)
		return appendUint(b, 5, s.Duration)
	})
}

// DecodeTestStats parses one entry of the duration table.
func DecodeTestStats(e []byte) (schema.TestStats, error) {
	var s schema.TestStats
	err := eachField(e, func(num protowire.Number, _ protowire.Type, val []byte, u uint64) error {
		switch num {
		case 1:
			s.Name = string(val)
		case 2:
			s.Runs = u
		case 3:
			s.Passed = u
		case 4:
			s.Failed = u
		case 5:
			s.Duration = u
		}
		return nil
	})
	return s, err
}

// TestStatsName returns the name of a duration table entry without decoding the rest.
func TestStatsName(e []byte) ([]byte, error) {
	for len(e) > 0 {
		num, typ, n := protowire.ConsumeTag(e)
		if n < 0 {
			return nil, ErrTruncated
		}
		e = e[n:]
		if num == 1 && typ == protowire.BytesType {
			val, m := protowire.ConsumeBytes(e)
			if m < 0 {
				return nil, ErrTruncated
			}
			return val, nil
		}
		m := protowire.ConsumeFieldValue(num, typ, e)
		if m < 0 {
			return nil, ErrTruncated
		}
		e = e[m:]
	}
	return nil, nil
}

// DecodeDurations parses the whole duration table.
func DecodeDurations(b []byte) ([]schema.TestStats, error) {
	return decodeList(b, DecodeTestStats)
}

// EncodeBranchLog serializes a branch summary.
func EncodeBranchLog(entries []schema.BranchEntry) []byte {
	return encodeList(entries, func(b []byte, e schema.BranchEntry) []byte {
		b = appendString(b, 1, e.CommitID)
		b = appendString(b, 2, e.Message)
		b = appendUint(b, 3, uint64(e.Passed))
		b = appendUint(b, 4, uint64(e.Failed))
		b = appendUint(b, 5, uint64(e.NotRun))
		b = appendUint(b, 6, uint64(e.NotStarted))
		b = appendUint(b, 7, uint64(e.InProgress))
		b = appendUint(b, 8, uint64(e.Unknown))
		return appendUint(b, 9, e.Duration)
	})
}

// DecodeBranchLog parses a branch summary.
func DecodeBranchLog(b []byte) ([]schema.BranchEntry, error) {
	return decodeList(b, func(e []byte) (schema.BranchEntry, error) {
		var be schema.BranchEntry
		err := eachField(e, func(num protowire.Number, _ protowire.Type, val []byte, u uint64) error {
			switch num {
			case 1:
				be.CommitID = string(val)
			case 2:
				be.Message = string(val)
			case 3:
				be.Passed = uint32(u)
			case 4:
				be.Failed = uint32(u)
			case 5:
				be.NotRun = uint32(u)
			case 6:
				be.NotStarted = uint32(u)
			case 7:
				be.InProgress = uint32(u)
			case 8:
				be.Unknown = uint32(u)
			case 9:
				be.Duration = u
			}
			return nil
		})
		return be, err
	})
}
