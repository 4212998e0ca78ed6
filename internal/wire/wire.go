// Package wire encodes the flat binary records kept in output_dir.
//
// Every record is a sequence of protobuf wire-format fields. Files holding a
// list store one length-delimited entry per element under field 1, so a
// reader can walk entries forward without decoding them. Unknown fields are
// skipped on decode.
package wire

import (
	"errors"
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrTruncated is returned when a record ends in the middle of a field.
var ErrTruncated = errors.New("wire: malformed record")

// listField is the field number of the entries of every list file.
const listField protowire.Number = 1

type fieldFn func(num protowire.Number, typ protowire.Type, val []byte, u uint64) error

// eachField calls fn for every top-level field of b. Bytes fields are passed
// as val, numeric fields as u.
func eachField(b []byte, fn fieldFn) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrTruncated, protowire.ParseError(n))
		}
		b = b[n:]

		var val []byte
		var u uint64
		switch typ {
		case protowire.VarintType:
			u, n = protowire.ConsumeVarint(b)
		case protowire.Fixed64Type:
			u, n = protowire.ConsumeFixed64(b)
		case protowire.Fixed32Type:
			var v uint32
			v, n = protowire.ConsumeFixed32(b)
			u = uint64(v)
		case protowire.BytesType:
			val, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrTruncated, num, protowire.ParseError(n))
		}
		if err := fn(num, typ, val, u); err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// Entries returns the embedded entries of a list file as sub-slices of b.
// Nothing is copied, so the result stays valid only as long as b does.
func Entries(b []byte) ([][]byte, error) {
	var out [][]byte
	err := eachField(b, func(num protowire.Number, typ protowire.Type, val []byte, _ uint64) error {
		if num == listField && typ == protowire.BytesType {
			out = append(out, val)
		}
		return nil
	})
	return out, err
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendFloat(b []byte, num protowire.Number, v float64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

// appendTime stores t as zigzag unix seconds; the zero time is omitted.
func appendTime(b []byte, num protowire.Number, t time.Time) []byte {
	if t.IsZero() {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(t.Unix()))
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func decodeTime(u uint64) time.Time {
	return time.Unix(protowire.DecodeZigZag(u), 0).UTC()
}

// decodeList decodes every entry of a list file with fn.
func decodeList[T any](b []byte, fn func([]byte) (T, error)) ([]T, error) {
	entries, err := Entries(b)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(entries))
	for _, e := range entries {
		v, err := fn(e)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// encodeList encodes every element with fn as a field 1 entry.
func encodeList[T any](items []T, fn func([]byte, T) []byte) []byte {
	var b, scratch []byte
	for _, it := range items {
		scratch = fn(scratch[:0], it)
		b = appendMessage(b, listField, scratch)
	}
	return b
}
