package store

import (
	"bytes"
	"encoding/binary"
)

// Span is a contiguous key range, lower inclusive, upper exclusive.
type Span struct {
	Lower []byte
	Upper []byte
}

func (s Span) Contains(key []byte) bool {
	return bytes.Compare(key, s.Lower) >= 0 && bytes.Compare(key, s.Upper) < 0
}

// Split partitions the span into n disjoint contiguous subranges by
// big-endian interpolation of the first eight bytes following the bounds'
// common prefix. Boundaries are at most eight bytes past the common prefix,
// which keeps every element row (nine-plus-byte keys sharing an eight-byte
// id) on one side of any boundary.
func (s Span) Split(n int) []Span {
	if n <= 1 {
		return []Span{s}
	}
	prefix := commonPrefix(s.Lower, s.Upper)
	lo := fraction(s.Lower[len(prefix):])
	hi := fraction(s.Upper[len(prefix):])
	if hi <= lo {
		return []Span{s}
	}
	step := (hi - lo) / uint64(n)
	if step == 0 {
		return []Span{s}
	}
	spans := make([]Span, 0, n)
	prev := s.Lower
	for i := 1; i < n; i++ {
		bound := make([]byte, 0, len(prefix)+8)
		bound = append(bound, prefix...)
		bound = binary.BigEndian.AppendUint64(bound, lo+step*uint64(i))
		spans = append(spans, Span{Lower: prev, Upper: bound})
		prev = bound
	}
	return append(spans, Span{Lower: prev, Upper: s.Upper})
}

func commonPrefix(a, b []byte) []byte {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return a[:i]
		}
	}
	return a[:n]
}

// fraction reads up to eight bytes as a big-endian number, zero-padded on
// the right, placing the key on a 64-bit number line.
func fraction(tail []byte) uint64 {
	var buf [8]byte
	copy(buf[:], tail)
	return binary.BigEndian.Uint64(buf[:])
}
