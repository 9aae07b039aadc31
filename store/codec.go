package store

import (
	"encoding/binary"

	"github.com/GregoryJC/janusgraph/janusgraph_errors"
)

// Property values are stored as one type byte plus payload. Only strings and
// int64s are supported; equality is byte equality of the encoding.
const (
	valueString = 'S'
	valueInt    = 'I'
)

func EncodeValue(v any) ([]byte, error) {
	switch t := v.(type) {
	case string:
		return append([]byte{valueString}, t...), nil
	case int:
		return binary.BigEndian.AppendUint64([]byte{valueInt}, uint64(int64(t))), nil
	case int64:
		return binary.BigEndian.AppendUint64([]byte{valueInt}, uint64(t)), nil
	default:
		return nil, janusgraph_errors.ErrBadValueType
	}
}

func DecodeValue(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, janusgraph_errors.ErrBadValueType
	}
	switch data[0] {
	case valueString:
		return string(data[1:]), nil
	case valueInt:
		if len(data) != 9 {
			return nil, janusgraph_errors.ErrBadValueType
		}
		return int64(binary.BigEndian.Uint64(data[1:])), nil
	default:
		return nil, janusgraph_errors.ErrBadValueType
	}
}

// EncodeTuple concatenates length-prefixed encoded values. A composite index
// entry stores the tuple of its indexed values for collision verification.
func EncodeTuple(encoded ...[]byte) []byte {
	tuple := []byte{}
	for _, v := range encoded {
		tuple = binary.BigEndian.AppendUint32(tuple, uint32(len(v)))
		tuple = append(tuple, v...)
	}
	return tuple
}

// EncodePairs serializes edge properties as (keyID, value) pairs; the pair
// order is the write order and is not significant.
func EncodePairs(pairs []PropertyEntry) []byte {
	data := binary.BigEndian.AppendUint32(nil, uint32(len(pairs)))
	for _, p := range pairs {
		data = binary.BigEndian.AppendUint32(data, p.Key)
		data = binary.BigEndian.AppendUint32(data, uint32(len(p.Value)))
		data = append(data, p.Value...)
	}
	return data
}

func DecodePairs(data []byte) ([]PropertyEntry, error) {
	if len(data) < 4 {
		return nil, janusgraph_errors.ErrBadValueType
	}
	count := binary.BigEndian.Uint32(data)
	data = data[4:]
	// an entry takes at least 8 bytes, which bounds any honest count
	pairs := make([]PropertyEntry, 0, min(count, uint32(len(data)/8)))
	for i := uint32(0); i < count; i++ {
		if len(data) < 8 {
			return nil, janusgraph_errors.ErrBadValueType
		}
		key := binary.BigEndian.Uint32(data)
		vlen := binary.BigEndian.Uint32(data[4:])
		data = data[8:]
		if uint32(len(data)) < vlen {
			return nil, janusgraph_errors.ErrBadValueType
		}
		pairs = append(pairs, PropertyEntry{Key: key, Value: append([]byte{}, data[:vlen]...)})
		data = data[vlen:]
	}
	return pairs, nil
}
