package store

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GregoryJC/janusgraph/janusgraph_errors"
	"github.com/GregoryJC/janusgraph/schema"
)

func encoded(t *testing.T, v any) []byte {
	data, err := EncodeValue(v)
	require.NoError(t, err)
	return data
}

func TestValueCodec(t *testing.T) {
	v, err := DecodeValue(encoded(t, "hercules"))
	require.NoError(t, err)
	assert.Equal(t, "hercules", v)

	v, err = DecodeValue(encoded(t, int64(-4500)))
	require.NoError(t, err)
	assert.Equal(t, int64(-4500), v)

	// Plain ints normalize to int64 so equality is byte equality.
	assert.Equal(t, encoded(t, 30), encoded(t, int64(30)))

	_, err = EncodeValue(3.14)
	assert.ErrorIs(t, err, janusgraph_errors.ErrBadValueType)
	_, err = DecodeValue(nil)
	assert.ErrorIs(t, err, janusgraph_errors.ErrBadValueType)
	_, err = DecodeValue([]byte{valueInt, 1, 2})
	assert.ErrorIs(t, err, janusgraph_errors.ErrBadValueType)
}

func TestParseRecord(t *testing.T) {
	vid := ElementID(77)
	nameVal := encoded(t, "pluto")
	ageVal := encoded(t, int64(4000))
	edgeProps := EncodePairs([]PropertyEntry{{Key: 9, Value: encoded(t, "no fear of death")}})

	cells := []Cell{
		{Key: PropertyCellKey(vid, 1), Value: nameVal},
		{Key: PropertyCellKey(vid, 2), Value: ageVal},
		{Key: EdgeCellKey(vid, 5, schema.Out, 80, 300), Value: edgeProps},
		{Key: EdgeCellKey(vid, 6, schema.In, 81, 301), Value: EncodePairs(nil)},
	}

	rec, err := ParseRecord(cells)
	require.NoError(t, err)
	assert.Equal(t, vid, rec.Vertex)

	name, ok := rec.Property(1)
	require.True(t, ok)
	assert.Equal(t, nameVal, name)
	_, ok = rec.Property(3)
	assert.False(t, ok)

	require.Len(t, rec.Edges, 2)
	out := rec.Edges[0]
	assert.Equal(t, uint32(5), out.Label)
	assert.Equal(t, schema.Out, out.Direction)
	assert.Equal(t, ElementID(80), out.Other)
	assert.Equal(t, RelationID(300), out.Relation)
	reason, ok := out.Property(9)
	require.True(t, ok)
	assert.Equal(t, encoded(t, "no fear of death"), reason)

	in := rec.Edges[1]
	assert.Equal(t, schema.In, in.Direction)
	assert.Empty(t, in.Properties)
}

func TestParseRecordRejectsGarbage(t *testing.T) {
	_, err := ParseRecord(nil)
	assert.ErrorIs(t, err, janusgraph_errors.ErrElementUnknown)

	_, err = ParseRecord([]Cell{{Key: ElementRowKey(1)}})
	assert.ErrorIs(t, err, janusgraph_errors.ErrElementUnknown)

	bad := append(ElementRowKey(1), 'X', 0, 0)
	_, err = ParseRecord([]Cell{{Key: bad}})
	assert.ErrorIs(t, err, janusgraph_errors.ErrElementUnknown)
}

func TestEncodeTuple(t *testing.T) {
	a := EncodeTuple(encoded(t, "x"), encoded(t, int64(1)))
	b := EncodeTuple(encoded(t, "x"), encoded(t, int64(1)))
	c := EncodeTuple(encoded(t, "x"), encoded(t, int64(2)))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestPairsRoundTrip(t *testing.T) {
	pairs := []PropertyEntry{
		{Key: 3, Value: encoded(t, "first")},
		{Key: 4, Value: encoded(t, int64(12))},
	}
	decoded, err := DecodePairs(EncodePairs(pairs))
	require.NoError(t, err)
	assert.Equal(t, pairs, decoded)

	_, err = DecodePairs([]byte{0, 0})
	assert.ErrorIs(t, err, janusgraph_errors.ErrBadValueType)
}

func TestDecodePairsRejectsOversizedCount(t *testing.T) {
	// a count header far past what the payload could hold must fail
	// without a proportional allocation
	data := binary.BigEndian.AppendUint32(nil, 1<<31)
	data = append(data, 0, 0, 0, 0)
	_, err := DecodePairs(data)
	assert.ErrorIs(t, err, janusgraph_errors.ErrBadValueType)
}
