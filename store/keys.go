// Package store defines the key layout of the backing pebble keyspace, the
// value codec, and the record model assembled from adjacency rows. It knows
// nothing about scans or lifecycle; higher layers build on these primitives.
package store

import (
	"encoding/binary"

	"github.com/GregoryJC/janusgraph/schema"
)

// ElementID identifies a vertex.
type ElementID uint64

// RelationID identifies one stored relation (edge) instance.
type RelationID uint64

// Keyspace prefixes. Element rows live under 'O', index entries under 'I',
// schema records under 'S', allocator meta under 'M'.
const (
	ElementPrefix = 'O'
	IndexPrefix   = 'I'
	SchemaPrefix  = 'S'
	MetaPrefix    = 'M'

	compositeTag = 'C'
	relationTag  = 'R'

	propertyCell = 'P'
	edgeCell     = 'E'

	dirOut = 'O'
	dirIn  = 'I'
)

// ElementRowLen is the length of an element row key: prefix byte plus the
// big-endian vertex id. Every cell of the row shares this prefix.
const ElementRowLen = 1 + 8

func DirByte(d schema.Direction) byte {
	if d == schema.In {
		return dirIn
	}
	return dirOut
}

func DirFromByte(b byte) schema.Direction {
	if b == dirIn {
		return schema.In
	}
	return schema.Out
}

// ElementRowKey is the row prefix of one vertex's adjacency row.
func ElementRowKey(vid ElementID) []byte {
	key := []byte{ElementPrefix}
	return binary.BigEndian.AppendUint64(key, uint64(vid))
}

func ElementRowID(key []byte) ElementID {
	return ElementID(binary.BigEndian.Uint64(key[1:ElementRowLen]))
}

// PropertyCellKey stores one property value of a vertex.
func PropertyCellKey(vid ElementID, keyID uint32) []byte {
	key := append(ElementRowKey(vid), propertyCell)
	return binary.BigEndian.AppendUint32(key, keyID)
}

// EdgeCellKey stores one direction of one edge in the owner's adjacency row.
// Every edge is materialized twice: an out cell on the source row and an in
// cell on the target row.
func EdgeCellKey(vid ElementID, labelID uint32, dir schema.Direction, other ElementID, rid RelationID) []byte {
	key := append(ElementRowKey(vid), edgeCell)
	key = binary.BigEndian.AppendUint32(key, labelID)
	key = append(key, DirByte(dir))
	key = binary.BigEndian.AppendUint64(key, uint64(other))
	key = binary.BigEndian.AppendUint64(key, uint64(rid))
	return key
}

// ElementSpan covers every adjacency row in the store.
func ElementSpan() Span {
	return Span{Lower: []byte{ElementPrefix}, Upper: []byte{ElementPrefix + 1}}
}

// CompositeEntryKey is one composite index entry. For edge-scoped indexes the
// relation id disambiguates multiple edges of one vertex; for vertex indexes
// rid is zero and omitted from identity comparisons by construction.
func CompositeEntryKey(indexID uint32, valueHash uint64, vid ElementID, rid RelationID) []byte {
	key := []byte{IndexPrefix, compositeTag}
	key = binary.BigEndian.AppendUint32(key, indexID)
	key = binary.BigEndian.AppendUint64(key, valueHash)
	key = binary.BigEndian.AppendUint64(key, uint64(vid))
	key = binary.BigEndian.AppendUint64(key, uint64(rid))
	return key
}

// CompositeEntryElement recovers the element identity from an entry key.
func CompositeEntryElement(key []byte) (ElementID, RelationID) {
	vid := ElementID(binary.BigEndian.Uint64(key[14:22]))
	rid := RelationID(binary.BigEndian.Uint64(key[22:30]))
	return vid, rid
}

// CompositeValueSpan covers all entries of one composite index for one value
// hash, the range a point lookup iterates.
func CompositeValueSpan(indexID uint32, valueHash uint64) Span {
	lower := []byte{IndexPrefix, compositeTag}
	lower = binary.BigEndian.AppendUint32(lower, indexID)
	lower = binary.BigEndian.AppendUint64(lower, valueHash)
	upper := []byte{IndexPrefix, compositeTag}
	upper = binary.BigEndian.AppendUint32(upper, indexID)
	upper = binary.BigEndian.AppendUint64(upper, valueHash+1)
	if valueHash+1 == 0 {
		upper = prefixSuccessor(upper[:6])
	}
	return Span{Lower: lower, Upper: upper}
}

// RelationEntryKey is one relation index entry: one per adjacency cell whose
// direction the index covers.
func RelationEntryKey(indexID uint32, dir schema.Direction, sortHash uint64, vid ElementID, rid RelationID) []byte {
	key := []byte{IndexPrefix, relationTag}
	key = binary.BigEndian.AppendUint32(key, indexID)
	key = append(key, DirByte(dir))
	key = binary.BigEndian.AppendUint64(key, sortHash)
	key = binary.BigEndian.AppendUint64(key, uint64(vid))
	key = binary.BigEndian.AppendUint64(key, uint64(rid))
	return key
}

// RelationEntryElement recovers the adjacency identity from an entry key.
func RelationEntryElement(key []byte) (ElementID, RelationID) {
	vid := ElementID(binary.BigEndian.Uint64(key[15:23]))
	rid := RelationID(binary.BigEndian.Uint64(key[23:31]))
	return vid, rid
}

// RelationValueSpan covers all entries of one relation index for one
// direction and sort-value hash.
func RelationValueSpan(indexID uint32, dir schema.Direction, sortHash uint64) Span {
	prefix := []byte{IndexPrefix, relationTag}
	prefix = binary.BigEndian.AppendUint32(prefix, indexID)
	prefix = append(prefix, DirByte(dir))
	lower := binary.BigEndian.AppendUint64(append([]byte{}, prefix...), sortHash)
	var upper []byte
	if sortHash+1 == 0 {
		upper = prefixSuccessor(prefix)
	} else {
		upper = binary.BigEndian.AppendUint64(prefix, sortHash+1)
	}
	return Span{Lower: lower, Upper: upper}
}

// EdgeCellSpan covers one vertex's adjacency cells for one label and stored
// direction.
func EdgeCellSpan(vid ElementID, labelID uint32, dir schema.Direction) Span {
	lower := append(ElementRowKey(vid), edgeCell)
	lower = binary.BigEndian.AppendUint32(lower, labelID)
	lower = append(lower, DirByte(dir))
	return Span{Lower: lower, Upper: prefixSuccessor(lower)}
}

// IndexSpan covers every physical entry of one index, composite or relation.
func IndexSpan(x *schema.Index) Span {
	tag := byte(compositeTag)
	if x.Kind == schema.RelationIndex {
		tag = relationTag
	}
	lower := []byte{IndexPrefix, tag}
	lower = binary.BigEndian.AppendUint32(lower, x.ID)
	return Span{Lower: lower, Upper: prefixSuccessor(lower)}
}

// SchemaPropertyKeyKey, SchemaEdgeLabelKey and SchemaIndexKey address schema
// records by name within their scope.
func SchemaPropertyKeyKey(name string) []byte {
	return append([]byte{SchemaPrefix, 'p'}, name...)
}

func SchemaEdgeLabelKey(name string) []byte {
	return append([]byte{SchemaPrefix, 'l'}, name...)
}

func SchemaIndexKey(x *schema.Index) []byte {
	if x.Kind == schema.RelationIndex {
		return SchemaRelationIndexKey(x.Relation, x.Name)
	}
	return SchemaGraphIndexKey(x.Name)
}

func SchemaGraphIndexKey(name string) []byte {
	return append([]byte{SchemaPrefix, 'i', 'g'}, name...)
}

func SchemaRelationIndexKey(labelID uint32, name string) []byte {
	key := []byte{SchemaPrefix, 'i', 'r'}
	key = binary.BigEndian.AppendUint32(key, labelID)
	return append(key, name...)
}

// SchemaIndexSpan covers every persisted index descriptor and nothing else:
// property key and edge label records live outside the 'i' region.
func SchemaIndexSpan() Span {
	return Span{Lower: []byte{SchemaPrefix, 'i'}, Upper: []byte{SchemaPrefix, 'j'}}
}

// MetaKey addresses one allocator counter ('v' vertex ids, 'r' relation ids,
// 's' schema object ids).
func MetaKey(counter byte) []byte {
	return []byte{MetaPrefix, counter}
}

// prefixSuccessor returns the smallest key greater than every key having the
// given prefix.
func prefixSuccessor(prefix []byte) []byte {
	succ := append([]byte{}, prefix...)
	for i := len(succ) - 1; i >= 0; i-- {
		if succ[i] != 0xff {
			succ[i]++
			return succ[:i+1]
		}
	}
	return nil
}
