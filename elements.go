package janusgraph

import (
	"bytes"
	"context"
	"encoding/binary"

	"github.com/cespare/xxhash"
	"github.com/cockroachdb/pebble"

	"github.com/GregoryJC/janusgraph/janusgraph_errors"
	"github.com/GregoryJC/janusgraph/schema"
	"github.com/GregoryJC/janusgraph/store"
)

// Properties maps property key names to values (string or int64).
type Properties map[string]any

// indexWritable reports whether live writes maintain entries for an index:
// from REGISTERED on, until it is DISABLED.
func indexWritable(s schema.Status) bool {
	return s == schema.StatusRegistered || s == schema.StatusEnabled
}

// AddVertex stores a vertex with its properties and writes through every
// composite vertex index the element qualifies for.
func (g *Graph) AddVertex(ctx context.Context, props Properties) (store.ElementID, error) {
	encoded, err := g.encodeProperties(props)
	if err != nil {
		return 0, err
	}
	indexes, err := g.schema.Indexes()
	if err != nil {
		return 0, err
	}

	id, err := g.alloc(counterVertex, &g.nextVertex)
	if err != nil {
		return 0, err
	}
	vid := store.ElementID(id)
	batch := g.db.NewBatch()
	for _, p := range encoded {
		if err := batch.Set(store.PropertyCellKey(vid, p.Key), p.Value, nil); err != nil {
			return 0, err
		}
	}
	for _, idx := range indexes {
		if idx.Kind != schema.CompositeIndex || idx.Element != schema.VertexElement || !indexWritable(idx.Status) {
			continue
		}
		tuple, ok := tupleFor(idx, encoded)
		if !ok {
			continue
		}
		key := store.CompositeEntryKey(idx.ID, xxhash.Sum64(tuple), vid, 0)
		if err := batch.Set(key, tuple, nil); err != nil {
			return 0, err
		}
	}
	if err := batch.Commit(g.opts.WriteOptions); err != nil {
		return 0, err
	}
	return vid, nil
}

// AddEdge stores an edge as two adjacency cells (out on the source row, in
// on the target row) and writes through matching relation indexes and
// composite edge indexes.
func (g *Graph) AddEdge(ctx context.Context, label string, from, to store.ElementID, props Properties) (store.RelationID, error) {
	lbl, err := g.schema.EdgeLabel(label)
	if err != nil {
		return 0, err
	}
	encoded, err := g.encodeProperties(props)
	if err != nil {
		return 0, err
	}
	indexes, err := g.schema.Indexes()
	if err != nil {
		return 0, err
	}

	id, err := g.alloc(counterRelation, &g.nextRelation)
	if err != nil {
		return 0, err
	}
	rid := store.RelationID(id)
	batch := g.db.NewBatch()
	pairs := store.EncodePairs(encoded)
	if err := batch.Set(store.EdgeCellKey(from, lbl.ID, schema.Out, to, rid), pairs, nil); err != nil {
		return 0, err
	}
	if err := batch.Set(store.EdgeCellKey(to, lbl.ID, schema.In, from, rid), pairs, nil); err != nil {
		return 0, err
	}

	for _, idx := range indexes {
		if !indexWritable(idx.Status) {
			continue
		}
		switch {
		case idx.Kind == schema.RelationIndex && idx.Relation == lbl.ID:
			sortVal, _ := propertyValue(encoded, idx.SortKey)
			hash := xxhash.Sum64(sortVal)
			if idx.Direction.Covers(schema.Out) {
				if err := batch.Set(store.RelationEntryKey(idx.ID, schema.Out, hash, from, rid), nil, nil); err != nil {
					return 0, err
				}
			}
			if idx.Direction.Covers(schema.In) {
				if err := batch.Set(store.RelationEntryKey(idx.ID, schema.In, hash, to, rid), nil, nil); err != nil {
					return 0, err
				}
			}
		case idx.Kind == schema.CompositeIndex && idx.Element == schema.EdgeElement:
			tuple, ok := tupleFor(idx, encoded)
			if !ok {
				continue
			}
			key := store.CompositeEntryKey(idx.ID, xxhash.Sum64(tuple), from, rid)
			if err := batch.Set(key, tuple, nil); err != nil {
				return 0, err
			}
		}
	}
	if err := batch.Commit(g.opts.WriteOptions); err != nil {
		return 0, err
	}
	return rid, nil
}

// VerticesByIndex answers a point query through an ENABLED composite vertex
// index. Candidate entries are verified against the stored tuple, so hash
// collisions never leak foreign elements.
func (g *Graph) VerticesByIndex(ctx context.Context, name string, values ...any) ([]store.ElementID, error) {
	idx, err := g.schema.GraphIndex(name)
	if err != nil {
		return nil, err
	}
	if idx.Status != schema.StatusEnabled {
		return nil, janusgraph_errors.ErrIndexNotEnabled
	}
	encoded := make([][]byte, 0, len(values))
	for _, v := range values {
		e, err := store.EncodeValue(v)
		if err != nil {
			return nil, err
		}
		encoded = append(encoded, e)
	}
	tuple := store.EncodeTuple(encoded...)

	span := store.CompositeValueSpan(idx.ID, xxhash.Sum64(tuple))
	iter, err := g.db.NewIter(&pebble.IterOptions{
		LowerBound: span.Lower,
		UpperBound: span.Upper,
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	hits := []store.ElementID{}
	for valid := iter.First(); valid; valid = iter.Next() {
		if !bytes.Equal(iter.Value(), tuple) {
			continue
		}
		vid, _ := store.CompositeEntryElement(iter.Key())
		hits = append(hits, vid)
	}
	return hits, iter.Error()
}

// RelationHit identifies one relation found through a relation index: the
// adjacency cell's owning vertex and the relation id.
type RelationHit struct {
	Owner    store.ElementID
	Relation store.RelationID
}

// RelationsByIndex answers a point query through an ENABLED relation index:
// relations of the owning label whose sort key equals value, as seen from
// the stored direction dir. A nil value matches relations without the sort
// key. Candidates are verified against the owner's adjacency cell, so hash
// collisions never leak foreign relations.
func (g *Graph) RelationsByIndex(ctx context.Context, labelName, indexName string, dir schema.Direction, value any) ([]RelationHit, error) {
	idx, err := g.schema.RelationIndex(labelName, indexName)
	if err != nil {
		return nil, err
	}
	if idx.Status != schema.StatusEnabled {
		return nil, janusgraph_errors.ErrIndexNotEnabled
	}
	if dir == schema.Both || !idx.Direction.Covers(dir) {
		return nil, janusgraph_errors.ErrDirectionNotIndexed
	}
	var sortVal []byte
	if value != nil {
		if sortVal, err = store.EncodeValue(value); err != nil {
			return nil, err
		}
	}

	span := store.RelationValueSpan(idx.ID, dir, xxhash.Sum64(sortVal))
	iter, err := g.db.NewIter(&pebble.IterOptions{
		LowerBound: span.Lower,
		UpperBound: span.Upper,
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	hits := []RelationHit{}
	for valid := iter.First(); valid; valid = iter.Next() {
		vid, rid := store.RelationEntryElement(iter.Key())
		ok, err := g.relationSortKeyMatches(idx, vid, dir, rid, sortVal)
		if err != nil {
			return nil, err
		}
		if ok {
			hits = append(hits, RelationHit{Owner: vid, Relation: rid})
		}
	}
	return hits, iter.Error()
}

// relationSortKeyMatches re-reads the owner's adjacency cell and compares
// the stored sort value with the queried one.
func (g *Graph) relationSortKeyMatches(idx *schema.Index, vid store.ElementID, dir schema.Direction, rid store.RelationID, sortVal []byte) (bool, error) {
	span := store.EdgeCellSpan(vid, idx.Relation, dir)
	iter, err := g.db.NewIter(&pebble.IterOptions{
		LowerBound: span.Lower,
		UpperBound: span.Upper,
	})
	if err != nil {
		return false, err
	}
	defer iter.Close()

	for valid := iter.First(); valid; valid = iter.Next() {
		key := iter.Key()
		if store.RelationID(binary.BigEndian.Uint64(key[len(key)-8:])) != rid {
			continue
		}
		pairs, err := store.DecodePairs(iter.Value())
		if err != nil {
			return false, err
		}
		stored, _ := propertyValue(pairs, idx.SortKey)
		return bytes.Equal(stored, sortVal), nil
	}
	return false, iter.Error()
}

// VertexProperty reads one property value of a vertex.
func (g *Graph) VertexProperty(ctx context.Context, vid store.ElementID, keyName string) (any, bool, error) {
	pk, err := g.schema.PropertyKey(keyName)
	if err != nil {
		return nil, false, err
	}
	value, closer, err := g.db.Get(store.PropertyCellKey(vid, pk.ID))
	if closer != nil {
		defer closer.Close()
	}
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	decoded, err := store.DecodeValue(value)
	if err != nil {
		return nil, false, err
	}
	return decoded, true, nil
}

// IndexEntryCount counts the physical entries currently stored for an
// index, composite or relation.
func (g *Graph) IndexEntryCount(x *schema.Index) (int, error) {
	span := store.IndexSpan(x)
	iter, err := g.db.NewIter(&pebble.IterOptions{
		LowerBound: span.Lower,
		UpperBound: span.Upper,
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	count := 0
	for valid := iter.First(); valid; valid = iter.Next() {
		count++
	}
	return count, iter.Error()
}

func (g *Graph) encodeProperties(props Properties) ([]store.PropertyEntry, error) {
	encoded := make([]store.PropertyEntry, 0, len(props))
	for name, value := range props {
		pk, err := g.schema.PropertyKey(name)
		if err != nil {
			return nil, err
		}
		data, err := store.EncodeValue(value)
		if err != nil {
			return nil, err
		}
		encoded = append(encoded, store.PropertyEntry{Key: pk.ID, Value: data})
	}
	return encoded, nil
}

func propertyValue(entries []store.PropertyEntry, keyID uint32) ([]byte, bool) {
	for _, p := range entries {
		if p.Key == keyID {
			return p.Value, true
		}
	}
	return nil, false
}

func tupleFor(idx *schema.Index, entries []store.PropertyEntry) ([]byte, bool) {
	values := make([][]byte, 0, len(idx.Keys))
	for _, keyID := range idx.Keys {
		v, ok := propertyValue(entries, keyID)
		if !ok {
			return nil, false
		}
		values = append(values, v)
	}
	return store.EncodeTuple(values...), true
}
