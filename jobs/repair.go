// Package jobs holds the per-record logic the scan engine runs for index
// maintenance: repair re-derives entries from source data and writes missing
// ones, remove deletes every physical entry of a retired index. Both are
// idempotent by construction, as scan ranges may be retried.
package jobs

import (
	"context"

	"github.com/cespare/xxhash"
	"github.com/cockroachdb/pebble"

	"github.com/GregoryJC/janusgraph/host"
	"github.com/GregoryJC/janusgraph/scan"
	"github.com/GregoryJC/janusgraph/schema"
	"github.com/GregoryJC/janusgraph/store"
)

const (
	AddedRecordsCount   = "added-records"
	DeletedRecordsCount = "deleted-records"
	SkippedRecordsCount = "skipped-records"
)

// RepairJob backfills one index from existing data. For every record it
// derives the entries the live property and relation values imply, point-
// looks each one up in the index first, and writes only the missing ones.
// The check-before-write is what makes repeated or partial execution
// idempotent.
type RepairJob struct {
	h   host.Host
	idx *schema.Index
}

func NewRepairJob(h host.Host, idx *schema.Index) *RepairJob {
	return &RepairJob{h: h, idx: idx}
}

func (j *RepairJob) Process(ctx context.Context, row *scan.Row, mut *scan.Mutator, m *scan.Metrics) error {
	rec, err := store.ParseRecord(row.Cells)
	if err != nil {
		return err
	}
	if j.idx.Kind == schema.RelationIndex {
		return j.repairRelation(ctx, rec, mut, m)
	}
	return j.repairComposite(ctx, rec, mut, m)
}

func (j *RepairJob) repairComposite(ctx context.Context, rec *store.Record, mut *scan.Mutator, m *scan.Metrics) error {
	if j.idx.Element == schema.VertexElement {
		tuple, ok := compositeTuple(j.idx, rec.Property)
		if !ok {
			return nil
		}
		return j.writeMissing(ctx, store.CompositeEntryKey(j.idx.ID, xxhash.Sum64(tuple), rec.Vertex, 0), tuple, mut, m)
	}
	// Edge-scoped composite index: each edge is repaired once, from its out
	// cell, so the two adjacency copies do not double count.
	for _, edge := range rec.Edges {
		if edge.Direction != schema.Out {
			continue
		}
		tuple, ok := compositeTuple(j.idx, edge.Property)
		if !ok {
			continue
		}
		key := store.CompositeEntryKey(j.idx.ID, xxhash.Sum64(tuple), rec.Vertex, edge.Relation)
		if err := j.writeMissing(ctx, key, tuple, mut, m); err != nil {
			return err
		}
	}
	return nil
}

func (j *RepairJob) repairRelation(ctx context.Context, rec *store.Record, mut *scan.Mutator, m *scan.Metrics) error {
	for _, edge := range rec.Edges {
		if edge.Label != j.idx.Relation || !j.idx.Direction.Covers(edge.Direction) {
			continue
		}
		// An absent sort key indexes as the empty value: the relation index
		// covers every relation of its type regardless.
		sortVal, _ := edge.Property(j.idx.SortKey)
		key := store.RelationEntryKey(j.idx.ID, edge.Direction, xxhash.Sum64(sortVal), rec.Vertex, edge.Relation)
		if err := j.writeMissing(ctx, key, nil, mut, m); err != nil {
			return err
		}
	}
	return nil
}

// writeMissing issues the point lookup that keeps repair idempotent, then
// writes the entry only when absent. Lookup failures other than not-found
// mean the store is unreachable and abort the partition.
func (j *RepairJob) writeMissing(ctx context.Context, key, value []byte, mut *scan.Mutator, m *scan.Metrics) error {
	_, closer, err := j.h.Database().Get(key)
	if closer != nil {
		defer closer.Close()
	}
	switch err {
	case nil:
		m.Increment(SkippedRecordsCount)
		return nil
	case pebble.ErrNotFound:
		if err := mut.Set(ctx, key, value); err != nil {
			return scan.Fatal(err)
		}
		m.Increment(AddedRecordsCount)
		return nil
	default:
		return scan.Fatal(err)
	}
}

// compositeTuple encodes the indexed value tuple from a property accessor,
// reporting false when any indexed key is absent (the element does not
// qualify for the index).
func compositeTuple(idx *schema.Index, property func(uint32) ([]byte, bool)) ([]byte, bool) {
	values := make([][]byte, 0, len(idx.Keys))
	for _, keyID := range idx.Keys {
		v, ok := property(keyID)
		if !ok {
			return nil, false
		}
		values = append(values, v)
	}
	return store.EncodeTuple(values...), true
}
