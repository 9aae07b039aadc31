// Package scan is the distributed scan engine: it partitions a keyspace of
// the backing store, runs a job's per-record logic over every row in
// parallel, buffers requested mutations into bounded batches, and merges
// per-worker counters into one result.
package scan

import (
	"context"
	"fmt"

	"github.com/GregoryJC/janusgraph/store"
)

// Row is the unit of work handed to a job: the cells sharing one row key in
// iteration order. For per-cell plans every cell is its own row.
type Row struct {
	Key   []byte
	Cells []store.Cell
}

// Job is stateless per-record logic. Process must be idempotent: mutation
// semantics are at-least-once, and partitions may be re-executed after a
// partial failure. A plain error marks the row failed and the scan moves on;
// wrap with Fatal to abort the partition and fail the job.
type Job interface {
	Process(ctx context.Context, row *Row, mut *Mutator, m *Metrics) error
}

// Plan describes which keyspace a job scans and how cells group into rows.
// RowPrefixLen is the shared row-key prefix length; zero or negative means
// every cell is processed as its own row. Parts overrides the partition
// count when positive.
type Plan struct {
	Span         store.Span
	RowPrefixLen int
	Parts        int
}

// ElementPlan scans every adjacency row of the store.
func ElementPlan() Plan {
	return Plan{Span: store.ElementSpan(), RowPrefixLen: store.ElementRowLen}
}

// FatalError aborts the enclosing partition and fails the whole job.
// Connectivity loss to the backing store is the canonical case.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal scan failure: %s", e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Fatal wraps an error so the engine aborts the partition instead of
// counting the record as failed and continuing.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}
