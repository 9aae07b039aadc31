package scan

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"

	"github.com/GregoryJC/janusgraph/host"
	"github.com/GregoryJC/janusgraph/store"
)

const (
	DefaultWorkers   = 4
	DefaultBatchSize = 128

	// partsPerWorker oversizes the partition count relative to the pool so
	// slow ranges do not straggle behind a single worker.
	partsPerWorker = 4
)

// Engine runs scan jobs over the full keyspace of the backing store with a
// bounded worker pool. No global lock is held across partitions; the store's
// own concurrency control serializes conflicting writes.
type Engine struct {
	h         host.Host
	workers   int
	batchSize int
	limiter   *rate.Limiter

	running *xsync.MapOf[string, *Future]
}

func NewEngine(h host.Host, workers, batchSize int, limit rate.Limit) *Engine {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	var limiter *rate.Limiter
	if limit > 0 && limit != rate.Inf {
		limiter = rate.NewLimiter(limit, 1)
	}
	return &Engine{
		h:         h,
		workers:   workers,
		batchSize: batchSize,
		limiter:   limiter,
		running:   xsync.NewMapOf[string, *Future](),
	}
}

// Running reports the number of scan jobs currently in flight.
func (e *Engine) Running() int {
	return e.running.Size()
}

type runOptions struct {
	onSuccess func(ctx context.Context) error
}

type RunOption func(*runOptions)

// WithOnSuccess runs fn after every partition finishes cleanly and before
// the future resolves; an error from fn fails the job.
func WithOnSuccess(fn func(ctx context.Context) error) RunOption {
	return func(o *runOptions) {
		o.onSuccess = fn
	}
}

// RunJob scans the plan's keyspace with the job's per-record logic and
// returns immediately with a future for the merged result. The scan reads a
// snapshot taken here, so records written during the run are not visited.
func (e *Engine) RunJob(ctx context.Context, name string, job Job, plan Plan, opts ...RunOption) *Future {
	var options runOptions
	for _, opt := range opts {
		opt(&options)
	}

	ctx, cancel := context.WithCancel(ctx)
	f := &Future{
		ID:      uuid.New(),
		metrics: NewMetrics(),
		done:    make(chan struct{}),
		cancel:  cancel,
	}
	e.running.Store(f.ID.String(), f)
	ScanJobCount.WithLabelValues(name).Inc()
	start := time.Now()

	snap := e.h.Database().NewSnapshot()
	parts := plan.Parts
	if parts <= 0 {
		parts = e.workers * partsPerWorker
	}
	spans := plan.Span.Split(parts)

	p := pool.New().WithMaxGoroutines(e.workers).WithContext(ctx).WithCancelOnError()
	for _, span := range spans {
		span := span
		p.Go(func(ctx context.Context) error {
			mut := newMutator(e.h.Database(), e.h.WriteOptions(), e.limiter, e.batchSize, name)
			return e.scanSpan(ctx, snap, span, plan, job, mut, f.metrics)
		})
	}

	go func() {
		err := p.Wait()
		_ = snap.Close()
		if err == nil && options.onSuccess != nil {
			err = options.onSuccess(ctx)
		}
		cancel()
		if err != nil {
			f.metrics.markFailed()
			ScanJobResults.WithLabelValues(name, "error").Inc()
			e.h.Logger().ErrorCtx(ctx, "scan job failed", "job", name, "id", f.ID.String(), "error", err)
		} else {
			ScanJobResults.WithLabelValues(name, "success").Inc()
			ScanJobDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		}
		f.err = err
		e.running.Delete(f.ID.String())
		close(f.done)
	}()
	return f
}

// scanSpan iterates one partition's range in order, groups cells into rows
// and feeds them to the job. Order across partitions is unspecified.
func (e *Engine) scanSpan(ctx context.Context, snap *pebble.Snapshot, span store.Span, plan Plan, job Job, mut *Mutator, m *Metrics) error {
	if bytes.Compare(span.Lower, span.Upper) >= 0 {
		return nil
	}
	iter, err := snap.NewIter(&pebble.IterOptions{
		LowerBound: span.Lower,
		UpperBound: span.Upper,
	})
	if err != nil {
		return Fatal(err)
	}
	defer iter.Close()

	var rowKey []byte
	var cells []store.Cell
	emit := func() error {
		if len(cells) == 0 {
			return nil
		}
		row := &Row{Key: rowKey, Cells: cells}
		rowKey, cells = nil, nil
		return e.processRow(ctx, job, row, mut, m)
	}

	for valid := iter.First(); valid; valid = iter.Next() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		key := append([]byte{}, iter.Key()...)
		value, err := iter.ValueAndErr()
		if err != nil {
			return Fatal(err)
		}
		value = append([]byte{}, value...)

		if plan.RowPrefixLen <= 0 {
			rowKey, cells = key, []store.Cell{{Key: key, Value: value}}
			if err := emit(); err != nil {
				return err
			}
			continue
		}
		prefix := key
		if len(prefix) > plan.RowPrefixLen {
			prefix = key[:plan.RowPrefixLen]
		}
		if rowKey != nil && !bytes.Equal(prefix, rowKey) {
			if err := emit(); err != nil {
				return err
			}
		}
		if rowKey == nil {
			rowKey = prefix
		}
		cells = append(cells, store.Cell{Key: key, Value: value})
	}
	if err := iter.Error(); err != nil {
		return Fatal(err)
	}
	if err := emit(); err != nil {
		return err
	}
	return mut.Flush(ctx)
}

func (e *Engine) processRow(ctx context.Context, job Job, row *Row, mut *Mutator, m *Metrics) error {
	err := job.Process(ctx, row, mut, m)
	if err == nil {
		return nil
	}
	var fatal *FatalError
	if errors.As(err, &fatal) || errors.Is(err, context.Canceled) {
		return err
	}
	m.Increment(FailedRecordsCount)
	e.h.Logger().WarnCtx(ctx, "record processing failed", "error", err)
	return nil
}
