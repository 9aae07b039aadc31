package scan

import (
	"context"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

const (
	maxFlushAttempts = 4
	flushBackoffBase = 25 * time.Millisecond
)

// Mutator buffers the mutations one partition's job requests and flushes
// them in bounded batches so backend write-size limits are respected. A
// rejected flush is retried with backoff a bounded number of times before it
// is classified as a partition failure. Flushed batches are never rolled
// back: jobs must be idempotent.
type Mutator struct {
	db        *pebble.DB
	wo        *pebble.WriteOptions
	limiter   *rate.Limiter
	batchSize int
	job       string

	batch   *pebble.Batch
	pending int

	// commit is swappable for failure-injection in tests.
	commit func(b *pebble.Batch) error
}

func newMutator(db *pebble.DB, wo *pebble.WriteOptions, limiter *rate.Limiter, batchSize int, job string) *Mutator {
	m := &Mutator{db: db, wo: wo, limiter: limiter, batchSize: batchSize, job: job}
	m.commit = func(b *pebble.Batch) error {
		return b.Commit(wo)
	}
	return m
}

func (m *Mutator) Set(ctx context.Context, key, value []byte) error {
	if m.batch == nil {
		m.batch = m.db.NewBatch()
	}
	if err := m.batch.Set(key, value, nil); err != nil {
		return errors.Wrap(err, "buffer set")
	}
	m.pending++
	if m.pending >= m.batchSize {
		return m.Flush(ctx)
	}
	return nil
}

func (m *Mutator) Delete(ctx context.Context, key []byte) error {
	if m.batch == nil {
		m.batch = m.db.NewBatch()
	}
	if err := m.batch.Delete(key, nil); err != nil {
		return errors.Wrap(err, "buffer delete")
	}
	m.pending++
	if m.pending >= m.batchSize {
		return m.Flush(ctx)
	}
	return nil
}

// Flush commits the buffered batch. Retries stop once the context is
// cancelled so a cancelled partition still finishes its current batch but
// does not keep fighting the store.
func (m *Mutator) Flush(ctx context.Context) error {
	if m.batch == nil || m.pending == 0 {
		return nil
	}
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	var err error
	for attempt := 0; attempt < maxFlushAttempts; attempt++ {
		if attempt > 0 {
			ScanFlushRetries.WithLabelValues(m.job).Inc()
			select {
			case <-time.After(flushBackoffBase << (attempt - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		err = m.commit(m.batch)
		if err == nil {
			m.batch = m.db.NewBatch()
			m.pending = 0
			return nil
		}
	}
	return errors.Wrapf(err, "flush rejected after %d attempts", maxFlushAttempts)
}
