package scan

import (
	"context"

	"github.com/google/uuid"
)

// Future is the handle to an asynchronous scan job. It resolves when every
// partition finishes, or when any partition reports a fatal error, carrying
// the counters accumulated up to that point either way.
type Future struct {
	ID uuid.UUID

	metrics *Metrics
	done    chan struct{}
	err     error
	cancel  context.CancelFunc
}

func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Get blocks until the job resolves or ctx expires. The returned Metrics is
// valid even when err is non-nil: already-applied mutations stand and their
// counters with them.
func (f *Future) Get(ctx context.Context) (*Metrics, error) {
	select {
	case <-f.done:
		return f.metrics, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel requests cooperative cancellation: in-flight partitions finish
// their current batch, observe the flag between rows and stop. Nothing is
// rolled back.
func (f *Future) Cancel() {
	if f.cancel != nil {
		f.cancel()
	}
}

// Completed returns an already-resolved successful future, used for
// lifecycle actions that need no scan.
func Completed(m *Metrics) *Future {
	f := &Future{ID: uuid.New(), metrics: m, done: make(chan struct{})}
	close(f.done)
	return f
}
