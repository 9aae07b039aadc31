package mgmt

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/GregoryJC/janusgraph/host"
	"github.com/GregoryJC/janusgraph/schema"
)

const (
	DefaultAwaitTimeout = 60 * time.Second
	DefaultPollInterval = 50 * time.Millisecond
)

// Report is the outcome of a status wait. A timeout is a first-class
// outcome, not an error: Succeeded is false and Statuses holds the last
// per-replica observation.
type Report struct {
	Succeeded bool
	Statuses  []schema.Status
	Elapsed   time.Duration
}

// StatusWatcher polls every schema replica of the deployment until all of
// them report the target status or later in the lifecycle order. Status
// propagation is asynchronous; operations like repair must not start until
// every replica has stopped acting on the old status. The watcher only
// reads and is safe to call concurrently and repeatedly.
type StatusWatcher struct {
	h        host.Host
	resolve  func() (*schema.Index, error)
	target   schema.Status
	timeout  time.Duration
	interval time.Duration
}

func newWatcher(h host.Host, resolve func() (*schema.Index, error)) *StatusWatcher {
	return &StatusWatcher{
		h:        h,
		resolve:  resolve,
		target:   schema.StatusRegistered,
		timeout:  DefaultAwaitTimeout,
		interval: DefaultPollInterval,
	}
}

// AwaitGraphIndexStatus watches a composite index by name.
func AwaitGraphIndexStatus(h host.Host, name string) *StatusWatcher {
	return newWatcher(h, func() (*schema.Index, error) {
		return h.GraphIndex(name)
	})
}

// AwaitRelationIndexStatus watches a relation index by owning type and name.
func AwaitRelationIndexStatus(h host.Host, relType, name string) *StatusWatcher {
	return newWatcher(h, func() (*schema.Index, error) {
		return h.RelationIndex(relType, name)
	})
}

func (w *StatusWatcher) Status(target schema.Status) *StatusWatcher {
	w.target = target
	return w
}

func (w *StatusWatcher) Timeout(d time.Duration) *StatusWatcher {
	w.timeout = d
	return w
}

func (w *StatusWatcher) PollInterval(d time.Duration) *StatusWatcher {
	w.interval = d
	return w
}

// Call blocks until every replica converges, the timeout elapses, or ctx is
// cancelled. The caller's thread of control does the waiting; no engine
// lock is held.
func (w *StatusWatcher) Call(ctx context.Context) (Report, error) {
	start := time.Now()
	idx, err := w.resolve()
	if err != nil {
		return Report{}, err
	}

	deadline := time.NewTimer(w.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var last []schema.Status
	for {
		statuses, err := w.pollReplicas(ctx, idx)
		if err != nil {
			return Report{Statuses: last, Elapsed: time.Since(start)}, err
		}
		last = statuses
		if converged(statuses, w.target) {
			return Report{Succeeded: true, Statuses: statuses, Elapsed: time.Since(start)}, nil
		}
		select {
		case <-ticker.C:
		case <-deadline.C:
			w.h.Logger().WarnCtx(ctx, "status wait timed out",
				"index", idx.QualifiedName(), "target", w.target.String(), "observed", statuses)
			return Report{Statuses: statuses, Elapsed: time.Since(start)}, nil
		case <-ctx.Done():
			return Report{Statuses: statuses, Elapsed: time.Since(start)}, ctx.Err()
		}
	}
}

func (w *StatusWatcher) pollReplicas(ctx context.Context, idx *schema.Index) ([]schema.Status, error) {
	replicas := w.h.Replicas()
	statuses := make([]schema.Status, len(replicas))
	g, _ := errgroup.WithContext(ctx)
	for i, r := range replicas {
		i, r := i, r
		g.Go(func() error {
			s, err := r.IndexStatus(idx)
			if err != nil {
				return err
			}
			statuses[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return statuses, nil
}

func converged(statuses []schema.Status, target schema.Status) bool {
	if len(statuses) == 0 {
		return false
	}
	for _, s := range statuses {
		if !s.AtLeast(target) {
			return false
		}
	}
	return true
}
