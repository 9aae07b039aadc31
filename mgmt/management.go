// Package mgmt is the public entry point for index lifecycle maintenance:
// the dispatcher that validates and routes schema actions, and the poller
// that waits for asynchronous status propagation.
package mgmt

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/GregoryJC/janusgraph/host"
	"github.com/GregoryJC/janusgraph/jobs"
	"github.com/GregoryJC/janusgraph/scan"
	"github.com/GregoryJC/janusgraph/schema"
)

var UpdateIndexCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "janusgraph",
	Subsystem: "mgmt",
	Name:      "update_index",
}, []string{"action", "result"})

// Management dispatches lifecycle actions against indexes. Status-only
// actions commit directly through the schema collaborator; scan-requiring
// ones are submitted to the engine and the caller gets the job's future
// without blocking.
type Management struct {
	h      host.Host
	engine *scan.Engine
}

func New(h host.Host, engine *scan.Engine) *Management {
	return &Management{h: h, engine: engine}
}

// UpdateIndex validates the action against the index's current committed
// status and either commits the transition or submits the corresponding
// scan job. An illegal action fails synchronously and submits nothing.
func (m *Management) UpdateIndex(ctx context.Context, idx *schema.Index, action schema.Action) (*scan.Future, error) {
	current, err := m.h.IndexStatus(idx)
	if err != nil {
		UpdateIndexCount.WithLabelValues(action.String(), "error").Inc()
		return nil, err
	}
	if !schema.CanTransition(current, action) {
		UpdateIndexCount.WithLabelValues(action.String(), "illegal").Inc()
		return nil, &schema.IllegalStateTransitionError{
			Index:    idx.QualifiedName(),
			Action:   action,
			Current:  current,
			Required: action.SourceStatuses(),
		}
	}

	if next, ok := schema.NextStatus(action); ok {
		if err := m.h.SetIndexStatus(ctx, idx, current, next); err != nil {
			UpdateIndexCount.WithLabelValues(action.String(), "error").Inc()
			return nil, err
		}
		UpdateIndexCount.WithLabelValues(action.String(), "success").Inc()
		return scan.Completed(scan.NewMetrics()), nil
	}

	job, plan := jobs.ForIndex(m.h, idx, action)
	var opts []scan.RunOption
	name := "repair"
	if action == schema.RemoveIndex {
		name = "remove"
		// Physical removal: once every entry is deleted the schema object
		// goes too. Enabling after a successful repair stays an explicit,
		// separate transition issued by the caller.
		opts = append(opts, scan.WithOnSuccess(func(ctx context.Context) error {
			return m.h.DeleteIndex(ctx, idx)
		}))
	}
	UpdateIndexCount.WithLabelValues(action.String(), "submitted").Inc()
	return m.engine.RunJob(ctx, name, job, plan, opts...), nil
}
