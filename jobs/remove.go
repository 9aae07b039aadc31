package jobs

import (
	"context"

	"github.com/GregoryJC/janusgraph/host"
	"github.com/GregoryJC/janusgraph/scan"
	"github.com/GregoryJC/janusgraph/schema"
	"github.com/GregoryJC/janusgraph/store"
)

// RemoveJob deletes every physical entry of a retiring index. It scans the
// index's own keyspace rather than the element rows, so entries whose source
// data has since changed or vanished are still cleared. Deleting an entry
// the snapshot saw but a retry already removed is a no-op, preserving
// idempotency.
type RemoveJob struct {
	h   host.Host
	idx *schema.Index
}

func NewRemoveJob(h host.Host, idx *schema.Index) *RemoveJob {
	return &RemoveJob{h: h, idx: idx}
}

func (j *RemoveJob) Process(ctx context.Context, row *scan.Row, mut *scan.Mutator, m *scan.Metrics) error {
	if err := mut.Delete(ctx, row.Key); err != nil {
		return scan.Fatal(err)
	}
	m.Increment(DeletedRecordsCount)
	return nil
}

// ForIndex selects the job and key-range plan for a scan-requiring action,
// keyed on the descriptor kind. Repair walks the element keyspace; removal
// walks the index's own entries, one per row.
func ForIndex(h host.Host, idx *schema.Index, action schema.Action) (scan.Job, scan.Plan) {
	if action == schema.RemoveIndex {
		return NewRemoveJob(h, idx), scan.Plan{Span: store.IndexSpan(idx)}
	}
	return NewRepairJob(h, idx), scan.ElementPlan()
}
