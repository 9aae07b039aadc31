package scan

import (
	"context"
	"encoding/binary"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GregoryJC/janusgraph/host"
	"github.com/GregoryJC/janusgraph/janusgraph_errors"
	"github.com/GregoryJC/janusgraph/schema"
	"github.com/GregoryJC/janusgraph/store"
	"github.com/GregoryJC/janusgraph/utils"
)

// testHost is the minimal host a bare engine needs: storage plus a logger.
// Schema lookups are not exercised by engine tests.
type testHost struct {
	db *pebble.DB
}

func newTestHost(t *testing.T) *testHost {
	db, err := pebble.Open(t.TempDir(), &pebble.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &testHost{db: db}
}

func (h *testHost) Database() *pebble.DB { return h.db }

func (h *testHost) WriteOptions() *pebble.WriteOptions { return pebble.NoSync }

func (h *testHost) Logger() utils.Logger { return utils.NewDefaultLogger(slog.LevelError) }

func (h *testHost) PropertyKey(string) (*schema.PropertyKey, error) {
	return nil, janusgraph_errors.ErrPropertyKeyUnknown
}
func (h *testHost) EdgeLabel(string) (*schema.EdgeLabel, error) {
	return nil, janusgraph_errors.ErrEdgeLabelUnknown
}
func (h *testHost) GraphIndex(string) (*schema.Index, error) {
	return nil, janusgraph_errors.ErrIndexUnknown
}
func (h *testHost) RelationIndex(string, string) (*schema.Index, error) {
	return nil, janusgraph_errors.ErrIndexUnknown
}
func (h *testHost) Indexes() ([]*schema.Index, error) { return nil, nil }
func (h *testHost) IndexStatus(*schema.Index) (schema.Status, error) {
	return 0, janusgraph_errors.ErrIndexUnknown
}
func (h *testHost) SetIndexStatus(context.Context, *schema.Index, schema.Status, schema.Status) error {
	return janusgraph_errors.ErrIndexUnknown
}
func (h *testHost) DeleteIndex(context.Context, *schema.Index) error {
	return janusgraph_errors.ErrIndexUnknown
}
func (h *testHost) Replicas() []host.SchemaReader { return nil }

func seedKeys(t *testing.T, h *testHost, prefix byte, n int) {
	batch := h.db.NewBatch()
	for i := 0; i < n; i++ {
		key := binary.BigEndian.AppendUint64([]byte{prefix}, uint64(i))
		require.NoError(t, batch.Set(key, []byte{1}, nil))
	}
	require.NoError(t, batch.Commit(pebble.NoSync))
}

type funcJob func(ctx context.Context, row *Row, mut *Mutator, m *Metrics) error

func (f funcJob) Process(ctx context.Context, row *Row, mut *Mutator, m *Metrics) error {
	return f(ctx, row, mut, m)
}

func testPlan(prefix byte) Plan {
	return Plan{Span: store.Span{Lower: []byte{prefix}, Upper: []byte{prefix + 1}}}
}

func TestRunJobVisitsEveryRecord(t *testing.T) {
	h := newTestHost(t)
	seedKeys(t, h, 'T', 1000)
	e := NewEngine(h, 4, 16, 0)

	f := e.RunJob(context.Background(), "count", funcJob(
		func(ctx context.Context, row *Row, mut *Mutator, m *Metrics) error {
			m.Increment("seen")
			return nil
		}), testPlan('T'))

	m, err := f.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, m.Succeeded())
	assert.Equal(t, int64(1000), m.Custom("seen"))
	assert.Equal(t, 0, e.Running())
}

func TestRunJobSnapshotIsolation(t *testing.T) {
	h := newTestHost(t)
	seedKeys(t, h, 'T', 100)
	e := NewEngine(h, 2, 8, 0)

	// Each visited record writes a sibling into the scanned range. The scan
	// reads the snapshot taken at submission, so none of them are visited.
	f := e.RunJob(context.Background(), "grow", funcJob(
		func(ctx context.Context, row *Row, mut *Mutator, m *Metrics) error {
			m.Increment("seen")
			echo := append([]byte{}, row.Key...)
			echo = append(echo, 0xee)
			return mut.Set(ctx, echo, []byte{2})
		}), testPlan('T'))

	m, err := f.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(100), m.Custom("seen"))

	// The writes themselves landed.
	_, closer, err := h.db.Get(append(binary.BigEndian.AppendUint64([]byte{'T'}, 0), 0xee))
	require.NoError(t, err)
	require.NoError(t, closer.Close())
}

func TestRunJobRowGrouping(t *testing.T) {
	h := newTestHost(t)
	batch := h.db.NewBatch()
	for vid := store.ElementID(1); vid <= 20; vid++ {
		require.NoError(t, batch.Set(store.PropertyCellKey(vid, 1), []byte{1}, nil))
		require.NoError(t, batch.Set(store.PropertyCellKey(vid, 2), []byte{2}, nil))
		require.NoError(t, batch.Set(store.EdgeCellKey(vid, 3, schema.Out, vid+1, 100), []byte{3}, nil))
	}
	require.NoError(t, batch.Commit(pebble.NoSync))
	e := NewEngine(h, 4, 16, 0)

	f := e.RunJob(context.Background(), "rows", funcJob(
		func(ctx context.Context, row *Row, mut *Mutator, m *Metrics) error {
			m.Increment("rows")
			m.Add("cells", int64(len(row.Cells)))
			if len(row.Cells) != 3 {
				return errors.New("row split across calls")
			}
			return nil
		}), ElementPlan())

	m, err := f.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(20), m.Custom("rows"))
	assert.Equal(t, int64(60), m.Custom("cells"))
	assert.Zero(t, m.Custom(FailedRecordsCount))
}

func TestRunJobNonFatalErrorContinues(t *testing.T) {
	h := newTestHost(t)
	seedKeys(t, h, 'T', 50)
	e := NewEngine(h, 2, 8, 0)

	var n atomic.Int64
	f := e.RunJob(context.Background(), "flaky", funcJob(
		func(ctx context.Context, row *Row, mut *Mutator, m *Metrics) error {
			if n.Add(1)%10 == 0 {
				return errors.New("bad record")
			}
			m.Increment("ok")
			return nil
		}), testPlan('T'))

	m, err := f.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, m.Succeeded())
	assert.Equal(t, int64(5), m.Custom(FailedRecordsCount))
	assert.Equal(t, int64(45), m.Custom("ok"))
}

func TestRunJobFatalErrorFailsJob(t *testing.T) {
	h := newTestHost(t)
	seedKeys(t, h, 'T', 50)
	e := NewEngine(h, 2, 8, 0)

	f := e.RunJob(context.Background(), "doomed", funcJob(
		func(ctx context.Context, row *Row, mut *Mutator, m *Metrics) error {
			return Fatal(errors.New("store gone"))
		}), testPlan('T'))

	m, err := f.Get(context.Background())
	require.Error(t, err)
	var fatal *FatalError
	assert.ErrorAs(t, err, &fatal)
	assert.False(t, m.Succeeded())
}

func TestRunJobCancel(t *testing.T) {
	h := newTestHost(t)
	seedKeys(t, h, 'T', 2000)
	e := NewEngine(h, 2, 8, 0)

	started := make(chan struct{})
	var once atomic.Bool
	f := e.RunJob(context.Background(), "slow", funcJob(
		func(ctx context.Context, row *Row, mut *Mutator, m *Metrics) error {
			if once.CompareAndSwap(false, true) {
				close(started)
			}
			time.Sleep(time.Millisecond)
			m.Increment("seen")
			return nil
		}), testPlan('T'))

	<-started
	f.Cancel()
	m, err := f.Get(context.Background())
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, m.Succeeded())
	assert.Less(t, m.Custom("seen"), int64(2000))
}

func TestRunJobOnSuccess(t *testing.T) {
	h := newTestHost(t)
	seedKeys(t, h, 'T', 10)
	e := NewEngine(h, 2, 8, 0)

	var ran atomic.Bool
	f := e.RunJob(context.Background(), "hook", funcJob(
		func(ctx context.Context, row *Row, mut *Mutator, m *Metrics) error {
			return nil
		}), testPlan('T'), WithOnSuccess(func(ctx context.Context) error {
		ran.Store(true)
		return nil
	}))
	_, err := f.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, ran.Load())

	f = e.RunJob(context.Background(), "hook", funcJob(
		func(ctx context.Context, row *Row, mut *Mutator, m *Metrics) error {
			return nil
		}), testPlan('T'), WithOnSuccess(func(ctx context.Context) error {
		return errors.New("hook failed")
	}))
	m, err := f.Get(context.Background())
	require.Error(t, err)
	assert.False(t, m.Succeeded())
}

func TestCompletedFuture(t *testing.T) {
	m := NewMetrics()
	m.Increment("x")
	f := Completed(m)
	got, err := f.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Custom("x"))
	select {
	case <-f.Done():
	default:
		t.Fatal("completed future not resolved")
	}
}
