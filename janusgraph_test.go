package janusgraph_test

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/GregoryJC/janusgraph"
	"github.com/GregoryJC/janusgraph/janusgraph_errors"
	"github.com/GregoryJC/janusgraph/schema"
	"github.com/GregoryJC/janusgraph/store"
	"github.com/GregoryJC/janusgraph/utils"
)

func testOptions(t *testing.T) janusgraph.Options {
	return janusgraph.Options{
		Name:                  t.Name(),
		Logger:                utils.NewDefaultLogger(slog.LevelError),
		SchemaRefreshInterval: 2 * time.Millisecond,
	}
}

func open(t *testing.T) *janusgraph.Graph {
	g, err := janusgraph.Open(t.TempDir(), testOptions(t))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, g.Close()) })
	return g
}

func TestSchemaUniqueness(t *testing.T) {
	ctx := context.Background()
	g := open(t)

	_, err := g.Schema().MakePropertyKey(ctx, "name")
	require.NoError(t, err)
	_, err = g.Schema().MakePropertyKey(ctx, "name")
	assert.ErrorIs(t, err, janusgraph_errors.ErrPropertyKeyExists)

	_, err = g.Schema().MakeEdgeLabel(ctx, "battled")
	require.NoError(t, err)
	_, err = g.Schema().MakeEdgeLabel(ctx, "battled")
	assert.ErrorIs(t, err, janusgraph_errors.ErrEdgeLabelExists)

	_, err = g.Schema().BuildCompositeIndex(ctx, "byName", schema.VertexElement, "name")
	require.NoError(t, err)
	_, err = g.Schema().BuildCompositeIndex(ctx, "byName", schema.VertexElement, "name")
	assert.ErrorIs(t, err, janusgraph_errors.ErrIndexExists)

	// Relation index names are scoped per label, so the graph-wide name is
	// still free.
	_, err = g.Schema().MakePropertyKey(ctx, "time")
	require.NoError(t, err)
	_, err = g.Schema().BuildRelationIndex(ctx, "battled", "byName", schema.Both, schema.Desc, "time")
	assert.NoError(t, err)

	_, err = g.Schema().BuildCompositeIndex(ctx, "byNickname", schema.VertexElement, "nickname")
	assert.ErrorIs(t, err, janusgraph_errors.ErrPropertyKeyUnknown)
	_, err = g.Schema().BuildRelationIndex(ctx, "befriended", "byTime", schema.Out, schema.Asc, "time")
	assert.ErrorIs(t, err, janusgraph_errors.ErrEdgeLabelUnknown)
}

func TestVertexProperties(t *testing.T) {
	ctx := context.Background()
	g := open(t)

	_, err := g.Schema().MakePropertyKey(ctx, "name")
	require.NoError(t, err)
	_, err = g.Schema().MakePropertyKey(ctx, "age")
	require.NoError(t, err)

	vid, err := g.AddVertex(ctx, janusgraph.Properties{"name": "saturn", "age": int64(10000)})
	require.NoError(t, err)

	name, ok, err := g.VertexProperty(ctx, vid, "name")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "saturn", name)

	age, ok, err := g.VertexProperty(ctx, vid, "age")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(10000), age)

	_, ok, err = g.VertexProperty(ctx, vid+1, "name")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = g.AddVertex(ctx, janusgraph.Properties{"name": 3.14})
	assert.ErrorIs(t, err, janusgraph_errors.ErrBadValueType)
	_, err = g.AddVertex(ctx, janusgraph.Properties{"unknown": "x"})
	assert.ErrorIs(t, err, janusgraph_errors.ErrPropertyKeyUnknown)
}

func TestInstalledIndexGetsNoWrites(t *testing.T) {
	ctx := context.Background()
	// A refresh interval this long keeps the index INSTALLED for the whole
	// test: no view observes it, the registrar never promotes it.
	opts := testOptions(t)
	opts.SchemaRefreshInterval = time.Hour
	g, err := janusgraph.Open(t.TempDir(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, g.Close()) })

	_, err = g.Schema().MakePropertyKey(ctx, "name")
	require.NoError(t, err)
	idx, err := g.Schema().BuildCompositeIndex(ctx, "byName", schema.VertexElement, "name")
	require.NoError(t, err)

	_, err = g.AddVertex(ctx, janusgraph.Properties{"name": "saturn"})
	require.NoError(t, err)

	count, err := g.IndexEntryCount(idx)
	require.NoError(t, err)
	assert.Zero(t, count, "INSTALLED index must not receive writes")

	_, err = g.VerticesByIndex(ctx, "byName", "saturn")
	assert.ErrorIs(t, err, janusgraph_errors.ErrIndexNotEnabled)
}

func TestQueryUnknownIndex(t *testing.T) {
	g := open(t)
	_, err := g.VerticesByIndex(context.Background(), "nope", "x")
	assert.ErrorIs(t, err, janusgraph_errors.ErrIndexUnknown)
}

func TestSetIndexStatusIsCompareAndSet(t *testing.T) {
	ctx := context.Background()
	opts := testOptions(t)
	opts.SchemaRefreshInterval = time.Hour // registrar stays idle
	g, err := janusgraph.Open(t.TempDir(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, g.Close()) })

	_, err = g.Schema().MakePropertyKey(ctx, "name")
	require.NoError(t, err)
	idx, err := g.Schema().BuildCompositeIndex(ctx, "byName", schema.VertexElement, "name")
	require.NoError(t, err)

	require.NoError(t, g.SetIndexStatus(ctx, idx, schema.StatusInstalled, schema.StatusRegistered))
	require.NoError(t, g.SetIndexStatus(ctx, idx, schema.StatusRegistered, schema.StatusEnabled))

	// A commit carrying a stale expected status must not land.
	err = g.SetIndexStatus(ctx, idx, schema.StatusInstalled, schema.StatusRegistered)
	require.ErrorIs(t, err, janusgraph_errors.ErrStatusConflict)

	status, err := g.IndexStatus(idx)
	require.NoError(t, err)
	assert.Equal(t, schema.StatusEnabled, status)
}

func TestRegistrarNeverRegressesManualTransitions(t *testing.T) {
	ctx := context.Background()
	opts := testOptions(t)
	opts.SchemaRefreshInterval = time.Millisecond
	g, err := janusgraph.Open(t.TempDir(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, g.Close()) })

	_, err = g.Schema().MakePropertyKey(ctx, "name")
	require.NoError(t, err)

	// Race manual register+enable against the registrar's own promotion.
	// Whoever commits the first hop, the index must stay ENABLED.
	for i := 0; i < 25; i++ {
		idx, err := g.Schema().BuildCompositeIndex(ctx, fmt.Sprintf("byName%d", i), schema.VertexElement, "name")
		require.NoError(t, err)

		err = g.SetIndexStatus(ctx, idx, schema.StatusInstalled, schema.StatusRegistered)
		if err != nil {
			require.ErrorIs(t, err, janusgraph_errors.ErrStatusConflict)
		}
		require.NoError(t, g.SetIndexStatus(ctx, idx, schema.StatusRegistered, schema.StatusEnabled))

		time.Sleep(5 * time.Millisecond)
		status, err := g.IndexStatus(idx)
		require.NoError(t, err)
		require.Equal(t, schema.StatusEnabled, status)
	}
}

func TestCountersSurviveReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	opts := testOptions(t)

	g, err := janusgraph.Open(dir, opts)
	require.NoError(t, err)
	_, err = g.Schema().MakePropertyKey(ctx, "name")
	require.NoError(t, err)
	first, err := g.AddVertex(ctx, janusgraph.Properties{"name": "saturn"})
	require.NoError(t, err)
	require.NoError(t, g.Close())

	g, err = janusgraph.Open(dir, opts)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, g.Close()) })

	second, err := g.AddVertex(ctx, janusgraph.Properties{"name": "jupiter"})
	require.NoError(t, err)
	assert.Greater(t, second, first, "reopened store must not reissue ids")

	// Schema survived too.
	name, ok, err := g.VertexProperty(ctx, first, "name")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "saturn", name)
}

func TestConcurrentWritersNeverLoseIdsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	opts := testOptions(t)

	g, err := janusgraph.Open(dir, opts)
	require.NoError(t, err)
	_, err = g.Schema().MakePropertyKey(ctx, "name")
	require.NoError(t, err)

	// Concurrent writers commit in whatever order pebble's pipeline picks;
	// the persisted watermark must still cover every issued id.
	var (
		mu  sync.Mutex
		max store.ElementID
	)
	eg, egCtx := errgroup.WithContext(ctx)
	for w := 0; w < 8; w++ {
		eg.Go(func() error {
			for i := 0; i < 50; i++ {
				vid, err := g.AddVertex(egCtx, janusgraph.Properties{"name": "titan"})
				if err != nil {
					return err
				}
				mu.Lock()
				if vid > max {
					max = vid
				}
				mu.Unlock()
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())
	require.NoError(t, g.Close())

	g, err = janusgraph.Open(dir, opts)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, g.Close()) })

	vid, err := g.AddVertex(ctx, janusgraph.Properties{"name": "chronos"})
	require.NoError(t, err)
	assert.Greater(t, vid, max, "reopened store must resume past every issued id")

	name, ok, err := g.VertexProperty(ctx, max, "name")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "titan", name)
}

func TestRegisterMetrics(t *testing.T) {
	g := open(t)
	reg := prometheus.NewRegistry()
	require.NoError(t, g.RegisterMetrics(reg))
	families, err := reg.Gather()
	require.NoError(t, err)
	found := false
	for _, f := range families {
		if f.GetName() == "janusgraph_store_memtable_size_bytes" {
			found = true
		}
	}
	assert.True(t, found)
}
