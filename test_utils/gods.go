package testutils

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/GregoryJC/janusgraph"
	"github.com/GregoryJC/janusgraph/mgmt"
	"github.com/GregoryJC/janusgraph/schema"
	"github.com/GregoryJC/janusgraph/store"
)

// Gods is the loaded sample graph: the classic mythology dataset with
// twelve named vertices, three battles and four dwelling places. Two
// indexes exist and are ENABLED before any data is written, so both of
// them are populated by the write path: the composite "name" index
// (one entry per vertex) and the "battlesByTime" relation index on the
// battled label (two entries per battle, one per direction).
type Gods struct {
	Vertices map[string]store.ElementID
	Edges    map[string]store.RelationID
}

var godAges = map[string]int64{
	"saturn":   10000,
	"jupiter":  5000,
	"neptune":  4500,
	"hercules": 30,
	"alcmene":  45,
	"pluto":    4000,
}

var godNames = []string{
	"saturn", "jupiter", "neptune", "pluto", "hercules", "alcmene",
	"sky", "sea", "tartarus", "nemean", "hydra", "cerberus",
}

// LoadGodsGraph declares the schema, builds and enables the pre-existing
// indexes, then writes the sample data through the regular element API.
func LoadGodsGraph(ctx context.Context, g *janusgraph.Graph, m *mgmt.Management) (*Gods, error) {
	for _, key := range []string{"name", "age", "time", "reason", "place"} {
		if _, err := g.Schema().MakePropertyKey(ctx, key); err != nil {
			return nil, err
		}
	}
	for _, label := range []string{"father", "mother", "brother", "battled", "lives", "pet"} {
		if _, err := g.Schema().MakeEdgeLabel(ctx, label); err != nil {
			return nil, err
		}
	}

	nameIdx, err := g.Schema().BuildCompositeIndex(ctx, "name", schema.VertexElement, "name")
	if err != nil {
		return nil, err
	}
	if err := enable(ctx, m, nameIdx, mgmt.AwaitGraphIndexStatus(g, "name")); err != nil {
		return nil, err
	}

	battles, err := g.Schema().BuildRelationIndex(ctx, "battled", "battlesByTime", schema.Both, schema.Desc, "time")
	if err != nil {
		return nil, err
	}
	if err := enable(ctx, m, battles, mgmt.AwaitRelationIndexStatus(g, "battled", "battlesByTime")); err != nil {
		return nil, err
	}

	gods := &Gods{
		Vertices: make(map[string]store.ElementID),
		Edges:    make(map[string]store.RelationID),
	}
	for _, name := range godNames {
		props := janusgraph.Properties{"name": name}
		if age, ok := godAges[name]; ok {
			props["age"] = age
		}
		vid, err := g.AddVertex(ctx, props)
		if err != nil {
			return nil, errors.Wrapf(err, "vertex %s", name)
		}
		gods.Vertices[name] = vid
	}

	edges := []struct {
		name, label, from, to string
		props                 janusgraph.Properties
	}{
		{"jupiter-father", "father", "jupiter", "saturn", nil},
		{"hercules-father", "father", "hercules", "jupiter", nil},
		{"hercules-mother", "mother", "hercules", "alcmene", nil},
		{"jupiter-pluto", "brother", "jupiter", "pluto", nil},
		{"jupiter-neptune", "brother", "jupiter", "neptune", nil},
		{"pluto-jupiter", "brother", "pluto", "jupiter", nil},
		{"pluto-neptune", "brother", "pluto", "neptune", nil},
		{"neptune-jupiter", "brother", "neptune", "jupiter", nil},
		{"neptune-pluto", "brother", "neptune", "pluto", nil},
		{"jupiter-lives", "lives", "jupiter", "sky", janusgraph.Properties{"reason": "loves fresh breezes"}},
		{"neptune-lives", "lives", "neptune", "sea", janusgraph.Properties{"reason": "loves waves"}},
		{"pluto-lives", "lives", "pluto", "tartarus", janusgraph.Properties{"reason": "no fear of death"}},
		{"cerberus-lives", "lives", "cerberus", "tartarus", nil},
		{"pluto-pet", "pet", "pluto", "cerberus", nil},
		{"battle-nemean", "battled", "hercules", "nemean", janusgraph.Properties{"time": int64(1), "place": "38.1,23.7"}},
		{"battle-hydra", "battled", "hercules", "hydra", janusgraph.Properties{"time": int64(2), "place": "37.7,23.9"}},
		{"battle-cerberus", "battled", "hercules", "cerberus", janusgraph.Properties{"time": int64(12), "place": "39.0,22.0"}},
	}
	for _, e := range edges {
		rid, err := g.AddEdge(ctx, e.label, gods.Vertices[e.from], gods.Vertices[e.to], e.props)
		if err != nil {
			return nil, errors.Wrapf(err, "edge %s", e.name)
		}
		gods.Edges[e.name] = rid
	}
	return gods, nil
}

func enable(ctx context.Context, m *mgmt.Management, idx *schema.Index, watch *mgmt.StatusWatcher) error {
	report, err := watch.Status(schema.StatusRegistered).
		Timeout(10 * time.Second).PollInterval(5 * time.Millisecond).Call(ctx)
	if err != nil {
		return err
	}
	if !report.Succeeded {
		return errors.Errorf("index %s never registered, observed %v", idx.QualifiedName(), report.Statuses)
	}
	if _, err := m.UpdateIndex(ctx, idx, schema.EnableIndex); err != nil {
		return err
	}
	return nil
}
