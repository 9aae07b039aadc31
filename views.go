package janusgraph

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/GregoryJC/janusgraph/schema"
	"github.com/GregoryJC/janusgraph/store"
)

// schemaView is one replica's asynchronously refreshed view of index
// statuses, standing in for the schema cache of one node of a distributed
// deployment. It serves the status poller; the authoritative path never
// reads through it.
type schemaView struct {
	g       *Graph
	replica int

	statuses *xsync.MapOf[string, schema.Status]
}

func newSchemaView(g *Graph, replica int) *schemaView {
	return &schemaView{
		g:        g,
		replica:  replica,
		statuses: xsync.NewMapOf[string, schema.Status](),
	}
}

// IndexStatus reports the view's cached status. A descriptor this view has
// not observed yet reads as INSTALLED: from this replica's perspective the
// index does not exist beyond its installation.
func (v *schemaView) IndexStatus(x *schema.Index) (schema.Status, error) {
	s, ok := v.statuses.Load(x.QualifiedName())
	if !ok {
		return schema.StatusInstalled, nil
	}
	return s, nil
}

func (v *schemaView) observed(x *schema.Index) bool {
	_, ok := v.statuses.Load(x.QualifiedName())
	return ok
}

func (v *schemaView) refreshLoop(ctx context.Context) {
	for ctx.Err() == nil {
		if err := v.refresh(); err != nil {
			v.g.log.ErrorCtx(ctx, "schema view refresh failed", "replica", v.replica, "error", err)
		}
		select {
		case <-time.After(v.g.opts.SchemaRefreshInterval):
		case <-ctx.Done():
		}
	}
}

func (v *schemaView) refresh() error {
	span := store.SchemaIndexSpan()
	iter, err := v.g.db.NewIter(&pebble.IterOptions{
		LowerBound: span.Lower,
		UpperBound: span.Upper,
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	seen := map[string]bool{}
	for valid := iter.First(); valid; valid = iter.Next() {
		idx := &schema.Index{}
		if err := json.Unmarshal(iter.Value(), idx); err != nil {
			return err
		}
		name := idx.QualifiedName()
		seen[name] = true
		v.statuses.Store(name, idx.Status)
	}
	// Deleted indexes disappear from this view as well.
	v.statuses.Range(func(name string, _ schema.Status) bool {
		if !seen[name] {
			v.statuses.Delete(name)
		}
		return true
	})
	return nil
}

// allViewsObserved reports whether every schema replica has seen the
// descriptor, the precondition for promoting INSTALLED to REGISTERED.
func (g *Graph) allViewsObserved(x *schema.Index) bool {
	for _, v := range g.views {
		if !v.observed(x) {
			return false
		}
	}
	return true
}
