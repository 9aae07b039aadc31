package janusgraph

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"github.com/GregoryJC/janusgraph/janusgraph_errors"
	"github.com/GregoryJC/janusgraph/schema"
	"github.com/GregoryJC/janusgraph/store"
)

const schemaCacheSize = 10000

// SchemaStore is the schema collaborator: it persists property keys, edge
// labels and index descriptors, and is the only writer of index statuses.
// Commits are serialized by a single lock, the store's stand-in for a
// transactional compare-and-set; the scan engine never mutates schema.
type SchemaStore struct {
	g      *Graph
	lock   sync.Mutex
	nextID idCounter

	keys    *lru.Cache[string, *schema.PropertyKey]
	labels  *lru.Cache[string, *schema.EdgeLabel]
	indexes *lru.Cache[string, *schema.Index]
}

func newSchemaStore(g *Graph) *SchemaStore {
	keys, _ := lru.New[string, *schema.PropertyKey](schemaCacheSize)
	labels, _ := lru.New[string, *schema.EdgeLabel](schemaCacheSize)
	indexes, _ := lru.New[string, *schema.Index](schemaCacheSize)
	return &SchemaStore{g: g, keys: keys, labels: labels, indexes: indexes}
}

func (s *SchemaStore) MakePropertyKey(ctx context.Context, name string) (*schema.PropertyKey, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, err := s.readPropertyKey(name); err == nil {
		return nil, janusgraph_errors.ErrPropertyKeyExists
	}
	id, err := s.g.alloc(counterSchema, &s.nextID)
	if err != nil {
		return nil, err
	}
	batch := s.g.db.NewBatch()
	key := &schema.PropertyKey{ID: uint32(id), Name: name}
	if err := s.commit(batch, store.SchemaPropertyKeyKey(name), key); err != nil {
		return nil, err
	}
	s.keys.Add(name, key)
	return key, nil
}

func (s *SchemaStore) MakeEdgeLabel(ctx context.Context, name string) (*schema.EdgeLabel, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, err := s.readEdgeLabel(name); err == nil {
		return nil, janusgraph_errors.ErrEdgeLabelExists
	}
	id, err := s.g.alloc(counterSchema, &s.nextID)
	if err != nil {
		return nil, err
	}
	batch := s.g.db.NewBatch()
	label := &schema.EdgeLabel{ID: uint32(id), Name: name}
	if err := s.commit(batch, store.SchemaEdgeLabelKey(name), label); err != nil {
		return nil, err
	}
	s.labels.Add(name, label)
	return label, nil
}

// BuildCompositeIndex persists a graph-wide index over property keys,
// starting life INSTALLED. Names are unique graph-wide.
func (s *SchemaStore) BuildCompositeIndex(ctx context.Context, name string, element schema.ElementKind, keyNames ...string) (*schema.Index, error) {
	keys := make([]uint32, 0, len(keyNames))
	for _, kn := range keyNames {
		pk, err := s.PropertyKey(kn)
		if err != nil {
			return nil, err
		}
		keys = append(keys, pk.ID)
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, err := s.readIndex(store.SchemaGraphIndexKey(name)); err == nil {
		return nil, janusgraph_errors.ErrIndexExists
	}
	id, err := s.g.alloc(counterSchema, &s.nextID)
	if err != nil {
		return nil, err
	}
	batch := s.g.db.NewBatch()
	idx := &schema.Index{
		ID:      uint32(id),
		Name:    name,
		Kind:    schema.CompositeIndex,
		Status:  schema.StatusInstalled,
		Element: element,
		Keys:    keys,
	}
	if err := s.commit(batch, store.SchemaIndexKey(idx), idx); err != nil {
		return nil, err
	}
	s.g.log.InfoCtx(ctx, "composite index installed", "index", name, "element", element.String())
	return idx, nil
}

// BuildRelationIndex persists an index local to one edge label, ordered by
// a sort key along a direction. Names are unique per owning label.
func (s *SchemaStore) BuildRelationIndex(ctx context.Context, labelName, name string, dir schema.Direction, order schema.Order, sortKeyName string) (*schema.Index, error) {
	label, err := s.EdgeLabel(labelName)
	if err != nil {
		return nil, err
	}
	sortKey, err := s.PropertyKey(sortKeyName)
	if err != nil {
		return nil, err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, err := s.readIndex(store.SchemaRelationIndexKey(label.ID, name)); err == nil {
		return nil, janusgraph_errors.ErrIndexExists
	}
	id, err := s.g.alloc(counterSchema, &s.nextID)
	if err != nil {
		return nil, err
	}
	batch := s.g.db.NewBatch()
	idx := &schema.Index{
		ID:        uint32(id),
		Name:      name,
		Kind:      schema.RelationIndex,
		Status:    schema.StatusInstalled,
		Relation:  label.ID,
		SortKey:   sortKey.ID,
		Direction: dir,
		Order:     order,
	}
	if err := s.commit(batch, store.SchemaIndexKey(idx), idx); err != nil {
		return nil, err
	}
	s.g.log.InfoCtx(ctx, "relation index installed", "index", name, "label", labelName)
	return idx, nil
}

func (s *SchemaStore) PropertyKey(name string) (*schema.PropertyKey, error) {
	if key, ok := s.keys.Get(name); ok {
		return key, nil
	}
	key, err := s.readPropertyKey(name)
	if err != nil {
		return nil, err
	}
	s.keys.Add(name, key)
	return key, nil
}

func (s *SchemaStore) EdgeLabel(name string) (*schema.EdgeLabel, error) {
	if label, ok := s.labels.Get(name); ok {
		return label, nil
	}
	label, err := s.readEdgeLabel(name)
	if err != nil {
		return nil, err
	}
	s.labels.Add(name, label)
	return label, nil
}

func (s *SchemaStore) GraphIndex(name string) (*schema.Index, error) {
	return s.cachedIndex(store.SchemaGraphIndexKey(name))
}

func (s *SchemaStore) RelationIndex(labelName, name string) (*schema.Index, error) {
	label, err := s.EdgeLabel(labelName)
	if err != nil {
		return nil, err
	}
	return s.cachedIndex(store.SchemaRelationIndexKey(label.ID, name))
}

// Indexes lists every persisted index descriptor.
func (s *SchemaStore) Indexes() ([]*schema.Index, error) {
	span := store.SchemaIndexSpan()
	iter, err := s.g.db.NewIter(&pebble.IterOptions{
		LowerBound: span.Lower,
		UpperBound: span.Upper,
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	indexes := []*schema.Index{}
	for valid := iter.First(); valid; valid = iter.Next() {
		idx := &schema.Index{}
		if err := json.Unmarshal(iter.Value(), idx); err != nil {
			return nil, errors.Wrap(err, "decode index descriptor")
		}
		indexes = append(indexes, idx)
	}
	return indexes, nil
}

// IndexStatus is the committed status, re-read from the store.
func (s *SchemaStore) IndexStatus(x *schema.Index) (schema.Status, error) {
	idx, err := s.cachedIndex(store.SchemaIndexKey(x))
	if err != nil {
		return 0, err
	}
	return idx.Status, nil
}

// SetIndexStatus commits a status transition as a compare-and-set: the
// write lands only while the stored status still equals from, otherwise
// ErrStatusConflict. The commit is serialized with every other schema
// commit; replicas observe it on their next refresh.
func (s *SchemaStore) SetIndexStatus(ctx context.Context, x *schema.Index, from, to schema.Status) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	key := store.SchemaIndexKey(x)
	idx, err := s.readIndex(key)
	if err != nil {
		return err
	}
	if idx.Status != from {
		return janusgraph_errors.ErrStatusConflict
	}
	idx.Status = to
	batch := s.g.db.NewBatch()
	if err := s.commit(batch, key, idx); err != nil {
		return err
	}
	s.g.log.InfoCtx(ctx, "index status committed",
		"index", idx.QualifiedName(), "from", from.String(), "to", to.String())
	return nil
}

// DeleteIndex removes the schema object entirely; only callers that have
// already emptied the index keyspace should use it.
func (s *SchemaStore) DeleteIndex(ctx context.Context, x *schema.Index) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	key := store.SchemaIndexKey(x)
	if err := s.g.db.Delete(key, s.g.opts.WriteOptions); err != nil {
		return err
	}
	s.indexes.Remove(string(key))
	s.g.log.InfoCtx(ctx, "index schema object deleted", "index", x.QualifiedName())
	return nil
}

// registrarLoop promotes INSTALLED indexes to REGISTERED once every schema
// view has observed the descriptor, which is what makes registration an
// asynchronous, poll-for-it transition.
func (s *SchemaStore) registrarLoop(ctx context.Context) {
	for ctx.Err() == nil {
		indexes, err := s.Indexes()
		if err != nil {
			s.g.log.ErrorCtx(ctx, "registrar failed to list indexes", "error", err)
		} else {
			for _, idx := range indexes {
				if idx.Status != schema.StatusInstalled {
					continue
				}
				if !s.g.allViewsObserved(idx) {
					continue
				}
				err := s.SetIndexStatus(ctx, idx, schema.StatusInstalled, schema.StatusRegistered)
				if errors.Is(err, janusgraph_errors.ErrStatusConflict) {
					// a caller registered it between our read and the commit
					continue
				}
				if err != nil {
					s.g.log.ErrorCtx(ctx, "registrar failed to register index",
						"index", idx.QualifiedName(), "error", err)
				}
			}
		}
		select {
		case <-time.After(s.g.opts.SchemaRefreshInterval):
		case <-ctx.Done():
		}
	}
}

func (s *SchemaStore) cachedIndex(key []byte) (*schema.Index, error) {
	if idx, ok := s.indexes.Get(string(key)); ok {
		return idx, nil
	}
	idx, err := s.readIndex(key)
	if err != nil {
		return nil, err
	}
	s.indexes.Add(string(key), idx)
	return idx, nil
}

func (s *SchemaStore) readPropertyKey(name string) (*schema.PropertyKey, error) {
	key := &schema.PropertyKey{}
	if err := s.readJSON(store.SchemaPropertyKeyKey(name), key, janusgraph_errors.ErrPropertyKeyUnknown); err != nil {
		return nil, err
	}
	return key, nil
}

func (s *SchemaStore) readEdgeLabel(name string) (*schema.EdgeLabel, error) {
	label := &schema.EdgeLabel{}
	if err := s.readJSON(store.SchemaEdgeLabelKey(name), label, janusgraph_errors.ErrEdgeLabelUnknown); err != nil {
		return nil, err
	}
	return label, nil
}

func (s *SchemaStore) readIndex(key []byte) (*schema.Index, error) {
	idx := &schema.Index{}
	if err := s.readJSON(key, idx, janusgraph_errors.ErrIndexUnknown); err != nil {
		return nil, err
	}
	return idx, nil
}

func (s *SchemaStore) readJSON(key []byte, out any, notFound error) error {
	value, closer, err := s.g.db.Get(key)
	if closer != nil {
		defer closer.Close()
	}
	if err == pebble.ErrNotFound {
		return notFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(value, out)
}

func (s *SchemaStore) commit(batch *pebble.Batch, key []byte, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "encode schema record")
	}
	if err := batch.Set(key, data, nil); err != nil {
		return err
	}
	if err := batch.Commit(s.g.opts.WriteOptions); err != nil {
		return errors.Wrap(err, "commit schema record")
	}
	s.indexes.Remove(string(key))
	return nil
}
