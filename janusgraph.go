// Package janusgraph is a pebble-backed graph store whose secondary indexes
// are maintained out of band: a schema status state machine gates when an
// index may be written or read, and full-dataset scan jobs repair or remove
// entries without blocking live traffic.
package janusgraph

import (
	"context"
	"encoding/binary"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"golang.org/x/time/rate"

	"github.com/GregoryJC/janusgraph/host"
	"github.com/GregoryJC/janusgraph/scan"
	"github.com/GregoryJC/janusgraph/schema"
	"github.com/GregoryJC/janusgraph/store"
	"github.com/GregoryJC/janusgraph/utils"
)

type Options struct {
	Name   string
	Logger utils.Logger

	WriteOptions *pebble.WriteOptions

	// SchemaReplicas is the number of asynchronously refreshed schema views
	// modelling the per-node schema caches of a distributed deployment.
	SchemaReplicas int
	// SchemaRefreshInterval is how often each view re-reads committed
	// schema, i.e. the propagation delay the status poller waits out.
	SchemaRefreshInterval time.Duration

	ScanWorkers   int
	ScanBatchSize int
	ScanRateLimit rate.Limit
}

func (o *Options) SetDefaults() {
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(slog.LevelInfo)
	}
	if o.WriteOptions == nil {
		o.WriteOptions = pebble.NoSync
	}
	if o.SchemaReplicas <= 0 {
		o.SchemaReplicas = 3
	}
	if o.SchemaRefreshInterval <= 0 {
		o.SchemaRefreshInterval = 50 * time.Millisecond
	}
}

// Graph is one open graph store. It implements host.Host for the scan
// engine and the management layer.
type Graph struct {
	db  *pebble.DB
	dir string

	log  utils.Logger
	opts Options

	schema *SchemaStore
	views  []*schemaView

	nextVertex   idCounter
	nextRelation idCounter

	cancel context.CancelFunc
	loops  sync.WaitGroup
}

// Open opens (or creates) a graph store in dir and starts the schema view
// refresh loops and the registrar.
func Open(dir string, opts Options) (*Graph, error) {
	opts.SetDefaults()
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	g := &Graph{
		db:   db,
		dir:  dir,
		log:  opts.Logger,
		opts: opts,
	}
	g.schema = newSchemaStore(g)
	if err := g.recoverCounters(); err != nil {
		_ = db.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel
	for i := 0; i < opts.SchemaReplicas; i++ {
		v := newSchemaView(g, i)
		g.views = append(g.views, v)
		g.loops.Add(1)
		go func() {
			defer g.loops.Done()
			v.refreshLoop(ctx)
		}()
	}
	g.loops.Add(1)
	go func() {
		defer g.loops.Done()
		g.schema.registrarLoop(ctx)
	}()
	g.log.Info("graph opened", "dir", dir, "name", opts.Name, "replicas", opts.SchemaReplicas)
	return g, nil
}

func (g *Graph) Close() error {
	g.cancel()
	g.loops.Wait()
	g.log.Info("graph closed", "dir", g.dir)
	return g.db.Close()
}

func (g *Graph) Database() *pebble.DB {
	return g.db
}

func (g *Graph) WriteOptions() *pebble.WriteOptions {
	return g.opts.WriteOptions
}

func (g *Graph) Logger() utils.Logger {
	return g.log
}

func (g *Graph) Schema() *SchemaStore {
	return g.schema
}

func (g *Graph) PropertyKey(name string) (*schema.PropertyKey, error) {
	return g.schema.PropertyKey(name)
}

func (g *Graph) EdgeLabel(name string) (*schema.EdgeLabel, error) {
	return g.schema.EdgeLabel(name)
}

func (g *Graph) GraphIndex(name string) (*schema.Index, error) {
	return g.schema.GraphIndex(name)
}

func (g *Graph) RelationIndex(relType, name string) (*schema.Index, error) {
	return g.schema.RelationIndex(relType, name)
}

func (g *Graph) Indexes() ([]*schema.Index, error) {
	return g.schema.Indexes()
}

func (g *Graph) IndexStatus(x *schema.Index) (schema.Status, error) {
	return g.schema.IndexStatus(x)
}

func (g *Graph) SetIndexStatus(ctx context.Context, x *schema.Index, from, to schema.Status) error {
	return g.schema.SetIndexStatus(ctx, x, from, to)
}

func (g *Graph) DeleteIndex(ctx context.Context, x *schema.Index) error {
	return g.schema.DeleteIndex(ctx, x)
}

// ScanEngine builds a scan engine for this graph configured from its
// options.
func (g *Graph) ScanEngine() *scan.Engine {
	return scan.NewEngine(g, g.opts.ScanWorkers, g.opts.ScanBatchSize, g.opts.ScanRateLimit)
}

func (g *Graph) Replicas() []host.SchemaReader {
	replicas := make([]host.SchemaReader, len(g.views))
	for i, v := range g.views {
		replicas[i] = v
	}
	return replicas
}

const (
	counterVertex   = 'v'
	counterRelation = 'r'
	counterSchema   = 's'
)

// idLease is how many ids a single watermark commit covers. A reopened
// store resumes at the last committed watermark, so up to idLease ids are
// lost to gaps after a crash but none is ever reissued.
const idLease = 1 << 10

type idCounter struct {
	mu      sync.Mutex
	next    uint64
	ceiling uint64
}

func (g *Graph) recoverCounters() error {
	for _, c := range []struct {
		key byte
		ctr *idCounter
	}{
		{counterVertex, &g.nextVertex},
		{counterRelation, &g.nextRelation},
		{counterSchema, &g.schema.nextID},
	} {
		value, closer, err := g.db.Get(store.MetaKey(c.key))
		if err == pebble.ErrNotFound {
			continue
		}
		if err != nil {
			return err
		}
		ceiling := binary.BigEndian.Uint64(value)
		c.ctr.next = ceiling
		c.ctr.ceiling = ceiling
		_ = closer.Close()
	}
	return nil
}

// alloc reserves the next id for a counter. Crossing the persisted ceiling
// commits a fresh lease before the id is handed out, and lease commits are
// serialized and strictly increasing, so the stored watermark never trails
// an issued id no matter how concurrent writer batches land.
func (g *Graph) alloc(counter byte, c *idCounter) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.next+1 > c.ceiling {
		lease := c.ceiling + idLease
		value := binary.BigEndian.AppendUint64(nil, lease)
		if err := g.db.Set(store.MetaKey(counter), value, g.opts.WriteOptions); err != nil {
			return 0, err
		}
		c.ceiling = lease
	}
	c.next++
	return c.next, nil
}
