// Package host defines the interface the scan engine, the index jobs and the
// management layer consume from the graph store, so they never depend on the
// root package directly.
package host

import (
	"context"

	"github.com/cockroachdb/pebble"

	"github.com/GregoryJC/janusgraph/schema"
	"github.com/GregoryJC/janusgraph/utils"
)

// SchemaReader is one replica's view of index statuses. Views converge
// asynchronously; the status poller exists because of that.
type SchemaReader interface {
	IndexStatus(x *schema.Index) (schema.Status, error)
}

// Host is the union of the storage and schema collaborator interfaces.
type Host interface {
	Database() *pebble.DB
	WriteOptions() *pebble.WriteOptions
	Logger() utils.Logger

	PropertyKey(name string) (*schema.PropertyKey, error)
	EdgeLabel(name string) (*schema.EdgeLabel, error)
	GraphIndex(name string) (*schema.Index, error)
	RelationIndex(relType, name string) (*schema.Index, error)
	Indexes() ([]*schema.Index, error)

	// IndexStatus is the authoritative (committed) status of an index, as
	// opposed to the per-replica views below.
	IndexStatus(x *schema.Index) (schema.Status, error)
	// SetIndexStatus commits a status transition through the schema store's
	// own serialization as a compare-and-set from the expected current
	// status; it is the only way a status changes.
	SetIndexStatus(ctx context.Context, x *schema.Index, from, to schema.Status) error
	// DeleteIndex removes the schema object entirely.
	DeleteIndex(ctx context.Context, x *schema.Index) error

	// Replicas lists every schema view of the deployment.
	Replicas() []SchemaReader
}
