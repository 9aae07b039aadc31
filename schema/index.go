package schema

import "fmt"

type ElementKind uint8

const (
	VertexElement ElementKind = iota
	EdgeElement
)

func (k ElementKind) String() string {
	if k == EdgeElement {
		return "edge"
	}
	return "vertex"
}

type Direction uint8

const (
	Out Direction = iota
	In
	Both
)

func (d Direction) String() string {
	switch d {
	case Out:
		return "out"
	case In:
		return "in"
	default:
		return "both"
	}
}

// Covers reports whether the index direction covers a stored adjacency
// direction (which is always Out or In, never Both).
func (d Direction) Covers(stored Direction) bool {
	return d == Both || d == stored
}

type Order uint8

const (
	Asc Order = iota
	Desc
)

type IndexKind uint8

const (
	// CompositeIndex is a graph-wide index over one or more property keys,
	// scoped to vertices or edges.
	CompositeIndex IndexKind = iota
	// RelationIndex is local to a single edge label, ordered by a sort key
	// along a direction.
	RelationIndex
)

func (k IndexKind) String() string {
	if k == RelationIndex {
		return "relation"
	}
	return "composite"
}

// PropertyKey names an attribute vertices and edges may carry.
type PropertyKey struct {
	ID   uint32 `json:"id"`
	Name string `json:"name"`
}

// EdgeLabel names a relation type.
type EdgeLabel struct {
	ID   uint32 `json:"id"`
	Name string `json:"name"`
}

// Index is the descriptor of a secondary index, a tagged variant over Kind.
// Composite indexes use Element and Keys; relation indexes use Relation,
// SortKey, Direction and Order. Name is unique within its scope: graph-wide
// for composite indexes, per owning edge label for relation ones.
type Index struct {
	ID     uint32    `json:"id"`
	Name   string    `json:"name"`
	Kind   IndexKind `json:"kind"`
	Status Status    `json:"status"`

	Element ElementKind `json:"element,omitempty"`
	Keys    []uint32    `json:"keys,omitempty"`

	Relation  uint32    `json:"relation,omitempty"`
	SortKey   uint32    `json:"sort_key,omitempty"`
	Direction Direction `json:"direction,omitempty"`
	Order     Order     `json:"order,omitempty"`
}

// QualifiedName is the index name prefixed with its scope, usable as a
// deployment-wide unique handle.
func (x *Index) QualifiedName() string {
	if x.Kind == RelationIndex {
		return fmt.Sprintf("rel/%d/%s", x.Relation, x.Name)
	}
	return "graph/" + x.Name
}
