package store

import (
	"encoding/binary"

	"github.com/GregoryJC/janusgraph/janusgraph_errors"
	"github.com/GregoryJC/janusgraph/schema"
)

// Cell is one raw key/value pair of a row.
type Cell struct {
	Key   []byte
	Value []byte
}

// PropertyEntry is one decoded property cell.
type PropertyEntry struct {
	Key   uint32
	Value []byte
}

// EdgeEntry is one decoded adjacency cell: one direction of one edge as seen
// from the owning vertex.
type EdgeEntry struct {
	Label      uint32
	Direction  schema.Direction
	Other      ElementID
	Relation   RelationID
	Properties []PropertyEntry
}

// Record is one element's adjacency-list-style row: its properties plus its
// relation entries, the unit a scan job processes.
type Record struct {
	Vertex     ElementID
	Properties []PropertyEntry
	Edges      []EdgeEntry
}

// Property returns the encoded value for a property key, if present.
func (r *Record) Property(keyID uint32) ([]byte, bool) {
	for _, p := range r.Properties {
		if p.Key == keyID {
			return p.Value, true
		}
	}
	return nil, false
}

// Property returns the encoded value for a property key of this edge cell.
func (e *EdgeEntry) Property(keyID uint32) ([]byte, bool) {
	for _, p := range e.Properties {
		if p.Key == keyID {
			return p.Value, true
		}
	}
	return nil, false
}

// ParseRecord assembles a Record from the cells of one element row. Cells
// arrive in iteration order within the row.
func ParseRecord(cells []Cell) (*Record, error) {
	if len(cells) == 0 {
		return nil, janusgraph_errors.ErrElementUnknown
	}
	rec := &Record{Vertex: ElementRowID(cells[0].Key)}
	for _, cell := range cells {
		if len(cell.Key) < ElementRowLen+1 {
			return nil, janusgraph_errors.ErrElementUnknown
		}
		suffix := cell.Key[ElementRowLen:]
		switch suffix[0] {
		case propertyCell:
			if len(suffix) != 5 {
				return nil, janusgraph_errors.ErrElementUnknown
			}
			rec.Properties = append(rec.Properties, PropertyEntry{
				Key:   binary.BigEndian.Uint32(suffix[1:]),
				Value: append([]byte{}, cell.Value...),
			})
		case edgeCell:
			if len(suffix) != 1+4+1+8+8 {
				return nil, janusgraph_errors.ErrElementUnknown
			}
			props, err := DecodePairs(cell.Value)
			if err != nil {
				return nil, err
			}
			rec.Edges = append(rec.Edges, EdgeEntry{
				Label:      binary.BigEndian.Uint32(suffix[1:5]),
				Direction:  DirFromByte(suffix[5]),
				Other:      ElementID(binary.BigEndian.Uint64(suffix[6:14])),
				Relation:   RelationID(binary.BigEndian.Uint64(suffix[14:22])),
				Properties: props,
			})
		default:
			return nil, janusgraph_errors.ErrElementUnknown
		}
	}
	return rec, nil
}
