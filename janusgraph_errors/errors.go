// Provides common janusgraph error definitions.
package janusgraph_errors

import "errors"

var (
	ErrIndexUnknown        = errors.New("janusgraph: unknown index")
	ErrIndexExists         = errors.New("janusgraph: index already exists")
	ErrIndexNotEnabled     = errors.New("janusgraph: index is not enabled for reads")
	ErrStatusConflict      = errors.New("janusgraph: index status changed concurrently")
	ErrDirectionNotIndexed = errors.New("janusgraph: index does not cover the requested direction")
	ErrPropertyKeyUnknown  = errors.New("janusgraph: unknown property key")
	ErrPropertyKeyExists   = errors.New("janusgraph: property key already exists")
	ErrEdgeLabelUnknown    = errors.New("janusgraph: unknown edge label")
	ErrEdgeLabelExists     = errors.New("janusgraph: edge label already exists")
	ErrElementUnknown      = errors.New("janusgraph: unknown element")
	ErrBadValueType        = errors.New("janusgraph: unsupported property value type")
)
