// Package schema holds the index lifecycle state machine and the index
// descriptors it governs. Everything here is pure data: status commits and
// scans live elsewhere.
package schema

import "fmt"

// Status is the lifecycle stage of an index. The numeric order is the
// lifecycle order: a replica reporting a later status has already passed
// through the earlier ones.
type Status uint8

const (
	// StatusInstalled means the descriptor is persisted but not yet visible
	// to every replica of the deployment. Neither reads nor writes touch it.
	StatusInstalled Status = iota
	// StatusRegistered means every replica has observed the descriptor and
	// writes index entries for new data. Not yet safe to read.
	StatusRegistered
	// StatusEnabled means existing data has been repaired into the index
	// and queries may use it.
	StatusEnabled
	// StatusDisabled means reads and writes have stopped; the index is
	// eligible for physical removal.
	StatusDisabled
)

func (s Status) String() string {
	switch s {
	case StatusInstalled:
		return "INSTALLED"
	case StatusRegistered:
		return "REGISTERED"
	case StatusEnabled:
		return "ENABLED"
	case StatusDisabled:
		return "DISABLED"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// AtLeast reports whether s is target or later in the lifecycle order.
func (s Status) AtLeast(target Status) bool {
	return s >= target
}

// Action is a requested lifecycle operation on an index.
type Action uint8

const (
	RegisterIndex Action = iota
	EnableIndex
	DisableIndex
	Reindex
	RemoveIndex
)

func (a Action) String() string {
	switch a {
	case RegisterIndex:
		return "REGISTER_INDEX"
	case EnableIndex:
		return "ENABLE_INDEX"
	case DisableIndex:
		return "DISABLE_INDEX"
	case Reindex:
		return "REINDEX"
	case RemoveIndex:
		return "REMOVE_INDEX"
	default:
		return fmt.Sprintf("Action(%d)", uint8(a))
	}
}

// SourceStatuses lists the statuses an action is legal from.
// Reindex is accepted from ENABLED as well as REGISTERED: an index already
// serving reads may still be missing entries for data loaded before it was
// registered.
func (a Action) SourceStatuses() []Status {
	switch a {
	case RegisterIndex:
		return []Status{StatusInstalled}
	case EnableIndex:
		return []Status{StatusRegistered}
	case DisableIndex:
		return []Status{StatusEnabled}
	case Reindex:
		return []Status{StatusRegistered, StatusEnabled}
	case RemoveIndex:
		return []Status{StatusDisabled}
	default:
		return nil
	}
}

// RequiresScan reports whether the action runs a full-dataset scan job
// rather than a status-only schema commit.
func (a Action) RequiresScan() bool {
	return a == Reindex || a == RemoveIndex
}

// CanTransition reports whether the action is legal from the current status.
func CanTransition(current Status, a Action) bool {
	for _, s := range a.SourceStatuses() {
		if s == current {
			return true
		}
	}
	return false
}

// NextStatus returns the status a status-only action commits. The second
// return is false for scan actions: a scan's completion never commits a
// status by itself.
func NextStatus(a Action) (Status, bool) {
	switch a {
	case RegisterIndex:
		return StatusRegistered, true
	case EnableIndex:
		return StatusEnabled, true
	case DisableIndex:
		return StatusDisabled, true
	default:
		return 0, false
	}
}

// IllegalStateTransitionError reports an action requested from a status it
// is not legal from. It is surfaced synchronously; no job is submitted.
type IllegalStateTransitionError struct {
	Index    string
	Action   Action
	Current  Status
	Required []Status
}

func (e *IllegalStateTransitionError) Error() string {
	return fmt.Sprintf("janusgraph: illegal state transition for index %q: action %s requires status %v, current status is %s",
		e.Index, e.Action, e.Required, e.Current)
}
