package model

import "time"

// EventKind identifies the type of a history event.
type EventKind string

// History event kinds.
const (
	EventInitial            EventKind = "INITIAL"
	EventMoveRequested      EventKind = "MOVE_REQUESTED"
	EventMoveApproved       EventKind = "MOVE_APPROVED"
	EventMoveRejected       EventKind = "MOVE_REJECTED"
	EventInTransit          EventKind = "IN_TRANSIT"
	EventArrived            EventKind = "ARRIVED"
	EventVerified           EventKind = "VERIFIED"
	EventLocationCorrection EventKind = "LOCATION_CORRECTION"
)

// LocationChangingKinds are the only kinds that settle an item's physical
// location. Everything else records workflow state.
var LocationChangingKinds = []EventKind{
	EventInitial,
	EventArrived,
	EventVerified,
	EventLocationCorrection,
}

// WorkflowKinds record intent or transit and never move an item.
var WorkflowKinds = []EventKind{
	EventMoveRequested,
	EventMoveApproved,
	EventMoveRejected,
	EventInTransit,
}

// IsLocationChanging reports whether events of this kind move the item.
func IsLocationChanging(kind EventKind) bool {
	for _, k := range LocationChangingKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Valid reports whether kind is one of the known event kinds.
func (k EventKind) Valid() bool {
	if IsLocationChanging(k) {
		return true
	}
	for _, w := range WorkflowKinds {
		if w == k {
			return true
		}
	}
	return false
}

// HistoryEvent is one immutable entry in an item's history.
type HistoryEvent struct {
	ID                int64     `json:"id"`
	ItemID            int64     `json:"item_id"`
	Kind              EventKind `json:"kind"`
	FromLocationID    *int64    `json:"from_location_id,omitempty"`
	ToLocationID      *int64    `json:"to_location_id,omitempty"`
	MovementRequestID *int64    `json:"movement_request_id,omitempty"`
	ActedBy           *int64    `json:"acted_by,omitempty"`
	Notes             string    `json:"notes,omitempty"`
	CreatedAt         time.Time `json:"created_at"`

	// Joined fields (not always populated).
	FromLocationName string `json:"from_location_name,omitempty"`
	ToLocationName   string `json:"to_location_name,omitempty"`
	ActedByName      string `json:"acted_by_name,omitempty"`
}

// After reports whether e sorts after other in history order:
// creation time first, insertion sequence as the tiebreak.
func (e *HistoryEvent) After(other *HistoryEvent) bool {
	if !e.CreatedAt.Equal(other.CreatedAt) {
		return e.CreatedAt.After(other.CreatedAt)
	}
	return e.ID > other.ID
}
