package model

import "time"

// MovementRequest is a volunteer's proposal to move an item between locations.
type MovementRequest struct {
	ID             int64     `json:"id"`
	ItemID         int64     `json:"item_id"`
	RequestedBy    *int64    `json:"requested_by,omitempty"`
	FromLocationID int64     `json:"from_location_id"`
	ToLocationID   int64     `json:"to_location_id"`
	Status         string    `json:"status"`
	AdminID        *int64    `json:"admin_id,omitempty"`
	AdminComment   string    `json:"admin_comment,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	// Joined fields (not always populated).
	ItemCode         string `json:"item_code,omitempty"`
	ItemTitle        string `json:"item_title,omitempty"`
	RequestedByName  string `json:"requested_by_name,omitempty"`
	AdminName        string `json:"admin_name,omitempty"`
	FromLocationName string `json:"from_location_name,omitempty"`
	ToLocationName   string `json:"to_location_name,omitempty"`
}

// Movement request statuses.
const (
	MovementWaitingApproval = "WAITING_APPROVAL"
	MovementApproved        = "APPROVED"
	MovementRejected        = "REJECTED"
	MovementCancelled       = "CANCELLED"
)

// ValidMovementStatus checks a status against the known set.
func ValidMovementStatus(status string) bool {
	switch status {
	case MovementWaitingApproval, MovementApproved, MovementRejected, MovementCancelled:
		return true
	}
	return false
}
