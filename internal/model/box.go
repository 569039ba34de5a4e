package model

import "time"

// Box is a physical container that sits at exactly one location.
type Box struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	Label       string    `json:"label,omitempty"`
	Description string    `json:"description,omitempty"`
	LocationID  int64     `json:"location_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Joined fields (not always populated).
	LocationName string `json:"location_name,omitempty"`
}
