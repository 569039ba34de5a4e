package model

import "time"

// Item is a single tracked collection piece.
//
// CurrentLocationID and IsOnFloor are a snapshot derived from the item's
// history. They are rewritten by the history package after every
// location-changing event and are never authoritative on their own.
type Item struct {
	ID                int64     `json:"id"`
	Code              string    `json:"code"`
	Title             string    `json:"title"`
	Platform          string    `json:"platform,omitempty"`
	ItemType          string    `json:"item_type"`
	Condition         string    `json:"condition"`
	IsComplete        string    `json:"is_complete"`
	IsFunctional      string    `json:"is_functional"`
	Description       string    `json:"description,omitempty"`
	BoxID             *int64    `json:"box_id,omitempty"`
	CurrentLocationID int64     `json:"current_location_id"`
	CurrentLocation   *Location `json:"current_location,omitempty"`
	IsOnFloor         bool      `json:"is_on_floor"`
	IsPublicVisible   bool      `json:"is_public_visible"`
	Status            string    `json:"status"`
	ImageMime         string    `json:"image_mime,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Item live statuses.
const (
	ItemStatusAvailable = "AVAILABLE"
	ItemStatusInTransit = "IN_TRANSIT"
)

// Item types.
const (
	ItemTypeSoftware      = "SOFTWARE"
	ItemTypeHardware      = "HARDWARE"
	ItemTypeNonElectronic = "NON_ELECTRONIC"
)

// Item conditions.
const (
	ConditionExcellent = "EXCELLENT"
	ConditionGood      = "GOOD"
	ConditionFair      = "FAIR"
	ConditionPoor      = "POOR"
)

// Tri-state answers for completeness and functionality.
const (
	TriYes     = "YES"
	TriNo      = "NO"
	TriUnknown = "UNKNOWN"
)

// ItemDetails holds the descriptive, freely editable part of an item.
type ItemDetails struct {
	Title        string
	Platform     string
	ItemType     string
	Condition    string
	IsComplete   string
	IsFunctional string
	Description  string
}

// WithDefaults fills empty enum fields with their defaults.
func (d ItemDetails) WithDefaults() ItemDetails {
	if d.ItemType == "" {
		d.ItemType = ItemTypeSoftware
	}
	if d.Condition == "" {
		d.Condition = ConditionGood
	}
	if d.IsComplete == "" {
		d.IsComplete = TriUnknown
	}
	if d.IsFunctional == "" {
		d.IsFunctional = TriUnknown
	}
	return d
}
