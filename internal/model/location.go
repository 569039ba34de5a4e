package model

import "time"

// Location is a named place that boxes and items can occupy.
type Location struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Location categories.
const (
	LocationFloor   = "FLOOR"
	LocationStorage = "STORAGE"
	LocationEvent   = "EVENT"
	LocationOther   = "OTHER"
)

// IsFloor reports whether items at this location count as on the exhibition floor.
func (l *Location) IsFloor() bool {
	return l != nil && l.Category == LocationFloor
}

// ValidLocationCategory checks a category against the known set.
func ValidLocationCategory(category string) bool {
	switch category {
	case LocationFloor, LocationStorage, LocationEvent, LocationOther:
		return true
	}
	return false
}
