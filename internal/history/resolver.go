package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/erazemk/vitrina/internal/metrics"
	"github.com/erazemk/vitrina/internal/model"
)

// Latest returns the latest location-changing event in events, ordered by
// creation time and then by ID. Workflow events are ignored. It returns nil
// when there is no location-changing event.
func Latest(events []model.HistoryEvent) *model.HistoryEvent {
	var latest *model.HistoryEvent
	for i := range events {
		ev := &events[i]
		if !model.IsLocationChanging(ev.Kind) {
			continue
		}
		if latest == nil || ev.After(latest) {
			latest = ev
		}
	}
	return latest
}

// ResolveCurrentLocation derives the item's current location from its
// history: the destination of the latest location-changing event.
//
// A nil location with a nil error means the location is unknown. That covers
// items without location-changing events, unknown item IDs and corrupt
// events whose destination is missing. Only storage failures return an error.
func ResolveCurrentLocation(ctx context.Context, q DBTX, itemID int64) (*model.Location, error) {
	events, err := loadEvents(ctx, q, itemID, model.LocationChangingKinds)
	if err != nil {
		return nil, fmt.Errorf("resolving location of item %d: %w", itemID, err)
	}

	latest := Latest(events)
	if latest == nil {
		return nil, nil
	}
	if latest.ToLocationID == nil {
		integrityWarning(itemID, latest, "location-changing event has no destination")
		return nil, nil
	}

	loc, err := getLocation(ctx, q, *latest.ToLocationID)
	if err != nil {
		return nil, fmt.Errorf("resolving location of item %d: %w", itemID, err)
	}
	if loc == nil {
		integrityWarning(itemID, latest, "location-changing event points at a missing location")
		return nil, nil
	}

	return loc, nil
}

func integrityWarning(itemID int64, ev *model.HistoryEvent, msg string) {
	slog.Warn(msg, "item_id", itemID, "event_id", ev.ID, "kind", ev.Kind)
	metrics.IntegrityWarnings.Inc()
}

func getLocation(ctx context.Context, q DBTX, id int64) (*model.Location, error) {
	var l model.Location
	err := q.QueryRowContext(ctx,
		"SELECT id, name, category, description, created_at, updated_at FROM locations WHERE id = ?", id,
	).Scan(&l.ID, &l.Name, &l.Category, &l.Description, &l.CreatedAt, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting location: %w", err)
	}
	return &l, nil
}
