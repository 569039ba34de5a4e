// Package history keeps the append-only item history log and derives each
// item's current location from it.
//
// The log is the source of truth. The location columns on items are a
// snapshot that Append refreshes inside the caller's transaction whenever a
// location-changing event is written.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/huandu/go-sqlbuilder"

	"github.com/erazemk/vitrina/internal/metrics"
	"github.com/erazemk/vitrina/internal/model"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// NewEvent describes an event to append. A zero CreatedAt means now.
type NewEvent struct {
	ItemID            int64
	Kind              model.EventKind
	FromLocationID    *int64
	ToLocationID      *int64
	MovementRequestID *int64
	ActedBy           *int64
	Notes             string
	CreatedAt         time.Time
}

// Append writes ev to the log inside tx and returns the new event ID.
//
// Location-changing events then resynchronize the item snapshot. A failed
// synchronization is rolled back to a savepoint and logged; the event itself
// stays in the transaction and the snapshot can be repaired with
// RebuildSnapshot.
func Append(ctx context.Context, tx *sql.Tx, ev NewEvent) (int64, error) {
	if !ev.Kind.Valid() {
		return 0, fmt.Errorf("unknown event kind %q: %w", ev.Kind, model.ErrInvalidInput)
	}
	changing := model.IsLocationChanging(ev.Kind)
	if changing && ev.ToLocationID == nil {
		return 0, fmt.Errorf("%s event without destination: %w", ev.Kind, model.ErrInvalidInput)
	}

	if err := requireRow(ctx, tx, "items", ev.ItemID); err != nil {
		return 0, fmt.Errorf("item %d: %w", ev.ItemID, err)
	}
	for _, locID := range []*int64{ev.FromLocationID, ev.ToLocationID} {
		if locID == nil {
			continue
		}
		if err := requireRow(ctx, tx, "locations", *locID); err != nil {
			return 0, fmt.Errorf("location %d: %w", *locID, err)
		}
	}

	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO history_events
		     (item_id, kind, from_location_id, to_location_id, movement_request_id, acted_by, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ItemID, string(ev.Kind), ev.FromLocationID, ev.ToLocationID,
		ev.MovementRequestID, ev.ActedBy, ev.Notes, createdAt.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting history event: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting event id: %w", err)
	}
	metrics.HistoryEventsAppended.WithLabelValues(string(ev.Kind)).Inc()

	if changing {
		syncAfterAppend(ctx, tx, ev.ItemID, id)
	}

	return id, nil
}

// AppendEvent appends ev in its own transaction and returns the stored event.
func AppendEvent(ctx context.Context, db *sql.DB, ev NewEvent) (*model.HistoryEvent, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	id, err := Append(ctx, tx, ev)
	if err != nil {
		return nil, err
	}

	stored, err := GetEvent(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing history event: %w", err)
	}

	return stored, nil
}

func syncAfterAppend(ctx context.Context, tx *sql.Tx, itemID, eventID int64) {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT snapshot_sync"); err != nil {
		slog.Error("snapshot sync skipped", "item_id", itemID, "event_id", eventID, "error", err)
		metrics.SnapshotSyncs.WithLabelValues(metrics.ResultFailed).Inc()
		return
	}

	if _, err := SyncItemSnapshot(ctx, tx, itemID); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO snapshot_sync"); rbErr != nil {
			slog.Error("rolling back snapshot sync", "item_id", itemID, "error", rbErr)
		}
		slog.Error("snapshot sync failed", "item_id", itemID, "event_id", eventID, "error", err)
		metrics.SnapshotSyncs.WithLabelValues(metrics.ResultFailed).Inc()
	}

	if _, err := tx.ExecContext(ctx, "RELEASE snapshot_sync"); err != nil {
		slog.Error("releasing snapshot savepoint", "item_id", itemID, "error", err)
	}
}

// requireRow returns model.ErrNotFound if table has no row with id.
// table is always a constant supplied by this package.
func requireRow(ctx context.Context, q DBTX, table string, id int64) error {
	var one int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM "+table+" WHERE id = ?", id).Scan(&one)
	if err == sql.ErrNoRows {
		return model.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("checking %s: %w", table, err)
	}
	return nil
}

const eventColumns = `h.id, h.item_id, h.kind, h.from_location_id, h.to_location_id,
	h.movement_request_id, h.acted_by, h.notes, h.created_at,
	COALESCE(fl.name, ''), COALESCE(tl.name, ''), COALESCE(u.name, '')`

const eventJoins = `history_events h
	LEFT JOIN locations fl ON fl.id = h.from_location_id
	LEFT JOIN locations tl ON tl.id = h.to_location_id
	LEFT JOIN users u ON u.id = h.acted_by`

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (*model.HistoryEvent, error) {
	var e model.HistoryEvent
	err := s.Scan(&e.ID, &e.ItemID, &e.Kind, &e.FromLocationID, &e.ToLocationID,
		&e.MovementRequestID, &e.ActedBy, &e.Notes, &e.CreatedAt,
		&e.FromLocationName, &e.ToLocationName, &e.ActedByName)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetEvent returns a single history event, or nil if not found.
func GetEvent(ctx context.Context, q DBTX, id int64) (*model.HistoryEvent, error) {
	row := q.QueryRowContext(ctx, "SELECT "+eventColumns+" FROM "+eventJoins+" WHERE h.id = ?", id)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting history event: %w", err)
	}
	return e, nil
}

// loadEvents returns an item's events in history order, optionally
// restricted to the given kinds.
func loadEvents(ctx context.Context, q DBTX, itemID int64, kinds []model.EventKind) ([]model.HistoryEvent, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(eventColumns)
	sb.From(eventJoins)
	sb.Where(sb.Equal("h.item_id", itemID))
	if len(kinds) > 0 {
		args := make([]any, len(kinds))
		for i, k := range kinds {
			args[i] = string(k)
		}
		sb.Where(sb.In("h.kind", args...))
	}
	sb.OrderBy("h.created_at", "h.id")

	query, args := sb.Build()
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing history events: %w", err)
	}
	defer rows.Close()

	var events []model.HistoryEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning history event: %w", err)
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Timestamps written by other tools may not sort as text, so settle the
	// order on parsed values.
	sort.SliceStable(events, func(i, j int) bool {
		return events[j].After(&events[i])
	})

	return events, nil
}

// ListItemHistory returns an item's full history, oldest first.
func ListItemHistory(ctx context.Context, q DBTX, itemID int64) ([]model.HistoryEvent, error) {
	return loadEvents(ctx, q, itemID, nil)
}

// IsInTransit reports whether the item's latest IN_TRANSIT or ARRIVED event is
// IN_TRANSIT. Review events recorded in between do not end a transit.
func IsInTransit(ctx context.Context, q DBTX, itemID int64) (bool, error) {
	events, err := loadEvents(ctx, q, itemID, []model.EventKind{model.EventInTransit, model.EventArrived})
	if err != nil {
		return false, err
	}
	if len(events) == 0 {
		return false, nil
	}
	return events[len(events)-1].Kind == model.EventInTransit, nil
}
