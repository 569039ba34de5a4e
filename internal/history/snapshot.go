package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/erazemk/vitrina/internal/metrics"
	"github.com/erazemk/vitrina/internal/model"
)

// SyncItemSnapshot rewrites the item's snapshot columns from the resolved
// location and returns it. When the location is unknown the snapshot is left
// as it is and a nil location is returned.
func SyncItemSnapshot(ctx context.Context, q DBTX, itemID int64) (*model.Location, error) {
	loc, err := ResolveCurrentLocation(ctx, q, itemID)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		metrics.SnapshotSyncs.WithLabelValues(metrics.ResultUnknown).Inc()
		return nil, nil
	}

	res, err := q.ExecContext(ctx,
		`UPDATE items SET current_location_id = ?, is_on_floor = ?, updated_at = ? WHERE id = ?`,
		loc.ID, loc.IsFloor(), time.Now().UTC(), itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("updating snapshot of item %d: %w", itemID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking snapshot update: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("item %d: %w", itemID, model.ErrNotFound)
	}

	metrics.SnapshotSyncs.WithLabelValues(metrics.ResultUpdated).Inc()
	return loc, nil
}

// RebuildSnapshot resynchronizes one item's snapshot in its own transaction.
func RebuildSnapshot(ctx context.Context, db *sql.DB, itemID int64) (*model.Location, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := requireRow(ctx, tx, "items", itemID); err != nil {
		return nil, fmt.Errorf("item %d: %w", itemID, err)
	}

	loc, err := SyncItemSnapshot(ctx, tx, itemID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing snapshot rebuild: %w", err)
	}

	return loc, nil
}

// RebuildFailure records one item that could not be rebuilt.
type RebuildFailure struct {
	ItemID int64  `json:"item_id"`
	Error  string `json:"error"`
}

// RebuildReport summarizes a RebuildAllSnapshots run.
type RebuildReport struct {
	Total    int              `json:"total"`
	Updated  int              `json:"updated"`
	Unknown  int              `json:"unknown"`
	Failures []RebuildFailure `json:"failures,omitempty"`
}

// RebuildAllSnapshots resynchronizes every item. A failing item is recorded
// in the report and does not stop the run. The returned error is set only
// when the item list cannot be read or ctx is cancelled.
func RebuildAllSnapshots(ctx context.Context, db *sql.DB) (*RebuildReport, error) {
	ids, err := listItemIDs(ctx, db)
	if err != nil {
		return nil, err
	}

	report := &RebuildReport{Total: len(ids)}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		loc, err := RebuildSnapshot(ctx, db, id)
		switch {
		case err != nil:
			slog.Error("rebuilding snapshot", "item_id", id, "error", err)
			report.Failures = append(report.Failures, RebuildFailure{ItemID: id, Error: err.Error()})
			metrics.SnapshotRebuilds.WithLabelValues(metrics.ResultFailed).Inc()
		case loc == nil:
			report.Unknown++
			metrics.SnapshotRebuilds.WithLabelValues(metrics.ResultUnknown).Inc()
		default:
			report.Updated++
			metrics.SnapshotRebuilds.WithLabelValues(metrics.ResultUpdated).Inc()
		}
	}

	slog.Info("snapshot rebuild finished",
		"total", report.Total, "updated", report.Updated,
		"unknown", report.Unknown, "failed", len(report.Failures))

	return report, nil
}

func listItemIDs(ctx context.Context, db *sql.DB) ([]int64, error) {
	rows, err := db.QueryContext(ctx, "SELECT id FROM items ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning item id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
