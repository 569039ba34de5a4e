package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/huandu/go-sqlbuilder"

	"github.com/erazemk/vitrina/internal/history"
	"github.com/erazemk/vitrina/internal/metrics"
	"github.com/erazemk/vitrina/internal/model"
)

// Movement request lifecycle:
//
//	WAITING_APPROVAL -> APPROVED | REJECTED | CANCELLED
//	APPROVED: item AVAILABLE -> IN_TRANSIT (StartTransit) -> AVAILABLE at the
//	destination (CompleteArrival)
//
// Only CompleteArrival moves the item. Every other step records a workflow
// event and leaves the snapshot alone.

// CreateMovementRequest asks to move an item from its current location to
// toLocationID.
func CreateMovementRequest(ctx context.Context, db *sql.DB, itemID int64, requestedBy *int64, toLocationID int64, notes string) (*model.MovementRequest, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var fromID int64
	var status string
	err = tx.QueryRowContext(ctx,
		`SELECT current_location_id, status FROM items WHERE id = ?`, itemID,
	).Scan(&fromID, &status)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("item %d: %w", itemID, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	if status == model.ItemStatusInTransit {
		return nil, fmt.Errorf("item %d is in transit: %w", itemID, model.ErrInvalidTransition)
	}

	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM locations WHERE id = ?`, toLocationID).Scan(&one)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("location %d: %w", toLocationID, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("checking location: %w", err)
	}

	if fromID == toLocationID {
		return nil, fmt.Errorf("item %d is already at location %d: %w", itemID, toLocationID, model.ErrInvalidInput)
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO movement_requests (item_id, requested_by, from_location_id, to_location_id)
		 VALUES (?, ?, ?, ?)`,
		itemID, requestedBy, fromID, toLocationID,
	)
	if err != nil {
		return nil, fmt.Errorf("creating movement request: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting movement request id: %w", err)
	}

	_, err = history.Append(ctx, tx, history.NewEvent{
		ItemID:            itemID,
		Kind:              model.EventMoveRequested,
		FromLocationID:    &fromID,
		ToLocationID:      &toLocationID,
		MovementRequestID: &id,
		ActedBy:           requestedBy,
		Notes:             notes,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing movement request: %w", err)
	}
	metrics.MovementTransitions.WithLabelValues(transitionLabel(model.EventMoveRequested)).Inc()

	return GetMovementRequest(ctx, db, id)
}

func newMovementSelect() *sqlbuilder.SelectBuilder {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(
		"m.id", "m.item_id", "m.requested_by", "m.from_location_id", "m.to_location_id",
		"m.status", "m.admin_id", "m.admin_comment", "m.created_at", "m.updated_at",
		"i.code", "i.title", "COALESCE(ru.name, '')", "COALESCE(au.name, '')", "fl.name", "tl.name",
	)
	sb.From("movement_requests m")
	sb.Join("items i", "i.id = m.item_id")
	sb.Join("locations fl", "fl.id = m.from_location_id")
	sb.Join("locations tl", "tl.id = m.to_location_id")
	sb.JoinWithOption(sqlbuilder.LeftJoin, "users ru", "ru.id = m.requested_by")
	sb.JoinWithOption(sqlbuilder.LeftJoin, "users au", "au.id = m.admin_id")
	return sb
}

func scanMovement(s interface{ Scan(...any) error }) (*model.MovementRequest, error) {
	m := &model.MovementRequest{}
	err := s.Scan(&m.ID, &m.ItemID, &m.RequestedBy, &m.FromLocationID, &m.ToLocationID,
		&m.Status, &m.AdminID, &m.AdminComment, &m.CreatedAt, &m.UpdatedAt,
		&m.ItemCode, &m.ItemTitle, &m.RequestedByName, &m.AdminName, &m.FromLocationName, &m.ToLocationName)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func getMovementRequest(ctx context.Context, q history.DBTX, id int64) (*model.MovementRequest, error) {
	sb := newMovementSelect()
	sb.Where(sb.Equal("m.id", id))
	query, args := sb.Build()

	m, err := scanMovement(q.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting movement request: %w", err)
	}
	return m, nil
}

// GetMovementRequest returns a movement request by ID.
func GetMovementRequest(ctx context.Context, db *sql.DB, id int64) (*model.MovementRequest, error) {
	return getMovementRequest(ctx, db, id)
}

// MovementFilter narrows ListMovementRequests. Zero values do not filter.
type MovementFilter struct {
	Status      string
	ItemID      int64
	RequestedBy int64
}

// ListMovementRequests returns movement requests, newest first.
func ListMovementRequests(ctx context.Context, db *sql.DB, f MovementFilter) ([]model.MovementRequest, error) {
	sb := newMovementSelect()
	if f.Status != "" {
		sb.Where(sb.Equal("m.status", f.Status))
	}
	if f.ItemID > 0 {
		sb.Where(sb.Equal("m.item_id", f.ItemID))
	}
	if f.RequestedBy > 0 {
		sb.Where(sb.Equal("m.requested_by", f.RequestedBy))
	}
	sb.OrderBy("m.created_at DESC", "m.id DESC")

	query, args := sb.Build()
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing movement requests: %w", err)
	}
	defer rows.Close()

	var requests []model.MovementRequest
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning movement request: %w", err)
		}
		requests = append(requests, *m)
	}
	return requests, rows.Err()
}

// ListPendingMovementsForItem returns the item's requests still waiting for review.
func ListPendingMovementsForItem(ctx context.Context, db *sql.DB, itemID int64) ([]model.MovementRequest, error) {
	return ListMovementRequests(ctx, db, MovementFilter{Status: model.MovementWaitingApproval, ItemID: itemID})
}

// ApproveMovementRequest approves a waiting request. The item does not move
// until the arrival is completed.
func ApproveMovementRequest(ctx context.Context, db *sql.DB, id, adminID int64, comment string) (*model.MovementRequest, error) {
	return reviewMovementRequest(ctx, db, id, adminID, comment, model.MovementApproved, model.EventMoveApproved)
}

// RejectMovementRequest rejects a waiting request.
func RejectMovementRequest(ctx context.Context, db *sql.DB, id, adminID int64, comment string) (*model.MovementRequest, error) {
	return reviewMovementRequest(ctx, db, id, adminID, comment, model.MovementRejected, model.EventMoveRejected)
}

func reviewMovementRequest(ctx context.Context, db *sql.DB, id, adminID int64, comment, status string, kind model.EventKind) (*model.MovementRequest, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// The status guard makes concurrent reviews of the same request lose
	// cleanly instead of recording two decisions.
	result, err := tx.ExecContext(ctx,
		`UPDATE movement_requests SET status = ?, admin_id = ?, admin_comment = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		status, adminID, comment, time.Now().UTC(), id, model.MovementWaitingApproval,
	)
	if err != nil {
		return nil, fmt.Errorf("reviewing movement request: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, transitionError(ctx, tx, id, status)
	}

	m, err := getMovementRequest(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	_, err = history.Append(ctx, tx, history.NewEvent{
		ItemID:            m.ItemID,
		Kind:              kind,
		FromLocationID:    &m.FromLocationID,
		ToLocationID:      &m.ToLocationID,
		MovementRequestID: &id,
		ActedBy:           &adminID,
		Notes:             comment,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing review: %w", err)
	}
	metrics.MovementTransitions.WithLabelValues(transitionLabel(kind)).Inc()

	return GetMovementRequest(ctx, db, id)
}

// CancelMovementRequest withdraws a waiting request. No history event is
// recorded because nothing about the item changed.
func CancelMovementRequest(ctx context.Context, db *sql.DB, id, userID int64) (*model.MovementRequest, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE movement_requests SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		model.MovementCancelled, time.Now().UTC(), id, model.MovementWaitingApproval,
	)
	if err != nil {
		return nil, fmt.Errorf("cancelling movement request: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, transitionError(ctx, tx, id, model.MovementCancelled)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing cancellation: %w", err)
	}
	slog.Info("movement request cancelled", "request_id", id, "user_id", userID)
	metrics.MovementTransitions.WithLabelValues("cancelled").Inc()

	return GetMovementRequest(ctx, db, id)
}

// StartTransit marks the item of an approved request as on its way.
func StartTransit(ctx context.Context, db *sql.DB, id, userID int64, comment string) (*model.MovementRequest, error) {
	return transit(ctx, db, id, userID, comment, model.ItemStatusAvailable, model.ItemStatusInTransit, model.EventInTransit)
}

// CompleteArrival records that the item of an approved, in-transit request
// reached its destination. This is the step that moves the item.
func CompleteArrival(ctx context.Context, db *sql.DB, id, userID int64, comment string) (*model.MovementRequest, error) {
	return transit(ctx, db, id, userID, comment, model.ItemStatusInTransit, model.ItemStatusAvailable, model.EventArrived)
}

func transit(ctx context.Context, db *sql.DB, id, userID int64, comment, fromStatus, toStatus string, kind model.EventKind) (*model.MovementRequest, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	m, err := getMovementRequest(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, fmt.Errorf("movement request %d: %w", id, model.ErrNotFound)
	}
	if m.Status != model.MovementApproved {
		return nil, fmt.Errorf("movement request %d is %s: %w", id, m.Status, model.ErrInvalidTransition)
	}

	// An approved request goes through transit and arrival exactly once.
	started, err := countRequestEvents(ctx, tx, id, model.EventInTransit)
	if err != nil {
		return nil, err
	}
	arrived, err := countRequestEvents(ctx, tx, id, model.EventArrived)
	if err != nil {
		return nil, err
	}
	switch {
	case arrived > 0:
		return nil, fmt.Errorf("movement request %d already completed: %w", id, model.ErrInvalidTransition)
	case kind == model.EventInTransit && started > 0:
		return nil, fmt.Errorf("movement request %d already in transit: %w", id, model.ErrInvalidTransition)
	case kind == model.EventArrived && started == 0:
		return nil, fmt.Errorf("movement request %d not in transit: %w", id, model.ErrInvalidTransition)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE items SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		toStatus, time.Now().UTC(), m.ItemID, fromStatus,
	)
	if err != nil {
		return nil, fmt.Errorf("updating item status: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("item %d is not %s: %w", m.ItemID, fromStatus, model.ErrInvalidTransition)
	}

	_, err = history.Append(ctx, tx, history.NewEvent{
		ItemID:            m.ItemID,
		Kind:              kind,
		FromLocationID:    &m.FromLocationID,
		ToLocationID:      &m.ToLocationID,
		MovementRequestID: &id,
		ActedBy:           &userID,
		Notes:             comment,
	})
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE movement_requests SET updated_at = ? WHERE id = ?`, time.Now().UTC(), id,
	); err != nil {
		return nil, fmt.Errorf("touching movement request: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing %s: %w", kind, err)
	}
	metrics.MovementTransitions.WithLabelValues(transitionLabel(kind)).Inc()

	return GetMovementRequest(ctx, db, id)
}

func countRequestEvents(ctx context.Context, q history.DBTX, requestID int64, kind model.EventKind) (int, error) {
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM history_events WHERE movement_request_id = ? AND kind = ?`,
		requestID, string(kind),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting %s events: %w", kind, err)
	}
	return count, nil
}

func transitionLabel(kind model.EventKind) string {
	return strings.ToLower(string(kind))
}

// transitionError explains why a guarded status update matched no row.
func transitionError(ctx context.Context, q history.DBTX, id int64, target string) error {
	var status string
	err := q.QueryRowContext(ctx, `SELECT status FROM movement_requests WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return fmt.Errorf("movement request %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("checking movement request: %w", err)
	}
	return fmt.Errorf("movement request %d is %s, cannot become %s: %w", id, status, target, model.ErrInvalidTransition)
}

// BulkReview approves or rejects every listed request that is still waiting.
// Requests that are missing or already processed are skipped. It returns the
// number of requests reviewed.
func BulkReview(ctx context.Context, db *sql.DB, ids []int64, approve bool, adminID int64) (int, error) {
	review, comment := RejectMovementRequest, "Bulk rejected"
	if approve {
		review, comment = ApproveMovementRequest, "Bulk approved"
	}

	count := 0
	for _, id := range ids {
		_, err := review(ctx, db, id, adminID, comment)
		if errors.Is(err, model.ErrInvalidTransition) || errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
