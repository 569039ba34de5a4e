package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/vitrina/internal/model"
)

// CreateBox creates a new box at a location.
func CreateBox(ctx context.Context, db *sql.DB, code, label, description string, locationID int64) (*model.Box, error) {
	loc, err := GetLocation(ctx, db, locationID)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		return nil, fmt.Errorf("location %d: %w", locationID, model.ErrNotFound)
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO boxes (code, label, description, location_id) VALUES (?, ?, ?, ?)`,
		code, label, description, locationID,
	)
	if err != nil {
		return nil, fmt.Errorf("creating box: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting box id: %w", err)
	}

	return GetBox(ctx, db, id)
}

const boxSelect = `SELECT b.id, b.code, b.label, b.description, b.location_id, b.created_at, b.updated_at, l.name
	FROM boxes b
	JOIN locations l ON l.id = b.location_id`

func scanBox(s interface{ Scan(...any) error }, b *model.Box) error {
	return s.Scan(&b.ID, &b.Code, &b.Label, &b.Description, &b.LocationID, &b.CreatedAt, &b.UpdatedAt, &b.LocationName)
}

// GetBox returns a box by ID.
func GetBox(ctx context.Context, db *sql.DB, id int64) (*model.Box, error) {
	b := &model.Box{}
	err := scanBox(db.QueryRowContext(ctx, boxSelect+` WHERE b.id = ?`, id), b)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting box: %w", err)
	}
	return b, nil
}

// GetBoxByCode returns a box by its unique code.
func GetBoxByCode(ctx context.Context, db *sql.DB, code string) (*model.Box, error) {
	b := &model.Box{}
	err := scanBox(db.QueryRowContext(ctx, boxSelect+` WHERE b.code = ?`, code), b)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting box by code: %w", err)
	}
	return b, nil
}

// ListBoxes returns all boxes, optionally only those at one location.
func ListBoxes(ctx context.Context, db *sql.DB, locationID int64) ([]model.Box, error) {
	query := boxSelect
	var args []any
	if locationID > 0 {
		query += ` WHERE b.location_id = ?`
		args = append(args, locationID)
	}
	query += ` ORDER BY b.code`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing boxes: %w", err)
	}
	defer rows.Close()

	var boxes []model.Box
	for rows.Next() {
		var b model.Box
		if err := scanBox(rows, &b); err != nil {
			return nil, fmt.Errorf("scanning box: %w", err)
		}
		boxes = append(boxes, b)
	}
	return boxes, rows.Err()
}

// UpdateBox updates a box's code, label, description and location.
// Moving a box does not move the items in it; item locations come from
// their own history.
func UpdateBox(ctx context.Context, db *sql.DB, id int64, code, label, description string, locationID int64) error {
	loc, err := GetLocation(ctx, db, locationID)
	if err != nil {
		return err
	}
	if loc == nil {
		return fmt.Errorf("location %d: %w", locationID, model.ErrNotFound)
	}

	result, err := db.ExecContext(ctx,
		`UPDATE boxes SET code = ?, label = ?, description = ?, location_id = ?, updated_at = ? WHERE id = ?`,
		code, label, description, locationID, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating box: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("box %d: %w", id, model.ErrNotFound)
	}
	return nil
}

// DeleteBox deletes a box. Items packed in it keep their history and lose
// the box reference.
func DeleteBox(ctx context.Context, db *sql.DB, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM boxes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting box: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("box %d: %w", id, model.ErrNotFound)
	}
	return nil
}
