package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/erazemk/vitrina/internal/model"
)

// CreateLocation creates a new location.
func CreateLocation(ctx context.Context, db *sql.DB, name, category, description string) (*model.Location, error) {
	if !model.ValidLocationCategory(category) {
		return nil, fmt.Errorf("location category %q: %w", category, model.ErrInvalidInput)
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO locations (name, category, description) VALUES (?, ?, ?)`,
		name, category, description,
	)
	if err != nil {
		return nil, fmt.Errorf("creating location: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting location id: %w", err)
	}

	return GetLocation(ctx, db, id)
}

const locationColumns = `id, name, category, description, created_at, updated_at`

func scanLocation(s interface{ Scan(...any) error }, l *model.Location) error {
	return s.Scan(&l.ID, &l.Name, &l.Category, &l.Description, &l.CreatedAt, &l.UpdatedAt)
}

// GetLocation returns a location by ID.
func GetLocation(ctx context.Context, db *sql.DB, id int64) (*model.Location, error) {
	l := &model.Location{}
	err := scanLocation(db.QueryRowContext(ctx,
		`SELECT `+locationColumns+` FROM locations WHERE id = ?`, id), l)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting location: %w", err)
	}
	return l, nil
}

// GetLocationByName returns a location by its unique name.
func GetLocationByName(ctx context.Context, db *sql.DB, name string) (*model.Location, error) {
	l := &model.Location{}
	err := scanLocation(db.QueryRowContext(ctx,
		`SELECT `+locationColumns+` FROM locations WHERE name = ?`, name), l)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting location by name: %w", err)
	}
	return l, nil
}

// ListLocations returns all locations, optionally filtered by category.
func ListLocations(ctx context.Context, db *sql.DB, category string) ([]model.Location, error) {
	query := `SELECT ` + locationColumns + ` FROM locations`
	var args []any
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY name`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing locations: %w", err)
	}
	defer rows.Close()

	var locations []model.Location
	for rows.Next() {
		var l model.Location
		if err := scanLocation(rows, &l); err != nil {
			return nil, fmt.Errorf("scanning location: %w", err)
		}
		locations = append(locations, l)
	}
	return locations, rows.Err()
}

// UpdateLocation updates a location. Changing the category refreshes the
// floor flag of every item whose snapshot points here.
func UpdateLocation(ctx context.Context, db *sql.DB, id int64, name, category, description string) error {
	if !model.ValidLocationCategory(category) {
		return fmt.Errorf("location category %q: %w", category, model.ErrInvalidInput)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx,
		`UPDATE locations SET name = ?, category = ?, description = ?, updated_at = ? WHERE id = ?`,
		name, category, description, now, id,
	)
	if err != nil {
		return fmt.Errorf("updating location: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("location %d: %w", id, model.ErrNotFound)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE items SET is_on_floor = ?, updated_at = ?
		 WHERE current_location_id = ? AND is_on_floor != ?`,
		category == model.LocationFloor, now, id, category == model.LocationFloor,
	)
	if err != nil {
		return fmt.Errorf("updating floor flags: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing location update: %w", err)
	}
	return nil
}

// DeleteLocation deletes a location. Fails with model.ErrInUse while any box,
// item, movement request or history event references it.
func DeleteLocation(ctx context.Context, db *sql.DB, id int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	err = tx.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM boxes WHERE location_id = ?)
		      + (SELECT COUNT(*) FROM items WHERE current_location_id = ?)
		      + (SELECT COUNT(*) FROM movement_requests WHERE from_location_id = ? OR to_location_id = ?)
		      + (SELECT COUNT(*) FROM history_events WHERE from_location_id = ? OR to_location_id = ?)`,
		id, id, id, id, id, id,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking location references: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("location %d has %d references: %w", id, count, model.ErrInUse)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM locations WHERE id = ?`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("location %d is referenced: %w", id, model.ErrInUse)
		}
		return fmt.Errorf("deleting location: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("location %d: %w", id, model.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("location %d is referenced: %w", id, model.ErrInUse)
		}
		return fmt.Errorf("committing location delete: %w", err)
	}
	return nil
}

func isForeignKeyViolation(err error) bool {
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
