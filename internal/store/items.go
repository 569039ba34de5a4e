package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/huandu/go-sqlbuilder"

	"github.com/erazemk/vitrina/internal/history"
	"github.com/erazemk/vitrina/internal/model"
)

// CreateItem creates an item at its initial location and records the
// INITIAL history event in the same transaction.
func CreateItem(ctx context.Context, db *sql.DB, code string, details model.ItemDetails, boxID *int64, locationID int64, createdBy *int64) (*model.Item, error) {
	details = details.WithDefaults()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var category string
	err = tx.QueryRowContext(ctx, `SELECT category FROM locations WHERE id = ?`, locationID).Scan(&category)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("location %d: %w", locationID, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("checking location: %w", err)
	}

	if boxID != nil {
		if err := requireBox(ctx, tx, *boxID); err != nil {
			return nil, err
		}
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO items (code, title, platform, item_type, condition, is_complete, is_functional,
		                    description, box_id, current_location_id, is_on_floor)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		code, details.Title, details.Platform, details.ItemType, details.Condition,
		details.IsComplete, details.IsFunctional, details.Description, boxID,
		locationID, category == model.LocationFloor,
	)
	if err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting item id: %w", err)
	}

	_, err = history.Append(ctx, tx, history.NewEvent{
		ItemID:       id,
		Kind:         model.EventInitial,
		ToLocationID: &locationID,
		ActedBy:      createdBy,
		Notes:        "Item registered",
	})
	if err != nil {
		return nil, fmt.Errorf("recording initial location: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing item: %w", err)
	}

	return GetItem(ctx, db, id)
}

func requireBox(ctx context.Context, q history.DBTX, id int64) error {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM boxes WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return fmt.Errorf("box %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("checking box: %w", err)
	}
	return nil
}

var itemColumns = []string{
	"i.id", "i.code", "i.title", "i.platform", "i.item_type", "i.condition",
	"i.is_complete", "i.is_functional", "i.description", "i.box_id",
	"i.current_location_id", "i.is_on_floor", "i.is_public_visible", "i.status",
	"i.image_mime", "i.created_at", "i.updated_at",
	"l.id", "l.name", "l.category", "l.description", "l.created_at", "l.updated_at",
}

func newItemSelect() *sqlbuilder.SelectBuilder {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(itemColumns...)
	sb.From("items i")
	sb.Join("locations l", "l.id = i.current_location_id")
	return sb
}

func scanItem(s interface{ Scan(...any) error }) (*model.Item, error) {
	item := &model.Item{CurrentLocation: &model.Location{}}
	loc := item.CurrentLocation
	var imageMime sql.NullString
	err := s.Scan(&item.ID, &item.Code, &item.Title, &item.Platform, &item.ItemType, &item.Condition,
		&item.IsComplete, &item.IsFunctional, &item.Description, &item.BoxID,
		&item.CurrentLocationID, &item.IsOnFloor, &item.IsPublicVisible, &item.Status,
		&imageMime, &item.CreatedAt, &item.UpdatedAt,
		&loc.ID, &loc.Name, &loc.Category, &loc.Description, &loc.CreatedAt, &loc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	item.ImageMime = imageMime.String
	return item, nil
}

// GetItem returns an item by ID, including archived ones.
func GetItem(ctx context.Context, db *sql.DB, id int64) (*model.Item, error) {
	sb := newItemSelect()
	sb.Where(sb.Equal("i.id", id))
	query, args := sb.Build()

	item, err := scanItem(db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return item, nil
}

// GetItemByCode returns an item by its unique code.
func GetItemByCode(ctx context.Context, db *sql.DB, code string) (*model.Item, error) {
	sb := newItemSelect()
	sb.Where(sb.Equal("i.code", code))
	query, args := sb.Build()

	item, err := scanItem(db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting item by code: %w", err)
	}
	return item, nil
}

// ItemFilter narrows ListItems. Zero values do not filter.
type ItemFilter struct {
	Platform   string
	OnFloor    *bool
	Search     string
	LocationID int64
	BoxID      int64
	Status     string
	PublicOnly bool
	Limit      int
	Offset     int
}

func (f ItemFilter) apply(sb *sqlbuilder.SelectBuilder) {
	if f.PublicOnly {
		sb.Where(sb.Equal("i.is_public_visible", true))
	}
	if f.Platform != "" {
		sb.Where(sb.Equal("i.platform", f.Platform))
	}
	if f.OnFloor != nil {
		sb.Where(sb.Equal("i.is_on_floor", *f.OnFloor))
	}
	if f.LocationID > 0 {
		sb.Where(sb.Equal("i.current_location_id", f.LocationID))
	}
	if f.BoxID > 0 {
		sb.Where(sb.Equal("i.box_id", f.BoxID))
	}
	if f.Status != "" {
		sb.Where(sb.Equal("i.status", f.Status))
	}
	if f.Search != "" {
		pattern := "%" + f.Search + "%"
		sb.Where(sb.Or(
			sb.Like("i.title", pattern),
			sb.Like("i.description", pattern),
			sb.Like("i.code", pattern),
		))
	}
}

// ListItems returns items matching f ordered by title, plus the total number
// of matches ignoring Limit and Offset.
func ListItems(ctx context.Context, db *sql.DB, f ItemFilter) ([]model.Item, int, error) {
	cb := sqlbuilder.SQLite.NewSelectBuilder()
	cb.Select("COUNT(*)")
	cb.From("items i")
	f.apply(cb)
	countQuery, countArgs := cb.Build()

	var total int
	if err := db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting items: %w", err)
	}

	sb := newItemSelect()
	f.apply(sb)
	sb.OrderBy("i.title", "i.id")
	if f.Limit > 0 {
		sb.Limit(f.Limit)
		sb.Offset(f.Offset)
	}
	query, args := sb.Build()

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, *item)
	}
	return items, total, rows.Err()
}

// UpdateItem updates an item's descriptive fields and box.
// Location fields are only ever written from history.
func UpdateItem(ctx context.Context, db *sql.DB, id int64, details model.ItemDetails, boxID *int64) error {
	details = details.WithDefaults()

	if boxID != nil {
		if err := requireBox(ctx, db, *boxID); err != nil {
			return err
		}
	}

	result, err := db.ExecContext(ctx,
		`UPDATE items SET title = ?, platform = ?, item_type = ?, condition = ?, is_complete = ?,
		                  is_functional = ?, description = ?, box_id = ?, updated_at = ?
		 WHERE id = ?`,
		details.Title, details.Platform, details.ItemType, details.Condition, details.IsComplete,
		details.IsFunctional, details.Description, boxID, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating item: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("item %d: %w", id, model.ErrNotFound)
	}
	return nil
}

// SetItemVisibility shows or hides an item in the public catalogue.
// Hiding is how items are archived; their history is kept.
func SetItemVisibility(ctx context.Context, db *sql.DB, id int64, visible bool) error {
	result, err := db.ExecContext(ctx,
		`UPDATE items SET is_public_visible = ?, updated_at = ? WHERE id = ?`,
		visible, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("setting item visibility: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("item %d: %w", id, model.ErrNotFound)
	}
	return nil
}

// SetItemImage stores an item's photo and its catalogue thumbnail.
func SetItemImage(ctx context.Context, db *sql.DB, id int64, image, thumbnail []byte, mime string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE items SET image = ?, thumbnail = ?, image_mime = ?, updated_at = ? WHERE id = ?`,
		image, thumbnail, mime, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("setting item image: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("item %d: %w", id, model.ErrNotFound)
	}
	return nil
}

// GetItemImage returns an item's photo, or its thumbnail when thumb is set,
// with the MIME type. A nil slice means the item has no photo.
func GetItemImage(ctx context.Context, db *sql.DB, id int64, thumb bool) ([]byte, string, error) {
	column := "image"
	if thumb {
		column = "thumbnail"
	}

	var image []byte
	var mime sql.NullString
	err := db.QueryRowContext(ctx,
		`SELECT `+column+`, image_mime FROM items WHERE id = ?`, id,
	).Scan(&image, &mime)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("getting item image: %w", err)
	}
	return image, mime.String, nil
}

// VerifyItemLocation records that the item was seen at locationID.
func VerifyItemLocation(ctx context.Context, db *sql.DB, itemID, locationID int64, userID *int64, notes string) (*model.HistoryEvent, error) {
	return appendLocationEvent(ctx, db, model.EventVerified, itemID, locationID, userID, notes)
}

// CorrectItemLocation records an administrative fix of the item's location.
func CorrectItemLocation(ctx context.Context, db *sql.DB, itemID, locationID int64, userID *int64, notes string) (*model.HistoryEvent, error) {
	return appendLocationEvent(ctx, db, model.EventLocationCorrection, itemID, locationID, userID, notes)
}

// appendLocationEvent appends a location-changing event from the item's
// current snapshot location. Items in transit must arrive first.
func appendLocationEvent(ctx context.Context, db *sql.DB, kind model.EventKind, itemID, locationID int64, userID *int64, notes string) (*model.HistoryEvent, error) {
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

	id, err := history.Append(ctx, tx, history.NewEvent{
		ItemID:         itemID,
		Kind:           kind,
		FromLocationID: &fromID,
		ToLocationID:   &locationID,
		ActedBy:        userID,
		Notes:          notes,
	})
	if err != nil {
		return nil, err
	}

	ev, err := history.GetEvent(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing %s event: %w", kind, err)
	}
	return ev, nil
}
