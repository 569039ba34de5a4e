package history

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/vitrina/internal/db"
	"github.com/erazemk/vitrina/internal/metrics"
	"github.com/erazemk/vitrina/internal/model"
)

var base = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func ptr(v int64) *int64 { return &v }

func createLocation(t *testing.T, database *sql.DB, name, category string) int64 {
	t.Helper()
	res, err := database.Exec("INSERT INTO locations (name, category) VALUES (?, ?)", name, category)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

// createItem inserts a bare item row without any history.
func createItem(t *testing.T, database *sql.DB, code string, locationID int64) int64 {
	t.Helper()
	res, err := database.Exec(
		"INSERT INTO items (code, title, current_location_id) VALUES (?, ?, ?)",
		code, "Item "+code, locationID,
	)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func appendEvent(t *testing.T, database *sql.DB, ev NewEvent) int64 {
	t.Helper()
	stored, err := AppendEvent(context.Background(), database, ev)
	require.NoError(t, err)
	return stored.ID
}

type snapshot struct {
	LocationID int64
	OnFloor    bool
}

func readSnapshot(t *testing.T, database *sql.DB, itemID int64) snapshot {
	t.Helper()
	var s snapshot
	err := database.QueryRow("SELECT current_location_id, is_on_floor FROM items WHERE id = ?", itemID).
		Scan(&s.LocationID, &s.OnFloor)
	require.NoError(t, err)
	return s
}

func TestResolveNoEvents(t *testing.T) {
	database := db.NewTestDB(t)
	loc := createLocation(t, database, "Storage A", model.LocationStorage)
	item := createItem(t, database, "G-1", loc)

	got, err := ResolveCurrentLocation(context.Background(), database, item)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestResolveUnknownItem(t *testing.T) {
	database := db.NewTestDB(t)

	got, err := ResolveCurrentLocation(context.Background(), database, 999)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestResolveLatestWins(t *testing.T) {
	database := db.NewTestDB(t)
	storage := createLocation(t, database, "Storage A", model.LocationStorage)
	floor := createLocation(t, database, "Main Floor", model.LocationFloor)
	item := createItem(t, database, "G-1", storage)

	appendEvent(t, database, NewEvent{ItemID: item, Kind: model.EventInitial, ToLocationID: ptr(storage), CreatedAt: base})
	appendEvent(t, database, NewEvent{ItemID: item, Kind: model.EventArrived, FromLocationID: ptr(storage), ToLocationID: ptr(floor), CreatedAt: base.Add(time.Hour)})

	got, err := ResolveCurrentLocation(context.Background(), database, item)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, floor, got.ID)
	assert.True(t, got.IsFloor())
}

func TestResolveOutOfOrderTimestamps(t *testing.T) {
	database := db.NewTestDB(t)
	storage := createLocation(t, database, "Storage A", model.LocationStorage)
	floor := createLocation(t, database, "Main Floor", model.LocationFloor)
	item := createItem(t, database, "G-1", storage)

	// Inserted later but stamped earlier: must not win.
	appendEvent(t, database, NewEvent{ItemID: item, Kind: model.EventArrived, ToLocationID: ptr(floor), CreatedAt: base.Add(2 * time.Hour)})
	appendEvent(t, database, NewEvent{ItemID: item, Kind: model.EventVerified, ToLocationID: ptr(storage), CreatedAt: base.Add(time.Hour)})

	got, err := ResolveCurrentLocation(context.Background(), database, item)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, floor, got.ID)
	assert.Equal(t, floor, readSnapshot(t, database, item).LocationID)
}

func TestResolveSameTimestampUsesSequence(t *testing.T) {
	database := db.NewTestDB(t)
	a := createLocation(t, database, "Storage A", model.LocationStorage)
	b := createLocation(t, database, "Storage B", model.LocationStorage)
	item := createItem(t, database, "G-1", a)

	appendEvent(t, database, NewEvent{ItemID: item, Kind: model.EventInitial, ToLocationID: ptr(a), CreatedAt: base})
	appendEvent(t, database, NewEvent{ItemID: item, Kind: model.EventLocationCorrection, ToLocationID: ptr(b), CreatedAt: base})

	got, err := ResolveCurrentLocation(context.Background(), database, item)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, b, got.ID)
}

func TestWorkflowEventsDoNotMoveItem(t *testing.T) {
	database := db.NewTestDB(t)
	storage := createLocation(t, database, "Storage A", model.LocationStorage)
	floor := createLocation(t, database, "Main Floor", model.LocationFloor)
	item := createItem(t, database, "G-1", storage)

	appendEvent(t, database, NewEvent{ItemID: item, Kind: model.EventInitial, ToLocationID: ptr(storage), CreatedAt: base})
	for i, kind := range model.WorkflowKinds {
		appendEvent(t, database, NewEvent{
			ItemID:         item,
			Kind:           kind,
			FromLocationID: ptr(storage),
			ToLocationID:   ptr(floor),
			CreatedAt:      base.Add(time.Duration(i+1) * time.Minute),
		})
	}

	got, err := ResolveCurrentLocation(context.Background(), database, item)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, storage, got.ID)
	assert.Equal(t, snapshot{LocationID: storage, OnFloor: false}, readSnapshot(t, database, item))
}

func TestResolveOnlyWorkflowEvents(t *testing.T) {
	database := db.NewTestDB(t)
	storage := createLocation(t, database, "Storage A", model.LocationStorage)
	floor := createLocation(t, database, "Main Floor", model.LocationFloor)
	item := createItem(t, database, "G-1", storage)

	appendEvent(t, database, NewEvent{ItemID: item, Kind: model.EventMoveRequested, FromLocationID: ptr(storage), ToLocationID: ptr(floor)})

	got, err := ResolveCurrentLocation(context.Background(), database, item)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestResolveMissingDestination(t *testing.T) {
	database := db.NewTestDB(t)
	storage := createLocation(t, database, "Storage A", model.LocationStorage)
	floor := createLocation(t, database, "Main Floor", model.LocationFloor)
	item := createItem(t, database, "G-1", storage)

	appendEvent(t, database, NewEvent{ItemID: item, Kind: model.EventInitial, ToLocationID: ptr(floor), CreatedAt: base})

	// Append refuses this, so write the corrupt row directly.
	_, err := database.Exec(
		"INSERT INTO history_events (item_id, kind, created_at) VALUES (?, ?, ?)",
		item, string(model.EventVerified), base.Add(time.Hour),
	)
	require.NoError(t, err)

	before := testutil.ToFloat64(metrics.IntegrityWarnings)

	got, err := ResolveCurrentLocation(context.Background(), database, item)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.IntegrityWarnings))
}

func TestAppendValidation(t *testing.T) {
	database := db.NewTestDB(t)
	storage := createLocation(t, database, "Storage A", model.LocationStorage)
	item := createItem(t, database, "G-1", storage)
	ctx := context.Background()

	tests := []struct {
		name string
		ev   NewEvent
		want error
	}{
		{"unknown kind", NewEvent{ItemID: item, Kind: "TELEPORTED", ToLocationID: ptr(storage)}, model.ErrInvalidInput},
		{"location change without destination", NewEvent{ItemID: item, Kind: model.EventArrived}, model.ErrInvalidInput},
		{"unknown item", NewEvent{ItemID: 999, Kind: model.EventInitial, ToLocationID: ptr(storage)}, model.ErrNotFound},
		{"unknown destination", NewEvent{ItemID: item, Kind: model.EventInitial, ToLocationID: ptr(999)}, model.ErrNotFound},
		{"unknown origin", NewEvent{ItemID: item, Kind: model.EventMoveRequested, FromLocationID: ptr(999), ToLocationID: ptr(storage)}, model.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := AppendEvent(ctx, database, tt.ev)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	history, err := ListItemHistory(ctx, database, item)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestAppendWorkflowEventWithoutLocations(t *testing.T) {
	database := db.NewTestDB(t)
	storage := createLocation(t, database, "Storage A", model.LocationStorage)
	item := createItem(t, database, "G-1", storage)

	stored, err := AppendEvent(context.Background(), database, NewEvent{ItemID: item, Kind: model.EventMoveRejected, Notes: "no room"})
	require.NoError(t, err)
	assert.Equal(t, model.EventMoveRejected, stored.Kind)
	assert.Nil(t, stored.ToLocationID)
	assert.Equal(t, "no room", stored.Notes)
}

// Storage A -> Main Floor, then a pending request back to Storage A.
func TestSnapshotFollowsHistory(t *testing.T) {
	database := db.NewTestDB(t)
	storage := createLocation(t, database, "Storage A", model.LocationStorage)
	floor := createLocation(t, database, "Main Floor", model.LocationFloor)
	item := createItem(t, database, "G-1", storage)

	appendEvent(t, database, NewEvent{ItemID: item, Kind: model.EventInitial, ToLocationID: ptr(storage), CreatedAt: base})
	assert.Equal(t, snapshot{LocationID: storage, OnFloor: false}, readSnapshot(t, database, item))

	appendEvent(t, database, NewEvent{ItemID: item, Kind: model.EventArrived, FromLocationID: ptr(storage), ToLocationID: ptr(floor), CreatedAt: base.Add(time.Hour)})
	assert.Equal(t, snapshot{LocationID: floor, OnFloor: true}, readSnapshot(t, database, item))

	appendEvent(t, database, NewEvent{ItemID: item, Kind: model.EventMoveRequested, FromLocationID: ptr(floor), ToLocationID: ptr(storage), CreatedAt: base.Add(2 * time.Hour)})
	assert.Equal(t, snapshot{LocationID: floor, OnFloor: true}, readSnapshot(t, database, item))
}

func TestAppendSurvivesSyncFailure(t *testing.T) {
	database := db.NewTestDB(t)
	storage := createLocation(t, database, "Storage A", model.LocationStorage)
	floor := createLocation(t, database, "Main Floor", model.LocationFloor)
	item := createItem(t, database, "G-1", storage)

	appendEvent(t, database, NewEvent{ItemID: item, Kind: model.EventInitial, ToLocationID: ptr(storage), CreatedAt: base})

	_, err := database.Exec(`CREATE TRIGGER fail_snapshot BEFORE UPDATE OF current_location_id ON items
		BEGIN SELECT RAISE(ABORT, 'snapshot write refused'); END`)
	require.NoError(t, err)

	failed := metrics.SnapshotSyncs.WithLabelValues(metrics.ResultFailed)
	before := testutil.ToFloat64(failed)

	stored, err := AppendEvent(context.Background(), database, NewEvent{
		ItemID: item, Kind: model.EventArrived, FromLocationID: ptr(storage), ToLocationID: ptr(floor), CreatedAt: base.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(failed))

	// The event is committed while the snapshot is stale.
	history, err := ListItemHistory(context.Background(), database, item)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, stored.ID, history[1].ID)
	assert.Equal(t, snapshot{LocationID: storage, OnFloor: false}, readSnapshot(t, database, item))

	_, err = database.Exec("DROP TRIGGER fail_snapshot")
	require.NoError(t, err)

	loc, err := RebuildSnapshot(context.Background(), database, item)
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Equal(t, snapshot{LocationID: floor, OnFloor: true}, readSnapshot(t, database, item))
}

func TestHistoryIsAppendOnly(t *testing.T) {
	database := db.NewTestDB(t)
	storage := createLocation(t, database, "Storage A", model.LocationStorage)
	item := createItem(t, database, "G-1", storage)
	id := appendEvent(t, database, NewEvent{ItemID: item, Kind: model.EventInitial, ToLocationID: ptr(storage)})

	_, err := database.Exec("UPDATE history_events SET notes = 'edited' WHERE id = ?", id)
	assert.Error(t, err)

	_, err = database.Exec("DELETE FROM history_events WHERE id = ?", id)
	assert.Error(t, err)
}

func TestSyncUnknownLeavesSnapshot(t *testing.T) {
	database := db.NewTestDB(t)
	storage := createLocation(t, database, "Storage A", model.LocationStorage)
	item := createItem(t, database, "G-1", storage)

	loc, err := SyncItemSnapshot(context.Background(), database, item)
	require.NoError(t, err)
	assert.Nil(t, loc)
	assert.Equal(t, snapshot{LocationID: storage, OnFloor: false}, readSnapshot(t, database, item))
}

func TestRebuildSnapshot(t *testing.T) {
	database := db.NewTestDB(t)
	storage := createLocation(t, database, "Storage A", model.LocationStorage)
	floor := createLocation(t, database, "Main Floor", model.LocationFloor)
	item := createItem(t, database, "G-1", storage)
	ctx := context.Background()

	appendEvent(t, database, NewEvent{ItemID: item, Kind: model.EventInitial, ToLocationID: ptr(floor), CreatedAt: base})

	_, err := database.Exec("UPDATE items SET current_location_id = ?, is_on_floor = 0 WHERE id = ?", storage, item)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		loc, err := RebuildSnapshot(ctx, database, item)
		require.NoError(t, err)
		require.NotNil(t, loc)
		assert.Equal(t, floor, loc.ID)
		assert.Equal(t, snapshot{LocationID: floor, OnFloor: true}, readSnapshot(t, database, item))
	}

	_, err = RebuildSnapshot(ctx, database, 999)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRebuildAllSnapshots(t *testing.T) {
	database := db.NewTestDB(t)
	storage := createLocation(t, database, "Storage A", model.LocationStorage)
	floor := createLocation(t, database, "Main Floor", model.LocationFloor)
	ctx := context.Background()

	a := createItem(t, database, "G-1", storage)
	b := createItem(t, database, "G-2", storage)
	createItem(t, database, "G-3", storage)

	appendEvent(t, database, NewEvent{ItemID: a, Kind: model.EventInitial, ToLocationID: ptr(floor)})
	appendEvent(t, database, NewEvent{ItemID: b, Kind: model.EventInitial, ToLocationID: ptr(storage)})

	_, err := database.Exec("UPDATE items SET current_location_id = ?, is_on_floor = 0", storage)
	require.NoError(t, err)

	report, err := RebuildAllSnapshots(ctx, database)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Updated)
	assert.Equal(t, 1, report.Unknown)
	assert.Empty(t, report.Failures)
	assert.Equal(t, snapshot{LocationID: floor, OnFloor: true}, readSnapshot(t, database, a))

	again, err := RebuildAllSnapshots(ctx, database)
	require.NoError(t, err)
	assert.Equal(t, report, again)
}

func TestListItemHistory(t *testing.T) {
	database := db.NewTestDB(t)
	storage := createLocation(t, database, "Storage A", model.LocationStorage)
	floor := createLocation(t, database, "Main Floor", model.LocationFloor)
	item := createItem(t, database, "G-1", storage)
	ctx := context.Background()

	res, err := database.Exec("INSERT INTO users (email, name, password_hash, role) VALUES ('ana@example.com', 'Ana', 'x', 'admin')")
	require.NoError(t, err)
	userID, _ := res.LastInsertId()

	appendEvent(t, database, NewEvent{ItemID: item, Kind: model.EventArrived, FromLocationID: ptr(storage), ToLocationID: ptr(floor), ActedBy: ptr(userID), CreatedAt: base.Add(time.Hour)})
	appendEvent(t, database, NewEvent{ItemID: item, Kind: model.EventInitial, ToLocationID: ptr(storage), CreatedAt: base})

	history, err := ListItemHistory(ctx, database, item)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.EventInitial, history[0].Kind)
	assert.Equal(t, model.EventArrived, history[1].Kind)
	assert.Equal(t, "Storage A", history[1].FromLocationName)
	assert.Equal(t, "Main Floor", history[1].ToLocationName)
	assert.Equal(t, "Ana", history[1].ActedByName)
}

func TestIsInTransit(t *testing.T) {
	database := db.NewTestDB(t)
	storage := createLocation(t, database, "Storage A", model.LocationStorage)
	floor := createLocation(t, database, "Main Floor", model.LocationFloor)
	item := createItem(t, database, "G-1", storage)
	ctx := context.Background()

	inTransit, err := IsInTransit(ctx, database, item)
	require.NoError(t, err)
	assert.False(t, inTransit)

	appendEvent(t, database, NewEvent{ItemID: item, Kind: model.EventInitial, ToLocationID: ptr(storage), CreatedAt: base})
	appendEvent(t, database, NewEvent{ItemID: item, Kind: model.EventInTransit, FromLocationID: ptr(storage), ToLocationID: ptr(floor), CreatedAt: base.Add(time.Hour)})

	inTransit, err = IsInTransit(ctx, database, item)
	require.NoError(t, err)
	assert.True(t, inTransit)

	// Reviewing another request while the item travels changes nothing.
	appendEvent(t, database, NewEvent{ItemID: item, Kind: model.EventMoveRejected, FromLocationID: ptr(storage), ToLocationID: ptr(floor), CreatedAt: base.Add(90 * time.Minute)})

	inTransit, err = IsInTransit(ctx, database, item)
	require.NoError(t, err)
	assert.True(t, inTransit)

	appendEvent(t, database, NewEvent{ItemID: item, Kind: model.EventArrived, FromLocationID: ptr(storage), ToLocationID: ptr(floor), CreatedAt: base.Add(2 * time.Hour)})

	inTransit, err = IsInTransit(ctx, database, item)
	require.NoError(t, err)
	assert.False(t, inTransit)
}

func TestConcurrentAppendsConverge(t *testing.T) {
	database, err := db.Open(filepath.Join(t.TempDir(), "vitrina.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.Migrate(database))

	var locations []int64
	for _, name := range []string{"Storage A", "Storage B", "Main Floor", "Event Hall"} {
		category := model.LocationStorage
		if name == "Main Floor" {
			category = model.LocationFloor
		}
		locations = append(locations, createLocation(t, database, name, category))
	}
	item := createItem(t, database, "G-1", locations[0])

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := AppendEvent(context.Background(), database, NewEvent{
				ItemID:       item,
				Kind:         model.EventArrived,
				ToLocationID: ptr(locations[i%len(locations)]),
				CreatedAt:    base.Add(time.Duration((i*7)%12) * time.Minute),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	want, err := ResolveCurrentLocation(context.Background(), database, item)
	require.NoError(t, err)
	require.NotNil(t, want)
	assert.Equal(t, snapshot{LocationID: want.ID, OnFloor: want.IsFloor()}, readSnapshot(t, database, item))
}
