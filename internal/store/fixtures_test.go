package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/erazemk/vitrina/internal/db"
	"github.com/erazemk/vitrina/internal/model"
)

type fixture struct {
	db        *sql.DB
	storage   *model.Location
	floor     *model.Location
	admin     *model.User
	volunteer *model.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database := db.NewTestDB(t)
	ctx := context.Background()

	storage, err := CreateLocation(ctx, database, "Storage A", model.LocationStorage, "")
	if err != nil {
		t.Fatalf("CreateLocation: %v", err)
	}
	floor, err := CreateLocation(ctx, database, "Main Floor", model.LocationFloor, "")
	if err != nil {
		t.Fatalf("CreateLocation: %v", err)
	}
	admin, err := CreateUser(ctx, database, "admin@example.com", "Admin", "hash", model.RoleAdmin)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	volunteer, err := CreateUser(ctx, database, "vol@example.com", "Vol", "hash", model.RoleVolunteer)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	return &fixture{db: database, storage: storage, floor: floor, admin: admin, volunteer: volunteer}
}

func (f *fixture) item(t *testing.T, code string, loc *model.Location) *model.Item {
	t.Helper()
	item, err := CreateItem(context.Background(), f.db, code, model.ItemDetails{Title: "Item " + code}, nil, loc.ID, &f.admin.ID)
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	return item
}
