package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/vitrina/internal/db"
	"github.com/erazemk/vitrina/internal/model"
	"github.com/erazemk/vitrina/internal/store"
)

const (
	testJWTSecret = "test-secret"
	testPassword  = "password123"
)

func setupTestServer(t *testing.T) (*httptest.Server, *sql.DB, string) {
	t.Helper()
	database := db.NewTestDB(t)
	router := NewRouter(database, testJWTSecret)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	createTestUser(t, database, "admin@example.com", model.RoleAdmin)
	token := login(t, server, "admin@example.com", testPassword)

	return server, database, token
}

func createTestUser(t *testing.T, database *sql.DB, email, role string) *model.User {
	t.Helper()
	hash, _ := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	user, err := store.CreateUser(context.Background(), database, email, email, string(hash), role)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return user
}

func login(t *testing.T, server *httptest.Server, email, password string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	resp, err := http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login failed: %d", resp.StatusCode)
	}

	var loginResp loginResponse
	json.NewDecoder(resp.Body).Decode(&loginResp)
	if loginResp.Token == "" {
		t.Fatal("empty token from login")
	}
	return loginResp.Token
}

func authRequest(method, url, token string, body any) (*http.Request, error) {
	var bodyReader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(data)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// call sends a JSON request and decodes the response into out when out is
// not nil. It returns the status code.
func call(t *testing.T, method, url, token string, body, out any) int {
	t.Helper()
	req, err := authRequest(method, url, token, body)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s %s response: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

func createLocation(t *testing.T, server *httptest.Server, token, name, category string) model.Location {
	t.Helper()
	var loc model.Location
	status := call(t, "POST", server.URL+"/api/locations", token,
		map[string]string{"name": name, "category": category}, &loc)
	if status != http.StatusCreated {
		t.Fatalf("create location %s: expected 201, got %d", name, status)
	}
	return loc
}

func createItem(t *testing.T, server *httptest.Server, token, code, title string, locationID int64) model.Item {
	t.Helper()
	var item model.Item
	status := call(t, "POST", server.URL+"/api/items", token, map[string]any{
		"code":        code,
		"title":       title,
		"platform":    "Amiga",
		"location_id": locationID,
	}, &item)
	if status != http.StatusCreated {
		t.Fatalf("create item %s: expected 201, got %d", code, status)
	}
	return item
}

func TestLoginEndpoint(t *testing.T) {
	server, _, _ := setupTestServer(t)

	// Test invalid credentials.
	body, _ := json.Marshal(map[string]string{"email": "admin@example.com", "password": "wrong"})
	resp, _ := http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad password, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Email is required and must look like one.
	body, _ = json.Marshal(map[string]string{"email": "admin", "password": testPassword})
	resp, _ = http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed email, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Emails are case-insensitive.
	login(t, server, "Admin@Example.com", testPassword)
}

func TestLogoutRevokesToken(t *testing.T) {
	server, _, token := setupTestServer(t)

	if status := call(t, "POST", server.URL+"/api/auth/logout", token, nil, nil); status != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", status)
	}
	if status := call(t, "GET", server.URL+"/api/items", token, nil, nil); status != http.StatusUnauthorized {
		t.Errorf("expected 401 with revoked token, got %d", status)
	}
}

func TestChangePassword(t *testing.T) {
	server, _, token := setupTestServer(t)

	status := call(t, "PUT", server.URL+"/api/auth/password", token, map[string]string{
		"current_password": testPassword,
		"new_password":     "short",
	}, nil)
	if status != http.StatusBadRequest {
		t.Errorf("expected 400 for short password, got %d", status)
	}

	status = call(t, "PUT", server.URL+"/api/auth/password", token, map[string]string{
		"current_password": testPassword,
		"new_password":     "a-much-longer-one",
	}, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	login(t, server, "admin@example.com", "a-much-longer-one")
}

func TestInactiveUserRejected(t *testing.T) {
	server, database, _ := setupTestServer(t)
	ctx := context.Background()

	vol := createTestUser(t, database, "vol@example.com", model.RoleVolunteer)
	volToken := login(t, server, "vol@example.com", testPassword)

	if status := call(t, "GET", server.URL+"/api/items", volToken, nil, nil); status != http.StatusOK {
		t.Fatalf("expected 200 before deactivation, got %d", status)
	}

	err := store.UpdateUser(ctx, database, vol.ID, store.UserUpdate{Name: vol.Name, Role: vol.Role, IsActive: false})
	if err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}

	if status := call(t, "GET", server.URL+"/api/items", volToken, nil, nil); status != http.StatusUnauthorized {
		t.Errorf("expected 401 after deactivation, got %d", status)
	}

	body, _ := json.Marshal(map[string]string{"email": "vol@example.com", "password": testPassword})
	resp, _ := http.Post(server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 login for inactive user, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestUnauthenticatedAccess(t *testing.T) {
	database := db.NewTestDB(t)
	router := NewRouter(database, testJWTSecret)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	resp, _ := http.Get(server.URL + "/api/items")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for unauthenticated request, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, _ = http.Get(server.URL + "/api/public/items")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 for public catalogue, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRoleBasedAccess(t *testing.T) {
	server, database, _ := setupTestServer(t)

	createTestUser(t, database, "vol@example.com", model.RoleVolunteer)
	volToken := login(t, server, "vol@example.com", testPassword)

	// Volunteers cannot create items (admin required).
	status := call(t, "POST", server.URL+"/api/items", volToken, map[string]any{
		"code": "X", "title": "Test", "location_id": 1,
	}, nil)
	if status != http.StatusForbidden {
		t.Errorf("expected 403 for volunteer creating item, got %d", status)
	}

	// Volunteers cannot access /api/users.
	if status := call(t, "GET", server.URL+"/api/users", volToken, nil, nil); status != http.StatusForbidden {
		t.Errorf("expected 403 for volunteer accessing users, got %d", status)
	}

	// Volunteers cannot review requests.
	if status := call(t, "POST", server.URL+"/api/movements/1/approve", volToken, nil, nil); status != http.StatusForbidden {
		t.Errorf("expected 403 for volunteer approving, got %d", status)
	}
}

func TestLocationsAPI(t *testing.T) {
	server, _, token := setupTestServer(t)

	status := call(t, "POST", server.URL+"/api/locations", token,
		map[string]string{"name": "Attic", "category": "ROOF"}, nil)
	if status != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown category, got %d", status)
	}

	storage := createLocation(t, server, token, "Storage A", model.LocationStorage)
	createLocation(t, server, token, "Main Floor", model.LocationFloor)

	status = call(t, "POST", server.URL+"/api/locations", token,
		map[string]string{"name": "Storage A", "category": model.LocationStorage}, nil)
	if status != http.StatusConflict {
		t.Errorf("expected 409 for duplicate name, got %d", status)
	}

	var floors []model.Location
	call(t, "GET", server.URL+"/api/locations?category=FLOOR", token, nil, &floors)
	if len(floors) != 1 || floors[0].Name != "Main Floor" {
		t.Errorf("expected only Main Floor, got %+v", floors)
	}

	createItem(t, server, token, "AMG-1", "Amiga 500", storage.ID)

	url := fmt.Sprintf("%s/api/locations/%d", server.URL, storage.ID)
	if status := call(t, "DELETE", url, token, nil, nil); status != http.StatusConflict {
		t.Errorf("expected 409 deleting location in use, got %d", status)
	}
	if status := call(t, "DELETE", server.URL+"/api/locations/999", token, nil, nil); status != http.StatusNotFound {
		t.Errorf("expected 404 deleting unknown location, got %d", status)
	}
}

func TestItemsAPIFlow(t *testing.T) {
	server, _, token := setupTestServer(t)
	storage := createLocation(t, server, token, "Storage A", model.LocationStorage)
	floor := createLocation(t, server, token, "Main Floor", model.LocationFloor)

	item := createItem(t, server, token, "AMG-1", "Amiga 500", storage.ID)
	if item.CurrentLocationID != storage.ID || item.IsOnFloor {
		t.Errorf("new item snapshot = %d/%v", item.CurrentLocationID, item.IsOnFloor)
	}

	// Updates never touch location.
	var updated model.Item
	status := call(t, "PUT", fmt.Sprintf("%s/api/items/%d", server.URL, item.ID), token, map[string]any{
		"title":     "Amiga 500 Plus",
		"condition": model.ConditionFair,
	}, &updated)
	if status != http.StatusOK {
		t.Fatalf("update: expected 200, got %d", status)
	}
	if updated.Title != "Amiga 500 Plus" || updated.CurrentLocationID != storage.ID {
		t.Errorf("unexpected update result: %+v", updated)
	}

	// Correction moves the snapshot.
	url := fmt.Sprintf("%s/api/items/%d/correct-location", server.URL, item.ID)
	var ev model.HistoryEvent
	status = call(t, "POST", url, token, map[string]any{"location_id": floor.ID, "notes": "found it"}, &ev)
	if status != http.StatusCreated {
		t.Fatalf("correct-location: expected 201, got %d", status)
	}
	if ev.Kind != model.EventLocationCorrection {
		t.Errorf("expected LOCATION_CORRECTION, got %s", ev.Kind)
	}

	var loc itemLocationResponse
	call(t, "GET", fmt.Sprintf("%s/api/items/%d/location", server.URL, item.ID), token, nil, &loc)
	if loc.Location == nil || loc.Location.ID != floor.ID || !loc.InSync {
		t.Errorf("unexpected location response: %+v", loc)
	}

	var events []model.HistoryEvent
	call(t, "GET", fmt.Sprintf("%s/api/items/%d/history", server.URL, item.ID), token, nil, &events)
	if len(events) != 2 || events[0].Kind != model.EventInitial {
		t.Errorf("expected INITIAL then correction, got %+v", events)
	}

	if status := call(t, "GET", server.URL+"/api/items/999/history", token, nil, nil); status != http.StatusNotFound {
		t.Errorf("expected 404 for unknown item history, got %d", status)
	}
}

func TestPublicCatalogue(t *testing.T) {
	server, _, token := setupTestServer(t)
	storage := createLocation(t, server, token, "Storage A", model.LocationStorage)
	floor := createLocation(t, server, token, "Main Floor", model.LocationFloor)

	createItem(t, server, token, "AMG-1", "Amiga 500", floor.ID)
	createItem(t, server, token, "C64-1", "Commodore 64", storage.ID)
	hidden := createItem(t, server, token, "ZX-1", "ZX Spectrum", floor.ID)

	if status := call(t, "DELETE", fmt.Sprintf("%s/api/items/%d", server.URL, hidden.ID), token, nil, nil); status != http.StatusOK {
		t.Fatalf("archive: expected 200, got %d", status)
	}

	tests := []struct {
		query string
		want  int
	}{
		{"", 2},
		{"?is_on_floor=yes", 1},
		{"?is_on_floor=0", 1},
		{"?is_on_floor=maybe", 2},
		{"?search=commodore", 1},
		{"?platform=Amiga", 2},
		{"?platform=Atari", 0},
	}
	for _, tt := range tests {
		var page publicPage
		status := call(t, "GET", server.URL+"/api/public/items"+tt.query, "", nil, &page)
		if status != http.StatusOK {
			t.Errorf("%q: expected 200, got %d", tt.query, status)
			continue
		}
		if page.Total != tt.want || len(page.Items) != tt.want {
			t.Errorf("%q: expected %d items, got total %d, len %d", tt.query, tt.want, page.Total, len(page.Items))
		}
	}

	var page publicPage
	call(t, "GET", server.URL+"/api/public/items?page=2&page_size=1", "", nil, &page)
	if page.Total != 2 || len(page.Items) != 1 || page.PageSize != 1 || page.Page != 2 {
		t.Errorf("unexpected second page: %+v", page)
	}

	if status := call(t, "GET", fmt.Sprintf("%s/api/public/items/%d", server.URL, hidden.ID), "", nil, nil); status != http.StatusNotFound {
		t.Errorf("expected 404 for hidden item, got %d", status)
	}
}

func TestMovementAPIFlow(t *testing.T) {
	server, database, token := setupTestServer(t)
	storage := createLocation(t, server, token, "Storage A", model.LocationStorage)
	floor := createLocation(t, server, token, "Main Floor", model.LocationFloor)
	item := createItem(t, server, token, "AMG-1", "Amiga 500", storage.ID)

	createTestUser(t, database, "vol@example.com", model.RoleVolunteer)
	volToken := login(t, server, "vol@example.com", testPassword)

	// Same-location requests are refused.
	status := call(t, "POST", server.URL+"/api/movements", volToken,
		map[string]any{"item_id": item.ID, "to_location_id": storage.ID}, nil)
	if status != http.StatusBadRequest {
		t.Errorf("expected 400 for same-location move, got %d", status)
	}

	var m model.MovementRequest
	status = call(t, "POST", server.URL+"/api/movements", volToken,
		map[string]any{"item_id": item.ID, "to_location_id": floor.ID, "notes": "for the exhibit"}, &m)
	if status != http.StatusCreated {
		t.Fatalf("create movement: expected 201, got %d", status)
	}
	if m.Status != model.MovementWaitingApproval || m.FromLocationID != storage.ID {
		t.Errorf("unexpected request: %+v", m)
	}

	base := fmt.Sprintf("%s/api/movements/%d", server.URL, m.ID)

	// Arrival before approval is an invalid transition.
	if status := call(t, "POST", base+"/complete-arrival", volToken, nil, nil); status != http.StatusConflict {
		t.Errorf("expected 409 completing unapproved request, got %d", status)
	}

	if status := call(t, "POST", base+"/approve", token, map[string]string{"comment": "ok"}, &m); status != http.StatusOK {
		t.Fatalf("approve: expected 200, got %d", status)
	}
	if m.Status != model.MovementApproved || m.AdminComment != "ok" {
		t.Errorf("unexpected approved request: %+v", m)
	}
	if status := call(t, "POST", base+"/approve", token, nil, nil); status != http.StatusConflict {
		t.Errorf("expected 409 approving twice, got %d", status)
	}

	// Approval alone does not move the item.
	var got model.Item
	call(t, "GET", fmt.Sprintf("%s/api/items/%d", server.URL, item.ID), token, nil, &got)
	if got.CurrentLocationID != storage.ID {
		t.Errorf("approval moved the item to %d", got.CurrentLocationID)
	}

	if status := call(t, "POST", base+"/start-transit", volToken, nil, nil); status != http.StatusOK {
		t.Fatalf("start-transit: expected 200, got %d", status)
	}
	if status := call(t, "POST", base+"/complete-arrival", volToken, nil, nil); status != http.StatusOK {
		t.Fatalf("complete-arrival: expected 200, got %d", status)
	}

	call(t, "GET", fmt.Sprintf("%s/api/items/%d", server.URL, item.ID), token, nil, &got)
	if got.CurrentLocationID != floor.ID || !got.IsOnFloor || got.Status != model.ItemStatusAvailable {
		t.Errorf("unexpected item after arrival: %+v", got)
	}

	var events []model.HistoryEvent
	call(t, "GET", fmt.Sprintf("%s/api/items/%d/history", server.URL, item.ID), volToken, nil, &events)
	want := []model.EventKind{
		model.EventInitial,
		model.EventMoveRequested,
		model.EventMoveApproved,
		model.EventInTransit,
		model.EventArrived,
	}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(events))
	}
	for i, kind := range want {
		if events[i].Kind != kind {
			t.Errorf("event %d: expected %s, got %s", i, kind, events[i].Kind)
		}
	}

	// A spent request cannot move the item again.
	if status := call(t, "POST", base+"/start-transit", volToken, nil, nil); status != http.StatusConflict {
		t.Errorf("expected 409 reusing request, got %d", status)
	}
}

func TestMovementVisibility(t *testing.T) {
	server, database, token := setupTestServer(t)
	storage := createLocation(t, server, token, "Storage A", model.LocationStorage)
	floor := createLocation(t, server, token, "Main Floor", model.LocationFloor)
	item := createItem(t, server, token, "AMG-1", "Amiga 500", storage.ID)

	createTestUser(t, database, "one@example.com", model.RoleVolunteer)
	createTestUser(t, database, "two@example.com", model.RoleVolunteer)
	oneToken := login(t, server, "one@example.com", testPassword)
	twoToken := login(t, server, "two@example.com", testPassword)

	var m model.MovementRequest
	call(t, "POST", server.URL+"/api/movements", oneToken,
		map[string]any{"item_id": item.ID, "to_location_id": floor.ID}, &m)

	var list []model.MovementRequest
	call(t, "GET", server.URL+"/api/movements", twoToken, nil, &list)
	if len(list) != 0 {
		t.Errorf("expected other volunteer to see no requests, got %d", len(list))
	}
	call(t, "GET", server.URL+"/api/movements?status=WAITING_APPROVAL", token, nil, &list)
	if len(list) != 1 {
		t.Errorf("expected admin to see 1 request, got %d", len(list))
	}

	base := fmt.Sprintf("%s/api/movements/%d", server.URL, m.ID)
	if status := call(t, "GET", base, twoToken, nil, nil); status != http.StatusNotFound {
		t.Errorf("expected 404 for another volunteer's request, got %d", status)
	}
	if status := call(t, "POST", base+"/cancel", twoToken, nil, nil); status != http.StatusNotFound {
		t.Errorf("expected 404 cancelling another volunteer's request, got %d", status)
	}
	if status := call(t, "POST", base+"/cancel", oneToken, nil, &m); status != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d", status)
	}
	if m.Status != model.MovementCancelled {
		t.Errorf("expected CANCELLED, got %s", m.Status)
	}
}

func TestBulkReviewAPI(t *testing.T) {
	server, database, token := setupTestServer(t)
	storage := createLocation(t, server, token, "Storage A", model.LocationStorage)
	floor := createLocation(t, server, token, "Main Floor", model.LocationFloor)
	createTestUser(t, database, "vol@example.com", model.RoleVolunteer)
	volToken := login(t, server, "vol@example.com", testPassword)

	var ids []int64
	for i := range 3 {
		item := createItem(t, server, token, fmt.Sprintf("IT-%d", i), "Item", storage.ID)
		var m model.MovementRequest
		call(t, "POST", server.URL+"/api/movements", volToken,
			map[string]any{"item_id": item.ID, "to_location_id": floor.ID}, &m)
		ids = append(ids, m.ID)
	}
	call(t, "POST", fmt.Sprintf("%s/api/movements/%d/reject", server.URL, ids[0]), token, nil, nil)

	var result map[string]int
	status := call(t, "POST", server.URL+"/api/movements/bulk", token,
		map[string]any{"ids": append(ids, 999), "action": "approve"}, &result)
	if status != http.StatusOK {
		t.Fatalf("bulk: expected 200, got %d", status)
	}
	if result["reviewed"] != 2 || result["skipped"] != 2 {
		t.Errorf("unexpected bulk result: %v", result)
	}

	status = call(t, "POST", server.URL+"/api/movements/bulk", token,
		map[string]any{"ids": ids, "action": "delete"}, nil)
	if status != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown action, got %d", status)
	}
}

func TestUsersAPI(t *testing.T) {
	server, _, token := setupTestServer(t)

	var user model.User
	status := call(t, "POST", server.URL+"/api/users", token, map[string]string{
		"email": "Vol@Example.com", "name": "Vol", "password": testPassword, "role": model.RoleVolunteer,
	}, &user)
	if status != http.StatusCreated {
		t.Fatalf("create user: expected 201, got %d", status)
	}
	if user.Email != "vol@example.com" {
		t.Errorf("expected lower-cased email, got %q", user.Email)
	}

	status = call(t, "POST", server.URL+"/api/users", token, map[string]string{
		"email": "vol@example.com", "password": testPassword, "role": model.RoleVolunteer,
	}, nil)
	if status != http.StatusConflict {
		t.Errorf("expected 409 for duplicate email, got %d", status)
	}

	status = call(t, "POST", server.URL+"/api/users", token, map[string]string{
		"email": "x@example.com", "password": testPassword, "role": "manager",
	}, nil)
	if status != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown role, got %d", status)
	}

	// The only admin cannot be demoted.
	var admins []model.User
	call(t, "GET", server.URL+"/api/users", token, nil, &admins)
	var adminID int64
	for _, u := range admins {
		if u.Role == model.RoleAdmin {
			adminID = u.ID
		}
	}
	status = call(t, "PUT", fmt.Sprintf("%s/api/users/%d", server.URL, adminID), token,
		map[string]string{"role": model.RoleVolunteer}, nil)
	if status != http.StatusConflict {
		t.Errorf("expected 409 demoting last admin, got %d", status)
	}

	url := fmt.Sprintf("%s/api/users/%d", server.URL, user.ID)
	if status := call(t, "PUT", url+"/password", token, map[string]string{"password": "new-password"}, nil); status != http.StatusOK {
		t.Errorf("reset password: expected 200, got %d", status)
	}
	login(t, server, "vol@example.com", "new-password")

	if status := call(t, "DELETE", url, token, nil, nil); status != http.StatusOK {
		t.Errorf("delete: expected 200, got %d", status)
	}
	if status := call(t, "DELETE", url, token, nil, nil); status != http.StatusNotFound {
		t.Errorf("second delete: expected 404, got %d", status)
	}
}

func TestItemImageAPI(t *testing.T) {
	server, _, token := setupTestServer(t)
	floor := createLocation(t, server, token, "Main Floor", model.LocationFloor)
	item := createItem(t, server, token, "AMG-1", "Amiga 500", floor.ID)

	img := image.NewRGBA(image.Rect(0, 0, 400, 300))
	for x := range 400 {
		img.Set(x, x%300, color.RGBA{R: 200, A: 255})
	}
	var pngData bytes.Buffer
	png.Encode(&pngData, img)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("image", "amiga.png")
	part.Write(pngData.Bytes())
	mw.Close()

	url := fmt.Sprintf("%s/api/items/%d/image", server.URL, item.ID)
	req, _ := http.NewRequest("PUT", url, &body)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload: expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(fmt.Sprintf("%s/api/public/items/%d/image?thumb=1", server.URL, item.ID))
	if err != nil {
		t.Fatalf("public thumbnail: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("public thumbnail: expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("expected image/jpeg, got %q", ct)
	}
	data, _ := io.ReadAll(resp.Body)
	thumb, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decoding thumbnail: %v", err)
	}
	if b := thumb.Bounds(); b.Dx() > 240 || b.Dy() > 240 {
		t.Errorf("thumbnail too large: %v", b)
	}
}

func TestLoggingMiddlewareRequestID(t *testing.T) {
	handler := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(RequestID(r.Context())))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	id := rec.Header().Get("X-Request-ID")
	if id == "" || rec.Body.String() != id {
		t.Errorf("expected generated request id in header and context, got %q / %q", id, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("expected client request id to be kept, got %q", got)
	}
}

func TestItemLocationStaysInTransitAfterOtherReview(t *testing.T) {
	server, _, token := setupTestServer(t)
	storage := createLocation(t, server, token, "Storage A", model.LocationStorage)
	floor := createLocation(t, server, token, "Main Floor", model.LocationFloor)
	item := createItem(t, server, token, "AMG-1", "Amiga 500", storage.ID)

	var first, second model.MovementRequest
	for _, m := range []*model.MovementRequest{&first, &second} {
		status := call(t, "POST", server.URL+"/api/movements", token,
			map[string]any{"item_id": item.ID, "to_location_id": floor.ID}, m)
		if status != http.StatusCreated {
			t.Fatalf("create movement: expected 201, got %d", status)
		}
	}

	firstURL := fmt.Sprintf("%s/api/movements/%d", server.URL, first.ID)
	if status := call(t, "POST", firstURL+"/approve", token, nil, nil); status != http.StatusOK {
		t.Fatalf("approve: expected 200, got %d", status)
	}
	if status := call(t, "POST", firstURL+"/start-transit", token, nil, nil); status != http.StatusOK {
		t.Fatalf("start transit: expected 200, got %d", status)
	}
	secondURL := fmt.Sprintf("%s/api/movements/%d", server.URL, second.ID)
	if status := call(t, "POST", secondURL+"/reject", token, nil, nil); status != http.StatusOK {
		t.Fatalf("reject: expected 200, got %d", status)
	}

	var loc itemLocationResponse
	status := call(t, "GET", fmt.Sprintf("%s/api/items/%d/location", server.URL, item.ID), token, nil, &loc)
	if status != http.StatusOK {
		t.Fatalf("get location: expected 200, got %d", status)
	}
	if !loc.InTransit {
		t.Error("expected item to still be in transit")
	}

	var got model.Item
	call(t, "GET", fmt.Sprintf("%s/api/items/%d", server.URL, item.ID), token, nil, &got)
	if got.Status != model.ItemStatusInTransit {
		t.Errorf("expected status %s, got %s", model.ItemStatusInTransit, got.Status)
	}

	if status := call(t, "POST", firstURL+"/complete-arrival", token, nil, nil); status != http.StatusOK {
		t.Fatalf("complete arrival: expected 200, got %d", status)
	}
	call(t, "GET", fmt.Sprintf("%s/api/items/%d/location", server.URL, item.ID), token, nil, &loc)
	if loc.InTransit || loc.Location == nil || loc.Location.ID != floor.ID {
		t.Errorf("unexpected location after arrival: %+v", loc)
	}
}

func TestTrailingDataRejected(t *testing.T) {
	server, _, token := setupTestServer(t)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"single object", `{"name":"Hall","category":"FLOOR"}`, http.StatusCreated},
		{"trailing newline", "{\"name\":\"Lobby\",\"category\":\"FLOOR\"}\n", http.StatusCreated},
		{"trailing garbage", `{"name":"Attic","category":"STORAGE"}garbage`, http.StatusBadRequest},
		{"two objects", `{"name":"Cellar","category":"STORAGE"}{}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest("POST", server.URL+"/api/locations", strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			req.Header.Set("Authorization", "Bearer "+token)
			req.Header.Set("Content-Type", "application/json")
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Errorf("expected %d, got %d", tt.status, resp.StatusCode)
			}
		})
	}
}
