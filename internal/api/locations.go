package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/erazemk/vitrina/internal/model"
	"github.com/erazemk/vitrina/internal/store"
)

// LocationsHandler handles location CRUD endpoints.
type LocationsHandler struct {
	DB *sql.DB
}

type locationRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Category    string `json:"category" validate:"required,oneof=FLOOR STORAGE EVENT OTHER"`
	Description string `json:"description"`
}

// List handles GET /api/locations.
func (h *LocationsHandler) List(w http.ResponseWriter, r *http.Request) {
	locations, err := store.ListLocations(r.Context(), h.DB, r.URL.Query().Get("category"))
	if err != nil {
		slog.Error("failed to list locations", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list locations")
		return
	}
	if locations == nil {
		locations = []model.Location{}
	}
	jsonResponse(w, http.StatusOK, locations)
}

// Create handles POST /api/locations.
func (h *LocationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeStoreError(w, err, "invalid request")
		return
	}

	location, err := store.CreateLocation(r.Context(), h.DB, req.Name, req.Category, req.Description)
	if err != nil {
		writeStoreError(w, err, "failed to create location")
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("location created", "user", claims.Email, "location", req.Name, "category", req.Category)
	jsonResponse(w, http.StatusCreated, location)
}

// Get handles GET /api/locations/{id}.
func (h *LocationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid location id")
		return
	}

	location, err := store.GetLocation(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get location", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get location")
		return
	}
	if location == nil {
		jsonError(w, http.StatusNotFound, "location not found")
		return
	}

	jsonResponse(w, http.StatusOK, location)
}

// Update handles PUT /api/locations/{id}.
func (h *LocationsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid location id")
		return
	}

	var req locationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeStoreError(w, err, "invalid request")
		return
	}

	if err := store.UpdateLocation(r.Context(), h.DB, id, req.Name, req.Category, req.Description); err != nil {
		writeStoreError(w, err, "failed to update location")
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("location updated", "user", claims.Email, "location", req.Name)
	location, _ := store.GetLocation(r.Context(), h.DB, id)
	jsonResponse(w, http.StatusOK, location)
}

// Delete handles DELETE /api/locations/{id}.
func (h *LocationsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid location id")
		return
	}

	if err := store.DeleteLocation(r.Context(), h.DB, id); err != nil {
		slog.Warn("failed to delete location", "location_id", id, "error", err)
		writeStoreError(w, err, "failed to delete location")
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("location deleted", "user", claims.Email, "location_id", id)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "location deleted"})
}
