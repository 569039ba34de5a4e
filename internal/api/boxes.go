package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/erazemk/vitrina/internal/model"
	"github.com/erazemk/vitrina/internal/store"
)

// BoxesHandler handles storage box endpoints.
type BoxesHandler struct {
	DB *sql.DB
}

type boxRequest struct {
	Code        string `json:"code" validate:"required,max=50"`
	Label       string `json:"label" validate:"max=100"`
	Description string `json:"description"`
	LocationID  int64  `json:"location_id" validate:"required,gt=0"`
}

// List handles GET /api/boxes.
func (h *BoxesHandler) List(w http.ResponseWriter, r *http.Request) {
	var locationID int64
	if v := r.URL.Query().Get("location_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid location_id")
			return
		}
		locationID = id
	}

	boxes, err := store.ListBoxes(r.Context(), h.DB, locationID)
	if err != nil {
		slog.Error("failed to list boxes", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list boxes")
		return
	}
	if boxes == nil {
		boxes = []model.Box{}
	}
	jsonResponse(w, http.StatusOK, boxes)
}

// Create handles POST /api/boxes.
func (h *BoxesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req boxRequest
	if err := decodeJSON(r, &req); err != nil {
		writeStoreError(w, err, "invalid request")
		return
	}

	box, err := store.CreateBox(r.Context(), h.DB, req.Code, req.Label, req.Description, req.LocationID)
	if err != nil {
		writeStoreError(w, err, "failed to create box")
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("box created", "user", claims.Email, "box", req.Code, "location_id", req.LocationID)
	jsonResponse(w, http.StatusCreated, box)
}

// Get handles GET /api/boxes/{id}.
func (h *BoxesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid box id")
		return
	}

	box, err := store.GetBox(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get box", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get box")
		return
	}
	if box == nil {
		jsonError(w, http.StatusNotFound, "box not found")
		return
	}

	jsonResponse(w, http.StatusOK, box)
}

// Update handles PUT /api/boxes/{id}.
func (h *BoxesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid box id")
		return
	}

	var req boxRequest
	if err := decodeJSON(r, &req); err != nil {
		writeStoreError(w, err, "invalid request")
		return
	}

	if err := store.UpdateBox(r.Context(), h.DB, id, req.Code, req.Label, req.Description, req.LocationID); err != nil {
		writeStoreError(w, err, "failed to update box")
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("box updated", "user", claims.Email, "box", req.Code)
	box, _ := store.GetBox(r.Context(), h.DB, id)
	jsonResponse(w, http.StatusOK, box)
}

// Delete handles DELETE /api/boxes/{id}.
func (h *BoxesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid box id")
		return
	}

	if err := store.DeleteBox(r.Context(), h.DB, id); err != nil {
		writeStoreError(w, err, "failed to delete box")
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("box deleted", "user", claims.Email, "box_id", id)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "box deleted"})
}
