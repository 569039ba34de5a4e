package api

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/erazemk/vitrina/internal/model"
	"github.com/erazemk/vitrina/internal/store"
)

// MovementsHandler handles movement request endpoints.
type MovementsHandler struct {
	DB *sql.DB
}

type createMovementRequest struct {
	ItemID       int64  `json:"item_id" validate:"required,gt=0"`
	ToLocationID int64  `json:"to_location_id" validate:"required,gt=0"`
	Notes        string `json:"notes" validate:"max=1000"`
}

type movementActionRequest struct {
	Comment string `json:"comment" validate:"max=1000"`
}

type bulkReviewRequest struct {
	IDs    []int64 `json:"ids" validate:"required,min=1,dive,gt=0"`
	Action string  `json:"action" validate:"required,oneof=approve reject"`
}

// List handles GET /api/movements. Volunteers only see their own requests.
func (h *MovementsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.MovementFilter{Status: q.Get("status")}
	if f.Status != "" && !model.ValidMovementStatus(f.Status) {
		jsonError(w, http.StatusBadRequest, "invalid status")
		return
	}
	if v := q.Get("item_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid item_id")
			return
		}
		f.ItemID = id
	}
	if !isAdmin(r) {
		f.RequestedBy = GetClaims(r.Context()).UserID
	}

	requests, err := store.ListMovementRequests(r.Context(), h.DB, f)
	if err != nil {
		slog.Error("failed to list movement requests", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list movement requests")
		return
	}
	if requests == nil {
		requests = []model.MovementRequest{}
	}
	jsonResponse(w, http.StatusOK, requests)
}

// Create handles POST /api/movements.
func (h *MovementsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createMovementRequest
	if err := decodeJSON(r, &req); err != nil {
		writeStoreError(w, err, "invalid request")
		return
	}

	m, err := store.CreateMovementRequest(r.Context(), h.DB, req.ItemID, actorID(r), req.ToLocationID, req.Notes)
	if err != nil {
		writeStoreError(w, err, "failed to create movement request")
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("movement requested", "user", claims.Email, "request_id", m.ID, "item_id", m.ItemID,
		"from", m.FromLocationID, "to", m.ToLocationID)
	jsonResponse(w, http.StatusCreated, m)
}

// Get handles GET /api/movements/{id}.
func (h *MovementsHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, ok := h.visibleRequest(w, r)
	if !ok {
		return
	}
	jsonResponse(w, http.StatusOK, m)
}

// Approve handles POST /api/movements/{id}/approve.
func (h *MovementsHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, store.ApproveMovementRequest, "approved")
}

// Reject handles POST /api/movements/{id}/reject.
func (h *MovementsHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, store.RejectMovementRequest, "rejected")
}

type transitionFunc func(ctx context.Context, db *sql.DB, id, userID int64, comment string) (*model.MovementRequest, error)

func (h *MovementsHandler) review(w http.ResponseWriter, r *http.Request, fn transitionFunc, verb string) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid movement request id")
		return
	}

	var req movementActionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeStoreError(w, err, "invalid request")
		return
	}

	claims := GetClaims(r.Context())
	m, err := fn(r.Context(), h.DB, id, claims.UserID, req.Comment)
	if err != nil {
		writeStoreError(w, err, "failed to update movement request")
		return
	}

	slog.Info("movement request "+verb, "user", claims.Email, "request_id", id, "item_id", m.ItemID)
	jsonResponse(w, http.StatusOK, m)
}

// Cancel handles POST /api/movements/{id}/cancel. Only the requester or an
// admin may cancel.
func (h *MovementsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	m, ok := h.visibleRequest(w, r)
	if !ok {
		return
	}

	claims := GetClaims(r.Context())
	updated, err := store.CancelMovementRequest(r.Context(), h.DB, m.ID, claims.UserID)
	if err != nil {
		writeStoreError(w, err, "failed to cancel movement request")
		return
	}

	slog.Info("movement request cancelled", "user", claims.Email, "request_id", m.ID)
	jsonResponse(w, http.StatusOK, updated)
}

// StartTransit handles POST /api/movements/{id}/start-transit.
func (h *MovementsHandler) StartTransit(w http.ResponseWriter, r *http.Request) {
	h.transit(w, r, store.StartTransit, "movement started")
}

// CompleteArrival handles POST /api/movements/{id}/complete-arrival.
func (h *MovementsHandler) CompleteArrival(w http.ResponseWriter, r *http.Request) {
	h.transit(w, r, store.CompleteArrival, "movement arrived")
}

func (h *MovementsHandler) transit(w http.ResponseWriter, r *http.Request, fn transitionFunc, msg string) {
	m, ok := h.visibleRequest(w, r)
	if !ok {
		return
	}

	var req movementActionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeStoreError(w, err, "invalid request")
		return
	}

	claims := GetClaims(r.Context())
	updated, err := fn(r.Context(), h.DB, m.ID, claims.UserID, req.Comment)
	if err != nil {
		writeStoreError(w, err, "failed to update movement request")
		return
	}

	slog.Info(msg, "user", claims.Email, "request_id", m.ID, "item_id", m.ItemID, "to", m.ToLocationID)
	jsonResponse(w, http.StatusOK, updated)
}

// Bulk handles POST /api/movements/bulk.
func (h *MovementsHandler) Bulk(w http.ResponseWriter, r *http.Request) {
	var req bulkReviewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeStoreError(w, err, "invalid request")
		return
	}

	claims := GetClaims(r.Context())
	n, err := store.BulkReview(r.Context(), h.DB, req.IDs, req.Action == "approve", claims.UserID)
	if err != nil {
		writeStoreError(w, err, "failed to review movement requests")
		return
	}

	slog.Info("movement requests reviewed in bulk", "user", claims.Email, "action", req.Action,
		"requested", len(req.IDs), "reviewed", n)
	jsonResponse(w, http.StatusOK, map[string]int{"reviewed": n, "skipped": len(req.IDs) - n})
}

// visibleRequest loads the {id} request. Volunteers cannot see requests made
// by others; they get 404 as if the request did not exist.
func (h *MovementsHandler) visibleRequest(w http.ResponseWriter, r *http.Request) (*model.MovementRequest, bool) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid movement request id")
		return nil, false
	}

	m, err := store.GetMovementRequest(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get movement request", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get movement request")
		return nil, false
	}

	claims := GetClaims(r.Context())
	if m == nil || (!isAdmin(r) && (m.RequestedBy == nil || *m.RequestedBy != claims.UserID)) {
		jsonError(w, http.StatusNotFound, "movement request not found")
		return nil, false
	}
	return m, true
}
