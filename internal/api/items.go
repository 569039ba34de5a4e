package api

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/erazemk/vitrina/internal/history"
	"github.com/erazemk/vitrina/internal/imaging"
	"github.com/erazemk/vitrina/internal/model"
	"github.com/erazemk/vitrina/internal/store"
)

// Catalogue paging limits.
const (
	defaultPageSize = 10
	maxPageSize     = 10000
)

// ItemsHandler handles item endpoints for signed-in users.
type ItemsHandler struct {
	DB *sql.DB
}

type itemDetailsRequest struct {
	Title        string `json:"title" validate:"required,max=200"`
	Platform     string `json:"platform" validate:"max=100"`
	ItemType     string `json:"item_type" validate:"omitempty,oneof=SOFTWARE HARDWARE NON_ELECTRONIC"`
	Condition    string `json:"condition" validate:"omitempty,oneof=EXCELLENT GOOD FAIR POOR"`
	IsComplete   string `json:"is_complete" validate:"omitempty,oneof=YES NO UNKNOWN"`
	IsFunctional string `json:"is_functional" validate:"omitempty,oneof=YES NO UNKNOWN"`
	Description  string `json:"description"`
	BoxID        *int64 `json:"box_id" validate:"omitempty,gt=0"`
}

func (d itemDetailsRequest) details() model.ItemDetails {
	return model.ItemDetails{
		Title:        d.Title,
		Platform:     d.Platform,
		ItemType:     d.ItemType,
		Condition:    d.Condition,
		IsComplete:   d.IsComplete,
		IsFunctional: d.IsFunctional,
		Description:  d.Description,
	}
}

type createItemRequest struct {
	itemDetailsRequest
	Code       string `json:"code" validate:"required,max=50"`
	LocationID int64  `json:"location_id" validate:"required,gt=0"`
}

type updateItemRequest struct {
	itemDetailsRequest
	IsPublicVisible *bool `json:"is_public_visible"`
}

type locationEventRequest struct {
	LocationID int64  `json:"location_id" validate:"required,gt=0"`
	Notes      string `json:"notes" validate:"max=1000"`
}

type itemPage struct {
	Items    []model.Item `json:"items"`
	Total    int          `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
}

type itemLocationResponse struct {
	ItemID int64 `json:"item_id"`
	// Location is derived from history; null when it cannot be determined.
	Location           *model.Location `json:"location"`
	SnapshotLocationID int64           `json:"snapshot_location_id"`
	InSync             bool            `json:"in_sync"`
	InTransit          bool            `json:"in_transit"`
}

// parseItemFilter reads the catalogue query parameters shared by the public
// and internal item lists.
func parseItemFilter(r *http.Request) (store.ItemFilter, int, int) {
	q := r.URL.Query()
	f := store.ItemFilter{
		Platform: q.Get("platform"),
		Search:   strings.TrimSpace(q.Get("search")),
		OnFloor:  parseFlag(q.Get("is_on_floor")),
	}

	page := queryInt(r, "page", 1)
	size := queryInt(r, "page_size", defaultPageSize)
	if size > maxPageSize {
		size = maxPageSize
	}
	f.Limit = size
	f.Offset = (page - 1) * size
	return f, page, size
}

// parseFlag reads a boolean query value. Unrecognized values do not filter.
func parseFlag(v string) *bool {
	var b bool
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		b = true
	case "false", "0", "no":
		b = false
	default:
		return nil
	}
	return &b
}

// List handles GET /api/items.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	f, page, size := parseItemFilter(r)
	q := r.URL.Query()
	f.Status = q.Get("status")
	f.LocationID, _ = strconv.ParseInt(q.Get("location_id"), 10, 64)
	f.BoxID, _ = strconv.ParseInt(q.Get("box_id"), 10, 64)

	items, total, err := store.ListItems(r.Context(), h.DB, f)
	if err != nil {
		slog.Error("failed to list items", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list items")
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	jsonResponse(w, http.StatusOK, itemPage{Items: items, Total: total, Page: page, PageSize: size})
}

// Create handles POST /api/items.
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeStoreError(w, err, "invalid request")
		return
	}

	item, err := store.CreateItem(r.Context(), h.DB, req.Code, req.details(), req.BoxID, req.LocationID, actorID(r))
	if err != nil {
		writeStoreError(w, err, "failed to create item")
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("item created", "user", claims.Email, "item", item.Code, "location_id", req.LocationID)
	jsonResponse(w, http.StatusCreated, item)
}

// Get handles GET /api/items/{id}.
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	item, err := store.GetItem(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get item", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get item")
		return
	}
	if item == nil {
		jsonError(w, http.StatusNotFound, "item not found")
		return
	}

	jsonResponse(w, http.StatusOK, item)
}

// Update handles PUT /api/items/{id}. Location cannot be changed here.
func (h *ItemsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	var req updateItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeStoreError(w, err, "invalid request")
		return
	}

	if err := store.UpdateItem(r.Context(), h.DB, id, req.details(), req.BoxID); err != nil {
		writeStoreError(w, err, "failed to update item")
		return
	}
	if req.IsPublicVisible != nil {
		if err := store.SetItemVisibility(r.Context(), h.DB, id, *req.IsPublicVisible); err != nil {
			writeStoreError(w, err, "failed to update item")
			return
		}
	}

	item, err := store.GetItem(r.Context(), h.DB, id)
	if err != nil {
		writeStoreError(w, err, "failed to get item")
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("item updated", "user", claims.Email, "item", item.Code)
	jsonResponse(w, http.StatusOK, item)
}

// Delete handles DELETE /api/items/{id}. Items are archived by hiding them
// from the catalogue; their history is kept.
func (h *ItemsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	if err := store.SetItemVisibility(r.Context(), h.DB, id, false); err != nil {
		writeStoreError(w, err, "failed to archive item")
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("item archived", "user", claims.Email, "item_id", id)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "item archived"})
}

// GetHistory handles GET /api/items/{id}/history.
func (h *ItemsHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	item, err := store.GetItem(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get item", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get item")
		return
	}
	if item == nil {
		jsonError(w, http.StatusNotFound, "item not found")
		return
	}

	events, err := history.ListItemHistory(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get item history", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get item history")
		return
	}
	if events == nil {
		events = []model.HistoryEvent{}
	}
	jsonResponse(w, http.StatusOK, events)
}

// GetLocation handles GET /api/items/{id}/location. It resolves the location
// from history and reports whether the stored snapshot agrees.
func (h *ItemsHandler) GetLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	item, err := store.GetItem(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get item", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get item")
		return
	}
	if item == nil {
		jsonError(w, http.StatusNotFound, "item not found")
		return
	}

	loc, err := history.ResolveCurrentLocation(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to resolve item location", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to resolve location")
		return
	}
	inTransit, err := history.IsInTransit(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to check transit", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to resolve location")
		return
	}

	jsonResponse(w, http.StatusOK, itemLocationResponse{
		ItemID:             id,
		Location:           loc,
		SnapshotLocationID: item.CurrentLocationID,
		InSync:             loc != nil && loc.ID == item.CurrentLocationID && loc.IsFloor() == item.IsOnFloor,
		InTransit:          inTransit,
	})
}

// Verify handles POST /api/items/{id}/verify.
func (h *ItemsHandler) Verify(w http.ResponseWriter, r *http.Request) {
	h.locationEvent(w, r, model.EventVerified)
}

// CorrectLocation handles POST /api/items/{id}/correct-location.
func (h *ItemsHandler) CorrectLocation(w http.ResponseWriter, r *http.Request) {
	h.locationEvent(w, r, model.EventLocationCorrection)
}

func (h *ItemsHandler) locationEvent(w http.ResponseWriter, r *http.Request, kind model.EventKind) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	var req locationEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeStoreError(w, err, "invalid request")
		return
	}

	record := store.VerifyItemLocation
	if kind == model.EventLocationCorrection {
		record = store.CorrectItemLocation
	}

	ev, err := record(r.Context(), h.DB, id, req.LocationID, actorID(r), req.Notes)
	if err != nil {
		writeStoreError(w, err, "failed to record location")
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("item location recorded", "user", claims.Email, "item_id", id, "kind", kind, "location_id", req.LocationID)
	jsonResponse(w, http.StatusCreated, ev)
}

// UploadImage handles PUT /api/items/{id}/image.
func (h *ItemsHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	// Room for multipart framing on top of the image itself.
	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxUploadBytes+1<<20)

	if err := r.ParseMultipartForm(imaging.MaxUploadBytes); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "image file required")
		return
	}
	defer file.Close()

	photo, err := imaging.Process(file)
	switch {
	case errors.Is(err, imaging.ErrTooLarge):
		jsonError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	case errors.Is(err, imaging.ErrUnsupported):
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		slog.Warn("failed to process image", "item_id", id, "error", err)
		jsonError(w, http.StatusBadRequest, "invalid image")
		return
	}

	if err := store.SetItemImage(r.Context(), h.DB, id, photo.Full, photo.Thumbnail, photo.MIME); err != nil {
		writeStoreError(w, err, "failed to save image")
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("item image uploaded", "user", claims.Email, "item_id", id, "bytes", len(photo.Full))
	jsonResponse(w, http.StatusOK, map[string]string{"message": "image uploaded"})
}

// GetImage handles GET /api/items/{id}/image. ?thumb=1 serves the thumbnail.
func (h *ItemsHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	serveItemImage(w, r, h.DB, id)
}

func serveItemImage(w http.ResponseWriter, r *http.Request, db *sql.DB, id int64) {
	thumb := parseFlag(r.URL.Query().Get("thumb"))
	data, mime, err := store.GetItemImage(r.Context(), db, id, thumb != nil && *thumb)
	if err != nil {
		slog.Error("failed to get image", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get image")
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "no image")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(data)
}
