package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/erazemk/vitrina/internal/model"
	"github.com/erazemk/vitrina/internal/store"
)

// PublicHandler serves the anonymous catalogue. It reads the location
// snapshot stored on items and never consults history.
type PublicHandler struct {
	DB *sql.DB
}

// publicItem is the catalogue view of an item.
type publicItem struct {
	ID           int64  `json:"id"`
	Code         string `json:"code"`
	Title        string `json:"title"`
	Platform     string `json:"platform,omitempty"`
	ItemType     string `json:"item_type"`
	Condition    string `json:"condition"`
	IsComplete   string `json:"is_complete"`
	IsFunctional string `json:"is_functional"`
	Description  string `json:"description,omitempty"`
	Location     string `json:"location,omitempty"`
	IsOnFloor    bool   `json:"is_on_floor"`
	HasImage     bool   `json:"has_image"`
}

type publicPage struct {
	Items    []publicItem `json:"items"`
	Total    int          `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
}

func toPublic(item *model.Item) publicItem {
	p := publicItem{
		ID:           item.ID,
		Code:         item.Code,
		Title:        item.Title,
		Platform:     item.Platform,
		ItemType:     item.ItemType,
		Condition:    item.Condition,
		IsComplete:   item.IsComplete,
		IsFunctional: item.IsFunctional,
		Description:  item.Description,
		IsOnFloor:    item.IsOnFloor,
		HasImage:     item.ImageMime != "",
	}
	if item.CurrentLocation != nil {
		p.Location = item.CurrentLocation.Name
	}
	return p
}

// List handles GET /api/public/items.
func (h *PublicHandler) List(w http.ResponseWriter, r *http.Request) {
	f, page, size := parseItemFilter(r)
	f.PublicOnly = true

	items, total, err := store.ListItems(r.Context(), h.DB, f)
	if err != nil {
		slog.Error("failed to list catalogue", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list items")
		return
	}

	out := make([]publicItem, 0, len(items))
	for i := range items {
		out = append(out, toPublic(&items[i]))
	}
	jsonResponse(w, http.StatusOK, publicPage{Items: out, Total: total, Page: page, PageSize: size})
}

// Get handles GET /api/public/items/{id}. Hidden items are not found.
func (h *PublicHandler) Get(w http.ResponseWriter, r *http.Request) {
	item, ok := h.visibleItem(w, r)
	if !ok {
		return
	}
	jsonResponse(w, http.StatusOK, toPublic(item))
}

// GetImage handles GET /api/public/items/{id}/image.
func (h *PublicHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	item, ok := h.visibleItem(w, r)
	if !ok {
		return
	}
	serveItemImage(w, r, h.DB, item.ID)
}

func (h *PublicHandler) visibleItem(w http.ResponseWriter, r *http.Request) (*model.Item, bool) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid item id")
		return nil, false
	}

	item, err := store.GetItem(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get item", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get item")
		return nil, false
	}
	if item == nil || !item.IsPublicVisible {
		jsonError(w, http.StatusNotFound, "item not found")
		return nil, false
	}
	return item, true
}
