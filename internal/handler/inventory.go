package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"atstore-api/internal/middleware"
	"atstore-api/internal/service"
	"atstore-api/internal/vault"
	"atstore-api/pkg/response"
)

// InventoryHandler handles listing, category and item HTTP requests.
type InventoryHandler struct {
	inventory *service.InventoryService
}

// NewInventoryHandler creates a new inventory handler.
func NewInventoryHandler(inventory *service.InventoryService) *InventoryHandler {
	return &InventoryHandler{inventory: inventory}
}

type categoryRequest struct {
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

type typeRequest struct {
	Type string `json:"type"`
}

// GetListing handles GET /api/v1/listings/{id}
func (h *InventoryHandler) GetListing(w http.ResponseWriter, r *http.Request) {
	listing, err := h.inventory.GetListing(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, listing)
}

// ListCategories handles GET /api/v1/listings/{id}/categories
func (h *InventoryHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.inventory.ListPublic(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, categories)
}

// ListByGame handles GET /api/v1/listings/game/{game}
func (h *InventoryHandler) ListByGame(w http.ResponseWriter, r *http.Request) {
	listings, err := h.inventory.ListByGame(r.Context(), chi.URLParam(r, "game"))
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, listings)
}

// ListMine handles GET /api/v1/listings/owner
func (h *InventoryHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	listings, err := h.inventory.ListForOwner(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, listings)
}

// Stats handles GET /api/v1/listings/owner/stats
func (h *InventoryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.inventory.OwnerStats(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, stats)
}

// CreateListing handles POST /api/v1/listings
func (h *InventoryHandler) CreateListing(w http.ResponseWriter, r *http.Request) {
	var in service.CreateListingInput
	if err := decodeJSON(w, r, &in); err != nil {
		response.Error(w, err)
		return
	}

	listing, err := h.inventory.CreateListing(r.Context(), middleware.UserID(r.Context()), in)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Created(w, listing)
}

// DeleteListing handles DELETE /api/v1/listings/{id}
func (h *InventoryHandler) DeleteListing(w http.ResponseWriter, r *http.Request) {
	err := h.inventory.DeleteListing(r.Context(), chi.URLParam(r, "id"), middleware.UserID(r.Context()))
	if err != nil {
		response.Error(w, err)
		return
	}
	response.NoContent(w)
}

// UpdateType handles PUT /api/v1/listings/{id}/type
func (h *InventoryHandler) UpdateType(w http.ResponseWriter, r *http.Request) {
	var req typeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, err)
		return
	}

	err := h.inventory.UpdateListingType(r.Context(), chi.URLParam(r, "id"), middleware.UserID(r.Context()), req.Type)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, map[string]string{"type": req.Type})
}

// AddCategory handles POST /api/v1/listings/{id}/categories
func (h *InventoryHandler) AddCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, err)
		return
	}

	category, err := h.inventory.AddCategory(r.Context(), chi.URLParam(r, "id"), middleware.UserID(r.Context()), req.Name, req.Price)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Created(w, category)
}

// UpdateCategory handles PUT /api/v1/listings/{id}/categories/{categoryId}
func (h *InventoryHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		response.Error(w, err)
		return
	}

	category, err := h.inventory.UpdateCategory(r.Context(),
		chi.URLParam(r, "id"), chi.URLParam(r, "categoryId"), middleware.UserID(r.Context()),
		req.Name, req.Price)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, category)
}

// AddItem handles POST /api/v1/listings/{id}/categories/{categoryId}/items
func (h *InventoryHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var cred vault.Credential
	if err := decodeJSON(w, r, &cred); err != nil {
		response.Error(w, err)
		return
	}

	item, err := h.inventory.AddItem(r.Context(),
		chi.URLParam(r, "id"), chi.URLParam(r, "categoryId"), middleware.UserID(r.Context()), cred)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Created(w, item)
}

// UpdateItem handles PUT /api/v1/listings/{id}/categories/{categoryId}/items/{itemId}
func (h *InventoryHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var upd service.ItemUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		response.Error(w, err)
		return
	}

	item, err := h.inventory.UpdateItem(r.Context(),
		chi.URLParam(r, "id"), chi.URLParam(r, "categoryId"), chi.URLParam(r, "itemId"),
		middleware.UserID(r.Context()), upd)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, item)
}

// RemoveItem handles DELETE /api/v1/listings/{id}/categories/{categoryId}/items/{itemId}
func (h *InventoryHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	err := h.inventory.RemoveItem(r.Context(),
		chi.URLParam(r, "id"), chi.URLParam(r, "categoryId"), chi.URLParam(r, "itemId"),
		middleware.UserID(r.Context()))
	if err != nil {
		response.Error(w, err)
		return
	}
	response.NoContent(w)
}
