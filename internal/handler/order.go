package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"atstore-api/internal/middleware"
	"atstore-api/internal/service"
	"atstore-api/pkg/response"
)

// OrderHandler handles order-related HTTP requests.
type OrderHandler struct {
	orders *service.OrderService
}

// NewOrderHandler creates a new order handler.
func NewOrderHandler(orders *service.OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// Create handles POST /api/v1/orders
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.CreateOrderInput
	if err := decodeJSON(w, r, &in); err != nil {
		response.Error(w, err)
		return
	}
	in.UserID = middleware.UserID(r.Context())

	order, err := h.orders.CreateOrder(r.Context(), in)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.Created(w, order)
}

// Get handles GET /api/v1/orders/{orderId}
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, order)
}

// Mine handles GET /api/v1/orders/mine
func (h *OrderHandler) Mine(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListByUser(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, orders)
}

// List handles GET /api/v1/orders?page=&limit=&search=&startDate=&endDate=
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	start, err := queryDate(r, "startDate", false)
	if err != nil {
		response.Error(w, err)
		return
	}
	end, err := queryDate(r, "endDate", true)
	if err != nil {
		response.Error(w, err)
		return
	}

	page, err := h.orders.ListAll(r.Context(), service.ListOrdersFilter{
		Page:      queryInt(r, "page"),
		Limit:     queryInt(r, "limit"),
		Search:    r.URL.Query().Get("search"),
		StartDate: start,
		EndDate:   end,
	})
	if err != nil {
		response.Error(w, err)
		return
	}
	response.JSONWithMeta(w, http.StatusOK, page.Orders, page.Page, page.Limit, page.Total, page.TotalPages)
}
