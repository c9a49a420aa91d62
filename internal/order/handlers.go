package order

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/repo"
	"github.com/noah-isme/storefront/internal/session"
)

const maxPerPage = 100

// Handler serves the order history of the current session owner.
type Handler struct {
	Orders repo.OrderRepository
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Orders == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order repository not configured", nil)
		return
	}
	sess, ok := session.From(r.Context())
	if !ok || !sess.Valid() {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing session", nil)
		return
	}
	page, perPage := common.ParsePagination(r, 20)
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	orders, total, err := h.Orders.ListOrdersByUser(r.Context(), sess.Owner(), perPage, (page-1)*perPage)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list orders", nil)
		return
	}
	data := make([]Response, 0, len(orders))
	for _, o := range orders {
		data = append(data, ToResponse(o, false))
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	common.JSON(w, http.StatusOK, map[string]any{
		"data": data,
		"pagination": common.Pagination{
			Page:       page,
			PerPage:    perPage,
			TotalItems: total,
		},
	})
}

// Get returns one order. Orders belonging to someone else read as not found.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Orders == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order repository not configured", nil)
		return
	}
	sess, ok := session.From(r.Context())
	if !ok || !sess.Valid() {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing session", nil)
		return
	}
	o, err := h.Orders.GetOrder(r.Context(), chi.URLParam(r, "orderId"))
	if err == nil && o.UserID != sess.Owner() {
		err = common.ErrNotFound
	}
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load order", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": ToResponse(o, true)})
}
