package order

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/events"
	"github.com/noah-isme/storefront/internal/repo"
)

// AdminHandler provides administrative order management endpoints.
type AdminHandler struct {
	Orders repo.OrderRepository
	Events *events.Bus
	Logger zerolog.Logger
}

type patchStatusRequest struct {
	Status string `json:"status" validate:"required,max=50"`
}

// PatchStatus stores a new status label. Labels are free-form; no transition rules apply.
func (h *AdminHandler) PatchStatus(w http.ResponseWriter, r *http.Request) {
	if h.Orders == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order repository not configured", nil)
		return
	}
	var req patchStatusRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	status := strings.TrimSpace(req.Status)
	if status == "" {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "status is required", nil)
		return
	}
	o, err := h.Orders.UpdateOrderStatus(r.Context(), chi.URLParam(r, "id"), status)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to update order status", nil)
		return
	}
	h.Logger.Info().Str("order_id", o.ID).Str("status", o.Status).Msg("order status updated")
	h.Events.Publish(r.Context(), events.TopicOrderStatus, o.ID, events.OrderStatusChanged{
		OrderID: o.ID,
		UserID:  o.UserID,
		Status:  o.Status,
	})
	common.JSON(w, http.StatusOK, map[string]any{"data": ToResponse(o, false)})
}
