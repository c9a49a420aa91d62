package checkout

import (
	"net/http"

	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/money"
	"github.com/noah-isme/storefront/internal/order"
	"github.com/noah-isme/storefront/internal/pricing"
	"github.com/noah-isme/storefront/internal/session"
)

// Handler exposes checkout preview and order placement.
type Handler struct {
	Svc *Service
}

type previewResponse struct {
	pricing.Response
	ShippingQuotes map[string]string `json:"shippingQuotes"`
}

func (h *Handler) input(w http.ResponseWriter, r *http.Request) (session.Context, Input, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return session.Context{}, Input{}, false
	}
	sess, ok := session.From(r.Context())
	if !ok || !sess.Valid() {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing session", nil)
		return session.Context{}, Input{}, false
	}
	var in Input
	if r.ContentLength != 0 {
		if err := common.DecodeJSON(r, &in); err != nil {
			common.WriteError(w, err)
			return session.Context{}, Input{}, false
		}
	}
	return sess, in, true
}

// Preview prices the cart without side effects.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	sess, in, ok := h.input(w, r)
	if !ok {
		return
	}
	priced, err := h.Svc.Preview(r.Context(), sess, in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	quotes := make(map[string]string, 2)
	for method, cost := range h.Svc.Pricing.Policy.Shipping.Methods(priced.ItemCount) {
		quotes[method] = money.Fixed(cost)
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": previewResponse{
		Response:       pricing.ToResponse(priced),
		ShippingQuotes: quotes,
	}})
}

// Checkout places the order.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	sess, in, ok := h.input(w, r)
	if !ok {
		return
	}
	o, err := h.Svc.Checkout(r.Context(), sess, in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": order.ToResponse(o, true)})
}
