package cart

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/money"
	"github.com/noah-isme/storefront/internal/repo"
	"github.com/noah-isme/storefront/internal/session"
)

// Handler wires cart services to HTTP.
type Handler struct {
	Svc *Service
}

type addItemRequest struct {
	ProductID     string  `json:"productId" validate:"required"`
	Quantity      int     `json:"quantity" validate:"required,min=1"`
	IsGiftWrapped bool    `json:"isGiftWrapped"`
	GiftMessage   *string `json:"giftMessage" validate:"omitempty,max=500"`
}

type updateItemRequest struct {
	Quantity      int     `json:"quantity" validate:"required,min=1"`
	IsGiftWrapped *bool   `json:"isGiftWrapped"`
	GiftMessage   *string `json:"giftMessage" validate:"omitempty,max=500"`
}

type itemResponse struct {
	ID            string    `json:"id"`
	ProductID     string    `json:"productId"`
	Name          string    `json:"name,omitempty"`
	UnitPrice     string    `json:"unitPrice,omitempty"`
	Quantity      int       `json:"quantity"`
	LineTotal     string    `json:"lineTotal,omitempty"`
	IsGiftWrapped bool      `json:"isGiftWrapped"`
	GiftMessage   *string   `json:"giftMessage,omitempty"`
	AddedAt       time.Time `json:"addedAt"`
	Available     bool      `json:"available"`
}

type cartResponse struct {
	ID                string         `json:"id"`
	UserID            string         `json:"userId"`
	Items             []itemResponse `json:"items"`
	ItemCount         int            `json:"itemCount"`
	Subtotal          string         `json:"subtotal"`
	Tax               string         `json:"tax"`
	Total             string         `json:"total"`
	PromotionDiscount string         `json:"promotionDiscount"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

func sessionFrom(w http.ResponseWriter, r *http.Request) (session.Context, bool) {
	sess, ok := session.From(r.Context())
	if !ok || !sess.Valid() {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing session", nil)
		return session.Context{}, false
	}
	return sess, true
}

func (h *Handler) render(ctx context.Context, w http.ResponseWriter, status int, c repo.Cart) {
	totals, err := h.Svc.Totals(ctx, c)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	resp := cartResponse{
		ID:                c.ID,
		UserID:            c.UserID,
		Items:             make([]itemResponse, 0, len(c.Items)),
		ItemCount:         c.ItemCount(),
		Subtotal:          money.Fixed(totals.Subtotal),
		Tax:               money.Fixed(totals.Tax),
		Total:             money.Fixed(totals.Total),
		PromotionDiscount: money.Fixed(totals.PromotionDiscount),
		UpdatedAt:         c.UpdatedAt,
	}
	for _, it := range c.Items {
		item := itemResponse{
			ID:            it.ID,
			ProductID:     it.ProductID,
			Quantity:      it.Quantity,
			IsGiftWrapped: it.IsGiftWrapped,
			GiftMessage:   it.GiftMessage,
			AddedAt:       it.AddedAt,
		}
		if p, ok := totals.Products[it.ProductID]; ok {
			item.Available = true
			item.Name = p.Name
			item.UnitPrice = money.Fixed(p.Price)
			item.LineTotal = money.Fixed(p.Price.Mul(decimalQty(it.Quantity)))
		}
		resp.Items = append(resp.Items, item)
	}
	common.JSON(w, status, resp)
}

// Get returns the session cart with live totals, creating it on first access.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	c, err := h.Svc.EnsureCart(r.Context(), sess)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	h.render(r.Context(), w, http.StatusOK, c)
}

// AddItem adds a product to the cart.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	var req addItemRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	c, err := h.Svc.AddItem(r.Context(), sess, req.ProductID, req.Quantity, GiftOptions{
		IsGiftWrapped: req.IsGiftWrapped,
		GiftMessage:   req.GiftMessage,
	})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	h.render(r.Context(), w, http.StatusOK, c)
}

// UpdateItem changes the quantity or gift options of a line.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	var req updateItemRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	var gift *GiftOptions
	if req.IsGiftWrapped != nil || req.GiftMessage != nil {
		gift = &GiftOptions{GiftMessage: req.GiftMessage}
		if req.IsGiftWrapped != nil {
			gift.IsGiftWrapped = *req.IsGiftWrapped
		}
	}
	c, err := h.Svc.UpdateItem(r.Context(), sess, chi.URLParam(r, "productId"), req.Quantity, gift)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	h.render(r.Context(), w, http.StatusOK, c)
}

// RemoveItem deletes a line.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	c, err := h.Svc.RemoveItem(r.Context(), sess, chi.URLParam(r, "productId"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	h.render(r.Context(), w, http.StatusOK, c)
}

// Clear empties the cart.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	c, err := h.Svc.Clear(r.Context(), sess)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	h.render(r.Context(), w, http.StatusOK, c)
}

// Merge folds the guest cart into the signed-in user's cart.
func (h *Handler) Merge(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFrom(w, r)
	if !ok {
		return
	}
	if sess.IsGuest() {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "sign in to merge carts", nil)
		return
	}
	c, err := h.Svc.MergeGuest(r.Context(), sess)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	h.render(r.Context(), w, http.StatusOK, c)
}
