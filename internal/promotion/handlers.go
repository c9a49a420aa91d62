package promotion

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/money"
	"github.com/noah-isme/storefront/internal/repo"
)

// Handler serves promotion lookups and admin creation.
type Handler struct {
	Resolver *Resolver
	Svc      *Service
	Now      func() time.Time
}

type promotionResponse struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	DiscountPercentage string    `json:"discountPercentage"`
	StartDate          time.Time `json:"startDate"`
	EndDate            time.Time `json:"endDate"`
	IsActive           bool      `json:"isActive"`
	ProductIDs         []string  `json:"productIds,omitempty"`
}

type productPromotionsResponse struct {
	ProductID       string              `json:"productId"`
	Price           string              `json:"price"`
	DiscountedPrice string              `json:"discountedPrice"`
	Best            *promotionResponse  `json:"best"`
	Active          []promotionResponse `json:"active"`
}

type createPromotionRequest struct {
	Name               string    `json:"name" validate:"required,max=200"`
	DiscountPercentage string    `json:"discountPercentage" validate:"required"`
	StartDate          time.Time `json:"startDate" validate:"required"`
	EndDate            time.Time `json:"endDate" validate:"required,gtefield=StartDate"`
	IsActive           *bool     `json:"isActive"`
	ProductIDs         []string  `json:"productIds" validate:"required,min=1,dive,required"`
}

func toResponse(p repo.Promotion) promotionResponse {
	return promotionResponse{
		ID:                 p.ID,
		Name:               p.Name,
		DiscountPercentage: p.DiscountPercentage.String(),
		StartDate:          p.StartDate,
		EndDate:            p.EndDate,
		IsActive:           p.IsActive,
		ProductIDs:         p.ProductIDs,
	}
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}

// ForProduct lists the active promotions for a product and the one that applies.
func (h *Handler) ForProduct(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")
	product, err := h.Resolver.Products.GetProduct(r.Context(), productID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	now := h.now()
	active, err := h.Resolver.ActivePromotionsFor(r.Context(), productID, now)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	resp := productPromotionsResponse{
		ProductID:       productID,
		Price:           money.Fixed(product.Price),
		DiscountedPrice: money.Fixed(product.Price),
		Active:          make([]promotionResponse, 0, len(active)),
	}
	for _, p := range active {
		resp.Active = append(resp.Active, toResponse(p))
	}
	if best, ok := Best(active); ok {
		b := toResponse(best)
		resp.Best = &b
		resp.DiscountedPrice = money.Fixed(DiscountedPrice(product.Price, best))
	}
	common.JSON(w, http.StatusOK, resp)
}

// Create registers a promotion and links it to products.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createPromotionRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	created, err := h.Svc.Create(r.Context(), Input{
		Name:               req.Name,
		DiscountPercentage: req.DiscountPercentage,
		StartDate:          req.StartDate,
		EndDate:            req.EndDate,
		IsActive:           active,
		ProductIDs:         req.ProductIDs,
	})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, toResponse(created))
}
