package coupon

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/money"
	"github.com/noah-isme/storefront/internal/repo"
)

// Handler exposes interactive coupon validation and coupon administration.
type Handler struct {
	Svc *Service
}

type validateRequest struct {
	Code              string          `json:"code"`
	OrderAmount       decimal.Decimal `json:"orderAmount"`
	PromotionDiscount decimal.Decimal `json:"promotionDiscount"`
}

// ValidateResponse is the JSON shape of a ValidationResult.
type ValidateResponse struct {
	IsValid        bool      `json:"isValid"`
	Message        string    `json:"message"`
	DiscountAmount string    `json:"discountAmount"`
	FinalAmount    string    `json:"finalAmount"`
	Coupon         *Response `json:"coupon,omitempty"`
}

type couponPayload struct {
	Code               string          `json:"code"`
	DiscountType       string          `json:"discountType" validate:"required"`
	DiscountAmount     decimal.Decimal `json:"discountAmount"`
	MinimumOrderAmount decimal.Decimal `json:"minimumOrderAmount"`
	StartDate          time.Time       `json:"startDate" validate:"required"`
	EndDate            time.Time       `json:"endDate" validate:"required"`
	UsageLimit         *int            `json:"usageLimit" validate:"omitempty,min=0"`
	IsActive           *bool           `json:"isActive"`
}

// Response is the JSON shape of a coupon.
type Response struct {
	ID                 string    `json:"id"`
	Code               string    `json:"code"`
	DiscountType       string    `json:"discountType"`
	DiscountAmount     string    `json:"discountAmount"`
	MinimumOrderAmount string    `json:"minimumOrderAmount"`
	StartDate          time.Time `json:"startDate"`
	EndDate            time.Time `json:"endDate"`
	UsageLimit         *int      `json:"usageLimit"`
	TimesUsed          int       `json:"timesUsed"`
	IsActive           bool      `json:"isActive"`
}

func toCouponResponse(c repo.Coupon) Response {
	return Response{
		ID:                 c.ID,
		Code:               c.Code,
		DiscountType:       string(c.DiscountType),
		DiscountAmount:     money.Fixed(c.DiscountAmount),
		MinimumOrderAmount: money.Fixed(c.MinimumOrderAmount),
		StartDate:          c.StartDate,
		EndDate:            c.EndDate,
		UsageLimit:         c.UsageLimit,
		TimesUsed:          c.TimesUsed,
		IsActive:           c.IsActive,
	}
}

// ToValidateResponse renders a validation result for API clients.
func ToValidateResponse(res ValidationResult) ValidateResponse {
	out := ValidateResponse{
		IsValid:        res.IsValid,
		Message:        res.Message,
		DiscountAmount: money.Fixed(res.DiscountAmount),
		FinalAmount:    money.Fixed(res.FinalAmount),
	}
	if res.IsValid && res.Coupon != nil {
		c := toCouponResponse(*res.Coupon)
		out.Coupon = &c
	}
	return out
}

func (p couponPayload) input(code string) Input {
	active := true
	if p.IsActive != nil {
		active = *p.IsActive
	}
	return Input{
		Code:               code,
		DiscountType:       p.DiscountType,
		DiscountAmount:     p.DiscountAmount,
		MinimumOrderAmount: p.MinimumOrderAmount,
		StartDate:          p.StartDate,
		EndDate:            p.EndDate,
		UsageLimit:         p.UsageLimit,
		IsActive:           active,
	}
}

// Validate answers an "apply coupon" request. Invalid coupons still return 200.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	if req.OrderAmount.IsNegative() || req.PromotionDiscount.IsNegative() {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_ERROR", "amounts cannot be negative", nil)
		return
	}
	res, err := h.Svc.Validate(r.Context(), req.Code, req.OrderAmount, req.PromotionDiscount)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, ToValidateResponse(res))
}

// Create inserts a new coupon.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var payload couponPayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	c, err := h.Svc.Create(r.Context(), payload.input(payload.Code))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, toCouponResponse(c))
}

// Update replaces the coupon identified by the {code} path parameter.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var payload couponPayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	c, err := h.Svc.Update(r.Context(), chi.URLParam(r, "code"), payload.input(""))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, toCouponResponse(c))
}

// Get returns a single coupon.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.Svc.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, toCouponResponse(c))
}
