package order

import (
	"time"

	"github.com/noah-isme/storefront/internal/money"
	"github.com/noah-isme/storefront/internal/repo"
)

// ItemResponse is the JSON shape of an order line.
type ItemResponse struct {
	ID           string `json:"id"`
	ProductID    string `json:"productId"`
	ProductName  string `json:"productName"`
	UnitPrice    string `json:"unitPrice"`
	Quantity     int    `json:"quantity"`
	LineSubtotal string `json:"lineSubtotal"`
}

// Response is the JSON shape of a persisted order.
type Response struct {
	ID                string         `json:"id"`
	UserID            string         `json:"userId"`
	OrderDate         time.Time      `json:"orderDate"`
	Status            string         `json:"status"`
	Items             []ItemResponse `json:"items,omitempty"`
	Subtotal          string         `json:"subtotal"`
	Tax               string         `json:"tax"`
	ShippingMethod    string         `json:"shippingMethod"`
	ShippingCost      string         `json:"shippingCost"`
	PromotionDiscount string         `json:"promotionDiscount"`
	DiscountAmount    string         `json:"discountAmount"`
	CouponCode        *string        `json:"couponCode"`
	TotalAmount       string         `json:"totalAmount"`
}

// ToResponse renders o. Items are omitted when withItems is false.
func ToResponse(o repo.Order, withItems bool) Response {
	resp := Response{
		ID:                o.ID,
		UserID:            o.UserID,
		OrderDate:         o.OrderDate,
		Status:            o.Status,
		Subtotal:          money.Fixed(o.Subtotal),
		Tax:               money.Fixed(o.Tax),
		ShippingMethod:    o.ShippingMethod,
		ShippingCost:      money.Fixed(o.ShippingCost),
		PromotionDiscount: money.Fixed(o.PromotionDiscount),
		DiscountAmount:    money.Fixed(o.DiscountAmount),
		CouponCode:        o.CouponCode,
		TotalAmount:       money.Fixed(o.TotalAmount),
	}
	if withItems {
		resp.Items = make([]ItemResponse, 0, len(o.Items))
		for _, it := range o.Items {
			resp.Items = append(resp.Items, ItemResponse{
				ID:           it.ID,
				ProductID:    it.ProductID,
				ProductName:  it.ProductName,
				UnitPrice:    money.Fixed(it.UnitPrice),
				Quantity:     it.Quantity,
				LineSubtotal: money.Fixed(it.LineSubtotal),
			})
		}
	}
	return resp
}
