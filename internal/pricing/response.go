package pricing

import (
	"github.com/noah-isme/storefront/internal/coupon"
	"github.com/noah-isme/storefront/internal/money"
)

// LineResponse is the JSON shape of a PricedLine.
type LineResponse struct {
	ProductID         string  `json:"productId"`
	Name              string  `json:"name"`
	UnitPrice         string  `json:"unitPrice"`
	Quantity          int     `json:"quantity"`
	LineTotal         string  `json:"lineTotal"`
	PromotionID       string  `json:"promotionId,omitempty"`
	PromotionDiscount string  `json:"promotionDiscount"`
	IsGiftWrapped     bool    `json:"isGiftWrapped"`
	GiftMessage       *string `json:"giftMessage,omitempty"`
}

// Response is the JSON shape of a PricedOrder. Money fields carry two fractional digits.
type Response struct {
	Lines             []LineResponse           `json:"lines"`
	ItemCount         int                      `json:"itemCount"`
	Subtotal          string                   `json:"subtotal"`
	Tax               string                   `json:"tax"`
	ShippingMethod    string                   `json:"shippingMethod"`
	ShippingCost      string                   `json:"shippingCost"`
	PromotionDiscount string                   `json:"promotionDiscount"`
	CouponDiscount    string                   `json:"couponDiscount"`
	CouponCode        *string                  `json:"couponCode"`
	Coupon            *coupon.ValidateResponse `json:"coupon,omitempty"`
	Total             string                   `json:"total"`
}

// ToResponse renders p.
func ToResponse(p PricedOrder) Response {
	out := Response{
		Lines:             make([]LineResponse, 0, len(p.Lines)),
		ItemCount:         p.ItemCount,
		Subtotal:          money.Fixed(p.Subtotal),
		Tax:               money.Fixed(p.Tax),
		ShippingMethod:    p.ShippingMethod,
		ShippingCost:      money.Fixed(p.ShippingCost),
		PromotionDiscount: money.Fixed(p.PromotionDiscount),
		CouponDiscount:    money.Fixed(p.CouponDiscount),
		CouponCode:        p.CouponCode,
		Total:             money.Fixed(p.Total),
	}
	for _, l := range p.Lines {
		out.Lines = append(out.Lines, LineResponse{
			ProductID:         l.ProductID,
			Name:              l.Name,
			UnitPrice:         money.Fixed(l.UnitPrice),
			Quantity:          l.Quantity,
			LineTotal:         money.Fixed(l.LineTotal),
			PromotionID:       l.PromotionID,
			PromotionDiscount: money.Fixed(l.PromotionDiscount),
			IsGiftWrapped:     l.IsGiftWrapped,
			GiftMessage:       l.GiftMessage,
		})
	}
	if p.Coupon != nil {
		c := coupon.ToValidateResponse(*p.Coupon)
		out.Coupon = &c
	}
	return out
}
