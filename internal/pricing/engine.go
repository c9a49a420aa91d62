// Package pricing turns a cart into a priced order: subtotal, shipping,
// promotion discount, coupon discount, tax and total.
package pricing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront/internal/coupon"
	"github.com/noah-isme/storefront/internal/money"
	"github.com/noah-isme/storefront/internal/promotion"
	"github.com/noah-isme/storefront/internal/repo"
	"github.com/noah-isme/storefront/internal/shipping"
)

// Line is a cart line resolved against the live catalog.
type Line struct {
	ProductID     string
	Name          string
	UnitPrice     decimal.Decimal
	Quantity      int
	IsGiftWrapped bool
	GiftMessage   *string
	// Promotion is the best active promotion for the product, if any.
	Promotion *repo.Promotion
}

// Input carries everything Compute needs. It performs no lookups of its own.
type Input struct {
	Lines          []Line
	CouponCode     string
	Coupon         *repo.Coupon
	ShippingMethod string
	Now            time.Time
}

// PricedLine is a line of the breakdown.
type PricedLine struct {
	ProductID         string
	Name              string
	UnitPrice         decimal.Decimal
	Quantity          int
	LineTotal         decimal.Decimal
	PromotionID       string
	PromotionDiscount decimal.Decimal
	IsGiftWrapped     bool
	GiftMessage       *string
}

// PricedOrder is the full breakdown shared by preview and checkout.
type PricedOrder struct {
	Lines             []PricedLine
	ItemCount         int
	Subtotal          decimal.Decimal
	ShippingMethod    string
	ShippingCost      decimal.Decimal
	PromotionDiscount decimal.Decimal
	CouponDiscount    decimal.Decimal
	// CouponCode is set only when the coupon was applied.
	CouponCode *string
	// Coupon is the validation outcome when a code was supplied.
	Coupon *coupon.ValidationResult
	Tax    decimal.Decimal
	Total  decimal.Decimal
}

// Policy holds the store-wide rates.
type Policy struct {
	TaxRate  decimal.Decimal
	Shipping shipping.Table
}

// DefaultPolicy is a flat 8% tax with the default shipping table.
func DefaultPolicy() Policy {
	return Policy{TaxRate: decimal.RequireFromString("0.08"), Shipping: shipping.DefaultTable()}
}

// Compute prices in. It is deterministic: the same Input always yields the same PricedOrder.
// Tax is levied on the subtotal before any discount.
func (p Policy) Compute(in Input) PricedOrder {
	out := PricedOrder{
		Lines:             make([]PricedLine, 0, len(in.Lines)),
		Subtotal:          decimal.Zero,
		PromotionDiscount: decimal.Zero,
		CouponDiscount:    decimal.Zero,
	}

	for _, l := range in.Lines {
		pl := PricedLine{
			ProductID:         l.ProductID,
			Name:              l.Name,
			UnitPrice:         l.UnitPrice,
			Quantity:          l.Quantity,
			LineTotal:         money.Round2(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))),
			PromotionDiscount: decimal.Zero,
			IsGiftWrapped:     l.IsGiftWrapped,
			GiftMessage:       l.GiftMessage,
		}
		if l.Promotion != nil {
			pl.PromotionID = l.Promotion.ID
			pl.PromotionDiscount = promotion.LineAmount(l.UnitPrice, *l.Promotion, l.Quantity)
		}
		out.Subtotal = out.Subtotal.Add(pl.LineTotal)
		out.PromotionDiscount = out.PromotionDiscount.Add(pl.PromotionDiscount)
		out.ItemCount += l.Quantity
		out.Lines = append(out.Lines, pl)
	}
	out.Subtotal = money.Round2(out.Subtotal)
	out.PromotionDiscount = money.Round2(out.PromotionDiscount)

	out.ShippingCost, out.ShippingMethod = p.Shipping.Cost(in.ShippingMethod, out.ItemCount)

	if strings.TrimSpace(in.CouponCode) != "" {
		res := coupon.Evaluate(in.CouponCode, in.Coupon, in.Now, out.Subtotal, out.PromotionDiscount)
		out.Coupon = &res
		if res.IsValid {
			out.CouponDiscount = res.DiscountAmount
			code := res.Coupon.Code
			out.CouponCode = &code
		}
	}

	out.Tax = money.Round2(out.Subtotal.Mul(p.TaxRate))
	total := out.Subtotal.Add(out.Tax).Add(out.ShippingCost).Sub(out.PromotionDiscount).Sub(out.CouponDiscount)
	out.Total = money.Round2(money.ClampZero(total))
	return out
}
