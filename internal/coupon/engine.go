// Package coupon validates order-level coupons and tracks their redemptions.
package coupon

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront/internal/money"
	"github.com/noah-isme/storefront/internal/repo"
)

// Messages returned on ValidationResult, in the order the checks run.
const (
	MsgEmptyCode      = "Coupon code cannot be empty"
	MsgInvalidCode    = "Invalid coupon code"
	MsgInactive       = "This coupon is no longer active"
	MsgOutsideWindow  = "This coupon is not valid at this time"
	MsgUsageExhausted = "This coupon has reached its usage limit"
	MsgApplied        = "Coupon applied successfully"
)

// MinimumOrderMessage is the message for an order below the coupon minimum.
func MinimumOrderMessage(minimum decimal.Decimal) string {
	return "Minimum order amount of " + money.Format(minimum) + " required for this coupon"
}

// ValidationResult is the outcome of checking a coupon against an order.
// Invalid coupons are reported here, never as errors.
type ValidationResult struct {
	IsValid        bool
	Message        string
	DiscountAmount decimal.Decimal
	FinalAmount    decimal.Decimal
	Coupon         *repo.Coupon
}

func invalid(msg string, c *repo.Coupon) ValidationResult {
	return ValidationResult{Message: msg, DiscountAmount: decimal.Zero, FinalAmount: decimal.Zero, Coupon: c}
}

// Evaluate runs the coupon rules for code. c is the stored coupon or nil when
// the lookup found nothing. The minimum order is checked against orderAmount
// before promotions; the discount applies to orderAmount minus promotionDiscount.
func Evaluate(code string, c *repo.Coupon, now time.Time, orderAmount, promotionDiscount decimal.Decimal) ValidationResult {
	if strings.TrimSpace(code) == "" {
		return invalid(MsgEmptyCode, nil)
	}
	if c == nil {
		return invalid(MsgInvalidCode, nil)
	}
	if !c.IsActive {
		return invalid(MsgInactive, c)
	}
	if now.Before(c.StartDate) || now.After(c.EndDate) {
		return invalid(MsgOutsideWindow, c)
	}
	if c.UsageLimit != nil && c.TimesUsed >= *c.UsageLimit {
		return invalid(MsgUsageExhausted, c)
	}
	if orderAmount.LessThan(c.MinimumOrderAmount) {
		return invalid(MinimumOrderMessage(c.MinimumOrderAmount), c)
	}

	amountForDiscount := money.ClampZero(orderAmount.Sub(promotionDiscount))
	var discount decimal.Decimal
	switch c.DiscountType {
	case repo.DiscountPercentage:
		discount = money.Percent(amountForDiscount, c.DiscountAmount)
	default:
		discount = money.Min(c.DiscountAmount, amountForDiscount)
	}
	discount = money.Round2(money.ClampZero(discount))
	if discount.GreaterThan(amountForDiscount) {
		discount = money.Round2(amountForDiscount)
	}
	final := money.Round2(money.ClampZero(amountForDiscount.Sub(discount)))

	return ValidationResult{
		IsValid:        true,
		Message:        MsgApplied,
		DiscountAmount: discount,
		FinalAmount:    final,
		Coupon:         c,
	}
}
