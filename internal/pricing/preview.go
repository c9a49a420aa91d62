package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/coupon"
	"github.com/noah-isme/storefront/internal/promotion"
	"github.com/noah-isme/storefront/internal/repo"
)

// Engine gathers pricing inputs from the repositories and runs Compute.
type Engine struct {
	Repos  repo.Repositories
	Policy Policy
	Now    func() time.Time
	Logger zerolog.Logger
}

// With returns a copy of e reading from repos, typically a transaction.
func (e *Engine) With(repos repo.Repositories) *Engine {
	cp := *e
	cp.Repos = repos
	return &cp
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

// BuildInput resolves cart lines against live prices and promotions at now and
// looks the coupon up. Lines whose product no longer exists are omitted and
// their product ids returned as missing.
func (e *Engine) BuildInput(ctx context.Context, cart repo.Cart, couponCode, method string, now time.Time) (Input, []string, error) {
	resolver := promotion.NewResolver(e.Repos, e.Logger)
	in := Input{CouponCode: couponCode, ShippingMethod: method, Now: now}
	var missing []string

	for _, item := range cart.Items {
		product, err := e.Repos.Products().GetProduct(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				missing = append(missing, item.ProductID)
				continue
			}
			return Input{}, nil, fmt.Errorf("load product %s: %w", item.ProductID, err)
		}
		line := Line{
			ProductID:     product.ID,
			Name:          product.Name,
			UnitPrice:     product.Price,
			Quantity:      item.Quantity,
			IsGiftWrapped: item.IsGiftWrapped,
			GiftMessage:   item.GiftMessage,
		}
		best, ok, err := resolver.BestPromotionFor(ctx, product.ID, now)
		if err != nil {
			return Input{}, nil, err
		}
		if ok {
			line.Promotion = &best
		}
		in.Lines = append(in.Lines, line)
	}

	lookup := &coupon.Service{Coupons: e.Repos.Coupons()}
	c, err := lookup.Lookup(ctx, couponCode)
	if err != nil {
		return Input{}, nil, err
	}
	in.Coupon = c
	return in, missing, nil
}

// Preview prices cart without side effects.
func (e *Engine) Preview(ctx context.Context, cart repo.Cart, couponCode, method string) (PricedOrder, error) {
	if len(cart.Items) == 0 {
		return PricedOrder{}, common.ErrEmptyCart
	}
	in, missing, err := e.BuildInput(ctx, cart, couponCode, method, e.now())
	if err != nil {
		return PricedOrder{}, err
	}
	for _, id := range missing {
		e.Logger.Warn().Str("user_id", cart.UserID).Str("product_id", id).Msg("cart line skipped for missing product")
	}
	priced := e.Policy.Compute(in)
	e.LogDecision(cart.UserID, couponCode, priced)
	return priced, nil
}

// LogDecision records the identifiers and amounts behind a priced order.
func (e *Engine) LogDecision(owner, couponCode string, p PricedOrder) {
	if p.Coupon != nil && !p.Coupon.IsValid {
		e.Logger.Info().
			Str("user_id", owner).
			Str("coupon_code", couponCode).
			Str("reason", p.Coupon.Message).
			Msg("coupon ignored")
	}
	evt := e.Logger.Debug().
		Str("user_id", owner).
		Int("item_count", p.ItemCount).
		Str("subtotal", p.Subtotal.StringFixed(2)).
		Str("promotion_discount", p.PromotionDiscount.StringFixed(2)).
		Str("coupon_discount", p.CouponDiscount.StringFixed(2)).
		Str("shipping_method", p.ShippingMethod).
		Str("total", p.Total.StringFixed(2))
	if p.CouponCode != nil {
		evt = evt.Str("coupon_code", *p.CouponCode)
	}
	evt.Msg("order priced")
}
