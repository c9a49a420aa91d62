// Package promotion resolves product-level percentage promotions and their discounts.
package promotion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/money"
	"github.com/noah-isme/storefront/internal/repo"
)

var hundred = decimal.NewFromInt(100)

// LineDiscount is the promotion applied to one cart line.
type LineDiscount struct {
	ProductID      string
	PromotionID    string
	DiscountAmount decimal.Decimal
}

// Discount is the promotion total for a cart and its per-line breakdown.
type Discount struct {
	Total decimal.Decimal
	Lines []LineDiscount
}

// Best picks the promotion with the highest percentage. Equal percentages
// resolve to the lexicographically lowest ID so the applied promotion is stable.
func Best(promos []repo.Promotion) (repo.Promotion, bool) {
	var (
		best  repo.Promotion
		found bool
	)
	for _, p := range promos {
		if !found {
			best, found = p, true
			continue
		}
		switch p.DiscountPercentage.Cmp(best.DiscountPercentage) {
		case 1:
			best = p
		case 0:
			if p.ID < best.ID {
				best = p
			}
		}
	}
	return best, found
}

// DiscountedPrice is round2(price × (1 − pct/100)).
func DiscountedPrice(price decimal.Decimal, p repo.Promotion) decimal.Decimal {
	factor := decimal.NewFromInt(1).Sub(p.DiscountPercentage.Div(hundred))
	return money.Round2(money.ClampZero(price.Mul(factor)))
}

// LineAmount is the discount for qty units at price under p.
func LineAmount(price decimal.Decimal, p repo.Promotion, qty int) decimal.Decimal {
	perUnit := money.ClampZero(price.Sub(DiscountedPrice(price, p)))
	return money.Round2(perUnit.Mul(decimal.NewFromInt(int64(qty))))
}

// Resolver looks promotions up for products and carts.
type Resolver struct {
	Products   repo.ProductRepository
	Promotions repo.PromotionRepository
	Logger     zerolog.Logger
}

// NewResolver binds a resolver to repos.
func NewResolver(repos repo.Repositories, logger zerolog.Logger) *Resolver {
	return &Resolver{Products: repos.Products(), Promotions: repos.Promotions(), Logger: logger}
}

// ActivePromotionsFor returns the promotions linked to productID that are active at now.
func (r *Resolver) ActivePromotionsFor(ctx context.Context, productID string, now time.Time) ([]repo.Promotion, error) {
	promos, err := r.Promotions.ActivePromotionsFor(ctx, productID, now)
	if err != nil {
		return nil, fmt.Errorf("promotions for %s: %w", productID, err)
	}
	out := promos[:0]
	for _, p := range promos {
		if p.ActiveAt(now) {
			out = append(out, p)
		}
	}
	return out, nil
}

// BestPromotionFor returns the promotion applied to productID at now, if any.
func (r *Resolver) BestPromotionFor(ctx context.Context, productID string, now time.Time) (repo.Promotion, bool, error) {
	promos, err := r.ActivePromotionsFor(ctx, productID, now)
	if err != nil {
		return repo.Promotion{}, false, err
	}
	best, ok := Best(promos)
	return best, ok, nil
}

// CartPromotionDiscount sums the best promotion of every line. Lines whose
// product no longer exists contribute nothing.
func (r *Resolver) CartPromotionDiscount(ctx context.Context, cart repo.Cart, now time.Time) (Discount, error) {
	out := Discount{Total: decimal.Zero}
	for _, item := range cart.Items {
		product, err := r.Products.GetProduct(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				r.Logger.Warn().Str("cart_id", cart.ID).Str("product_id", item.ProductID).Msg("promotion skipped for missing product")
				continue
			}
			return Discount{}, err
		}
		best, ok, err := r.BestPromotionFor(ctx, item.ProductID, now)
		if err != nil {
			return Discount{}, err
		}
		if !ok {
			continue
		}
		amount := LineAmount(product.Price, best, item.Quantity)
		out.Lines = append(out.Lines, LineDiscount{ProductID: item.ProductID, PromotionID: best.ID, DiscountAmount: amount})
		out.Total = out.Total.Add(amount)
	}
	out.Total = money.Round2(out.Total)
	return out, nil
}
