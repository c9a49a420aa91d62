package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/pricing"
	"github.com/noah-isme/storefront/internal/session"
)

// Preview prices the session's cart exactly as Checkout would, without writing anything.
func (s *Service) Preview(ctx context.Context, sess session.Context, in Input) (pricing.PricedOrder, error) {
	if s == nil || s.Store == nil || s.Pricing == nil {
		return pricing.PricedOrder{}, errors.New("checkout service not configured")
	}
	owner := sess.Owner()
	if owner == "" {
		return pricing.PricedOrder{}, fmt.Errorf("session: %w", common.ErrInvalidInput)
	}
	c, err := s.Store.Carts().GetCartByUser(ctx, owner)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return pricing.PricedOrder{}, common.ErrEmptyCart
		}
		return pricing.PricedOrder{}, err
	}
	return s.Pricing.With(s.Store).Preview(ctx, c, in.CouponCode, in.ShippingMethod)
}
