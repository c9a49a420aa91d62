// Package checkout materializes a priced cart into a persisted order.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/coupon"
	"github.com/noah-isme/storefront/internal/events"
	"github.com/noah-isme/storefront/internal/lock"
	"github.com/noah-isme/storefront/internal/money"
	"github.com/noah-isme/storefront/internal/obs"
	"github.com/noah-isme/storefront/internal/pricing"
	"github.com/noah-isme/storefront/internal/repo"
	"github.com/noah-isme/storefront/internal/session"
)

const defaultLockTTL = 15 * time.Second

// Input is the shopper's checkout request.
type Input struct {
	CouponCode     string `json:"couponCode" validate:"omitempty,max=50"`
	ShippingMethod string `json:"shippingMethod" validate:"omitempty,max=20"`
}

// Service turns the session's cart into an order in one transaction.
type Service struct {
	Store   repo.Store
	Pricing *pricing.Engine
	Coupons *coupon.Service
	Events  *events.Bus
	Locker  lock.Locker
	LockTTL time.Duration
	Now     func() time.Time
	Logger  zerolog.Logger
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

type result struct {
	order    repo.Order
	priced   pricing.PricedOrder
	redeemed *repo.Coupon
}

// Checkout prices the cart, decrements stock, persists the order, redeems the
// coupon and clears the cart. Nothing is kept when any step fails. A lost race
// on coupon usage is retried once with fresh data.
func (s *Service) Checkout(ctx context.Context, sess session.Context, in Input) (repo.Order, error) {
	if s == nil || s.Store == nil || s.Pricing == nil {
		return repo.Order{}, errors.New("checkout service not configured")
	}
	owner := sess.Owner()
	if owner == "" {
		return repo.Order{}, fmt.Errorf("session: %w", common.ErrInvalidInput)
	}
	locker := s.Locker
	if locker == nil {
		locker = lock.NewLocal()
	}
	ttl := s.LockTTL
	if ttl <= 0 {
		ttl = defaultLockTTL
	}

	var res result
	err := locker.WithLock(ctx, lock.CheckoutKey(owner), ttl, func(ctx context.Context) error {
		var err error
		res, err = s.attempt(ctx, owner, in)
		if errors.Is(err, common.ErrConcurrentModification) {
			obs.RecordCheckoutRetry()
			s.Logger.Info().Str("user_id", owner).Msg("checkout retried after concurrent modification")
			res, err = s.attempt(ctx, owner, in)
		}
		return err
	})
	if err != nil {
		s.recordFailure(owner, err)
		return repo.Order{}, err
	}
	s.afterCommit(ctx, res)
	return res.order, nil
}

func (s *Service) attempt(ctx context.Context, owner string, in Input) (result, error) {
	var res result
	err := s.Store.InTx(ctx, func(repos repo.Repositories) error {
		c, err := repos.Carts().GetCartByUser(ctx, owner)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return common.ErrEmptyCart
			}
			return err
		}
		if len(c.Items) == 0 {
			return common.ErrEmptyCart
		}

		engine := s.Pricing.With(repos)
		input, missing, err := engine.BuildInput(ctx, c, in.CouponCode, in.ShippingMethod, s.now())
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			return fmt.Errorf("product %s: %w", missing[0], common.ErrNotFound)
		}
		priced := engine.Policy.Compute(input)
		engine.LogDecision(owner, in.CouponCode, priced)

		items := make([]repo.OrderItem, 0, len(priced.Lines))
		for _, l := range priced.Lines {
			if err := repos.Products().DecrementStock(ctx, l.ProductID, l.Quantity); err != nil {
				return stockError(ctx, repos, l, err)
			}
			items = append(items, repo.OrderItem{
				ProductID:    l.ProductID,
				ProductName:  l.Name,
				UnitPrice:    l.UnitPrice,
				Quantity:     l.Quantity,
				LineSubtotal: l.LineTotal,
			})
		}

		order, err := repos.Orders().CreateOrder(ctx, repo.Order{
			UserID:            owner,
			OrderDate:         s.now(),
			Items:             items,
			Subtotal:          priced.Subtotal,
			Tax:               priced.Tax,
			ShippingCost:      priced.ShippingCost,
			ShippingMethod:    priced.ShippingMethod,
			PromotionDiscount: priced.PromotionDiscount,
			DiscountAmount:    priced.CouponDiscount,
			CouponCode:        priced.CouponCode,
			TotalAmount:       priced.Total,
			Status:            repo.OrderStatusPending,
		})
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		var redeemed *repo.Coupon
		if priced.CouponCode != nil {
			coupons := s.couponService(repos)
			cpn, err := coupons.IncrementUsage(ctx, *priced.CouponCode)
			if err != nil {
				return err
			}
			redeemed = &cpn
		}

		c.Items = nil
		if _, err := repos.Carts().SaveCart(ctx, c); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
		res = result{order: order, priced: priced, redeemed: redeemed}
		return nil
	})
	return res, err
}

func (s *Service) couponService(repos repo.Repositories) *coupon.Service {
	if s.Coupons != nil {
		return s.Coupons.With(repos)
	}
	return &coupon.Service{Coupons: repos.Coupons(), Logger: s.Logger}
}

// stockError explains a failed decrement. A guarded-update conflict becomes an
// InsufficientStockError with the stock left at this point in the transaction.
func stockError(ctx context.Context, repos repo.Repositories, l pricing.PricedLine, err error) error {
	if !errors.Is(err, common.ErrConcurrentModification) {
		return fmt.Errorf("decrement stock %s: %w", l.ProductID, err)
	}
	product, getErr := repos.Products().GetProduct(ctx, l.ProductID)
	if getErr != nil {
		return fmt.Errorf("decrement stock %s: %w", l.ProductID, getErr)
	}
	return &common.InsufficientStockError{ProductID: l.ProductID, Requested: l.Quantity, Available: product.StockQuantity}
}

func (s *Service) afterCommit(ctx context.Context, res result) {
	o := res.order
	s.Logger.Info().
		Str("order_id", o.ID).
		Str("user_id", o.UserID).
		Str("total", money.Fixed(o.TotalAmount)).
		Int("item_count", res.priced.ItemCount).
		Msg("order placed")

	s.Events.Publish(ctx, events.TopicOrderCreated, o.ID, events.OrderCreated{
		OrderID:        o.ID,
		UserID:         o.UserID,
		TotalAmount:    money.Fixed(o.TotalAmount),
		CouponCode:     o.CouponCode,
		ShippingMethod: o.ShippingMethod,
		ItemCount:      res.priced.ItemCount,
	})
	if res.redeemed != nil {
		s.Events.Publish(ctx, events.TopicCouponRedeemed, res.redeemed.Code, events.CouponRedeemed{
			Code:      res.redeemed.Code,
			OrderID:   o.ID,
			TimesUsed: res.redeemed.TimesUsed,
		})
	}

	obs.RecordCheckout("success")
	obs.RecordDiscount("promotion", o.PromotionDiscount.InexactFloat64())
	obs.RecordDiscount("coupon", o.DiscountAmount.InexactFloat64())
	obs.ObserveOrderValue(o.TotalAmount.InexactFloat64())
}

func (s *Service) recordFailure(owner string, err error) {
	var stockErr *common.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		obs.RecordCheckout("insufficient_stock")
		obs.RecordStockRejection()
		s.Logger.Info().Str("user_id", owner).Str("product_id", stockErr.ProductID).
			Int("requested", stockErr.Requested).Int("available", stockErr.Available).
			Msg("checkout rejected for stock")
	case errors.Is(err, common.ErrEmptyCart):
		obs.RecordCheckout("empty_cart")
	case errors.Is(err, common.ErrConcurrentModification):
		obs.RecordCheckout("conflict")
		s.Logger.Warn().Str("user_id", owner).Msg("checkout conflict persisted after retry")
	case errors.Is(err, common.ErrNotFound):
		obs.RecordCheckout("not_found")
		s.Logger.Warn().Err(err).Str("user_id", owner).Msg("checkout referenced a missing product")
	default:
		obs.RecordCheckout("error")
		s.Logger.Error().Err(err).Str("user_id", owner).Msg("checkout failed")
	}
}
