// Package repo defines the persistence contracts of the checkout core and the
// entities that flow through them.
package repo

import (
	"context"
	"time"
)

// ProductRepository reads products and decrements stock.
type ProductRepository interface {
	GetProduct(ctx context.Context, id string) (Product, error)
	// DecrementStock subtracts qty only if at least qty units remain. It returns
	// common.ErrNotFound when the product is gone and common.ErrConcurrentModification
	// when the remaining stock dropped below qty.
	DecrementStock(ctx context.Context, id string, qty int) error
}

// CouponRepository stores coupons keyed by upper-cased code.
type CouponRepository interface {
	FindCouponByCode(ctx context.Context, code string) (Coupon, error)
	CreateCoupon(ctx context.Context, c Coupon) (Coupon, error)
	UpdateCoupon(ctx context.Context, c Coupon) (Coupon, error)
	// IncrementCouponUsage bumps times_used by one unless the usage limit is reached,
	// in which case common.ErrConcurrentModification is returned.
	IncrementCouponUsage(ctx context.Context, code string) (Coupon, error)
}

// CartRepository persists carts as whole aggregates.
type CartRepository interface {
	GetCartByUser(ctx context.Context, userID string) (Cart, error)
	CreateCart(ctx context.Context, userID string) (Cart, error)
	// SaveCart replaces the stored lines of the cart with c.Items.
	SaveCart(ctx context.Context, c Cart) (Cart, error)
	DeleteCart(ctx context.Context, cartID string) error
}

// PromotionRepository returns promotions linked to products.
type PromotionRepository interface {
	ActivePromotionsFor(ctx context.Context, productID string, now time.Time) ([]Promotion, error)
	CreatePromotion(ctx context.Context, p Promotion) (Promotion, error)
}

// OrderRepository persists materialized orders.
type OrderRepository interface {
	CreateOrder(ctx context.Context, o Order) (Order, error)
	GetOrder(ctx context.Context, id string) (Order, error)
	ListOrdersByUser(ctx context.Context, userID string, limit, offset int) ([]Order, int, error)
	UpdateOrderStatus(ctx context.Context, id, status string) (Order, error)
}

// EventRepository persists domain events.
type EventRepository interface {
	InsertDomainEvent(ctx context.Context, ev DomainEvent) (DomainEvent, error)
}

// Repositories groups every repository bound to one connection or transaction.
type Repositories interface {
	Products() ProductRepository
	Coupons() CouponRepository
	Carts() CartRepository
	Promotions() PromotionRepository
	Orders() OrderRepository
	Events() EventRepository
}

// Store is a Repositories root that can open transactions. fn's Repositories
// are bound to the transaction; the transaction commits when fn returns nil.
type Store interface {
	Repositories
	InTx(ctx context.Context, fn func(Repositories) error) error
}
