// Package memstore is an in-memory repo.Store used by tests and STORE_DRIVER=memory.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/repo"
)

type state struct {
	products    map[string]repo.Product
	coupons     map[string]repo.Coupon
	carts       map[string]repo.Cart
	cartsByUser map[string]string
	promotions  map[string]repo.Promotion
	orders      map[string]repo.Order
	events      []repo.DomainEvent
}

func newState() *state {
	return &state{
		products:    map[string]repo.Product{},
		coupons:     map[string]repo.Coupon{},
		carts:       map[string]repo.Cart{},
		cartsByUser: map[string]string{},
		promotions:  map[string]repo.Promotion{},
		orders:      map[string]repo.Order{},
	}
}

func (s *state) clone() *state {
	out := newState()
	for k, v := range s.products {
		out.products[k] = v
	}
	for k, v := range s.coupons {
		out.coupons[k] = v
	}
	for k, v := range s.carts {
		out.carts[k] = cloneCart(v)
	}
	for k, v := range s.cartsByUser {
		out.cartsByUser[k] = v
	}
	for k, v := range s.promotions {
		out.promotions[k] = v
	}
	for k, v := range s.orders {
		out.orders[k] = v
	}
	out.events = append(out.events, s.events...)
	return out
}

// Store keeps every entity in maps guarded by one mutex. Transactions are
// serialized and roll back by restoring a snapshot taken when they began.
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex
	st   *state
	Now  func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// InTx runs fn against the store and restores the previous state when fn fails.
func (s *Store) InTx(ctx context.Context, fn func(repo.Repositories) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.st.clone()
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
		return err
	}
	return ctx.Err()
}

func (s *Store) Products() repo.ProductRepository     { return s }
func (s *Store) Coupons() repo.CouponRepository       { return s }
func (s *Store) Carts() repo.CartRepository           { return s }
func (s *Store) Promotions() repo.PromotionRepository { return s }
func (s *Store) Orders() repo.OrderRepository         { return s }
func (s *Store) Events() repo.EventRepository         { return s }

// PutProduct inserts or replaces a product, assigning an id when empty.
func (s *Store) PutProduct(p repo.Product) repo.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.st.products[p.ID] = p
	return p
}

// DeleteProduct removes a product.
func (s *Store) DeleteProduct(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.st.products, id)
}

// GetProduct implements repo.ProductRepository.
func (s *Store) GetProduct(_ context.Context, id string) (repo.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.products[id]
	if !ok {
		return repo.Product{}, fmt.Errorf("product %s: %w", id, common.ErrNotFound)
	}
	return p, nil
}

// DecrementStock implements repo.ProductRepository.
func (s *Store) DecrementStock(_ context.Context, id string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.products[id]
	if !ok {
		return fmt.Errorf("product %s: %w", id, common.ErrNotFound)
	}
	if p.StockQuantity < qty {
		return fmt.Errorf("decrement stock of %s: %w", id, common.ErrConcurrentModification)
	}
	p.StockQuantity -= qty
	s.st.products[id] = p
	return nil
}

// FindCouponByCode implements repo.CouponRepository.
func (s *Store) FindCouponByCode(_ context.Context, code string) (repo.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.st.coupons[repo.NormalizeCode(code)]
	if !ok {
		return repo.Coupon{}, fmt.Errorf("coupon %s: %w", code, common.ErrNotFound)
	}
	return c, nil
}

// CreateCoupon implements repo.CouponRepository.
func (s *Store) CreateCoupon(_ context.Context, c repo.Coupon) (repo.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Code = repo.NormalizeCode(c.Code)
	if _, exists := s.st.coupons[c.Code]; exists {
		return repo.Coupon{}, fmt.Errorf("coupon %s: %w", c.Code, common.ErrConflict)
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := s.now()
	c.CreatedAt, c.UpdatedAt = now, now
	s.st.coupons[c.Code] = c
	return c, nil
}

// UpdateCoupon implements repo.CouponRepository. TimesUsed is never overwritten.
func (s *Store) UpdateCoupon(_ context.Context, c repo.Coupon) (repo.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Code = repo.NormalizeCode(c.Code)
	existing, ok := s.st.coupons[c.Code]
	if !ok {
		return repo.Coupon{}, fmt.Errorf("coupon %s: %w", c.Code, common.ErrNotFound)
	}
	c.ID = existing.ID
	c.TimesUsed = existing.TimesUsed
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = s.now()
	s.st.coupons[c.Code] = c
	return c, nil
}

// PutCoupon stores a coupon as-is, keyed by its normalized code.
func (s *Store) PutCoupon(c repo.Coupon) repo.Coupon {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.Code = repo.NormalizeCode(c.Code)
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	s.st.coupons[c.Code] = c
	return c
}

// IncrementCouponUsage implements repo.CouponRepository.
func (s *Store) IncrementCouponUsage(_ context.Context, code string) (repo.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := repo.NormalizeCode(code)
	c, ok := s.st.coupons[key]
	if !ok {
		return repo.Coupon{}, fmt.Errorf("coupon %s: %w", code, common.ErrNotFound)
	}
	if c.UsageLimit != nil && c.TimesUsed >= *c.UsageLimit {
		return repo.Coupon{}, fmt.Errorf("increment usage of %s: %w", key, common.ErrConcurrentModification)
	}
	c.TimesUsed++
	c.UpdatedAt = s.now()
	s.st.coupons[key] = c
	return c, nil
}

// GetCartByUser implements repo.CartRepository.
func (s *Store) GetCartByUser(_ context.Context, userID string) (repo.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.st.cartsByUser[userID]
	if !ok {
		return repo.Cart{}, fmt.Errorf("cart for %s: %w", userID, common.ErrNotFound)
	}
	return cloneCart(s.st.carts[id]), nil
}

// CreateCart implements repo.CartRepository.
func (s *Store) CreateCart(_ context.Context, userID string) (repo.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.st.cartsByUser[userID]; exists {
		return repo.Cart{}, fmt.Errorf("cart for %s: %w", userID, common.ErrConflict)
	}
	now := s.now()
	c := repo.Cart{ID: uuid.NewString(), UserID: userID, CreatedAt: now, UpdatedAt: now}
	s.st.carts[c.ID] = c
	s.st.cartsByUser[userID] = c.ID
	return cloneCart(c), nil
}

// SaveCart implements repo.CartRepository.
func (s *Store) SaveCart(_ context.Context, c repo.Cart) (repo.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.st.carts[c.ID]
	if !ok {
		return repo.Cart{}, fmt.Errorf("cart %s: %w", c.ID, common.ErrNotFound)
	}
	c.UserID = existing.UserID
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = s.now()
	c = cloneCart(c)
	for i := range c.Items {
		if c.Items[i].ID == "" {
			c.Items[i].ID = uuid.NewString()
		}
		c.Items[i].CartID = c.ID
	}
	s.st.carts[c.ID] = c
	return cloneCart(c), nil
}

// DeleteCart implements repo.CartRepository.
func (s *Store) DeleteCart(_ context.Context, cartID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.st.carts[cartID]
	if !ok {
		return fmt.Errorf("cart %s: %w", cartID, common.ErrNotFound)
	}
	delete(s.st.carts, cartID)
	delete(s.st.cartsByUser, c.UserID)
	return nil
}

// ActivePromotionsFor implements repo.PromotionRepository.
func (s *Store) ActivePromotionsFor(_ context.Context, productID string, now time.Time) ([]repo.Promotion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []repo.Promotion
	for _, p := range s.st.promotions {
		if !p.ActiveAt(now) {
			continue
		}
		for _, id := range p.ProductIDs {
			if id == productID {
				out = append(out, p)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreatePromotion implements repo.PromotionRepository.
func (s *Store) CreatePromotion(_ context.Context, p repo.Promotion) (repo.Promotion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.ProductIDs = append([]string(nil), p.ProductIDs...)
	s.st.promotions[p.ID] = p
	return p, nil
}

// CreateOrder implements repo.OrderRepository.
func (s *Store) CreateOrder(_ context.Context, o repo.Order) (repo.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.OrderDate.IsZero() {
		o.OrderDate = s.now()
	}
	items := make([]repo.OrderItem, len(o.Items))
	for i, it := range o.Items {
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		it.OrderID = o.ID
		items[i] = it
	}
	o.Items = items
	s.st.orders[o.ID] = o
	return o, nil
}

// GetOrder implements repo.OrderRepository.
func (s *Store) GetOrder(_ context.Context, id string) (repo.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.st.orders[id]
	if !ok {
		return repo.Order{}, fmt.Errorf("order %s: %w", id, common.ErrNotFound)
	}
	return o, nil
}

// ListOrdersByUser implements repo.OrderRepository, newest first.
func (s *Store) ListOrdersByUser(_ context.Context, userID string, limit, offset int) ([]repo.Order, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []repo.Order
	for _, o := range s.st.orders {
		if o.UserID == userID {
			all = append(all, o)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].OrderDate.After(all[j].OrderDate) })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], total, nil
}

// UpdateOrderStatus implements repo.OrderRepository.
func (s *Store) UpdateOrderStatus(_ context.Context, id, status string) (repo.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.st.orders[id]
	if !ok {
		return repo.Order{}, fmt.Errorf("order %s: %w", id, common.ErrNotFound)
	}
	o.Status = status
	s.st.orders[id] = o
	return o, nil
}

// InsertDomainEvent implements repo.EventRepository.
func (s *Store) InsertDomainEvent(_ context.Context, ev repo.DomainEvent) (repo.DomainEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = s.now()
	}
	ev.Payload = append([]byte(nil), ev.Payload...)
	s.st.events = append(s.st.events, ev)
	return ev, nil
}

// RecordedEvents returns a copy of every recorded domain event.
func (s *Store) RecordedEvents() []repo.DomainEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]repo.DomainEvent(nil), s.st.events...)
}

func cloneCart(c repo.Cart) repo.Cart {
	if c.Items != nil {
		c.Items = append([]repo.CartItem(nil), c.Items...)
	}
	return c
}
