// Package pgstore implements repo.Store on PostgreSQL with pgx.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/repo"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Store is the pool-backed root. Repositories returned from InTx share one transaction.
type Store struct {
	pool *pgxpool.Pool
	q    *queries
}

// New wraps an open pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, q: &queries{db: pool}}
}

// InTx runs fn inside a read-committed transaction.
func (s *Store) InTx(ctx context.Context, fn func(repo.Repositories) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(&queries{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) Products() repo.ProductRepository     { return s.q }
func (s *Store) Coupons() repo.CouponRepository       { return s.q }
func (s *Store) Carts() repo.CartRepository           { return s.q }
func (s *Store) Promotions() repo.PromotionRepository { return s.q }
func (s *Store) Orders() repo.OrderRepository         { return s.q }
func (s *Store) Events() repo.EventRepository         { return s.q }

type queries struct {
	db DBTX
}

func (q *queries) Products() repo.ProductRepository     { return q }
func (q *queries) Coupons() repo.CouponRepository       { return q }
func (q *queries) Carts() repo.CartRepository           { return q }
func (q *queries) Promotions() repo.PromotionRepository { return q }
func (q *queries) Orders() repo.OrderRepository         { return q }
func (q *queries) Events() repo.EventRepository         { return q }

// mapErr converts driver errors into the shared sentinels.
func mapErr(what string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, common.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%s: %w", what, common.ErrConflict)
		case "22P02", "23503":
			// malformed uuid or dangling reference
			return fmt.Errorf("%s: %w", what, common.ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}

const getProduct = `SELECT id, name, price, stock_quantity FROM products WHERE id = $1`

func (q *queries) GetProduct(ctx context.Context, id string) (repo.Product, error) {
	var p repo.Product
	err := q.db.QueryRow(ctx, getProduct, id).Scan(&p.ID, &p.Name, &p.Price, &p.StockQuantity)
	if err != nil {
		return repo.Product{}, mapErr("product "+id, err)
	}
	return p, nil
}

const decrementStock = `UPDATE products SET stock_quantity = stock_quantity - $2
WHERE id = $1 AND stock_quantity >= $2`

func (q *queries) DecrementStock(ctx context.Context, id string, qty int) error {
	tag, err := q.db.Exec(ctx, decrementStock, id, qty)
	if err != nil {
		return mapErr("decrement stock of "+id, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := q.GetProduct(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("decrement stock of %s: %w", id, common.ErrConcurrentModification)
}

const upsertProduct = `INSERT INTO products (id, name, price, stock_quantity)
VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4)
ON CONFLICT (id) DO UPDATE
SET name = EXCLUDED.name, price = EXCLUDED.price, stock_quantity = EXCLUDED.stock_quantity
RETURNING id`

// PutProduct inserts or replaces a catalog row. The catalog itself is managed elsewhere;
// seed tooling uses this to stage demo data.
func (s *Store) PutProduct(ctx context.Context, p repo.Product) (repo.Product, error) {
	if err := s.pool.QueryRow(ctx, upsertProduct, p.ID, p.Name, p.Price, p.StockQuantity).Scan(&p.ID); err != nil {
		return repo.Product{}, mapErr("put product", err)
	}
	return p, nil
}

const couponColumns = `id, code, discount_type, discount_amount, minimum_order_amount,
start_date, end_date, usage_limit, times_used, is_active, created_at, updated_at`

func scanCoupon(row pgx.Row) (repo.Coupon, error) {
	var (
		c     repo.Coupon
		dtype string
	)
	err := row.Scan(&c.ID, &c.Code, &dtype, &c.DiscountAmount, &c.MinimumOrderAmount,
		&c.StartDate, &c.EndDate, &c.UsageLimit, &c.TimesUsed, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	c.DiscountType = repo.DiscountType(dtype)
	return c, err
}

func (q *queries) FindCouponByCode(ctx context.Context, code string) (repo.Coupon, error) {
	c, err := scanCoupon(q.db.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code = $1`, repo.NormalizeCode(code)))
	if err != nil {
		return repo.Coupon{}, mapErr("coupon "+code, err)
	}
	return c, nil
}

const createCoupon = `INSERT INTO coupons (code, discount_type, discount_amount, minimum_order_amount,
start_date, end_date, usage_limit, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + couponColumns

func (q *queries) CreateCoupon(ctx context.Context, c repo.Coupon) (repo.Coupon, error) {
	code := repo.NormalizeCode(c.Code)
	out, err := scanCoupon(q.db.QueryRow(ctx, createCoupon, code, string(c.DiscountType), c.DiscountAmount,
		c.MinimumOrderAmount, c.StartDate, c.EndDate, c.UsageLimit, c.IsActive))
	if err != nil {
		return repo.Coupon{}, mapErr("create coupon "+code, err)
	}
	return out, nil
}

const updateCoupon = `UPDATE coupons SET discount_type = $2, discount_amount = $3, minimum_order_amount = $4,
start_date = $5, end_date = $6, usage_limit = $7, is_active = $8, updated_at = now()
WHERE code = $1
RETURNING ` + couponColumns

func (q *queries) UpdateCoupon(ctx context.Context, c repo.Coupon) (repo.Coupon, error) {
	code := repo.NormalizeCode(c.Code)
	out, err := scanCoupon(q.db.QueryRow(ctx, updateCoupon, code, string(c.DiscountType), c.DiscountAmount,
		c.MinimumOrderAmount, c.StartDate, c.EndDate, c.UsageLimit, c.IsActive))
	if err != nil {
		return repo.Coupon{}, mapErr("update coupon "+code, err)
	}
	return out, nil
}

const incrementCouponUsage = `UPDATE coupons SET times_used = times_used + 1, updated_at = now()
WHERE code = $1 AND (usage_limit IS NULL OR times_used < usage_limit)
RETURNING ` + couponColumns

func (q *queries) IncrementCouponUsage(ctx context.Context, code string) (repo.Coupon, error) {
	key := repo.NormalizeCode(code)
	out, err := scanCoupon(q.db.QueryRow(ctx, incrementCouponUsage, key))
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return repo.Coupon{}, mapErr("increment usage of "+key, err)
	}
	if _, err := q.FindCouponByCode(ctx, key); err != nil {
		return repo.Coupon{}, err
	}
	return repo.Coupon{}, fmt.Errorf("increment usage of %s: %w", key, common.ErrConcurrentModification)
}

const cartItems = `SELECT id, cart_id, product_id, quantity, is_gift_wrapped, gift_message, added_at
FROM cart_items WHERE cart_id = $1 ORDER BY position, added_at`

func (q *queries) loadItems(ctx context.Context, c *repo.Cart) error {
	rows, err := q.db.Query(ctx, cartItems, c.ID)
	if err != nil {
		return mapErr("cart items "+c.ID, err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (repo.CartItem, error) {
		var it repo.CartItem
		err := row.Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity, &it.IsGiftWrapped, &it.GiftMessage, &it.AddedAt)
		return it, err
	})
	if err != nil {
		return mapErr("cart items "+c.ID, err)
	}
	c.Items = items
	return nil
}

func (q *queries) GetCartByUser(ctx context.Context, userID string) (repo.Cart, error) {
	var c repo.Cart
	err := q.db.QueryRow(ctx, `SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id = $1`, userID).
		Scan(&c.ID, &c.UserID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return repo.Cart{}, mapErr("cart for "+userID, err)
	}
	if err := q.loadItems(ctx, &c); err != nil {
		return repo.Cart{}, err
	}
	return c, nil
}

func (q *queries) CreateCart(ctx context.Context, userID string) (repo.Cart, error) {
	var c repo.Cart
	err := q.db.QueryRow(ctx, `INSERT INTO carts (user_id) VALUES ($1) RETURNING id, user_id, created_at, updated_at`, userID).
		Scan(&c.ID, &c.UserID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return repo.Cart{}, mapErr("cart for "+userID, err)
	}
	return c, nil
}

const insertCartItem = `INSERT INTO cart_items (cart_id, product_id, quantity, is_gift_wrapped, gift_message, added_at, position)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

// SaveCart rewrites every line of the cart in one batch.
func (q *queries) SaveCart(ctx context.Context, c repo.Cart) (repo.Cart, error) {
	var updated time.Time
	var userID string
	err := q.db.QueryRow(ctx, `UPDATE carts SET updated_at = now() WHERE id = $1 RETURNING user_id, updated_at`, c.ID).
		Scan(&userID, &updated)
	if err != nil {
		return repo.Cart{}, mapErr("cart "+c.ID, err)
	}

	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM cart_items WHERE cart_id = $1`, c.ID)
	for i, it := range c.Items {
		addedAt := it.AddedAt
		if addedAt.IsZero() {
			addedAt = updated
		}
		batch.Queue(insertCartItem, c.ID, it.ProductID, it.Quantity, it.IsGiftWrapped, it.GiftMessage, addedAt, i)
	}
	if err := q.db.SendBatch(ctx, batch).Close(); err != nil {
		return repo.Cart{}, mapErr("save cart "+c.ID, err)
	}

	out := repo.Cart{ID: c.ID, UserID: userID, CreatedAt: c.CreatedAt, UpdatedAt: updated}
	if err := q.loadItems(ctx, &out); err != nil {
		return repo.Cart{}, err
	}
	return out, nil
}

func (q *queries) DeleteCart(ctx context.Context, cartID string) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM carts WHERE id = $1`, cartID)
	if err != nil {
		return mapErr("cart "+cartID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("cart %s: %w", cartID, common.ErrNotFound)
	}
	return nil
}

const activePromotions = `SELECT p.id, p.name, p.discount_percentage, p.start_date, p.end_date, p.is_active
FROM promotions p
JOIN promotion_products pp ON pp.promotion_id = p.id
WHERE pp.product_id = $1 AND p.is_active AND p.start_date <= $2 AND p.end_date >= $2
ORDER BY p.id`

func (q *queries) ActivePromotionsFor(ctx context.Context, productID string, now time.Time) ([]repo.Promotion, error) {
	rows, err := q.db.Query(ctx, activePromotions, productID, now)
	if err != nil {
		return nil, mapErr("promotions for "+productID, err)
	}
	promos, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (repo.Promotion, error) {
		var p repo.Promotion
		err := row.Scan(&p.ID, &p.Name, &p.DiscountPercentage, &p.StartDate, &p.EndDate, &p.IsActive)
		p.ProductIDs = []string{productID}
		return p, err
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "22P02" {
			return nil, nil
		}
		return nil, mapErr("promotions for "+productID, err)
	}
	return promos, nil
}

func (q *queries) CreatePromotion(ctx context.Context, p repo.Promotion) (repo.Promotion, error) {
	err := q.db.QueryRow(ctx, `INSERT INTO promotions (name, discount_percentage, start_date, end_date, is_active)
VALUES ($1, $2, $3, $4, $5) RETURNING id`, p.Name, p.DiscountPercentage, p.StartDate, p.EndDate, p.IsActive).Scan(&p.ID)
	if err != nil {
		return repo.Promotion{}, mapErr("create promotion", err)
	}
	if len(p.ProductIDs) > 0 {
		batch := &pgx.Batch{}
		for _, pid := range p.ProductIDs {
			batch.Queue(`INSERT INTO promotion_products (promotion_id, product_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, p.ID, pid)
		}
		if err := q.db.SendBatch(ctx, batch).Close(); err != nil {
			return repo.Promotion{}, mapErr("link promotion products", err)
		}
	}
	return p, nil
}

const orderColumns = `id, user_id, order_date, subtotal, tax, shipping_cost, shipping_method,
promotion_discount, discount_amount, coupon_code, total_amount, status`

func scanOrder(row pgx.Row) (repo.Order, error) {
	var o repo.Order
	err := row.Scan(&o.ID, &o.UserID, &o.OrderDate, &o.Subtotal, &o.Tax, &o.ShippingCost, &o.ShippingMethod,
		&o.PromotionDiscount, &o.DiscountAmount, &o.CouponCode, &o.TotalAmount, &o.Status)
	return o, err
}

const insertOrder = `INSERT INTO orders (user_id, order_date, subtotal, tax, shipping_cost, shipping_method,
promotion_discount, discount_amount, coupon_code, total_amount, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING ` + orderColumns

const insertOrderItem = `INSERT INTO order_items (order_id, product_id, product_name, unit_price, quantity, line_subtotal, position)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

func (q *queries) CreateOrder(ctx context.Context, o repo.Order) (repo.Order, error) {
	if o.OrderDate.IsZero() {
		o.OrderDate = time.Now().UTC()
	}
	out, err := scanOrder(q.db.QueryRow(ctx, insertOrder, o.UserID, o.OrderDate, o.Subtotal, o.Tax, o.ShippingCost,
		o.ShippingMethod, o.PromotionDiscount, o.DiscountAmount, o.CouponCode, o.TotalAmount, o.Status))
	if err != nil {
		return repo.Order{}, mapErr("create order", err)
	}
	batch := &pgx.Batch{}
	for i, it := range o.Items {
		batch.Queue(insertOrderItem, out.ID, it.ProductID, it.ProductName, it.UnitPrice, it.Quantity, it.LineSubtotal, i)
	}
	if err := q.db.SendBatch(ctx, batch).Close(); err != nil {
		return repo.Order{}, mapErr("create order items", err)
	}
	if err := q.loadOrderItems(ctx, &out); err != nil {
		return repo.Order{}, err
	}
	return out, nil
}

func (q *queries) loadOrderItems(ctx context.Context, o *repo.Order) error {
	rows, err := q.db.Query(ctx, `SELECT id, order_id, product_id, product_name, unit_price, quantity, line_subtotal
FROM order_items WHERE order_id = $1 ORDER BY position`, o.ID)
	if err != nil {
		return mapErr("order items "+o.ID, err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (repo.OrderItem, error) {
		var it repo.OrderItem
		err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.UnitPrice, &it.Quantity, &it.LineSubtotal)
		return it, err
	})
	if err != nil {
		return mapErr("order items "+o.ID, err)
	}
	o.Items = items
	return nil
}

func (q *queries) GetOrder(ctx context.Context, id string) (repo.Order, error) {
	o, err := scanOrder(q.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return repo.Order{}, mapErr("order "+id, err)
	}
	if err := q.loadOrderItems(ctx, &o); err != nil {
		return repo.Order{}, err
	}
	return o, nil
}

func (q *queries) ListOrdersByUser(ctx context.Context, userID string, limit, offset int) ([]repo.Order, int, error) {
	var total int
	if err := q.db.QueryRow(ctx, `SELECT count(*) FROM orders WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, mapErr("count orders", err)
	}
	if limit <= 0 {
		limit = total
	}
	rows, err := q.db.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = $1
ORDER BY order_date DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, 0, mapErr("list orders", err)
	}
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (repo.Order, error) {
		return scanOrder(row)
	})
	if err != nil {
		return nil, 0, mapErr("list orders", err)
	}
	for i := range orders {
		if err := q.loadOrderItems(ctx, &orders[i]); err != nil {
			return nil, 0, err
		}
	}
	return orders, total, nil
}

func (q *queries) UpdateOrderStatus(ctx context.Context, id, status string) (repo.Order, error) {
	o, err := scanOrder(q.db.QueryRow(ctx, `UPDATE orders SET status = $2 WHERE id = $1 RETURNING `+orderColumns, id, status))
	if err != nil {
		return repo.Order{}, mapErr("order "+id, err)
	}
	if err := q.loadOrderItems(ctx, &o); err != nil {
		return repo.Order{}, err
	}
	return o, nil
}

func (q *queries) InsertDomainEvent(ctx context.Context, ev repo.DomainEvent) (repo.DomainEvent, error) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	payload := ev.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	err := q.db.QueryRow(ctx, `INSERT INTO domain_events (topic, aggregate_id, payload, occurred_at)
VALUES ($1, $2, $3, $4) RETURNING id`, ev.Topic, ev.AggregateID, payload, ev.OccurredAt).Scan(&ev.ID)
	if err != nil {
		return repo.DomainEvent{}, mapErr("insert domain event", err)
	}
	return ev, nil
}
