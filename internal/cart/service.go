package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/events"
	"github.com/noah-isme/storefront/internal/money"
	"github.com/noah-isme/storefront/internal/obs"
	"github.com/noah-isme/storefront/internal/promotion"
	"github.com/noah-isme/storefront/internal/repo"
	"github.com/noah-isme/storefront/internal/session"
)

// GiftOptions are the per-line gift settings.
type GiftOptions struct {
	IsGiftWrapped bool
	GiftMessage   *string
}

// Service encapsulates cart domain operations. Every mutation runs in its own transaction.
type Service struct {
	Store   repo.Store
	TaxRate decimal.Decimal
	Events  *events.Bus
	Now     func() time.Time
	Logger  zerolog.Logger
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func ownerOf(sess session.Context) (string, error) {
	owner := sess.Owner()
	if owner == "" {
		return "", fmt.Errorf("session has no owner: %w", common.ErrInvalidInput)
	}
	return owner, nil
}

// ensureIn loads the cart for owner or creates it when missing.
func ensureIn(ctx context.Context, repos repo.Repositories, owner string) (repo.Cart, error) {
	c, err := repos.Carts().GetCartByUser(ctx, owner)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return repo.Cart{}, err
	}
	c, err = repos.Carts().CreateCart(ctx, owner)
	if errors.Is(err, common.ErrConflict) {
		return repos.Carts().GetCartByUser(ctx, owner)
	}
	return c, err
}

// EnsureCart returns the session's cart, creating it on first access.
func (s *Service) EnsureCart(ctx context.Context, sess session.Context) (repo.Cart, error) {
	owner, err := ownerOf(sess)
	if err != nil {
		return repo.Cart{}, err
	}
	return ensureIn(ctx, s.Store, owner)
}

// mutate runs fn on the session's cart inside a transaction and saves the result.
func (s *Service) mutate(ctx context.Context, sess session.Context, fn func(repos repo.Repositories, c *repo.Cart) error) (repo.Cart, error) {
	owner, err := ownerOf(sess)
	if err != nil {
		return repo.Cart{}, err
	}
	var saved repo.Cart
	err = s.Store.InTx(ctx, func(repos repo.Repositories) error {
		c, err := ensureIn(ctx, repos, owner)
		if err != nil {
			return err
		}
		if err := fn(repos, &c); err != nil {
			return err
		}
		saved, err = repos.Carts().SaveCart(ctx, c)
		return err
	})
	return saved, err
}

// checkStock fails with *common.InsufficientStockError when product cannot cover requested units.
func (s *Service) checkStock(product repo.Product, requested int) error {
	if product.StockQuantity >= requested {
		return nil
	}
	obs.RecordStockRejection()
	s.Logger.Info().
		Str("product_id", product.ID).
		Int("requested", requested).
		Int("available", product.StockQuantity).
		Msg("cart edit rejected for stock")
	return &common.InsufficientStockError{ProductID: product.ID, Requested: requested, Available: product.StockQuantity}
}

// AddItem adds qty units of productID. An existing line is incremented and its
// gift options overwritten. The resulting line quantity must not exceed stock.
func (s *Service) AddItem(ctx context.Context, sess session.Context, productID string, qty int, gift GiftOptions) (repo.Cart, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" || qty <= 0 {
		return repo.Cart{}, fmt.Errorf("productId and a positive quantity are required: %w", common.ErrInvalidInput)
	}
	return s.mutate(ctx, sess, func(repos repo.Repositories, c *repo.Cart) error {
		product, err := repos.Products().GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		line, exists := c.Item(productID)
		requested := qty
		if exists {
			requested += line.Quantity
		}
		if err := s.checkStock(product, requested); err != nil {
			return err
		}
		if exists {
			line.Quantity = requested
			line.IsGiftWrapped = gift.IsGiftWrapped
			line.GiftMessage = gift.GiftMessage
			return nil
		}
		c.Items = append(c.Items, repo.CartItem{
			CartID:        c.ID,
			ProductID:     productID,
			Quantity:      qty,
			IsGiftWrapped: gift.IsGiftWrapped,
			GiftMessage:   gift.GiftMessage,
			AddedAt:       s.now(),
		})
		return nil
	})
}

// UpdateItem sets the quantity of an existing line. Gift options change only when gift is non-nil.
func (s *Service) UpdateItem(ctx context.Context, sess session.Context, productID string, qty int, gift *GiftOptions) (repo.Cart, error) {
	if qty <= 0 {
		return repo.Cart{}, fmt.Errorf("quantity must be positive: %w", common.ErrInvalidInput)
	}
	return s.mutate(ctx, sess, func(repos repo.Repositories, c *repo.Cart) error {
		line, ok := c.Item(productID)
		if !ok {
			return fmt.Errorf("cart line %s: %w", productID, common.ErrNotFound)
		}
		product, err := repos.Products().GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		if err := s.checkStock(product, qty); err != nil {
			return err
		}
		line.Quantity = qty
		if gift != nil {
			line.IsGiftWrapped = gift.IsGiftWrapped
			line.GiftMessage = gift.GiftMessage
		}
		return nil
	})
}

// RemoveItem drops the line for productID.
func (s *Service) RemoveItem(ctx context.Context, sess session.Context, productID string) (repo.Cart, error) {
	return s.mutate(ctx, sess, func(_ repo.Repositories, c *repo.Cart) error {
		for i := range c.Items {
			if c.Items[i].ProductID == productID {
				c.Items = append(c.Items[:i], c.Items[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("cart line %s: %w", productID, common.ErrNotFound)
	})
}

// Clear removes every line and keeps the cart.
func (s *Service) Clear(ctx context.Context, sess session.Context) (repo.Cart, error) {
	return s.mutate(ctx, sess, func(_ repo.Repositories, c *repo.Cart) error {
		c.Items = nil
		return nil
	})
}

// MergeLines folds source into target: matching products sum their quantities
// and take the source gift options, the rest are appended in source order.
func MergeLines(target, source []repo.CartItem) []repo.CartItem {
	out := make([]repo.CartItem, len(target), len(target)+len(source))
	copy(out, target)
	for _, src := range source {
		merged := false
		for i := range out {
			if out[i].ProductID == src.ProductID {
				out[i].Quantity += src.Quantity
				out[i].IsGiftWrapped = src.IsGiftWrapped
				out[i].GiftMessage = src.GiftMessage
				merged = true
				break
			}
		}
		if !merged {
			src.ID = ""
			src.CartID = ""
			out = append(out, src)
		}
	}
	return out
}

// Merge moves the cart owned by sourceOwner into the cart of targetOwner and
// deletes the source. A missing or empty source leaves the target unchanged.
func (s *Service) Merge(ctx context.Context, sourceOwner, targetOwner string) (repo.Cart, error) {
	if sourceOwner == "" || targetOwner == "" {
		return repo.Cart{}, fmt.Errorf("merge needs both owners: %w", common.ErrInvalidInput)
	}
	var (
		result repo.Cart
		moved  int
	)
	err := s.Store.InTx(ctx, func(repos repo.Repositories) error {
		target, err := ensureIn(ctx, repos, targetOwner)
		if err != nil {
			return err
		}
		result = target
		if sourceOwner == targetOwner {
			return nil
		}
		source, err := repos.Carts().GetCartByUser(ctx, sourceOwner)
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if len(source.Items) == 0 {
			return nil
		}
		target.Items = MergeLines(target.Items, source.Items)
		if result, err = repos.Carts().SaveCart(ctx, target); err != nil {
			return err
		}
		moved = len(source.Items)
		return repos.Carts().DeleteCart(ctx, source.ID)
	})
	if err != nil {
		return repo.Cart{}, err
	}
	if moved > 0 {
		s.Logger.Info().Str("source_owner", sourceOwner).Str("user_id", targetOwner).Int("lines", moved).Msg("cart merged")
		s.Events.Publish(ctx, events.TopicCartMerged, result.ID, events.CartMerged{
			CartID:      result.ID,
			SourceOwner: sourceOwner,
			TargetOwner: targetOwner,
			Lines:       moved,
		})
	}
	return result, nil
}

// MergeGuest merges the session's guest cart into its signed-in user's cart.
func (s *Service) MergeGuest(ctx context.Context, sess session.Context) (repo.Cart, error) {
	if sess.IsGuest() {
		return repo.Cart{}, fmt.Errorf("merge requires a signed-in user: %w", common.ErrInvalidInput)
	}
	return s.Merge(ctx, sess.GuestOwner(), sess.Owner())
}

// Totals is the derived aggregate of a cart at current prices.
type Totals struct {
	Subtotal          decimal.Decimal
	Tax               decimal.Decimal
	Total             decimal.Decimal
	PromotionDiscount decimal.Decimal
	ItemCount         int
	Products          map[string]repo.Product
}

// Totals prices c from live product data. Tax applies to the subtotal and
// promotions are reported separately.
func (s *Service) Totals(ctx context.Context, c repo.Cart) (Totals, error) {
	out := Totals{Subtotal: decimal.Zero, Products: make(map[string]repo.Product, len(c.Items))}
	for _, it := range c.Items {
		p, err := s.Store.Products().GetProduct(ctx, it.ProductID)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				continue
			}
			return Totals{}, err
		}
		out.Products[p.ID] = p
		out.Subtotal = out.Subtotal.Add(p.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
		out.ItemCount += it.Quantity
	}
	out.Subtotal = money.Round2(out.Subtotal)
	out.Tax = money.Round2(out.Subtotal.Mul(s.TaxRate))
	out.Total = out.Subtotal.Add(out.Tax)

	discount, err := promotion.NewResolver(s.Store, s.Logger).CartPromotionDiscount(ctx, c, s.now())
	if err != nil {
		return Totals{}, err
	}
	out.PromotionDiscount = discount.Total
	return out, nil
}

func decimalQty(q int) decimal.Decimal {
	return decimal.NewFromInt(int64(q))
}
