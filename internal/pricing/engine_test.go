package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/money"
	"github.com/noah-isme/storefront/internal/repo"
	"github.com/noah-isme/storefront/internal/repo/memstore"
)

var now = time.Date(2025, 11, 28, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store  *memstore.Store
	engine *Engine
	cart   repo.Cart
	a, b   repo.Product
}

// newFixture builds the reference cart: A at 50.00 with a 30% promotion and
// two units of B at 25.00, plus coupon SAVE10 (10%, minimum 50).
func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memstore.New()
	ctx := context.Background()
	a := store.PutProduct(repo.Product{Name: "Backpack", Price: money.MustParse("50.00"), StockQuantity: 10})
	b := store.PutProduct(repo.Product{Name: "Bottle", Price: money.MustParse("25.00"), StockQuantity: 10})
	_, err := store.CreatePromotion(ctx, repo.Promotion{
		ID:                 "promo-a",
		Name:               "Backpack week",
		DiscountPercentage: money.MustParse("30"),
		StartDate:          now.Add(-time.Hour),
		EndDate:            now.Add(time.Hour),
		IsActive:           true,
		ProductIDs:         []string{a.ID},
	})
	require.NoError(t, err)
	store.PutCoupon(repo.Coupon{
		Code:               "SAVE10",
		DiscountType:       repo.DiscountPercentage,
		DiscountAmount:     money.MustParse("10"),
		MinimumOrderAmount: money.MustParse("50"),
		StartDate:          now.AddDate(0, -1, 0),
		EndDate:            now.AddDate(0, 1, 0),
		IsActive:           true,
	})
	cart := repo.Cart{ID: "cart-1", UserID: "user-1", Items: []repo.CartItem{
		{ProductID: a.ID, Quantity: 1},
		{ProductID: b.ID, Quantity: 2},
	}}
	engine := &Engine{Repos: store, Policy: DefaultPolicy(), Now: func() time.Time { return now }, Logger: zerolog.Nop()}
	return fixture{store: store, engine: engine, cart: cart, a: a, b: b}
}

func TestPreviewReferenceScenario(t *testing.T) {
	f := newFixture(t)

	p, err := f.engine.Preview(context.Background(), f.cart, "save10", "standard")
	require.NoError(t, err)
	require.Equal(t, "100.00", money.Fixed(p.Subtotal))
	require.Equal(t, "15.00", money.Fixed(p.PromotionDiscount))
	require.Equal(t, "8.50", money.Fixed(p.CouponDiscount))
	require.Equal(t, "5.99", money.Fixed(p.ShippingCost))
	require.Equal(t, "8.00", money.Fixed(p.Tax))
	require.Equal(t, "90.49", money.Fixed(p.Total))
	require.Equal(t, 3, p.ItemCount)
	require.NotNil(t, p.CouponCode)
	require.Equal(t, "SAVE10", *p.CouponCode)
	require.Equal(t, "promo-a", p.Lines[0].PromotionID)
}

func TestPreviewIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.engine.Preview(ctx, f.cart, "SAVE10", "express")
	require.NoError(t, err)
	second, err := f.engine.Preview(ctx, f.cart, "SAVE10", "express")
	require.NoError(t, err)
	require.Equal(t, ToResponse(first), ToResponse(second))

	c, err := f.store.FindCouponByCode(ctx, "SAVE10")
	require.NoError(t, err)
	require.Zero(t, c.TimesUsed)
	p, err := f.store.GetProduct(ctx, f.a.ID)
	require.NoError(t, err)
	require.Equal(t, 10, p.StockQuantity)
}

func TestPreviewInvalidCouponContinues(t *testing.T) {
	f := newFixture(t)

	p, err := f.engine.Preview(context.Background(), f.cart, "BOGUS", "standard")
	require.NoError(t, err)
	require.Nil(t, p.CouponCode)
	require.True(t, p.CouponDiscount.IsZero())
	require.NotNil(t, p.Coupon)
	require.False(t, p.Coupon.IsValid)
	require.Equal(t, "98.99", money.Fixed(p.Total))
}

func TestPreviewEmptyCart(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Preview(context.Background(), repo.Cart{ID: "empty"}, "", "")
	require.ErrorIs(t, err, common.ErrEmptyCart)
}

func TestPreviewSkipsVanishedProducts(t *testing.T) {
	f := newFixture(t)
	f.store.DeleteProduct(f.a.ID)

	p, err := f.engine.Preview(context.Background(), f.cart, "", "standard")
	require.NoError(t, err)
	require.Len(t, p.Lines, 1)
	require.Equal(t, "50.00", money.Fixed(p.Subtotal))
	require.True(t, p.PromotionDiscount.IsZero())
}

func TestPreviewUsesLivePrices(t *testing.T) {
	f := newFixture(t)
	b := f.b
	b.Price = money.MustParse("30.00")
	f.store.PutProduct(b)

	p, err := f.engine.Preview(context.Background(), f.cart, "", "standard")
	require.NoError(t, err)
	require.Equal(t, "110.00", money.Fixed(p.Subtotal))
}

func TestComputeExpressShippingScalesWithUnits(t *testing.T) {
	in := Input{
		Lines:          []Line{{ProductID: "p", UnitPrice: money.MustParse("2.00"), Quantity: 9}},
		ShippingMethod: "Express",
		Now:            now,
	}
	p := DefaultPolicy().Compute(in)
	require.Equal(t, "express", p.ShippingMethod)
	require.Equal(t, "18.99", money.Fixed(p.ShippingCost))
	require.Equal(t, "1.44", money.Fixed(p.Tax))
	require.Equal(t, "38.43", money.Fixed(p.Total))
}

func TestComputeTotalNeverNegative(t *testing.T) {
	policy := DefaultPolicy()
	policy.TaxRate = money.MustParse("0")
	policy.Shipping.Standard.Base = money.MustParse("0")

	prices := []string{"0", "0.01", "1", "19.99", "500"}
	pcts := []string{"1", "50", "99.99", "100"}
	fixed := []string{"0.01", "5", "1000"}
	for _, price := range prices {
		for _, pct := range pcts {
			for _, amount := range fixed {
				promo := &repo.Promotion{ID: "p", DiscountPercentage: money.MustParse(pct), IsActive: true}
				cp := &repo.Coupon{
					Code:               "BIG",
					DiscountType:       repo.DiscountFixedAmount,
					DiscountAmount:     money.MustParse(amount),
					MinimumOrderAmount: money.MustParse("0"),
					StartDate:          now.Add(-time.Hour),
					EndDate:            now.Add(time.Hour),
					IsActive:           true,
				}
				p := policy.Compute(Input{
					Lines:      []Line{{ProductID: "x", UnitPrice: money.MustParse(price), Quantity: 3, Promotion: promo}},
					CouponCode: "BIG",
					Coupon:     cp,
					Now:        now,
				})
				require.Falsef(t, p.Total.IsNegative(), "price %s pct %s coupon %s", price, pct, amount)
				require.False(t, p.CouponDiscount.GreaterThan(money.ClampZero(p.Subtotal.Sub(p.PromotionDiscount))))
			}
		}
	}
}
