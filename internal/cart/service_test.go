package cart

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/events"
	"github.com/noah-isme/storefront/internal/money"
	"github.com/noah-isme/storefront/internal/repo"
	"github.com/noah-isme/storefront/internal/repo/memstore"
	"github.com/noah-isme/storefront/internal/session"
)

var (
	fixedNow = time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)
	guest    = session.Context{GuestID: "9b2f4c1e-3a5d-4e6f-8a7b-1c2d3e4f5a6b"}
	member   = session.Context{UserID: "user-42", GuestID: guest.GuestID}
)

func newService(store *memstore.Store) *Service {
	return &Service{
		Store:   store,
		TaxRate: money.MustParse("0.08"),
		Events:  &events.Bus{Store: store, Logger: zerolog.Nop()},
		Now:     func() time.Time { return fixedNow },
		Logger:  zerolog.Nop(),
	}
}

func quantities(c repo.Cart) map[string]int {
	out := map[string]int{}
	for _, it := range c.Items {
		out[it.ProductID] = it.Quantity
	}
	return out
}

func TestEnsureCartIsLazyAndStable(t *testing.T) {
	store := memstore.New()
	svc := newService(store)
	ctx := context.Background()

	first, err := svc.EnsureCart(ctx, guest)
	require.NoError(t, err)
	require.Equal(t, "guest:"+guest.GuestID, first.UserID)

	second, err := svc.EnsureCart(ctx, guest)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	_, err = svc.EnsureCart(ctx, session.Context{})
	require.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestAddItemStockBoundary(t *testing.T) {
	store := memstore.New()
	p := store.PutProduct(repo.Product{Name: "Kettle", Price: money.MustParse("30"), StockQuantity: 5})
	svc := newService(store)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, guest, p.ID, 3, GiftOptions{})
	require.NoError(t, err)

	c, err := svc.AddItem(ctx, guest, p.ID, 2, GiftOptions{})
	require.NoError(t, err, "exactly the stock quantity is allowed")
	require.Equal(t, 5, quantities(c)[p.ID])

	_, err = svc.AddItem(ctx, guest, p.ID, 1, GiftOptions{})
	require.ErrorIs(t, err, common.ErrInsufficientStock)
	var stockErr *common.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	require.Equal(t, 6, stockErr.Requested)
	require.Equal(t, 5, stockErr.Available)

	c, err = svc.EnsureCart(ctx, guest)
	require.NoError(t, err)
	require.Equal(t, 5, quantities(c)[p.ID], "rejected add leaves the cart unchanged")
}

func TestAddItemIncrementsAndOverwritesGift(t *testing.T) {
	store := memstore.New()
	p := store.PutProduct(repo.Product{Name: "Scarf", Price: money.MustParse("12.50"), StockQuantity: 10})
	svc := newService(store)
	ctx := context.Background()
	msg := "Happy birthday"

	_, err := svc.AddItem(ctx, guest, p.ID, 1, GiftOptions{IsGiftWrapped: true, GiftMessage: &msg})
	require.NoError(t, err)
	c, err := svc.AddItem(ctx, guest, p.ID, 2, GiftOptions{})
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	require.Equal(t, 3, c.Items[0].Quantity)
	require.False(t, c.Items[0].IsGiftWrapped)
	require.Nil(t, c.Items[0].GiftMessage)
	require.Equal(t, fixedNow, c.Items[0].AddedAt)
}

func TestAddItemUnknownProduct(t *testing.T) {
	svc := newService(memstore.New())
	_, err := svc.AddItem(context.Background(), guest, "ghost", 1, GiftOptions{})
	require.ErrorIs(t, err, common.ErrNotFound)

	_, err = svc.AddItem(context.Background(), guest, "ghost", 0, GiftOptions{})
	require.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestUpdateItemChecksNewQuantity(t *testing.T) {
	store := memstore.New()
	p := store.PutProduct(repo.Product{Name: "Chair", Price: money.MustParse("80"), StockQuantity: 4})
	svc := newService(store)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, guest, p.ID, 3, GiftOptions{})
	require.NoError(t, err)

	c, err := svc.UpdateItem(ctx, guest, p.ID, 4, nil)
	require.NoError(t, err)
	require.Equal(t, 4, quantities(c)[p.ID])

	_, err = svc.UpdateItem(ctx, guest, p.ID, 5, nil)
	require.ErrorIs(t, err, common.ErrInsufficientStock)

	_, err = svc.UpdateItem(ctx, guest, "not-in-cart", 1, nil)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestRemoveAndClear(t *testing.T) {
	store := memstore.New()
	a := store.PutProduct(repo.Product{Name: "A", Price: money.MustParse("1"), StockQuantity: 9})
	b := store.PutProduct(repo.Product{Name: "B", Price: money.MustParse("2"), StockQuantity: 9})
	svc := newService(store)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, guest, a.ID, 1, GiftOptions{})
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, guest, b.ID, 1, GiftOptions{})
	require.NoError(t, err)

	c, err := svc.RemoveItem(ctx, guest, a.ID)
	require.NoError(t, err)
	require.Equal(t, map[string]int{b.ID: 1}, quantities(c))

	_, err = svc.RemoveItem(ctx, guest, a.ID)
	require.ErrorIs(t, err, common.ErrNotFound)

	cleared, err := svc.Clear(ctx, guest)
	require.NoError(t, err)
	require.Empty(t, cleared.Items)
	require.Equal(t, c.ID, cleared.ID)
}

func TestMergePreservesQuantities(t *testing.T) {
	store := memstore.New()
	a := store.PutProduct(repo.Product{Name: "A", Price: money.MustParse("10"), StockQuantity: 50})
	b := store.PutProduct(repo.Product{Name: "B", Price: money.MustParse("5"), StockQuantity: 50})
	svc := newService(store)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, member, a.ID, 3, GiftOptions{})
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, member, b.ID, 1, GiftOptions{})
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, guest, a.ID, 2, GiftOptions{IsGiftWrapped: true})
	require.NoError(t, err)

	merged, err := svc.MergeGuest(ctx, member)
	require.NoError(t, err)
	require.Equal(t, map[string]int{a.ID: 5, b.ID: 1}, quantities(merged))
	line, _ := merged.Item(a.ID)
	require.True(t, line.IsGiftWrapped, "gift flags come from the merged-in cart")

	_, err = store.GetCartByUser(ctx, guest.Owner())
	require.ErrorIs(t, err, common.ErrNotFound, "source cart is deleted")

	recorded := store.RecordedEvents()
	require.Len(t, recorded, 1)
	require.Equal(t, events.TopicCartMerged, recorded[0].Topic)
}

func TestMergeMissingSourceIsNoop(t *testing.T) {
	store := memstore.New()
	a := store.PutProduct(repo.Product{Name: "A", Price: money.MustParse("10"), StockQuantity: 50})
	svc := newService(store)
	ctx := context.Background()

	_, err := svc.AddItem(ctx, member, a.ID, 2, GiftOptions{})
	require.NoError(t, err)
	merged, err := svc.MergeGuest(ctx, member)
	require.NoError(t, err)
	require.Equal(t, map[string]int{a.ID: 2}, quantities(merged))
	require.Empty(t, store.RecordedEvents())

	_, err = svc.MergeGuest(ctx, guest)
	require.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestMergeLinesAppendsInSourceOrder(t *testing.T) {
	target := []repo.CartItem{{ID: "t1", ProductID: "a", Quantity: 1}}
	source := []repo.CartItem{
		{ID: "s1", ProductID: "c", Quantity: 2},
		{ID: "s2", ProductID: "a", Quantity: 4},
		{ID: "s3", ProductID: "b", Quantity: 1},
	}
	out := MergeLines(target, source)
	require.Len(t, out, 3)
	require.Equal(t, "a", out[0].ProductID)
	require.Equal(t, 5, out[0].Quantity)
	require.Equal(t, "c", out[1].ProductID)
	require.Empty(t, out[1].ID)
	require.Equal(t, "b", out[2].ProductID)
	require.Equal(t, 1, target[0].Quantity, "target slice is not mutated")
}

func TestTotalsUsesLivePricesAndTax(t *testing.T) {
	store := memstore.New()
	a := store.PutProduct(repo.Product{Name: "A", Price: money.MustParse("19.99"), StockQuantity: 50})
	svc := newService(store)
	ctx := context.Background()

	c, err := svc.AddItem(ctx, guest, a.ID, 3, GiftOptions{})
	require.NoError(t, err)

	a.Price = money.MustParse("21.00")
	store.PutProduct(a)

	totals, err := svc.Totals(ctx, c)
	require.NoError(t, err)
	require.Equal(t, "63.00", money.Fixed(totals.Subtotal))
	require.Equal(t, "5.04", money.Fixed(totals.Tax))
	require.Equal(t, "68.04", money.Fixed(totals.Total))
	require.Equal(t, 3, totals.ItemCount)
}
