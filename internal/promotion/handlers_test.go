package promotion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront/internal/money"
	"github.com/noah-isme/storefront/internal/repo"
	"github.com/noah-isme/storefront/internal/repo/memstore"
)

func newTestRouter(store *memstore.Store) http.Handler {
	h := &Handler{
		Resolver: NewResolver(store, zerolog.Nop()),
		Svc:      &Service{Store: store, Logger: zerolog.Nop()},
		Now:      func() time.Time { return now },
	}
	r := chi.NewRouter()
	r.Get("/products/{id}/promotions", h.ForProduct)
	r.Post("/admin/promotions", h.Create)
	return r
}

func TestForProductReturnsBestAndDiscountedPrice(t *testing.T) {
	store := memstore.New()
	prod := store.PutProduct(repo.Product{Name: "Lamp", Price: money.MustParse("40"), StockQuantity: 3})
	_, err := store.CreatePromotion(context.Background(), promo("p1", "25", prod.ID))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	newTestRouter(store).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/"+prod.ID+"/promotions", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body productPromotionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "30.00", body.DiscountedPrice)
	require.NotNil(t, body.Best)
	require.Equal(t, "p1", body.Best.ID)
}

func TestForProductUnknownIs404(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(memstore.New()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/products/nope/promotions", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateRejectsOutOfRangePercentage(t *testing.T) {
	store := memstore.New()
	prod := store.PutProduct(repo.Product{Name: "Lamp", Price: money.MustParse("40"), StockQuantity: 3})
	payload := `{"name":"Too much","discountPercentage":"120","startDate":"2025-06-01T00:00:00Z","endDate":"2025-07-01T00:00:00Z","productIds":["` + prod.ID + `"]}`

	rec := httptest.NewRecorder()
	newTestRouter(store).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/promotions", strings.NewReader(payload)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateLinksProducts(t *testing.T) {
	store := memstore.New()
	prod := store.PutProduct(repo.Product{Name: "Lamp", Price: money.MustParse("40"), StockQuantity: 3})
	payload := `{"name":"Summer","discountPercentage":"10","startDate":"2025-06-01T00:00:00Z","endDate":"2025-07-01T00:00:00Z","productIds":["` + prod.ID + `"]}`

	rec := httptest.NewRecorder()
	newTestRouter(store).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/promotions", strings.NewReader(payload)))
	require.Equal(t, http.StatusCreated, rec.Code)

	active, err := store.ActivePromotionsFor(context.Background(), prod.ID, now)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "Summer", active[0].Name)
}
