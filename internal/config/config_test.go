package config

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"STORE_DRIVER":         "memory",
		"JWT_SECRET":           "secret",
		"DATABASE_URL":         "",
		"PRICING_TAX_RATE":     "",
		"SHIPPING_FREE_ITEMS":  "",
		"COUPON_VALIDATE_RATE": "",
		"COOKIE_SAMESITE":      "",
		"TASKS_ENABLED":        "",
	})
	require.NoError(t, err)
	require.Equal(t, DriverMemory, cfg.StoreDriver)
	require.Equal(t, "0.08", cfg.TaxRate.String())
	require.Equal(t, "5.99", cfg.Shipping.Standard.Base.StringFixed(2))
	require.Equal(t, "1.50", cfg.Shipping.Express.PerItem.StringFixed(2))
	require.Equal(t, 5, cfg.Shipping.FreeItems)
	require.Equal(t, "30-M", cfg.CouponValidateRate)
	require.Equal(t, 10, cfg.CheckoutRateMax)
	require.Equal(t, time.Minute, cfg.CheckoutRateWindow)
	require.Equal(t, http.SameSiteLaxMode, cfg.CookieSameSite)
	require.Equal(t, 15*time.Second, cfg.LockTTL)
	require.Equal(t, ":8080", cfg.HTTPAddr())
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"STORE_DRIVER":          "postgres",
		"DATABASE_URL":          "postgres://localhost/storefront",
		"JWT_SECRET":            "secret",
		"PRICING_TAX_RATE":      "0.1",
		"SHIPPING_EXPRESS_BASE": "20",
		"DB_AUTO_MIGRATE":       "true",
		"OBS_METRICS_ENABLED":   "false",
		"PORT":                  ":9000",
		"CORS_ALLOWED_ORIGINS":  "https://a.example, https://b.example",
		"GUEST_COOKIE_TTL":      "48h",
	})
	require.NoError(t, err)
	require.Equal(t, "0.1", cfg.TaxRate.String())
	require.Equal(t, "20.00", cfg.Shipping.Express.Base.StringFixed(2))
	require.True(t, cfg.DBAutoMigrate)
	require.False(t, cfg.MetricsEnabled)
	require.Equal(t, ":9000", cfg.HTTPAddr())
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	require.Equal(t, 48*time.Hour, cfg.GuestCookieTTL)
}

func TestLoadValidation(t *testing.T) {
	_, err := LoadForTests(map[string]string{
		"STORE_DRIVER":     "postgres",
		"DATABASE_URL":     "",
		"JWT_SECRET":       "",
		"PRICING_TAX_RATE": "abc",
	})
	require.Error(t, err)
	require.ErrorContains(t, err, "DATABASE_URL is required")
	require.ErrorContains(t, err, "JWT_SECRET is required")
	require.ErrorContains(t, err, "PRICING_TAX_RATE")

	_, err = LoadForTests(map[string]string{"STORE_DRIVER": "sqlite", "JWT_SECRET": "x"})
	require.ErrorContains(t, err, "not supported")
}
