// Package config loads storefront settings from the environment.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront/internal/pricing"
	"github.com/noah-isme/storefront/internal/shipping"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv      string
	Port        string
	StoreDriver string

	DatabaseURL   string
	DBAutoMigrate bool
	DBMaxConns    int
	RedisURL      string

	JWTSecret    string
	JWTIssuer    string
	JWTAudience  string
	JWTClockSkew time.Duration
	AccessCookie string

	CORSAllowedOrigins []string
	BodyLimitBytes     int64

	TaxRate  decimal.Decimal
	Shipping shipping.Table

	GuestCookieName string
	GuestCookieTTL  time.Duration
	CookieSecure    bool
	CookieSameSite  http.SameSite

	IdempotencyTTL     time.Duration
	LockTTL            time.Duration
	LockRetryBackoff   time.Duration
	CouponValidateRate string
	CheckoutRateMax    int
	CheckoutRateWindow time.Duration

	TasksEnabled      bool
	WorkerConcurrency int
	EmailEnabled      bool

	LogFormat        string
	LogLevel         string
	MetricsEnabled   bool
	MetricsNamespace string
	MetricsBuckets   string
	TracingExporter  string
	TracingEndpoint  string
	TracingSampling  float64

	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var errs []error
	dec := func(key, fallback string) decimal.Decimal {
		d, err := parseDecimal(k.String(key), fallback)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		return d
	}

	cfg := &Config{
		AppEnv:      valueOrDefault(k.String("APP_ENV"), "development"),
		Port:        valueOrDefault(k.String("PORT"), "8080"),
		StoreDriver: strings.ToLower(valueOrDefault(k.String("STORE_DRIVER"), DriverPostgres)),

		DatabaseURL:   k.String("DATABASE_URL"),
		DBAutoMigrate: parseBool(k.String("DB_AUTO_MIGRATE")),
		DBMaxConns:    parseInt(k.String("DB_MAX_CONNS"), 10),
		RedisURL:      k.String("REDIS_URL"),

		JWTSecret:    k.String("JWT_SECRET"),
		JWTIssuer:    valueOrDefault(k.String("JWT_ISSUER"), "storefront"),
		JWTAudience:  valueOrDefault(k.String("JWT_AUDIENCE"), "storefront-web"),
		JWTClockSkew: parseDuration(k.String("JWT_CLOCK_SKEW"), "30s"),
		AccessCookie: valueOrDefault(k.String("ACCESS_COOKIE_NAME"), "access_token"),

		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		BodyLimitBytes:     int64(parseInt(k.String("HTTP_BODY_LIMIT_BYTES"), 1<<20)),

		TaxRate: dec("PRICING_TAX_RATE", "0.08"),
		Shipping: shipping.Table{
			Standard: shipping.Rate{
				Base:    dec("SHIPPING_STANDARD_BASE", "5.99"),
				PerItem: dec("SHIPPING_STANDARD_PER_ITEM", "0.75"),
			},
			Express: shipping.Rate{
				Base:    dec("SHIPPING_EXPRESS_BASE", "12.99"),
				PerItem: dec("SHIPPING_EXPRESS_PER_ITEM", "1.50"),
			},
			FreeItems: parseInt(k.String("SHIPPING_FREE_ITEMS"), 5),
		},

		GuestCookieName: valueOrDefault(k.String("GUEST_COOKIE_NAME"), "guest_id"),
		GuestCookieTTL:  parseDuration(k.String("GUEST_COOKIE_TTL"), "720h"),
		CookieSecure:    parseBool(k.String("COOKIE_SECURE")),
		CookieSameSite:  parseSameSite(k.String("COOKIE_SAMESITE")),

		IdempotencyTTL:     parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		LockTTL:            parseDuration(k.String("LOCK_TTL"), "15s"),
		LockRetryBackoff:   parseDuration(k.String("LOCK_RETRY_BACKOFF"), "50ms"),
		CouponValidateRate: valueOrDefault(k.String("COUPON_VALIDATE_RATE"), "30-M"),
		CheckoutRateMax:    parseInt(k.String("CHECKOUT_RATE_MAX"), 10),
		CheckoutRateWindow: parseDuration(k.String("CHECKOUT_RATE_WINDOW"), "1m"),

		TasksEnabled:      parseBool(k.String("TASKS_ENABLED")),
		WorkerConcurrency: parseInt(k.String("WORKER_CONCURRENCY"), 5),
		EmailEnabled:      parseBool(k.String("EMAIL_ENABLED")),

		LogFormat:        valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
		LogLevel:         valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
		MetricsEnabled:   parseBoolDefault(k.String("OBS_METRICS_ENABLED"), true),
		MetricsNamespace: valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "storefront"),
		MetricsBuckets:   k.String("OBS_METRICS_BUCKETS_MS"),
		TracingExporter:  valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "none"),
		TracingEndpoint:  k.String("OBS_TRACING_ENDPOINT"),
		TracingSampling:  parseFloat(k.String("OBS_TRACING_SAMPLING"), 1),

		ShutdownTimeout: parseDuration(k.String("SHUTDOWN_TIMEOUT"), "15s"),
	}

	if cfg.CookieSameSite == http.SameSiteDefaultMode {
		cfg.CookieSameSite = http.SameSiteLaxMode
	}

	switch cfg.StoreDriver {
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER %q is not supported", cfg.StoreDriver))
	}
	if cfg.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if cfg.TasksEnabled && cfg.RedisURL == "" {
		errs = append(errs, errors.New("REDIS_URL is required when TASKS_ENABLED is set"))
	}
	if cfg.TaxRate.IsNegative() {
		errs = append(errs, errors.New("PRICING_TAX_RATE cannot be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// PricingPolicy returns the tax and shipping policy used by preview and checkout.
func (c *Config) PricingPolicy() pricing.Policy {
	return pricing.Policy{TaxRate: c.TaxRate, Shipping: c.Shipping}
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.AppEnv))
	return env == "production" || env == "prod"
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	return parseBoolDefault(value, false)
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt(value string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseDecimal(value, fallback string) (decimal.Decimal, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		v = fallback
	}
	return decimal.NewFromString(v)
}

func parseSameSite(value string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "lax":
		return http.SameSiteLaxMode
	default:
		return http.SameSiteDefaultMode
	}
}

// MustLoad behaves like Load but panics on error. Useful for command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
