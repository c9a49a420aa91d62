package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/storefront/internal/audit"
	"github.com/noah-isme/storefront/internal/auth"
	"github.com/noah-isme/storefront/internal/cart"
	"github.com/noah-isme/storefront/internal/checkout"
	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/config"
	"github.com/noah-isme/storefront/internal/coupon"
	"github.com/noah-isme/storefront/internal/events"
	"github.com/noah-isme/storefront/internal/health"
	"github.com/noah-isme/storefront/internal/notify"
	"github.com/noah-isme/storefront/internal/obs"
	"github.com/noah-isme/storefront/internal/order"
	"github.com/noah-isme/storefront/internal/pricing"
	"github.com/noah-isme/storefront/internal/promotion"
	"github.com/noah-isme/storefront/internal/ratelimit"
	"github.com/noah-isme/storefront/internal/security"
	"github.com/noah-isme/storefront/internal/session"
)

// Services groups the domain services built on top of Dependencies.
type Services struct {
	Bus      *events.Bus
	Coupons  *coupon.Service
	Pricing  *pricing.Engine
	Cart     *cart.Service
	Checkout *checkout.Service
}

// NewServices builds the domain services. now may be nil.
func NewServices(cfg *config.Config, deps *Dependencies, now func() time.Time) *Services {
	logger := deps.Logger
	bus := &events.Bus{Store: deps.Store.Events(), Logger: logger.With().Str("component", "events").Logger()}
	if deps.TaskClient != nil {
		bus.Notifiers = append(bus.Notifiers, notify.NewTaskNotifier(deps.TaskClient, events.DefaultTopics(), logger))
	}
	coupons := &coupon.Service{Coupons: deps.Store.Coupons(), Now: now, Logger: logger.With().Str("component", "coupon").Logger()}
	engine := &pricing.Engine{
		Repos:  deps.Store,
		Policy: cfg.PricingPolicy(),
		Now:    now,
		Logger: logger.With().Str("component", "pricing").Logger(),
	}
	return &Services{
		Bus:     bus,
		Coupons: coupons,
		Pricing: engine,
		Cart: &cart.Service{
			Store:   deps.Store,
			TaxRate: cfg.TaxRate,
			Events:  bus,
			Now:     now,
			Logger:  logger.With().Str("component", "cart").Logger(),
		},
		Checkout: &checkout.Service{
			Store:   deps.Store,
			Pricing: engine,
			Coupons: coupons,
			Events:  bus,
			Locker:  deps.Locker,
			LockTTL: cfg.LockTTL,
			Now:     now,
			Logger:  logger.With().Str("component", "checkout").Logger(),
		},
	}
}

// NewRouter mounts every storefront route.
func NewRouter(cfg *config.Config, deps *Dependencies, svc *Services) http.Handler {
	logger := deps.Logger

	cartHandler := &cart.Handler{Svc: svc.Cart}
	checkoutHandler := &checkout.Handler{Svc: svc.Checkout}
	couponHandler := &coupon.Handler{Svc: svc.Coupons}
	promoHandler := &promotion.Handler{
		Resolver: promotion.NewResolver(deps.Store, logger),
		Svc:      &promotion.Service{Store: deps.Store, Logger: logger.With().Str("component", "promotion").Logger()},
	}
	orderHandler := &order.Handler{Orders: deps.Store.Orders()}
	orderAdmin := &order.AdminHandler{Orders: deps.Store.Orders(), Events: svc.Bus, Logger: logger}
	healthHandler := health.Handler{Probes: deps.Probes()}
	auditor := audit.HTTPRecorder{Events: svc.Bus}
	audited := func(action, resource, idParam string) func(http.Handler) http.Handler {
		return auditor.Middleware(audit.HTTPConfig{Action: action, ResourceType: resource, ResourceIDParam: idParam})
	}

	authMiddleware := auth.Middleware{Verifier: deps.Verifier, AccessCookie: cfg.AccessCookie}
	sessions := session.Middleware{CookieName: cfg.GuestCookieName, TTL: cfg.GuestCookieTTL, Secure: cfg.CookieSecure}
	idem := common.Idem{R: deps.Redis, TTL: cfg.IdempotencyTTL, Scope: ownerScope}
	couponLimit := ratelimit.Handler{
		Limiter: deps.CouponLimiter,
		Key:     ratelimit.SessionOrIP("coupon-validate"),
		OnError: func(err error) { logger.Warn().Err(err).Msg("coupon rate limiter unavailable") },
	}
	checkoutLimit := ratelimit.Handler{
		Limiter: deps.CheckoutLimiter,
		Key:     ratelimit.SessionOrIP("checkout"),
		OnError: func(err error) { logger.Warn().Err(err).Msg("checkout rate limiter unavailable") },
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled(cfg) {
		r.Use(obs.TracingMiddleware)
	}
	if cfg.MetricsEnabled {
		obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)
		httpMetrics := obs.NewHTTPMetrics(cfg.MetricsNamespace, obs.ParseBucketsCSV(cfg.MetricsBuckets), nil)
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
		r.Handle("/metrics", promhttp.Handler())
	}
	r.Use(security.Headers{Enable: true, EnableHSTS: cfg.IsProduction(), NoStorePrefix: "/api/"}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", common.IdempotencyHeader, session.GuestHeader},
		ExposedHeaders:   []string{"X-Total-Count", "X-RateLimit-Remaining", "Retry-After", "Idempotent-Replayed"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)
		v.Use(security.OriginGuard{Allowed: allowedOrigins(cfg)}.Middleware)
		v.Use(authMiddleware.Authenticate)
		v.Use(sessions.Handler)
		v.Use(obs.RequestLogger{Logger: logger}.Middleware)

		v.Get("/products/{id}/promotions", promoHandler.ForProduct)
		v.With(couponLimit.Middleware).Post("/coupons/validate", couponHandler.Validate)

		v.Route("/cart", func(c chi.Router) {
			c.Get("/", cartHandler.Get)
			c.Delete("/", cartHandler.Clear)
			c.Post("/items", cartHandler.AddItem)
			c.Patch("/items/{productId}", cartHandler.UpdateItem)
			c.Delete("/items/{productId}", cartHandler.RemoveItem)
			c.With(authMiddleware.RequireAuth).Post("/merge", cartHandler.Merge)
		})

		v.Post("/checkout/preview", checkoutHandler.Preview)
		v.With(checkoutLimit.Middleware, idem.Middleware).Post("/checkout", checkoutHandler.Checkout)

		v.Get("/orders", orderHandler.List)
		v.Get("/orders/{orderId}", orderHandler.Get)

		v.Route("/admin", func(admin chi.Router) {
			admin.Use(auth.RequireRole(auth.RoleAdmin))
			admin.Get("/coupons/{code}", couponHandler.Get)
			admin.With(audited("coupon.create", "coupon", "")).Post("/coupons", couponHandler.Create)
			admin.With(audited("coupon.update", "coupon", "code")).Put("/coupons/{code}", couponHandler.Update)
			admin.With(audited("promotion.create", "promotion", "")).Post("/promotions", promoHandler.Create)
			admin.With(audited("order.status.update", "order", "id")).Patch("/orders/{id}/status", orderAdmin.PatchStatus)
		})
	})

	return r
}

func ownerScope(r *http.Request) string {
	if sess, ok := session.From(r.Context()); ok {
		return sess.Owner()
	}
	return ""
}

func tracingEnabled(cfg *config.Config) bool {
	switch cfg.TracingExporter {
	case "", "none", "off", "disabled":
		return false
	}
	return true
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}
