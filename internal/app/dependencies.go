// Package app wires the storefront backends, services and HTTP router.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront/internal/auth"
	"github.com/noah-isme/storefront/internal/config"
	"github.com/noah-isme/storefront/internal/health"
	"github.com/noah-isme/storefront/internal/lock"
	"github.com/noah-isme/storefront/internal/obs"
	"github.com/noah-isme/storefront/internal/ratelimit"
	"github.com/noah-isme/storefront/internal/repo"
	"github.com/noah-isme/storefront/internal/repo/memstore"
	"github.com/noah-isme/storefront/internal/repo/pgstore"
)

// Dependencies enumerates the backends shared by the HTTP services.
// DB, Redis, TaskClient and CheckoutLimiter are nil when the configuration does not call for them.
type Dependencies struct {
	Store           repo.Store
	DB              *pgxpool.Pool
	Redis           *redis.Client
	TaskClient      *asynq.Client
	Verifier        *auth.Verifier
	Locker          lock.Locker
	CouponLimiter   ratelimit.Limiter
	CheckoutLimiter ratelimit.Limiter
	Logger          zerolog.Logger
}

// Probes lists the readiness checks for the connected backends.
func (d *Dependencies) Probes() []health.Probe {
	var probes []health.Probe
	if d.DB != nil {
		probes = append(probes, health.DBProbe(d.DB))
	}
	if d.Redis != nil {
		probes = append(probes, health.RedisProbe(d.Redis))
	}
	return probes
}

// Close releases every opened backend.
func (d *Dependencies) Close() {
	if d.TaskClient != nil {
		if err := d.TaskClient.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close task client")
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			d.Logger.Error().Err(err).Msg("close redis")
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
}

// Connect opens the store, redis and task queue named by cfg.
func Connect(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Dependencies, error) {
	deps := &Dependencies{Logger: logger}
	ok := false
	defer func() {
		if !ok {
			deps.Close()
		}
	}()

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	switch cfg.StoreDriver {
	case config.DriverMemory:
		deps.Store = memstore.New()
		logger.Warn().Msg("using in-memory store; data is lost on restart")
	default:
		pool, err := openPool(connectCtx, cfg)
		if err != nil {
			return nil, err
		}
		deps.DB = pool
		deps.Store = pgstore.New(pool)
	}

	if cfg.RedisURL != "" {
		client, err := openRedis(connectCtx, cfg, logger)
		if err != nil {
			return nil, err
		}
		deps.Redis = client
		deps.Locker = lock.Redis{R: client, RetryBackoff: cfg.LockRetryBackoff}
		deps.CheckoutLimiter = ratelimit.Sliding{
			Client: client,
			Prefix: "storefront:checkout:",
			Window: cfg.CheckoutRateWindow,
			Max:    cfg.CheckoutRateMax,
		}
	} else {
		deps.Locker = lock.NewLocal()
		logger.Warn().Msg("REDIS_URL not set; checkout locks and rate limits are process-local")
	}

	limiter, err := ratelimit.NewFixed(cfg.CouponValidateRate, deps.Redis, "storefront:coupon-validate")
	if err != nil {
		return nil, err
	}
	deps.CouponLimiter = limiter

	if cfg.TasksEnabled {
		opt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse task redis url: %w", err)
		}
		deps.TaskClient = asynq.NewClient(opt)
	}

	verifier, err := auth.NewVerifier(auth.Config{
		Secret:    cfg.JWTSecret,
		Issuer:    cfg.JWTIssuer,
		Audience:  cfg.JWTAudience,
		ClockSkew: cfg.JWTClockSkew,
	})
	if err != nil {
		return nil, err
	}
	deps.Verifier = verifier

	ok = true
	return deps, nil
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if cfg.DBAutoMigrate {
		if err := pgstore.Migrate(cfg.DatabaseURL); err != nil {
			return nil, err
		}
	}
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if cfg.DBMaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.DBMaxConns)
	}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "storefront-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func openRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if cfg.MetricsEnabled {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Join(fmt.Errorf("ping redis: %w", err), client.Close())
	}
	return client, nil
}
