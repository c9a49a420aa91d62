// Command seeder stages demo catalog, promotion and coupon rows for local development.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront/internal/auth"
	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/config"
	"github.com/noah-isme/storefront/internal/money"
	"github.com/noah-isme/storefront/internal/obs"
	"github.com/noah-isme/storefront/internal/repo"
	"github.com/noah-isme/storefront/internal/repo/pgstore"
)

var demoProducts = []repo.Product{
	{ID: "6f1c2a52-6c1e-4b7a-9f59-0b9a3b1d0001", Name: "Canvas Backpack", Price: money.MustParse("50.00"), StockQuantity: 40},
	{ID: "6f1c2a52-6c1e-4b7a-9f59-0b9a3b1d0002", Name: "Steel Water Bottle", Price: money.MustParse("25.00"), StockQuantity: 120},
	{ID: "6f1c2a52-6c1e-4b7a-9f59-0b9a3b1d0003", Name: "Trail Cap", Price: money.MustParse("18.50"), StockQuantity: 60},
	{ID: "6f1c2a52-6c1e-4b7a-9f59-0b9a3b1d0004", Name: "Rain Shell", Price: money.MustParse("129.99"), StockQuantity: 15},
	{ID: "6f1c2a52-6c1e-4b7a-9f59-0b9a3b1d0005", Name: "Wool Socks", Price: money.MustParse("12.00"), StockQuantity: 0},
}

func main() {
	var (
		migrate    = flag.Bool("migrate", true, "apply schema migrations before seeding")
		promotions = flag.Bool("promotions", true, "create demo promotions (not deduplicated on rerun)")
		adminToken = flag.Duration("admin-token-ttl", 0, "print a signed admin token valid for this long")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := obs.NewLogger("console", "info").With().Str("component", "seeder").Logger()

	if *migrate {
		if err := pgstore.Migrate(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migrate")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	store := pgstore.New(pool)

	if err := seed(ctx, store, *promotions, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed")
	}

	if *adminToken > 0 {
		verifier, err := auth.NewVerifier(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer, Audience: cfg.JWTAudience})
		if err != nil {
			logger.Fatal().Err(err).Msg("build verifier")
		}
		token, err := verifier.Sign("dev-admin", []string{auth.RoleAdmin}, *adminToken)
		if err != nil {
			logger.Fatal().Err(err).Msg("sign admin token")
		}
		fmt.Println(token)
	}
	logger.Info().Msg("seeding completed")
}

func seed(ctx context.Context, store *pgstore.Store, withPromotions bool, logger zerolog.Logger) error {
	for _, p := range demoProducts {
		if _, err := store.PutProduct(ctx, p); err != nil {
			return err
		}
	}
	logger.Info().Int("count", len(demoProducts)).Msg("products upserted")
	return seedRules(ctx, store, time.Now().UTC(), withPromotions, logger)
}

func demoCoupons(now time.Time) []repo.Coupon {
	limit := 100
	return []repo.Coupon{
		{
			Code:               "SAVE10",
			DiscountType:       repo.DiscountPercentage,
			DiscountAmount:     money.MustParse("10"),
			MinimumOrderAmount: money.MustParse("50"),
			StartDate:          now.AddDate(0, -1, 0),
			EndDate:            now.AddDate(1, 0, 0),
			UsageLimit:         &limit,
			IsActive:           true,
		},
		{
			Code:           "WELCOME5",
			DiscountType:   repo.DiscountFixedAmount,
			DiscountAmount: money.MustParse("5"),
			StartDate:      now.AddDate(0, -1, 0),
			EndDate:        now.AddDate(1, 0, 0),
			IsActive:       true,
		},
	}
}

func demoPromotions(now time.Time) []repo.Promotion {
	promos := []repo.Promotion{
		{Name: "Backpack week", DiscountPercentage: money.MustParse("30"), ProductIDs: []string{demoProducts[0].ID}},
		{Name: "Outdoor basics", DiscountPercentage: money.MustParse("15"), ProductIDs: []string{demoProducts[0].ID, demoProducts[2].ID, demoProducts[3].ID}},
	}
	for i := range promos {
		promos[i].StartDate = now.Add(-time.Hour)
		promos[i].EndDate = now.AddDate(0, 0, 30)
		promos[i].IsActive = true
	}
	return promos
}

// seedRules creates the demo coupons and promotions in one transaction.
// Existing coupon codes are left untouched.
func seedRules(ctx context.Context, store repo.Store, now time.Time, withPromotions bool, logger zerolog.Logger) error {
	return store.InTx(ctx, func(repos repo.Repositories) error {
		for _, c := range demoCoupons(now) {
			_, err := repos.Coupons().FindCouponByCode(ctx, c.Code)
			if err == nil {
				logger.Info().Str("code", c.Code).Msg("coupon exists")
				continue
			}
			if !errors.Is(err, common.ErrNotFound) {
				return err
			}
			if _, err := repos.Coupons().CreateCoupon(ctx, c); err != nil {
				return err
			}
			logger.Info().Str("code", c.Code).Msg("coupon created")
		}

		if !withPromotions {
			return nil
		}
		for _, p := range demoPromotions(now) {
			created, err := repos.Promotions().CreatePromotion(ctx, p)
			if err != nil {
				return fmt.Errorf("create promotion %q: %w", p.Name, err)
			}
			logger.Info().Str("promotion_id", created.ID).Str("name", created.Name).Msg("promotion created")
		}
		return nil
	})
}
