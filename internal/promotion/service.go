package promotion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/repo"
)

// Service manages promotions for admins.
type Service struct {
	Store  repo.Store
	Logger zerolog.Logger
}

// Input is the admin-supplied definition of a promotion.
type Input struct {
	Name               string
	DiscountPercentage string
	StartDate          time.Time
	EndDate            time.Time
	IsActive           bool
	ProductIDs         []string
}

func (in Input) toPromotion() (repo.Promotion, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return repo.Promotion{}, fmt.Errorf("name is required: %w", common.ErrInvalidInput)
	}
	pct, err := decimal.NewFromString(strings.TrimSpace(in.DiscountPercentage))
	if err != nil || !pct.IsPositive() || pct.GreaterThan(hundred) {
		return repo.Promotion{}, fmt.Errorf("discountPercentage must be in (0, 100]: %w", common.ErrInvalidInput)
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() || in.EndDate.Before(in.StartDate) {
		return repo.Promotion{}, fmt.Errorf("endDate must not precede startDate: %w", common.ErrInvalidInput)
	}
	if len(in.ProductIDs) == 0 {
		return repo.Promotion{}, fmt.Errorf("productIds must not be empty: %w", common.ErrInvalidInput)
	}
	seen := make(map[string]struct{}, len(in.ProductIDs))
	ids := make([]string, 0, len(in.ProductIDs))
	for _, id := range in.ProductIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			return repo.Promotion{}, fmt.Errorf("productIds must not contain blanks: %w", common.ErrInvalidInput)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return repo.Promotion{
		Name:               name,
		DiscountPercentage: pct,
		StartDate:          in.StartDate.UTC(),
		EndDate:            in.EndDate.UTC(),
		IsActive:           in.IsActive,
		ProductIDs:         ids,
	}, nil
}

// Create validates in and stores the promotion with its product links in one
// transaction. Unknown products return common.ErrNotFound.
func (s *Service) Create(ctx context.Context, in Input) (repo.Promotion, error) {
	p, err := in.toPromotion()
	if err != nil {
		return repo.Promotion{}, err
	}
	var created repo.Promotion
	err = s.Store.InTx(ctx, func(repos repo.Repositories) error {
		for _, id := range p.ProductIDs {
			if _, err := repos.Products().GetProduct(ctx, id); err != nil {
				return err
			}
		}
		created, err = repos.Promotions().CreatePromotion(ctx, p)
		return err
	})
	if err != nil {
		return repo.Promotion{}, err
	}
	s.Logger.Info().Str("promotion_id", created.ID).Str("discount_pct", created.DiscountPercentage.String()).
		Int("products", len(created.ProductIDs)).Msg("promotion created")
	return created, nil
}
