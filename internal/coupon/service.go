package coupon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront/internal/common"
	"github.com/noah-isme/storefront/internal/obs"
	"github.com/noah-isme/storefront/internal/repo"
)

var hundred = decimal.NewFromInt(100)

// Service validates coupons against stored state and manages them for admins.
type Service struct {
	Coupons repo.CouponRepository
	Now     func() time.Time
	Logger  zerolog.Logger
}

// With returns a copy of s bound to repos, typically a transaction.
func (s *Service) With(repos repo.Repositories) *Service {
	cp := *s
	cp.Coupons = repos.Coupons()
	return &cp
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Lookup finds a coupon by code, returning nil for an empty or unknown code.
func (s *Service) Lookup(ctx context.Context, code string) (*repo.Coupon, error) {
	normalized := repo.NormalizeCode(code)
	if normalized == "" {
		return nil, nil
	}
	c, err := s.Coupons.FindCouponByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup coupon: %w", err)
	}
	return &c, nil
}

// Validate checks code for an order of orderAmount that already received promotionDiscount.
func (s *Service) Validate(ctx context.Context, code string, orderAmount, promotionDiscount decimal.Decimal) (ValidationResult, error) {
	c, err := s.Lookup(ctx, code)
	if err != nil {
		return ValidationResult{}, err
	}
	res := Evaluate(code, c, s.now(), orderAmount, promotionDiscount)
	s.record(code, orderAmount, res)
	return res, nil
}

func (s *Service) record(code string, orderAmount decimal.Decimal, res ValidationResult) {
	if res.IsValid {
		obs.RecordCouponValidation("valid")
		s.Logger.Debug().
			Str("coupon_code", repo.NormalizeCode(code)).
			Str("order_amount", orderAmount.StringFixed(2)).
			Str("discount", res.DiscountAmount.StringFixed(2)).
			Msg("coupon validated")
		return
	}
	obs.RecordCouponValidation("invalid")
	s.Logger.Info().
		Str("coupon_code", repo.NormalizeCode(code)).
		Str("order_amount", orderAmount.StringFixed(2)).
		Str("reason", res.Message).
		Msg("coupon rejected")
}

// IncrementUsage records one redemption. It must run inside the transaction
// that commits the order; common.ErrConcurrentModification means the usage
// limit was reached by a concurrent checkout.
func (s *Service) IncrementUsage(ctx context.Context, code string) (repo.Coupon, error) {
	c, err := s.Coupons.IncrementCouponUsage(ctx, code)
	if err != nil {
		return repo.Coupon{}, err
	}
	s.Logger.Info().Str("coupon_code", c.Code).Int("times_used", c.TimesUsed).Msg("coupon redeemed")
	return c, nil
}

// Input is the admin-editable part of a coupon.
type Input struct {
	Code               string
	DiscountType       string
	DiscountAmount     decimal.Decimal
	MinimumOrderAmount decimal.Decimal
	StartDate          time.Time
	EndDate            time.Time
	UsageLimit         *int
	IsActive           bool
}

func (in Input) toCoupon() (repo.Coupon, error) {
	code := repo.NormalizeCode(in.Code)
	if code == "" {
		return repo.Coupon{}, fmt.Errorf("code is required: %w", common.ErrInvalidInput)
	}
	dtype, ok := repo.ParseDiscountType(in.DiscountType)
	if !ok {
		return repo.Coupon{}, fmt.Errorf("discountType must be Percentage or FixedAmount: %w", common.ErrInvalidInput)
	}
	if !in.DiscountAmount.IsPositive() {
		return repo.Coupon{}, fmt.Errorf("discountAmount must be positive: %w", common.ErrInvalidInput)
	}
	if dtype == repo.DiscountPercentage && in.DiscountAmount.GreaterThan(hundred) {
		return repo.Coupon{}, fmt.Errorf("percentage discount cannot exceed 100: %w", common.ErrInvalidInput)
	}
	if in.MinimumOrderAmount.IsNegative() {
		return repo.Coupon{}, fmt.Errorf("minimumOrderAmount cannot be negative: %w", common.ErrInvalidInput)
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() || in.EndDate.Before(in.StartDate) {
		return repo.Coupon{}, fmt.Errorf("endDate must not precede startDate: %w", common.ErrInvalidInput)
	}
	if in.UsageLimit != nil && *in.UsageLimit < 0 {
		return repo.Coupon{}, fmt.Errorf("usageLimit cannot be negative: %w", common.ErrInvalidInput)
	}
	return repo.Coupon{
		Code:               code,
		DiscountType:       dtype,
		DiscountAmount:     in.DiscountAmount,
		MinimumOrderAmount: in.MinimumOrderAmount,
		StartDate:          in.StartDate.UTC(),
		EndDate:            in.EndDate.UTC(),
		UsageLimit:         in.UsageLimit,
		IsActive:           in.IsActive,
	}, nil
}

// Create stores a new coupon. Duplicate codes return common.ErrConflict.
func (s *Service) Create(ctx context.Context, in Input) (repo.Coupon, error) {
	c, err := in.toCoupon()
	if err != nil {
		return repo.Coupon{}, err
	}
	return s.Coupons.CreateCoupon(ctx, c)
}

// Update replaces the editable fields of the coupon identified by code.
func (s *Service) Update(ctx context.Context, code string, in Input) (repo.Coupon, error) {
	in.Code = code
	c, err := in.toCoupon()
	if err != nil {
		return repo.Coupon{}, err
	}
	return s.Coupons.UpdateCoupon(ctx, c)
}

// Get returns the coupon identified by code.
func (s *Service) Get(ctx context.Context, code string) (repo.Coupon, error) {
	return s.Coupons.FindCouponByCode(ctx, repo.NormalizeCode(code))
}
