package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kintailabs/kintai/internal/clock"
	"github.com/kintailabs/kintai/internal/config"
	pricingdomain "github.com/kintailabs/kintai/internal/pricing/domain"
	"github.com/kintailabs/kintai/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    pricingdomain.Repository
	Billing *config.BillingConfigHolder
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    pricingdomain.Repository
	billing *config.BillingConfigHolder
}

func New(p Params) pricingdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("pricing.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		billing: p.Billing,
	}
}

func (s *Service) ListTiers(ctx context.Context) ([]pricingdomain.PricingTier, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return s.tiersForTenant(ctx, tenantID)
}

func (s *Service) ReplaceTiers(ctx context.Context, req pricingdomain.ReplaceTiersRequest) ([]pricingdomain.PricingTier, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	tiers := make([]pricingdomain.PricingTier, 0, len(req.Tiers))
	for i, input := range req.Tiers {
		name := strings.TrimSpace(input.Name)
		tiers = append(tiers, pricingdomain.PricingTier{
			ID:           s.genID.Generate(),
			TenantID:     tenantID,
			Name:         name,
			MinUsers:     input.MinUsers,
			MaxUsers:     input.MaxUsers,
			PricePerUser: input.PricePerUser,
			SortOrder:    i,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}

	// Configuration errors block activation; no silent default fallback.
	if violations := pricingdomain.ValidateTiers(tiers); len(violations) > 0 {
		return nil, &pricingdomain.ValidationError{Violations: violations}
	}

	if err := s.repo.ReplaceForTenant(ctx, s.db, tenantID, tiers); err != nil {
		return nil, err
	}

	s.log.Info("tier schedule replaced",
		zap.String("tenant_id", tenantID.String()),
		zap.Int("tiers", len(tiers)),
	)
	return tiers, nil
}

func (s *Service) Preview(ctx context.Context, userCount int) (pricingdomain.CalculationResult, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return pricingdomain.CalculationResult{}, err
	}

	tiers, err := s.tiersForTenant(ctx, tenantID)
	if err != nil {
		return pricingdomain.CalculationResult{}, err
	}

	return pricingdomain.CalculateMonthlyPrice(userCount, tiers)
}

// tiersForTenant resolves the tenant override, falling back to the
// default schedule from billing config.
func (s *Service) tiersForTenant(ctx context.Context, tenantID snowflake.ID) ([]pricingdomain.PricingTier, error) {
	tiers, err := s.repo.ListForTenant(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}
	if len(tiers) > 0 {
		return tiers, nil
	}
	return DefaultTiers(s.billing.Get()), nil
}

// DefaultTiers converts the billing config fallback schedule into tier
// records usable by the calculator.
func DefaultTiers(cfg config.BillingConfig) []pricingdomain.PricingTier {
	tiers := make([]pricingdomain.PricingTier, 0, len(cfg.DefaultTiers))
	for i, tier := range cfg.DefaultTiers {
		tiers = append(tiers, pricingdomain.PricingTier{
			Name:         tier.Name,
			MinUsers:     tier.MinUsers,
			MaxUsers:     tier.MaxUsers,
			PricePerUser: tier.PricePerUser,
			SortOrder:    i,
			CreatedAt:    time.Time{},
			UpdatedAt:    time.Time{},
		})
	}
	return tiers
}

func (s *Service) tenantIDFromContext(ctx context.Context) (snowflake.ID, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return 0, pricingdomain.ErrInvalidTenant
	}
	return snowflake.ID(tenantID), nil
}
