package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/kintailabs/kintai/internal/billing/domain"
	"github.com/kintailabs/kintai/internal/config"
	pricingdomain "github.com/kintailabs/kintai/internal/pricing/domain"
	prorationdomain "github.com/kintailabs/kintai/internal/proration/domain"
	"github.com/kintailabs/kintai/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	PricingSvc    pricingdomain.Service
	ProrationRepo prorationdomain.Repository
	Billing       *config.BillingConfigHolder
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	pricingSvc    pricingdomain.Service
	prorationRepo prorationdomain.Repository
	billing       *config.BillingConfigHolder
}

func New(p Params) billingdomain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("billing.service"),
		pricingSvc:    p.PricingSvc,
		prorationRepo: p.ProrationRepo,
		billing:       p.Billing,
	}
}

func (s *Service) PreviewMonth(ctx context.Context, year int, month time.Month, baseUserCount int) (billingdomain.Summary, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return billingdomain.Summary{}, err
	}

	tiers, err := s.pricingSvc.ListTiers(ctx)
	if err != nil {
		return billingdomain.Summary{}, err
	}

	events, err := s.prorationRepo.ListForMonth(ctx, s.db, tenantID, year, month)
	if err != nil {
		return billingdomain.Summary{}, err
	}

	charges := make([]int64, 0, len(events))
	for _, event := range events {
		charges = append(charges, event.DailyCharge)
	}

	return billingdomain.CalculateMonthly(charges, baseUserCount, tiers, s.billing.Get().TaxRateBps)
}

func (s *Service) tenantIDFromContext(ctx context.Context) (snowflake.ID, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return 0, billingdomain.ErrInvalidTenant
	}
	return snowflake.ID(tenantID), nil
}
