package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kintailabs/kintai/internal/clock"
	"github.com/kintailabs/kintai/internal/config"
	"github.com/kintailabs/kintai/internal/metrics"
	pricingdomain "github.com/kintailabs/kintai/internal/pricing/domain"
	prorationdomain "github.com/kintailabs/kintai/internal/proration/domain"
	"github.com/kintailabs/kintai/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       prorationdomain.Repository
	PricingSvc pricingdomain.Service
	Billing    *config.BillingConfigHolder
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       prorationdomain.Repository
	pricingSvc pricingdomain.Service
	billing    *config.BillingConfigHolder
}

func New(p Params) prorationdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("proration.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		pricingSvc: p.PricingSvc,
		billing:    p.Billing,
	}
}

func (s *Service) Record(ctx context.Context, req prorationdomain.RecordRequest) (*prorationdomain.Event, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if req.Date.IsZero() {
		return nil, prorationdomain.ErrInvalidDate
	}

	tiers, err := s.pricingSvc.ListTiers(ctx)
	if err != nil {
		return nil, err
	}

	event, err := prorationdomain.CalculateDaily(req.Date, req.Action, req.UserCountBefore, req.UserCountAfter, tiers, s.billing.Get().TaxRateBps)
	if err != nil {
		return nil, err
	}

	event.ID = s.genID.Generate()
	event.TenantID = tenantID
	event.Checksum = buildChecksum(tenantID, event)
	event.CreatedAt = s.clock.Now()

	inserted, err := s.repo.Insert(ctx, s.db, &event)
	if err != nil {
		return nil, err
	}
	if !inserted {
		// Replayed change; the ledger already holds this event.
		metrics.Billing().IncProrationReplay()
		s.log.Debug("proration event already recorded",
			zap.String("tenant_id", tenantID.String()),
			zap.String("checksum", event.Checksum),
		)
	} else {
		metrics.Billing().IncProrationEvent(string(event.Action))
	}

	return &event, nil
}

func (s *Service) ListMonth(ctx context.Context, year int, month time.Month) ([]prorationdomain.Event, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListForMonth(ctx, s.db, tenantID, year, month)
}

func (s *Service) tenantIDFromContext(ctx context.Context) (snowflake.ID, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return 0, prorationdomain.ErrInvalidTenant
	}
	return snowflake.ID(tenantID), nil
}

// buildChecksum makes replays of the same user-count change idempotent.
func buildChecksum(tenantID snowflake.ID, event prorationdomain.Event) string {
	payload := fmt.Sprintf(
		"%s|%s|%s|%d|%d",
		tenantID.String(),
		event.EventDate.UTC().Format(time.RFC3339),
		event.Action,
		event.UserCountBefore,
		event.UserCountAfter,
	)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
