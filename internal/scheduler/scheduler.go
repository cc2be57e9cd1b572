// Package scheduler runs the monthly period-close worker: once a
// billing month has ended, every active tenant still missing an
// invoice for it gets a draft generated from its tier schedule and
// proration ledger.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kintailabs/kintai/internal/clock"
	invoicedomain "github.com/kintailabs/kintai/internal/invoice/domain"
	"github.com/kintailabs/kintai/internal/metrics"
	"github.com/kintailabs/kintai/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("scheduler requires db, log, invoice service, and clock")

const periodCloseJob = "period_close"

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	InvoiceSvc invoicedomain.Service
	Clock      clock.Clock
	Config     Config `optional:"true"`
}

type Scheduler struct {
	db         *gorm.DB
	log        *zap.Logger
	cfg        Config
	clock      clock.Clock
	invoiceSvc invoicedomain.Service

	mu        sync.Mutex
	lastRun   time.Time
	lastError error
}

// candidate is a tenant whose latest invoice predates the closed month.
type candidate struct {
	InvoiceID    snowflake.ID `gorm:"column:id"`
	TenantID     snowflake.ID `gorm:"column:tenant_id"`
	TenantName   string       `gorm:"column:tenant_name"`
	BillingEmail string       `gorm:"column:billing_email"`
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.InvoiceSvc == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:         p.DB,
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:        p.Config.withDefaults(),
		clock:      p.Clock,
		invoiceSvc: p.InvoiceSvc,
	}, nil
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := s.clock.Now()
	wallStart := time.Now()
	billingMetrics := metrics.Billing()
	billingMetrics.IncJobRun(periodCloseJob)

	err := s.PeriodCloseJob(ctx)
	billingMetrics.ObserveJobDuration(periodCloseJob, time.Since(wallStart))
	if err != nil {
		billingMetrics.IncJobError(periodCloseJob)
	}

	s.mu.Lock()
	s.lastRun = start
	s.lastError = err
	s.mu.Unlock()

	return err
}

// LastRun reports the previous run's start time and error, if any.
func (s *Scheduler) LastRun() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastError
}

// PeriodCloseJob invoices the most recently closed billing month for
// tenants that have billed before but have no invoice for it yet. The
// (tenant_id, billing_month) unique index makes a double run harmless;
// SKIP LOCKED just keeps concurrent replicas off the same batch.
func (s *Scheduler) PeriodCloseJob(ctx context.Context) error {
	now := s.clock.Now().UTC()
	closedMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)

	candidates, err := s.findCandidates(ctx, closedMonth)
	if err != nil {
		return fmt.Errorf("%s: %w", periodCloseJob, err)
	}
	if len(candidates) == 0 {
		return nil
	}

	billingMetrics := metrics.Billing()
	var jobErr error
	for _, cand := range candidates {
		userCount, err := s.resolveUserCount(ctx, cand, closedMonth)
		if err != nil {
			billingMetrics.IncInvoiceError("scheduler")
			jobErr = errors.Join(jobErr, fmt.Errorf("tenant %s: %w", cand.TenantID, err))
			continue
		}

		tenantCtx := tenantctx.WithTenantID(ctx, int64(cand.TenantID))
		invoice, err := s.invoiceSvc.Generate(tenantCtx, invoicedomain.GenerateRequest{
			BillingMonth: closedMonth,
			UserCount:    userCount,
			TenantName:   cand.TenantName,
			BillingEmail: cand.BillingEmail,
		})
		if err != nil {
			billingMetrics.IncInvoiceError("scheduler")
			jobErr = errors.Join(jobErr, fmt.Errorf("tenant %s: %w", cand.TenantID, err))
			continue
		}

		billingMetrics.IncInvoiceGenerated("scheduler")
		s.log.Info("period close invoice generated",
			zap.String("tenant_id", cand.TenantID.String()),
			zap.String("invoice_number", invoice.InvoiceNumber),
			zap.Time("billing_month", closedMonth),
		)
	}

	if jobErr != nil {
		return fmt.Errorf("%s: %w", periodCloseJob, jobErr)
	}
	return nil
}

// findCandidates picks each tenant's latest invoice when that invoice
// predates the closed month and no invoice exists for the closed month
// itself. The locks are released as soon as the scan commits.
//
// Discovery runs over invoice history on purpose: the proration ledger
// carries no tenant name or billing email, so a tenant that has never
// been invoiced cannot be drafted here even if it has events on the
// books. Its first invoice comes through the generate endpoint, after
// which period close takes over.
func (s *Scheduler) findCandidates(ctx context.Context, closedMonth time.Time) ([]candidate, error) {
	query := `SELECT i.id, i.tenant_id, i.tenant_name, i.billing_email
	 FROM invoices i
	 WHERE i.billing_month = (
	       SELECT MAX(prev.billing_month) FROM invoices prev WHERE prev.tenant_id = i.tenant_id
	 )
	   AND i.billing_month < ?
	   AND NOT EXISTS (
	       SELECT 1 FROM invoices cur
	       WHERE cur.tenant_id = i.tenant_id AND cur.billing_month = ?
	 )
	 ORDER BY i.tenant_id
	 LIMIT ?`

	var candidates []candidate
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked := query
		if tx.Dialector.Name() != "sqlite" {
			locked += " FOR UPDATE SKIP LOCKED"
		}
		return tx.Raw(locked, closedMonth, closedMonth, s.cfg.BatchSize).Scan(&candidates).Error
	})
	if err != nil {
		return nil, err
	}
	return candidates, nil
}

// resolveUserCount reconstructs the headcount in force at the start of
// the billing month. In-month deltas are already billed through the
// proration ledger, so the base line must not absorb them.
func (s *Scheduler) resolveUserCount(ctx context.Context, cand candidate, monthStart time.Time) (int, error) {
	// Count after the last change before the month opened.
	var counts []int
	err := s.db.WithContext(ctx).Raw(
		`SELECT user_count_after FROM proration_events
		 WHERE tenant_id = ? AND event_date < ?
		 ORDER BY event_date DESC, id DESC
		 LIMIT 1`,
		cand.TenantID,
		monthStart,
	).Scan(&counts).Error
	if err != nil {
		return 0, err
	}
	if len(counts) > 0 {
		return counts[0], nil
	}

	// No history before the month: the first in-month change still
	// carries the opening count on its before side.
	err = s.db.WithContext(ctx).Raw(
		`SELECT user_count_before FROM proration_events
		 WHERE tenant_id = ? AND event_date >= ? AND event_date < ?
		 ORDER BY event_date ASC, id ASC
		 LIMIT 1`,
		cand.TenantID,
		monthStart,
		monthStart.AddDate(0, 1, 0),
	).Scan(&counts).Error
	if err != nil {
		return 0, err
	}
	if len(counts) > 0 {
		return counts[0], nil
	}

	// Quiet month: reuse the base line of the latest invoice.
	err = s.db.WithContext(ctx).Raw(
		`SELECT quantity FROM invoice_items
		 WHERE invoice_id = ? AND proration_event_id IS NULL
		 LIMIT 1`,
		cand.InvoiceID,
	).Scan(&counts).Error
	if err != nil {
		return 0, err
	}
	if len(counts) > 0 {
		return counts[0], nil
	}

	return 0, fmt.Errorf("no user count on record for tenant %s", cand.TenantID)
}
