package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kintailabs/kintai/internal/clock"
	"github.com/kintailabs/kintai/internal/config"
	invoicedomain "github.com/kintailabs/kintai/internal/invoice/domain"
	"github.com/kintailabs/kintai/internal/invoice/format"
	"github.com/kintailabs/kintai/internal/metrics"
	pricingdomain "github.com/kintailabs/kintai/internal/pricing/domain"
	prorationdomain "github.com/kintailabs/kintai/internal/proration/domain"
	"github.com/kintailabs/kintai/internal/tax"
	"github.com/kintailabs/kintai/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// sequence allocation retries before giving up on a conflicted scope
const maxAllocationAttempts = 3

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	PricingSvc    pricingdomain.Service
	ProrationRepo prorationdomain.Repository
	Billing       *config.BillingConfigHolder
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	pricingSvc    pricingdomain.Service
	prorationRepo prorationdomain.Repository
	billing       *config.BillingConfigHolder
}

func New(p Params) invoicedomain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("invoice.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		pricingSvc:    p.PricingSvc,
		prorationRepo: p.ProrationRepo,
		billing:       p.Billing,
	}
}

func (s *Service) Generate(ctx context.Context, req invoicedomain.GenerateRequest) (*invoicedomain.Invoice, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateGenerateRequest(req); err != nil {
		return nil, err
	}
	billingMonth := firstOfMonth(req.BillingMonth)

	var generated *invoicedomain.Invoice
	for attempt := 0; attempt < maxAllocationAttempts; attempt++ {
		generated, err = s.generateOnce(ctx, tenantID, billingMonth, req)
		if errors.Is(err, invoicedomain.ErrSequenceConflict) {
			// Lost a numbering race; re-read and retry allocation.
			metrics.Billing().IncSequenceConflict()
			s.log.Warn("invoice sequence conflict, retrying",
				zap.String("tenant_id", tenantID.String()),
				zap.Int("attempt", attempt+1),
			)
			continue
		}
		break
	}
	if err != nil {
		return nil, err
	}
	return generated, nil
}

func (s *Service) generateOnce(ctx context.Context, tenantID snowflake.ID, billingMonth time.Time, req invoicedomain.GenerateRequest) (*invoicedomain.Invoice, error) {
	// Tier schedules change through their own endpoint, not mid-generation,
	// so the read happens before the write transaction opens.
	tiers, err := s.pricingSvc.ListTiers(ctx)
	if err != nil {
		return nil, err
	}

	var result *invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.findByMonth(ctx, tx, tenantID, billingMonth)
		if err != nil {
			return err
		}
		if existing != nil {
			result = existing
			return nil
		}

		events, err := s.prorationRepo.ListForMonth(ctx, tx, tenantID, billingMonth.Year(), billingMonth.Month())
		if err != nil {
			return err
		}

		now := s.clock.Now()
		cfg := s.billing.Get()
		invoiceID := s.genID.Generate()
		items, subtotal, err := s.buildItems(tenantID, invoiceID, billingMonth, req.UserCount, tiers, events, cfg.TaxRateBps, now)
		if err != nil {
			return err
		}

		seq, err := s.allocateSequence(ctx, tx, tenantID, billingMonth.Year(), billingMonth.Month(), now)
		if err != nil {
			return err
		}

		number, err := format.FormatInvoiceNumber(cfg.InvoiceNumberTemplate, billingMonth, seq)
		if err != nil {
			return err
		}

		taxAmount := tax.CalculateAt(subtotal, cfg.TaxRateBps)
		lastDay := billingMonth.AddDate(0, 1, -1)
		invoice := invoicedomain.Invoice{
			ID:            invoiceID,
			TenantID:      tenantID,
			TenantName:    req.TenantName,
			InvoiceNumber: number,
			BillingMonth:  billingMonth,
			Subtotal:      subtotal,
			Tax:           taxAmount,
			Total:         subtotal + taxAmount,
			Status:        invoicedomain.InvoiceStatusDraft,
			DueAt:         lastDay.AddDate(0, 0, cfg.DueDays),
			BillingEmail:  req.BillingEmail,
			Memo:          req.Memo,
			CreatedAt:     now,
			UpdatedAt:     now,
			Items:         items,
		}

		inserted, err := s.insertInvoice(ctx, tx, invoice)
		if err != nil {
			return err
		}
		if !inserted {
			// Another writer generated this month first; reuse theirs.
			existing, err := s.findByMonth(ctx, tx, tenantID, billingMonth)
			if err != nil {
				return err
			}
			if existing == nil {
				return invoicedomain.ErrSequenceConflict
			}
			result = existing
			return nil
		}

		for i := range items {
			if err := s.insertItem(ctx, tx, items[i]); err != nil {
				return err
			}
		}

		result = &invoice
		metrics.Billing().IncInvoiceGenerated("api")
		s.log.Info("invoice generated",
			zap.String("tenant_id", tenantID.String()),
			zap.String("invoice_number", number),
			zap.Int64("total", invoice.Total),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) Regenerate(ctx context.Context, req invoicedomain.GenerateRequest) (*invoicedomain.Invoice, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateGenerateRequest(req); err != nil {
		return nil, err
	}
	billingMonth := firstOfMonth(req.BillingMonth)

	tiers, err := s.pricingSvc.ListTiers(ctx)
	if err != nil {
		return nil, err
	}

	var result *invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.findByMonthForUpdate(ctx, tx, tenantID, billingMonth)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		switch invoice.Status {
		case invoicedomain.InvoiceStatusPaid:
			return invoicedomain.ErrInvoiceImmutable
		case invoicedomain.InvoiceStatusSent:
			return invoicedomain.ErrInvoiceNotDraft
		}

		events, err := s.prorationRepo.ListForMonth(ctx, tx, tenantID, billingMonth.Year(), billingMonth.Month())
		if err != nil {
			return err
		}

		now := s.clock.Now()
		cfg := s.billing.Get()
		items, subtotal, err := s.buildItems(tenantID, invoice.ID, billingMonth, req.UserCount, tiers, events, cfg.TaxRateBps, now)
		if err != nil {
			return err
		}

		taxAmount := tax.CalculateAt(subtotal, cfg.TaxRateBps)
		if err := tx.WithContext(ctx).Exec(
			`UPDATE invoices
			 SET subtotal = ?, tax = ?, total = ?, tenant_name = ?, billing_email = ?, memo = ?, updated_at = ?
			 WHERE id = ? AND status = ?`,
			subtotal,
			taxAmount,
			subtotal+taxAmount,
			req.TenantName,
			req.BillingEmail,
			req.Memo,
			now,
			invoice.ID,
			invoicedomain.InvoiceStatusDraft,
		).Error; err != nil {
			return err
		}

		if err := tx.WithContext(ctx).Exec(
			`DELETE FROM invoice_items WHERE invoice_id = ?`,
			invoice.ID,
		).Error; err != nil {
			return err
		}
		for i := range items {
			if err := s.insertItem(ctx, tx, items[i]); err != nil {
				return err
			}
		}

		invoice.Subtotal = subtotal
		invoice.Tax = taxAmount
		invoice.Total = subtotal + taxAmount
		invoice.TenantName = req.TenantName
		invoice.BillingEmail = req.BillingEmail
		invoice.Memo = req.Memo
		invoice.UpdatedAt = now
		invoice.Items = items
		result = invoice
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) List(ctx context.Context, req invoicedomain.ListRequest) ([]invoicedomain.Invoice, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, tenant_id, tenant_name, invoice_number, billing_month, subtotal, tax, total,
	        status, due_at, sent_at, paid_at, billing_email, memo, created_at, updated_at
	 FROM invoices
	 WHERE tenant_id = ?`
	args := []any{tenantID}

	if req.Status != nil {
		query += ` AND status = ?`
		args = append(args, *req.Status)
	}
	if req.Year != 0 && req.Month != 0 {
		monthStart := time.Date(req.Year, time.Month(req.Month), 1, 0, 0, 0, 0, time.UTC)
		query += ` AND billing_month >= ? AND billing_month < ?`
		args = append(args, monthStart, monthStart.AddDate(0, 1, 0))
	}
	query += ` ORDER BY billing_month DESC, invoice_number DESC`

	var invoices []invoicedomain.Invoice
	if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*invoicedomain.Invoice, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	invoiceID, err := parseID(id)
	if err != nil {
		return nil, invoicedomain.ErrInvalidInvoiceID
	}

	invoice, err := s.findByID(ctx, s.db, tenantID, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrInvoiceNotFound
	}
	return invoice, nil
}

func (s *Service) MarkSent(ctx context.Context, id string) (*invoicedomain.Invoice, error) {
	return s.transition(ctx, id, invoicedomain.InvoiceStatusSent)
}

func (s *Service) MarkPaid(ctx context.Context, id string) (*invoicedomain.Invoice, error) {
	return s.transition(ctx, id, invoicedomain.InvoiceStatusPaid)
}

// transition advances the lifecycle state machine. Only status and the
// matching timestamp change; financial fields are never written here,
// which is what keeps paid invoices immutable.
func (s *Service) transition(ctx context.Context, id string, target invoicedomain.InvoiceStatus) (*invoicedomain.Invoice, error) {
	tenantID, err := s.tenantIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	invoiceID, err := parseID(id)
	if err != nil {
		return nil, invoicedomain.ErrInvalidInvoiceID
	}

	var result *invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.findByIDForUpdate(ctx, tx, tenantID, invoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		if !validTransition(invoice.Status, target) {
			return invoicedomain.ErrInvalidTransition
		}

		now := s.clock.Now()
		var column string
		switch target {
		case invoicedomain.InvoiceStatusSent:
			column = "sent_at"
			invoice.SentAt = &now
		case invoicedomain.InvoiceStatusPaid:
			column = "paid_at"
			invoice.PaidAt = &now
		default:
			return invoicedomain.ErrInvalidTransition
		}

		if err := tx.WithContext(ctx).Exec(
			fmt.Sprintf(`UPDATE invoices SET status = ?, %s = ?, updated_at = ? WHERE id = ?`, column),
			target,
			now,
			now,
			invoice.ID,
		).Error; err != nil {
			return err
		}

		invoice.Status = target
		invoice.UpdatedAt = now
		result = invoice
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("invoice status changed",
		zap.String("invoice_number", result.InvoiceNumber),
		zap.String("status", string(result.Status)),
	)
	return result, nil
}

// validTransition encodes draft -> sent -> paid. Marking a draft paid
// without an explicit send is allowed; no reverse transitions exist.
func validTransition(from, to invoicedomain.InvoiceStatus) bool {
	switch from {
	case invoicedomain.InvoiceStatusDraft:
		return to == invoicedomain.InvoiceStatusSent || to == invoicedomain.InvoiceStatusPaid
	case invoicedomain.InvoiceStatusSent:
		return to == invoicedomain.InvoiceStatusPaid
	default:
		return false
	}
}

func (s *Service) Projection(ctx context.Context, id string) (*invoicedomain.Projection, error) {
	invoice, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	items := make([]invoicedomain.ProjectionItem, 0, len(invoice.Items))
	for _, item := range invoice.Items {
		items = append(items, invoicedomain.ProjectionItem{
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   format.FormatYen(item.UnitPrice),
			Amount:      format.FormatYen(item.Amount),
		})
	}

	return &invoicedomain.Projection{
		InvoiceNumber: invoice.InvoiceNumber,
		IssueDate:     invoice.CreatedAt.Format("2006-01-02"),
		DueDate:       invoice.DueAt.Format("2006-01-02"),
		BillingMonth:  invoice.BillingMonth.Format("2006-01"),
		TenantName:    invoice.TenantName,
		BillingEmail:  invoice.BillingEmail,
		Items:         items,
		Subtotal:      format.FormatYen(invoice.Subtotal),
		Tax:           format.FormatYen(invoice.Tax),
		Total:         format.FormatYen(invoice.Total),
		Memo:          invoice.Memo,
	}, nil
}

// buildItems assembles the base line from the tier schedule plus one
// line per proration event. Proration amounts are stored tax-inclusive
// on the ledger, so the pretax amount is recovered by the exact tax
// inverse; otherwise subtotal, tax, and total would not reconcile.
func (s *Service) buildItems(
	tenantID, invoiceID snowflake.ID,
	billingMonth time.Time,
	userCount int,
	tiers []pricingdomain.PricingTier,
	events []prorationdomain.Event,
	taxRateBps int64,
	now time.Time,
) ([]invoicedomain.InvoiceItem, int64, error) {
	base, err := pricingdomain.CalculateMonthlyPrice(userCount, tiers)
	if err != nil {
		return nil, 0, err
	}

	monthStart := billingMonth
	monthEnd := billingMonth.AddDate(0, 1, -1)

	items := make([]invoicedomain.InvoiceItem, 0, 1+len(events))
	items = append(items, invoicedomain.InvoiceItem{
		ID:          s.genID.Generate(),
		TenantID:    tenantID,
		InvoiceID:   invoiceID,
		Description: fmt.Sprintf("Monthly subscription, %d users (%s - %s)", userCount, monthStart.Format("2006-01-02"), monthEnd.Format("2006-01-02")),
		Quantity:    userCount,
		UnitPrice:   averageUnitPrice(base.TotalPrice, userCount),
		Amount:      base.TotalPrice,
		PeriodStart: &monthStart,
		PeriodEnd:   &monthEnd,
		CreatedAt:   now,
	})
	subtotal := base.TotalPrice

	for i := range events {
		event := events[i]
		pretax, err := tax.RemoveTaxAt(event.DailyCharge, taxRateBps)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: event %s", invoicedomain.ErrChargeNotInvertible, event.ID)
		}

		quantity := event.UserCountAfter - event.UserCountBefore
		if quantity < 0 {
			quantity = -quantity
		}
		eventDate := event.EventDate
		items = append(items, invoicedomain.InvoiceItem{
			ID:               s.genID.Generate(),
			TenantID:         tenantID,
			InvoiceID:        invoiceID,
			ProrationEventID: &event.ID,
			Description: fmt.Sprintf("Proration (%s): %d -> %d users on %s, %d/%d days",
				event.Action, event.UserCountBefore, event.UserCountAfter,
				eventDate.Format("2006-01-02"), event.RemainingDays, event.DaysInMonth),
			Quantity:    quantity,
			UnitPrice:   averageUnitPrice(pretax, quantity),
			Amount:      pretax,
			PeriodStart: &eventDate,
			PeriodEnd:   &monthEnd,
			CreatedAt:   now,
		})
		subtotal += pretax
	}

	return items, subtotal, nil
}

// averageUnitPrice is advisory display data only; Amount stays
// authoritative because integer division discards remainders.
func averageUnitPrice(amount int64, quantity int) int64 {
	if quantity <= 0 {
		return 0
	}
	return amount / int64(quantity)
}

func validateGenerateRequest(req invoicedomain.GenerateRequest) error {
	if req.BillingMonth.IsZero() {
		return invoicedomain.ErrInvalidMonth
	}
	if strings.TrimSpace(req.BillingEmail) == "" {
		return invoicedomain.ErrMissingEmail
	}
	if req.UserCount < 0 {
		return pricingdomain.ErrNegativeUserCount
	}
	return nil
}

func firstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func (s *Service) tenantIDFromContext(ctx context.Context) (snowflake.ID, error) {
	tenantID, ok := tenantctx.TenantID(ctx)
	if !ok || tenantID == 0 {
		return 0, invoicedomain.ErrInvalidTenant
	}
	return snowflake.ID(tenantID), nil
}

func parseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(value))
}
