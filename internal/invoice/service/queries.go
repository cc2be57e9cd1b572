package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/kintailabs/kintai/internal/invoice/domain"
	"github.com/kintailabs/kintai/pkg/db"
	"gorm.io/gorm"
)

const invoiceColumns = `id, tenant_id, tenant_name, invoice_number, billing_month, subtotal, tax, total,
	 status, due_at, sent_at, paid_at, billing_email, memo, created_at, updated_at`

func (s *Service) findByMonth(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, billingMonth time.Time) (*invoicedomain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
	 FROM invoices
	 WHERE tenant_id = ? AND billing_month = ?`
	return s.scanInvoice(ctx, tx, query, tenantID, billingMonth)
}

func (s *Service) findByMonthForUpdate(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, billingMonth time.Time) (*invoicedomain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
	 FROM invoices
	 WHERE tenant_id = ? AND billing_month = ?`
	if tx.Dialector.Name() != "sqlite" {
		query += " FOR UPDATE"
	}
	return s.scanInvoice(ctx, tx, query, tenantID, billingMonth)
}

func (s *Service) findByID(ctx context.Context, tx *gorm.DB, tenantID, invoiceID snowflake.ID) (*invoicedomain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
	 FROM invoices
	 WHERE tenant_id = ? AND id = ?`
	return s.scanInvoice(ctx, tx, query, tenantID, invoiceID)
}

func (s *Service) findByIDForUpdate(ctx context.Context, tx *gorm.DB, tenantID, invoiceID snowflake.ID) (*invoicedomain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + `
	 FROM invoices
	 WHERE tenant_id = ? AND id = ?`
	if tx.Dialector.Name() != "sqlite" {
		query += " FOR UPDATE"
	}
	return s.scanInvoice(ctx, tx, query, tenantID, invoiceID)
}

func (s *Service) scanInvoice(ctx context.Context, tx *gorm.DB, query string, args ...any) (*invoicedomain.Invoice, error) {
	var invoice invoicedomain.Invoice
	if err := tx.WithContext(ctx).Raw(query, args...).Scan(&invoice).Error; err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}

	items, err := s.listItems(ctx, tx, invoice.ID)
	if err != nil {
		return nil, err
	}
	invoice.Items = items
	return &invoice, nil
}

func (s *Service) listItems(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) ([]invoicedomain.InvoiceItem, error) {
	var items []invoicedomain.InvoiceItem
	err := tx.WithContext(ctx).Raw(
		`SELECT id, tenant_id, invoice_id, proration_event_id, description, quantity, unit_price, amount,
		        period_start, period_end, created_at
		 FROM invoice_items
		 WHERE invoice_id = ?
		 ORDER BY id`,
		invoiceID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// insertInvoice relies on the (tenant_id, billing_month) unique index
// to make generation idempotent under concurrency. A swallowed conflict
// reports inserted=false and the caller re-reads the winner's row. A
// violation of the (tenant_id, invoice_number) index is not swallowed;
// it surfaces as ErrSequenceConflict so the generator re-allocates.
func (s *Service) insertInvoice(ctx context.Context, tx *gorm.DB, invoice invoicedomain.Invoice) (bool, error) {
	query := db.IdempotentInsertSQL(tx.Dialector.Name(),
		`INSERT INTO invoices
		 (id, tenant_id, tenant_name, invoice_number, billing_month, subtotal, tax, total,
		  status, due_at, billing_email, memo, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, billing_month) DO NOTHING`)
	result := tx.WithContext(ctx).Exec(query,
		invoice.ID,
		invoice.TenantID,
		invoice.TenantName,
		invoice.InvoiceNumber,
		invoice.BillingMonth,
		invoice.Subtotal,
		invoice.Tax,
		invoice.Total,
		invoice.Status,
		invoice.DueAt,
		invoice.BillingEmail,
		invoice.Memo,
		invoice.CreatedAt,
		invoice.UpdatedAt,
	)
	if result.Error != nil {
		if db.IsDuplicateKeyErr(result.Error) {
			return false, invoicedomain.ErrSequenceConflict
		}
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *Service) insertItem(ctx context.Context, tx *gorm.DB, item invoicedomain.InvoiceItem) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO invoice_items
		 (id, tenant_id, invoice_id, proration_event_id, description, quantity, unit_price, amount,
		  period_start, period_end, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.TenantID,
		item.InvoiceID,
		item.ProrationEventID,
		item.Description,
		item.Quantity,
		item.UnitPrice,
		item.Amount,
		item.PeriodStart,
		item.PeriodEnd,
		item.CreatedAt,
	).Error
}
