package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/kintailabs/kintai/internal/invoice/domain"
	"github.com/kintailabs/kintai/internal/invoice/format"
	"github.com/kintailabs/kintai/pkg/db"
	"gorm.io/gorm"
)

// allocateSequence hands out the next gap-free invoice sequence for a
// tenant's billing month. It must run inside the caller's transaction:
// the counter row is taken FOR UPDATE so concurrent allocations for
// the same scope serialize on it.
//
// When no counter row exists yet, the sequence is bootstrapped from a
// scan over existing invoice numbers (the legacy path) and a counter
// row is inserted. Two transactions bootstrapping the same scope race
// on the unique index; the loser gets ErrSequenceConflict and the
// generator retries against the now-existing counter.
func (s *Service) allocateSequence(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, year int, month time.Month, now time.Time) (int64, error) {
	query := `SELECT id, tenant_id, year, month, last_seq, updated_at
	 FROM invoice_sequences
	 WHERE tenant_id = ? AND year = ? AND month = ?`
	if tx.Dialector.Name() != "sqlite" {
		query += " FOR UPDATE"
	}

	var counter invoicedomain.InvoiceSequence
	if err := tx.WithContext(ctx).Raw(query, tenantID, year, int(month)).Scan(&counter).Error; err != nil {
		return 0, err
	}

	if counter.ID != 0 {
		next := counter.LastSeq + 1
		if err := tx.WithContext(ctx).Exec(
			`UPDATE invoice_sequences SET last_seq = ?, updated_at = ? WHERE id = ?`,
			next,
			now,
			counter.ID,
		).Error; err != nil {
			return 0, err
		}
		return next, nil
	}

	existing, err := s.listInvoiceNumbers(ctx, tx, tenantID)
	if err != nil {
		return 0, err
	}
	next := format.NextSequence(existing, year, month)

	if err := tx.WithContext(ctx).Exec(
		`INSERT INTO invoice_sequences (id, tenant_id, year, month, last_seq, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.genID.Generate(),
		tenantID,
		year,
		int(month),
		next,
		now,
	).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return 0, invoicedomain.ErrSequenceConflict
		}
		return 0, err
	}

	return next, nil
}

func (s *Service) listInvoiceNumbers(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID) ([]string, error) {
	var numbers []string
	err := tx.WithContext(ctx).Raw(
		`SELECT invoice_number FROM invoices WHERE tenant_id = ?`,
		tenantID,
	).Scan(&numbers).Error
	if err != nil {
		return nil, err
	}
	return numbers, nil
}
