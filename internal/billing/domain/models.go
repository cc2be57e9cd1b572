// Package domain contains the monthly billing aggregation types.
package domain

import (
	"context"
	"errors"
	"time"
)

// Summary is the in-month running total for one tenant: the base fee
// anchored at the month-start user count plus the signed proration
// deltas recorded since.
//
// Proration charges arrive tax-inclusive (tax is per transaction),
// while the base fee's tax is computed once for the period. Subtotal
// and Tax therefore cover the base fee only; Total folds in the
// tax-inclusive proration amounts. Final invoices recompute tax once
// from the summed pretax subtotal instead (see the invoice generator).
type Summary struct {
	BaseFee        int64 `json:"base_fee"`
	BaseFeeTax     int64 `json:"base_fee_tax"`
	ProrationTotal int64 `json:"proration_total"`
	Subtotal       int64 `json:"subtotal"`
	Tax            int64 `json:"tax"`
	Total          int64 `json:"total"`
}

type Service interface {
	// PreviewMonth aggregates the tenant's base fee and proration
	// ledger for a billing month into a running total.
	PreviewMonth(ctx context.Context, year int, month time.Month, baseUserCount int) (Summary, error)
}

var (
	ErrInvalidTenant = errors.New("invalid_tenant")
)
