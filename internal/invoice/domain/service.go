package domain

import (
	"context"
	"errors"
	"time"
)

type Service interface {
	// Generate creates the tenant's draft invoice for a billing month.
	// Idempotent: a second call for the same month returns the
	// existing invoice instead of duplicating it.
	Generate(ctx context.Context, req GenerateRequest) (*Invoice, error)
	// Regenerate recomputes a draft invoice in place after late
	// proration events. Sent and paid invoices are never touched.
	Regenerate(ctx context.Context, req GenerateRequest) (*Invoice, error)
	List(ctx context.Context, req ListRequest) ([]Invoice, error)
	GetByID(ctx context.Context, id string) (*Invoice, error)
	// MarkSent transitions draft -> sent and stamps SentAt.
	MarkSent(ctx context.Context, id string) (*Invoice, error)
	// MarkPaid transitions sent -> paid (or draft -> paid) and stamps
	// PaidAt. Afterwards the invoice's financial fields are frozen.
	MarkPaid(ctx context.Context, id string) (*Invoice, error)
	// Projection renders the email/PDF-ready view with display-string
	// currency. The only place amounts leave integer minor units.
	Projection(ctx context.Context, id string) (*Projection, error)
}

type GenerateRequest struct {
	BillingMonth time.Time `json:"billing_month"`
	UserCount    int       `json:"user_count"`
	TenantName   string    `json:"tenant_name"`
	BillingEmail string    `json:"billing_email"`
	Memo         string    `json:"memo"`
}

type ListRequest struct {
	Status *InvoiceStatus `json:"status"`
	Year   int            `json:"year"`
	Month  int            `json:"month"`
}

// Projection is the renderer-facing view of an invoice. Currency
// fields are pre-formatted display strings; the engine itself never
// works in anything but integer minor units.
type Projection struct {
	InvoiceNumber string           `json:"invoice_number"`
	IssueDate     string           `json:"issue_date"`
	DueDate       string           `json:"due_date"`
	BillingMonth  string           `json:"billing_month"`
	TenantName    string           `json:"tenant_name"`
	BillingEmail  string           `json:"billing_email"`
	Items         []ProjectionItem `json:"items"`
	Subtotal      string           `json:"subtotal"`
	Tax           string           `json:"tax"`
	Total         string           `json:"total"`
	Memo          string           `json:"memo,omitempty"`
}

type ProjectionItem struct {
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	Amount      string `json:"amount"`
}

var (
	ErrInvalidTenant       = errors.New("invalid_tenant")
	ErrInvalidInvoiceID    = errors.New("invalid_invoice_id")
	ErrInvalidMonth        = errors.New("invalid_billing_month")
	ErrMissingEmail        = errors.New("missing_billing_email")
	ErrInvoiceNotFound     = errors.New("invoice_not_found")
	ErrInvoiceNotDraft     = errors.New("invoice_not_draft")
	ErrInvalidTransition   = errors.New("invalid_status_transition")
	ErrInvoiceImmutable    = errors.New("invoice_immutable")
	ErrSequenceConflict    = errors.New("invoice_sequence_conflict")
	ErrChargeNotInvertible = errors.New("proration_charge_not_invertible")
)
