// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft InvoiceStatus = "DRAFT"
	InvoiceStatusSent  InvoiceStatus = "SENT"
	InvoiceStatusPaid  InvoiceStatus = "PAID"
)

// Invoice is one tenant's bill for one calendar month. BillingMonth is
// the first day of that month. One invoice exists per tenant per month;
// once paid, its financial fields are frozen.
type Invoice struct {
	ID            snowflake.ID      `json:"id" gorm:"primaryKey"`
	TenantID      snowflake.ID      `json:"tenant_id" gorm:"column:tenant_id;not null;index;uniqueIndex:ux_invoices_tenant_month;uniqueIndex:ux_invoices_tenant_number,priority:1"`
	TenantName    string            `json:"tenant_name" gorm:"type:text;not null"`
	InvoiceNumber string            `json:"invoice_number" gorm:"type:text;not null;uniqueIndex:ux_invoices_tenant_number,priority:2"`
	BillingMonth  time.Time         `json:"billing_month" gorm:"not null;uniqueIndex:ux_invoices_tenant_month"`
	Subtotal      int64             `json:"subtotal" gorm:"not null;default:0"`
	Tax           int64             `json:"tax" gorm:"not null;default:0"`
	Total         int64             `json:"total" gorm:"not null;default:0"`
	Status        InvoiceStatus     `json:"status" gorm:"type:text;not null;default:'DRAFT'"`
	DueAt         time.Time         `json:"due_at" gorm:"not null"`
	SentAt        *time.Time        `json:"sent_at,omitempty" gorm:""`
	PaidAt        *time.Time        `json:"paid_at,omitempty" gorm:""`
	BillingEmail  string            `json:"billing_email" gorm:"type:text;not null"`
	Memo          string            `json:"memo,omitempty" gorm:"type:text"`
	Metadata      datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt     time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`

	Items []InvoiceItem `json:"items" gorm:"-"`
}

func (Invoice) TableName() string { return "invoices" }

// InvoiceItem is a line on an invoice. Amount is authoritative and
// tax-exclusive; UnitPrice is a display average, so Quantity*UnitPrice
// need not equal Amount exactly.
type InvoiceItem struct {
	ID               snowflake.ID  `json:"id" gorm:"primaryKey"`
	TenantID         snowflake.ID  `json:"tenant_id" gorm:"column:tenant_id;not null;index"`
	InvoiceID        snowflake.ID  `json:"invoice_id" gorm:"not null;index"`
	ProrationEventID *snowflake.ID `json:"proration_event_id,omitempty" gorm:"index"`
	Description      string        `json:"description" gorm:"type:text;not null"`
	Quantity         int           `json:"quantity" gorm:"not null"`
	UnitPrice        int64         `json:"unit_price" gorm:"not null"`
	Amount           int64         `json:"amount" gorm:"not null"`
	PeriodStart      *time.Time    `json:"period_start,omitempty" gorm:""`
	PeriodEnd        *time.Time    `json:"period_end,omitempty" gorm:""`
	CreatedAt        time.Time     `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (InvoiceItem) TableName() string { return "invoice_items" }

// InvoiceSequence is the per-tenant monthly counter behind gap-free
// invoice numbering. The unique index turns lost allocation races into
// retryable conflicts.
type InvoiceSequence struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	TenantID  snowflake.ID `gorm:"column:tenant_id;not null;uniqueIndex:ux_invoice_sequences_scope"`
	Year      int          `gorm:"not null;uniqueIndex:ux_invoice_sequences_scope"`
	Month     int          `gorm:"not null;uniqueIndex:ux_invoice_sequences_scope"`
	LastSeq   int64        `gorm:"column:last_seq;not null;default:0"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (InvoiceSequence) TableName() string { return "invoice_sequences" }
