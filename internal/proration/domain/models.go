// Package domain contains the proration event model and the pure
// day-weighted proration calculator.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Action is the user-count-changing operation that triggered an event.
type Action string

const (
	ActionAdded       Action = "added"
	ActionActivated   Action = "activated"
	ActionDeactivated Action = "deactivated"
	ActionDeleted     Action = "deleted"
)

func (a Action) Valid() bool {
	switch a {
	case ActionAdded, ActionActivated, ActionDeactivated, ActionDeleted:
		return true
	default:
		return false
	}
}

// Event is one entry of the append-only proration ledger. Events are
// immutable after insert; a paid dispute is answered by replaying them,
// never by editing them.
type Event struct {
	ID                 snowflake.ID `json:"id" gorm:"primaryKey"`
	TenantID           snowflake.ID `json:"tenant_id" gorm:"column:tenant_id;not null;index"`
	EventDate          time.Time    `json:"event_date" gorm:"column:event_date;not null"`
	Action             Action       `json:"action" gorm:"type:text;not null"`
	UserCountBefore    int          `json:"user_count_before" gorm:"not null"`
	UserCountAfter     int          `json:"user_count_after" gorm:"not null"`
	DaysInMonth        int          `json:"days_in_month" gorm:"not null"`
	RemainingDays      int          `json:"remaining_days" gorm:"not null"`
	MonthlyPriceBefore int64        `json:"monthly_price_before" gorm:"not null"`
	MonthlyPriceAfter  int64        `json:"monthly_price_after" gorm:"not null"`
	// DailyCharge is tax-inclusive and signed: removals yield negative
	// credits whose sign survives aggregation.
	DailyCharge int64     `json:"daily_charge" gorm:"not null"`
	Checksum    string    `json:"-" gorm:"type:text;not null;uniqueIndex"`
	CreatedAt   time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Event) TableName() string { return "proration_events" }
