// Package domain contains the tier schedule model and the pure pricing
// calculator for per-user tiered billing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// PricingTier is one user-count band of a tenant's tier schedule.
// TenantID 0 marks the portal-wide default schedule.
type PricingTier struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	TenantID     snowflake.ID `json:"tenant_id" gorm:"column:tenant_id;not null;index"`
	Name         string       `json:"name" gorm:"type:text;not null"`
	MinUsers     int          `json:"min_users" gorm:"not null"`
	MaxUsers     *int         `json:"max_users,omitempty" gorm:""`
	PricePerUser int64        `json:"price_per_user" gorm:"not null"`
	SortOrder    int          `json:"sort_order" gorm:"column:sort_order;not null"`
	CreatedAt    time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (PricingTier) TableName() string { return "pricing_tiers" }

// TierBreakdown is the per-tier share of a calculated monthly price.
type TierBreakdown struct {
	TierName     string `json:"tier_name"`
	MinUsers     int    `json:"min_users"`
	MaxUsers     *int   `json:"max_users,omitempty"`
	PricePerUser int64  `json:"price_per_user"`
	UsersInTier  int    `json:"users_in_tier"`
	Subtotal     int64  `json:"subtotal"`
}

// CalculationResult is derived, never persisted.
// Invariants: sum(Breakdown[].Subtotal) == TotalPrice and, for positive
// counts, sum(Breakdown[].UsersInTier) == UserCount.
type CalculationResult struct {
	TotalPrice int64           `json:"total_price"`
	Breakdown  []TierBreakdown `json:"breakdown"`
	UserCount  int             `json:"user_count"`
}
