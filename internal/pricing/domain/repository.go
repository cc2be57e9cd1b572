package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	ListForTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]PricingTier, error)
	ReplaceForTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, tiers []PricingTier) error
}
