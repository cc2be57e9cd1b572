package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	pricingdomain "github.com/kintailabs/kintai/internal/pricing/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() pricingdomain.Repository {
	return &repo{}
}

func (r *repo) ListForTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]pricingdomain.PricingTier, error) {
	var items []pricingdomain.PricingTier
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, name, min_users, max_users, price_per_user, sort_order, created_at, updated_at
		 FROM pricing_tiers
		 WHERE tenant_id = ?
		 ORDER BY sort_order ASC`,
		tenantID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ReplaceForTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, tiers []pricingdomain.PricingTier) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`DELETE FROM pricing_tiers WHERE tenant_id = ?`, tenantID).Error; err != nil {
			return err
		}
		for _, tier := range tiers {
			if err := tx.Exec(
				`INSERT INTO pricing_tiers (
					id, tenant_id, name, min_users, max_users, price_per_user, sort_order,
					created_at, updated_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				tier.ID,
				tier.TenantID,
				tier.Name,
				tier.MinUsers,
				tier.MaxUsers,
				tier.PricePerUser,
				tier.SortOrder,
				tier.CreatedAt,
				tier.UpdatedAt,
			).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
