package migration

import (
	invoicedomain "github.com/kintailabs/kintai/internal/invoice/domain"
	pricingdomain "github.com/kintailabs/kintai/internal/pricing/domain"
	prorationdomain "github.com/kintailabs/kintai/internal/proration/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB) error {
		// Versioned migrations are written for postgres. Other dialects
		// (sqlite local dev, mysql) fall back to schema sync from the
		// models.
		if conn.Dialector.Name() != "postgres" {
			return conn.AutoMigrate(
				&pricingdomain.PricingTier{},
				&prorationdomain.Event{},
				&invoicedomain.Invoice{},
				&invoicedomain.InvoiceItem{},
				&invoicedomain.InvoiceSequence{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
