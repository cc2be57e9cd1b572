package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	prorationdomain "github.com/kintailabs/kintai/internal/proration/domain"
	pkgdb "github.com/kintailabs/kintai/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() prorationdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, event *prorationdomain.Event) (bool, error) {
	query := pkgdb.IdempotentInsertSQL(db.Dialector.Name(),
		`INSERT INTO proration_events (
			id, tenant_id, event_date, action, user_count_before, user_count_after,
			days_in_month, remaining_days, monthly_price_before, monthly_price_after,
			daily_charge, checksum, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (checksum) DO NOTHING`)
	result := db.WithContext(ctx).Exec(query,
		event.ID,
		event.TenantID,
		event.EventDate,
		event.Action,
		event.UserCountBefore,
		event.UserCountAfter,
		event.DaysInMonth,
		event.RemainingDays,
		event.MonthlyPriceBefore,
		event.MonthlyPriceAfter,
		event.DailyCharge,
		event.Checksum,
		event.CreatedAt,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ListForMonth(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, year int, month time.Month) ([]prorationdomain.Event, error) {
	monthStart := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	nextMonth := monthStart.AddDate(0, 1, 0)

	var events []prorationdomain.Event
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, event_date, action, user_count_before, user_count_after,
		        days_in_month, remaining_days, monthly_price_before, monthly_price_after,
		        daily_charge, checksum, created_at
		 FROM proration_events
		 WHERE tenant_id = ? AND event_date >= ? AND event_date < ?
		 ORDER BY event_date ASC, id ASC`,
		tenantID,
		monthStart,
		nextMonth,
	).Scan(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
