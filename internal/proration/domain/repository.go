package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert appends an event. Returns false without error when an
	// event with the same checksum already exists.
	Insert(ctx context.Context, db *gorm.DB, event *Event) (bool, error)
	ListForMonth(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, year int, month time.Month) ([]Event, error)
}
