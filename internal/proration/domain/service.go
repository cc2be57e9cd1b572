package domain

import (
	"context"
	"errors"
	"time"
)

type Service interface {
	// Record appends one event to the tenant's proration ledger.
	// Replays of the same change are deduplicated by checksum.
	Record(ctx context.Context, req RecordRequest) (*Event, error)
	// ListMonth returns the tenant's ledger for a billing month.
	ListMonth(ctx context.Context, year int, month time.Month) ([]Event, error)
}

type RecordRequest struct {
	Date            time.Time `json:"date"`
	Action          Action    `json:"action"`
	UserCountBefore int       `json:"user_count_before"`
	UserCountAfter  int       `json:"user_count_after"`
}

var (
	ErrInvalidTenant = errors.New("invalid_tenant")
	ErrInvalidAction = errors.New("invalid_action")
	ErrInvalidDate   = errors.New("invalid_date")
)
