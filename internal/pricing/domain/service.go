package domain

import (
	"context"
	"errors"
	"strings"
)

type Service interface {
	// ListTiers returns the tenant's schedule, falling back to the
	// portal default when the tenant has no override.
	ListTiers(ctx context.Context) ([]PricingTier, error)
	// ReplaceTiers validates and atomically replaces the tenant's
	// schedule. Invalid schedules are rejected before persisting.
	ReplaceTiers(ctx context.Context, req ReplaceTiersRequest) ([]PricingTier, error)
	// Preview prices a user count against the tenant's schedule.
	Preview(ctx context.Context, userCount int) (CalculationResult, error)
}

type ReplaceTiersRequest struct {
	Tiers []TierInput `json:"tiers"`
}

type TierInput struct {
	Name         string `json:"name"`
	MinUsers     int    `json:"min_users"`
	MaxUsers     *int   `json:"max_users"`
	PricePerUser int64  `json:"price_per_user"`
}

var (
	ErrInvalidTenant     = errors.New("invalid_tenant")
	ErrNegativeUserCount = errors.New("negative_user_count")
	ErrEmptyTierSet      = errors.New("empty_tier_set")
)

// ValidationError carries the human-readable violations of a rejected
// tier schedule.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "invalid tier set: " + strings.Join(e.Violations, "; ")
}
