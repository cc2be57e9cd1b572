package domain

import (
	"time"

	pricingdomain "github.com/kintailabs/kintai/internal/pricing/domain"
	"github.com/kintailabs/kintai/internal/tax"
)

// DaysInMonth returns the calendar day count of the given month (28-31).
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// RemainingDays counts the billable days from date through month end.
// The day of change itself is billed, so it is inclusive.
func RemainingDays(date time.Time) int {
	return DaysInMonth(date.Year(), date.Month()) - date.Day() + 1
}

// CalculateDaily computes the day-weighted delta charge for a single
// user-count change. Pure: before/after counts are supplied by the
// caller, never read from current state, so every event is
// independently replayable.
//
// The pretax amount truncates toward zero, which keeps a removal credit
// the exact mirror of the equivalent addition charge. Tax at taxRateBps
// (basis points, from billing config) is then baked into the stored
// charge per event.
func CalculateDaily(date time.Time, action Action, userCountBefore, userCountAfter int, tiers []pricingdomain.PricingTier, taxRateBps int64) (Event, error) {
	if !action.Valid() {
		return Event{}, ErrInvalidAction
	}
	if userCountBefore < 0 || userCountAfter < 0 {
		return Event{}, pricingdomain.ErrNegativeUserCount
	}

	before, err := pricingdomain.CalculateMonthlyPrice(userCountBefore, tiers)
	if err != nil {
		return Event{}, err
	}
	after, err := pricingdomain.CalculateMonthlyPrice(userCountAfter, tiers)
	if err != nil {
		return Event{}, err
	}

	daysInMonth := DaysInMonth(date.Year(), date.Month())
	remainingDays := RemainingDays(date)

	delta := after.TotalPrice - before.TotalPrice
	pretax := delta * int64(remainingDays) / int64(daysInMonth)

	return Event{
		EventDate:          date.UTC().Truncate(24 * time.Hour),
		Action:             action,
		UserCountBefore:    userCountBefore,
		UserCountAfter:     userCountAfter,
		DaysInMonth:        daysInMonth,
		RemainingDays:      remainingDays,
		MonthlyPriceBefore: before.TotalPrice,
		MonthlyPriceAfter:  after.TotalPrice,
		DailyCharge:        tax.AddTaxAt(pretax, taxRateBps),
	}, nil
}
