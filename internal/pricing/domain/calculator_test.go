package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func defaultTestTiers() []PricingTier {
	return []PricingTier{
		{Name: "Starter", MinUsers: 1, MaxUsers: intPtr(10), PricePerUser: 1000, SortOrder: 0},
		{Name: "Team", MinUsers: 11, MaxUsers: intPtr(50), PricePerUser: 800, SortOrder: 1},
		{Name: "Enterprise", MinUsers: 51, MaxUsers: nil, PricePerUser: 600, SortOrder: 2},
	}
}

func TestCalculateMonthlyPrice49Users(t *testing.T) {
	result, err := CalculateMonthlyPrice(49, defaultTestTiers())
	require.NoError(t, err)

	// 10 @ 1000 + 39 @ 800 = 41,200
	assert.Equal(t, int64(41200), result.TotalPrice)
	assert.Equal(t, 49, result.UserCount)

	require.Len(t, result.Breakdown, 2)
	assert.Equal(t, "Starter", result.Breakdown[0].TierName)
	assert.Equal(t, 10, result.Breakdown[0].UsersInTier)
	assert.Equal(t, int64(10000), result.Breakdown[0].Subtotal)
	assert.Equal(t, "Team", result.Breakdown[1].TierName)
	assert.Equal(t, 39, result.Breakdown[1].UsersInTier)
	assert.Equal(t, int64(31200), result.Breakdown[1].Subtotal)
}

func TestCalculateMonthlyPriceBoundaries(t *testing.T) {
	tiers := defaultTestTiers()

	cases := []struct {
		userCount int
		want      int64
	}{
		{1, 1000},
		{10, 10000},
		{11, 10800},
		{50, 42000},
		{51, 42600},
		{100, 72000},
	}
	for _, tc := range cases {
		result, err := CalculateMonthlyPrice(tc.userCount, tiers)
		require.NoError(t, err)
		assert.Equal(t, tc.want, result.TotalPrice, "user count %d", tc.userCount)
	}
}

func TestCalculateMonthlyPriceInvariants(t *testing.T) {
	tiers := defaultTestTiers()

	for userCount := 0; userCount <= 200; userCount++ {
		result, err := CalculateMonthlyPrice(userCount, tiers)
		require.NoError(t, err)

		var subtotalSum int64
		var userSum int
		for _, b := range result.Breakdown {
			subtotalSum += b.Subtotal
			userSum += b.UsersInTier
		}
		assert.Equal(t, result.TotalPrice, subtotalSum, "user count %d", userCount)
		assert.Equal(t, userCount, userSum, "user count %d", userCount)
	}
}

func TestCalculateMonthlyPriceZeroUsers(t *testing.T) {
	result, err := CalculateMonthlyPrice(0, defaultTestTiers())
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.TotalPrice)
	assert.Empty(t, result.Breakdown)
}

func TestCalculateMonthlyPriceRejectsNegativeCount(t *testing.T) {
	_, err := CalculateMonthlyPrice(-1, defaultTestTiers())
	assert.ErrorIs(t, err, ErrNegativeUserCount)
}

func TestCalculateMonthlyPriceRejectsEmptyTierSet(t *testing.T) {
	_, err := CalculateMonthlyPrice(5, nil)
	assert.ErrorIs(t, err, ErrEmptyTierSet)
}

func TestValidateTiersAcceptsValidSchedule(t *testing.T) {
	assert.Empty(t, ValidateTiers(defaultTestTiers()))
}

func TestValidateTiersViolations(t *testing.T) {
	t.Run("first tier not starting at 1", func(t *testing.T) {
		tiers := defaultTestTiers()
		tiers[0].MinUsers = 2
		assert.NotEmpty(t, ValidateTiers(tiers))
	})

	t.Run("gap between tiers", func(t *testing.T) {
		tiers := defaultTestTiers()
		tiers[1].MinUsers = 12
		assert.NotEmpty(t, ValidateTiers(tiers))
	})

	t.Run("no unbounded last tier", func(t *testing.T) {
		tiers := defaultTestTiers()
		tiers[2].MaxUsers = intPtr(100)
		assert.NotEmpty(t, ValidateTiers(tiers))
	})

	t.Run("multiple unbounded tiers", func(t *testing.T) {
		tiers := defaultTestTiers()
		tiers[1].MaxUsers = nil
		assert.NotEmpty(t, ValidateTiers(tiers))
	})

	t.Run("negative price", func(t *testing.T) {
		tiers := defaultTestTiers()
		tiers[0].PricePerUser = -1
		assert.NotEmpty(t, ValidateTiers(tiers))
	})

	t.Run("empty set", func(t *testing.T) {
		assert.NotEmpty(t, ValidateTiers(nil))
	})
}

func TestCalculateMonthlyPriceSortsBySortOrder(t *testing.T) {
	tiers := defaultTestTiers()
	// Deliberately shuffle: calculation must honor SortOrder, not slice order.
	shuffled := []PricingTier{tiers[2], tiers[0], tiers[1]}

	result, err := CalculateMonthlyPrice(49, shuffled)
	require.NoError(t, err)
	assert.Equal(t, int64(41200), result.TotalPrice)
}
