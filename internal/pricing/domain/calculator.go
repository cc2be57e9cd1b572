package domain

import (
	"fmt"
	"sort"
)

// CalculateMonthlyPrice walks the schedule in order and accumulates each
// tier's share of userCount. Pure: no ambient tier state, callers always
// pass the schedule explicitly.
//
// userCount == 0 yields a zero result with an empty breakdown. Negative
// counts are a caller error and are rejected, not clamped.
func CalculateMonthlyPrice(userCount int, tiers []PricingTier) (CalculationResult, error) {
	if userCount < 0 {
		return CalculationResult{}, ErrNegativeUserCount
	}
	if len(tiers) == 0 {
		return CalculationResult{}, ErrEmptyTierSet
	}

	result := CalculationResult{UserCount: userCount}
	if userCount == 0 {
		return result, nil
	}

	ordered := sortedTiers(tiers)
	remaining := userCount
	for _, tier := range ordered {
		if remaining <= 0 {
			break
		}

		usersInTier := remaining
		if tier.MaxUsers != nil {
			capacity := *tier.MaxUsers - tier.MinUsers + 1
			if capacity < usersInTier {
				usersInTier = capacity
			}
		}

		subtotal := int64(usersInTier) * tier.PricePerUser
		result.Breakdown = append(result.Breakdown, TierBreakdown{
			TierName:     tier.Name,
			MinUsers:     tier.MinUsers,
			MaxUsers:     tier.MaxUsers,
			PricePerUser: tier.PricePerUser,
			UsersInTier:  usersInTier,
			Subtotal:     subtotal,
		})
		result.TotalPrice += subtotal
		remaining -= usersInTier
	}

	return result, nil
}

// ValidateTiers checks a schedule's structural invariants and returns
// human-readable violations. It is an explicit operation: calculation
// never validates implicitly, so callers must validate tenant-supplied
// schedules before persisting them.
func ValidateTiers(tiers []PricingTier) []string {
	if len(tiers) == 0 {
		return []string{"tier set is empty"}
	}

	ordered := sortedTiers(tiers)
	var violations []string

	if ordered[0].MinUsers != 1 {
		violations = append(violations, fmt.Sprintf("first tier must start at 1 user, got %d", ordered[0].MinUsers))
	}

	unbounded := 0
	for i, tier := range ordered {
		if tier.PricePerUser < 0 {
			violations = append(violations, fmt.Sprintf("tier %q has a negative price per user", tier.Name))
		}
		if tier.MaxUsers == nil {
			unbounded++
			if i != len(ordered)-1 {
				violations = append(violations, fmt.Sprintf("tier %q is unbounded but not last", tier.Name))
			}
			continue
		}
		if *tier.MaxUsers < tier.MinUsers {
			violations = append(violations, fmt.Sprintf("tier %q has max_users below min_users", tier.Name))
		}
		if i < len(ordered)-1 {
			next := ordered[i+1]
			if next.MinUsers != *tier.MaxUsers+1 {
				violations = append(violations, fmt.Sprintf(
					"gap between tier %q (ends at %d) and tier %q (starts at %d)",
					tier.Name, *tier.MaxUsers, next.Name, next.MinUsers,
				))
			}
		}
	}

	switch unbounded {
	case 0:
		violations = append(violations, "tier set has no unbounded last tier")
	case 1:
		// Exactly one unbounded tier, as required.
	default:
		violations = append(violations, fmt.Sprintf("tier set has %d unbounded tiers, expected exactly one", unbounded))
	}

	return violations
}

func sortedTiers(tiers []PricingTier) []PricingTier {
	ordered := make([]PricingTier, len(tiers))
	copy(ordered, tiers)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].SortOrder < ordered[j].SortOrder })
	return ordered
}
