package domain

import (
	pricingdomain "github.com/kintailabs/kintai/internal/pricing/domain"
	"github.com/kintailabs/kintai/internal/tax"
)

// CalculateMonthly combines one base-tier charge with the month's
// proration deltas. Pure. baseUserCount is the count in force at month
// start; dailyCharges are the tax-inclusive signed amounts of the
// recorded events, in any order. Tax on the base fee uses taxRateBps
// (basis points, from billing config).
func CalculateMonthly(dailyCharges []int64, baseUserCount int, tiers []pricingdomain.PricingTier, taxRateBps int64) (Summary, error) {
	base, err := pricingdomain.CalculateMonthlyPrice(baseUserCount, tiers)
	if err != nil {
		return Summary{}, err
	}

	var prorationTotal int64
	for _, charge := range dailyCharges {
		prorationTotal += charge
	}

	baseFee := base.TotalPrice
	baseFeeTax := tax.CalculateAt(baseFee, taxRateBps)

	return Summary{
		BaseFee:        baseFee,
		BaseFeeTax:     baseFeeTax,
		ProrationTotal: prorationTotal,
		Subtotal:       baseFee,
		Tax:            baseFeeTax,
		Total:          baseFee + baseFeeTax + prorationTotal,
	}, nil
}
