// Package tax implements consumption tax math for the billing engine.
//
// All amounts are integer minor-unit currency (whole yen). Rounding
// truncates toward zero, which makes charges and credits symmetric:
// the tax on a -4,000 credit is exactly the negation of the tax on a
// +4,000 charge. Every downstream total must use these helpers; mixing
// in another rounding rule breaks invoice reconciliation.
package tax

import "errors"

// RateBps is the default tax rate in basis points. 1000 = 10%. The
// billing config may override it; services thread the configured rate
// through the At variants.
const RateBps int64 = 1000

// ErrNotTaxInclusive is returned by RemoveTax when the given amount is
// not in AddTax's image, i.e. it was not produced by AddTax.
var ErrNotTaxInclusive = errors.New("amount_not_tax_inclusive")

// CalculateAt returns the tax portion for a tax-exclusive subtotal at
// the given rate in basis points, truncated toward zero.
func CalculateAt(subtotal, rateBps int64) int64 {
	return subtotal * rateBps / 10000
}

// Calculate returns the tax portion at the default rate.
func Calculate(subtotal int64) int64 {
	return CalculateAt(subtotal, RateBps)
}

// AddTaxAt returns subtotal plus its tax at the given rate.
func AddTaxAt(subtotal, rateBps int64) int64 {
	return subtotal + CalculateAt(subtotal, rateBps)
}

// AddTax returns subtotal plus its tax at the default rate.
func AddTax(subtotal int64) int64 {
	return AddTaxAt(subtotal, RateBps)
}

// RemoveTaxAt recovers the tax-exclusive amount from a tax-inclusive
// one. It is the exact integer inverse of AddTaxAt: for any x,
// RemoveTaxAt(AddTaxAt(x, r), r) == x. Truncation makes AddTaxAt skip
// values, so a candidate estimate is corrected by a bounded search;
// amounts that no pretax value maps to are rejected.
func RemoveTaxAt(total, rateBps int64) (int64, error) {
	candidate := total * 10000 / (10000 + rateBps)
	for delta := int64(-2); delta <= 2; delta++ {
		pretax := candidate + delta
		if AddTaxAt(pretax, rateBps) == total {
			return pretax, nil
		}
	}
	return 0, ErrNotTaxInclusive
}

// RemoveTax is RemoveTaxAt at the default rate.
func RemoveTax(total int64) (int64, error) {
	return RemoveTaxAt(total, RateBps)
}
