package tax

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateTruncatesTowardZero(t *testing.T) {
	assert.Equal(t, int64(4120), Calculate(41200))
	assert.Equal(t, int64(0), Calculate(0))
	assert.Equal(t, int64(0), Calculate(9))
	assert.Equal(t, int64(1), Calculate(10))
	assert.Equal(t, int64(146), Calculate(1466))

	// Negative subtotals (credits) mirror positive charges exactly.
	assert.Equal(t, int64(-4120), Calculate(-41200))
	assert.Equal(t, int64(0), Calculate(-9))
	assert.Equal(t, int64(-146), Calculate(-1466))
}

func TestAddTax(t *testing.T) {
	assert.Equal(t, int64(45320), AddTax(41200))
	assert.Equal(t, int64(1612), AddTax(1466))
	assert.Equal(t, int64(-1612), AddTax(-1466))
}

func TestRemoveTaxInvertsAddTax(t *testing.T) {
	for _, pretax := range []int64{0, 1, 9, 10, 11, 999, 1466, 41200, 123456789, -1, -1466, -41200} {
		total := AddTax(pretax)
		got, err := RemoveTax(total)
		require.NoError(t, err, "pretax %d", pretax)
		assert.Equal(t, pretax, got, "pretax %d", pretax)
	}
}

func TestRemoveTaxRejectsNonInclusiveTotals(t *testing.T) {
	// AddTax(19)=20 and AddTax(20)=22, so 21 has no preimage.
	_, err := RemoveTax(21)
	assert.ErrorIs(t, err, ErrNotTaxInclusive)
}

func TestCalculateAtNonDefaultRate(t *testing.T) {
	// 8%.
	assert.Equal(t, int64(3296), CalculateAt(41200, 800))
	assert.Equal(t, int64(117), CalculateAt(1466, 800))
	assert.Equal(t, int64(-117), CalculateAt(-1466, 800))
	assert.Equal(t, int64(1583), AddTaxAt(1466, 800))
}

func TestRemoveTaxAtInvertsAddTaxAt(t *testing.T) {
	for _, rateBps := range []int64{500, 800, 1000, 2000} {
		for _, pretax := range []int64{0, 1, 9, 999, 1466, 41200, 123456789, -1466} {
			total := AddTaxAt(pretax, rateBps)
			got, err := RemoveTaxAt(total, rateBps)
			require.NoError(t, err, "pretax %d rate %d", pretax, rateBps)
			assert.Equal(t, pretax, got, "pretax %d rate %d", pretax, rateBps)
		}
	}
}
