package pricing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slaydrip/backend/internal/store"
)

func dec(t *testing.T, value string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(value)
	require.NoError(t, err)
	return d
}

func TestCalculate_HighBracketExample(t *testing.T) {
	got, err := Calculate([]Line{{UnitPrice: dec(t, "1000"), Quantity: 2}}, decimal.Zero, dec(t, "12"))
	require.NoError(t, err)

	rounded := got.Rounded()
	assert.Equal(t, "2000.00", rounded.SubtotalInclusive.StringFixed(2))
	assert.Equal(t, "1785.71", rounded.BasePriceTotal.StringFixed(2))
	assert.Equal(t, "0.00", rounded.DiscountAmount.StringFixed(2))
	assert.Equal(t, "1785.71", rounded.DiscountedBasePrice.StringFixed(2))
	assert.True(t, rounded.GSTPercent.Equal(HighBracketPercent))
	assert.Equal(t, "214.29", rounded.GSTAmount.StringFixed(2))
	assert.Equal(t, "2000.00", rounded.GrandTotal.StringFixed(2))
}

func TestCalculate_LowBracketExample(t *testing.T) {
	got, err := Calculate([]Line{{UnitPrice: dec(t, "500"), Quantity: 2}}, decimal.Zero, dec(t, "12"))
	require.NoError(t, err)

	rounded := got.Rounded()
	assert.Equal(t, "1000.00", rounded.SubtotalInclusive.StringFixed(2))
	assert.Equal(t, "892.86", rounded.BasePriceTotal.StringFixed(2))
	assert.Equal(t, "892.86", rounded.DiscountedBasePrice.StringFixed(2))
	assert.True(t, rounded.GSTPercent.Equal(LowBracketPercent))
	assert.Equal(t, "44.64", rounded.GSTAmount.StringFixed(2))
	assert.Equal(t, "937.50", rounded.GrandTotal.StringFixed(2))
}

func TestCalculate_BracketBoundary(t *testing.T) {
	// 1680 / 1.12 is exactly 1500.00.
	atThreshold, err := Calculate([]Line{{UnitPrice: dec(t, "1680"), Quantity: 1}}, decimal.Zero, dec(t, "12"))
	require.NoError(t, err)
	assert.True(t, atThreshold.DiscountedBasePrice.Equal(dec(t, "1500")))
	assert.True(t, atThreshold.GSTPercent.Equal(HighBracketPercent))

	// 1679.9888 / 1.12 is exactly 1499.99.
	below, err := Calculate([]Line{{UnitPrice: dec(t, "1679.9888"), Quantity: 1}}, decimal.Zero, dec(t, "12"))
	require.NoError(t, err)
	assert.True(t, below.DiscountedBasePrice.Equal(dec(t, "1499.99")))
	assert.True(t, below.GSTPercent.Equal(LowBracketPercent))
}

func TestCalculate_DiscountCanDropBracket(t *testing.T) {
	got, err := Calculate([]Line{{UnitPrice: dec(t, "1000"), Quantity: 2}}, dec(t, "20"), dec(t, "12"))
	require.NoError(t, err)

	rounded := got.Rounded()
	assert.Equal(t, "357.14", rounded.DiscountAmount.StringFixed(2))
	assert.Equal(t, "1428.57", rounded.DiscountedBasePrice.StringFixed(2))
	assert.True(t, rounded.GSTPercent.Equal(LowBracketPercent))
	assert.Equal(t, "71.43", rounded.GSTAmount.StringFixed(2))
	assert.Equal(t, "1500.00", rounded.GrandTotal.StringFixed(2))
}

func TestCalculate_Identities(t *testing.T) {
	carts := [][]Line{
		{{UnitPrice: dec(t, "499.50"), Quantity: 3}},
		{{UnitPrice: dec(t, "1299"), Quantity: 1}, {UnitPrice: dec(t, "799.99"), Quantity: 2}},
		{{UnitPrice: dec(t, "0.01"), Quantity: 7}},
		{},
	}
	discounts := []string{"0", "5", "12.5", "33.33", "100"}
	tolerance := dec(t, "0.01")

	for _, cart := range carts {
		for _, d := range discounts {
			got, err := Calculate(cart, dec(t, d), dec(t, "12"))
			require.NoError(t, err)

			assert.True(t, got.GrandTotal.Equal(got.DiscountedBasePrice.Add(got.GSTAmount)))
			assert.True(t, got.DiscountedBasePrice.Equal(got.BasePriceTotal.Sub(got.DiscountAmount)))

			rounded := got.Rounded()
			diff := rounded.GrandTotal.Sub(rounded.DiscountedBasePrice.Add(rounded.GSTAmount)).Abs()
			assert.True(t, diff.LessThanOrEqual(tolerance), "rounded totals drift by %s", diff)
		}
	}
}

func TestCalculate_Deterministic(t *testing.T) {
	cart := []Line{{UnitPrice: dec(t, "333.33"), Quantity: 3}}
	first, err := Calculate(cart, dec(t, "7"), dec(t, "12"))
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		again, err := Calculate(cart, dec(t, "7"), dec(t, "12"))
		require.NoError(t, err)
		assert.Equal(t, first.Rounded().GrandTotal.String(), again.Rounded().GrandTotal.String())
		assert.Equal(t, first.Rounded().GSTAmount.String(), again.Rounded().GSTAmount.String())
	}
}

func TestCalculate_RejectsNegativeInput(t *testing.T) {
	_, err := Calculate([]Line{{UnitPrice: dec(t, "10"), Quantity: 1}}, dec(t, "-1"), dec(t, "12"))
	require.True(t, errors.Is(err, store.ErrValidation))

	_, err = Calculate([]Line{{UnitPrice: dec(t, "-10"), Quantity: 1}}, decimal.Zero, dec(t, "12"))
	require.True(t, errors.Is(err, store.ErrValidation))

	_, err = Calculate(nil, decimal.Zero, dec(t, "-12"))
	require.True(t, errors.Is(err, store.ErrValidation))
}
