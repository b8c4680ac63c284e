package tax

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rate(v string) *decimal.Decimal {
	r := decimal.RequireFromString(v)
	return &r
}

func TestComputeBreakdown(t *testing.T) {
	lines := []Line{
		{Quantity: 2, UnitPrice: decimal.RequireFromString("11.00"), TaxRate: rate("0.10"), TaxName: "IVA"},
		{Quantity: 1, UnitPrice: decimal.RequireFromString("12.10"), TaxRate: rate("0.21"), TaxName: "IVA"},
		{Quantity: 1, UnitPrice: decimal.RequireFromString("3.30"), TaxRate: rate("0.10"), TaxName: "IVA"},
		{Quantity: 1, UnitPrice: decimal.RequireFromString("5.00")},
	}

	got := ComputeBreakdown(lines)
	require.Len(t, got, 2)

	// First-seen order.
	assert.Equal(t, "IVA", got[0].TaxName)
	assert.True(t, decimal.RequireFromString("0.10").Equal(got[0].TaxRate))
	assert.True(t, decimal.RequireFromString("23.00").Equal(got[0].Subtotal))
	assert.True(t, decimal.RequireFromString("2.30").Equal(got[0].TaxAmount))
	assert.True(t, decimal.RequireFromString("25.30").Equal(got[0].Total()))

	assert.True(t, decimal.RequireFromString("0.21").Equal(got[1].TaxRate))
	assert.True(t, decimal.RequireFromString("10.00").Equal(got[1].Subtotal))
	assert.True(t, decimal.RequireFromString("2.10").Equal(got[1].TaxAmount))
}

func TestComputeBreakdown_SameRateDifferentName(t *testing.T) {
	got := ComputeBreakdown([]Line{
		{Quantity: 1, UnitPrice: decimal.RequireFromString("1.10"), TaxRate: rate("0.10"), TaxName: "IVA"},
		{Quantity: 1, UnitPrice: decimal.RequireFromString("1.10"), TaxRate: rate("0.10"), TaxName: "IGIC"},
		{Quantity: 1, UnitPrice: decimal.RequireFromString("1.10"), TaxRate: rate("0.100"), TaxName: "IVA"},
	})
	require.Len(t, got, 2)
	assert.Equal(t, "IVA", got[0].TaxName)
	assert.True(t, decimal.RequireFromString("2.00").Equal(got[0].Subtotal))
	assert.Equal(t, "IGIC", got[1].TaxName)
}

func TestComputeBreakdown_Rounding(t *testing.T) {
	// 3 x 0.99 at 21%: base 2.4545..., gross 2.97.
	got := ComputeBreakdown([]Line{
		{Quantity: 3, UnitPrice: decimal.RequireFromString("0.99"), TaxRate: rate("0.21"), TaxName: "IVA"},
	})
	require.Len(t, got, 1)
	assert.True(t, decimal.RequireFromString("2.45").Equal(got[0].Subtotal))
	assert.True(t, decimal.RequireFromString("0.52").Equal(got[0].TaxAmount))
	assert.True(t, decimal.RequireFromString("2.97").Equal(got[0].Total()))
}

func TestComputeBreakdown_NoRates(t *testing.T) {
	got := ComputeBreakdown([]Line{
		{Quantity: 1, UnitPrice: decimal.RequireFromString("5.00")},
	})
	assert.Empty(t, got)
	assert.Empty(t, ComputeBreakdown(nil))
}
