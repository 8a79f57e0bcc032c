package costing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundedLeavesSourceUntouched(t *testing.T) {
	in := poloInput()
	in.Export = &ExportParams{ExportCharges: 2.505, ShippingCost: 3.25, InsuranceCost: 0.75, BankCharges: 1.50}
	calc, err := Calculate(in)
	require.NoError(t, err)

	rounded := calc.Rounded()
	assert.Equal(t, 102.38, rounded.SellingPrice)
	assert.Equal(t, 6.07, rounded.TotalIndirectCost)
	assert.InDelta(t, 102.37725, calc.SellingPrice, tolerance)

	require.NotNil(t, rounded.Export)
	assert.NotSame(t, calc.Export, rounded.Export)
	assert.InDelta(t, 2.505, calc.Export.ExportCharges, tolerance)
}

func TestExportRows(t *testing.T) {
	calc, err := Calculate(poloInput())
	require.NoError(t, err)

	rows := ExportRows(calc, NewPrinter("en"))
	require.Len(t, rows, 21)
	assert.Equal(t, []string{"Section", "Line", "Amount"}, rows[0])
	assert.Equal(t, []string{"Summary", "Selling price", "102.38"}, rows[len(rows)-1])

	in := poloInput()
	in.Export = &ExportParams{ExportCharges: 2.50, ShippingCost: 3.25, InsuranceCost: 0.75, BankCharges: 1.50}
	calc, err = Calculate(in)
	require.NoError(t, err)
	rows = ExportRows(calc, nil)
	require.Len(t, rows, 27)
	assert.Equal(t, "FOB price", rows[len(rows)-1][1])
	assert.Equal(t, "110.38", rows[len(rows)-1][2])
}

func TestNewPrinterFallsBackOnBadLocale(t *testing.T) {
	p := NewPrinter("not a locale!!")
	assert.Equal(t, "12.50", FormatAmount(p, 12.5))
}
