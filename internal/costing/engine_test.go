package costing

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tolerance = 1e-9

func poloInput() Input {
	return Input{
		Items: []BOMItem{
			{ID: "1", Category: CategoryFabric, ItemID: "FAB001", ItemName: "Pique Cotton Fabric", Consumption: 0.75, Unit: UnitMeter, WastagePercentage: 8, UnitCost: 45.50, Critical: true, LeadTimeDays: 15},
			{ID: "2", Category: CategoryThread, ItemID: "THR001", ItemName: "Cotton Thread 40s", Consumption: 0.66, Unit: UnitPiece, UnitCost: 1},
			{ID: "3", Category: CategoryTrim, ItemID: "BTN001", ItemName: "Polyester Button", Consumption: 2.60, Unit: UnitPiece, UnitCost: 1},
			{ID: "4", Category: CategoryAccessory, ItemID: "LBL001", ItemName: "Care Label", Consumption: 0.47, Unit: UnitPiece, UnitCost: 1},
			{ID: "5", Category: CategoryPackaging, ItemID: "PKG001", ItemName: "Polybag", Consumption: 2.50, Unit: UnitPiece, UnitCost: 1},
		},
		Parameters: Parameters{
			Labor:                  LaborRates{Cutting: 4.50, Sewing: 12.00, Finishing: 2.00, Packing: 1.50},
			Overhead:               OverheadRates{Factory: 8.50, Admin: 3.00, QualityControl: 1.25},
			IndirectCostPercentage: 8,
			ProfitMargin:           25,
		},
	}
}

func TestCalculatePoloShirtScenario(t *testing.T) {
	calc, err := Calculate(poloInput())
	require.NoError(t, err)

	assert.InDelta(t, 36.855, calc.MaterialCost, tolerance)
	assert.InDelta(t, 0.66, calc.ThreadCost, tolerance)
	assert.InDelta(t, 2.60, calc.TrimsCost, tolerance)
	assert.InDelta(t, 0.47, calc.AccessoriesCost, tolerance)
	assert.InDelta(t, 2.50, calc.PackagingCost, tolerance)
	assert.InDelta(t, 43.085, calc.TotalMaterialCost, tolerance)
	assert.InDelta(t, 20.00, calc.TotalLaborCost, tolerance)
	assert.InDelta(t, 12.75, calc.TotalOverheadCost, tolerance)
	assert.InDelta(t, 75.835, calc.TotalDirectCost, tolerance)
	assert.InDelta(t, 6.0668, calc.TotalIndirectCost, tolerance)
	assert.InDelta(t, 81.9018, calc.TotalManufacturingCost, tolerance)
	assert.InDelta(t, 102.37725, calc.SellingPrice, tolerance)
	assert.Nil(t, calc.Export)
}

func TestPricedAppliesWastage(t *testing.T) {
	item := BOMItem{Category: CategoryFabric, Consumption: 0.75, WastagePercentage: 8, UnitCost: 45.50}.Priced()
	assert.InDelta(t, 0.81, item.TotalConsumption, tolerance)
	assert.InDelta(t, 36.855, item.TotalCost, tolerance)
}

func TestCalculateRollupInvariants(t *testing.T) {
	in := poloInput()
	in.Items = append(in.Items,
		BOMItem{Category: CategoryFabric, Consumption: 0.2, WastagePercentage: 12.5, UnitCost: 80},
		BOMItem{Category: CategoryTrim, Consumption: 1, WastagePercentage: 3, UnitCost: 4.2},
	)
	calc, err := Calculate(in)
	require.NoError(t, err)

	var itemSum float64
	for _, item := range in.Items {
		itemSum += item.Priced().TotalCost
	}
	categorySum := calc.MaterialCost + calc.ThreadCost + calc.TrimsCost + calc.AccessoriesCost + calc.PackagingCost
	assert.Equal(t, categorySum, calc.TotalMaterialCost)
	assert.InDelta(t, itemSum, calc.TotalMaterialCost, tolerance)
	assert.Equal(t, calc.TotalMaterialCost+calc.TotalLaborCost+calc.TotalOverheadCost, calc.TotalDirectCost)
	assert.InDelta(t, calc.TotalManufacturingCost*(1+float64(in.ProfitMargin)/100), calc.SellingPrice, tolerance)
	assert.InDelta(t, calc.TotalManufacturingCost*0.25, calc.MarginAmount(), tolerance)
}

func TestCalculateEmptyItems(t *testing.T) {
	in := poloInput()
	in.Items = nil
	calc, err := Calculate(in)
	require.NoError(t, err)
	assert.Zero(t, calc.MaterialCost)
	assert.Zero(t, calc.ThreadCost)
	assert.Zero(t, calc.TrimsCost)
	assert.Zero(t, calc.AccessoriesCost)
	assert.Zero(t, calc.PackagingCost)
	assert.Zero(t, calc.TotalMaterialCost)
	assert.InDelta(t, 32.75, calc.TotalDirectCost, tolerance)
}

func TestCalculateExportBlock(t *testing.T) {
	without, err := Calculate(poloInput())
	require.NoError(t, err)

	in := poloInput()
	in.Export = &ExportParams{ExportCharges: 2.50, ShippingCost: 3.25, InsuranceCost: 0.75, BankCharges: 1.50}
	with, err := Calculate(in)
	require.NoError(t, err)

	require.NotNil(t, with.Export)
	assert.InDelta(t, 8.00, with.Export.TotalExportCost, tolerance)
	assert.InDelta(t, with.SellingPrice+8.00, with.Export.FinalFOBPrice, tolerance)
	assert.Equal(t, without.SellingPrice, with.SellingPrice)
	assert.Equal(t, with.Export.FinalFOBPrice, with.FinalPrice())
	assert.Nil(t, without.Export)
	assert.Equal(t, without.SellingPrice, without.FinalPrice())
}

func TestCalculateRejectsNegativeUnitCost(t *testing.T) {
	in := poloInput()
	in.Items[2].UnitCost = -1

	calc, err := Calculate(in)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))
	assert.Equal(t, CPPCalculation{}, calc)

	fields := FieldErrors(err)
	require.Len(t, fields, 1)
	assert.Equal(t, "items[2].unit_cost", fields[0].Field)
}

func TestCalculateRejectsOverflowingTotals(t *testing.T) {
	in := Input{Items: []BOMItem{{Category: CategoryFabric, Consumption: 1e200, UnitCost: 1e200}}}
	calc, err := Calculate(in)
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, CPPCalculation{}, calc)
	fields := FieldErrors(err)
	require.Len(t, fields, 1)
	assert.Equal(t, "total_material_cost", fields[0].Field)

	in = poloInput()
	in.Labor.Cutting = math.MaxFloat64
	in.Labor.Sewing = math.MaxFloat64
	_, err = Calculate(in)
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, "total_labor_cost", FieldErrors(err)[0].Field)

	in = poloInput()
	in.Export = &ExportParams{ShippingCost: math.MaxFloat64, BankCharges: math.MaxFloat64}
	_, err = Calculate(in)
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, "export.total_export_cost", FieldErrors(err)[0].Field)
}

func TestCalculateRejectsInvalidInputs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Input)
		field  string
	}{
		{"unknown category", func(in *Input) { in.Items[0].Category = "zipper" }, "items[0].category"},
		{"negative consumption", func(in *Input) { in.Items[1].Consumption = -0.1 }, "items[1].consumption"},
		{"negative wastage", func(in *Input) { in.Items[0].WastagePercentage = -5 }, "items[0].wastage_percentage"},
		{"unknown unit", func(in *Input) { in.Items[0].Unit = "bale" }, "items[0].unit"},
		{"negative labor", func(in *Input) { in.Labor.Sewing = -12 }, "labor.sewing"},
		{"negative overhead", func(in *Input) { in.Overhead.Admin = -3 }, "overhead.admin"},
		{"negative indirect", func(in *Input) { in.IndirectCostPercentage = -8 }, "indirect_cost_percentage"},
		{"nan margin", func(in *Input) { in.ProfitMargin = Percentage(math.NaN()) }, "profit_margin"},
		{"negative export", func(in *Input) { in.Export = &ExportParams{ShippingCost: -1} }, "export.shipping_cost"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := poloInput()
			tc.mutate(&in)
			_, err := Calculate(in)
			require.ErrorIs(t, err, ErrInvalidInput)
			fields := FieldErrors(err)
			require.NotEmpty(t, fields)
			assert.Equal(t, tc.field, fields[0].Field)
		})
	}
}

func TestCalculateReportsEveryFailure(t *testing.T) {
	in := poloInput()
	in.Items[0].UnitCost = -1
	in.Labor.Cutting = -1
	in.ProfitMargin = -1
	_, err := Calculate(in)
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Len(t, FieldErrors(err), 3)
}

func TestCalculateAllowsPercentagesAbove100(t *testing.T) {
	in := poloInput()
	in.ProfitMargin = 150
	in.IndirectCostPercentage = 120
	calc, err := Calculate(in)
	require.NoError(t, err)
	assert.InDelta(t, calc.TotalDirectCost*2.2, calc.TotalManufacturingCost, tolerance)
	assert.InDelta(t, calc.TotalManufacturingCost*2.5, calc.SellingPrice, tolerance)
}

func TestCalculateIsIdempotentAndConcurrent(t *testing.T) {
	in := poloInput()
	in.Export = &ExportParams{ExportCharges: 1, ShippingCost: 2, InsuranceCost: 0.5, BankCharges: 0.25}
	first, err := Calculate(in)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]CPPCalculation, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = Calculate(in)
		}(i)
	}
	wg.Wait()
	for _, r := range results {
		assert.Equal(t, first, r)
	}
	assert.Equal(t, 45.50, in.Items[0].UnitCost)
	assert.Zero(t, in.Items[0].TotalCost, "input items must not be mutated")
}

func TestEveryCategoryHasItsOwnBucket(t *testing.T) {
	seen := map[*float64]Category{}
	var calc CPPCalculation
	for _, c := range Categories() {
		bucket, err := materialBucket(&calc, c)
		require.NoError(t, err, c)
		prev, dup := seen[bucket]
		assert.False(t, dup, "%s shares a bucket with %s", c, prev)
		seen[bucket] = c
	}
	_, err := materialBucket(&calc, Category("lining"))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory(" Fabric ")
	require.NoError(t, err)
	assert.Equal(t, CategoryFabric, c)

	_, err = ParseCategory("finished-goods")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestParseUnit(t *testing.T) {
	u, err := ParseUnit(" KG")
	require.NoError(t, err)
	assert.Equal(t, UnitKg, u)

	u, err = ParseUnit("")
	require.NoError(t, err)
	assert.Empty(t, u)

	_, err = ParseUnit("bale")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, "unit", FieldErrors(err)[0].Field)
}

func TestPercentageAsFraction(t *testing.T) {
	assert.Equal(t, 0.25, Percentage(25).AsFraction())
	assert.Equal(t, 1.5, Percentage(150).AsFraction())
	assert.NoError(t, Percentage(0).Validate("p"))
	assert.Error(t, Percentage(math.Inf(1)).Validate("p"))
}
