package costing

import (
	"errors"
	"fmt"
	"math"
)

// Calculate builds the CPP roll-up for the supplied items and parameters.
// All arithmetic runs at full float64 precision; see Rounded for presentation.
// On invalid input the zero CPPCalculation is returned together with every
// field failure joined into one error that matches ErrInvalidInput.
func Calculate(in Input) (CPPCalculation, error) {
	priced, err := PriceItems(in.Items)
	paramErr := validateParameters(in.Parameters)
	if err != nil || paramErr != nil {
		return CPPCalculation{}, errors.Join(err, paramErr)
	}

	var calc CPPCalculation
	for _, item := range priced {
		bucket, err := materialBucket(&calc, item.Category)
		if err != nil {
			return CPPCalculation{}, err
		}
		*bucket += item.TotalCost
	}
	calc.TotalMaterialCost = calc.MaterialCost + calc.ThreadCost + calc.TrimsCost + calc.AccessoriesCost + calc.PackagingCost

	labor := in.Labor
	calc.CuttingCost = labor.Cutting
	calc.SewingCost = labor.Sewing
	calc.FinishingCost = labor.Finishing
	calc.PackingCost = labor.Packing
	calc.TotalLaborCost = labor.Total()

	overhead := in.Overhead
	calc.FactoryOverhead = overhead.Factory
	calc.AdminOverhead = overhead.Admin
	calc.QualityControlCost = overhead.QualityControl
	calc.TotalOverheadCost = overhead.Total()

	calc.TotalDirectCost = calc.TotalMaterialCost + calc.TotalLaborCost + calc.TotalOverheadCost
	calc.IndirectCostPercentage = in.IndirectCostPercentage
	calc.TotalIndirectCost = calc.TotalDirectCost * in.IndirectCostPercentage.AsFraction()
	calc.TotalManufacturingCost = calc.TotalDirectCost + calc.TotalIndirectCost
	calc.ProfitMargin = in.ProfitMargin
	calc.SellingPrice = calc.TotalManufacturingCost * (1 + in.ProfitMargin.AsFraction())

	if in.Export != nil {
		export := *in.Export
		total := export.Total()
		calc.Export = &ExportCost{
			ExportCharges:   export.ExportCharges,
			ShippingCost:    export.ShippingCost,
			InsuranceCost:   export.InsuranceCost,
			BankCharges:     export.BankCharges,
			TotalExportCost: total,
			FinalFOBPrice:   calc.SellingPrice + total,
		}
	}
	if err := checkTotals(calc); err != nil {
		return CPPCalculation{}, err
	}
	return calc, nil
}

// checkTotals rejects roll-ups whose finite inputs overflowed float64.
func checkTotals(calc CPPCalculation) error {
	totals := []struct {
		field string
		value float64
	}{
		{"total_material_cost", calc.TotalMaterialCost},
		{"total_labor_cost", calc.TotalLaborCost},
		{"total_overhead_cost", calc.TotalOverheadCost},
		{"total_direct_cost", calc.TotalDirectCost},
		{"total_indirect_cost", calc.TotalIndirectCost},
		{"total_manufacturing_cost", calc.TotalManufacturingCost},
		{"selling_price", calc.SellingPrice},
	}
	if calc.Export != nil {
		totals = append(totals, []struct {
			field string
			value float64
		}{
			{"export.total_export_cost", calc.Export.TotalExportCost},
			{"export.final_fob_price", calc.Export.FinalFOBPrice},
		}...)
	}
	for _, t := range totals {
		if math.IsInf(t.value, 0) || math.IsNaN(t.value) {
			return &InputError{Field: t.field, Reason: "overflows the float64 range"}
		}
	}
	return nil
}

// PriceItems validates items and returns copies with derived totals filled in.
// The input slice is not modified.
func PriceItems(items []BOMItem) ([]BOMItem, error) {
	var errs []error
	priced := make([]BOMItem, 0, len(items))
	for i, item := range items {
		prefix := fmt.Sprintf("items[%d].", i)
		itemErrs := validateItem(prefix, item)
		if len(itemErrs) > 0 {
			errs = append(errs, itemErrs...)
			continue
		}
		p := item.Priced()
		if p.TotalConsumption < 0 {
			errs = append(errs, &InputError{Field: prefix + "total_consumption", Reason: "must not be negative"})
			continue
		}
		priced = append(priced, p)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return priced, nil
}

// materialBucket maps a category onto its CPP field. The default branch keeps
// a category added to the enum from silently costing nothing.
func materialBucket(calc *CPPCalculation, c Category) (*float64, error) {
	switch c {
	case CategoryFabric:
		return &calc.MaterialCost, nil
	case CategoryThread:
		return &calc.ThreadCost, nil
	case CategoryTrim:
		return &calc.TrimsCost, nil
	case CategoryAccessory:
		return &calc.AccessoriesCost, nil
	case CategoryPackaging:
		return &calc.PackagingCost, nil
	default:
		return nil, &InputError{Field: "category", Reason: fmt.Sprintf("no cost bucket for %q", c)}
	}
}

func validateItem(prefix string, item BOMItem) []error {
	var errs []error
	if !item.Category.Valid() {
		errs = append(errs, &InputError{Field: prefix + "category", Reason: fmt.Sprintf("unknown category %q", item.Category)})
	}
	if !item.Unit.Valid() {
		errs = append(errs, &InputError{Field: prefix + "unit", Reason: fmt.Sprintf("unknown unit %q", item.Unit)})
	}
	if err := checkAmount(prefix+"consumption", item.Consumption); err != nil {
		errs = append(errs, err)
	}
	if err := item.WastagePercentage.Validate(prefix + "wastage_percentage"); err != nil {
		errs = append(errs, err)
	}
	if err := checkAmount(prefix+"unit_cost", item.UnitCost); err != nil {
		errs = append(errs, err)
	}
	if item.LeadTimeDays < 0 {
		errs = append(errs, &InputError{Field: prefix + "lead_time_days", Reason: "must not be negative"})
	}
	return errs
}

func validateParameters(p Parameters) error {
	checks := []struct {
		field string
		value float64
	}{
		{"labor.cutting", p.Labor.Cutting},
		{"labor.sewing", p.Labor.Sewing},
		{"labor.finishing", p.Labor.Finishing},
		{"labor.packing", p.Labor.Packing},
		{"overhead.factory", p.Overhead.Factory},
		{"overhead.admin", p.Overhead.Admin},
		{"overhead.quality_control", p.Overhead.QualityControl},
	}
	if p.Export != nil {
		checks = append(checks, []struct {
			field string
			value float64
		}{
			{"export.export_charges", p.Export.ExportCharges},
			{"export.shipping_cost", p.Export.ShippingCost},
			{"export.insurance_cost", p.Export.InsuranceCost},
			{"export.bank_charges", p.Export.BankCharges},
		}...)
	}
	var errs []error
	for _, c := range checks {
		if err := checkAmount(c.field, c.value); err != nil {
			errs = append(errs, err)
		}
	}
	if err := p.IndirectCostPercentage.Validate("indirect_cost_percentage"); err != nil {
		errs = append(errs, err)
	}
	if err := p.ProfitMargin.Validate("profit_margin"); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
