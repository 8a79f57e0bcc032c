package costing

import (
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Rounded returns a copy with every monetary field rounded to two decimals.
// It is meant for display and must not be fed back into Calculate.
func (c CPPCalculation) Rounded() CPPCalculation {
	out := c
	for _, f := range []*float64{
		&out.MaterialCost, &out.ThreadCost, &out.TrimsCost, &out.AccessoriesCost, &out.PackagingCost, &out.TotalMaterialCost,
		&out.CuttingCost, &out.SewingCost, &out.FinishingCost, &out.PackingCost, &out.TotalLaborCost,
		&out.FactoryOverhead, &out.AdminOverhead, &out.QualityControlCost, &out.TotalOverheadCost,
		&out.TotalDirectCost, &out.TotalIndirectCost, &out.TotalManufacturingCost, &out.SellingPrice,
	} {
		*f = round2(*f)
	}
	if c.Export != nil {
		export := *c.Export
		for _, f := range []*float64{
			&export.ExportCharges, &export.ShippingCost, &export.InsuranceCost, &export.BankCharges,
			&export.TotalExportCost, &export.FinalFOBPrice,
		} {
			*f = round2(*f)
		}
		out.Export = &export
	}
	return out
}

// NewPrinter returns a printer for the given BCP 47 locale, falling back to English.
func NewPrinter(locale string) *message.Printer {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return message.NewPrinter(tag)
}

// FormatAmount renders v with two decimals and the locale's digit grouping.
func FormatAmount(p *message.Printer, v float64) string {
	if p == nil {
		p = message.NewPrinter(language.English)
	}
	return p.Sprintf("%.2f", round2(v))
}

// ExportRows formats the breakdown into CSV-ready rows.
func ExportRows(c CPPCalculation, p *message.Printer) [][]string {
	amount := func(v float64) string { return FormatAmount(p, v) }
	rows := [][]string{
		{"Section", "Line", "Amount"},
		{"Material", "Fabric", amount(c.MaterialCost)},
		{"Material", "Thread", amount(c.ThreadCost)},
		{"Material", "Trims", amount(c.TrimsCost)},
		{"Material", "Accessories", amount(c.AccessoriesCost)},
		{"Material", "Packaging", amount(c.PackagingCost)},
		{"Material", "Total material", amount(c.TotalMaterialCost)},
		{"Labor", "Cutting", amount(c.CuttingCost)},
		{"Labor", "Sewing", amount(c.SewingCost)},
		{"Labor", "Finishing", amount(c.FinishingCost)},
		{"Labor", "Packing", amount(c.PackingCost)},
		{"Labor", "Total labor", amount(c.TotalLaborCost)},
		{"Overhead", "Factory", amount(c.FactoryOverhead)},
		{"Overhead", "Admin", amount(c.AdminOverhead)},
		{"Overhead", "Quality control", amount(c.QualityControlCost)},
		{"Overhead", "Total overhead", amount(c.TotalOverheadCost)},
		{"Summary", "Total direct cost", amount(c.TotalDirectCost)},
		{"Summary", "Indirect cost", amount(c.TotalIndirectCost)},
		{"Summary", "Manufacturing cost", amount(c.TotalManufacturingCost)},
		{"Summary", "Profit", amount(c.MarginAmount())},
		{"Summary", "Selling price", amount(c.SellingPrice)},
	}
	if c.Export != nil {
		rows = append(rows,
			[]string{"Export", "Export charges", amount(c.Export.ExportCharges)},
			[]string{"Export", "Shipping", amount(c.Export.ShippingCost)},
			[]string{"Export", "Insurance", amount(c.Export.InsuranceCost)},
			[]string{"Export", "Bank charges", amount(c.Export.BankCharges)},
			[]string{"Export", "Total export cost", amount(c.Export.TotalExportCost)},
			[]string{"Export", "FOB price", amount(c.Export.FinalFOBPrice)},
		)
	}
	return rows
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
