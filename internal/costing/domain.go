// Package costing computes cost-per-piece (CPP) roll-ups for garment bills of materials.
package costing

import (
	"fmt"
	"math"
	"strings"
)

// Percentage is a raw percent value where 25 means 25%.
type Percentage float64

// AsFraction converts the percentage into a multiplier fraction (25 -> 0.25).
func (p Percentage) AsFraction() float64 {
	return float64(p) / 100
}

// Validate rejects negative and non-finite percentages. Values above 100 are allowed.
func (p Percentage) Validate(field string) error {
	return checkAmount(field, float64(p))
}

// Category enumerates the material buckets a BOM line can belong to.
type Category string

const (
	// CategoryFabric covers shell and lining fabrics.
	CategoryFabric Category = "fabric"
	// CategoryThread covers sewing threads.
	CategoryThread Category = "thread"
	// CategoryTrim covers buttons, zippers, tapes and similar.
	CategoryTrim Category = "trim"
	// CategoryAccessory covers labels, tags and hangers.
	CategoryAccessory Category = "accessory"
	// CategoryPackaging covers polybags, cartons and tissue.
	CategoryPackaging Category = "packaging"
)

// Categories returns every supported category in canonical order.
func Categories() []Category {
	return []Category{CategoryFabric, CategoryThread, CategoryTrim, CategoryAccessory, CategoryPackaging}
}

// Valid reports whether c is a member of the closed category set.
func (c Category) Valid() bool {
	switch c {
	case CategoryFabric, CategoryThread, CategoryTrim, CategoryAccessory, CategoryPackaging:
		return true
	default:
		return false
	}
}

// ParseCategory normalises and validates a category name.
func ParseCategory(raw string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(raw)))
	if !c.Valid() {
		return "", &InputError{Field: "category", Reason: fmt.Sprintf("unknown category %q", raw)}
	}
	return c, nil
}

// Unit is the consumption unit of a BOM line.
type Unit string

const (
	UnitMeter Unit = "meter"
	UnitPiece Unit = "piece"
	UnitGram  Unit = "gram"
	UnitKg    Unit = "kg"
	UnitYard  Unit = "yard"
)

// Valid reports whether u is empty or a known unit.
func (u Unit) Valid() bool {
	switch u {
	case "", UnitMeter, UnitPiece, UnitGram, UnitKg, UnitYard:
		return true
	default:
		return false
	}
}

// ParseUnit normalises and validates a unit name. Empty stays empty.
func ParseUnit(raw string) (Unit, error) {
	u := Unit(strings.ToLower(strings.TrimSpace(raw)))
	if !u.Valid() {
		return "", &InputError{Field: "unit", Reason: fmt.Sprintf("unknown unit %q", raw)}
	}
	return u, nil
}

// BOMItem is one material line of a bill of materials.
type BOMItem struct {
	ID                string     `json:"id"`
	Category          Category   `json:"category"`
	ItemID            string     `json:"item_id"`
	ItemName          string     `json:"item_name"`
	Specification     string     `json:"specification,omitempty"`
	Consumption       float64    `json:"consumption"`
	Unit              Unit       `json:"unit,omitempty"`
	WastagePercentage Percentage `json:"wastage_percentage"`
	TotalConsumption  float64    `json:"total_consumption"`
	UnitCost          float64    `json:"unit_cost"`
	TotalCost         float64    `json:"total_cost"`
	Supplier          string     `json:"supplier,omitempty"`
	LeadTimeDays      int        `json:"lead_time_days"`
	Critical          bool       `json:"critical"`
}

// Priced returns a copy of the item with TotalConsumption and TotalCost derived
// from consumption, wastage and unit cost. Wastage inflates material consumption only.
func (i BOMItem) Priced() BOMItem {
	i.TotalConsumption = i.Consumption * (1 + i.WastagePercentage.AsFraction())
	i.TotalCost = i.TotalConsumption * i.UnitCost
	return i
}

// LaborRates are per-piece labor charges supplied by the costing form.
type LaborRates struct {
	Cutting   float64 `json:"cutting"`
	Sewing    float64 `json:"sewing"`
	Finishing float64 `json:"finishing"`
	Packing   float64 `json:"packing"`
}

// Total sums the labor rates.
func (l LaborRates) Total() float64 {
	return l.Cutting + l.Sewing + l.Finishing + l.Packing
}

// OverheadRates are per-piece overhead charges.
type OverheadRates struct {
	Factory        float64 `json:"factory"`
	Admin          float64 `json:"admin"`
	QualityControl float64 `json:"quality_control"`
}

// Total sums the overhead rates.
func (o OverheadRates) Total() float64 {
	return o.Factory + o.Admin + o.QualityControl
}

// ExportParams holds the optional charges that turn a selling price into an FOB price.
type ExportParams struct {
	ExportCharges float64 `json:"export_charges"`
	ShippingCost  float64 `json:"shipping_cost"`
	InsuranceCost float64 `json:"insurance_cost"`
	BankCharges   float64 `json:"bank_charges"`
}

// Total sums the export charges.
func (e ExportParams) Total() float64 {
	return e.ExportCharges + e.ShippingCost + e.InsuranceCost + e.BankCharges
}

// Parameters groups every non-item input of the calculator.
type Parameters struct {
	Labor                  LaborRates    `json:"labor"`
	Overhead               OverheadRates `json:"overhead"`
	IndirectCostPercentage Percentage    `json:"indirect_cost_percentage"`
	ProfitMargin           Percentage    `json:"profit_margin"`
	Export                 *ExportParams `json:"export,omitempty"`
}

// Clone returns a deep copy of p.
func (p Parameters) Clone() Parameters {
	if p.Export != nil {
		export := *p.Export
		p.Export = &export
	}
	return p
}

// Input is the full calculator input.
type Input struct {
	Items []BOMItem `json:"items"`
	Parameters
}

// ExportCost is the export block of a CPP calculation.
type ExportCost struct {
	ExportCharges   float64 `json:"export_charges"`
	ShippingCost    float64 `json:"shipping_cost"`
	InsuranceCost   float64 `json:"insurance_cost"`
	BankCharges     float64 `json:"bank_charges"`
	TotalExportCost float64 `json:"total_export_cost"`
	FinalFOBPrice   float64 `json:"final_fob_price"`
}

// CPPCalculation is the cost-per-piece roll-up for one style and size.
type CPPCalculation struct {
	MaterialCost      float64 `json:"material_cost"`
	ThreadCost        float64 `json:"thread_cost"`
	TrimsCost         float64 `json:"trims_cost"`
	AccessoriesCost   float64 `json:"accessories_cost"`
	PackagingCost     float64 `json:"packaging_cost"`
	TotalMaterialCost float64 `json:"total_material_cost"`

	CuttingCost    float64 `json:"cutting_cost"`
	SewingCost     float64 `json:"sewing_cost"`
	FinishingCost  float64 `json:"finishing_cost"`
	PackingCost    float64 `json:"packing_cost"`
	TotalLaborCost float64 `json:"total_labor_cost"`

	FactoryOverhead    float64 `json:"factory_overhead"`
	AdminOverhead      float64 `json:"admin_overhead"`
	QualityControlCost float64 `json:"quality_control_cost"`
	TotalOverheadCost  float64 `json:"total_overhead_cost"`

	TotalDirectCost        float64    `json:"total_direct_cost"`
	IndirectCostPercentage Percentage `json:"indirect_cost_percentage"`
	TotalIndirectCost      float64    `json:"total_indirect_cost"`

	TotalManufacturingCost float64    `json:"total_manufacturing_cost"`
	ProfitMargin           Percentage `json:"profit_margin"`
	SellingPrice           float64    `json:"selling_price"`

	Export *ExportCost `json:"export,omitempty"`
}

// MarginAmount is the profit added on top of the manufacturing cost.
func (c CPPCalculation) MarginAmount() float64 {
	return c.SellingPrice - c.TotalManufacturingCost
}

// FinalPrice returns the FOB price when an export block exists, otherwise the selling price.
func (c CPPCalculation) FinalPrice() float64 {
	if c.Export != nil {
		return c.Export.FinalFOBPrice
	}
	return c.SellingPrice
}

func checkAmount(field string, v float64) error {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return &InputError{Field: field, Reason: "must be a finite number"}
	case v < 0:
		return &InputError{Field: field, Reason: fmt.Sprintf("must not be negative, got %g", v)}
	}
	return nil
}
