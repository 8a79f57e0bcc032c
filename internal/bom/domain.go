// Package bom manages garment bills of materials and keeps their cost-per-piece
// roll-up consistent with their items through the draft/approval lifecycle.
package bom

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/edgeunify07/textile-flow-forge/internal/costing"
)

// Status enumerates BOM lifecycle values.
type Status string

const (
	// StatusDraft is the initial, editable state.
	StatusDraft Status = "draft"
	// StatusApproved is a signed-off costing; immutable.
	StatusApproved Status = "approved"
	// StatusRejected is a declined costing; immutable.
	StatusRejected Status = "rejected"
	// StatusRevised is an editable new version of an approved or rejected BOM.
	StatusRevised Status = "revised"
)

// Statuses lists every status in lifecycle order.
func Statuses() []Status {
	return []Status{StatusDraft, StatusRevised, StatusApproved, StatusRejected}
}

// ParseStatus validates a status string.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case StatusDraft, StatusApproved, StatusRejected, StatusRevised:
		return s, nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrValidation, raw)
	}
}

// Editable reports whether items and parameters may change.
func (s Status) Editable() bool {
	switch s {
	case StatusDraft, StatusRevised:
		return true
	case StatusApproved, StatusRejected:
		return false
	default:
		return false
	}
}

// Terminal reports whether an approver already decided on the BOM.
func (s Status) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejected:
		return true
	case StatusDraft, StatusRevised:
		return false
	default:
		return false
	}
}

// BillOfMaterials is the costing record for one style and size.
type BillOfMaterials struct {
	ID                string                 `json:"id"`
	OrganizationID    string                 `json:"organization_id"`
	StyleID           string                 `json:"style_id"`
	StyleName         string                 `json:"style_name"`
	Version           string                 `json:"version"`
	Size              string                 `json:"size"`
	Items             []costing.BOMItem      `json:"items"`
	Parameters        costing.Parameters     `json:"parameters"`
	CPP               costing.CPPCalculation `json:"cpp"`
	Status            Status                 `json:"status"`
	ApprovedBy        string                 `json:"approved_by,omitempty"`
	ApprovedAt        *time.Time             `json:"approved_at,omitempty"`
	RejectedBy        string                 `json:"rejected_by,omitempty"`
	RejectedAt        *time.Time             `json:"rejected_at,omitempty"`
	RejectionReason   string                 `json:"rejection_reason,omitempty"`
	Notes             string                 `json:"notes,omitempty"`
	PreviousVersionID string                 `json:"previous_version_id,omitempty"`
	Revision          int64                  `json:"revision"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

// MaterialCost is the material sub-total shown on list views.
func (b BillOfMaterials) MaterialCost() float64 { return b.CPP.TotalMaterialCost }

// LaborCost is the labor sub-total shown on list views.
func (b BillOfMaterials) LaborCost() float64 { return b.CPP.TotalLaborCost }

// OverheadCost is the overhead sub-total shown on list views.
func (b BillOfMaterials) OverheadCost() float64 { return b.CPP.TotalOverheadCost }

// TotalCost is the manufacturing cost per piece.
func (b BillOfMaterials) TotalCost() float64 { return b.CPP.TotalManufacturingCost }

// SellingPrice is the price per piece before export charges.
func (b BillOfMaterials) SellingPrice() float64 { return b.CPP.SellingPrice }

// CriticalLeadTime returns the longest lead time among critical items.
func (b BillOfMaterials) CriticalLeadTime() int {
	longest := 0
	for _, item := range b.Items {
		if item.Critical && item.LeadTimeDays > longest {
			longest = item.LeadTimeDays
		}
	}
	return longest
}

// Clone returns a deep copy.
func (b BillOfMaterials) Clone() BillOfMaterials {
	out := b
	if b.Items != nil {
		out.Items = append([]costing.BOMItem(nil), b.Items...)
	}
	out.Parameters = b.Parameters.Clone()
	if b.CPP.Export != nil {
		export := *b.CPP.Export
		out.CPP.Export = &export
	}
	if b.ApprovedAt != nil {
		at := *b.ApprovedAt
		out.ApprovedAt = &at
	}
	if b.RejectedAt != nil {
		at := *b.RejectedAt
		out.RejectedAt = &at
	}
	return out
}

// Criteria filters Fetch calls.
type Criteria struct {
	OrganizationID string
	StyleID        string
	Size           string
	Status         Status
	Search         string
	Page           int
	Limit          int
}

const (
	defaultPage  = 1
	defaultLimit = 20
	maxLimit     = 200
)

// Normalize fills paging defaults.
func (c Criteria) Normalize() Criteria {
	if c.Page < 1 {
		c.Page = defaultPage
	}
	if c.Limit < 1 {
		c.Limit = defaultLimit
	}
	if c.Limit > maxLimit {
		c.Limit = maxLimit
	}
	c.Search = strings.TrimSpace(c.Search)
	return c
}

// Offset returns the row offset for the current page.
func (c Criteria) Offset() int {
	return (c.Page - 1) * c.Limit
}

// ItemRequest captures one BOM line as entered on the costing form.
type ItemRequest struct {
	Category          costing.Category   `json:"category" validate:"required"`
	ItemID            string             `json:"item_id" validate:"max=50"`
	ItemName          string             `json:"item_name" validate:"required,max=200"`
	Specification     string             `json:"specification" validate:"max=500"`
	Consumption       float64            `json:"consumption"`
	Unit              costing.Unit       `json:"unit"`
	WastagePercentage costing.Percentage `json:"wastage_percentage"`
	UnitCost          float64            `json:"unit_cost"`
	Supplier          string             `json:"supplier" validate:"max=200"`
	LeadTimeDays      int                `json:"lead_time_days"`
	Critical          bool               `json:"critical"`
}

// toItem normalises the request into a BOM line stored at position index.
func (r ItemRequest) toItem(index int, id string) (costing.BOMItem, error) {
	category, catErr := costing.ParseCategory(string(r.Category))
	unit, unitErr := costing.ParseUnit(string(r.Unit))
	if err := errors.Join(catErr, unitErr); err != nil {
		return costing.BOMItem{}, costing.Prefixed(fmt.Sprintf("items[%d].", index), err)
	}
	return costing.BOMItem{
		ID:                id,
		Category:          category,
		ItemID:            strings.TrimSpace(r.ItemID),
		ItemName:          strings.TrimSpace(r.ItemName),
		Specification:     strings.TrimSpace(r.Specification),
		Consumption:       r.Consumption,
		Unit:              unit,
		WastagePercentage: r.WastagePercentage,
		UnitCost:          r.UnitCost,
		Supplier:          strings.TrimSpace(r.Supplier),
		LeadTimeDays:      r.LeadTimeDays,
		Critical:          r.Critical,
	}, nil
}

// CreateRequest captures a new BOM.
type CreateRequest struct {
	OrganizationID string             `json:"organization_id" validate:"required,max=64"`
	StyleID        string             `json:"style_id" validate:"required,max=50"`
	StyleName      string             `json:"style_name" validate:"required,max=200"`
	Size           string             `json:"size" validate:"required,max=10"`
	Notes          string             `json:"notes" validate:"max=2000"`
	Items          []ItemRequest      `json:"items" validate:"dive"`
	Parameters     costing.Parameters `json:"parameters"`
}

// ApproveRequest signs off a BOM.
type ApproveRequest struct {
	Approver string `json:"approver" validate:"required,max=200"`
}

// RejectRequest declines a BOM.
type RejectRequest struct {
	Approver string `json:"approver" validate:"required,max=200"`
	Reason   string `json:"reason" validate:"required,max=2000"`
}

var (
	// ErrNotFound occurs when a BOM or item is missing.
	ErrNotFound = errors.New("bom: not found")
	// ErrInvalidStatus occurs on a lifecycle violation.
	ErrInvalidStatus = errors.New("bom: invalid status transition")
	// ErrDuplicate occurs when organization, style, size and version collide.
	ErrDuplicate = errors.New("bom: duplicate version")
	// ErrConflict occurs when the record changed since it was read.
	ErrConflict = errors.New("bom: concurrent modification")
	// ErrValidation wraps request validation failures.
	ErrValidation = errors.New("bom: validation failed")
	// ErrInconsistent guards persistence against stale roll-ups.
	ErrInconsistent = errors.New("bom: cost roll-up does not match items")
)
