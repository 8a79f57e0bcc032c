package bom

import (
	"fmt"
	"reflect"
	"time"

	"github.com/edgeunify07/textile-flow-forge/internal/costing"
)

const initialVersion = "v1.0"

// recalculate prices every item and rebuilds the CPP roll-up. The record is
// left untouched when the calculator rejects the input.
func (b *BillOfMaterials) recalculate() error {
	calc, err := costing.Calculate(costing.Input{Items: b.Items, Parameters: b.Parameters})
	if err != nil {
		return err
	}
	priced, err := costing.PriceItems(b.Items)
	if err != nil {
		return err
	}
	b.Items = priced
	b.CPP = calc
	return nil
}

// Verify checks that the stored roll-up equals a fresh calculation.
func (b BillOfMaterials) Verify() error {
	fresh := b.Clone()
	if err := fresh.recalculate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInconsistent, err)
	}
	if !reflect.DeepEqual(itemsOrEmpty(fresh.Items), itemsOrEmpty(b.Items)) || !reflect.DeepEqual(fresh.CPP, b.CPP) {
		return ErrInconsistent
	}
	return nil
}

func itemsOrEmpty(items []costing.BOMItem) []costing.BOMItem {
	if items == nil {
		return []costing.BOMItem{}
	}
	return items
}

func (b *BillOfMaterials) itemIndex(itemID string) int {
	for i, item := range b.Items {
		if item.ID == itemID {
			return i
		}
	}
	return -1
}

func (b *BillOfMaterials) approve(approver string, at time.Time) error {
	if !b.Status.Editable() {
		return fmt.Errorf("%w: cannot approve a %s BOM", ErrInvalidStatus, b.Status)
	}
	b.Status = StatusApproved
	b.ApprovedBy = approver
	b.ApprovedAt = &at
	b.UpdatedAt = at
	return nil
}

func (b *BillOfMaterials) reject(approver, reason string, at time.Time) error {
	if !b.Status.Editable() {
		return fmt.Errorf("%w: cannot reject a %s BOM", ErrInvalidStatus, b.Status)
	}
	b.Status = StatusRejected
	b.RejectedBy = approver
	b.RejectedAt = &at
	b.RejectionReason = reason
	b.UpdatedAt = at
	return nil
}

// revision builds the next version of a decided BOM. The receiver is not modified.
func (b BillOfMaterials) revision(id, version string, at time.Time) (BillOfMaterials, error) {
	if !b.Status.Terminal() {
		return BillOfMaterials{}, fmt.Errorf("%w: only approved or rejected BOMs can be revised", ErrInvalidStatus)
	}
	next := b.Clone()
	next.ID = id
	next.Version = version
	next.Status = StatusRevised
	next.PreviousVersionID = b.ID
	next.ApprovedBy, next.ApprovedAt = "", nil
	next.RejectedBy, next.RejectedAt, next.RejectionReason = "", nil, ""
	next.Revision = 0
	next.CreatedAt = at
	next.UpdatedAt = at
	if err := next.recalculate(); err != nil {
		return BillOfMaterials{}, err
	}
	return next, nil
}

type version struct {
	major, minor int
}

func parseVersion(raw string) (version, error) {
	var v version
	var trailing string
	n, _ := fmt.Sscanf(raw+" end", "v%d.%d %s", &v.major, &v.minor, &trailing)
	if n != 3 || trailing != "end" || v.major < 0 || v.minor < 0 {
		return version{}, fmt.Errorf("%w: malformed version %q", ErrValidation, raw)
	}
	return v, nil
}

func (v version) String() string {
	return fmt.Sprintf("v%d.%d", v.major, v.minor)
}

func (v version) less(o version) bool {
	if v.major != o.major {
		return v.major < o.major
	}
	return v.minor < o.minor
}

// nextVersion bumps the minor component of the highest existing version.
func nextVersion(existing []string) (string, error) {
	var highest version
	found := false
	for _, raw := range existing {
		v, err := parseVersion(raw)
		if err != nil {
			return "", err
		}
		if !found || highest.less(v) {
			highest = v
			found = true
		}
	}
	if !found {
		return initialVersion, nil
	}
	highest.minor++
	return highest.String(), nil
}
