package bom

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Repository persists bills of materials.
//
// Save inserts records with Revision 0 and otherwise updates the stored record
// only when its revision still equals the caller's, returning ErrConflict when
// it does not. Implementations refuse records whose roll-up fails Verify.
//
// Delete removes a draft only while its revision still equals the caller's, so
// a record approved after it was read is never dropped.
type Repository interface {
	Fetch(ctx context.Context, criteria Criteria) ([]BillOfMaterials, int, error)
	Get(ctx context.Context, id string) (BillOfMaterials, error)
	Save(ctx context.Context, bom BillOfMaterials) (BillOfMaterials, error)
	Delete(ctx context.Context, id string, revision int64) error
}

// MemoryRepository keeps BOMs in process memory.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]BillOfMaterials
}

// NewMemoryRepository constructs an empty store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]BillOfMaterials)}
}

// Fetch lists records matching criteria, newest first.
func (r *MemoryRepository) Fetch(ctx context.Context, criteria Criteria) ([]BillOfMaterials, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	criteria = criteria.Normalize()
	r.mu.RLock()
	matched := make([]BillOfMaterials, 0, len(r.records))
	for _, rec := range r.records {
		if matches(rec, criteria) {
			matched = append(matched, rec.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})
	total := len(matched)
	start := criteria.Offset()
	if start >= total {
		return []BillOfMaterials{}, total, nil
	}
	end := start + criteria.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// Get loads one record.
func (r *MemoryRepository) Get(ctx context.Context, id string) (BillOfMaterials, error) {
	if err := ctx.Err(); err != nil {
		return BillOfMaterials{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return BillOfMaterials{}, ErrNotFound
	}
	return rec.Clone(), nil
}

// Save inserts or updates a record with optimistic revision checks.
func (r *MemoryRepository) Save(ctx context.Context, bom BillOfMaterials) (BillOfMaterials, error) {
	if err := ctx.Err(); err != nil {
		return BillOfMaterials{}, err
	}
	if err := bom.Verify(); err != nil {
		return BillOfMaterials{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	current, exists := r.records[bom.ID]
	switch {
	case bom.Revision == 0 && exists:
		return BillOfMaterials{}, ErrDuplicate
	case bom.Revision != 0 && !exists:
		return BillOfMaterials{}, ErrNotFound
	case exists && current.Revision != bom.Revision:
		return BillOfMaterials{}, ErrConflict
	}
	for id, rec := range r.records {
		if id != bom.ID && sameVersion(rec, bom) {
			return BillOfMaterials{}, ErrDuplicate
		}
	}
	stored := bom.Clone()
	stored.Revision++
	r.records[stored.ID] = stored
	return stored.Clone(), nil
}

// Delete removes a draft at the given revision.
func (r *MemoryRepository) Delete(ctx context.Context, id string, revision int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	switch {
	case !ok:
		return ErrNotFound
	case rec.Revision != revision:
		return ErrConflict
	case rec.Status != StatusDraft:
		return ErrInvalidStatus
	}
	delete(r.records, id)
	return nil
}

func matches(rec BillOfMaterials, c Criteria) bool {
	if c.OrganizationID != "" && rec.OrganizationID != c.OrganizationID {
		return false
	}
	if c.StyleID != "" && rec.StyleID != c.StyleID {
		return false
	}
	if c.Size != "" && !strings.EqualFold(rec.Size, c.Size) {
		return false
	}
	if c.Status != "" && rec.Status != c.Status {
		return false
	}
	if c.Search != "" {
		needle := strings.ToLower(c.Search)
		if !strings.Contains(strings.ToLower(rec.StyleName), needle) && !strings.Contains(strings.ToLower(rec.StyleID), needle) {
			return false
		}
	}
	return true
}

func sameVersion(a, b BillOfMaterials) bool {
	return a.OrganizationID == b.OrganizationID &&
		a.StyleID == b.StyleID &&
		strings.EqualFold(a.Size, b.Size) &&
		a.Version == b.Version
}
