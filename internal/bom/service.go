package bom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/edgeunify07/textile-flow-forge/internal/costing"
	"github.com/edgeunify07/textile-flow-forge/internal/observability"
)

// Service coordinates BOM edits, approvals and cost roll-ups.
type Service struct {
	repo     Repository
	cache    *Cache
	metrics  *observability.CostingMetrics
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
	newID    func() string
	flight   singleflight.Group

	recomputeWorkers int
}

// ServiceOptions carries optional collaborators.
type ServiceOptions struct {
	Cache            *Cache
	Metrics          *observability.CostingMetrics
	Logger           *slog.Logger
	RecomputeWorkers int
}

// NewService builds the service.
func NewService(repo Repository, opts ServiceOptions) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.RecomputeWorkers
	if workers <= 0 {
		workers = 4
	}
	return &Service{
		repo:             repo,
		cache:            opts.Cache,
		metrics:          opts.Metrics,
		logger:           logger,
		validate:         validator.New(),
		now:              func() time.Time { return time.Now().UTC() },
		newID:            uuid.NewString,
		recomputeWorkers: workers,
	}
}

// Preview runs the calculator without touching storage.
func (s *Service) Preview(in costing.Input) (costing.CPPCalculation, error) {
	calc, err := costing.Calculate(in)
	s.metrics.ObserveCalculation("preview", err)
	return calc, err
}

// Create stores a new draft BOM at version v1.0.
func (s *Service) Create(ctx context.Context, req CreateRequest) (BillOfMaterials, error) {
	if err := s.check(req); err != nil {
		return BillOfMaterials{}, err
	}
	now := s.now()
	bom := BillOfMaterials{
		ID:             s.newID(),
		OrganizationID: strings.TrimSpace(req.OrganizationID),
		StyleID:        strings.TrimSpace(req.StyleID),
		StyleName:      strings.TrimSpace(req.StyleName),
		Version:        initialVersion,
		Size:           strings.TrimSpace(req.Size),
		Parameters:     req.Parameters.Clone(),
		Status:         StatusDraft,
		Notes:          strings.TrimSpace(req.Notes),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	var itemErrs []error
	for i, item := range req.Items {
		line, err := item.toItem(i, s.newID())
		if err != nil {
			itemErrs = append(itemErrs, err)
			continue
		}
		bom.Items = append(bom.Items, line)
	}
	if err := errors.Join(itemErrs...); err != nil {
		s.metrics.ObserveCalculation("create", err)
		return BillOfMaterials{}, fmt.Errorf("create bom: %w", err)
	}
	err := bom.recalculate()
	s.metrics.ObserveCalculation("create", err)
	if err != nil {
		return BillOfMaterials{}, fmt.Errorf("create bom: %w", err)
	}
	saved, err := s.repo.Save(ctx, bom)
	if err != nil {
		return BillOfMaterials{}, fmt.Errorf("create bom: %w", err)
	}
	s.invalidate(ctx)
	return saved, nil
}

// Get loads a BOM.
func (s *Service) Get(ctx context.Context, id string) (BillOfMaterials, error) {
	return s.repo.Get(ctx, id)
}

// List fetches BOMs matching criteria.
func (s *Service) List(ctx context.Context, criteria Criteria) ([]BillOfMaterials, int, error) {
	return s.repo.Fetch(ctx, criteria)
}

// AddItem appends a material line and recomputes the roll-up.
func (s *Service) AddItem(ctx context.Context, id string, req ItemRequest) (BillOfMaterials, error) {
	if err := s.check(req); err != nil {
		return BillOfMaterials{}, err
	}
	return s.edit(ctx, id, "add_item", func(b *BillOfMaterials) error {
		line, err := req.toItem(len(b.Items), s.newID())
		if err != nil {
			return err
		}
		b.Items = append(b.Items, line)
		return nil
	})
}

// UpdateItem replaces a material line and recomputes the roll-up.
func (s *Service) UpdateItem(ctx context.Context, id, itemID string, req ItemRequest) (BillOfMaterials, error) {
	if err := s.check(req); err != nil {
		return BillOfMaterials{}, err
	}
	return s.edit(ctx, id, "update_item", func(b *BillOfMaterials) error {
		idx := b.itemIndex(itemID)
		if idx < 0 {
			return fmt.Errorf("%w: item %s", ErrNotFound, itemID)
		}
		line, err := req.toItem(idx, itemID)
		if err != nil {
			return err
		}
		b.Items[idx] = line
		return nil
	})
}

// RemoveItem drops a material line and recomputes the roll-up.
func (s *Service) RemoveItem(ctx context.Context, id, itemID string) (BillOfMaterials, error) {
	return s.edit(ctx, id, "remove_item", func(b *BillOfMaterials) error {
		idx := b.itemIndex(itemID)
		if idx < 0 {
			return fmt.Errorf("%w: item %s", ErrNotFound, itemID)
		}
		b.Items = append(b.Items[:idx], b.Items[idx+1:]...)
		return nil
	})
}

// UpdateParameters replaces the labor, overhead, percentage and export inputs.
func (s *Service) UpdateParameters(ctx context.Context, id string, params costing.Parameters) (BillOfMaterials, error) {
	return s.edit(ctx, id, "update_parameters", func(b *BillOfMaterials) error {
		b.Parameters = params.Clone()
		return nil
	})
}

// Approve signs off a draft or revised BOM.
func (s *Service) Approve(ctx context.Context, id string, req ApproveRequest) (BillOfMaterials, error) {
	if err := s.check(req); err != nil {
		return BillOfMaterials{}, err
	}
	return s.transition(ctx, id, func(b *BillOfMaterials, at time.Time) error {
		return b.approve(strings.TrimSpace(req.Approver), at)
	})
}

// Reject declines a draft or revised BOM.
func (s *Service) Reject(ctx context.Context, id string, req RejectRequest) (BillOfMaterials, error) {
	if err := s.check(req); err != nil {
		return BillOfMaterials{}, err
	}
	return s.transition(ctx, id, func(b *BillOfMaterials, at time.Time) error {
		return b.reject(strings.TrimSpace(req.Approver), strings.TrimSpace(req.Reason), at)
	})
}

// Revise creates the next version of an approved or rejected BOM. The source
// record stays unchanged.
func (s *Service) Revise(ctx context.Context, id string) (BillOfMaterials, error) {
	source, err := s.repo.Get(ctx, id)
	if err != nil {
		return BillOfMaterials{}, fmt.Errorf("get bom: %w", err)
	}
	if !source.Status.Terminal() {
		return BillOfMaterials{}, fmt.Errorf("%w: cannot revise a %s BOM", ErrInvalidStatus, source.Status)
	}
	versions, err := s.siblingVersions(ctx, source)
	if err != nil {
		return BillOfMaterials{}, err
	}
	next, err := nextVersion(versions)
	if err != nil {
		return BillOfMaterials{}, err
	}
	revised, err := source.revision(s.newID(), next, s.now())
	s.metrics.ObserveCalculation("revise", err)
	if err != nil {
		return BillOfMaterials{}, fmt.Errorf("revise bom: %w", err)
	}
	saved, err := s.repo.Save(ctx, revised)
	if err != nil {
		return BillOfMaterials{}, fmt.Errorf("revise bom: %w", err)
	}
	s.invalidate(ctx)
	return saved, nil
}

// Delete removes a draft BOM.
func (s *Service) Delete(ctx context.Context, id string) error {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("get bom: %w", err)
	}
	if existing.Status != StatusDraft {
		return fmt.Errorf("%w: only draft BOMs can be deleted", ErrInvalidStatus)
	}
	if err := s.repo.Delete(ctx, id, existing.Revision); err != nil {
		return fmt.Errorf("delete bom: %w", err)
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) edit(ctx context.Context, id, operation string, fn func(*BillOfMaterials) error) (BillOfMaterials, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return BillOfMaterials{}, fmt.Errorf("get bom: %w", err)
	}
	if !existing.Status.Editable() {
		return BillOfMaterials{}, fmt.Errorf("%w: %s BOMs are read-only, revise instead", ErrInvalidStatus, existing.Status)
	}
	if err := fn(&existing); err != nil {
		return BillOfMaterials{}, err
	}
	err = existing.recalculate()
	s.metrics.ObserveCalculation(operation, err)
	if err != nil {
		return BillOfMaterials{}, fmt.Errorf("%s: %w", strings.ReplaceAll(operation, "_", " "), err)
	}
	existing.UpdatedAt = s.now()
	saved, err := s.repo.Save(ctx, existing)
	if err != nil {
		return BillOfMaterials{}, fmt.Errorf("save bom: %w", err)
	}
	s.invalidate(ctx)
	return saved, nil
}

func (s *Service) transition(ctx context.Context, id string, fn func(*BillOfMaterials, time.Time) error) (BillOfMaterials, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return BillOfMaterials{}, fmt.Errorf("get bom: %w", err)
	}
	if err := fn(&existing, s.now()); err != nil {
		return BillOfMaterials{}, err
	}
	saved, err := s.repo.Save(ctx, existing)
	if err != nil {
		return BillOfMaterials{}, fmt.Errorf("save bom: %w", err)
	}
	s.invalidate(ctx)
	return saved, nil
}

func (s *Service) siblingVersions(ctx context.Context, source BillOfMaterials) ([]string, error) {
	var versions []string
	criteria := Criteria{OrganizationID: source.OrganizationID, StyleID: source.StyleID, Size: source.Size}
	err := s.each(ctx, criteria, func(b BillOfMaterials) error {
		versions = append(versions, b.Version)
		return nil
	})
	return versions, err
}

func (s *Service) check(req any) error {
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("bom cache bump", slog.Any("error", err))
	}
}
