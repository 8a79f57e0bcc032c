package bom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
)

// RecomputeReport summarises a RecomputeAll run.
type RecomputeReport struct {
	OrganizationID string   `json:"organization_id"`
	Scanned        int      `json:"scanned"`
	Repriced       int      `json:"repriced"`
	Skipped        int      `json:"skipped"`
	Drifted        []string `json:"drifted"`
}

// RecomputeAll re-prices editable BOMs and verifies decided ones. Approved and
// rejected records are never rewritten; a stale roll-up on one of them is only
// reported as drift. An empty organization id scans every organization.
func (s *Service) RecomputeAll(ctx context.Context, organizationID string) (RecomputeReport, error) {
	report := RecomputeReport{OrganizationID: organizationID, Drifted: []string{}}
	var ids []string
	err := s.each(ctx, Criteria{OrganizationID: organizationID}, func(b BillOfMaterials) error {
		ids = append(ids, b.ID)
		return nil
	})
	if err != nil {
		return report, err
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.recomputeWorkers)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			outcome, err := s.recomputeOne(gctx, id)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			report.Scanned++
			switch outcome {
			case outcomeRepriced:
				report.Repriced++
			case outcomeDrifted:
				report.Drifted = append(report.Drifted, id)
			case outcomeSkipped:
				report.Skipped++
			case outcomeUnchanged:
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	sort.Strings(report.Drifted)
	s.metrics.SetDrifted(organizationID, len(report.Drifted))
	if report.Repriced > 0 {
		s.invalidate(ctx)
	}
	s.logger.Info("bom recompute",
		slog.String("organization_id", organizationID),
		slog.Int("scanned", report.Scanned),
		slog.Int("repriced", report.Repriced),
		slog.Int("drifted", len(report.Drifted)))
	return report, nil
}

type recomputeOutcome int

const (
	outcomeUnchanged recomputeOutcome = iota
	outcomeRepriced
	outcomeDrifted
	outcomeSkipped
)

func (s *Service) recomputeOne(ctx context.Context, id string) (recomputeOutcome, error) {
	current, err := s.repo.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return outcomeSkipped, nil
	}
	if err != nil {
		return outcomeUnchanged, fmt.Errorf("get bom %s: %w", id, err)
	}
	if current.Status.Terminal() {
		if err := current.Verify(); err != nil {
			s.logger.Warn("bom roll-up drift", slog.String("bom_id", id), slog.Any("error", err))
			return outcomeDrifted, nil
		}
		return outcomeUnchanged, nil
	}

	fresh := current.Clone()
	err = fresh.recalculate()
	s.metrics.ObserveCalculation("recompute", err)
	if err != nil {
		s.logger.Warn("bom recompute rejected", slog.String("bom_id", id), slog.Any("error", err))
		return outcomeSkipped, nil
	}
	if reflect.DeepEqual(itemsOrEmpty(fresh.Items), itemsOrEmpty(current.Items)) && reflect.DeepEqual(fresh.CPP, current.CPP) {
		return outcomeUnchanged, nil
	}
	fresh.UpdatedAt = s.now()
	if _, err := s.repo.Save(ctx, fresh); err != nil {
		if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
			return outcomeSkipped, nil
		}
		return outcomeUnchanged, fmt.Errorf("save bom %s: %w", id, err)
	}
	return outcomeRepriced, nil
}
