package bom

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Summary is the per-organization costing dashboard.
type Summary struct {
	OrganizationID           string         `json:"organization_id"`
	Total                    int            `json:"total"`
	ByStatus                 map[Status]int `json:"by_status"`
	ApprovedCount            int            `json:"approved_count"`
	AverageSellingPrice      float64        `json:"average_selling_price"`
	AverageFinalPrice        float64        `json:"average_final_price"`
	AverageManufacturingCost float64        `json:"average_manufacturing_cost"`
	AverageMaterialCost      float64        `json:"average_material_cost"`
	LongestCriticalLeadTime  int            `json:"longest_critical_lead_time"`
}

const summaryTimeout = 30 * time.Second

// Summary aggregates status counts and approved cost averages for an organization.
func (s *Service) Summary(ctx context.Context, organizationID string) (Summary, error) {
	organizationID = strings.TrimSpace(organizationID)
	if organizationID == "" {
		return Summary{}, fmt.Errorf("%w: organization_id required", ErrValidation)
	}
	key, err := s.cache.BuildKey(ctx, "summary", organizationID)
	if err != nil {
		s.logger.Warn("bom summary cache key", "error", err)
		return s.buildSummary(ctx, organizationID)
	}

	ch := s.flight.DoChan(key, func() (interface{}, error) {
		// Shared by every waiter, so one caller going away must not cancel it.
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), summaryTimeout)
		defer cancel()
		var out Summary
		err := s.cache.FetchJSON(shared, key, &out, func(ctx context.Context) (any, error) {
			return s.buildSummary(ctx, organizationID)
		})
		return out, err
	})
	select {
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Summary{}, res.Err
		}
		return res.Val.(Summary), nil
	}
}

func (s *Service) buildSummary(ctx context.Context, organizationID string) (Summary, error) {
	out := Summary{OrganizationID: organizationID, ByStatus: make(map[Status]int, len(Statuses()))}
	for _, st := range Statuses() {
		out.ByStatus[st] = 0
	}
	var selling, final, manufacturing, material float64
	err := s.each(ctx, Criteria{OrganizationID: organizationID}, func(b BillOfMaterials) error {
		out.Total++
		out.ByStatus[b.Status]++
		if b.Status != StatusApproved {
			return nil
		}
		out.ApprovedCount++
		selling += b.SellingPrice()
		final += b.CPP.FinalPrice()
		manufacturing += b.TotalCost()
		material += b.MaterialCost()
		if lt := b.CriticalLeadTime(); lt > out.LongestCriticalLeadTime {
			out.LongestCriticalLeadTime = lt
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	if out.ApprovedCount > 0 {
		n := float64(out.ApprovedCount)
		out.AverageSellingPrice = selling / n
		out.AverageFinalPrice = final / n
		out.AverageManufacturingCost = manufacturing / n
		out.AverageMaterialCost = material / n
	}
	return out, nil
}

// each pages through every record matching criteria.
func (s *Service) each(ctx context.Context, criteria Criteria, fn func(BillOfMaterials) error) error {
	criteria.Limit = maxLimit
	for page := 1; ; page++ {
		criteria.Page = page
		batch, total, err := s.repo.Fetch(ctx, criteria)
		if err != nil {
			return fmt.Errorf("list boms: %w", err)
		}
		for _, b := range batch {
			if err := fn(b); err != nil {
				return err
			}
		}
		if len(batch) == 0 || page*maxLimit >= total {
			return nil
		}
	}
}
