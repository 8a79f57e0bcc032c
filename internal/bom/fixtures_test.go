package bom

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edgeunify07/textile-flow-forge/internal/costing"
	_ "github.com/edgeunify07/textile-flow-forge/internal/testing/guard"
)

const tolerance = 1e-9

func poloParameters() costing.Parameters {
	return costing.Parameters{
		Labor:                  costing.LaborRates{Cutting: 4.50, Sewing: 12.00, Finishing: 2.00, Packing: 1.50},
		Overhead:               costing.OverheadRates{Factory: 8.50, Admin: 3.00, QualityControl: 1.25},
		IndirectCostPercentage: 8,
		ProfitMargin:           25,
	}
}

func poloItems() []ItemRequest {
	return []ItemRequest{
		{Category: costing.CategoryFabric, ItemID: "FAB001", ItemName: "Pique Cotton Fabric", Consumption: 0.75, Unit: costing.UnitMeter, WastagePercentage: 8, UnitCost: 45.50, Supplier: "Mill A", LeadTimeDays: 15, Critical: true},
		{Category: costing.CategoryThread, ItemID: "THR001", ItemName: "Cotton Thread 40s", Consumption: 0.66, Unit: costing.UnitPiece, UnitCost: 1},
		{Category: costing.CategoryTrim, ItemID: "BTN001", ItemName: "Polyester Button", Consumption: 2.60, Unit: costing.UnitPiece, UnitCost: 1, LeadTimeDays: 7, Critical: true},
		{Category: costing.CategoryAccessory, ItemID: "LBL001", ItemName: "Care Label", Consumption: 0.47, Unit: costing.UnitPiece, UnitCost: 1, LeadTimeDays: 30},
		{Category: costing.CategoryPackaging, ItemID: "PKG001", ItemName: "Polybag", Consumption: 2.50, Unit: costing.UnitPiece, UnitCost: 1},
	}
}

func poloRequest(org, style, size string) CreateRequest {
	return CreateRequest{
		OrganizationID: org,
		StyleID:        style,
		StyleName:      "Classic Polo Shirt",
		Size:           size,
		Items:          poloItems(),
		Parameters:     poloParameters(),
	}
}

// newTestService returns a memory-backed service with a deterministic clock
// and sequential ids.
func newTestService(t *testing.T, repo Repository, opts ServiceOptions) *Service {
	t.Helper()
	svc := NewService(repo, opts)
	var mu sync.Mutex
	clock := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Minute)
		return clock
	}
	seq := 0
	svc.newID = func() string {
		mu.Lock()
		defer mu.Unlock()
		seq++
		return fmt.Sprintf("id-%04d", seq)
	}
	return svc
}

func createPolo(t *testing.T, svc *Service, org, style, size string) BillOfMaterials {
	t.Helper()
	bom, err := svc.Create(context.Background(), poloRequest(org, style, size))
	require.NoError(t, err)
	return bom
}
