package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeunify07/textile-flow-forge/internal/bom"
	"github.com/edgeunify07/textile-flow-forge/internal/costing"
	"github.com/edgeunify07/textile-flow-forge/internal/observability"
	_ "github.com/edgeunify07/textile-flow-forge/internal/testing/guard"
	"github.com/edgeunify07/textile-flow-forge/jobs"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	metrics := observability.NewMetrics()
	service := bom.NewService(bom.NewMemoryRepository(), bom.ServiceOptions{
		Metrics: observability.NewCostingMetrics(metrics.Registerer()),
	})
	return NewRouter(RouterParams{
		Config:     &Config{AppEnv: "test", RateLimitPerMinute: 1000},
		BOMHandler: bom.NewHandler(nil, service, nil, "en-US"),
		JobHandler: jobs.NewHandler(nil, nil),
		Metrics:    metrics,
	})
}

func TestRouterHealthz(t *testing.T) {
	router := newTestRouter(t)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rr.Header().Get("X-Frame-Options"))
}

func TestRouterPreviewIsRecordedInMetrics(t *testing.T) {
	router := newTestRouter(t)

	in := costing.Input{
		Items: []costing.BOMItem{{Category: costing.CategoryFabric, ItemName: "Twill", Consumption: 1, Unit: costing.UnitMeter, UnitCost: 20}},
		Parameters: costing.Parameters{
			Labor:        costing.LaborRates{Sewing: 5},
			ProfitMargin: 50,
		},
	}
	body, err := json.Marshal(in)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/costing/preview", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var calc costing.CPPCalculation
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &calc))
	assert.Equal(t, 25.0, calc.TotalManufacturingCost)
	assert.Equal(t, 37.5, calc.SellingPrice)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `textileflow_cpp_calculations_total{operation="preview",outcome="ok"} 1`)
	assert.Contains(t, rr.Body.String(), `textileflow_http_requests_total{code="200",method="POST",route="/api/costing/preview"} 1`)
}

func TestRouterJobsHealthWithoutQueue(t *testing.T) {
	router := newTestRouter(t)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"queue":"default","available":false,"paused":false,"pending":0,"active":0,"retry":0,"archived":0}`, rr.Body.String())
}
