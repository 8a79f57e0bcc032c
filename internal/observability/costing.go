package observability

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/edgeunify07/textile-flow-forge/internal/costing"
)

// CostingMetrics tracks CPP calculations and roll-up drift.
type CostingMetrics struct {
	calculations *prometheus.CounterVec
	drifted      *prometheus.GaugeVec
}

// NewCostingMetrics registers costing collectors. A nil registerer uses the default one.
func NewCostingMetrics(reg prometheus.Registerer) *CostingMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	calculations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "textileflow_cpp_calculations_total",
		Help: "CPP calculations by operation and outcome.",
	}, []string{"operation", "outcome"})
	drifted := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "textileflow_bom_drifted",
		Help: "Decided BOMs whose stored roll-up no longer matches a fresh calculation, by organization.",
	}, []string{"organization"})
	reg.MustRegister(calculations, drifted)
	return &CostingMetrics{calculations: calculations, drifted: drifted}
}

// ObserveCalculation counts one calculation attempt.
func (m *CostingMetrics) ObserveCalculation(operation string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, costing.ErrInvalidInput):
		outcome = "invalid_input"
	default:
		outcome = "error"
	}
	m.calculations.WithLabelValues(operation, outcome).Inc()
}

// SetDrifted records the drift count of the latest recompute run for an
// organization. An empty organization is a run across all of them.
func (m *CostingMetrics) SetDrifted(organizationID string, n int) {
	if m == nil {
		return
	}
	org := organizationID
	if org == "" {
		org = "all"
	}
	m.drifted.WithLabelValues(org).Set(float64(n))
}
