// Package metrics exposes the engine's Prometheus metrics:
//   - engine_reviews_total{outcome}          – pipeline runs by outcome (success|failure|skipped)
//   - engine_orders_total{mode,status}       – ledger rows written by mode (spot|futures) and status
//   - engine_reconciler_sweeps_total         – reconciliation sweeps performed
//   - engine_reconciler_transitions_total{to} – order status transitions applied by the reconciler
//   - engine_active_pipelines                – pipelines currently holding the guard (gauge)
//
// Registered in init() and served by the HTTP handler at /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Reviews = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_reviews_total",
			Help: "Review pipeline runs by outcome",
		},
		[]string{"outcome"},
	)

	Orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_orders_total",
			Help: "Order ledger rows written",
		},
		[]string{"mode", "status"},
	)

	ReconcilerSweeps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "engine_reconciler_sweeps_total",
			Help: "Reconciliation sweeps performed",
		},
	)

	ReconcilerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_reconciler_transitions_total",
			Help: "Order status transitions applied by the reconciler",
		},
		[]string{"to"},
	)

	ActivePipelines = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "engine_active_pipelines",
			Help: "Pipelines currently holding the run guard",
		},
	)
)

func init() {
	prometheus.MustRegister(
		Reviews,
		Orders,
		ReconcilerSweeps,
		ReconcilerTransitions,
		ActivePipelines,
	)
}
