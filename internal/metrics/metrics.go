// Package metrics registers the tracker's Prometheus collectors with the
// default registry. The server exposes them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TogglesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "habits_toggles_total",
		Help: "Completion toggles by outcome",
	}, []string{"result"})

	MaterializedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "habits_materialized_total",
		Help: "Default completion facts written for today",
	})

	ViewDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "habits_view_duration_seconds",
		Help:    "Time to reconstruct a view",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	}, []string{"view"})

	AggregateMismatches = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "habits_aggregate_mismatches",
		Help: "Cache rows that disagreed with the ledger at the last verify",
	})

	AggregateRebuildsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "habits_aggregate_rebuilds_total",
		Help: "Habits whose weekly aggregates were rebuilt from the ledger",
	})

	BackupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "habits_backups_total",
		Help: "Backup runs by outcome",
	}, []string{"result"})
)
