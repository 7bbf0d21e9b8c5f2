package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// scansTotal counts scans by result.
	scansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playground_reconcile_scans_total",
		Help: "Total reconciliation scans by result",
	}, []string{"result"})

	// iterationsAdded counts iterations materialized on the canvas.
	iterationsAdded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playground_reconcile_iterations_added_total",
		Help: "Total iterations added to the canvas by reconciliation",
	})

	// unresolvedTotal counts listing entries skipped for lack of a parent.
	unresolvedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playground_reconcile_unresolved_total",
		Help: "Total listing entries skipped because no parent resolved",
	})

	// collisionsTotal counts heuristic matches with more than one candidate root.
	collisionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playground_reconcile_collisions_total",
		Help: "Total root matches that had several equally good candidates",
	})

	// pollingActive is 1 while adaptive polling runs.
	pollingActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "playground_reconcile_polling_active",
		Help: "Whether adaptive polling is running",
	})
)
