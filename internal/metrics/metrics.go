// Package metrics exposes the Prometheus collectors of the lending core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lms"

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "path"},
	)

	// LendingOperations counts issue/return outcomes; outcome is "ok" or the
	// rejection code.
	LendingOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lending",
			Name:      "operations_total",
			Help:      "Issue and return operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	FinesAssessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lending",
			Name:      "fines_assessed_total",
			Help:      "Sum of fines charged on return, in currency units",
		},
	)

	InventoryCopies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "copies_total",
			Help:      "Copies added to or removed from institute inventories",
		},
		[]string{"direction"},
	)

	InternalConsistencyFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lending",
			Name:      "internal_consistency_failures_total",
			Help:      "Operations aborted because inventory and loans disagreed",
		},
	)

	OverdueLoans = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "lending",
			Name:      "overdue_loans",
			Help:      "Active loans held past the grace period, per institute",
		},
		[]string{"institute_id"},
	)
)
