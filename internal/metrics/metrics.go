// Package metrics provides Prometheus metrics for the vitrina service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HistoryEventsAppended counts appended history events by kind.
	HistoryEventsAppended = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vitrina",
			Subsystem: "history",
			Name:      "events_appended_total",
			Help:      "Total number of history events appended by kind",
		},
		[]string{"kind"},
	)

	// IntegrityWarnings counts location-changing events that resolve to no location.
	IntegrityWarnings = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "vitrina",
			Subsystem: "history",
			Name:      "integrity_warnings_total",
			Help:      "Location-changing events found without a usable destination",
		},
	)

	// SnapshotSyncs counts snapshot synchronizations by result
	// (updated, unknown, failed).
	SnapshotSyncs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vitrina",
			Subsystem: "snapshot",
			Name:      "sync_total",
			Help:      "Snapshot synchronizations by result",
		},
		[]string{"result"},
	)

	// SnapshotRebuilds counts per-item results of rebuild runs.
	SnapshotRebuilds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vitrina",
			Subsystem: "snapshot",
			Name:      "rebuilt_items_total",
			Help:      "Items processed by snapshot rebuilds by result",
		},
		[]string{"result"},
	)

	// MovementTransitions counts movement request transitions by target status.
	MovementTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vitrina",
			Subsystem: "movements",
			Name:      "transitions_total",
			Help:      "Movement request state transitions by action",
		},
		[]string{"action"},
	)

	// HTTPRequestDuration tracks served HTTP request duration.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vitrina",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of served HTTP requests in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "status_code"},
	)
)

// Sync results.
const (
	ResultUpdated = "updated"
	ResultUnknown = "unknown"
	ResultFailed  = "failed"
)
