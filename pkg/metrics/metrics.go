package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels shared by the booking and lifecycle counters.
const (
	OutcomeOK           = "ok"
	OutcomeAlreadyHeld  = "already_held"
	OutcomeUnavailable  = "unavailable"
	OutcomePrecondition = "precondition_failed"
	OutcomeNotFound     = "not_found"
	OutcomeInvalid      = "invalid"
	OutcomeStorage      = "storage_unavailable"
	OutcomeError        = "error"
)

// Metrics holds all application metrics
type Metrics struct {
	// Booking related metrics
	Reservations   *prometheus.CounterVec
	Transitions    *prometheus.CounterVec
	MirrorFailures *prometheus.CounterVec
	ReconcileFixes *prometheus.CounterVec

	// Worker metrics
	ReconcileRuns    *prometheus.CounterVec
	ReconcileLatency prometheus.Histogram
	EventsConsumed   *prometheus.CounterVec

	// Nearby search metrics
	NearbyLatency prometheus.Histogram
	NearbyResults prometheus.Histogram

	// Redis metrics
	EventsPublished *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec
}

// New creates the collectors without registering them, so tests can build as
// many instances as they like. Call Register once in main.
func New(namespace string) *Metrics {
	return &Metrics{
		Reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "reservations_total",
			Help:      "Reservation attempts by outcome",
		}, []string{"outcome"}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "transitions_total",
			Help:      "Slot lifecycle transitions by kind and outcome",
		}, []string{"transition", "outcome"}),
		MirrorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "mirror_failures_total",
			Help:      "Student booking mirror writes that failed after the slot changed",
		}, []string{"operation"}),
		ReconcileFixes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "reconcile_fixes_total",
			Help:      "Student booking mirror rows repaired by the reconciler",
		}, []string{"kind"}),

		ReconcileRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "reconcile_runs_total",
			Help:      "Reconciler passes by status",
		}, []string{"status"}),
		ReconcileLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "reconcile_duration_seconds",
			Help:      "Time spent in one reconciler pass",
			Buckets:   prometheus.DefBuckets,
		}),
		EventsConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "events_consumed_total",
			Help:      "Slot events read back from the broker by type",
		}, []string{"type"}),

		NearbyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "nearby",
			Name:      "query_duration_seconds",
			Help:      "Time spent answering nearby searches",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		NearbyResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "nearby",
			Name:      "clinics_returned",
			Help:      "Number of clinics returned per nearby search",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),

		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Slot events handed to the broker by status",
		}, []string{"type", "status"}),

		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latencies",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Reservations,
		m.Transitions,
		m.MirrorFailures,
		m.ReconcileFixes,
		m.ReconcileRuns,
		m.ReconcileLatency,
		m.EventsConsumed,
		m.NearbyLatency,
		m.NearbyResults,
		m.EventsPublished,
		m.HTTPRequests,
		m.HTTPLatency,
	}
}

// Register adds every collector to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
