// Package metrics holds the Prometheus metrics for the reservation domain.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects reservation lifecycle and ranking engine metrics.
type Metrics struct {
	ReservationsPlaced    prometheus.Counter
	ReservationsWithdrawn prometheus.Counter
	ReservationsExpired   prometheus.Counter
	MintConfirmations     prometheus.Counter
	Supersessions         prometheus.Counter
	RecomputeDuration     prometheus.Histogram
	LockContention        prometheus.Counter
	EventsPublished       *prometheus.CounterVec
	EventsDropped         prometheus.Counter
	EventPublishFailures  prometheus.Counter
}

// New creates and registers all reservation metrics on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers the metrics on a specific registerer. Tests pass a fresh
// registry to avoid duplicate registration across suites.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ReservationsPlaced: factory.NewCounter(prometheus.CounterOpts{
			Name: "egireserve_reservations_placed_total",
			Help: "Total reservations placed.",
		}),
		ReservationsWithdrawn: factory.NewCounter(prometheus.CounterOpts{
			Name: "egireserve_reservations_withdrawn_total",
			Help: "Total reservations withdrawn by their owners.",
		}),
		ReservationsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "egireserve_reservations_expired_total",
			Help: "Total reservations expired by the sweep.",
		}),
		MintConfirmations: factory.NewCounter(prometheus.CounterOpts{
			Name: "egireserve_mint_confirmations_total",
			Help: "Total successful mint confirmations.",
		}),
		Supersessions: factory.NewCounter(prometheus.CounterOpts{
			Name: "egireserve_supersessions_total",
			Help: "Total times a highest reservation was displaced.",
		}),
		RecomputeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "egireserve_recompute_duration_seconds",
			Help:    "Duration of ranking recomputes, including the store write.",
			Buckets: prometheus.DefBuckets,
		}),
		LockContention: factory.NewCounter(prometheus.CounterOpts{
			Name: "egireserve_item_lock_contention_total",
			Help: "Total per-item lock acquisitions that timed out.",
		}),
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "egireserve_events_published_total",
			Help: "Ranking events published, by event type.",
		}, []string{"type"}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "egireserve_events_dropped_total",
			Help: "Ranking events dropped because the dispatch inbox was full.",
		}),
		EventPublishFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "egireserve_event_publish_failures_total",
			Help: "Ranking event publishes that returned an error.",
		}),
	}
}
