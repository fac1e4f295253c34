// Package metrics defines the Prometheus collectors of the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "trainfinder"

// Railway cache request results
const (
	CacheHit     = "hit"
	CacheReverse = "reverse"
	CacheMiss    = "miss"
)

// Final stop lookup results
const (
	FinalStopResolved  = "resolved"
	FinalStopUnmatched = "unmatched"
	FinalStopError     = "error"
)

type Metrics struct {
	RefreshDuration      prometheus.Histogram
	RefreshSkipped       prometheus.Counter
	StationsPolled       prometheus.Counter
	DepartureFetchErrors prometheus.Counter
	RidesTracked         prometheus.Gauge
	TrainsActive         prometheus.Gauge
	RailwayCacheRequests *prometheus.CounterVec
	PathNotFound         prometheus.Counter
	FinalStopLookups     *prometheus.CounterVec
}

// New registers the collectors with reg. A nil reg creates an unregistered set,
// which is what tests use.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RefreshDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Duration of a departure refresh cycle.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
		RefreshSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_skipped_total",
			Help:      "Refresh ticks skipped because the previous cycle was still running.",
		}),
		StationsPolled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stations_polled_total",
			Help:      "Departure boards requested.",
		}),
		DepartureFetchErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "departure_fetch_errors_total",
			Help:      "Departure board requests that failed.",
		}),
		RidesTracked: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rides_tracked",
			Help:      "Rides currently tracked.",
		}),
		TrainsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "trains_active",
			Help:      "Trains with an estimated position in the last publish.",
		}),
		RailwayCacheRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "railway_cache_requests_total",
			Help:      "Railway lookups by cache result.",
		}, []string{"result"}),
		PathNotFound: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "path_not_found_total",
			Help:      "Railway lookups without a path between the stations.",
		}),
		FinalStopLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "final_stop_lookups_total",
			Help:      "Travel advice lookups for the final stop of a ride.",
		}, []string{"result"}),
	}
}
