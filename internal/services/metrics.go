package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the application
type Metrics struct {
	// Sesh lifecycle metrics
	SeshesStarted prometheus.Counter
	SeshesEnded   prometheus.Counter
	RateLimited   prometheus.Counter

	// Offline sync metrics
	SyncRuns     prometheus.Counter
	SyncOutcomes *prometheus.CounterVec
	QueueDepth   prometheus.Gauge
}

// InitMetrics initializes the Prometheus metrics
func InitMetrics() *Metrics {
	return &Metrics{
		SeshesStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "seshtrack_seshes_started_total",
			Help: "Total number of poop seshes started",
		}),
		SeshesEnded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "seshtrack_seshes_ended_total",
			Help: "Total number of poop seshes ended",
		}),
		RateLimited: promauto.NewCounter(prometheus.CounterOpts{
			Name: "seshtrack_sesh_starts_rate_limited_total",
			Help: "Total number of sesh starts refused by the 5-minute rate limit",
		}),

		SyncRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "seshtrack_offline_sync_runs_total",
			Help: "Total number of offline queue sync runs",
		}),
		SyncOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "seshtrack_offline_sync_items_total",
			Help: "Offline queue items settled during sync, by outcome",
		}, []string{"outcome"}), // "synced" or "failed"
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "seshtrack_offline_queue_depth",
			Help: "Number of seshes currently waiting in the offline queue",
		}),
	}
}
