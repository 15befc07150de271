package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Coordination and crawl metrics, exported for all three roles.
var (
	LiveWorkers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pagefleet_live_workers",
			Help: "Number of workers classified live on the last tick",
		},
		[]string{"role"},
	)

	LockRefreshFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagefleet_lock_refresh_failures_total",
			Help: "Total number of lock refresh attempts that lost ownership",
		},
		[]string{"role"},
	)

	AssignmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagefleet_assignments_total",
			Help: "Total number of page-range (re)assignments made by the manager",
		},
		[]string{"mode"},
	)

	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pagefleet_batch_duration_seconds",
			Help:    "Time from batch open to batch close for a general worker",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"general_id"},
	)

	PagesCrawled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagefleet_pages_crawled_total",
			Help: "Total number of listing pages extracted",
		},
		[]string{"product_id"},
	)

	RecordsUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagefleet_records_upserted_total",
			Help: "Total number of listing records upserted",
		},
		[]string{"product_id"},
	)

	ExtractionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagefleet_extraction_failures_total",
			Help: "Total number of per-record extraction failures",
		},
		[]string{"product_id"},
	)

	RebalanceEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagefleet_rebalance_events_total",
			Help: "Total number of Product-worker rebalance operations performed",
		},
		[]string{"general_id"},
	)

	CoordinatorLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pagefleet_coordinator_latency_seconds",
			Help:    "Latency of coordinator round trips",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"op"},
	)

	SessionValid = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pagefleet_session_valid",
			Help: "1 if the shared browser session is currently valid, 0 otherwise",
		},
		[]string{"role"},
	)
)
