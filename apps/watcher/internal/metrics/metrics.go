package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline counters, partitioned by chain.

var (
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transferwatch",
		Subsystem: "pipeline",
		Name:      "runs_total",
		Help:      "Pipeline runs by outcome",
	}, []string{"chain", "outcome"})

	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "transferwatch",
		Subsystem: "pipeline",
		Name:      "run_duration_seconds",
		Help:      "Wall time of a full pipeline run",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"chain"})

	RangesScanned = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transferwatch",
		Subsystem: "pipeline",
		Name:      "ranges_scanned_total",
		Help:      "Block sub-ranges fully scanned and committed",
	}, []string{"chain"})

	CheckpointBlock = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "transferwatch",
		Subsystem: "pipeline",
		Name:      "checkpoint_block",
		Help:      "Last committed block",
	}, []string{"chain"})

	// Source
	EventsFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transferwatch",
		Subsystem: "source",
		Name:      "events_fetched_total",
		Help:      "Raw events returned by the event source",
	}, []string{"chain"})

	FetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transferwatch",
		Subsystem: "source",
		Name:      "errors_total",
		Help:      "Sub-range fetches that failed after retries",
	}, []string{"chain"})

	// Normalizer
	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transferwatch",
		Subsystem: "normalizer",
		Name:      "events_dropped_total",
		Help:      "Raw events dropped during normalization",
	}, []string{"chain", "reason"})

	// Persistence
	RecordsPersisted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transferwatch",
		Subsystem: "persistence",
		Name:      "records_persisted_total",
		Help:      "Transfer records written (including idempotent rewrites)",
	}, []string{"chain"})

	ChunkFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transferwatch",
		Subsystem: "persistence",
		Name:      "chunk_failures_total",
		Help:      "Failed transfer chunk writes",
	}, []string{"chain"})

	// Notifications
	AlertCandidates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transferwatch",
		Subsystem: "notify",
		Name:      "alert_candidates_total",
		Help:      "Alert-worthy transfers found",
	}, []string{"chain"})

	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transferwatch",
		Subsystem: "notify",
		Name:      "messages_total",
		Help:      "Notification messages by status",
	}, []string{"chain", "status"})
)
