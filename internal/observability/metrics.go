// Package observability exposes Prometheus collectors for the realtime core.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReadingsIngested counts readings accepted by the ingestion pipeline.
	ReadingsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "terrasense_readings_ingested_total",
		Help: "Number of sensor readings ingested.",
	})

	// IngestFailures counts readings rejected or failed during ingestion.
	IngestFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "terrasense_ingest_failures_total",
		Help: "Number of readings that failed ingestion.",
	})

	// QueueDepth tracks the current length of the ingestion queue.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "terrasense_ingest_queue_depth",
		Help: "Current number of queued readings awaiting drain.",
	})

	// AlertsFired counts alerts delivered, labeled by source.
	AlertsFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "terrasense_alerts_fired_total",
		Help: "Number of alerts fired.",
	}, []string{"source"})

	// AlertsSuppressed counts rule firings suppressed by cooldown.
	AlertsSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "terrasense_alerts_suppressed_total",
		Help: "Number of rule firings suppressed by cooldown.",
	})

	// LiveConnections tracks currently connected live clients.
	LiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "terrasense_live_connections",
		Help: "Number of connected live clients.",
	})

	// PushDeliveries counts push notification sends, labeled by outcome.
	PushDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "terrasense_push_deliveries_total",
		Help: "Number of push delivery attempts.",
	}, []string{"outcome"})
)

// Alert source label values.
const (
	SourceRule     = "rule"
	SourceFastPath = "fast_path"
	SourceManual   = "manual"
)

// Push outcome label values.
const (
	OutcomeSent       = "sent"
	OutcomeFailed     = "failed"
	OutcomeGone       = "gone"
	OutcomeSuppressed = "suppressed"
)
