package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NotificationsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "photolabel",
		Name:      "notifications_received_total",
		Help:      "Change notifications received, by action taken",
	}, []string{"action"})

	JobsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "photolabel",
		Name:      "jobs_enqueued_total",
		Help:      "Label jobs appended to the queue, by source",
	}, []string{"source"})

	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "photolabel",
		Name:      "jobs_processed_total",
		Help:      "Label jobs handled, by outcome (completed, pending, dropped)",
	}, []string{"outcome"})

	JobStageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "photolabel",
		Name:      "job_stage_duration_seconds",
		Help:      "Duration of label job stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"stage"})

	QueuePending = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "photolabel",
		Name:      "queue_pending",
		Help:      "Delivered but unacknowledged entries in the label group",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "photolabel",
		Name:      "queue_depth",
		Help:      "Entries currently in the label stream",
	})

	SweptEntries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "photolabel",
		Name:      "sweeper_entries_total",
		Help:      "Pending entries reprocessed by the recovery sweeper",
	})

	ClusteringDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "photolabel",
		Name:      "clustering_pass_duration_seconds",
		Help:      "Duration of a clustering pass",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	CentroidsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "photolabel",
		Name:      "centroids_resolved_total",
		Help:      "Candidate clusters resolved by a clustering pass (created or matched)",
	}, []string{"result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "photolabel",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "photolabel",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
