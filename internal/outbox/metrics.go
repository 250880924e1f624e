package outbox

import "github.com/prometheus/client_golang/prometheus"

var (
	deliveredCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "health_service",
		Subsystem: "outbox",
		Name:      "events_delivered_total",
		Help:      "Number of aggregate events successfully published to Kafka, labeled by event type.",
	}, []string{"event_type"})

	supersededCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "health_service",
		Subsystem: "outbox",
		Name:      "events_superseded_total",
		Help:      "Number of aggregate events skipped because a newer event for the same day was in the batch.",
	})

	failedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "health_service",
		Subsystem: "outbox",
		Name:      "events_failed_total",
		Help:      "Number of aggregate events that failed to publish and were routed to the DLQ.",
	})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "health_service",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time spent fetching, delivering, and marking outbox batches.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	dlqCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "health_service",
		Subsystem: "outbox",
		Name:      "events_dlq_total",
		Help:      "Number of outbox events routed to the dead-letter table, labeled by topic.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(deliveredCounter, supersededCounter, failedCounter, batchDuration, dlqCounter)
}
