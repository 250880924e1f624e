package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	recordsIngestedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "health_service",
		Subsystem: "sync",
		Name:      "records_ingested_total",
		Help:      "Number of raw records accepted by sync, per record type.",
	}, []string{"record_type"})

	recordsRejectedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "health_service",
		Subsystem: "sync",
		Name:      "records_rejected_total",
		Help:      "Number of raw records rejected during decode, per record type.",
	}, []string{"record_type"})

	aggregationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "health_service",
		Subsystem: "aggregation",
		Name:      "duration_seconds",
		Help:      "Time spent reducing one day of records, per category.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
	}, []string{"category"})

	aggregatePersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "health_service",
		Subsystem: "persistence",
		Name:      "last_aggregate_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent daily aggregate written to Postgres.",
	})

	cacheLookupCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "health_service",
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Aggregate cache lookups by result (hit, miss, error).",
	}, []string{"result"})
)

func init() {
	prometheus.MustRegister(recordsIngestedCounter, recordsRejectedCounter, aggregationDuration, aggregatePersistGauge, cacheLookupCounter)
}

// RecordIngested counts accepted and rejected records of one sync batch.
func RecordIngested(recordType string, accepted, rejected int) {
	if accepted > 0 {
		recordsIngestedCounter.WithLabelValues(recordType).Add(float64(accepted))
	}
	if rejected > 0 {
		recordsRejectedCounter.WithLabelValues(recordType).Add(float64(rejected))
	}
}

// RecordAggregation observes the duration of one daily reduction.
func RecordAggregation(category string, d time.Duration) {
	aggregationDuration.WithLabelValues(category).Observe(d.Seconds())
}

// RecordAggregatePersisted updates the persistence watermark gauge.
func RecordAggregatePersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	aggregatePersistGauge.Set(float64(ts.Unix()))
}

// RecordCacheLookup counts a cache lookup outcome.
func RecordCacheLookup(result string) {
	cacheLookupCounter.WithLabelValues(result).Inc()
}
