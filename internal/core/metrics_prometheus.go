package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsRecorder counts operations and observes their latency.
type PrometheusMetricsRecorder struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder registers the operation collectors with reg.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	r := &PrometheusMetricsRecorder{
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gearcore",
			Name:      "operations_total",
			Help:      "Service operations by name and outcome.",
		}, []string{"operation", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gearcore",
			Name:      "operation_duration_seconds",
			Help:      "Service operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	for _, c := range []prometheus.Collector{r.total, r.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	status := string(AuditStatusError)
	if success {
		status = string(AuditStatusSuccess)
	}
	r.total.WithLabelValues(operation, status).Inc()
	r.duration.WithLabelValues(operation).Observe(duration.Seconds())
}

// WatchSyncQueue exports the depth of q's pending and failed lists and its
// applied total.
func WatchSyncQueue(reg prometheus.Registerer, q *SyncQueue) error {
	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "gearcore",
			Subsystem: "sync",
			Name:      "pending",
			Help:      "Mutations waiting to be written to the record gateway.",
		}, func() float64 {
			pending, _, _ := q.Stats()
			return float64(pending)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "gearcore",
			Subsystem: "sync",
			Name:      "failed",
			Help:      "Mutations parked after exhausting their retries.",
		}, func() float64 {
			_, failed, _ := q.Stats()
			return float64(failed)
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "gearcore",
			Subsystem: "sync",
			Name:      "applied_total",
			Help:      "Mutations written to the record gateway.",
		}, func() float64 {
			_, _, applied := q.Stats()
			return float64(applied)
		}),
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
