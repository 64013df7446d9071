package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// FlushMetrics records the outcome of scheduled flush cycles per category.
type FlushMetrics struct {
	duration            *prometheus.HistogramVec
	success             *prometheus.CounterVec
	failure             *prometheus.CounterVec
	batchSize           *prometheus.HistogramVec
	buffered            *prometheus.GaugeVec
	consecutiveFailures *prometheus.GaugeVec
}

// NewFlushMetrics registers the flush metrics on the provided registerer.
func NewFlushMetrics(reg prometheus.Registerer) *FlushMetrics {
	if reg == nil {
		return &FlushMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flush_duration_seconds",
		Help:    "Duration of flush cycles in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"category"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flush_success",
		Help: "Successful flush cycles.",
	}, []string{"category"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flush_failure",
		Help: "Failed flush cycles.",
	}, []string{"category"})
	batchSize := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flush_batch_size",
		Help:    "Number of records written per flush cycle.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	}, []string{"category"})
	buffered := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "buffered_records",
		Help: "Records currently waiting in the buffer.",
	}, []string{"category"})
	consecutive := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "flush_consecutive_failures",
		Help: "Consecutive failed cycles per category; zero after a success.",
	}, []string{"category"})
	reg.MustRegister(duration, success, failure, batchSize, buffered, consecutive)
	return &FlushMetrics{
		duration:            duration,
		success:             success,
		failure:             failure,
		batchSize:           batchSize,
		buffered:            buffered,
		consecutiveFailures: consecutive,
	}
}

// ObserveDuration records the duration for the named category.
func (f *FlushMetrics) ObserveDuration(category string, duration time.Duration) {
	if f == nil || f.duration == nil {
		return
	}
	f.duration.WithLabelValues(normalizeLabel(category)).Observe(duration.Seconds())
}

// ObserveBatchSize records how many records a cycle attempted to write.
func (f *FlushMetrics) ObserveBatchSize(category string, size int) {
	if f == nil || f.batchSize == nil {
		return
	}
	f.batchSize.WithLabelValues(normalizeLabel(category)).Observe(float64(size))
}

// IncSuccess increments the success counter for the named category.
func (f *FlushMetrics) IncSuccess(category string) {
	if f == nil || f.success == nil {
		return
	}
	f.success.WithLabelValues(normalizeLabel(category)).Inc()
}

// IncFailure increments the failure counter for the named category.
func (f *FlushMetrics) IncFailure(category string) {
	if f == nil || f.failure == nil {
		return
	}
	f.failure.WithLabelValues(normalizeLabel(category)).Inc()
}

// SetBuffered reports the current buffer depth for the named category.
func (f *FlushMetrics) SetBuffered(category string, count int) {
	if f == nil || f.buffered == nil {
		return
	}
	f.buffered.WithLabelValues(normalizeLabel(category)).Set(float64(count))
}

// SetConsecutiveFailures reports the current failure streak for the category.
func (f *FlushMetrics) SetConsecutiveFailures(category string, count int) {
	if f == nil || f.consecutiveFailures == nil {
		return
	}
	f.consecutiveFailures.WithLabelValues(normalizeLabel(category)).Set(float64(count))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
