package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// BackupMetrics contains Prometheus metrics for snapshot operations. It
// implements Recorder so the backup package can report through it.
type BackupMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec

	registry *prometheus.Registry
}

var _ Recorder = (*BackupMetrics)(nil)

// NewBackupMetrics creates and registers snapshot metrics.
func NewBackupMetrics(registry *prometheus.Registry) (*BackupMetrics, error) {
	m := &BackupMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register backup metrics: %w", err)
	}
	return m, nil
}

func (m *BackupMetrics) initMetrics() {
	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logbook_backup_operations_total",
			Help: "Total number of snapshot operations",
		},
		[]string{"operation", "status"}, // operation: snapshot_create, snapshot_evict, snapshot_restore, ...
	)

	m.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "logbook_backup_operation_duration_seconds",
			Help:    "Time taken by snapshot operations",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount15), // 1ms to ~16s
		},
		[]string{"operation"},
	)

	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logbook_backup_errors_total",
			Help: "Total number of snapshot operation errors",
		},
		[]string{"operation", "error_type"},
	)
}

// RecordOperation implements Recorder.
func (m *BackupMetrics) RecordOperation(operation, status string) {
	m.operationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder.
func (m *BackupMetrics) RecordDuration(operation string, seconds float64) {
	m.operationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordError implements Recorder.
func (m *BackupMetrics) RecordError(operation, errorType string) {
	m.errorsTotal.WithLabelValues(operation, errorType).Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *BackupMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.operationsTotal.Describe(ch)
	m.operationDuration.Describe(ch)
	m.errorsTotal.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *BackupMetrics) Collect(ch chan<- prometheus.Metric) {
	m.operationsTotal.Collect(ch)
	m.operationDuration.Collect(ch)
	m.errorsTotal.Collect(ch)
}
