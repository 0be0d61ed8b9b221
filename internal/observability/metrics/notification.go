// Package metrics provides custom Prometheus metrics for notification operations.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// NotificationMetrics contains Prometheus metrics for in-app and push
// notifications.
type NotificationMetrics struct {
	NotificationsTotal       *prometheus.CounterVec   // created notifications by type
	ProviderDeliveriesTotal  *prometheus.CounterVec   // push deliveries by provider, status
	ProviderDeliveryDuration *prometheus.HistogramVec // push latency by provider

	registry *prometheus.Registry
}

// NewNotificationMetrics creates and registers notification metrics.
func NewNotificationMetrics(registry *prometheus.Registry) (*NotificationMetrics, error) {
	m := &NotificationMetrics{
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "logbook_notifications_total",
			Help: "Total number of notifications created",
		}, []string{"type"}),
		ProviderDeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "logbook_notification_deliveries_total",
			Help: "Total number of push deliveries",
		}, []string{"provider", "status"}),
		ProviderDeliveryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "logbook_notification_delivery_duration_seconds",
			Help:    "Time taken to deliver a push notification",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount15),
		}, []string{"provider"}),
		registry: registry,
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register notification metrics: %w", err)
	}
	return m, nil
}

// RecordNotification counts a created notification.
func (m *NotificationMetrics) RecordNotification(notificationType string) {
	m.NotificationsTotal.WithLabelValues(notificationType).Inc()
}

// RecordDelivery records a push delivery attempt.
func (m *NotificationMetrics) RecordDelivery(provider, status string, duration time.Duration) {
	m.ProviderDeliveriesTotal.WithLabelValues(provider, status).Inc()
	m.ProviderDeliveryDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// Describe implements the prometheus.Collector interface.
func (m *NotificationMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.NotificationsTotal.Describe(ch)
	m.ProviderDeliveriesTotal.Describe(ch)
	m.ProviderDeliveryDuration.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *NotificationMetrics) Collect(ch chan<- prometheus.Metric) {
	m.NotificationsTotal.Collect(ch)
	m.ProviderDeliveriesTotal.Collect(ch)
	m.ProviderDeliveryDuration.Collect(ch)
}
