package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// CriticalMetrics exposes the current number of critical items.
type CriticalMetrics struct {
	ItemsGauge       *prometheus.GaugeVec // by kind
	OldestAgeGauge   prometheus.Gauge
	DerivationsTotal prometheus.Counter

	registry *prometheus.Registry
}

// NewCriticalMetrics creates and registers critical item metrics.
func NewCriticalMetrics(registry *prometheus.Registry) (*CriticalMetrics, error) {
	m := &CriticalMetrics{
		ItemsGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "logbook_critical_items",
			Help: "Number of critical items at the last derivation",
		}, []string{"kind"}),
		OldestAgeGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "logbook_critical_oldest_age_days",
			Help: "Age in days of the oldest critical item at the last derivation",
		}),
		DerivationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "logbook_critical_derivations_total",
			Help: "Total number of critical item derivations",
		}),
		registry: registry,
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register critical metrics: %w", err)
	}
	return m, nil
}

// Observe records the result of one derivation.
func (m *CriticalMetrics) Observe(perKind map[string]int, oldestAgeDays int) {
	m.DerivationsTotal.Inc()
	for kind, n := range perKind {
		m.ItemsGauge.WithLabelValues(kind).Set(float64(n))
	}
	m.OldestAgeGauge.Set(float64(oldestAgeDays))
}

// Describe implements the prometheus.Collector interface.
func (m *CriticalMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.ItemsGauge.Describe(ch)
	ch <- m.OldestAgeGauge.Desc()
	ch <- m.DerivationsTotal.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *CriticalMetrics) Collect(ch chan<- prometheus.Metric) {
	m.ItemsGauge.Collect(ch)
	ch <- m.OldestAgeGauge
	ch <- m.DerivationsTotal
}
