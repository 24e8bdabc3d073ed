package ormion

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts and times the statements a DB issues, labelled by operation
// (SELECT, COUNT, INSERT, UPDATE, DELETE, BEGIN, COMMIT).
type Metrics struct {
	statements *prometheus.CounterVec
	failures   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetrics creates unregistered collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		statements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ormion",
			Name:      "statements_total",
			Help:      "Statements issued, by operation.",
		}, []string{"operation"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ormion",
			Name:      "statement_failures_total",
			Help:      "Statements that returned an error, by operation.",
		}, []string{"operation"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ormion",
			Name:      "statement_duration_seconds",
			Help:      "Statement latency, by operation.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"operation"}),
	}
}

// Collectors returns the collectors for custom registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.statements, m.failures, m.duration}
}

// Register registers the collectors. Collectors that are already registered
// are reused.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for i, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
			switch i {
			case 0:
				m.statements = are.ExistingCollector.(*prometheus.CounterVec)
			case 1:
				m.failures = are.ExistingCollector.(*prometheus.CounterVec)
			case 2:
				m.duration = are.ExistingCollector.(*prometheus.HistogramVec)
			}
		}
	}
	return nil
}

// Statements returns the number of statements issued for an operation.
func (m *Metrics) Statements(operation string) prometheus.Counter {
	return m.statements.WithLabelValues(operation)
}

func (m *Metrics) observe(operation string, start time.Time, err error) {
	m.statements.WithLabelValues(operation).Inc()
	m.duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		m.failures.WithLabelValues(operation).Inc()
	}
}
