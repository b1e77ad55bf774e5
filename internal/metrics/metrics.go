// Package metrics records scenario, request and verification metrics in a
// private Prometheus registry. The CLI writes the registry to a textfile for
// the node exporter textfile collector after a run.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const Namespace = "rwacheck"

// Metrics holds every collector of one run.
type Metrics struct {
	registry *prometheus.Registry

	scenariosTotal   *prometheus.CounterVec
	scenarioDuration *prometheus.HistogramVec
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	retriesTotal     *prometheus.CounterVec
	pollsTotal       *prometheus.CounterVec
	pollAttempts     prometheus.Histogram
	lastRun          prometheus.Gauge
}

// New creates a Metrics with its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		scenariosTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "scenarios_total",
			Help:      "Scenarios executed, by result and failure kind",
		}, []string{"result", "kind"}),
		scenarioDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "scenario_duration_seconds",
			Help:      "Wall time of one scenario",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"result"}),
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "requests_total",
			Help:      "HTTP requests sent to the application, by method and status code",
		}, []string{"method", "code"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		retriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "request_retries_total",
			Help:      "Idempotent requests retried after a transient failure",
		}, []string{"method"}),
		pollsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "verification_polls_total",
			Help:      "Persisted-state verifications, by outcome",
		}, []string{"outcome"}),
		pollAttempts: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "verification_attempts",
			Help:      "Datastore reloads needed per verification",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
		}),
		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last suite finished",
		}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordScenario counts one scenario outcome. kind is empty for a pass.
func (m *Metrics) RecordScenario(pass bool, kind string, duration time.Duration) {
	result := "pass"
	if !pass {
		result = "fail"
	}
	if kind == "" {
		kind = "none"
	}
	m.scenariosTotal.WithLabelValues(result, kind).Inc()
	m.scenarioDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// ObserveRequest records one HTTP exchange.
func (m *Metrics) ObserveRequest(method string, status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordRetry counts one retried request.
func (m *Metrics) RecordRetry(method string) {
	m.retriesTotal.WithLabelValues(method).Inc()
}

// RecordPoll records a finished verification and how many reloads it took.
func (m *Metrics) RecordPoll(attempts int, satisfied bool) {
	outcome := "satisfied"
	if !satisfied {
		outcome = "timeout"
	}
	m.pollsTotal.WithLabelValues(outcome).Inc()
	m.pollAttempts.Observe(float64(attempts))
}

// MarkRun sets the last-run gauge.
func (m *Metrics) MarkRun(at time.Time) {
	m.lastRun.Set(float64(at.Unix()))
}

// WriteTextfile writes the registry in the Prometheus text format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
