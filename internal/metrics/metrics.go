// Package metrics exposes engine counters on a private Prometheus registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects per-event outcomes. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	events   *prometheus.CounterVec
	acks     *prometheus.CounterVec
	attempts *prometheus.HistogramVec
	lateness prometheus.Histogram
	lastRun  prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wodifyap_events_total",
			Help: "Executed events by action and outcome.",
		}, []string{"action", "outcome"}),
		acks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wodifyap_acknowledgements_total",
			Help: "Acknowledgements sent to the scheduling service by result.",
		}, []string{"result"}),
		attempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wodifyap_attempts",
			Help:    "Attempts made per event once its window opened.",
			Buckets: []float64{1, 2, 3, 5, 10, 20, 40, 60, 120},
		}, []string{"action"}),
		lateness: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wodifyap_window_lateness_seconds",
			Help:    "Delay between window open and the first attempt.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30},
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wodifyap_last_run_timestamp_seconds",
			Help: "Unix time the last engine run finished.",
		}),
	}
	m.registry.MustRegister(
		m.events, m.acks, m.attempts, m.lateness, m.lastRun,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Event(action, outcome string, attempts int) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(action, outcome).Inc()
	if attempts > 0 {
		m.attempts.WithLabelValues(action).Observe(float64(attempts))
	}
}

func (m *Metrics) Acknowledged(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.acks.WithLabelValues(result).Inc()
}

func (m *Metrics) Lateness(d time.Duration) {
	if m == nil || d < 0 {
		return
	}
	m.lateness.Observe(d.Seconds())
}

func (m *Metrics) RunFinished(at time.Time) {
	if m == nil {
		return
	}
	m.lastRun.Set(float64(at.Unix()))
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
