// Package metrics exposes simulation telemetry as Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "risksim"

// Metrics implements montecarlo.Recorder on a Prometheus registry.
type Metrics struct {
	registry *prometheus.Registry

	runsStarted     prometheus.Counter
	runsFinished    *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	runsInFlight    prometheus.Gauge
	simulations     prometheus.Counter
	batches         prometheus.Counter
	chartSamples    *prometheus.CounterVec
	chartDuration   prometheus.Histogram
	rateLimited     prometheus.Counter
	websocketClient prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Pooled simulation runs started.",
		}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_finished_total",
			Help:      "Pooled simulation runs finished, by outcome.",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of pooled simulation runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"outcome"}),
		runsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_in_flight",
			Help:      "Pooled simulation runs currently executing.",
		}),
		simulations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulations_total",
			Help:      "Final capitals aggregated.",
		}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Batches aggregated.",
		}),
		chartSamples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chart_samples_total",
			Help:      "Chart path samples, by outcome.",
		}, []string{"outcome"}),
		chartDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chart_sample_duration_seconds",
			Help:      "Wall time of chart path sampling.",
			Buckets:   prometheus.DefBuckets,
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_rate_limited_total",
			Help:      "Run submissions rejected by the rate limiter.",
		}),
		websocketClient: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected progress stream clients.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.runsStarted,
		m.runsFinished,
		m.runDuration,
		m.runsInFlight,
		m.simulations,
		m.batches,
		m.chartSamples,
		m.chartDuration,
		m.rateLimited,
		m.websocketClient,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) RunStarted() {
	m.runsStarted.Inc()
	m.runsInFlight.Inc()
}

func (m *Metrics) RunFinished(outcome string, elapsed time.Duration) {
	m.runsInFlight.Dec()
	m.runsFinished.WithLabelValues(outcome).Inc()
	m.runDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (m *Metrics) BatchAggregated(simulations int) {
	m.batches.Inc()
	m.simulations.Add(float64(simulations))
}

func (m *Metrics) ChartSampled(outcome string, elapsed time.Duration) {
	m.chartSamples.WithLabelValues(outcome).Inc()
	m.chartDuration.Observe(elapsed.Seconds())
}

// RateLimited counts a rejected submission.
func (m *Metrics) RateLimited() { m.rateLimited.Inc() }

// ClientConnected and ClientDisconnected track websocket clients.
func (m *Metrics) ClientConnected()    { m.websocketClient.Inc() }
func (m *Metrics) ClientDisconnected() { m.websocketClient.Dec() }
