package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "gateway"

// Probe status values mirrored into the backend_up gauge.
const (
	probeStatusUp = "UP"
)

type Metrics struct {
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ForwardErrors   *prometheus.CounterVec
	RouteMisses     prometheus.Counter
	BackendUp       *prometheus.GaugeVec
	ProbeDuration   *prometheus.HistogramVec
	ProbeResults    *prometheus.CounterVec
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "forwarded_requests_total",
				Help:      "Requests relayed to a backend, by backend status code",
			},
			[]string{"service", "method", "code"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "forward_duration_seconds",
				Help:      "Time until the backend returned response headers",
				Buckets:   []float64{.005, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"service"},
		),
		ForwardErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "forward_errors_total",
				Help:      "Forwarding attempts that failed inside the gateway",
			},
			[]string{"service", "kind"},
		),
		RouteMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "route_misses_total",
				Help:      "Requests that matched no route",
			},
		),
		BackendUp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "backend_up",
				Help:      "1 if the last probe reported the backend UP",
			},
			[]string{"service"},
		),
		ProbeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "probe_duration_seconds",
				Help:      "Health probe latency including the root-path fallback",
				Buckets:   []float64{.005, .025, .1, .5, 1, 3, 6},
			},
			[]string{"service"},
		),
		ProbeResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "probe_results_total",
				Help:      "Health probe outcomes",
			},
			[]string{"service", "status"},
		),
	}

	registerer.MustRegister(
		m.Requests,
		m.RequestDuration,
		m.ForwardErrors,
		m.RouteMisses,
		m.BackendUp,
		m.ProbeDuration,
		m.ProbeResults,
	)

	return m
}

func (m *Metrics) RecordResponse(service, method string, statusCode int, duration time.Duration) {
	m.Requests.WithLabelValues(service, method, strconv.Itoa(statusCode)).Inc()
	m.RequestDuration.WithLabelValues(service).Observe(duration.Seconds())
}

func (m *Metrics) RecordFailure(service, kind string) {
	m.ForwardErrors.WithLabelValues(service, kind).Inc()
}

func (m *Metrics) RecordRouteMiss() {
	m.RouteMisses.Inc()
}

func (m *Metrics) RecordProbe(service, status string, duration time.Duration) {
	up := 0.0
	if status == probeStatusUp {
		up = 1
	}

	m.BackendUp.WithLabelValues(service).Set(up)
	m.ProbeDuration.WithLabelValues(service).Observe(duration.Seconds())
	m.ProbeResults.WithLabelValues(service, status).Inc()
}
