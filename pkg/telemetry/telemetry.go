// Package telemetry defines the Prometheus metrics of the dashboard service.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pulse"

// Fetch outcomes
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeCancelled = "cancelled"
)

var histogramBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

// Metrics holds every collector of the service
type Metrics struct {
	Fetches          *prometheus.CounterVec
	FetchDuration    prometheus.Histogram
	RetriesScheduled prometheus.Counter
	RetriesExhausted prometheus.Counter
	RealtimeEvents   *prometheus.CounterVec
	FeedWindow       prometheus.Gauge
	FeedInjected     prometheus.Counter
	Searches         *prometheus.CounterVec
	Exports          *prometheus.CounterVec
	StreamClients    prometheus.Gauge
	Requests         *prometheus.CounterVec
	RequestLatency   *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "fetches_total",
			Help:      "Snapshot fetch cycles by trigger and outcome",
		}, []string{"trigger", "outcome"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of successful fetch cycles",
			Buckets:   histogramBuckets,
		}),
		RetriesScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "retries_scheduled_total",
			Help:      "Automatic fetch retries scheduled",
		}),
		RetriesExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poller",
			Name:      "retries_exhausted_total",
			Help:      "Failure streaks that used up the retry budget",
		}),
		RealtimeEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "events_total",
			Help:      "Push events applied to the snapshot by type",
		}, []string{"type"}),
		FeedWindow: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "window_items",
			Help:      "Items currently revealed by the activity feed",
		}),
		FeedInjected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "injected_total",
			Help:      "Real-time items prepended to the activity feed",
		}),
		Searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "queries_total",
			Help:      "Accepted search queries by index",
		}, []string{"index"}),
		Exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "files_total",
			Help:      "Generated export files by kind and format",
		}, []string{"kind", "format"}),
		StreamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "clients",
			Help:      "Connected WebSocket clients",
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"method", "route", "status"}),
		RequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers",
			Buckets:   histogramBuckets,
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		m.Fetches,
		m.FetchDuration,
		m.RetriesScheduled,
		m.RetriesExhausted,
		m.RealtimeEvents,
		m.FeedWindow,
		m.FeedInjected,
		m.Searches,
		m.Exports,
		m.StreamClients,
		m.Requests,
		m.RequestLatency,
	)
	return m
}

// FetchFinished records one fetch cycle
func (m *Metrics) FetchFinished(trigger, outcome string, d time.Duration) {
	m.Fetches.WithLabelValues(trigger, outcome).Inc()
	if outcome == OutcomeSuccess {
		m.FetchDuration.Observe(d.Seconds())
	}
}

// Request records one served HTTP request
func (m *Metrics) Request(method, route string, status int, d time.Duration) {
	labels := prometheus.Labels{"method": method, "route": route, "status": strconv.Itoa(status)}
	m.Requests.With(labels).Inc()
	m.RequestLatency.With(labels).Observe(d.Seconds())
}

// Searched records one accepted search query
func (m *Metrics) Searched(index string) {
	m.Searches.WithLabelValues(index).Inc()
}

// Exported records one generated export file
func (m *Metrics) Exported(kind, format string) {
	m.Exports.WithLabelValues(kind, format).Inc()
}

// Handler serves the metrics gathered by g in the Prometheus text format
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
