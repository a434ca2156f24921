// Package metrics exposes Prometheus counters and gauges for sync runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/desertthunder/radiosync/internal/models"
)

// Metrics holds Prometheus counters and gauges for the sync job.
type Metrics struct {
	registry          *prometheus.Registry
	runsTotal         *prometheus.CounterVec
	runDuration       prometheus.Histogram
	itemsCrawledTotal prometheus.Counter
	resolvedTotal     prometheus.Counter
	droppedTotal      prometheus.Counter
	removedTotal      prometheus.Counter
	insertedTotal     prometheus.Counter
	checkpoint        prometheus.Gauge
	lastSuccess       prometheus.Gauge
	requestsTotal     prometheus.Counter
	errorsTotal       prometheus.Counter
}

// New creates and registers the sync metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "radiosync_runs_total",
			Help: "Total number of sync runs by result",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "radiosync_run_duration_seconds",
			Help:    "Duration of sync runs",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		itemsCrawledTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radiosync_items_crawled_total",
			Help: "Total number of deduplicated tracks read from the source",
		}),
		resolvedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radiosync_tracks_resolved_total",
			Help: "Total number of tracks mapped to a destination id",
		}),
		droppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radiosync_tracks_dropped_total",
			Help: "Total number of tracks without an acceptable match",
		}),
		removedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radiosync_playlist_removed_total",
			Help: "Total number of playlist items removed for re-ranking",
		}),
		insertedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radiosync_playlist_inserted_total",
			Help: "Total number of playlist items inserted",
		}),
		checkpoint: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "radiosync_checkpoint_timestamp_seconds",
			Help: "Committed watermark as a unix timestamp",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "radiosync_last_success_timestamp_seconds",
			Help: "Finish time of the last successful run",
		}),
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radiosync_http_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "radiosync_http_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
	}

	registry.MustRegister(
		m.runsTotal,
		m.runDuration,
		m.itemsCrawledTotal,
		m.resolvedTotal,
		m.droppedTotal,
		m.removedTotal,
		m.insertedTotal,
		m.checkpoint,
		m.lastSuccess,
		m.requestsTotal,
		m.errorsTotal,
	)
	return m
}

// ObserveRun records the counters of a finished run.
func (m *Metrics) ObserveRun(run models.SyncRun) {
	result := "success"
	if run.Err != nil {
		result = "failure"
	}
	m.runsTotal.WithLabelValues(result).Inc()
	m.runDuration.Observe(run.Duration().Seconds())
	m.itemsCrawledTotal.Add(float64(run.Crawled))
	m.resolvedTotal.Add(float64(run.Resolved))
	m.droppedTotal.Add(float64(run.Dropped))
	m.removedTotal.Add(float64(run.Removed))
	m.insertedTotal.Add(float64(run.Inserted))

	if run.Committed != nil {
		m.SetCheckpoint(*run.Committed)
	}
	if run.Err == nil {
		m.lastSuccess.Set(float64(run.FinishedAt.Unix()))
	}
}

// SetCheckpoint sets the watermark gauge.
func (m *Metrics) SetCheckpoint(ts time.Time) {
	m.checkpoint.Set(float64(ts.Unix()))
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. the checkpoint).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
