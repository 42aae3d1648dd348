package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the diary's Prometheus collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	EntriesSaved    prometheus.Counter
	EntriesDeleted  prometheus.Counter
	EntriesStored   prometheus.Gauge
	ImagesStored    prometheus.Counter
	StorageErrors   *prometheus.CounterVec
}

// New creates and registers every collector
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		EntriesSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "diary_entries_saved_total",
			Help: "Diary entries appended since start",
		}),
		EntriesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "diary_entries_deleted_total",
			Help: "Diary entries deleted since start",
		}),
		EntriesStored: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "diary_entries",
			Help: "Entries currently in the diary",
		}),
		ImagesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "diary_images_stored_total",
			Help: "Photos uploaded since start",
		}),
		StorageErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "diary_storage_errors_total",
				Help: "Storage failures by error type",
			},
			[]string{"type"},
		),
	}

	registry.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.EntriesSaved,
		m.EntriesDeleted,
		m.EntriesStored,
		m.ImagesStored,
		m.StorageErrors,
	)
	return m
}

// Handler serves the exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
