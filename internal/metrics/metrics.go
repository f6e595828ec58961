// Package metrics exposes the till core's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/hyperengineering/till/internal/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "till"

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	pending       prometheus.Gauge
	online        prometheus.Gauge
	salesTotal    *prometheus.CounterVec
	catalogLoads  *prometheus.CounterVec
	syncedTotal   prometheus.Counter
	failedTotal   prometheus.Counter
	syncCycles    prometheus.Counter
	syncDuration  prometheus.Histogram
	backupsTotal  *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDurations *prometheus.HistogramVec
}

// New creates and registers every collector, plus the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_sales",
			Help:      "Sales captured locally and not yet synced.",
		}),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online",
			Help:      "1 when the platform reports connectivity.",
		}),
		salesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sales_committed_total",
			Help:      "Committed sales by destination.",
		}, []string{"destination"}),
		catalogLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_loads_total",
			Help:      "Catalog loads by source.",
		}, []string{"source"}),
		syncedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "sales_synced_total",
			Help:      "Pending sales pushed to the remote store.",
		}),
		failedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "sales_failed_total",
			Help:      "Pending sale sync attempts that failed.",
		}),
		syncCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "cycles_total",
			Help:      "Completed sync cycles.",
		}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of sync cycles.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		backupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_total",
			Help:      "Local store backups by result.",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	m.registry.MustRegister(
		m.pending, m.online, m.salesTotal, m.catalogLoads,
		m.syncedTotal, m.failedTotal, m.syncCycles, m.syncDuration,
		m.backupsTotal, m.httpRequests, m.httpDurations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) SetPending(n int) {
	m.pending.Set(float64(n))
}

func (m *Metrics) SetOnline(online bool) {
	if online {
		m.online.Set(1)
	} else {
		m.online.Set(0)
	}
}

func (m *Metrics) SaleCommitted(persistedRemotely bool) {
	dest := "local"
	if persistedRemotely {
		dest = "remote"
	}
	m.salesTotal.WithLabelValues(dest).Inc()
}

func (m *Metrics) CatalogLoaded(source types.CatalogSource) {
	m.catalogLoads.WithLabelValues(string(source)).Inc()
}

func (m *Metrics) SyncCompleted(synced, failed int, elapsed time.Duration) {
	m.syncCycles.Inc()
	m.syncedTotal.Add(float64(synced))
	m.failedTotal.Add(float64(failed))
	m.syncDuration.Observe(elapsed.Seconds())
}

// BackupCompleted counts a backup attempt.
func (m *Metrics) BackupCompleted(err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.backupsTotal.WithLabelValues(result).Inc()
}

// ObserveHTTP records one handled request. route is the matched pattern,
// not the raw path.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDurations.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
