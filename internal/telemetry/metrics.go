package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/and161185/storefront-sync/internal/model"
)

// Metrics records sync runs and price resolutions.
type Metrics struct {
	reg      *prometheus.Registry
	runs     *prometheus.CounterVec
	duration prometheus.Histogram
	items    prometheus.Counter
	prices   *prometheus.CounterVec
}

// NewMetrics registers collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sync_runs_total",
			Help: "Finished sync runs by outcome and reason.",
		}, []string{"outcome", "reason"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sync_duration_seconds",
			Help:    "Sync run wall time.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		items: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_items_total",
			Help: "Inventory items mirrored by successful runs.",
		}),
		prices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "price_resolutions_total",
			Help: "Price resolutions by method.",
		}, []string{"method"}),
	}
	reg.MustRegister(m.runs, m.duration, m.items, m.prices,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return m
}

func (m *Metrics) SyncFinished(ev Event) {
	m.runs.WithLabelValues(string(ev.Outcome), ev.Reason).Inc()
	m.duration.Observe(float64(ev.DurationMs) / 1000)
	if ev.Type == TypeSyncCompleted {
		m.items.Add(float64(ev.ItemCount))
	}
}

func (m *Metrics) PriceResolved(method model.PriceMethod) {
	m.prices.WithLabelValues(string(method)).Inc()
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Gauge registers a gauge sampled from fn at scrape time.
func (m *Metrics) Gauge(name, help string, fn func() int) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help},
		func() float64 { return float64(fn()) }))
}
