package housekeeper

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exports cycle results as Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	cycles         *prometheus.CounterVec
	recordsDeleted *prometheus.CounterVec
	tableFailures  *prometheus.CounterVec
	cycleDuration  prometheus.Histogram
	period         prometheus.Gauge
	lastCycle      prometheus.Gauge
}

// NewMetrics registers the housekeeper collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		cycles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proxyhk_cycles_total",
				Help: "Total number of housekeeping cycles",
			},
			[]string{"trigger", "outcome"},
		),

		recordsDeleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proxyhk_records_deleted_total",
				Help: "Total number of rows removed from buffered tables",
			},
			[]string{"table"},
		),

		tableFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proxyhk_table_failures_total",
				Help: "Total number of failed per-table passes",
			},
			[]string{"table"},
		),

		cycleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "proxyhk_cycle_duration_seconds",
				Help:    "Duration of housekeeping cycles in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 10), // 10ms to ~43m
			},
		),

		period: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "proxyhk_schedule_period_seconds",
				Help: "Housekeeping period used by the last cycle",
			},
		),

		lastCycle: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "proxyhk_last_cycle_timestamp_seconds",
				Help: "Unix time the last cycle finished",
			},
		),
	}
}

// RecordCycle implements CycleRecorder.
func (m *Metrics) RecordCycle(r RunResult) {
	m.cycles.WithLabelValues(string(r.Trigger), r.Outcome()).Inc()
	m.cycleDuration.Observe(r.Duration.Seconds())
	m.period.Set(float64(r.PeriodSeconds))
	m.lastCycle.SetToCurrentTime()

	if r.PerTable != nil {
		for el := r.PerTable.Front(); el != nil; el = el.Next() {
			m.recordsDeleted.WithLabelValues(el.Key).Add(float64(el.Value))
		}
	}
	for _, table := range r.Failed {
		m.tableFailures.WithLabelValues(table).Inc()
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
