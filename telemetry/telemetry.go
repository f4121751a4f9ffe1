// Package telemetry exposes stream metrics to prometheus. Until
// InitializeTelemetry enables it, every metric is a no-op.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/santhosh-tekuri/binlog/v2/cfg"
)

const namespace = "binlog"

// nil when prometheus is disabled
var registry *prometheus.Registry

type (
	Counter interface {
		Inc()
		Add(float64)
	}
	Gauge interface {
		Counter
		Set(float64)
		Dec()
		Sub(float64)
		SetToCurrentTime()
	}
	Histogram interface {
		Observe(float64)
	}
	// CounterVec picks a counter by label values.
	CounterVec interface {
		With(labels ...string) Counter
	}
)

// NoopStat satisfies Counter, Gauge and Histogram, doing nothing.
type NoopStat struct{}

func (NoopStat) Inc()              {}
func (NoopStat) Dec()              {}
func (NoopStat) Add(float64)       {}
func (NoopStat) Sub(float64)       {}
func (NoopStat) Set(float64)       {}
func (NoopStat) SetToCurrentTime() {}
func (NoopStat) Observe(float64)   {}

type noopCounterVec struct{}

func (noopCounterVec) With(...string) Counter { return NoopStat{} }

type counterVec struct {
	*prometheus.CounterVec
}

func (v counterVec) With(labels ...string) Counter {
	return v.WithLabelValues(labels...)
}

func opts(subsystem, name, help string) prometheus.Opts {
	return prometheus.Opts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: help}
}

func NewCounter(subsystem, name, help string) Counter {
	if registry == nil {
		return NoopStat{}
	}
	c := prometheus.NewCounter(prometheus.CounterOpts(opts(subsystem, name, help)))
	registry.MustRegister(c)
	return c
}

func NewGauge(subsystem, name, help string) Gauge {
	if registry == nil {
		return NoopStat{}
	}
	g := prometheus.NewGauge(prometheus.GaugeOpts(opts(subsystem, name, help)))
	registry.MustRegister(g)
	return g
}

// NewHistogram uses prometheus default buckets if buckets is nil.
func NewHistogram(subsystem, name, help string, buckets []float64) Histogram {
	if registry == nil {
		return NoopStat{}
	}
	o := opts(subsystem, name, help)
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: o.Namespace,
		Subsystem: o.Subsystem,
		Name:      o.Name,
		Help:      o.Help,
		Buckets:   buckets,
	})
	registry.MustRegister(h)
	return h
}

func NewCounterVec(subsystem, name, help string, labels []string) CounterVec {
	if registry == nil {
		return noopCounterVec{}
	}
	v := prometheus.NewCounterVec(prometheus.CounterOpts(opts(subsystem, name, help)), labels)
	registry.MustRegister(v)
	return counterVec{v}
}

// InitializeTelemetry creates the registry when cfg.Config enables
// prometheus. Metrics made earlier stay no-ops.
func InitializeTelemetry() {
	p := cfg.Config.Prometheus
	if !p.Enabled {
		return
	}
	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	log.Info().Str("address", p.MetricsAddress()).Msg("serving prometheus metrics")
}

// GetMetricsHandler serves the registry, or returns nil while
// telemetry is off.
func GetMetricsHandler() http.Handler {
	if registry == nil {
		return nil
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}
