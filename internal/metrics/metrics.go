// Package metrics collects Prometheus counters and histograms for scene
// generation, backend calls, and exports. A CLI process is short-lived, so
// the registry is flushed to a node-exporter textfile instead of served.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "storyreel"

// Result labels.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
)

// Metrics owns a private registry. A nil *Metrics is a valid no-op.
type Metrics struct {
	registry *prometheus.Registry

	SceneGenerations *prometheus.CounterVec
	SceneDuration    prometheus.Histogram
	ServiceCalls     *prometheus.CounterVec
	ServiceDuration  *prometheus.HistogramVec
	Exports          *prometheus.CounterVec
	ExportDuration   prometheus.Histogram
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		SceneGenerations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scene_generations_total",
				Help:      "Scene generation attempts by result",
			},
			[]string{"result"},
		),
		SceneDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "scene_generation_seconds",
				Help:      "Wall time of one joint video+narration scene generation",
				Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 900},
			},
		),
		ServiceCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "backend",
				Name:      "calls_total",
				Help:      "Generation backend calls by service and status",
			},
			[]string{"service", "status"},
		),
		ServiceDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "backend",
				Name:      "call_seconds",
				Help:      "Generation backend call duration",
				Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"service"},
		),
		Exports: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "exports_total",
				Help:      "Export runs by result",
			},
			[]string{"result"},
		),
		ExportDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "export_seconds",
				Help:      "Export wall time",
				Buckets:   []float64{5, 15, 30, 60, 120, 300},
			},
		),
	}
}

// ObserveScene records one scene generation outcome.
func (m *Metrics) ObserveScene(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.SceneGenerations.WithLabelValues(result).Inc()
	if result != ResultSkipped {
		m.SceneDuration.Observe(elapsed.Seconds())
	}
}

// ObserveService records one backend call.
func (m *Metrics) ObserveService(service string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	status := ResultSuccess
	if err != nil {
		status = ResultFailure
	}
	m.ServiceCalls.WithLabelValues(service, status).Inc()
	m.ServiceDuration.WithLabelValues(service).Observe(elapsed.Seconds())
}

// ObserveExport records one export outcome.
func (m *Metrics) ObserveExport(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Exports.WithLabelValues(result).Inc()
	m.ExportDuration.Observe(elapsed.Seconds())
}

// WriteTextfile atomically writes the registry in text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
