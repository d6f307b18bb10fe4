// Package metrics exposes turn and provider-call counters in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BTreeMap/CravingCompanion/internal/models"
	"github.com/BTreeMap/CravingCompanion/internal/provider"
)

// Metrics owns a private registry so tests and multiple servers do not collide.
type Metrics struct {
	registry        *prometheus.Registry
	turns           *prometheus.CounterVec
	providerCalls   *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
}

// New creates the collectors and registers them with Go runtime and process metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "craving_turns_total",
				Help: "Conversation turns served, by stage and reply source",
			},
			[]string{"stage", "source"},
		),
		providerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "craving_provider_calls_total",
				Help: "Generation provider calls, by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		providerLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "craving_provider_latency_seconds",
				Help:    "Latency of generation provider calls",
				Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
			},
			[]string{"provider"},
		),
	}
	m.registry.MustRegister(
		m.turns,
		m.providerCalls,
		m.providerLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveTurn counts a completed turn.
func (m *Metrics) ObserveTurn(stage models.StageKey, source models.ReplySource) {
	m.turns.WithLabelValues(string(stage), string(source)).Inc()
}

// ObserveProviderCall counts a provider call and records its latency.
func (m *Metrics) ObserveProviderCall(name string, kind provider.OutcomeKind, elapsed time.Duration) {
	m.providerCalls.WithLabelValues(name, kind.String()).Inc()
	m.providerLatency.WithLabelValues(name).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
