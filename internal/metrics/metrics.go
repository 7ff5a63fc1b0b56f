// Package metrics exposes prometheus instrumentation for the scheduler and
// the subagent dispatcher.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cronhub/internal/subagent"
)

// Metrics owns its own registry so tests can create instances freely without
// duplicate registration panics.
type Metrics struct {
	registry *prometheus.Registry

	ticks        prometheus.Counter
	launched     prometheus.Counter
	executions   *prometheus.CounterVec
	inFlight     prometheus.Gauge
	subagentRuns *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cronhub_scheduler_ticks_total",
			Help: "Completed scheduler poll cycles.",
		}),
		launched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cronhub_tasks_launched_total",
			Help: "Tasks launched by the scheduler.",
		}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cronhub_executions_total",
			Help: "Finished task executions by terminal status.",
		}, []string{"status"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cronhub_tasks_in_flight",
			Help: "Tasks currently executing.",
		}),
		subagentRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cronhub_subagent_runs_total",
			Help: "Subagent runs by mode and outcome.",
		}, []string{"mode", "outcome"}),
	}
	registry.MustRegister(m.ticks, m.launched, m.executions, m.inFlight, m.subagentRuns)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// TickCompleted implements the scheduler metrics hook.
func (m *Metrics) TickCompleted(launched int) {
	m.ticks.Inc()
	m.launched.Add(float64(launched))
}

// TaskStarted implements the scheduler metrics hook.
func (m *Metrics) TaskStarted() { m.inFlight.Inc() }

// TaskFinished implements the scheduler metrics hook.
func (m *Metrics) TaskFinished(status string) {
	m.inFlight.Dec()
	m.executions.WithLabelValues(status).Inc()
}

// RunStarted implements subagent.Observer.
func (m *Metrics) RunStarted(string, subagent.Request) {}

// RunFinished implements subagent.Observer.
func (m *Metrics) RunFinished(mode string, _ subagent.Request, result subagent.Result) {
	outcome := "success"
	if !result.Success {
		outcome = "failure"
	}
	m.subagentRuns.WithLabelValues(mode, outcome).Inc()
}
