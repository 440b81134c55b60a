package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the agent core.
type Metrics struct {
	ToolExecutions    *prometheus.CounterVec
	ToolDuration      *prometheus.HistogramVec
	TransportRetries  prometheus.Counter
	TurnsCompleted    *prometheus.CounterVec
	HookHandlerErrors prometheus.Counter
	QueueDepth        prometheus.Gauge
}

// NewMetrics creates and registers the collectors. Pass a fresh registerer
// in tests to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		ToolExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loom_tool_executions_total",
			Help: "Tool executions by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		ToolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loom_tool_duration_seconds",
			Help:    "Tool handler execution time.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
		TransportRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loom_transport_retries_total",
			Help: "Transport retries scheduled after retryable errors.",
		}),
		TurnsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loom_turns_total",
			Help: "Turns reaching a terminal status, by status.",
		}, []string{"status"}),
		HookHandlerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "loom_hook_handler_errors_total",
			Help: "Hook handler failures caught at the bus boundary.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "loom_prompt_queue_depth",
			Help: "Prompts buffered while a turn is active.",
		}),
	}
	reg.MustRegister(
		m.ToolExecutions,
		m.ToolDuration,
		m.TransportRetries,
		m.TurnsCompleted,
		m.HookHandlerErrors,
		m.QueueDepth,
	)
	return m
}
