package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting gateway metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Chat completion traffic per model and backend kind
//   - Request latency per backend kind
//   - Script engine call outcomes
//   - Parked interactive requests
//   - Config reload outcomes
type Metrics struct {
	// RequestCounter tracks chat completions by served model, backend
	// kind, and outcome.
	// Labels: model (public id), kind (static|script|interactive), status (ok|error)
	RequestCounter *prometheus.CounterVec

	// RequestDuration measures chat completion latency in seconds.
	// Labels: kind (static|script|interactive)
	// Buckets: 1ms to 30s
	RequestDuration *prometheus.HistogramVec

	// ScriptEvalCounter counts script handler calls.
	// Labels: model (public id), status (ok|error|timeout)
	ScriptEvalCounter *prometheus.CounterVec

	// InteractivePending is a gauge of requests parked for an operator.
	InteractivePending prometheus.Gauge

	// ReloadCounter counts config reload attempts.
	// Labels: result (ok|error|debounced)
	ReloadCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
// This should be called once at application startup.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mockllm_requests_total",
				Help: "Total number of chat completion requests by model, kind, and status",
			},
			[]string{"model", "kind", "status"},
		),

		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mockllm_request_duration_seconds",
				Help:    "Duration of chat completion requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30},
			},
			[]string{"kind"},
		),

		ScriptEvalCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mockllm_script_evals_total",
				Help: "Total number of script handler calls by model and status",
			},
			[]string{"model", "status"},
		),

		InteractivePending: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mockllm_interactive_pending",
				Help: "Current number of interactive requests awaiting an operator",
			},
		),

		ReloadCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mockllm_reloads_total",
				Help: "Total number of config reload attempts by result",
			},
			[]string{"result"},
		),
	}
}

// RecordRequest records one chat completion.
func (m *Metrics) RecordRequest(model, kind, status string, durationSeconds float64) {
	m.RequestCounter.WithLabelValues(model, kind, status).Inc()
	m.RequestDuration.WithLabelValues(kind).Observe(durationSeconds)
}

// RecordScriptEval records one script handler call.
func (m *Metrics) RecordScriptEval(model, status string) {
	m.ScriptEvalCounter.WithLabelValues(model, status).Inc()
}

// RecordReload records one reload attempt.
func (m *Metrics) RecordReload(result string) {
	m.ReloadCounter.WithLabelValues(result).Inc()
}
