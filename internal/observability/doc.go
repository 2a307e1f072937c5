// Package observability holds the gateway's Prometheus metrics and the
// redacting slog setup.
//
// Metrics cover chat completions by model and backend kind, request
// latency, script engine outcomes, the interactive queue depth, and
// config reloads. NewMetrics registers everything with the default
// registry, so it must be called once per process; the server exposes
// the collectors on /metrics.
//
// NewLogger wraps slog's JSON handler so that bearer tokens and api keys
// never reach the log stream, including values echoed back inside error
// messages. The patterns live in redactPatterns.
package observability
