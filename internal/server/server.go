// Package server exposes the OpenAI-compatible surface and wires the
// admin API, Prometheus metrics, and the embedded dashboard onto one
// HTTP listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/llm-lab/mockllm/internal/admin"
	"github.com/llm-lab/mockllm/internal/interactive"
	"github.com/llm-lab/mockllm/internal/kernel"
	"github.com/llm-lab/mockllm/internal/observability"
	"github.com/llm-lab/mockllm/internal/webui"
)

// Server serves the gateway's HTTP surface.
type Server struct {
	handle  *kernel.Handle
	hub     *interactive.Hub
	metrics *observability.Metrics
	log     *slog.Logger
	version string
	started time.Time

	httpServer *http.Server
	listener   net.Listener
}

// Options configures a Server. Metrics may be nil in tests.
type Options struct {
	Handle  *kernel.Handle
	Hub     *interactive.Hub
	Metrics *observability.Metrics
	Logger  *slog.Logger
	Version string
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		handle:  opts.Handle,
		hub:     opts.Hub,
		metrics: opts.Metrics,
		log:     logger.With("component", "server"),
		version: opts.Version,
		started: time.Now(),
	}
}

// Handler assembles the full route table behind the request-id and
// logging middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/chat/completions", s.handleChat)
	mux.HandleFunc("/v1/models", s.handleModels)
	mux.HandleFunc("/v1/models/", s.handleModel)

	adm := admin.New(admin.Options{
		Handle:  s.handle,
		Hub:     s.hub,
		Logger:  s.log,
		Version: s.version,
		Started: s.started,
	})
	adm.Register(mux)

	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", webui.Handler())

	return RequestID(Logging(s.log)(mux))
}

// Start binds addr and serves in the background until Shutdown.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("invalid listen addr %s: %w", addr, err)
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server error", "error", err)
		}
	}()

	s.log.Info("listening", "addr", listener.Addr().String())
	return nil
}

// Addr reports the bound address after Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
