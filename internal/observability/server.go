// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package observability provides HTTP endpoints for metrics and health checks.
package observability

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// ReadinessChecker returns whether the sandbox is active.
type ReadinessChecker func() bool

// Sandbox collectors are package-level so the lifecycle manager can record
// without holding a Server.
var (
	sandboxLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scriptbox_sandbox_loads_total",
			Help: "Sandbox construction attempts by outcome",
		},
		[]string{"outcome"},
	)
	sandboxActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "scriptbox_sandbox_active",
			Help: "1 while a sandbox instance is active",
		},
	)
	callInsForbidden = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scriptbox_callins_forbidden_total",
			Help: "Call-ins revoked by configuration",
		},
		[]string{"callin"},
	)
	callInInvocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scriptbox_callin_invocations_total",
			Help: "Call-in invocations by call-in and status",
		},
		[]string{"callin", "status"},
	)
)

// RecordSandboxLoad counts one construction attempt.
func RecordSandboxLoad(outcome string) {
	sandboxLoads.WithLabelValues(outcome).Inc()
}

// SetSandboxActive records whether a sandbox is live.
func SetSandboxActive(active bool) {
	if active {
		sandboxActive.Set(1)
		return
	}
	sandboxActive.Set(0)
}

// RecordCallInForbidden counts one revoked call-in.
func RecordCallInForbidden(name string) {
	callInsForbidden.WithLabelValues(name).Inc()
}

// RecordCallInInvocation counts one call-in delivered to a script.
func RecordCallInInvocation(name, status string) {
	callInInvocations.WithLabelValues(name, status).Inc()
}

// Metrics exposes the sandbox collectors registered with a Server.
type Metrics struct {
	SandboxLoads      *prometheus.CounterVec
	SandboxActive     prometheus.Gauge
	CallInsForbidden  *prometheus.CounterVec
	CallInInvocations *prometheus.CounterVec
}

// NewMetrics registers the sandbox collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SandboxLoads:      sandboxLoads,
		SandboxActive:     sandboxActive,
		CallInsForbidden:  callInsForbidden,
		CallInInvocations: callInInvocations,
	}
	reg.MustRegister(m.SandboxLoads, m.SandboxActive, m.CallInsForbidden, m.CallInInvocations)
	return m
}

// Server provides HTTP endpoints for observability (metrics and health probes).
type Server struct {
	addr       string
	listener   net.Listener
	httpServer *http.Server
	registry   *prometheus.Registry
	metrics    *Metrics
	isReady    ReadinessChecker
	running    atomic.Bool
}

// NewServer creates a new observability server. Readiness follows the checker,
// which the CLI wires to "a sandbox is active".
// addr: listen address in "host:port" format (e.g., "127.0.0.1:9100", ":9100" for all interfaces).
func NewServer(addr string, readinessChecker ReadinessChecker) *Server {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	metrics := NewMetrics(registry)

	s := &Server{
		addr:     addr,
		registry: registry,
		metrics:  metrics,
		isReady:  readinessChecker,
	}

	return s
}

// Metrics returns the sandbox metrics registered with this server.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Start serves /metrics and the health probes. Serve errors after Start
// returns arrive on the returned channel, which closes on Stop.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	mux.HandleFunc("/healthz/liveness", s.handleLiveness)
	mux.HandleFunc("/healthz/readiness", s.handleReadiness)

	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			slog.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	slog.Info("observability server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop shuts the server down gracefully. Stopping a server that is not
// running is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_observability_server").Wrap(err)
		}
	}

	slog.Info("observability server stopped")
	return nil
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// handleLiveness always returns 200.
func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // health check write error is acceptable, client may disconnect
	w.Write([]byte("ok\n"))
}

// handleReadiness returns 200 while a sandbox is active, 503 otherwise.
func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if s.isReady == nil || s.isReady() {
		w.WriteHeader(http.StatusOK)
		//nolint:errcheck // health check write error is acceptable, client may disconnect
		w.Write([]byte("ok\n"))
		return
	}

	w.WriteHeader(http.StatusServiceUnavailable)
	//nolint:errcheck // health check write error is acceptable, client may disconnect
	w.Write([]byte("not ready\n"))
}
