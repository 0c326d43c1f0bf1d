// Package observability provides the HTTP server for health checks and
// Prometheus metrics endpoints.
//
// # Endpoints
//
//   - GET /healthz: Health check endpoint. Returns 200 if the server process
//     is running. Used by Docker HEALTHCHECK and Kubernetes liveness probes.
//
//   - GET /readyz: Readiness check endpoint. Returns 200 once the MCP server
//     is serving tool calls. Used by Kubernetes readiness probes and load
//     balancers.
//
//   - GET /metrics: Prometheus metrics in text exposition format. Includes
//     both Go runtime metrics and custom server metrics.
//
// # Custom Metrics
//
// The following server-specific metrics are exported:
//
//	┌──────────────────────────────────────┬─────────┬─────────────────────────────────────┐
//	│ Metric Name                          │ Type    │ Description                         │
//	├──────────────────────────────────────┼─────────┼─────────────────────────────────────┤
//	│ snowmcp_tool_invocations_total       │ Counter │ Tool invocations (by tool)          │
//	│ snowmcp_tool_errors_total            │ Counter │ Tool invocations reporting failure  │
//	│ snowmcp_tool_duration_seconds        │ Hist    │ Tool handler duration               │
//	│ snowmcp_sn_api_requests_total        │ Counter │ Total ServiceNow API requests       │
//	│ snowmcp_sn_api_errors_total          │ Counter │ ServiceNow API errors (by code)     │
//	│ snowmcp_sn_api_latency_seconds       │ Hist    │ ServiceNow API response latency     │
//	│ snowmcp_audit_events_total           │ Counter │ Audit events published to Kafka     │
//	│ snowmcp_audit_dropped_total          │ Counter │ Audit events dropped (full buffer)  │
//	└──────────────────────────────────────┴─────────┴─────────────────────────────────────┘
//
// # Usage
//
//	srv := observability.NewServer(":8080", logger)
//	go srv.Start(ctx)
//	// When ready:
//	srv.SetReady(true)
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ----- Prometheus Metrics -----

// Metrics holds all Prometheus metrics used by the server.
// Using promauto for automatic registration with the default registry.
var Metrics = struct {
	// Tool metrics
	ToolInvocationsTotal *prometheus.CounterVec
	ToolErrorsTotal      *prometheus.CounterVec
	ToolDuration         *prometheus.HistogramVec

	// ServiceNow API metrics
	SNAPIRequestsTotal *prometheus.CounterVec
	SNAPIErrorsTotal   *prometheus.CounterVec
	SNAPILatency       *prometheus.HistogramVec

	// Audit metrics
	AuditEventsTotal  *prometheus.CounterVec
	AuditDroppedTotal prometheus.Counter
}{
	ToolInvocationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snowmcp_tool_invocations_total",
		Help: "Total number of tool invocations.",
	}, []string{"tool"}),

	ToolErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snowmcp_tool_errors_total",
		Help: "Total number of tool invocations that reported failure.",
	}, []string{"tool"}),

	ToolDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "snowmcp_tool_duration_seconds",
		Help:    "Duration of tool handler execution.",
		Buckets: prometheus.DefBuckets,
	}, []string{"tool"}),

	SNAPIRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snowmcp_sn_api_requests_total",
		Help: "Total number of ServiceNow API requests.",
	}, []string{"method", "endpoint"}),

	SNAPIErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snowmcp_sn_api_errors_total",
		Help: "Total number of ServiceNow API errors by status code.",
	}, []string{"method", "status_code"}),

	SNAPILatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "snowmcp_sn_api_latency_seconds",
		Help:    "ServiceNow API response latency in seconds.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"method", "endpoint"}),

	AuditEventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snowmcp_audit_events_total",
		Help: "Total number of audit events published to Kafka.",
	}, []string{"table", "action"}),

	AuditDroppedTotal: promauto.NewCounter(prometheus.CounterOpts{
		Name: "snowmcp_audit_dropped_total",
		Help: "Total number of audit events dropped due to a full buffer.",
	}),
}

// ----- Health/Readiness Server -----

// Server provides HTTP endpoints for health checks, readiness probes,
// and Prometheus metrics.
type Server struct {
	addr   string
	ready  atomic.Bool
	logger *slog.Logger
	srv    *http.Server
}

// NewServer creates a new observability HTTP server.
func NewServer(addr string, logger *slog.Logger) *Server {
	s := &Server{
		addr:   addr,
		logger: logger.With("component", "observability"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.Handle("/metrics", promhttp.Handler())

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins listening for HTTP requests. Blocks until the context is
// cancelled, then gracefully shuts down the server.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("observability server starting", "addr", s.addr)

	go func() {
		<-ctx.Done()
		s.logger.Info("shutting down observability server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
	}()

	if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("observability server: %w", err)
	}
	return nil
}

// SetReady marks the server as ready (or not ready) for readiness probes.
// Call SetReady(true) once the MCP server is accepting tool calls.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
	s.logger.Info("readiness state changed", "ready", ready)
}

// handleHealth responds with 200 OK — the process is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, `{"status":"healthy"}`)
}

// handleReady responds with 200 if ready, 503 if not yet ready.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"ready"}`)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprintf(w, `{"status":"not_ready"}`)
	}
}
