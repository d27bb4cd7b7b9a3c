package http

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/auth"
)

// HTTPTransport serves the MCP surface, the admin API, health and metrics
// on one listener.
type HTTPTransport struct {
	mcp             *MCPServer
	server          *http.Server
	addr            string
	certFile        string
	keyFile         string
	logger          *slog.Logger
	adminHandler    http.Handler   // Optional /admin/ routes
	verifier        auth.TokenVerifier
	registry        *prometheus.Registry
	metrics         *Metrics
	healthChecker   *HealthChecker
	shutdownTimeout time.Duration
}

// Option is a functional option for configuring HTTPTransport.
type Option func(*HTTPTransport)

// WithAddr sets the listen address for the HTTP server.
// Default is "0.0.0.0:8000".
func WithAddr(addr string) Option {
	return func(t *HTTPTransport) {
		t.addr = addr
	}
}

// WithTLS enables TLS with the provided certificate and key files.
// If not set, the server runs without TLS (plain HTTP).
func WithTLS(certFile, keyFile string) Option {
	return func(t *HTTPTransport) {
		t.certFile = certFile
		t.keyFile = keyFile
	}
}

// WithLogger sets the logger for the HTTP transport.
func WithLogger(logger *slog.Logger) Option {
	return func(t *HTTPTransport) {
		t.logger = logger
	}
}

// WithAdminHandler mounts the administrative API under /admin/.
func WithAdminHandler(h http.Handler) Option {
	return func(t *HTTPTransport) {
		t.adminHandler = h
	}
}

// WithVerifier requires bearer authentication on /mcp and /admin/.
// Without a verifier every request runs as the anonymous principal.
func WithVerifier(v auth.TokenVerifier) Option {
	return func(t *HTTPTransport) {
		t.verifier = v
	}
}

// WithMetrics serves reg on /metrics and records requests into m. Both
// are created by Handler when not set.
func WithMetrics(reg *prometheus.Registry, m *Metrics) Option {
	return func(t *HTTPTransport) {
		t.registry = reg
		t.metrics = m
	}
}

// WithHealthChecker sets the health checker for the /health endpoint.
func WithHealthChecker(hc *HealthChecker) Option {
	return func(t *HTTPTransport) {
		t.healthChecker = hc
	}
}

// WithShutdownTimeout bounds graceful shutdown. Default is 10s.
func WithShutdownTimeout(d time.Duration) Option {
	return func(t *HTTPTransport) {
		if d > 0 {
			t.shutdownTimeout = d
		}
	}
}

// NewMetricsRegistry returns a registry with the Go runtime and process
// collectors registered.
func NewMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewHTTPTransport creates an HTTP transport serving mcpServer on /mcp.
func NewHTTPTransport(mcpServer *MCPServer, opts ...Option) *HTTPTransport {
	t := &HTTPTransport{
		mcp:             mcpServer,
		addr:            "0.0.0.0:8000",
		logger:          slog.Default(),
		shutdownTimeout: 10 * time.Second,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Handler builds the routing tree.
//
// Middleware order for /mcp and /admin/ (outermost first):
// 1. MetricsMiddleware - record duration and status over the full request
// 2. RequestID - extract/generate request ID and enrich logger
// 3. Auth - bearer token to principal
//
// /health and /metrics are served without authentication.
func (t *HTTPTransport) Handler() http.Handler {
	if t.registry == nil {
		t.registry = NewMetricsRegistry()
	}
	if t.metrics == nil {
		t.metrics = NewMetrics(t.registry)
	}

	protect := func(h http.Handler) http.Handler {
		h = AuthMiddleware(t.verifier, t.metrics.AuthFailuresTotal)(h)
		h = RequestIDMiddleware(t.logger)(h)
		return MetricsMiddleware(t.metrics)(h)
	}

	mux := http.NewServeMux()
	if t.healthChecker != nil {
		mux.Handle("/health", t.healthChecker.Handler())
	} else {
		mux.Handle("/health", NewHealthChecker(nil, nil, nil, "").Handler())
	}
	mux.Handle("/metrics", promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{
		Registry: t.registry,
	}))
	// Favicon handler to prevent browser 404 noise
	mux.Handle("/favicon.ico", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	if t.mcp != nil {
		mcpHandler := protect(t.mcp.HTTPHandler())
		mux.Handle("/mcp", mcpHandler)
		mux.Handle("/mcp/", mcpHandler)
	}
	if t.adminHandler != nil {
		mux.Handle("/admin/", protect(t.adminHandler))
	}
	mux.Handle("/", http.HandlerFunc(notFound))

	return mux
}

func notFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "not found"})
}

// Start begins accepting HTTP connections. It blocks until the context is
// cancelled or the server fails.
func (t *HTTPTransport) Start(ctx context.Context) error {
	t.server = &http.Server{
		Addr:              t.addr,
		Handler:           t.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if t.certFile != "" && t.keyFile != "" {
		t.server.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	errCh := make(chan error, 1)

	go func() {
		var err error
		if t.certFile != "" && t.keyFile != "" {
			t.logger.Info("starting HTTPS server", "addr", t.addr)
			err = t.server.ListenAndServeTLS(t.certFile, t.keyFile)
		} else {
			t.logger.Info("starting HTTP server", "addr", t.addr)
			err = t.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		t.logger.Info("context cancelled, shutting down HTTP server")
		return t.shutdown()
	case err := <-errCh:
		return err
	}
}

// shutdown performs graceful shutdown of the HTTP server.
func (t *HTTPTransport) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), t.shutdownTimeout)
	defer cancel()

	if err := t.server.Shutdown(ctx); err != nil {
		t.logger.Error("error during server shutdown", "error", err)
		return err
	}

	t.logger.Info("HTTP server shutdown complete")
	return nil
}

// Close gracefully shuts down the transport.
func (t *HTTPTransport) Close() error {
	if t.server == nil {
		return nil
	}
	return t.shutdown()
}
