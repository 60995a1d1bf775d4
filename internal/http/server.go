// Package http exposes the engine over a small JSON API plus health and
// metrics endpoints.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"tunebridge/internal/admission"
	"tunebridge/internal/convert"
	"tunebridge/internal/core"
	"tunebridge/internal/resolve"
	"tunebridge/internal/store"
)

type Server struct {
	config  *core.ServerConfig
	logger  *zap.Logger
	server  *http.Server
	metrics *Metrics

	gate      *admission.Gate
	resolver  *resolve.Resolver
	converter *convert.Converter
	store     *store.Store
}

func NewServer(
	config *core.ServerConfig,
	logger *zap.Logger,
	metrics *Metrics,
	gate *admission.Gate,
	resolver *resolve.Resolver,
	converter *convert.Converter,
	st *store.Store,
) *Server {
	s := &Server{
		config:    config,
		logger:    logger,
		metrics:   metrics,
		gate:      gate,
		resolver:  resolver,
		converter: converter,
		store:     st,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"tunebridge"}`))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := s.store.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable","service":"tunebridge"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready","service":"tunebridge"}`))
	})

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/api/resolve", s.admit(s.handleResolve))
	mux.HandleFunc("/api/convert", s.admit(s.handleConvert))
	mux.HandleFunc("/api/entity", s.admit(s.handleEntity))

	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>TuneBridge</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; }
        .header { color: #333; }
        .endpoint { margin: 10px 0; }
        .endpoint a { text-decoration: none; color: #0066cc; }
        .endpoint a:hover { text-decoration: underline; }
    </style>
</head>
<body>
    <h1 class="header">🎵 TuneBridge</h1>
    <p>Cross-provider music link resolution and conversion</p>

    <h2>Endpoints</h2>
    <div class="endpoint">🔗 <code>/api/resolve?url=...</code> - Resolve a provider link</div>
    <div class="endpoint">🔀 <code>/api/convert?url=...&amp;target=...</code> - Convert a link to another provider</div>
    <div class="endpoint">🗃 <code>/api/entity?id=...&amp;type=...</code> - Read a stored entity</div>
    <div class="endpoint">📊 <a href="/metrics">Metrics</a> - Prometheus metrics</div>
    <div class="endpoint">💚 <a href="/healthz">Health</a> - Health check</div>
    <div class="endpoint">✅ <a href="/readyz">Ready</a> - Readiness check</div>
</body>
</html>`))
	})

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      mux,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return s
}

func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server",
		zap.String("addr", s.server.Addr))

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown HTTP server gracefully", zap.Error(err))
		}
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

// Handler exposes the request mux for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) GetMetrics() *Metrics {
	return s.metrics
}
