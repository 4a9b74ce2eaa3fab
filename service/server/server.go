// Package server exposes the HTTP surface: the visible-records snapshot,
// the live controls endpoint, and the SSE stream of flushed records.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mqqz/whaleflow-sub000/service/feed"
	"github.com/mqqz/whaleflow-sub000/service/metrics"
	"github.com/mqqz/whaleflow-sub000/service/session"
)

// Server represents the HTTP server for the flow feed service.
type Server struct {
	addr     string
	feed     *feed.Feed
	sessions []*session.Session
	metrics  *metrics.Metrics
	logger   *slog.Logger
	server   *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The sessions are polled for connection status in snapshot responses.
// The metrics is optional - if nil, the metrics endpoint won't be available.
func New(addr string, f *feed.Feed, sessions []*session.Session, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:     addr,
		feed:     f,
		sessions: sessions,
		metrics:  m,
		logger:   logger,
	}
}

// Handler builds the route table. Exposed so tests can drive the mux
// without binding a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	wrap := func(name string, h http.Handler) http.Handler {
		if s.metrics == nil {
			return h
		}
		return metrics.HTTPMetricsMiddleware(s.metrics, name)(h)
	}

	mux.Handle("GET /api/v1/records", wrap("/api/v1/records", handleListRecords(s.feed, s.statuses, s.logger)))
	mux.Handle("GET /api/v1/controls", wrap("/api/v1/controls", handleGetControls(s.feed, s.logger)))
	mux.Handle("PUT /api/v1/controls", wrap("/api/v1/controls", handleUpdateControls(s.feed, s.logger)))
	mux.Handle("GET /api/v1/stream/records", handleStreamRecords(s.feed, s.metrics, s.logger))

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server and blocks until it exits.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        s.addr,
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: SSE connections are long-lived.
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// statuses reports the connection state of every session by network.
func (s *Server) statuses() map[string]string {
	out := make(map[string]string, len(s.sessions))
	for _, sess := range s.sessions {
		out[sess.Network()] = string(sess.Status())
	}
	return out
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
