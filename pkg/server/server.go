package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"glotta-hq/hermes/pkg/config"
	"glotta-hq/hermes/pkg/coordinator"
	"glotta-hq/hermes/pkg/telemetry/metrics"
)

// Server is the HTTP lookup server.
type Server struct {
	config     *config.ServerConfig
	coord      *coordinator.Coordinator
	metrics    *metrics.Collector
	logger     *slog.Logger
	httpServer *http.Server
	mu         sync.Mutex
	isRunning  bool
}

// NewServer creates a lookup server. The metrics collector may be nil
// when metrics are disabled.
func NewServer(cfg *config.ServerConfig, coord *coordinator.Coordinator, collector *metrics.Collector, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config:  cfg,
		coord:   coord,
		metrics: collector,
		logger:  logger.With("component", "server"),
	}
}

// Start starts the HTTP server and blocks until shutdown or failure.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true

	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddress,
		Handler:      s.routes(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting lookup server", "address", s.config.ListenAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning || s.httpServer == nil {
		return nil
	}
	s.isRunning = false
	s.logger.Info("shutting down lookup server")
	return s.httpServer.Shutdown(ctx)
}

// routes assembles the HTTP mux.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/lookup", s.handleLookup)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return mux
}
