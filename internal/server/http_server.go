// Package server assembles the node's HTTP servers.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/loopgrid/ringd/internal/config"
	"github.com/loopgrid/ringd/internal/errors"
	"github.com/loopgrid/ringd/internal/handler"
	"github.com/loopgrid/ringd/internal/health"
	"github.com/loopgrid/ringd/internal/metrics"
	"github.com/loopgrid/ringd/internal/middleware"
	"github.com/loopgrid/ringd/internal/replication"
)

// Server is the data-plane HTTP server: the public ringbuffer API, the
// internal replication plane, and the health endpoints.
type Server struct {
	router       *mux.Router
	httpServer   *http.Server
	errorHandler *errors.Handler
	logger       *zap.Logger
	cfg          *config.Config
}

// NewServer wires handlers and middleware into a ready-to-start server.
func NewServer(
	cfg *config.Config,
	ringHandler *handler.RingbufferHandler,
	replHandler *handler.ReplicationHandler,
	healthChecker *health.HealthChecker,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Server {
	router := mux.NewRouter()
	errorHandler := errors.NewHandler(logger)

	s := &Server{
		router: router,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
		errorHandler: errorHandler,
		logger:       logger,
		cfg:          cfg,
	}

	router.Use(func(next http.Handler) http.Handler {
		return middleware.Chain(
			middleware.Recovery(logger, errorHandler),
			middleware.RequestID,
			middleware.Logging(logger),
			middleware.Metrics(m),
		)(next)
	})

	router.HandleFunc("/health", healthChecker.HealthHandler).Methods(http.MethodGet)
	router.HandleFunc("/ready", healthChecker.ReadyHandler).Methods(http.MethodGet)

	// Public data plane. The rate limiter guards only this surface;
	// throttling backup traffic would turn an overloaded primary into
	// out-of-sync backups.
	v1 := router.PathPrefix("/v1").Subrouter()
	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, logger, errorHandler)
		v1.Use(limiter.Limit)
	}
	v1.HandleFunc("/ringbuffers", ringHandler.List).Methods(http.MethodGet)
	v1.HandleFunc("/ringbuffers/{name}", ringHandler.Add).Methods(http.MethodPost)
	v1.HandleFunc("/ringbuffers/{name}", ringHandler.Info).Methods(http.MethodGet)
	v1.HandleFunc("/ringbuffers/{name}/items", ringHandler.ReadMany).Methods(http.MethodGet)
	v1.HandleFunc("/ringbuffers/{name}/items/{seq}", ringHandler.ReadOne).Methods(http.MethodGet)

	// Internal replication plane.
	internal := router.PathPrefix("/internal").Subrouter()
	internal.Use(middleware.Timeout(cfg.Server.RequestTimeout))
	internal.HandleFunc(strings.TrimPrefix(replication.AppendPath, "/internal"), replHandler.Append).Methods(http.MethodPost)
	internal.HandleFunc(strings.TrimPrefix(replication.SyncPath, "/internal"), replHandler.Sync).Methods(http.MethodPost)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		errorHandler.WriteErrorResponse(w, http.StatusNotFound,
			errors.CodeString(errors.ErrCodeInvalidArgument), "endpoint not found", r.Header.Get("X-Request-ID"))
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		errorHandler.WriteErrorResponse(w, http.StatusMethodNotAllowed,
			errors.CodeString(errors.ErrCodeInvalidArgument), "method not allowed", r.Header.Get("X-Request-ID"))
	})

	return s
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info("Starting data server", zap.String("addr", s.httpServer.Addr))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("data server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down data server")
	return s.httpServer.Shutdown(ctx)
}

// GetHandler returns the router; used by tests.
func (s *Server) GetHandler() http.Handler {
	return s.router
}
