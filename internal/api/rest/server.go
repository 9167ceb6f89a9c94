package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/paygate-labs/transaction-risk-engine/internal/infrastructure/config"
	"github.com/paygate-labs/transaction-risk-engine/internal/metrics"
	"github.com/paygate-labs/transaction-risk-engine/internal/service/scoring"
)

// Deps carries the wired collaborators the server exposes
type Deps struct {
	Scoring  scoring.Service
	Store    DecisionReader
	Breakers BreakerAdmin
	Registry *metrics.Registry
	Logger   *zap.Logger
}

// Server hosts the engine's HTTP API
type Server struct {
	cfg        *config.Config
	httpServer *http.Server
	handler    *Handler
	logger     *zap.Logger
}

// NewServer builds the server with its middleware chain and routes
func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if deps.Scoring == nil {
		return nil, fmt.Errorf("scoring service is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	handler := NewHandler(deps.Scoring, deps.Store, deps.Breakers, deps.Registry, cfg.Version, logger)
	mux := setupRoutes(handler)

	middlewares := []Middleware{
		requestIDMiddleware,
		loggingMiddleware(logger),
		metricsMiddleware(deps.Registry),
		tracingMiddleware(handler.tracer),
		recoveryMiddleware(logger),
		timeoutMiddleware(cfg.Server.WriteTimeout),
	}

	var h http.Handler = mux
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}

	return &Server{
		cfg: cfg,
		httpServer: &http.Server{
			Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:        h,
			ReadTimeout:    cfg.Server.ReadTimeout,
			WriteTimeout:   cfg.Server.WriteTimeout,
			MaxHeaderBytes: 1 << 20,
		},
		handler: handler,
		logger:  logger,
	}, nil
}

func setupRoutes(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.handleLiveness)
	mux.HandleFunc("GET /readyz", h.handleReadiness)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /v1/evaluations", h.handleEvaluate)
	mux.HandleFunc("POST /v1/evaluations/batch", h.handleEvaluateBatch)
	mux.HandleFunc("GET /v1/verdicts/{id}", h.handleGetVerdict)
	mux.HandleFunc("POST /v1/outcomes", h.handleRecordOutcome)
	mux.HandleFunc("GET /v1/patterns", h.handlePatterns)
	mux.HandleFunc("GET /v1/recommendations", h.handleRecommendations)
	mux.HandleFunc("GET /v1/thresholds", h.handleGetThresholds)
	mux.HandleFunc("PUT /v1/thresholds", h.handleUpdateThresholds)
	mux.HandleFunc("GET /v1/stats", h.handleStats)
	mux.HandleFunc("POST /v1/breakers/{source}/reset", h.handleResetBreaker)

	return mux
}

// Start serves until ctx is canceled or the listener fails
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting API server",
		zap.String("address", s.httpServer.Addr),
		zap.String("environment", s.cfg.Environment))

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown drains in-flight requests within the configured timeout
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("server shutdown failed", zap.Error(err))
		return err
	}

	s.logger.Info("server shutdown complete")
	return nil
}
