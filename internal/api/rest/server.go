package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/riskcore/transaction-risk-engine/internal/api/middleware"
	"github.com/riskcore/transaction-risk-engine/internal/infrastructure/config"
)

// Server is the HTTP front end of the risk engine.
type Server struct {
	httpServer      *http.Server
	logger          *slog.Logger
	shutdownTimeout time.Duration
}

// NewServer builds the router and middleware chain around the handler.
func NewServer(cfg *config.Config, handler *Handler, logger *slog.Logger, accessLogger *zap.Logger) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/assess", handler.Assess)
	mux.HandleFunc("POST /api/v1/compliance/check", handler.ComplianceCheck)
	mux.HandleFunc("GET /api/v1/velocity/{entity}", handler.VelocitySummary)
	mux.HandleFunc("GET /healthz", handler.Health)
	mux.Handle("GET /metrics", promhttp.Handler())

	middlewares := []middleware.Middleware{
		middleware.Recovery(accessLogger),
		middleware.RequestID(),
		middleware.Tracing(otel.Tracer("api.http")),
		middleware.AccessLog(accessLogger),
	}
	if handler.registry != nil {
		middlewares = append(middlewares, middleware.Metrics(handler.registry))
	}
	middlewares = append(middlewares,
		middleware.RateLimit(cfg.Server.RateLimit.RequestsPerSecond, cfg.Server.RateLimit.BurstSize))
	chain := middleware.Chain(middlewares...)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:      chain(mux),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		logger:          logger,
		shutdownTimeout: cfg.Server.ShutdownTimeout,
	}
}

// Start serves until ctx is canceled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	s.logger.Info("shutting down http server")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
