package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/riskcore/transaction-risk-engine/internal/api/rest"
	"github.com/riskcore/transaction-risk-engine/internal/domain/transaction"
	"github.com/riskcore/transaction-risk-engine/internal/infrastructure/config"
	"github.com/riskcore/transaction-risk-engine/internal/infrastructure/telemetry"
	"github.com/riskcore/transaction-risk-engine/internal/metrics"
	"github.com/riskcore/transaction-risk-engine/internal/service/compliance"
	"github.com/riskcore/transaction-risk-engine/internal/service/risk"
	"github.com/riskcore/transaction-risk-engine/internal/service/velocity"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := config.NewStore(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg := store.Get()

	logger := telemetry.SetupLogger(cfg.LogLevel, cfg.Environment)
	slog.SetDefault(logger)

	if err := run(ctx, store, logger); err != nil {
		slog.Error("service failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, store *config.Store, logger *slog.Logger) error {
	cfg := store.Get()

	logger.Info("starting transaction risk engine",
		"version", cfg.Version,
		"environment", cfg.Environment,
		"port", cfg.Server.Port)

	accessLogger, err := newAccessLogger(cfg)
	if err != nil {
		return err
	}
	defer accessLogger.Sync()

	shutdownMetrics, err := telemetry.SetupMetrics("transaction-risk-engine", cfg.Version, cfg.Environment)
	if err != nil {
		return err
	}
	defer shutdownMetrics(context.Background())

	registry, err := metrics.NewRegistry("transaction-risk-engine")
	if err != nil {
		return err
	}

	monitor, err := velocity.NewMonitor(cfg.Velocity)
	if err != nil {
		return err
	}
	registry.ObserveActiveEntities(func() int64 {
		return int64(monitor.ActiveEntities())
	})

	engines, err := newEngineHolder(cfg.Compliance, logger)
	if err != nil {
		return err
	}

	aggregator, err := risk.NewAggregator(monitor, engines, cfg.Risk, logger)
	if err != nil {
		return err
	}

	// SIGHUP reloads configuration. Only the compliance rule set (thresholds,
	// weights, watchlist) applies without a restart; other sections are
	// validated and take effect on the next start.
	go watchReloads(ctx, store, engines, logger)

	handler := rest.NewHandler(aggregator, engines, monitor, registry, logger, cfg.Version)
	server := rest.NewServer(cfg, handler, logger, accessLogger)
	return server.Start(ctx)
}

func newAccessLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func watchReloads(ctx context.Context, store *config.Store, engines *engineHolder, logger *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			start := time.Now()
			cfg, err := store.Reload()
			if err != nil {
				logger.Error("config reload rejected, previous snapshot stays active", "error", err)
				continue
			}
			if err := engines.swap(cfg.Compliance, logger); err != nil {
				logger.Error("compliance rule reload failed", "error", err)
				continue
			}
			logger.Info("configuration reloaded",
				"duration", time.Since(start),
				"watchlist_size", len(cfg.Compliance.Watchlist))
		}
	}
}

// engineHolder lets the compliance rule set be swapped atomically while
// assessments are in flight.
type engineHolder struct {
	current atomic.Pointer[compliance.Engine]
}

func newEngineHolder(cfg compliance.Config, logger *slog.Logger) (*engineHolder, error) {
	h := &engineHolder{}
	if err := h.swap(cfg, logger); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *engineHolder) swap(cfg compliance.Config, logger *slog.Logger) error {
	engine, err := compliance.NewEngine(cfg, logger)
	if err != nil {
		return err
	}
	h.current.Store(engine)
	return nil
}

func (h *engineHolder) Evaluate(tx *transaction.Event, recent velocity.Summary) *compliance.Assessment {
	return h.current.Load().Evaluate(tx, recent)
}
