package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/miradorstack/mirador-rob/internal/api"
	"github.com/miradorstack/mirador-rob/internal/app"
	"github.com/miradorstack/mirador-rob/internal/config"
	"github.com/miradorstack/mirador-rob/internal/metrics"
	"github.com/miradorstack/mirador-rob/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting mirador-rob",
		slog.String("address", cfg.Server.Address),
		slog.String("store", cfg.Store.Driver))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	components, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialise components", slog.Any("error", err))
		os.Exit(1)
	}
	defer components.Close()

	watcher, err := components.Watcher()
	if err != nil {
		logger.Error("failed to create template watcher", slog.Any("error", err))
		os.Exit(1)
	}
	if watcher != nil {
		go func() {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("template watcher exited", slog.Any("error", err))
			}
		}()
	}

	server, err := api.NewServer(cfg.Server, components.Service, logger)
	if err != nil {
		logger.Error("failed to create gRPC server", slog.Any("error", err))
		os.Exit(1)
	}

	var adminServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		adminServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      api.NewAdminRouter(components.Service, prometheus.DefaultGatherer, logger),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 30 * time.Second,
		}
		go func() {
			logger.Info("admin server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("admin server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("gRPC server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if adminServer != nil {
		adminCtx, cancelAdmin := context.WithTimeout(context.Background(), 5*time.Second)
		if err := adminServer.Shutdown(adminCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("admin server shutdown", slog.Any("error", err))
		}
		cancelAdmin()
	}

	summary := components.Tracker.Summary()
	logger.Info("mirador-rob stopped",
		slog.Float64("llm_cost_usd", summary.TotalCost),
		slog.Int("llm_calls", summary.TotalEntries))
}
