// Package app assembles the risk-of-bias components from configuration. Both
// the gRPC service and the operator CLI are built on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/miradorstack/mirador-rob/internal/cache"
	"github.com/miradorstack/mirador-rob/internal/catalog"
	"github.com/miradorstack/mirador-rob/internal/config"
	"github.com/miradorstack/mirador-rob/internal/cost"
	"github.com/miradorstack/mirador-rob/internal/detector"
	"github.com/miradorstack/mirador-rob/internal/engine"
	"github.com/miradorstack/mirador-rob/internal/llm"
	"github.com/miradorstack/mirador-rob/internal/repo"
	"github.com/miradorstack/mirador-rob/internal/services"
	"github.com/miradorstack/mirador-rob/internal/templates"
)

// App holds the wired components.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Store     repo.Store
	Cache     cache.Provider
	Client    llm.ChatClient
	Tracker   *cost.Tracker
	Templates *templates.Manager
	Detector  *detector.Detector
	Assessor  *engine.Assessor
	Service   *services.RoBService

	closers []func() error
}

// New opens the store and cache, builds the LLM client and wires the
// template manager, detector, assessor and service on top of them.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	a.Cache = newCache(cfg.Cache, logger)
	a.closers = append(a.closers, a.Cache.Close)

	store, err := repo.Open(ctx, cfg.Store)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	a.closers = append(a.closers, store.Close)
	a.Store = repo.NewCachedStore(store, a.Cache, cfg.Cache.TemplateTTL)

	client, err := llm.New(ctx, llm.Options{
		Provider:   cfg.LLM.Provider,
		Model:      cfg.LLM.Model,
		APIKey:     cfg.LLM.APIKey,
		BaseURL:    cfg.LLM.BaseURL,
		Timeout:    cfg.LLM.Timeout,
		MaxRetries: cfg.LLM.MaxRetries,
	})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("llm client: %w", err)
	}
	a.Client = client
	model := ""
	if client != nil {
		model = client.Model()
		logger.Info("llm client ready", slog.String("provider", cfg.LLM.Provider), slog.String("model", model))
	} else {
		logger.Warn("no llm provider configured; assessments and LLM design detection are disabled")
	}

	cat, err := catalog.Default()
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("load template catalog: %w", err)
	}
	guidance, err := catalog.NewGuidancePack(cfg.Assessment.GuidancePath, logger)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("load guidance: %w", err)
	}

	a.Tracker = cost.NewTracker(cfg.Assessment.BudgetLimit)
	a.Templates = templates.NewManager(cat, a.Store, logger)
	a.Detector = detector.New(client, a.Tracker, logger)
	a.Assessor = engine.NewAssessor(client, a.Templates, a.Store, a.Cache, a.Tracker, guidance, logger, engine.Options{
		MaxTextChars:         cfg.Assessment.MaxTextChars,
		CacheTTL:             cfg.Cache.AssessmentTTL,
		UncertaintyThreshold: cfg.Assessment.UncertaintyThreshold,
	})
	a.Service = services.NewRoBService(services.Dependencies{
		Templates: a.Templates,
		Detector:  a.Detector,
		Assessor:  a.Assessor,
		Tracker:   a.Tracker,
		Model:     model,
		Logger:    logger,
	})
	return a, nil
}

// Watcher returns the template directory watcher, or nil when none is configured.
func (a *App) Watcher() (*templates.Watcher, error) {
	if a.Config.Templates.WatchDir == "" {
		return nil, nil
	}
	return templates.NewWatcher(a.Config.Templates.WatchDir, a.Config.Templates.WatchProject, a.Templates, a.Logger)
}

// Close releases the store and cache in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func newCache(cfg config.CacheConfig, logger *slog.Logger) cache.Provider {
	if !cfg.Enabled || cfg.Addr == "" {
		return cache.NewMemoryProvider()
	}
	provider, err := cache.NewRedisProvider(cache.RedisConfig{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   cfg.MaxRetries,
		TLS:          cfg.TLS,
	})
	if err != nil {
		logger.Warn("redis cache unavailable; using in-process cache", slog.Any("error", err))
		return cache.NewMemoryProvider()
	}
	return provider
}
