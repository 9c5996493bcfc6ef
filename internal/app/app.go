// Package app assembles the gateway from configuration: subsystems, the
// event bridges between them, the background maintenance loops and the HTTP
// server. Both binaries build the same App.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/switchyard-ai/switchyard/internal/analytics"
	"github.com/switchyard-ai/switchyard/internal/artifact"
	"github.com/switchyard-ai/switchyard/internal/budget"
	"github.com/switchyard-ai/switchyard/internal/cache"
	"github.com/switchyard-ai/switchyard/internal/cascade"
	"github.com/switchyard-ai/switchyard/internal/classify"
	"github.com/switchyard-ai/switchyard/internal/config"
	"github.com/switchyard-ai/switchyard/internal/costbook"
	"github.com/switchyard-ai/switchyard/internal/events"
	"github.com/switchyard-ai/switchyard/internal/metrics"
	"github.com/switchyard-ai/switchyard/internal/orchestrator"
	"github.com/switchyard-ai/switchyard/internal/provider"
	"github.com/switchyard-ai/switchyard/internal/quality"
	"github.com/switchyard-ai/switchyard/internal/routing"
	"github.com/switchyard-ai/switchyard/internal/server"
)

// Maintenance intervals.
const (
	healthCheckInterval = 30 * time.Second
	cachePruneInterval  = time.Minute
	budgetPruneInterval = time.Hour
)

type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Hub       *events.Hub
	Registry  *provider.Registry
	Cache     *cache.Semantic
	Budget    *budget.Tracker
	Artifacts *artifact.Store
	Analytics *analytics.Service
	Server    *server.Server

	redisStore *cache.RedisStore
}

// Build wires every subsystem from the configuration.
func Build(cfg *config.Config, logger *zap.Logger) (*App, error) {
	book := costbook.Default()
	hub := events.NewHub()

	tracker := budget.NewTracker(budget.Config{
		DailyLimit:       cfg.Budget.Daily.Limit,
		WeeklyLimit:      cfg.Budget.Weekly.Limit,
		MonthlyLimit:     cfg.Budget.Monthly.Limit,
		Thresholds:       budget.DefaultThresholds(cfg.Budget.EmergencyThreshold),
		EmergencyEnabled: true,
		DisableProviders: cfg.Budget.DisableProviders,
	}, logger, budget.WithNotify(func(a budget.Alert) {
		hub.Publish(events.ChannelBudget, a)
	}))

	app := &App{
		Config:    cfg,
		Logger:    logger,
		Hub:       hub,
		Budget:    tracker,
		Analytics: analytics.NewService(),
	}

	store, err := app.buildCacheStore(cfg.Cache)
	if err != nil {
		return nil, err
	}
	app.Cache = cache.NewSemantic(store, cache.SemanticConfig{
		SimilarityThreshold: cfg.Cache.SimilarityThreshold,
		MaxEntries:          cfg.Cache.MaxEntries,
		DefaultTTL:          cfg.Cache.TTL,
	}, logger)

	app.Artifacts = artifact.NewStore(logger, artifact.WithPublish(func(a artifact.Artifact) {
		hub.Publish(events.ChannelEvents, a)
	}))

	app.Registry = provider.NewRegistry(logger, provider.WithHealthChange(func(h provider.Health) {
		hub.Publish(events.ChannelHealth, h)
	}))
	app.registerProviders(book)

	orch := orchestrator.New(orchestrator.Deps{
		Classifier: classify.New(classify.Thresholds{
			Medium:  cfg.Routing.ComplexityThresholds.Medium,
			Complex: cfg.Routing.ComplexityThresholds.Complex,
		}),
		Cache:     app.Cache,
		Budget:    tracker,
		Router: routing.NewRouter(book, tracker, routing.Strategy(cfg.Routing.DefaultStrategy), logger,
			routing.WithCascadeFloor(cfg.Routing.CascadeMinQuality)),
		Executor:  cascade.NewExecutor(logger),
		Providers: app.Registry,
		Book:      book,
		Estimator: quality.NewEstimator(),
		Artifacts: app.Artifacts,
		Analytics: app.Analytics,
		Logger:    logger,
		TTL: classify.TTLPolicy{
			Realtime: cfg.Cache.RealtimeTTL,
			Default:  cfg.Cache.TTL,
		},
	})

	app.Server = server.New(server.Deps{
		Config:    cfg,
		Orch:      orch,
		Registry:  app.Registry,
		Cache:     app.Cache,
		Budget:    tracker,
		Artifacts: app.Artifacts,
		Analytics: app.Analytics,
		Hub:       hub,
		Logger:    logger,
	})

	return app, nil
}

func (a *App) buildCacheStore(cfg config.CacheConfig) (cache.Store, error) {
	switch cfg.Adapter {
	case "redis":
		store, err := cache.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		a.redisStore = store
		return store, nil
	default:
		return cache.NewMemoryStore(), nil
	}
}

// registerProviders creates one adapter per configured provider with an API
// key. Without any configuration the default trio keeps the gateway usable
// out of the box.
func (a *App) registerProviders(book *costbook.Book) {
	registered := 0
	for name, pc := range a.Config.Providers {
		if pc.APIKey == "" {
			a.Logger.Warn("provider has no api key, skipping", zap.String("provider", name))
			continue
		}
		models := pc.Models
		if len(models) == 0 {
			models = book.ModelsForProvider(name)
		}
		a.Registry.Register(provider.NewStub(name, book, models...))
		registered++
	}

	if registered == 0 {
		a.Logger.Info("no providers configured, registering defaults")
		for _, name := range []string{"openai", "anthropic", "perplexity"} {
			a.Registry.Register(provider.NewStub(name, book, book.ModelsForProvider(name)...))
		}
	}
}

// Run starts the maintenance loops and serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	go a.healthLoop(ctx)
	go a.cacheLoop(ctx)
	go a.budgetLoop(ctx)

	err := a.Server.Start(ctx)

	if a.redisStore != nil {
		if cerr := a.redisStore.Close(); cerr != nil {
			a.Logger.Warn("redis close failed", zap.Error(cerr))
		}
	}
	return err
}

func (a *App) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			a.Registry.CheckHealth(checkCtx)
			cancel()
		}
	}
}

func (a *App) cacheLoop(ctx context.Context) {
	ticker := time.NewTicker(cachePruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if pruned := a.Cache.PruneExpired(ctx); pruned > 0 {
				a.Logger.Debug("pruned expired cache entries", zap.Int("count", pruned))
				a.Hub.Publish(events.ChannelCache, map[string]any{"action": "pruned", "count": pruned})
			}
			metrics.SetCacheEntries(a.Cache.Stats(ctx).Entries)
		}
	}
}

func (a *App) budgetLoop(ctx context.Context) {
	ticker := time.NewTicker(budgetPruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Budget.Prune()
		}
	}
}
