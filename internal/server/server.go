// Package server is the HTTP and WebSocket transport edge. It owns route
// wiring, request decoding, error-to-status mapping and the realtime event
// bridge; all domain behaviour lives behind the orchestrator and the
// subsystem snapshots it serves.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/switchyard-ai/switchyard/internal/analytics"
	"github.com/switchyard-ai/switchyard/internal/artifact"
	"github.com/switchyard-ai/switchyard/internal/budget"
	"github.com/switchyard-ai/switchyard/internal/cache"
	"github.com/switchyard-ai/switchyard/internal/config"
	"github.com/switchyard-ai/switchyard/internal/events"
	"github.com/switchyard-ai/switchyard/internal/middleware"
	"github.com/switchyard-ai/switchyard/internal/orchestrator"
	"github.com/switchyard-ai/switchyard/internal/provider"
)

// Deps bundles everything the transport layer serves.
type Deps struct {
	Config    *config.Config
	Orch      *orchestrator.Orchestrator
	Registry  *provider.Registry
	Cache     *cache.Semantic
	Budget    *budget.Tracker
	Artifacts *artifact.Store
	Analytics *analytics.Service
	Hub       *events.Hub
	Logger    *zap.Logger
}

type Server struct {
	cfg       *config.Config
	orch      *orchestrator.Orchestrator
	registry  *provider.Registry
	cache     *cache.Semantic
	budget    *budget.Tracker
	artifacts *artifact.Store
	analytics *analytics.Service
	hub       *events.Hub
	logger    *zap.Logger
	ws        *WSHandler
	startedAt time.Time

	httpServer *http.Server
}

func New(d Deps) *Server {
	s := &Server{
		cfg:       d.Config,
		orch:      d.Orch,
		registry:  d.Registry,
		cache:     d.Cache,
		budget:    d.Budget,
		artifacts: d.Artifacts,
		analytics: d.Analytics,
		hub:       d.Hub,
		logger:    d.Logger,
		startedAt: time.Now(),
	}
	s.ws = NewWSHandler(d.Hub, d.Config.Server.AuthTokens, d.Logger)
	return s
}

// Handler assembles the chi router with the full middleware chain.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.Server.CORSOrigin,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.Logger(s.logger))
	r.Use(middleware.Metrics())

	r.Route("/api", func(r chi.Router) {
		r.Post("/query", s.handleQuery)
		r.Get("/health", s.handleHealth)
		r.Get("/analytics", s.handleAnalytics)
		r.Get("/analytics/events", s.handleAnalyticsEvents)
		r.Get("/budget", s.handleBudget)
		r.Get("/cache", s.handleCache)
		r.Post("/cache/clear", s.handleCacheClear)
		r.Post("/cache/prune", s.handleCachePrune)
		r.Get("/artifacts", s.handleArtifacts)
		r.Get("/artifacts/{queryId}", s.handleArtifactsByQuery)
		r.Get("/manager-view", s.handleManagerView)
	})

	r.Get("/ws", s.ws.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Start runs the HTTP server until the context is cancelled, then drains
// in-flight requests within the configured graceful shutdown window.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.GracefulShutdown)
	defer cancel()

	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) uptime() time.Duration {
	return time.Since(s.startedAt)
}
