package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/switchyard-ai/switchyard/internal/artifact"
	"github.com/switchyard-ai/switchyard/internal/budget"
	"github.com/switchyard-ai/switchyard/internal/classify"
	"github.com/switchyard-ai/switchyard/internal/events"
	"github.com/switchyard-ai/switchyard/internal/gateway"
	"github.com/switchyard-ai/switchyard/internal/orchestrator"
	"github.com/switchyard-ai/switchyard/internal/provider"
	"github.com/switchyard-ai/switchyard/internal/quality"
	"github.com/switchyard-ai/switchyard/internal/routing"
)

type queryRequest struct {
	Content             string             `json:"content"`
	SystemPrompt        string             `json:"systemPrompt,omitempty"`
	MaxTokens           int                `json:"maxTokens,omitempty"`
	Temperature         *float64           `json:"temperature,omitempty"`
	ConversationHistory []provider.Message `json:"conversationHistory,omitempty"`
	Strategy            string             `json:"strategy,omitempty"`
	Tags                []string           `json:"tags,omitempty"`
}

type queryResponse struct {
	ID             string              `json:"id"`
	Content        string              `json:"content"`
	Provider       string              `json:"provider"`
	Model          string              `json:"model"`
	CacheHit       bool                `json:"cacheHit"`
	Similarity     float64             `json:"similarity,omitempty"`
	Cost           float64             `json:"cost"`
	Tokens         provider.TokenUsage `json:"tokens"`
	ResponseTimeMs int64               `json:"responseTimeMs"`
	Citations      []string            `json:"citations,omitempty"`
	Classification classify.Query      `json:"classification"`
	Routing        *routing.Decision   `json:"routing,omitempty"`
	Quality        *quality.Report     `json:"quality,omitempty"`
	TotalTimeMs    int64               `json:"totalTimeMs"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "request body must be valid JSON", nil)
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "content is required", nil)
		return
	}
	if req.Strategy != "" && !routing.ValidStrategy(routing.Strategy(req.Strategy)) {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "unknown routing strategy: "+req.Strategy, nil)
		return
	}

	res, err := s.orch.ProcessQuery(r.Context(), req.Content, orchestrator.Options{
		SystemPrompt:        req.SystemPrompt,
		ConversationHistory: req.ConversationHistory,
		MaxTokens:           req.MaxTokens,
		Temperature:         req.Temperature,
		Strategy:            routing.Strategy(req.Strategy),
		Tags:                req.Tags,
	})
	if err != nil {
		s.writeQueryError(w, err)
		return
	}

	out := queryResponse{
		ID:             res.QueryID,
		Content:        res.Response.Content,
		Provider:       res.Response.Provider,
		Model:          res.Response.Model,
		CacheHit:       res.CacheHit,
		Similarity:     res.Similarity,
		Cost:           res.Response.Cost,
		Tokens:         res.Response.Tokens,
		ResponseTimeMs: res.Response.ResponseTimeMs,
		Citations:      res.Response.Citations,
		Classification: res.Classification,
		Quality:        res.Quality,
		TotalTimeMs:    res.TotalTimeMs,
	}
	if !res.CacheHit {
		out.Routing = &res.Routing
	}

	s.hub.Publish(events.ChannelEvents, out)
	writeJSON(w, http.StatusOK, out)
}

// writeQueryError maps the pipeline error taxonomy onto HTTP statuses.
func (s *Server) writeQueryError(w http.ResponseWriter, err error) {
	var berr *gateway.BudgetExceededError
	var perr *gateway.ProviderError

	switch {
	case errors.Is(err, gateway.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error(), nil)
	case errors.As(err, &berr):
		writeError(w, http.StatusTooManyRequests, "BUDGET_EXCEEDED", err.Error(), map[string]float64{
			"spent": berr.Spent,
			"limit": berr.Limit,
		})
	case errors.Is(err, gateway.ErrAllCascadeStepsFailed):
		writeError(w, http.StatusBadGateway, "ALL_CASCADE_STEPS_FAILED", err.Error(), nil)
	case errors.Is(err, provider.ErrCircuitOpen):
		writeError(w, http.StatusServiceUnavailable, "PROVIDER_UNAVAILABLE", err.Error(), nil)
	case errors.As(err, &perr):
		writeError(w, http.StatusBadGateway, "PROVIDER_ERROR", err.Error(), map[string]string{
			"provider": perr.Provider,
			"model":    perr.Model,
		})
	default:
		s.logger.Error("query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error", nil)
	}
}

type providerHealth struct {
	Live        bool    `json:"live"`
	Healthy     bool    `json:"healthy"`
	LatencyMs   int64   `json:"latencyMs"`
	SuccessRate float64 `json:"successRate"`
}

type healthResponse struct {
	Status    string                    `json:"status"`
	Providers map[string]providerHealth `json:"providers"`
	WSClients int                       `json:"wsClients"`
	Uptime    string                    `json:"uptime"`
	Timestamp time.Time                 `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	out := healthResponse{
		Status:    "ok",
		Providers: make(map[string]providerHealth),
		WSClients: s.ws.ClientCount(),
		Uptime:    s.uptime().Truncate(time.Second).String(),
		Timestamp: time.Now().UTC(),
	}
	for _, h := range s.registry.HealthSnapshot() {
		out.Providers[h.Name] = providerHealth{
			Live:        h.Live,
			Healthy:     h.Healthy,
			LatencyMs:   h.LatencyMs,
			SuccessRate: h.SuccessRate,
		}
		if !h.Healthy {
			out.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.analytics.GetSummary())
}

func (s *Server) handleAnalyticsEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	evs, total := s.analytics.Events(limit, offset)
	writeJSON(w, http.StatusOK, map[string]any{
		"events": evs,
		"total":  total,
	})
}

func (s *Server) handleBudget(w http.ResponseWriter, r *http.Request) {
	statuses := map[string]budget.Status{}
	for _, period := range []budget.Period{budget.Daily, budget.Weekly, budget.Monthly} {
		statuses[string(period)] = s.budget.Status(period)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"statuses":      statuses,
		"emergencyMode": s.budget.EmergencyMode(),
		"byProvider":    s.budget.SpendByProvider(),
		"byModel":       s.budget.SpendByModel(),
	})
}

const cacheEntryLimit = 100

func (s *Server) handleCache(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"stats":   s.cache.Stats(r.Context()),
		"entries": s.cache.Entries(r.Context(), cacheEntryLimit),
	})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if err := s.cache.Clear(r.Context()); err != nil {
		s.logger.Error("cache clear failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "cache clear failed", nil)
		return
	}
	s.hub.Publish(events.ChannelCache, map[string]string{"action": "cleared"})
	writeJSON(w, http.StatusOK, map[string]string{"message": "cache cleared"})
}

func (s *Server) handleCachePrune(w http.ResponseWriter, r *http.Request) {
	pruned := s.cache.PruneExpired(r.Context())
	if pruned > 0 {
		s.hub.Publish(events.ChannelCache, map[string]any{"action": "pruned", "count": pruned})
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "expired entries pruned", "pruned": pruned})
}

func (s *Server) handleArtifacts(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)

	var arts []artifact.Artifact
	switch {
	case r.URL.Query().Get("type") != "":
		arts = s.artifacts.ByType(artifact.Type(r.URL.Query().Get("type")), limit)
	case r.URL.Query().Get("tag") != "":
		arts = s.artifacts.ByTag(r.URL.Query().Get("tag"), limit)
	default:
		arts = s.artifacts.Recent(limit)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"artifacts": arts,
		"summary":   s.artifacts.GetSummary(),
	})
}

func (s *Server) handleArtifactsByQuery(w http.ResponseWriter, r *http.Request) {
	queryID := chi.URLParam(r, "queryId")
	writeJSON(w, http.StatusOK, map[string]any{
		"artifacts": s.artifacts.ByQueryID(queryID),
	})
}

// handleManagerView aggregates the operational snapshot served to the
// dashboard in one round trip.
func (s *Server) handleManagerView(w http.ResponseWriter, r *http.Request) {
	statuses := map[string]budget.Status{}
	for _, period := range []budget.Period{budget.Daily, budget.Weekly, budget.Monthly} {
		statuses[string(period)] = s.budget.Status(period)
	}

	providers := make(map[string]providerHealth)
	for _, h := range s.registry.HealthSnapshot() {
		providers[h.Name] = providerHealth{
			Live:        h.Live,
			Healthy:     h.Healthy,
			LatencyMs:   h.LatencyMs,
			SuccessRate: h.SuccessRate,
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"budget": map[string]any{
			"statuses":      statuses,
			"emergencyMode": s.budget.EmergencyMode(),
		},
		"cache":     s.cache.Stats(r.Context()),
		"artifacts": s.artifacts.GetSummary(),
		"analytics": s.analytics.GetSummary(),
		"providers": providers,
		"uptime":    s.uptime().Truncate(time.Second).String(),
	})
}

type apiError struct {
	Error      string `json:"error"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
	Details    any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, apiError{
		Error:      http.StatusText(status),
		Code:       code,
		Message:    message,
		StatusCode: status,
		Details:    details,
	})
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
