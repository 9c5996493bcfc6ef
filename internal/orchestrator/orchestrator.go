// Package orchestrator composes the request pipeline: classify, consult the
// semantic cache, admit against the budget, route, execute (cascade or
// direct), then fan out the bookkeeping.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/switchyard-ai/switchyard/internal/analytics"
	"github.com/switchyard-ai/switchyard/internal/artifact"
	"github.com/switchyard-ai/switchyard/internal/budget"
	"github.com/switchyard-ai/switchyard/internal/cache"
	"github.com/switchyard-ai/switchyard/internal/cascade"
	"github.com/switchyard-ai/switchyard/internal/classify"
	"github.com/switchyard-ai/switchyard/internal/costbook"
	"github.com/switchyard-ai/switchyard/internal/gateway"
	"github.com/switchyard-ai/switchyard/internal/metrics"
	"github.com/switchyard-ai/switchyard/internal/provider"
	"github.com/switchyard-ai/switchyard/internal/quality"
	"github.com/switchyard-ai/switchyard/internal/routing"
)

// Per-step provider call deadlines.
const (
	defaultStepTimeout   = 60 * time.Second
	reasoningStepTimeout = 120 * time.Second
)

// Options are the caller-controlled knobs for one query.
type Options struct {
	SystemPrompt        string
	ConversationHistory []provider.Message
	MaxTokens           int
	Temperature         *float64
	Strategy            routing.Strategy
	Tags                []string
}

// Result is the full outcome of one processed query.
type Result struct {
	QueryID        string
	Response       *provider.ChatResponse
	Classification classify.Query
	Routing        routing.Decision
	Quality        *quality.Report
	Artifacts      []artifact.Artifact
	CacheHit       bool
	Similarity     float64
	TotalTimeMs    int64
}

// ProviderCaller is the slice of the provider registry the pipeline needs.
type ProviderCaller interface {
	Chat(ctx context.Context, name string, req provider.ChatRequest, model string) (*provider.ChatResponse, error)
}

type Orchestrator struct {
	classifier *classify.Classifier
	cache      *cache.Semantic
	budget     *budget.Tracker
	router     *routing.Router
	executor   *cascade.Executor
	providers  ProviderCaller
	book       *costbook.Book
	estimator  *quality.Estimator
	artifacts  *artifact.Store
	analytics  *analytics.Service
	logger     *zap.Logger

	ttl              classify.TTLPolicy
	stepTimeout      time.Duration
	reasoningTimeout time.Duration
}

// Deps bundles the subsystems the orchestrator composes. Everything is
// explicit; there is no process-global state.
type Deps struct {
	Classifier *classify.Classifier
	Cache      *cache.Semantic
	Budget     *budget.Tracker
	Router     *routing.Router
	Executor   *cascade.Executor
	Providers  ProviderCaller
	Book       *costbook.Book
	Estimator  *quality.Estimator
	Artifacts  *artifact.Store
	Analytics  *analytics.Service
	Logger     *zap.Logger

	// TTL tunes cache lifetimes per query class; zero fields use defaults.
	TTL classify.TTLPolicy
}

func New(d Deps) *Orchestrator {
	return &Orchestrator{
		classifier:       d.Classifier,
		cache:            d.Cache,
		budget:           d.Budget,
		router:           d.Router,
		executor:         d.Executor,
		providers:        d.Providers,
		book:             d.Book,
		estimator:        d.Estimator,
		artifacts:        d.Artifacts,
		analytics:        d.Analytics,
		logger:           d.Logger,
		ttl:              d.TTL,
		stepTimeout:      defaultStepTimeout,
		reasoningTimeout: reasoningStepTimeout,
	}
}

// ProcessQuery runs the full pipeline for one query.
func (o *Orchestrator) ProcessQuery(ctx context.Context, text string, opts Options) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty query", gateway.ErrInvalidInput)
	}

	queryID := uuid.NewString()
	start := time.Now()

	// Classification is pure and fast; the cache lookup depends on its
	// outcome (realtime and creative queries skip the cache entirely).
	q := o.classifier.Classify(text)

	if !classify.ShouldSkipCache(q) {
		if m := o.cache.Lookup(ctx, text); m != nil {
			return o.serveCacheHit(queryID, q, m, start), nil
		}
		metrics.RecordCacheMiss()
	}

	// Budget admission. Only a fully spent daily budget rejects.
	daily := o.budget.Status(budget.Daily)
	if daily.PercentUsed >= 100 {
		o.recordBudgetReject(queryID, q, daily)
		metrics.RecordError("budget_exceeded")
		metrics.RecordQuery(string(q.Complexity), string(q.Intent), "", "rejected", time.Since(start).Seconds())
		return nil, &gateway.BudgetExceededError{Spent: daily.Spent, Limit: daily.Limit}
	}

	decision := o.router.Route(q, opts.Strategy)
	o.logger.Debug("routed query",
		zap.String("query_id", queryID),
		zap.String("complexity", string(q.Complexity)),
		zap.String("intent", string(q.Intent)),
		zap.String("strategy", string(decision.Strategy)),
		zap.String("provider", decision.Provider),
		zap.String("model", decision.Model),
		zap.Float64("estimated_cost", decision.EstimatedCost))

	routeArt := o.artifacts.RecordRouteDecision(artifact.RouteDecisionParams{
		QueryID:       queryID,
		Complexity:    string(q.Complexity),
		Strategy:      string(decision.Strategy),
		Provider:      decision.Provider,
		Model:         decision.Model,
		EstimatedCost: decision.EstimatedCost,
		Confidence:    decision.Confidence,
		Reasoning:     decision.Reasoning,
		Tags:          opts.Tags,
	})

	req := provider.ChatRequest{
		ID:                  queryID,
		Content:             text,
		SystemPrompt:        opts.SystemPrompt,
		ConversationHistory: opts.ConversationHistory,
		MaxTokens:           opts.MaxTokens,
		Temperature:         opts.Temperature,
	}

	resp, report, err := o.execute(ctx, queryID, q, decision, req)
	if err != nil {
		o.analytics.Record(analytics.Event{
			Type:       analytics.EventError,
			Query:      text,
			Complexity: string(q.Complexity),
			Intent:     string(q.Intent),
			Strategy:   string(decision.Strategy),
			Provider:   decision.Provider,
			Model:      decision.Model,
			Error:      err.Error(),
		})
		metrics.RecordError(errorKind(err))
		metrics.RecordQuery(string(q.Complexity), string(q.Intent), string(decision.Strategy), "error", time.Since(start).Seconds())
		return nil, err
	}

	actual := o.book.EstimateCost(resp.Provider, resp.Model, resp.Tokens.Input, resp.Tokens.Output)
	resp.Cost = actual.EstimatedCost

	o.artifacts.EnrichWithResponse(routeArt.ID, resp.Cost, artifact.ResponseInfo{
		ResponseID:     resp.ID,
		InputTokens:    resp.Tokens.Input,
		OutputTokens:   resp.Tokens.Output,
		ResponseTimeMs: resp.ResponseTimeMs,
		FinishReason:   resp.FinishReason,
		ContentLength:  len(resp.Content),
	}, report)

	// Independent bookkeeping fans out and joins before returning.
	var wg sync.WaitGroup
	if !classify.ShouldSkipCache(q) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.cache.Put(ctx, text, resp.Content, resp.Provider, resp.Model, resp.Cost, resp.Tokens.Total, o.ttl.For(q))
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		o.analytics.Record(analytics.Event{
			Type:           analytics.EventQuery,
			Query:          text,
			Complexity:     string(q.Complexity),
			Intent:         string(q.Intent),
			Strategy:       string(decision.Strategy),
			Provider:       resp.Provider,
			Model:          resp.Model,
			Cost:           resp.Cost,
			ResponseTimeMs: resp.ResponseTimeMs,
		})
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		o.budget.RecordCost(costbook.Actual{
			Provider:     resp.Provider,
			Model:        resp.Model,
			InputTokens:  resp.Tokens.Input,
			OutputTokens: resp.Tokens.Output,
			TotalCost:    resp.Cost,
			Timestamp:    time.Now(),
		})
	}()
	wg.Wait()

	o.publishBudgetGauges()
	metrics.RecordUsage(resp.Provider, resp.Model, resp.Tokens.Input, resp.Tokens.Output, resp.Cost)
	metrics.RecordQuery(string(q.Complexity), string(q.Intent), string(decision.Strategy), "success", time.Since(start).Seconds())

	return &Result{
		QueryID:        queryID,
		Response:       resp,
		Classification: q,
		Routing:        decision,
		Quality:        report,
		Artifacts:      o.artifacts.ByQueryID(queryID),
		TotalTimeMs:    time.Since(start).Milliseconds(),
	}, nil
}

func (o *Orchestrator) serveCacheHit(queryID string, q classify.Query, m *cache.Match, start time.Time) *Result {
	metrics.RecordCacheHit()
	o.artifacts.RecordCacheHit(artifact.CacheHitParams{
		QueryID:    queryID,
		Complexity: string(q.Complexity),
		Provider:   m.Entry.Provider,
		Model:      m.Entry.Model,
		QueryHash:  m.Entry.QueryHash,
		Similarity: m.Similarity,
		SavedCost:  m.Entry.Cost,
	})
	o.analytics.Record(analytics.Event{
		Type:       analytics.EventCacheHit,
		Query:      q.Text,
		Complexity: string(q.Complexity),
		Intent:     string(q.Intent),
		Provider:   m.Entry.Provider,
		Model:      m.Entry.Model,
	})

	resp := &provider.ChatResponse{
		ID:       queryID,
		Content:  m.Entry.Response,
		Provider: m.Entry.Provider,
		Model:    m.Entry.Model,
		Tokens:   provider.TokenUsage{Input: 0, Output: m.Entry.TokensUsed, Total: m.Entry.TokensUsed},
		Cost:     0,
	}
	metrics.RecordQuery(string(q.Complexity), string(q.Intent), "", "cache_hit", time.Since(start).Seconds())

	return &Result{
		QueryID:        queryID,
		Response:       resp,
		Classification: q,
		Artifacts:      o.artifacts.ByQueryID(queryID),
		CacheHit:       true,
		Similarity:     m.Similarity,
		TotalTimeMs:    time.Since(start).Milliseconds(),
	}
}

func (o *Orchestrator) recordBudgetReject(queryID string, q classify.Query, daily budget.Status) {
	o.artifacts.RecordBudgetReject(artifact.BudgetRejectParams{
		QueryID:     queryID,
		Complexity:  string(q.Complexity),
		Spent:       daily.Spent,
		Limit:       daily.Limit,
		PercentUsed: daily.PercentUsed,
	})
	o.analytics.Record(analytics.Event{
		Type:       analytics.EventError,
		Query:      q.Text,
		Complexity: string(q.Complexity),
		Intent:     string(q.Intent),
		Error:      "budget exceeded",
	})
}

// execute runs the cascade when the decision carries a chain, a single
// provider call otherwise. It returns the quality report alongside.
func (o *Orchestrator) execute(ctx context.Context, queryID string, q classify.Query, decision routing.Decision, req provider.ChatRequest) (*provider.ChatResponse, *quality.Report, error) {
	reports := make(map[string]*quality.Report)

	run := func(ctx context.Context, providerName, model string) (*provider.ChatResponse, error) {
		stepCtx, cancel := context.WithTimeout(ctx, o.timeoutFor(providerName, model))
		defer cancel()

		callStart := time.Now()
		resp, err := o.providers.Chat(stepCtx, providerName, req, model)
		if err != nil {
			metrics.RecordProviderCall(providerName, model, "error", time.Since(callStart).Seconds())
			return nil, err
		}
		metrics.RecordProviderCall(providerName, model, "success", time.Since(callStart).Seconds())
		return resp, nil
	}

	evaluate := func(resp *provider.ChatResponse) float64 {
		report := o.estimator.Evaluate(quality.Response{
			Content:        resp.Content,
			Provider:       resp.Provider,
			Citations:      resp.Citations,
			ResponseTimeMs: resp.ResponseTimeMs,
			InputTokens:    resp.Tokens.Input,
			OutputTokens:   resp.Tokens.Output,
		}, q)
		reports[resp.Provider+"/"+resp.Model] = &report
		return report.OverallScore
	}

	if len(decision.Chain) == 0 {
		resp, err := run(ctx, decision.Provider, decision.Model)
		if err != nil {
			return nil, nil, err
		}
		evaluate(resp)
		return resp, reports[resp.Provider+"/"+resp.Model], nil
	}

	chain := decision.Chain
	onStep := func(step cascade.StepResult) {
		if step.Failed || step.Score >= step.Threshold || step.Index+1 >= len(chain) {
			return
		}
		next := chain[step.Index+1]
		o.artifacts.RecordCascadeEscalation(artifact.EscalationParams{
			QueryID:      queryID,
			Complexity:   string(q.Complexity),
			FromProvider: step.Provider,
			FromModel:    step.Model,
			ToProvider:   next.Provider,
			ToModel:      next.Model,
			Score:        step.Score,
			Threshold:    step.Threshold,
			StepIndex:    step.Index,
		})
		metrics.RecordCascadeEscalation(step.Model, next.Model)
	}

	res, err := o.executor.Execute(ctx, chain, run, evaluate, onStep)
	if err != nil {
		return nil, nil, err
	}

	trail := make([]artifact.TrailStep, 0, len(res.Trail))
	for _, s := range res.Trail {
		ts := artifact.TrailStep{
			Provider:  s.Provider,
			Model:     s.Model,
			Score:     s.Score,
			Threshold: s.Threshold,
			StepIndex: s.Index,
			Failed:    s.Failed,
		}
		if s.Err != nil {
			ts.Error = s.Err.Error()
		}
		trail = append(trail, ts)
	}
	o.artifacts.RecordCascadeSuccess(artifact.SuccessParams{
		QueryID:    queryID,
		Complexity: string(q.Complexity),
		Provider:   res.Response.Provider,
		Model:      res.Response.Model,
		Trail:      trail,
	})

	return res.Response, reports[res.Response.Provider+"/"+res.Response.Model], nil
}

func (o *Orchestrator) timeoutFor(providerName, model string) time.Duration {
	if p, ok := o.book.Profile(providerName, model); ok && p.HasCapability(costbook.CapReasoning) {
		return o.reasoningTimeout
	}
	return o.stepTimeout
}

func (o *Orchestrator) publishBudgetGauges() {
	for _, period := range []budget.Period{budget.Daily, budget.Weekly, budget.Monthly} {
		st := o.budget.Status(period)
		metrics.SetBudget(string(period), st.Spent, st.PercentUsed)
	}
	metrics.SetEmergencyMode(o.budget.EmergencyMode())
}

func errorKind(err error) string {
	var perr *gateway.ProviderError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	case errors.Is(err, gateway.ErrAllCascadeStepsFailed):
		return "all_cascade_steps_failed"
	case errors.As(err, &perr):
		if perr.RateLimited() {
			return "rate_limited"
		}
		return "provider_failure"
	default:
		return "internal"
	}
}
