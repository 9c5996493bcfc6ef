// Package cascade runs a chain of provider calls with quality gates:
// the first step whose response scores at or above its threshold wins,
// otherwise the best-scoring successful step does.
package cascade

import (
	"context"

	"go.uber.org/zap"

	"github.com/switchyard-ai/switchyard/internal/gateway"
	"github.com/switchyard-ai/switchyard/internal/provider"
	"github.com/switchyard-ai/switchyard/internal/routing"
)

// RunFunc executes one step's provider call.
type RunFunc func(ctx context.Context, providerName, model string) (*provider.ChatResponse, error)

// EvaluateFunc scores one step's response on the 0-10 quality scale.
type EvaluateFunc func(resp *provider.ChatResponse) float64

// StepResult records one attempted step for the trail.
type StepResult struct {
	Provider  string
	Model     string
	Score     float64
	Threshold float64
	Index     int
	Failed    bool
	Err       error
}

// Result is the executor outcome.
type Result struct {
	Response     *provider.ChatResponse
	Score        float64
	StepIndex    int
	ThresholdMet bool
	Trail        []StepResult
}

// OnStepFunc observes each attempted step as it completes.
type OnStepFunc func(step StepResult)

type Executor struct {
	logger *zap.Logger
}

func NewExecutor(logger *zap.Logger) *Executor {
	return &Executor{logger: logger}
}

// Execute walks the chain in order. Step failures are recorded and the
// chain advances; when no step meets its threshold the best successful
// step is returned. All steps failing yields ErrAllCascadeStepsFailed.
func (e *Executor) Execute(ctx context.Context, chain []routing.ChainStep, run RunFunc, evaluate EvaluateFunc, onStep OnStepFunc) (*Result, error) {
	if len(chain) == 0 {
		return nil, gateway.ErrAllCascadeStepsFailed
	}

	result := &Result{StepIndex: -1}

	for i, step := range chain {
		if err := ctx.Err(); err != nil {
			if result.Response != nil {
				break
			}
			return nil, err
		}

		resp, err := run(ctx, step.Provider, step.Model)
		if err != nil {
			sr := StepResult{
				Provider: step.Provider, Model: step.Model,
				Threshold: step.QualityThreshold, Index: i,
				Failed: true, Err: err,
			}
			result.Trail = append(result.Trail, sr)
			e.logger.Warn("cascade step failed",
				zap.Int("step", i),
				zap.String("provider", step.Provider),
				zap.String("model", step.Model),
				zap.Error(err))
			if onStep != nil {
				onStep(sr)
			}
			continue
		}

		score := evaluate(resp)
		sr := StepResult{
			Provider: step.Provider, Model: step.Model,
			Score: score, Threshold: step.QualityThreshold, Index: i,
		}
		result.Trail = append(result.Trail, sr)
		if onStep != nil {
			onStep(sr)
		}

		if result.Response == nil || score > result.Score {
			result.Response = resp
			result.Score = score
			result.StepIndex = i
		}

		if score >= step.QualityThreshold {
			result.Response = resp
			result.Score = score
			result.StepIndex = i
			result.ThresholdMet = true
			return result, nil
		}
	}

	if result.Response == nil {
		return nil, gateway.ErrAllCascadeStepsFailed
	}

	e.logger.Info("no cascade step met its threshold, returning best",
		zap.Int("step", result.StepIndex),
		zap.Float64("score", result.Score))
	return result, nil
}
