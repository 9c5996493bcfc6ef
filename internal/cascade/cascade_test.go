package cascade

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/switchyard-ai/switchyard/internal/gateway"
	"github.com/switchyard-ai/switchyard/internal/provider"
	"github.com/switchyard-ai/switchyard/internal/routing"
)

func mediumChain() []routing.ChainStep {
	return []routing.ChainStep{
		{Provider: "perplexity", Model: "sonar", QualityThreshold: 7.0},
		{Provider: "openai", Model: "gpt-4o-mini", QualityThreshold: 8.5},
		{Provider: "openai", Model: "gpt-4o", QualityThreshold: 9.0},
	}
}

// scripted builds run/evaluate funcs from per-model scores and errors.
func scripted(scores map[string]float64, failures map[string]error) (RunFunc, EvaluateFunc) {
	run := func(_ context.Context, providerName, model string) (*provider.ChatResponse, error) {
		if err, ok := failures[model]; ok {
			return nil, err
		}
		return &provider.ChatResponse{Provider: providerName, Model: model, Content: "answer from " + model}, nil
	}
	evaluate := func(resp *provider.ChatResponse) float64 {
		return scores[resp.Model]
	}
	return run, evaluate
}

func TestFirstStepMeetingThresholdWins(t *testing.T) {
	e := NewExecutor(zap.NewNop())
	run, eval := scripted(map[string]float64{"sonar": 7.4}, nil)

	res, err := e.Execute(context.Background(), mediumChain(), run, eval, nil)
	require.NoError(t, err)
	assert.Equal(t, "sonar", res.Response.Model)
	assert.Equal(t, 0, res.StepIndex)
	assert.True(t, res.ThresholdMet)
	assert.Len(t, res.Trail, 1)
}

func TestEscalatesThenStopsAtSecondStep(t *testing.T) {
	e := NewExecutor(zap.NewNop())
	run, eval := scripted(map[string]float64{"sonar": 6.5, "gpt-4o-mini": 9.0}, nil)

	var observed []StepResult
	res, err := e.Execute(context.Background(), mediumChain(), run, eval, func(s StepResult) {
		observed = append(observed, s)
	})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", res.Response.Model)
	assert.Equal(t, 1, res.StepIndex)
	assert.Equal(t, 9.0, res.Score)
	assert.True(t, res.ThresholdMet)

	require.Len(t, observed, 2)
	assert.Equal(t, "sonar", observed[0].Model)
	assert.Equal(t, 6.5, observed[0].Score)
	assert.Equal(t, "gpt-4o-mini", observed[1].Model)
}

func TestNoThresholdMetReturnsBest(t *testing.T) {
	e := NewExecutor(zap.NewNop())
	run, eval := scripted(map[string]float64{"sonar": 5.0, "gpt-4o-mini": 6.8, "gpt-4o": 6.1}, nil)

	res, err := e.Execute(context.Background(), mediumChain(), run, eval, nil)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", res.Response.Model)
	assert.Equal(t, 6.8, res.Score)
	assert.False(t, res.ThresholdMet)
	assert.Len(t, res.Trail, 3)
}

func TestFailedStepAdvancesChain(t *testing.T) {
	e := NewExecutor(zap.NewNop())
	boom := &gateway.ProviderError{Provider: "perplexity", Model: "sonar", StatusCode: 503, Err: errors.New("down")}
	run, eval := scripted(map[string]float64{"gpt-4o-mini": 8.6}, map[string]error{"sonar": boom})

	res, err := e.Execute(context.Background(), mediumChain(), run, eval, nil)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", res.Response.Model)

	require.Len(t, res.Trail, 2)
	assert.True(t, res.Trail[0].Failed)
	assert.ErrorIs(t, res.Trail[0].Err, boom)
}

func TestAllStepsFailing(t *testing.T) {
	e := NewExecutor(zap.NewNop())
	boom := errors.New("down")
	run, eval := scripted(nil, map[string]error{"sonar": boom, "gpt-4o-mini": boom, "gpt-4o": boom})

	_, err := e.Execute(context.Background(), mediumChain(), run, eval, nil)
	assert.ErrorIs(t, err, gateway.ErrAllCascadeStepsFailed)
}

func TestEmptyChainFails(t *testing.T) {
	e := NewExecutor(zap.NewNop())
	run, eval := scripted(nil, nil)

	_, err := e.Execute(context.Background(), nil, run, eval, nil)
	assert.ErrorIs(t, err, gateway.ErrAllCascadeStepsFailed)
}

func TestCancelledContextStopsBeforeNextStep(t *testing.T) {
	e := NewExecutor(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	run := func(context.Context, string, string) (*provider.ChatResponse, error) {
		calls++
		cancel()
		return nil, errors.New("down")
	}
	eval := func(*provider.ChatResponse) float64 { return 0 }

	_, err := e.Execute(ctx, mediumChain(), run, eval, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
