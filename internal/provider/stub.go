package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/switchyard-ai/switchyard/internal/costbook"
)

// Stub is a scripted in-process provider used in tests and in dev mode when
// no API keys are configured. Responses come from a script keyed by model;
// unscripted models echo the request.
type Stub struct {
	name   string
	models []string
	book   *costbook.Book

	mu      sync.Mutex
	scripts map[string][]stubResult
	calls   []StubCall
	down    bool
}

type stubResult struct {
	resp *ChatResponse
	err  error
}

// StubCall records one Chat invocation, for assertions.
type StubCall struct {
	Model   string
	Content string
}

func NewStub(name string, book *costbook.Book, models ...string) *Stub {
	return &Stub{
		name:    name,
		models:  models,
		book:    book,
		scripts: make(map[string][]stubResult),
	}
}

func (s *Stub) Name() string { return s.name }

func (s *Stub) AvailableModels() []string {
	return append([]string(nil), s.models...)
}

// EstimateCost delegates to the cost book; the book is the single pricing
// authority.
func (s *Stub) EstimateCost(inTok, outTok int, model string) float64 {
	return s.book.EstimateCost(s.name, model, inTok, outTok).EstimatedCost
}

func (s *Stub) HealthCheck(context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.down
}

// SetDown toggles health check failures.
func (s *Stub) SetDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

// ScriptResponse queues a canned response for the model. Queued results are
// consumed in FIFO order.
func (s *Stub) ScriptResponse(model string, resp ChatResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[model] = append(s.scripts[model], stubResult{resp: &resp})
}

// ScriptError queues a failure for the model.
func (s *Stub) ScriptError(model string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[model] = append(s.scripts[model], stubResult{err: err})
}

// Calls returns every Chat invocation seen so far.
func (s *Stub) Calls() []StubCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StubCall(nil), s.calls...)
}

func (s *Stub) Chat(ctx context.Context, req ChatRequest, model string) (*ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.calls = append(s.calls, StubCall{Model: model, Content: req.Content})
	queue := s.scripts[model]
	var next *stubResult
	if len(queue) > 0 {
		next = &queue[0]
		s.scripts[model] = queue[1:]
	}
	s.mu.Unlock()

	if next != nil {
		if next.err != nil {
			return nil, next.err
		}
		resp := *next.resp
		if resp.ID == "" {
			resp.ID = uuid.NewString()
		}
		resp.Provider = s.name
		resp.Model = model
		return &resp, nil
	}

	// Unscripted: echo with plausible usage numbers.
	inTok := (len(req.Content) + 3) / 4
	outTok := inTok + 20
	return &ChatResponse{
		ID:       uuid.NewString(),
		Content:  fmt.Sprintf("stub response from %s/%s", s.name, model),
		Provider: s.name,
		Model:    model,
		Tokens:   TokenUsage{Input: inTok, Output: outTok, Total: inTok + outTok},
		Cost:     s.EstimateCost(inTok, outTok, model),
	}, nil
}
