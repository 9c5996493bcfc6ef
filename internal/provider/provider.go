// Package provider defines the uniform adapter interface every upstream
// model API implements, plus the registry that tracks adapter health.
package provider

import (
	"context"
)

// Message is one turn of conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the provider-agnostic request shape.
type ChatRequest struct {
	ID                  string    `json:"id"`
	Content             string    `json:"content"`
	SystemPrompt        string    `json:"systemPrompt,omitempty"`
	ConversationHistory []Message `json:"conversationHistory,omitempty"`
	MaxTokens           int       `json:"maxTokens,omitempty"`
	Temperature         *float64  `json:"temperature,omitempty"`
}

// TokenUsage is the provider-reported token accounting.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

// ChatResponse is the provider-agnostic response shape.
type ChatResponse struct {
	ID             string     `json:"id"`
	Content        string     `json:"content"`
	Provider       string     `json:"provider"`
	Model          string     `json:"model"`
	Tokens         TokenUsage `json:"tokens"`
	Cost           float64    `json:"cost"`
	ResponseTimeMs int64      `json:"responseTimeMs"`
	Citations      []string   `json:"citations,omitempty"`
	FinishReason   string     `json:"finishReason,omitempty"`
}

// Provider is the adapter contract. Chat must be safe for concurrent use.
type Provider interface {
	Name() string
	Chat(ctx context.Context, req ChatRequest, model string) (*ChatResponse, error)
	AvailableModels() []string
	EstimateCost(inTok, outTok int, model string) float64
	HealthCheck(ctx context.Context) bool
}
