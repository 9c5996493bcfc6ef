// Package cache implements the semantic response cache: a pluggable
// key-value store fronted by an exact-hash index and a linear cosine
// similarity scan over token-count vectors.
package cache

import (
	"context"
	"time"
)

// Entry is one cached response. Only HitCount mutates after creation.
type Entry struct {
	QueryHash  string    `json:"query_hash"`
	QueryText  string    `json:"query_text"`
	Response   string    `json:"response"`
	Provider   string    `json:"provider"`
	Model      string    `json:"model"`
	Cost       float64   `json:"cost"`
	TokensUsed int       `json:"tokens_used"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	HitCount   int       `json:"hit_count"`
}

func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}

// Store is the adapter contract. Implementations are registered at startup;
// the semantic layer treats the store as the source of truth.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, entry *Entry) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Size(ctx context.Context) (int, error)
	Entries(ctx context.Context) ([]*Entry, error)
}
