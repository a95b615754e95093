// Package embed defines the text embedding contract used by the
// vector search engine, plus a cache decorator.
package embed

import (
	"context"
	"errors"
)

// Result is one embedding with its token usage. Cache hits report zero
// tokens.
type Result struct {
	Vector       []float32
	PromptTokens int
	TotalTokens  int
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) (Result, error)
}

// ErrProvider marks upstream embedding API failures.
var ErrProvider = errors.New("embedding provider error")

// ErrNotFound is returned by Cache.Get for absent keys.
var ErrNotFound = errors.New("embedding cache: key not found")

// Cache is the consumer interface for the embedding cache.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}
