package domain

import (
	"context"
)

// VectorEncoder defines the interface for generating embeddings.
// The apiKey is per-request: a caller-supplied credential or the
// server-side fallback. Dimensionality is fixed by the provider model
// and must match the stored corpus.
type VectorEncoder interface {
	Encode(ctx context.Context, texts []string, apiKey string) ([][]float32, error)
	Version() string
}
