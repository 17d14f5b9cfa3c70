package domain

import "context"

// RerankCandidate represents a document candidate for LLM reranking.
type RerankCandidate struct {
	// ID is the page identifier (used to map back results).
	ID string
	// Text is the content scored against the query: the page's semantic
	// description concatenated with its tagged character list.
	Text string
	// Similarity is the upstream cosine score, kept for the fallback path.
	Similarity float64
}

// RerankScore is one reranked document. Score is an integer on the
// 0-100 scale the prompt asks the model for.
type RerankScore struct {
	ID    string
	Score int
}

// Reranker re-scores a small candidate set for relevance to the
// literal query. A failed call must never fail the overall request:
// callers fall back to similarity-derived scores.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []RerankCandidate, apiKey string) ([]RerankScore, error)

	// ModelName returns the model identifier for logging and for
	// stamping feedback rows with the provider in effect.
	ModelName() string
}

// CrossEncoderScorer scores a single (query, document) pair and
// returns the raw classifier logit. Implementations are the loaded
// local model; the rerank worker applies the sigmoid.
type CrossEncoderScorer interface {
	Score(ctx context.Context, query, document string) (float64, error)
}

// ModelLoadProgress is a discrete progress event emitted while the
// local model downloads and initializes.
type ModelLoadProgress struct {
	Stage   string
	Percent int
}

// ModelLoader fetches and initializes the local cross-encoder once.
// Weights come from a public model host and are cached on disk, so a
// second load is cheap.
type ModelLoader interface {
	Load(ctx context.Context, onProgress func(ModelLoadProgress)) (CrossEncoderScorer, error)
}
