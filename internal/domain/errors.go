package domain

import "errors"

// Sentinel errors for the search core. Handlers map these onto HTTP
// status codes with errors.Is; everything else is a 500.
var (
	// ErrInvalidQuery is returned when the query is too short to search.
	ErrInvalidQuery = errors.New("query must be at least 2 characters")

	// ErrMissingCredential is returned when semantic search or reranking
	// is attempted without an API key (neither per-request nor server-side).
	ErrMissingCredential = errors.New("missing credential for semantic search")

	// ErrUpstreamFailure wraps embedding or reranking service failures.
	ErrUpstreamFailure = errors.New("upstream ai service failure")

	// ErrMalformedData marks a single candidate whose stored description
	// or embedding cannot be parsed. Never aborts a batch.
	ErrMalformedData = errors.New("malformed stored data")

	// ErrModelNotReady is returned when the local rerank worker is asked
	// to score before its model finished loading.
	ErrModelNotReady = errors.New("rerank model not ready")
)
