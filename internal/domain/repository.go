package domain

import (
	"context"
)

// BubbleSearchRepository wraps the stored full-text search function
// over bubble transcripts.
type BubbleSearchRepository interface {
	// SearchBubbles runs the full-text operator for the literal term and
	// returns matching bubble rows with locator metadata, best rank
	// first, up to limit rows starting at offset.
	SearchBubbles(ctx context.Context, term string, limit, offset int) ([]BubbleRow, error)
}

// PageRepository reads the page side of the search corpus.
type PageRepository interface {
	// ListEmbedded returns every page with a non-null embedding. The
	// corpus is bounded (tens of thousands of pages) and is filtered
	// and scored in memory.
	ListEmbedded(ctx context.Context) ([]EmbeddedPage, error)

	// GetDescriptions returns raw description blobs keyed by page id
	// for the given ids. Missing pages are simply absent from the map.
	GetDescriptions(ctx context.Context, pageIDs []string) (map[string]string, error)
}

// FeedbackRepository persists relevance judgments. Pure append.
type FeedbackRepository interface {
	Insert(ctx context.Context, fb SearchFeedback) error
}

// StatsRepository aggregates corpus counts for the stats endpoint.
type StatsRepository interface {
	CorpusStats(ctx context.Context) (CorpusStats, error)
}

// CorpusStats is the aggregate snapshot served at /stats.
type CorpusStats struct {
	PagesByStatus    map[string]int64
	ValidatedBubbles int64
	EmbeddedPages    int64
}
