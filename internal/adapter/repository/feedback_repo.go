package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"scantrad-search/internal/domain"
)

type feedbackRepository struct {
	pool *pgxpool.Pool
}

// NewFeedbackRepository creates the append-only feedback store.
func NewFeedbackRepository(pool *pgxpool.Pool) domain.FeedbackRepository {
	return &feedbackRepository{pool: pool}
}

// Insert appends one relevance judgment. The table carries a unique
// index on (query, doc_id); a duplicate submission is a no-op rather
// than an error, making the endpoint safe against clients that bypass
// the UI's local at-most-once guard.
func (r *feedbackRepository) Insert(ctx context.Context, fb domain.SearchFeedback) error {
	query := `
		INSERT INTO search_feedback (id, query, doc_id, doc_text, is_relevant, model_provider, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (query, doc_id) DO NOTHING
	`
	_, err := r.pool.Exec(ctx, query,
		fb.ID, fb.Query, fb.DocID, fb.DocText, fb.IsRelevant, fb.Provider, fb.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert feedback: %w", err)
	}
	return nil
}
