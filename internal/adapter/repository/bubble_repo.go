package repository

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"

	"scantrad-search/internal/domain"
)

type bubbleSearchRepository struct {
	pool *pgxpool.Pool
}

// NewBubbleSearchRepository creates a repository over the stored
// full-text search function for bubble transcripts.
func NewBubbleSearchRepository(pool *pgxpool.Pool) domain.BubbleSearchRepository {
	return &bubbleSearchRepository{pool: pool}
}

// SearchBubbles calls the search_bulles stored function. Rows come back
// best match first; the generous limit lets the usecase filter in
// memory without losing recall.
func (r *bubbleSearchRepository) SearchBubbles(ctx context.Context, term string, limit, offset int) ([]domain.BubbleRow, error) {
	query := `
		SELECT id, page_id, url_image, x, y, w, h,
		       texte_propose, tome_numero, chapitre_numero, numero_page
		FROM search_bulles($1, $2, $3)
	`
	rows, err := r.pool.Query(ctx, query, term, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to call search_bulles: %w", err)
	}
	defer rows.Close()

	var results []domain.BubbleRow
	for rows.Next() {
		var (
			id     int64
			pageID int64
			row    domain.BubbleRow
		)
		if err := rows.Scan(
			&id, &pageID, &row.ImageURL,
			&row.X, &row.Y, &row.W, &row.H,
			&row.ProposedText, &row.TomeNumber, &row.ChapterNumber, &row.PageNumber,
		); err != nil {
			return nil, fmt.Errorf("failed to scan bubble row: %w", err)
		}
		row.ID = strconv.FormatInt(id, 10)
		row.PageID = strconv.FormatInt(pageID, 10)
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return results, nil
}
