package repository

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"scantrad-search/internal/domain"
)

type PageRepository struct {
	pool *pgxpool.Pool
}

// NewPageRepository creates the page-side corpus repository.
func NewPageRepository(pool *pgxpool.Pool) *PageRepository {
	return &PageRepository{pool: pool}
}

var _ domain.PageRepository = (*PageRepository)(nil)

// ListEmbedded loads the whole semantic corpus: pages with a saved
// description and a non-null embedding. The embedding is read in text
// form because historical rows hold either a native vector or a JSON
// string; decoding is deferred to the usecase so one bad row cannot
// abort the batch.
func (r *PageRepository) ListEmbedded(ctx context.Context) ([]domain.EmbeddedPage, error) {
	query := `
		SELECT p.id, p.url_image,
		       t.numero AS tome_numero,
		       c.numero AS chapitre_numero,
		       p.numero_page,
		       p.description,
		       p.embedding::text
		FROM pages p
		JOIN chapitres c ON c.id = p.chapitre_id
		JOIN tomes t ON t.id = c.tome_id
		WHERE p.embedding IS NOT NULL
		  AND p.description IS NOT NULL
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query embedded pages: %w", err)
	}
	defer rows.Close()

	var pages []domain.EmbeddedPage
	for rows.Next() {
		var (
			id   int64
			page domain.EmbeddedPage
		)
		if err := rows.Scan(
			&id, &page.ImageURL,
			&page.TomeNumber, &page.ChapterNumber, &page.PageNumber,
			&page.RawDescription, &page.RawEmbedding,
		); err != nil {
			return nil, fmt.Errorf("failed to scan embedded page: %w", err)
		}
		page.PageID = strconv.FormatInt(id, 10)
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return pages, nil
}

// GetDescriptions returns raw description blobs keyed by page id.
func (r *PageRepository) GetDescriptions(ctx context.Context, pageIDs []string) (map[string]string, error) {
	if len(pageIDs) == 0 {
		return map[string]string{}, nil
	}

	query := `
		SELECT id, description
		FROM pages
		WHERE id::text = ANY($1)
		  AND description IS NOT NULL
	`
	rows, err := r.pool.Query(ctx, query, pageIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query descriptions: %w", err)
	}
	defer rows.Close()

	descriptions := make(map[string]string, len(pageIDs))
	for rows.Next() {
		var (
			id   int64
			desc string
		)
		if err := rows.Scan(&id, &desc); err != nil {
			return nil, fmt.Errorf("failed to scan description: %w", err)
		}
		descriptions[strconv.FormatInt(id, 10)] = desc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return descriptions, nil
}

// PageToEmbed is a page whose description still lacks an embedding.
type PageToEmbed struct {
	ID             int64
	RawDescription string
}

// ListMissingEmbedding returns pages with a description but no
// embedding yet, with id greater than afterID. Used by the backfill
// CLI, which walks the table in id order and resumes from a cursor.
func (r *PageRepository) ListMissingEmbedding(ctx context.Context, afterID int64, limit int) ([]PageToEmbed, error) {
	query := `
		SELECT id, description
		FROM pages
		WHERE description IS NOT NULL
		  AND embedding IS NULL
		  AND id > $1
		ORDER BY id
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pages missing embedding: %w", err)
	}
	defer rows.Close()

	var pages []PageToEmbed
	for rows.Next() {
		var p PageToEmbed
		if err := rows.Scan(&p.ID, &p.RawDescription); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return pages, nil
}

// SaveEmbedding stores the computed vector for a page. Only pages that
// already carry a description are eligible, which preserves the
// description-before-embedding invariant.
func (r *PageRepository) SaveEmbedding(ctx context.Context, pageID int64, vec []float32) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE pages SET embedding = $2 WHERE id = $1 AND description IS NOT NULL`,
		pageID, pgvector.NewVector(vec),
	)
	if err != nil {
		return fmt.Errorf("failed to save embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("page %d has no description or does not exist", pageID)
	}
	return nil
}
