package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"scantrad-search/internal/domain"
)

type statsRepository struct {
	pool *pgxpool.Pool
}

// NewStatsRepository creates the aggregate stats reader.
func NewStatsRepository(pool *pgxpool.Pool) domain.StatsRepository {
	return &statsRepository{pool: pool}
}

func (r *statsRepository) CorpusStats(ctx context.Context) (domain.CorpusStats, error) {
	stats := domain.CorpusStats{PagesByStatus: make(map[string]int64)}

	rows, err := r.pool.Query(ctx, `SELECT statut, COUNT(*) FROM pages GROUP BY statut`)
	if err != nil {
		return stats, fmt.Errorf("failed to query page stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return stats, fmt.Errorf("failed to scan page stats: %w", err)
		}
		stats.PagesByStatus[status] = count
	}
	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("rows error: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM bulles WHERE statut = 'Validated'`,
	).Scan(&stats.ValidatedBubbles)
	if err != nil {
		return stats, fmt.Errorf("failed to count validated bubbles: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM pages WHERE embedding IS NOT NULL`,
	).Scan(&stats.EmbeddedPages)
	if err != nil {
		return stats, fmt.Errorf("failed to count embedded pages: %w", err)
	}

	return stats, nil
}
