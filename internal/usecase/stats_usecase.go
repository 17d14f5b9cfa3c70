package usecase

import (
	"context"
	"fmt"

	"scantrad-search/internal/cache"
	"scantrad-search/internal/domain"
)

const statsCacheKey = "corpus_stats"

// StatsUsecase defines the interface for the corpus stats snapshot.
type StatsUsecase interface {
	Get(ctx context.Context) (domain.CorpusStats, error)
}

type statsUsecase struct {
	repo     domain.StatsRepository
	memoizer *cache.Memoizer[domain.CorpusStats]
}

// NewStatsUsecase creates a new StatsUsecase. The snapshot is memoized
// so concurrent identical computations collapse into one query.
func NewStatsUsecase(repo domain.StatsRepository, memoizer *cache.Memoizer[domain.CorpusStats]) StatsUsecase {
	return &statsUsecase{repo: repo, memoizer: memoizer}
}

func (u *statsUsecase) Get(ctx context.Context) (domain.CorpusStats, error) {
	stats, err := u.memoizer.Do(ctx, statsCacheKey, func(ctx context.Context) (domain.CorpusStats, error) {
		return u.repo.CorpusStats(ctx)
	})
	if err != nil {
		return domain.CorpusStats{}, fmt.Errorf("failed to compute corpus stats: %w", err)
	}
	return stats, nil
}
