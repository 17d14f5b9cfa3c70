package di

import (
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"scantrad-search/internal/adapter/aiclient"
	"scantrad-search/internal/adapter/repository"
	"scantrad-search/internal/adapter/search_http"
	"scantrad-search/internal/cache"
	"scantrad-search/internal/domain"
	"scantrad-search/internal/infra/config"
	"scantrad-search/internal/infra/httpclient"
	"scantrad-search/internal/usecase"
	"scantrad-search/internal/worker"
)

// ApplicationComponents holds all wired dependencies for the application.
type ApplicationComponents struct {
	// Repositories
	PageRepo     *repository.PageRepository
	FeedbackRepo domain.FeedbackRepository

	// Usecases
	SearchUsecase   usecase.SearchUsecase
	FeedbackUsecase usecase.FeedbackUsecase
	StatsUsecase    usecase.StatsUsecase

	// External clients
	Embedder domain.VectorEncoder
	Reranker domain.Reranker

	// Worker
	RerankWorker *worker.RerankWorker

	// Handler wiring
	Handler *search_http.Handler
}

// NewApplicationComponents wires all dependencies from config and database pool.
func NewApplicationComponents(cfg *config.Config, pool *pgxpool.Pool, log *slog.Logger) (*ApplicationComponents, error) {
	// Repositories
	bubbleRepo := repository.NewBubbleSearchRepository(pool)
	pageRepo := repository.NewPageRepository(pool)
	feedbackRepo := repository.NewFeedbackRepository(pool)
	statsRepo := repository.NewStatsRepository(pool)

	// Shared HTTP clients with connection pooling
	embedderHTTP := httpclient.NewPooledClient(time.Duration(cfg.Embedder.Timeout) * time.Second)
	rerankHTTP := httpclient.NewPooledClient(time.Duration(cfg.Rerank.Timeout) * time.Second)

	// External clients
	embedder := aiclient.NewEmbedderClient(cfg.Embedder.URL, cfg.Embedder.Model, embedderHTTP, log)
	reranker := aiclient.NewLLMRerankerClient(
		cfg.Rerank.URL,
		cfg.Rerank.Model,
		cfg.Rerank.PromptTemplate,
		cfg.Rerank.MaxCandidateChars,
		rerankHTTP,
		log,
	)

	// Caches
	corpusCache, err := cache.New[[]domain.EmbeddedPage](2, time.Duration(cfg.Search.CorpusCacheTTL)*time.Second)
	if err != nil {
		return nil, err
	}
	statsCache, err := cache.New[domain.CorpusStats](cfg.Stats.CacheSize, time.Duration(cfg.Stats.CacheTTL)*time.Second)
	if err != nil {
		return nil, err
	}

	// Usecases
	searchUsecase := usecase.NewSearchUsecase(
		bubbleRepo, pageRepo, embedder, reranker, corpusCache,
		usecase.SearchOptions{
			KeywordFetchLimit: cfg.Search.KeywordFetchLimit,
			SemanticTopK:      cfg.Search.SemanticTopK,
			SimilarityFloor:   cfg.Search.SimilarityFloor,
			RerankThreshold:   cfg.Rerank.ScoreThreshold,
		},
		log,
	)
	feedbackUsecase := usecase.NewFeedbackUsecase(feedbackRepo, log)
	statsUsecase := usecase.NewStatsUsecase(statsRepo, statsCache)

	// Local cross-encoder worker
	loader := aiclient.NewHTTPModelLoader(
		cfg.Worker.ModelName,
		cfg.Worker.ModelBaseURL,
		cfg.Worker.CacheDir,
		cfg.Worker.ScorerURL,
		httpclient.NewPooledClient(time.Duration(cfg.Worker.Timeout)*time.Second),
		log,
	)
	rerankWorker := worker.NewRerankWorker(loader, log)

	handler := search_http.NewHandler(
		searchUsecase, feedbackUsecase, statsUsecase, rerankWorker,
		search_http.ServerCredentials{
			EmbeddingKey: cfg.Embedder.APIKey,
			LLMKey:       cfg.Rerank.APIKey,
		},
		log,
	)

	return &ApplicationComponents{
		PageRepo:        pageRepo,
		FeedbackRepo:    feedbackRepo,
		SearchUsecase:   searchUsecase,
		FeedbackUsecase: feedbackUsecase,
		StatsUsecase:    statsUsecase,
		Embedder:        embedder,
		Reranker:        reranker,
		RerankWorker:    rerankWorker,
		Handler:         handler,
	}, nil
}
