package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"scantrad-search/internal/cache"
	"scantrad-search/internal/domain"
)

// SearchMode selects which index a query runs against.
type SearchMode string

const (
	ModeKeyword  SearchMode = "keyword"
	ModeSemantic SearchMode = "semantic"
)

const corpusCacheKey = "embedded_corpus"

// Credentials are the per-request upstream keys. Empty fields fall
// back to whatever server-side keys were configured before the input
// reaches the usecase.
type Credentials struct {
	EmbeddingKey string
	LLMKey       string
}

// SearchInput defines the input parameters for Execute.
type SearchInput struct {
	Query       string
	Page        int
	Limit       int
	Mode        SearchMode
	Characters  []string
	Arc         string
	Tome        *int
	Rerank      bool
	Credentials Credentials
}

// SearchOutput defines the output for Execute.
type SearchOutput struct {
	Results    []domain.Candidate
	TotalCount int
}

// SearchOptions are the ranking knobs, populated from config.
type SearchOptions struct {
	// KeywordFetchLimit caps how many bubble rows a keyword query pulls
	// from the stored full-text function before in-memory filtering.
	KeywordFetchLimit int
	// SemanticTopK is how many scored pages survive into reranking.
	SemanticTopK int
	// SimilarityFloor drops semantic candidates scoring below it.
	SimilarityFloor float64
	// RerankThreshold is the minimum 0-100 reranker score a candidate
	// needs to stay in a successfully reranked response.
	RerankThreshold int
}

// SearchUsecase defines the interface for running hybrid search.
type SearchUsecase interface {
	Execute(ctx context.Context, input SearchInput) (*SearchOutput, error)
}

type searchUsecase struct {
	bubbleRepo domain.BubbleSearchRepository
	pageRepo   domain.PageRepository
	encoder    domain.VectorEncoder
	reranker   domain.Reranker
	corpus     *cache.Memoizer[[]domain.EmbeddedPage]
	opts       SearchOptions
	logger     *slog.Logger
}

// NewSearchUsecase creates a new SearchUsecase.
func NewSearchUsecase(
	bubbleRepo domain.BubbleSearchRepository,
	pageRepo domain.PageRepository,
	encoder domain.VectorEncoder,
	reranker domain.Reranker,
	corpus *cache.Memoizer[[]domain.EmbeddedPage],
	opts SearchOptions,
	logger *slog.Logger,
) SearchUsecase {
	return &searchUsecase{
		bubbleRepo: bubbleRepo,
		pageRepo:   pageRepo,
		encoder:    encoder,
		reranker:   reranker,
		corpus:     corpus,
		opts:       opts,
		logger:     logger,
	}
}

func (u *searchUsecase) Execute(ctx context.Context, input SearchInput) (*SearchOutput, error) {
	if utf8.RuneCountInString(input.Query) < 2 {
		return nil, fmt.Errorf("%w: query must be at least 2 characters", domain.ErrInvalidQuery)
	}
	if input.Page < 1 {
		input.Page = 1
	}
	if input.Limit < 1 {
		input.Limit = 20
	}

	switch input.Mode {
	case ModeSemantic:
		return u.executeSemantic(ctx, input)
	default:
		return u.executeKeyword(ctx, input)
	}
}

// executeKeyword fetches the full match set from the stored full-text
// function, filters it in memory, and paginates the result. The total
// count reflects the post-filter size so pages partition the match set.
func (u *searchUsecase) executeKeyword(ctx context.Context, input SearchInput) (*SearchOutput, error) {
	rows, err := u.bubbleRepo.SearchBubbles(ctx, input.Query, u.opts.KeywordFetchLimit, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to search bubbles: %w", err)
	}

	candidates := make([]domain.Candidate, 0, len(rows))
	for _, row := range rows {
		candidates = append(candidates, domain.CandidateFromBubbleRow(row))
	}

	// The description join is only paid when a metadata facet is set.
	if len(input.Characters) > 0 || input.Arc != "" {
		candidates, err = u.filterKeywordByMetadata(ctx, candidates, input.Characters, input.Arc)
		if err != nil {
			return nil, err
		}
	}

	if input.Tome != nil {
		candidates = filterByTome(candidates, *input.Tome)
	}

	total := len(candidates)
	offset := (input.Page - 1) * input.Limit
	if offset > total {
		offset = total
	}
	end := offset + input.Limit
	if end > total {
		end = total
	}

	u.logger.Info("keyword_search_completed",
		slog.String("query", input.Query),
		slog.Int("total", total),
		slog.Int("page", input.Page))

	return &SearchOutput{Results: candidates[offset:end], TotalCount: total}, nil
}

func (u *searchUsecase) filterKeywordByMetadata(ctx context.Context, candidates []domain.Candidate, characters []string, arc string) ([]domain.Candidate, error) {
	pageIDs := make([]string, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		if !seen[c.PageID] {
			seen[c.PageID] = true
			pageIDs = append(pageIDs, c.PageID)
		}
	}

	descriptions, err := u.pageRepo.GetDescriptions(ctx, pageIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load page descriptions: %w", err)
	}

	described := make([]DescribedCandidate, 0, len(candidates))
	for _, c := range candidates {
		described = append(described, DescribedCandidate{
			Candidate:      c,
			RawDescription: descriptions[c.PageID],
		})
	}

	kept := FilterByMetadata(described, characters, arc)
	out := make([]domain.Candidate, 0, len(kept))
	for _, dc := range kept {
		out = append(out, dc.Candidate)
	}
	return out, nil
}

// semanticCandidate keeps the rerank text alongside the candidate so
// the reranker sees the description content plus tagged characters
// rather than the display snippet alone.
type semanticCandidate struct {
	candidate  domain.Candidate
	rerankText string
}

func (u *searchUsecase) executeSemantic(ctx context.Context, input SearchInput) (*SearchOutput, error) {
	if input.Credentials.EmbeddingKey == "" {
		return nil, fmt.Errorf("%w: semantic search requires an embedding key", domain.ErrMissingCredential)
	}

	var (
		queryVector []float32
		corpus      []domain.EmbeddedPage
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vecs, err := u.encoder.Encode(gctx, []string{input.Query}, input.Credentials.EmbeddingKey)
		if err != nil {
			return fmt.Errorf("failed to embed query: %w", err)
		}
		queryVector = vecs[0]
		return nil
	})
	g.Go(func() error {
		pages, err := u.corpus.Do(gctx, corpusCacheKey, func(ctx context.Context) ([]domain.EmbeddedPage, error) {
			return u.pageRepo.ListEmbedded(ctx)
		})
		if err != nil {
			return fmt.Errorf("failed to load embedded corpus: %w", err)
		}
		corpus = pages
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	scored := u.scoreCorpus(input, queryVector, corpus)

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].candidate.Similarity > scored[j].candidate.Similarity
	})
	if len(scored) > u.opts.SemanticTopK {
		scored = scored[:u.opts.SemanticTopK]
	}

	results := u.rankSemantic(ctx, input, scored)

	u.logger.Info("semantic_search_completed",
		slog.String("query", input.Query),
		slog.Int("corpus_size", len(corpus)),
		slog.Int("results", len(results)))

	return &SearchOutput{Results: results, TotalCount: len(results)}, nil
}

// scoreCorpus applies the tome and metadata filters, decodes each
// row's embedding, and keeps the pages scoring at or above the
// similarity floor. A row with a malformed description or embedding is
// dropped on its own; the batch never aborts.
func (u *searchUsecase) scoreCorpus(input SearchInput, queryVector []float32, corpus []domain.EmbeddedPage) []semanticCandidate {
	wantMetadata := len(input.Characters) > 0 || input.Arc != ""

	scored := make([]semanticCandidate, 0, u.opts.SemanticTopK)
	for _, page := range corpus {
		if input.Tome != nil && page.TomeNumber != *input.Tome {
			continue
		}

		desc, err := domain.ParseDescription(page.RawDescription)
		if err != nil {
			u.logger.Warn("candidate_dropped_malformed",
				slog.String("page_id", page.PageID),
				slog.String("reason", "description"))
			continue
		}
		if wantMetadata && !matchesMetadata(desc.Metadata, input.Characters, input.Arc) {
			continue
		}

		vec, err := domain.DecodeEmbedding(page.RawEmbedding)
		if err != nil {
			u.logger.Warn("candidate_dropped_malformed",
				slog.String("page_id", page.PageID),
				slog.String("reason", "embedding"))
			continue
		}

		sim := domain.CosineSimilarity(queryVector, vec)
		if sim < u.opts.SimilarityFloor {
			continue
		}

		scored = append(scored, semanticCandidate{
			candidate:  domain.CandidateFromPageRow(page, desc.Content, sim),
			rerankText: desc.SearchText(),
		})
	}
	return scored
}

// rankSemantic assigns the display scores. With an LLM key and rerank
// requested it calls the remote reranker and keeps candidates at or
// above the score threshold; a reranker failure degrades to
// similarity-scaled scores without the threshold and never fails the
// request. Without an LLM key the AI score is zero.
func (u *searchUsecase) rankSemantic(ctx context.Context, input SearchInput, scored []semanticCandidate) []domain.Candidate {
	if !input.Rerank || input.Credentials.LLMKey == "" {
		results := make([]domain.Candidate, 0, len(scored))
		for _, sc := range scored {
			c := sc.candidate
			c.AIScore = 0
			c.VectorScore = scaleSimilarity(c.Similarity)
			results = append(results, c)
		}
		return results
	}

	rerankInput := make([]domain.RerankCandidate, 0, len(scored))
	for _, sc := range scored {
		rerankInput = append(rerankInput, domain.RerankCandidate{
			ID:         sc.candidate.ID,
			Text:       sc.rerankText,
			Similarity: sc.candidate.Similarity,
		})
	}

	rerankScores, err := u.reranker.Rerank(ctx, input.Query, rerankInput, input.Credentials.LLMKey)
	if err != nil {
		u.logger.Warn("reranking_failed_using_similarity_scores",
			slog.String("query", input.Query),
			slog.Any("error", err))
		results := make([]domain.Candidate, 0, len(scored))
		for _, sc := range scored {
			c := sc.candidate
			c.AIScore = scaleSimilarity(c.Similarity)
			c.VectorScore = scaleSimilarity(c.Similarity)
			results = append(results, c)
		}
		return results
	}

	scoreByID := make(map[string]int, len(rerankScores))
	for _, rs := range rerankScores {
		scoreByID[rs.ID] = rs.Score
	}

	results := make([]domain.Candidate, 0, len(scored))
	for _, sc := range scored {
		score, ok := scoreByID[sc.candidate.ID]
		if !ok || score < u.opts.RerankThreshold {
			continue
		}
		c := sc.candidate
		c.AIScore = score
		c.VectorScore = scaleSimilarity(c.Similarity)
		results = append(results, c)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].AIScore > results[j].AIScore
	})
	return results
}

func filterByTome(candidates []domain.Candidate, tome int) []domain.Candidate {
	kept := candidates[:0]
	for _, c := range candidates {
		if c.TomeNumber == tome {
			kept = append(kept, c)
		}
	}
	return kept
}

func scaleSimilarity(sim float64) int {
	return int(math.Round(sim * 100))
}
