package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scantrad-search/internal/cache"
	"scantrad-search/internal/domain"
)

type stubBubbleRepo struct {
	rows     []domain.BubbleRow
	err      error
	gotTerm  string
	gotLimit int
}

func (s *stubBubbleRepo) SearchBubbles(_ context.Context, term string, limit, _ int) ([]domain.BubbleRow, error) {
	s.gotTerm = term
	s.gotLimit = limit
	return s.rows, s.err
}

type stubPageRepo struct {
	corpus       []domain.EmbeddedPage
	descriptions map[string]string
	listCalls    int
}

func (s *stubPageRepo) ListEmbedded(context.Context) ([]domain.EmbeddedPage, error) {
	s.listCalls++
	return s.corpus, nil
}

func (s *stubPageRepo) GetDescriptions(_ context.Context, pageIDs []string) (map[string]string, error) {
	out := make(map[string]string)
	for _, id := range pageIDs {
		if d, ok := s.descriptions[id]; ok {
			out[id] = d
		}
	}
	return out, nil
}

type stubEncoder struct {
	vector []float32
	err    error
	gotKey string
}

func (s *stubEncoder) Encode(_ context.Context, texts []string, apiKey string) ([][]float32, error) {
	s.gotKey = apiKey
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.vector
	}
	return out, nil
}

func (s *stubEncoder) Version() string { return "stub-embedder" }

type stubReranker struct {
	scores []domain.RerankScore
	err    error
	called bool
	gotKey string
}

func (s *stubReranker) Rerank(_ context.Context, _ string, _ []domain.RerankCandidate, apiKey string) ([]domain.RerankScore, error) {
	s.called = true
	s.gotKey = apiKey
	return s.scores, s.err
}

func (s *stubReranker) ModelName() string { return "stub-reranker" }

func testOpts() SearchOptions {
	return SearchOptions{
		KeywordFetchLimit: 10000,
		SemanticTopK:      6,
		SimilarityFloor:   0.60,
		RerankThreshold:   75,
	}
}

func newTestUsecase(t *testing.T, bubbles *stubBubbleRepo, pages *stubPageRepo, enc *stubEncoder, rr *stubReranker) SearchUsecase {
	t.Helper()
	memo, err := cache.New[[]domain.EmbeddedPage](4, time.Minute)
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	return NewSearchUsecase(bubbles, pages, enc, rr, memo, testOpts(), logger)
}

func pageDesc(content, arc string, characters ...string) string {
	desc := domain.Description{Content: content}
	desc.Metadata.Arc = arc
	desc.Metadata.Characters = characters
	out, _ := json.Marshal(desc)
	return string(out)
}

func embeddedPage(id string, tome int, vec, desc string) domain.EmbeddedPage {
	return domain.EmbeddedPage{
		PageID:         id,
		ImageURL:       "https://img.example/" + id + ".webp",
		TomeNumber:     tome,
		ChapterNumber:  tome * 10,
		PageNumber:     3,
		RawDescription: desc,
		RawEmbedding:   vec,
	}
}

func TestExecute_QueryTooShort(t *testing.T) {
	uc := newTestUsecase(t, &stubBubbleRepo{}, &stubPageRepo{}, &stubEncoder{}, &stubReranker{})

	for _, q := range []string{"", "a", " "} {
		_, err := uc.Execute(context.Background(), SearchInput{Query: q})
		assert.True(t, errors.Is(err, domain.ErrInvalidQuery), "query %q", q)
	}
}

func TestExecute_Keyword_PaginationPartitionsMatchSet(t *testing.T) {
	rows := make([]domain.BubbleRow, 5)
	for i := range rows {
		rows[i] = domain.BubbleRow{
			ID:           fmt.Sprintf("%d", i+1),
			PageID:       fmt.Sprintf("p%d", i+1),
			ProposedText: "le roi des pirates",
			TomeNumber:   1,
			Rank:         float64(5 - i),
		}
	}
	bubbles := &stubBubbleRepo{rows: rows}
	uc := newTestUsecase(t, bubbles, &stubPageRepo{}, &stubEncoder{}, &stubReranker{})

	var seen []string
	for page := 1; page <= 3; page++ {
		out, err := uc.Execute(context.Background(), SearchInput{Query: "pirates", Page: page, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, 5, out.TotalCount)
		for _, r := range out.Results {
			seen = append(seen, r.ID)
		}
	}
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, seen)

	// A page past the end is empty, not an error.
	out, err := uc.Execute(context.Background(), SearchInput{Query: "pirates", Page: 9, Limit: 2})
	require.NoError(t, err)
	assert.Empty(t, out.Results)
	assert.Equal(t, 5, out.TotalCount)
	assert.Equal(t, 10000, bubbles.gotLimit)
}

func TestExecute_Keyword_TomeFilterAppliesBeforeCount(t *testing.T) {
	bubbles := &stubBubbleRepo{rows: []domain.BubbleRow{
		{ID: "1", TomeNumber: 1},
		{ID: "2", TomeNumber: 2},
		{ID: "3", TomeNumber: 1},
	}}
	uc := newTestUsecase(t, bubbles, &stubPageRepo{}, &stubEncoder{}, &stubReranker{})

	tome := 1
	out, err := uc.Execute(context.Background(), SearchInput{Query: "pirates", Tome: &tome})
	require.NoError(t, err)
	assert.Equal(t, 2, out.TotalCount)
	assert.Equal(t, "1", out.Results[0].ID)
	assert.Equal(t, "3", out.Results[1].ID)
}

func TestExecute_Keyword_MetadataFilterJoinsDescriptions(t *testing.T) {
	bubbles := &stubBubbleRepo{rows: []domain.BubbleRow{
		{ID: "1", PageID: "p1"},
		{ID: "2", PageID: "p2"},
		{ID: "3", PageID: "p3"},
	}}
	pages := &stubPageRepo{descriptions: map[string]string{
		"p1": pageDesc("banquet", "East Blue", "Luffy"),
		"p2": pageDesc("carte", "East Blue", "Nami"),
		// p3 has no description at all: excluded under a metadata filter.
	}}
	uc := newTestUsecase(t, bubbles, pages, &stubEncoder{}, &stubReranker{})

	out, err := uc.Execute(context.Background(), SearchInput{Query: "pirates", Characters: []string{"Luffy"}})
	require.NoError(t, err)
	assert.Equal(t, 1, out.TotalCount)
	assert.Equal(t, "1", out.Results[0].ID)
}

func TestExecute_Semantic_MissingEmbeddingKey(t *testing.T) {
	uc := newTestUsecase(t, &stubBubbleRepo{}, &stubPageRepo{}, &stubEncoder{}, &stubReranker{})

	_, err := uc.Execute(context.Background(), SearchInput{Query: "pirates", Mode: ModeSemantic})
	assert.True(t, errors.Is(err, domain.ErrMissingCredential))
}

func TestExecute_Semantic_GuestScores(t *testing.T) {
	pages := &stubPageRepo{corpus: []domain.EmbeddedPage{
		embeddedPage("p1", 1, "[1,0]", pageDesc("un banquet", "East Blue", "Luffy")),
		embeddedPage("p2", 1, "[0.8,0.6]", pageDesc("une carte", "East Blue", "Nami")),
		embeddedPage("p3", 1, "[0,1]", pageDesc("hors sujet", "East Blue")),
	}}
	enc := &stubEncoder{vector: []float32{1, 0}}
	rr := &stubReranker{}
	uc := newTestUsecase(t, &stubBubbleRepo{}, pages, enc, rr)

	out, err := uc.Execute(context.Background(), SearchInput{
		Query:       "banquet",
		Mode:        ModeSemantic,
		Rerank:      true,
		Credentials: Credentials{EmbeddingKey: "embed-key"},
	})
	require.NoError(t, err)
	assert.False(t, rr.called, "guest requests never reach the reranker")
	assert.Equal(t, "embed-key", enc.gotKey)

	require.Len(t, out.Results, 2, "below-floor page is dropped")
	assert.Equal(t, "p1", out.Results[0].ID)
	assert.Equal(t, 0, out.Results[0].AIScore)
	assert.Equal(t, 100, out.Results[0].VectorScore)
	assert.Equal(t, "p2", out.Results[1].ID)
	assert.Equal(t, 0, out.Results[1].AIScore)
	assert.Equal(t, 80, out.Results[1].VectorScore)
	assert.Equal(t, domain.KindSemantic, out.Results[0].Kind)
	assert.Equal(t, "un banquet", out.Results[0].Content)
}

func TestExecute_Semantic_RerankKeepsAboveThreshold(t *testing.T) {
	pages := &stubPageRepo{corpus: []domain.EmbeddedPage{
		embeddedPage("p1", 1, "[1,0]", pageDesc("banquet", "", "Luffy")),
		embeddedPage("p2", 1, "[0.9,0.435889894]", pageDesc("combat", "", "Zoro")),
		embeddedPage("p3", 1, "[0.8,0.6]", pageDesc("carte", "", "Nami")),
	}}
	enc := &stubEncoder{vector: []float32{1, 0}}
	rr := &stubReranker{scores: []domain.RerankScore{
		{ID: "p1", Score: 60},
		{ID: "p2", Score: 92},
		{ID: "p3", Score: 81},
	}}
	uc := newTestUsecase(t, &stubBubbleRepo{}, pages, enc, rr)

	out, err := uc.Execute(context.Background(), SearchInput{
		Query:       "combat",
		Mode:        ModeSemantic,
		Rerank:      true,
		Credentials: Credentials{EmbeddingKey: "embed-key", LLMKey: "llm-key"},
	})
	require.NoError(t, err)
	assert.True(t, rr.called)
	assert.Equal(t, "llm-key", rr.gotKey)

	// p1 falls below the threshold; survivors are ordered by AI score.
	require.Len(t, out.Results, 2)
	assert.Equal(t, "p2", out.Results[0].ID)
	assert.Equal(t, 92, out.Results[0].AIScore)
	assert.Equal(t, "p3", out.Results[1].ID)
	assert.Equal(t, 81, out.Results[1].AIScore)
	assert.Equal(t, 80, out.Results[1].VectorScore)
	assert.Equal(t, 2, out.TotalCount)
}

func TestExecute_Semantic_RerankFailureFallsBackToSimilarity(t *testing.T) {
	pages := &stubPageRepo{corpus: []domain.EmbeddedPage{
		embeddedPage("p1", 1, "[1,0]", pageDesc("banquet", "", "Luffy")),
		embeddedPage("p2", 1, "[0.8,0.6]", pageDesc("carte", "", "Nami")),
	}}
	enc := &stubEncoder{vector: []float32{1, 0}}
	rr := &stubReranker{err: errors.New("llm unavailable")}
	uc := newTestUsecase(t, &stubBubbleRepo{}, pages, enc, rr)

	out, err := uc.Execute(context.Background(), SearchInput{
		Query:       "banquet",
		Mode:        ModeSemantic,
		Rerank:      true,
		Credentials: Credentials{EmbeddingKey: "k", LLMKey: "llm"},
	})
	require.NoError(t, err, "a reranker failure never fails the request")

	// No threshold on the fallback path: both survive with scaled scores.
	require.Len(t, out.Results, 2)
	assert.Equal(t, 100, out.Results[0].AIScore)
	assert.Equal(t, 100, out.Results[0].VectorScore)
	assert.Equal(t, 80, out.Results[1].AIScore)
	assert.Equal(t, 80, out.Results[1].VectorScore)
}

func TestExecute_Semantic_MalformedRowsDroppedIndividually(t *testing.T) {
	pages := &stubPageRepo{corpus: []domain.EmbeddedPage{
		embeddedPage("p1", 1, "[1,0]", pageDesc("banquet", "", "Luffy")),
		embeddedPage("p2", 1, "[1,0]", `{{{broken description`),
		embeddedPage("p3", 1, "not a vector", pageDesc("carte", "", "Nami")),
	}}
	enc := &stubEncoder{vector: []float32{1, 0}}
	uc := newTestUsecase(t, &stubBubbleRepo{}, pages, enc, &stubReranker{})

	out, err := uc.Execute(context.Background(), SearchInput{
		Query:       "banquet",
		Mode:        ModeSemantic,
		Credentials: Credentials{EmbeddingKey: "k"},
	})
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "p1", out.Results[0].ID)
}

func TestExecute_Semantic_TopKTruncation(t *testing.T) {
	var corpus []domain.EmbeddedPage
	for i := 0; i < 9; i++ {
		corpus = append(corpus, embeddedPage(fmt.Sprintf("p%d", i), 1, "[1,0]", pageDesc("scene", "", "Luffy")))
	}
	pages := &stubPageRepo{corpus: corpus}
	uc := newTestUsecase(t, &stubBubbleRepo{}, pages, &stubEncoder{vector: []float32{1, 0}}, &stubReranker{})

	out, err := uc.Execute(context.Background(), SearchInput{
		Query:       "scene",
		Mode:        ModeSemantic,
		Credentials: Credentials{EmbeddingKey: "k"},
	})
	require.NoError(t, err)
	assert.Len(t, out.Results, 6)
}

func TestExecute_Semantic_TomeAndCharacterFilters(t *testing.T) {
	pages := &stubPageRepo{corpus: []domain.EmbeddedPage{
		embeddedPage("p1", 1, "[1,0]", pageDesc("banquet", "", "Luffy")),
		embeddedPage("p2", 2, "[1,0]", pageDesc("banquet", "", "Luffy")),
		embeddedPage("p3", 1, "[1,0]", pageDesc("carte", "", "Nami")),
	}}
	uc := newTestUsecase(t, &stubBubbleRepo{}, pages, &stubEncoder{vector: []float32{1, 0}}, &stubReranker{})

	tome := 1
	out, err := uc.Execute(context.Background(), SearchInput{
		Query:       "banquet",
		Mode:        ModeSemantic,
		Tome:        &tome,
		Characters:  []string{"Luffy"},
		Credentials: Credentials{EmbeddingKey: "k"},
	})
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "p1", out.Results[0].ID)
}

func TestExecute_Semantic_CorpusFetchMemoized(t *testing.T) {
	pages := &stubPageRepo{corpus: []domain.EmbeddedPage{
		embeddedPage("p1", 1, "[1,0]", pageDesc("banquet", "", "Luffy")),
	}}
	uc := newTestUsecase(t, &stubBubbleRepo{}, pages, &stubEncoder{vector: []float32{1, 0}}, &stubReranker{})

	for i := 0; i < 3; i++ {
		_, err := uc.Execute(context.Background(), SearchInput{
			Query:       "banquet",
			Mode:        ModeSemantic,
			Credentials: Credentials{EmbeddingKey: "k"},
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, pages.listCalls)
}

func TestExecute_Semantic_EmbedFailurePropagates(t *testing.T) {
	enc := &stubEncoder{err: fmt.Errorf("%w: embed endpoint down", domain.ErrUpstreamFailure)}
	uc := newTestUsecase(t, &stubBubbleRepo{}, &stubPageRepo{}, enc, &stubReranker{})

	_, err := uc.Execute(context.Background(), SearchInput{
		Query:       "banquet",
		Mode:        ModeSemantic,
		Credentials: Credentials{EmbeddingKey: "k"},
	})
	assert.True(t, errors.Is(err, domain.ErrUpstreamFailure))
}
