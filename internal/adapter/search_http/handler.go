package search_http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"scantrad-search/internal/domain"
	"scantrad-search/internal/usecase"
	"scantrad-search/internal/worker"
)

const (
	headerEmbeddingKey = "X-Embedding-Key"
	headerLLMKey       = "X-LLM-Key"

	defaultLimit = 20
)

// ServerCredentials are the fallback upstream keys used when a request
// does not carry its own.
type ServerCredentials struct {
	EmbeddingKey string
	LLMKey       string
}

type Handler struct {
	searchUsecase   usecase.SearchUsecase
	feedbackUsecase usecase.FeedbackUsecase
	statsUsecase    usecase.StatsUsecase
	rerankWorker    *worker.RerankWorker
	fallback        ServerCredentials
	logger          *slog.Logger
}

func NewHandler(
	searchUsecase usecase.SearchUsecase,
	feedbackUsecase usecase.FeedbackUsecase,
	statsUsecase usecase.StatsUsecase,
	rerankWorker *worker.RerankWorker,
	fallback ServerCredentials,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		searchUsecase:   searchUsecase,
		feedbackUsecase: feedbackUsecase,
		statsUsecase:    statsUsecase,
		rerankWorker:    rerankWorker,
		fallback:        fallback,
		logger:          logger,
	}
}

type scoresPayload struct {
	AI     int `json:"ai"`
	Vector int `json:"vector"`
}

type resultPayload struct {
	Type       string        `json:"type"`
	ID         string        `json:"id"`
	PageID     string        `json:"page_id"`
	ImageURL   string        `json:"url_image"`
	Content    string        `json:"content"`
	Context    string        `json:"context"`
	Scores     scoresPayload `json:"scores"`
	Similarity float64       `json:"similarity"`
}

type searchResponse struct {
	Results    []resultPayload `json:"results"`
	TotalCount int             `json:"total_count"`
}

// Search handles GET /api/v1/search.
func (h *Handler) Search(ctx echo.Context) error {
	input := usecase.SearchInput{
		Query: ctx.QueryParam("q"),
		Page:  queryInt(ctx, "page", 1),
		Limit: queryInt(ctx, "limit", defaultLimit),
		Arc:   ctx.QueryParam("arc"),
	}

	switch ctx.QueryParam("mode") {
	case "semantic":
		input.Mode = usecase.ModeSemantic
	default:
		input.Mode = usecase.ModeKeyword
	}

	if raw := ctx.QueryParam("characters"); raw != "" {
		for _, c := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(c); trimmed != "" {
				input.Characters = append(input.Characters, trimmed)
			}
		}
	}
	if raw := ctx.QueryParam("tome"); raw != "" {
		tome, err := strconv.Atoi(raw)
		if err != nil {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid tome"})
		}
		input.Tome = &tome
	}

	// Reranking defaults on; clients opt out with rerank=false.
	input.Rerank = ctx.QueryParam("rerank") != "false"

	input.Credentials = usecase.Credentials{
		EmbeddingKey: firstNonEmpty(ctx.Request().Header.Get(headerEmbeddingKey), h.fallback.EmbeddingKey),
		LLMKey:       firstNonEmpty(ctx.Request().Header.Get(headerLLMKey), h.fallback.LLMKey),
	}

	output, err := h.searchUsecase.Execute(ctx.Request().Context(), input)
	if err != nil {
		return h.mapError(ctx, err)
	}

	results := make([]resultPayload, 0, len(output.Results))
	for _, c := range output.Results {
		results = append(results, resultPayload{
			Type:       string(c.Kind),
			ID:         c.ID,
			PageID:     c.PageID,
			ImageURL:   c.ImageURL,
			Content:    c.Content,
			Context:    c.Context(),
			Scores:     scoresPayload{AI: c.AIScore, Vector: c.VectorScore},
			Similarity: c.Similarity,
		})
	}

	return ctx.JSON(http.StatusOK, searchResponse{
		Results:    results,
		TotalCount: output.TotalCount,
	})
}

type feedbackRequest struct {
	Query      string `json:"query" validate:"required"`
	DocID      string `json:"doc_id" validate:"required"`
	DocText    string `json:"doc_text"`
	IsRelevant *bool  `json:"is_relevant" validate:"required"`
	Provider   string `json:"model_provider"`
}

// Feedback handles POST /api/v1/search/feedback.
func (h *Handler) Feedback(ctx echo.Context) error {
	var req feedbackRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if err := ctx.Validate(&req); err != nil {
		return err
	}

	err := h.feedbackUsecase.Record(ctx.Request().Context(), usecase.RecordFeedbackInput{
		Query:      req.Query,
		DocID:      req.DocID,
		DocText:    req.DocText,
		IsRelevant: *req.IsRelevant,
		Provider:   req.Provider,
	})
	if err != nil {
		return h.mapError(ctx, err)
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Stats handles GET /api/v1/stats.
func (h *Handler) Stats(ctx echo.Context) error {
	stats, err := h.statsUsecase.Get(ctx.Request().Context())
	if err != nil {
		return h.mapError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"pages_by_status":   stats.PagesByStatus,
		"validated_bubbles": stats.ValidatedBubbles,
		"embedded_pages":    stats.EmbeddedPages,
	})
}

// RerankInit handles POST /api/v1/rerank/init: kicks off the local
// cross-encoder model load. Safe to call repeatedly.
func (h *Handler) RerankInit(ctx echo.Context) error {
	if err := h.rerankWorker.Init(ctx.Request().Context()); err != nil {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	}
	return ctx.JSON(http.StatusAccepted, map[string]string{"state": string(h.rerankWorker.State())})
}

// RerankStatus handles GET /api/v1/rerank/status.
func (h *Handler) RerankStatus(ctx echo.Context) error {
	progress := h.rerankWorker.Progress()
	return ctx.JSON(http.StatusOK, map[string]any{
		"state":   string(h.rerankWorker.State()),
		"stage":   progress.Stage,
		"percent": progress.Percent,
	})
}

type rerankRequest struct {
	Query string `json:"query" validate:"required"`
	Docs  []any  `json:"docs" validate:"required,min=1"`
}

// Rerank handles POST /api/v1/rerank: scores documents against the
// query with the local cross-encoder. 503 until the model is ready.
func (h *Handler) Rerank(ctx echo.Context) error {
	var req rerankRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if err := ctx.Validate(&req); err != nil {
		return err
	}

	docs, err := h.rerankWorker.Rerank(ctx.Request().Context(), req.Query, req.Docs)
	if err != nil {
		return h.mapError(ctx, err)
	}

	type scoredDoc struct {
		Index int     `json:"index"`
		Text  string  `json:"text"`
		Score float64 `json:"score"`
	}
	out := make([]scoredDoc, 0, len(docs))
	for _, d := range docs {
		out = append(out, scoredDoc{Index: d.Index, Text: d.Text, Score: d.Score})
	}
	return ctx.JSON(http.StatusOK, map[string]any{"results": out})
}

func (h *Handler) mapError(ctx echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidQuery):
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrMissingCredential):
		return ctx.JSON(http.StatusUnauthorized, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrModelNotReady):
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrUpstreamFailure):
		return ctx.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	default:
		h.logger.Error("request_failed",
			slog.String("path", ctx.Path()),
			slog.Any("error", err))
		return ctx.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func queryInt(ctx echo.Context, name string, fallback int) int {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
