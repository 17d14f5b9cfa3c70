package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"scantrad-search/internal/domain"
)

// EmbedderClient turns query text into dense vectors via the embedding
// provider's HTTP API. Dimensionality is fixed by the model and must
// match the stored page embeddings.
type EmbedderClient struct {
	BaseURL string
	Model   string
	Client  *http.Client
	logger  *slog.Logger
}

func NewEmbedderClient(baseURL, model string, client *http.Client, logger *slog.Logger) *EmbedderClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &EmbedderClient{
		BaseURL: baseURL,
		Model:   model,
		Client:  client,
		logger:  logger,
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Encode embeds the given texts. The per-request apiKey is sent as a
// bearer token when present; the provider rejects unauthenticated
// calls itself.
func (e *EmbedderClient) Encode(ctx context.Context, texts []string, apiKey string) ([][]float32, error) {
	start := time.Now()
	e.logger.Info("embed_started",
		slog.Int("text_count", len(texts)),
		slog.String("model", e.Model),
	)

	reqBody := embedRequest{
		Model: e.Model,
		Input: texts,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/embed", e.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := e.Client.Do(req)
	if err != nil {
		e.logger.Error("embed_failed",
			slog.String("error", err.Error()),
			slog.Duration("elapsed", time.Since(start)),
		)
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamFailure, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		e.logger.Error("embed_bad_status",
			slog.Int("status", resp.StatusCode),
			slog.Duration("elapsed", time.Since(start)),
		)
		return nil, fmt.Errorf("%w: embedding provider returned status %d", domain.ErrUpstreamFailure, resp.StatusCode)
	}

	var respBody embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&respBody); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", domain.ErrUpstreamFailure, err)
	}
	if len(respBody.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", domain.ErrUpstreamFailure, len(texts), len(respBody.Embeddings))
	}

	e.logger.Info("embed_completed",
		slog.Int("embedding_count", len(respBody.Embeddings)),
		slog.Duration("elapsed", time.Since(start)),
	)

	return respBody.Embeddings, nil
}

func (e *EmbedderClient) Version() string {
	return e.Model
}

var _ domain.VectorEncoder = (*EmbedderClient)(nil)
