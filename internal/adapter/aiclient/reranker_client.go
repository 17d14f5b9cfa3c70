package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"scantrad-search/internal/domain"
)

// rerankFormat is the JSON schema handed to the structured-output chat
// endpoint: an array of {id, score} objects.
var rerankFormat = map[string]interface{}{
	"type": "array",
	"items": map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"id":    map[string]interface{}{"type": "string"},
			"score": map[string]interface{}{"type": "integer"},
		},
		"required": []string{"id", "score"},
	},
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string                 `json:"model"`
	Messages []chatMessage          `json:"messages"`
	Format   map[string]interface{} `json:"format"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

type chatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

// promptCandidate is the JSON shape of one candidate inside the prompt.
type promptCandidate struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type rerankItem struct {
	ID    string `json:"id"`
	Score int    `json:"score"`
}

// LLMRerankerClient re-scores a small candidate set with an LLM call.
// The prompt template is external configuration with exactly two
// substitution points: {{query}} and {{candidates}}. Any call or parse
// failure is returned as an error; the usecase falls back to
// similarity-derived scores, so a failure here never fails a request.
type LLMRerankerClient struct {
	BaseURL           string
	Model             string
	Template          string
	MaxCandidateChars int
	Client            *http.Client
	logger            *slog.Logger
}

func NewLLMRerankerClient(baseURL, model, template string, maxCandidateChars int, client *http.Client, logger *slog.Logger) *LLMRerankerClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxCandidateChars <= 0 {
		maxCandidateChars = 400
	}
	return &LLMRerankerClient{
		BaseURL:           strings.TrimRight(baseURL, "/"),
		Model:             model,
		Template:          template,
		MaxCandidateChars: maxCandidateChars,
		Client:            client,
		logger:            logger,
	}
}

// Rerank builds the prompt, invokes the chat endpoint and parses the
// structured response. Returns scores on the 0-100 scale.
func (c *LLMRerankerClient) Rerank(ctx context.Context, query string, candidates []domain.RerankCandidate, apiKey string) ([]domain.RerankScore, error) {
	if len(candidates) == 0 {
		return []domain.RerankScore{}, nil
	}

	start := time.Now()
	c.logger.Info("llm_rerank_started",
		slog.String("query", truncate(query, 100)),
		slog.Int("candidate_count", len(candidates)),
		slog.String("model", c.Model))

	prompt, err := c.buildPrompt(query, candidates)
	if err != nil {
		return nil, err
	}

	reqBody := chatRequest{
		Model:    c.Model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
		Format:   rerankFormat,
		Options: map[string]interface{}{
			"temperature": 0.2,
		},
	}
	jsonPayload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rerank request: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonPayload))
	if err != nil {
		return nil, fmt.Errorf("failed to create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		c.logger.Warn("llm_rerank_failed",
			slog.String("error", err.Error()),
			slog.Int64("elapsed_ms", time.Since(start).Milliseconds()))
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamFailure, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.logger.Warn("llm_rerank_bad_status",
			slog.Int("status_code", resp.StatusCode),
			slog.String("body", truncate(string(body), 500)),
			slog.Int64("elapsed_ms", time.Since(start).Milliseconds()))
		return nil, fmt.Errorf("%w: rerank endpoint returned %d", domain.ErrUpstreamFailure, resp.StatusCode)
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode chat response: %v", domain.ErrUpstreamFailure, err)
	}

	scores, err := parseRerankContent(chatResp.Message.Content)
	if err != nil {
		c.logger.Warn("llm_rerank_unparseable",
			slog.String("content", truncate(chatResp.Message.Content, 200)))
		return nil, err
	}

	c.logger.Info("llm_rerank_completed",
		slog.Int("result_count", len(scores)),
		slog.Int64("elapsed_ms", time.Since(start).Milliseconds()))

	return scores, nil
}

func (c *LLMRerankerClient) ModelName() string {
	return c.Model
}

func (c *LLMRerankerClient) buildPrompt(query string, candidates []domain.RerankCandidate) (string, error) {
	payload := make([]promptCandidate, len(candidates))
	for i, cand := range candidates {
		payload[i] = promptCandidate{
			ID:   cand.ID,
			Text: truncate(cand.Text, c.MaxCandidateChars),
		}
	}
	serialized, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to serialize candidates: %w", err)
	}

	prompt := strings.ReplaceAll(c.Template, "{{query}}", query)
	prompt = strings.ReplaceAll(prompt, "{{candidates}}", string(serialized))
	return prompt, nil
}

// parseRerankContent decodes the model output into scores, tolerating
// markdown code fences around the JSON array. Scores are clamped to
// the 0-100 scale.
func parseRerankContent(content string) ([]domain.RerankScore, error) {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
		trimmed = strings.TrimSpace(trimmed)
	}

	var items []rerankItem
	if err := json.Unmarshal([]byte(trimmed), &items); err != nil {
		return nil, fmt.Errorf("%w: unparseable rerank output: %v", domain.ErrUpstreamFailure, err)
	}

	scores := make([]domain.RerankScore, len(items))
	for i, item := range items {
		score := item.Score
		if score < 0 {
			score = 0
		}
		if score > 100 {
			score = 100
		}
		scores[i] = domain.RerankScore{ID: item.ID, Score: score}
	}
	return scores, nil
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

var _ domain.Reranker = (*LLMRerankerClient)(nil)
