package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"scantrad-search/internal/domain"
)

// ScorerClient scores (query, document) pairs against the local
// cross-encoder inference sidecar. The sidecar returns the raw
// classifier logit; the rerank worker applies the sigmoid.
type ScorerClient struct {
	BaseURL   string
	ModelPath string
	Client    *http.Client
}

func NewScorerClient(baseURL, modelPath string, client *http.Client) *ScorerClient {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &ScorerClient{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		ModelPath: modelPath,
		Client:    client,
	}
}

type scoreRequest struct {
	Query    string `json:"query"`
	Document string `json:"document"`
	Model    string `json:"model,omitempty"`
}

type scoreResponse struct {
	Logit float64 `json:"logit"`
}

func (s *ScorerClient) Score(ctx context.Context, query, document string) (float64, error) {
	reqBody := scoreRequest{Query: query, Document: document, Model: s.ModelPath}
	jsonPayload, err := json.Marshal(reqBody)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal score request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/score", s.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonPayload))
	if err != nil {
		return 0, fmt.Errorf("failed to create score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to call scorer: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("scorer returned status %d", resp.StatusCode)
	}

	var respBody scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&respBody); err != nil {
		return 0, fmt.Errorf("failed to decode score response: %w", err)
	}
	return respBody.Logit, nil
}

var _ domain.CrossEncoderScorer = (*ScorerClient)(nil)
