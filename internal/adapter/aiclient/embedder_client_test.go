package aiclient

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scantrad-search/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func TestEmbedderClient_Encode_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/embed", r.URL.Path)
		assert.Equal(t, "Bearer user-key", r.Header.Get("Authorization"))

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "embeddinggemma", req.Model)
		assert.Equal(t, []string{"roi des pirates"}, req.Input)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(embedResponse{
			Embeddings: [][]float32{{0.1, 0.2, 0.3}},
		})
	}))
	defer server.Close()

	client := NewEmbedderClient(server.URL, "embeddinggemma", nil, testLogger())

	vecs, err := client.Encode(context.Background(), []string{"roi des pirates"}, "user-key")
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.1, 0.2, 0.3}}, vecs)
}

func TestEmbedderClient_Encode_NoAuthHeaderWithoutKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{1}}})
	}))
	defer server.Close()

	client := NewEmbedderClient(server.URL, "embeddinggemma", nil, testLogger())
	_, err := client.Encode(context.Background(), []string{"x"}, "")
	require.NoError(t, err)
}

func TestEmbedderClient_Encode_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewEmbedderClient(server.URL, "embeddinggemma", nil, testLogger())
	_, err := client.Encode(context.Background(), []string{"x"}, "k")
	assert.True(t, errors.Is(err, domain.ErrUpstreamFailure))
}

func TestEmbedderClient_Encode_CountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{}})
	}))
	defer server.Close()

	client := NewEmbedderClient(server.URL, "embeddinggemma", nil, testLogger())
	_, err := client.Encode(context.Background(), []string{"x"}, "k")
	assert.True(t, errors.Is(err, domain.ErrUpstreamFailure))
}
