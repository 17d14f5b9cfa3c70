package config

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_SearchDefaults(t *testing.T) {
	envVars := []string{
		"SEARCH_KEYWORD_FETCH_LIMIT",
		"SEARCH_SEMANTIC_TOP_K",
		"SEARCH_SIMILARITY_FLOOR",
		"RERANK_SCORE_THRESHOLD",
	}
	for _, key := range envVars {
		_ = os.Unsetenv(key)
	}

	cfg := Load()

	assert.Equal(t, 10000, cfg.Search.KeywordFetchLimit, "keyword fetch ceiling should default to 10000")
	assert.Equal(t, 6, cfg.Search.SemanticTopK, "semantic top-k should default to 6")
	assert.Equal(t, 0.60, cfg.Search.SimilarityFloor, "similarity floor should default to 0.60")
	assert.Equal(t, 75, cfg.Rerank.ScoreThreshold, "rerank threshold should default to 75")
	assert.Equal(t, 400, cfg.Rerank.MaxCandidateChars)
}

func TestLoad_SearchFromEnv(t *testing.T) {
	t.Setenv("SEARCH_KEYWORD_FETCH_LIMIT", "500")
	t.Setenv("SEARCH_SEMANTIC_TOP_K", "10")
	t.Setenv("SEARCH_SIMILARITY_FLOOR", "0.5")

	cfg := Load()

	assert.Equal(t, 500, cfg.Search.KeywordFetchLimit)
	assert.Equal(t, 10, cfg.Search.SemanticTopK)
	assert.Equal(t, 0.5, cfg.Search.SimilarityFloor)
}

func TestLoad_SecretFromFile(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "secret")
	require.NoError(t, err)
	_, err = f.WriteString("s3cret\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_ = os.Unsetenv("DB_PASSWORD")
	t.Setenv("DB_PASSWORD_FILE", f.Name())

	cfg := Load()
	assert.Equal(t, "s3cret", cfg.DB.Password)
}

func TestDefaultRerankPromptTemplate_SubstitutionPoints(t *testing.T) {
	assert.Equal(t, 1, strings.Count(DefaultRerankPromptTemplate, "{{query}}"))
	assert.Equal(t, 1, strings.Count(DefaultRerankPromptTemplate, "{{candidates}}"))
}
