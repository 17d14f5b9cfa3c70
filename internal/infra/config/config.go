package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// DefaultRerankPromptTemplate is the prompt handed to the LLM reranker.
// It is external configuration (RERANK_PROMPT_TEMPLATE) with exactly
// two substitution points: {{query}} and {{candidates}}.
const DefaultRerankPromptTemplate = `Tu es un moteur de pertinence pour une encyclopedie de manga.
Note chaque document de 0 a 100 selon sa pertinence pour la requete.

Requete: {{query}}

Documents (JSON): {{candidates}}

Reponds uniquement avec un tableau JSON [{"id": "...", "score": 0-100}].`

type Config struct {
	Env  string
	Port string

	DB       DBConfig
	Embedder EmbedderConfig
	Rerank   RerankConfig
	Search   SearchConfig
	Worker   WorkerConfig
	Stats    StatsConfig
	Feedback FeedbackConfig
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	MaxConns int
	MinConns int
}

type EmbedderConfig struct {
	URL     string
	Model   string
	Timeout int // seconds
	// APIKey is the server-side fallback credential; requests may
	// override it with their own key header.
	APIKey string
}

type RerankConfig struct {
	URL            string
	Model          string
	Timeout        int // seconds
	APIKey         string
	PromptTemplate string
	// ScoreThreshold drops reranked candidates below this 0-100 score.
	ScoreThreshold int
	// MaxCandidateChars truncates each candidate's text in the prompt.
	MaxCandidateChars int
}

type SearchConfig struct {
	// KeywordFetchLimit is the internal ceiling on keyword matches
	// fetched from the store so metadata filters keep full recall.
	KeywordFetchLimit int
	// SemanticTopK caps the candidate set handed to reranking.
	SemanticTopK int
	// SimilarityFloor discards semantic candidates below this cosine.
	SimilarityFloor float64
	// CorpusCacheTTL (seconds) bounds staleness of the cached
	// embedded-page corpus. 0 disables caching.
	CorpusCacheTTL int
}

type WorkerConfig struct {
	ModelName    string
	ModelBaseURL string
	CacheDir     string
	ScorerURL    string
	Timeout      int // seconds
}

type StatsConfig struct {
	CacheSize int
	CacheTTL  int // seconds
}

type FeedbackConfig struct {
	// RatePerSecond limits feedback submissions per client.
	RatePerSecond float64
	Burst         int
}

// Load reads configuration from the environment. A .env file in the
// working directory is honored when present (development convenience).
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Env:  getEnv("ENV", "development"),
		Port: getEnv("PORT", "9020"),
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "scantrad"),
			Password: getSecret("DB_PASSWORD", "DB_PASSWORD_FILE", "scantrad"),
			Name:     getEnv("DB_NAME", "scantrad"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 10),
			MinConns: getEnvInt("DB_MIN_CONNS", 2),
		},
		Embedder: EmbedderConfig{
			URL:     getEnv("EMBEDDER_URL", "http://localhost:11434"),
			Model:   getEnv("EMBEDDER_MODEL", "embeddinggemma"),
			Timeout: getEnvInt("EMBEDDER_TIMEOUT", 30),
			APIKey:  getSecret("EMBEDDER_API_KEY", "EMBEDDER_API_KEY_FILE", ""),
		},
		Rerank: RerankConfig{
			URL:               getEnv("RERANK_URL", "http://localhost:11434"),
			Model:             getEnv("RERANK_MODEL", "gemini-2.0-flash"),
			Timeout:           getEnvInt("RERANK_TIMEOUT", 30),
			APIKey:            getSecret("RERANK_API_KEY", "RERANK_API_KEY_FILE", ""),
			PromptTemplate:    getEnv("RERANK_PROMPT_TEMPLATE", DefaultRerankPromptTemplate),
			ScoreThreshold:    getEnvInt("RERANK_SCORE_THRESHOLD", 75),
			MaxCandidateChars: getEnvInt("RERANK_MAX_CANDIDATE_CHARS", 400),
		},
		Search: SearchConfig{
			KeywordFetchLimit: getEnvInt("SEARCH_KEYWORD_FETCH_LIMIT", 10000),
			SemanticTopK:      getEnvInt("SEARCH_SEMANTIC_TOP_K", 6),
			SimilarityFloor:   getEnvFloat("SEARCH_SIMILARITY_FLOOR", 0.60),
			CorpusCacheTTL:    getEnvInt("SEARCH_CORPUS_CACHE_TTL", 60),
		},
		Worker: WorkerConfig{
			ModelName:    getEnv("LOCAL_RERANK_MODEL", "cross-encoder/ms-marco-MiniLM-L-6-v2"),
			ModelBaseURL: getEnv("LOCAL_RERANK_MODEL_BASE_URL", "https://huggingface.co"),
			CacheDir:     getEnv("LOCAL_RERANK_CACHE_DIR", os.TempDir()),
			ScorerURL:    getEnv("LOCAL_RERANK_SCORER_URL", ""),
			Timeout:      getEnvInt("LOCAL_RERANK_TIMEOUT", 15),
		},
		Stats: StatsConfig{
			CacheSize: getEnvInt("STATS_CACHE_SIZE", 16),
			CacheTTL:  getEnvInt("STATS_CACHE_TTL", 300),
		},
		Feedback: FeedbackConfig{
			RatePerSecond: getEnvFloat("FEEDBACK_RATE_PER_SECOND", 1),
			Burst:         getEnvInt("FEEDBACK_RATE_BURST", 5),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getSecret(envKey, fileEnvKey, fallback string) string {
	if value, ok := os.LookupEnv(envKey); ok {
		return value
	}
	if filePath, ok := os.LookupEnv(fileEnvKey); ok {
		content, err := os.ReadFile(filePath)
		if err == nil {
			return strings.TrimSpace(string(content))
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
