package aiclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"scantrad-search/internal/domain"
)

// modelFiles are the artifacts fetched for the cross-encoder. The set
// mirrors what the hosting endpoint publishes per model.
var modelFiles = []string{
	"config.json",
	"tokenizer.json",
	"onnx/model_quantized.onnx",
}

// HTTPModelLoader downloads the cross-encoder weights from a public
// model host on first load and caches them on disk; subsequent loads
// hit the cache. Load returns a scorer bound to the fetched model.
type HTTPModelLoader struct {
	ModelName string
	BaseURL   string
	CacheDir  string
	ScorerURL string
	Client    *http.Client
	logger    *slog.Logger
}

func NewHTTPModelLoader(modelName, baseURL, cacheDir, scorerURL string, client *http.Client, logger *slog.Logger) *HTTPModelLoader {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	return &HTTPModelLoader{
		ModelName: modelName,
		BaseURL:   strings.TrimRight(baseURL, "/"),
		CacheDir:  cacheDir,
		ScorerURL: scorerURL,
		Client:    client,
		logger:    logger,
	}
}

// Load fetches the model artifacts, emitting one progress event per
// file plus a final ready event. A fully cached model loads without
// network access.
func (l *HTTPModelLoader) Load(ctx context.Context, onProgress func(domain.ModelLoadProgress)) (domain.CrossEncoderScorer, error) {
	if l.ScorerURL == "" {
		return nil, fmt.Errorf("no scorer endpoint configured for model %s", l.ModelName)
	}

	modelDir := filepath.Join(l.CacheDir, filepath.FromSlash(l.ModelName))
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create model cache dir: %w", err)
	}

	for i, file := range modelFiles {
		if onProgress != nil {
			onProgress(domain.ModelLoadProgress{
				Stage:   file,
				Percent: i * 100 / len(modelFiles),
			})
		}
		if err := l.fetchFile(ctx, modelDir, file); err != nil {
			return nil, fmt.Errorf("failed to fetch %s: %w", file, err)
		}
	}

	if onProgress != nil {
		onProgress(domain.ModelLoadProgress{Stage: "ready", Percent: 100})
	}

	l.logger.Info("model_loaded",
		slog.String("model", l.ModelName),
		slog.String("cache_dir", modelDir))

	return NewScorerClient(l.ScorerURL, modelDir, nil), nil
}

func (l *HTTPModelLoader) fetchFile(ctx context.Context, modelDir, file string) error {
	dest := filepath.Join(modelDir, filepath.FromSlash(file))
	if _, err := os.Stat(dest); err == nil {
		return nil // cached
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	url := fmt.Sprintf("%s/%s/resolve/main/%s", l.BaseURL, l.ModelName, file)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := l.Client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model host returned status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}

var _ domain.ModelLoader = (*HTTPModelLoader)(nil)
