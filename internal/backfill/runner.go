package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"scantrad-search/internal/adapter/aiclient"
	"scantrad-search/internal/adapter/repository"
	"scantrad-search/internal/domain"
	"scantrad-search/internal/infra"
	"scantrad-search/internal/infra/httpclient"
)

// Config holds the backfill run parameters.
type Config struct {
	DatabaseURL string

	EmbedderURL    string
	EmbedderModel  string
	EmbedderAPIKey string
	// EmbedderOverrideURL points at the hyper-boost container when set.
	EmbedderOverrideURL string

	CursorFile string
	BatchSize  int
	DryRun     bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		EmbedderURL:   "http://localhost:11434",
		EmbedderModel: "embeddinggemma",
		CursorFile:    "cursor.json",
		BatchSize:     50,
	}
}

// Runner drives the embedding backfill: batches of pages missing an
// embedding are described, encoded, and saved, advancing a resumable
// cursor after every batch.
type Runner struct {
	cfg     Config
	cursors *CursorManager
	logger  *slog.Logger
}

// NewRunner creates a Runner. The database connection is opened by Run,
// so cursor-only operations (status, reset) never need a live database.
func NewRunner(cfg Config, logger *slog.Logger) (*Runner, error) {
	if cfg.BatchSize < 1 {
		return nil, fmt.Errorf("batch size must be positive")
	}
	return &Runner{
		cfg:     cfg,
		cursors: NewCursorManager(cfg.CursorFile),
		logger:  logger,
	}, nil
}

// GetCursor loads the current cursor.
func (r *Runner) GetCursor() (Cursor, error) {
	return r.cursors.Load()
}

// ResetCursor clears the cursor so the next run starts from the beginning.
func (r *Runner) ResetCursor() error {
	return r.cursors.Reset()
}

// Close releases resources.
func (r *Runner) Close() error {
	return nil
}

// Run processes all pages missing an embedding, in id order, resuming
// from the cursor. Pages with a malformed description are skipped and
// counted; they never abort the run.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.cursors.Lock(); err != nil {
		return err
	}
	defer func() { _ = r.cursors.Unlock() }()

	cursor, err := r.cursors.Load()
	if err != nil {
		return err
	}

	pool, err := infra.NewPostgresDB(ctx, r.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to db: %w", err)
	}
	defer pool.Close()

	pages := repository.NewPageRepository(pool)

	embedderURL := r.cfg.EmbedderURL
	if r.cfg.EmbedderOverrideURL != "" {
		embedderURL = r.cfg.EmbedderOverrideURL
	}
	encoder := aiclient.NewEmbedderClient(
		embedderURL, r.cfg.EmbedderModel,
		httpclient.NewPooledClient(2*time.Minute), r.logger,
	)

	skipped := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := pages.ListMissingEmbedding(ctx, cursor.LastPageID, r.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("list pages missing embedding: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		processed, batchSkipped, err := r.processBatch(ctx, pages, encoder, batch)
		if err != nil {
			return err
		}
		skipped += batchSkipped

		cursor.LastPageID = batch[len(batch)-1].ID
		cursor.ProcessedCount += processed
		if err := r.cursors.Save(cursor); err != nil {
			return fmt.Errorf("save cursor: %w", err)
		}

		r.logger.Info("backfill_batch_completed",
			slog.Int64("last_page_id", cursor.LastPageID),
			slog.Int("processed_total", cursor.ProcessedCount),
			slog.Int("skipped", batchSkipped))
	}

	r.logger.Info("backfill_completed",
		slog.Int("processed_total", cursor.ProcessedCount),
		slog.Int("skipped_total", skipped),
		slog.Bool("dry_run", r.cfg.DryRun))
	return nil
}

func (r *Runner) processBatch(ctx context.Context, pages *repository.PageRepository, encoder domain.VectorEncoder, batch []repository.PageToEmbed) (int, int, error) {
	var (
		ids   []int64
		texts []string
	)
	skipped := 0
	for _, p := range batch {
		desc, err := domain.ParseDescription(p.RawDescription)
		if err != nil {
			r.logger.Warn("page_skipped_malformed_description", slog.Int64("page_id", p.ID))
			skipped++
			continue
		}
		ids = append(ids, p.ID)
		texts = append(texts, desc.SearchText())
	}
	if len(texts) == 0 {
		return 0, skipped, nil
	}

	if r.cfg.DryRun {
		r.logger.Info("dry_run_batch",
			slog.Int("would_embed", len(texts)),
			slog.Int64("first_page_id", ids[0]))
		return len(texts), skipped, nil
	}

	vectors, err := encoder.Encode(ctx, texts, r.cfg.EmbedderAPIKey)
	if err != nil {
		return 0, skipped, fmt.Errorf("embed batch: %w", err)
	}

	for i, id := range ids {
		if err := pages.SaveEmbedding(ctx, id, vectors[i]); err != nil {
			return 0, skipped, fmt.Errorf("save embedding for page %d: %w", id, err)
		}
	}
	return len(ids), skipped, nil
}
