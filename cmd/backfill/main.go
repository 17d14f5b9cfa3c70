package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"scantrad-search/internal/backfill"
	"scantrad-search/internal/infra/config"
)

var (
	version = "dev"

	// Global flags
	verbose    bool
	cursorFile string

	// Run command flags
	batchSize  int
	dryRun     bool
	hyperBoost bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "backfill",
	Short:   "Compute missing page embeddings",
	Version: version,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the embedding backfill",
	Long: `Run the embedding backfill: every page that has a description but
no embedding yet gets one computed and saved.

The process can be resumed from where it left off using cursor tracking.

Examples:
  # Process all pages missing an embedding (resumes from cursor)
  backfill run

  # Dry run to see what would be processed
  backfill run --dry-run

  # Use a temporary local GPU container for embedding
  backfill run --hyper-boost`,
	RunE: runBackfill,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current cursor status",
	RunE:  showStatus,
}

var resetCmd = &cobra.Command{
	Use:   "reset-cursor",
	Short: "Reset the cursor to start from beginning",
	RunE:  resetCursor,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&cursorFile, "cursor-file", "cursor.json", "cursor file path")

	runCmd.Flags().IntVar(&batchSize, "batch-size", 50, "pages per embedding batch")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be processed without actually processing")
	runCmd.Flags().BoolVar(&hyperBoost, "hyper-boost", false, "use local GPU for embedding (starts temporary Ollama container)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resetCmd)
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

func runBackfill(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	appCfg := config.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
			appCfg.DB.User, appCfg.DB.Password, appCfg.DB.Host, appCfg.DB.Port, appCfg.DB.Name)
	}

	cfg := backfill.DefaultConfig()
	cfg.DatabaseURL = dbURL
	cfg.EmbedderURL = appCfg.Embedder.URL
	cfg.EmbedderModel = appCfg.Embedder.Model
	cfg.EmbedderAPIKey = appCfg.Embedder.APIKey
	cfg.CursorFile = cursorFile
	cfg.BatchSize = batchSize
	cfg.DryRun = dryRun

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var hb *backfill.HyperBoost
	if hyperBoost {
		logger.Info("initializing hyper-boost mode")

		var err error
		hb, err = backfill.NewHyperBoost(logger)
		if err != nil {
			return fmt.Errorf("create hyperboost: %w", err)
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer stopCancel()
			if stopErr := hb.Stop(stopCtx); stopErr != nil {
				logger.Warn("failed to stop hyperboost container", slog.String("error", stopErr.Error()))
			}
			hb.Close()
		}()

		if err := hb.Start(ctx); err != nil {
			return fmt.Errorf("start hyperboost container: %w", err)
		}
		if err := hb.WaitReady(ctx); err != nil {
			return fmt.Errorf("hyperboost container not ready: %w", err)
		}
		if err := hb.PullModel(ctx); err != nil {
			return fmt.Errorf("pull embedding model: %w", err)
		}

		cfg.EmbedderOverrideURL = hb.EmbedderURL()
		logger.Info("hyper-boost enabled",
			slog.String("embedder_url", cfg.EmbedderOverrideURL),
		)
	}

	logger.Info("starting backfill",
		slog.String("cursor_file", cfg.CursorFile),
		slog.Int("batch_size", cfg.BatchSize),
		slog.Bool("dry_run", cfg.DryRun),
		slog.Bool("hyper_boost", hyperBoost),
	)

	runner, err := backfill.NewRunner(cfg, logger)
	if err != nil {
		return fmt.Errorf("create runner: %w", err)
	}
	defer runner.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down...", slog.String("signal", sig.String()))
		cancel()
	}()

	if err := runner.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("backfill interrupted, cursor saved for resume")
			return nil
		}
		return fmt.Errorf("run backfill: %w", err)
	}

	return nil
}

func showStatus(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	cfg := backfill.DefaultConfig()
	cfg.CursorFile = cursorFile

	runner, err := backfill.NewRunner(cfg, logger)
	if err != nil {
		return fmt.Errorf("create runner: %w", err)
	}
	defer runner.Close()

	cursor, err := runner.GetCursor()
	if err != nil {
		return fmt.Errorf("get cursor: %w", err)
	}

	if cursor.IsEmpty() {
		fmt.Println("No cursor found. Backfill will start from the beginning.")
		return nil
	}

	fmt.Printf("Cursor Status:\n")
	fmt.Printf("  Version:         %d\n", cursor.Version)
	fmt.Printf("  Last Page ID:    %d\n", cursor.LastPageID)
	fmt.Printf("  Processed Count: %d\n", cursor.ProcessedCount)
	fmt.Printf("  Updated At:      %s\n", cursor.UpdatedAt.Format(time.RFC3339))

	return nil
}

func resetCursor(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	cfg := backfill.DefaultConfig()
	cfg.CursorFile = cursorFile

	runner, err := backfill.NewRunner(cfg, logger)
	if err != nil {
		return fmt.Errorf("create runner: %w", err)
	}
	defer runner.Close()

	if err := runner.ResetCursor(); err != nil {
		return fmt.Errorf("reset cursor: %w", err)
	}

	logger.Info("cursor reset successfully")
	return nil
}
