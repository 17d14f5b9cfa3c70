package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"scantrad-search/internal/domain"
)

// RecordFeedbackInput defines the input parameters for Record.
type RecordFeedbackInput struct {
	Query      string
	DocID      string
	DocText    string
	IsRelevant bool
	Provider   string
}

// FeedbackUsecase defines the interface for recording relevance
// judgments on search results.
type FeedbackUsecase interface {
	Record(ctx context.Context, input RecordFeedbackInput) error
}

type feedbackUsecase struct {
	repo   domain.FeedbackRepository
	logger *slog.Logger
}

// NewFeedbackUsecase creates a new FeedbackUsecase.
func NewFeedbackUsecase(repo domain.FeedbackRepository, logger *slog.Logger) FeedbackUsecase {
	return &feedbackUsecase{repo: repo, logger: logger}
}

func (u *feedbackUsecase) Record(ctx context.Context, input RecordFeedbackInput) error {
	if input.Query == "" {
		return fmt.Errorf("%w: feedback query is empty", domain.ErrInvalidQuery)
	}

	docID, err := domain.ParseDocID(input.DocID)
	if err != nil {
		return err
	}

	fb := domain.SearchFeedback{
		ID:         uuid.New(),
		Query:      input.Query,
		DocID:      docID,
		DocText:    input.DocText,
		IsRelevant: input.IsRelevant,
		Provider:   input.Provider,
		CreatedAt:  time.Now().UTC(),
	}

	if err := u.repo.Insert(ctx, fb); err != nil {
		return fmt.Errorf("failed to record feedback: %w", err)
	}

	u.logger.Info("feedback_recorded",
		slog.String("query", input.Query),
		slog.Int64("doc_id", docID),
		slog.Bool("is_relevant", input.IsRelevant))
	return nil
}
