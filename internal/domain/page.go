package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// PageStatus is the annotation workflow state of a page.
type PageStatus string

const (
	PageNotStarted    PageStatus = "not_started"
	PageInProgress    PageStatus = "in_progress"
	PagePendingReview PageStatus = "pending_review"
	PageCompleted     PageStatus = "completed"
	PageRejected      PageStatus = "rejected"
)

// CanTransitionTo reports whether the workflow allows moving to next.
func (s PageStatus) CanTransitionTo(next PageStatus) bool {
	switch s {
	case PageNotStarted:
		return next == PageInProgress
	case PageInProgress:
		return next == PagePendingReview
	case PagePendingReview:
		return next == PageCompleted || next == PageRejected
	case PageRejected:
		return next == PageInProgress
	default:
		return false
	}
}

// Page is one manga page. The embedding is present only once a
// description has been generated and saved; pages without one are
// excluded from semantic search.
type Page struct {
	ID             uuid.UUID
	ChapterID      uuid.UUID
	Number         int
	ImageURL       string
	Status         PageStatus
	RawDescription string
	Embedding      []float32
}

// DescriptionMetadata carries the structured facets of a page description.
type DescriptionMetadata struct {
	Arc        string   `json:"arc"`
	Characters []string `json:"characters"`
}

// Description is the semantic description blob saved per page: a
// free-form content string plus metadata facets used for filtering.
type Description struct {
	Content  string              `json:"content"`
	Metadata DescriptionMetadata `json:"metadata"`
}

// ParseDescription decodes a stored description blob. Descriptions may
// arrive double-encoded (a JSON string containing JSON); both forms are
// accepted. Parse failure wraps ErrMalformedData so callers can drop
// the single candidate without aborting the batch.
func ParseDescription(raw string) (Description, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Description{}, fmt.Errorf("%w: empty description", ErrMalformedData)
	}

	// Unwrap a JSON-string-encoded payload first.
	if strings.HasPrefix(trimmed, `"`) {
		var inner string
		if err := json.Unmarshal([]byte(trimmed), &inner); err == nil {
			trimmed = inner
		}
	}

	var desc Description
	if err := json.Unmarshal([]byte(trimmed), &desc); err != nil {
		return Description{}, fmt.Errorf("%w: %v", ErrMalformedData, err)
	}
	return desc, nil
}

// SearchText is the text a page contributes to reranking: the semantic
// content concatenated with its tagged character list.
func (d Description) SearchText() string {
	if len(d.Metadata.Characters) == 0 {
		return d.Content
	}
	return d.Content + " Personnages: " + strings.Join(d.Metadata.Characters, ", ")
}
