package domain

import "fmt"

// CandidateKind discriminates the two hit granularities the search
// pipeline produces: bubble-level keyword hits and page-level semantic
// hits. Both converge on the same Candidate shape.
type CandidateKind string

const (
	KindBubble   CandidateKind = "bubble"
	KindSemantic CandidateKind = "semantic"
)

// Candidate is the ephemeral, per-request projection of a Bubble or a
// Page carrying only what ranking and rendering need. Never persisted.
type Candidate struct {
	Kind          CandidateKind
	ID            string
	PageID        string
	ImageURL      string
	Content       string
	TomeNumber    int
	ChapterNumber int
	PageNumber    int

	// Similarity is the raw retrieval score: keyword rank for bubble
	// hits, cosine similarity for semantic hits.
	Similarity float64

	// AIScore and VectorScore are the 0-100 display scores set after
	// the (re)ranking stage of semantic search.
	AIScore     int
	VectorScore int
}

// Context renders the human-readable locator shown with every result.
func (c Candidate) Context() string {
	return fmt.Sprintf("Tome %d - Chap. %d - Page %d", c.TomeNumber, c.ChapterNumber, c.PageNumber)
}

// BubbleRow is the row shape returned by the stored full-text search
// function over bubble transcripts.
type BubbleRow struct {
	ID            string
	PageID        string
	ImageURL      string
	X             float64
	Y             float64
	W             float64
	H             float64
	ProposedText  string
	TomeNumber    int
	ChapterNumber int
	PageNumber    int
	Rank          float64
}

// CandidateFromBubbleRow maps a keyword hit onto the common shape.
func CandidateFromBubbleRow(row BubbleRow) Candidate {
	return Candidate{
		Kind:          KindBubble,
		ID:            row.ID,
		PageID:        row.PageID,
		ImageURL:      row.ImageURL,
		Content:       row.ProposedText,
		TomeNumber:    row.TomeNumber,
		ChapterNumber: row.ChapterNumber,
		PageNumber:    row.PageNumber,
		Similarity:    row.Rank,
	}
}

// CandidateFromPageRow maps a scored corpus page onto the common shape.
// The content is the description snippet, not bubble text.
func CandidateFromPageRow(page EmbeddedPage, snippet string, similarity float64) Candidate {
	return Candidate{
		Kind:          KindSemantic,
		ID:            page.PageID,
		PageID:        page.PageID,
		ImageURL:      page.ImageURL,
		Content:       snippet,
		TomeNumber:    page.TomeNumber,
		ChapterNumber: page.ChapterNumber,
		PageNumber:    page.PageNumber,
		Similarity:    similarity,
	}
}
