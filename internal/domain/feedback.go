package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SearchFeedback is one relevance judgment on a search result.
// Append-only: the core never reads feedback back.
type SearchFeedback struct {
	ID         uuid.UUID
	Query      string
	DocID      int64
	DocText    string
	IsRelevant bool
	Provider   string
	CreatedAt  time.Time
}

// ParseDocID extracts the numeric document id from the client-side
// identifier, stripping the "page-" or "bubble-" prefix. Bare numeric
// ids are accepted as-is.
func ParseDocID(docID string) (int64, error) {
	s := strings.TrimSpace(docID)
	for _, prefix := range []string{"page-", "bubble-"} {
		if strings.HasPrefix(s, prefix) {
			s = strings.TrimPrefix(s, prefix)
			break
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid doc id %q: %w", docID, err)
	}
	return n, nil
}
