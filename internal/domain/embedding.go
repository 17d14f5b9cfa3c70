package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EmbeddedPage is one row of the semantic corpus: a page that has a
// saved description and a precomputed embedding. RawEmbedding keeps
// the stored text form because historical rows hold either a native
// vector or its JSON-array-string serialization.
type EmbeddedPage struct {
	PageID         string
	ImageURL       string
	TomeNumber     int
	ChapterNumber  int
	PageNumber     int
	RawDescription string
	RawEmbedding   string
}

// DecodeEmbedding parses a stored embedding. Accepted forms:
//
//	[0.1,0.2,...]          pgvector text / JSON array
//	"[0.1,0.2,...]"        JSON-string-wrapped array
//
// Failure wraps ErrMalformedData; callers drop the single row.
func DecodeEmbedding(raw string) ([]float32, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty embedding", ErrMalformedData)
	}

	if strings.HasPrefix(trimmed, `"`) {
		var inner string
		if err := json.Unmarshal([]byte(trimmed), &inner); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedData, err)
		}
		trimmed = inner
	}

	var vec []float32
	if err := json.Unmarshal([]byte(trimmed), &vec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedData, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: empty embedding", ErrMalformedData)
	}
	return vec, nil
}
