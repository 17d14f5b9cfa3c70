package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDescription_Valid(t *testing.T) {
	raw := `{"content":"Luffy declare qu'il sera le roi des pirates","metadata":{"arc":"East Blue","characters":["Monkey D. Luffy","Zoro"]}}`

	desc, err := ParseDescription(raw)
	require.NoError(t, err)

	assert.Equal(t, "East Blue", desc.Metadata.Arc)
	assert.Equal(t, []string{"Monkey D. Luffy", "Zoro"}, desc.Metadata.Characters)
	assert.Contains(t, desc.Content, "roi des pirates")
}

func TestParseDescription_DoubleEncoded(t *testing.T) {
	raw := `"{\"content\":\"scene de combat\",\"metadata\":{\"arc\":\"Alabasta\",\"characters\":[\"Crocodile\"]}}"`

	desc, err := ParseDescription(raw)
	require.NoError(t, err)

	assert.Equal(t, "Alabasta", desc.Metadata.Arc)
}

func TestParseDescription_Malformed(t *testing.T) {
	for _, raw := range []string{"", "   ", "not json at all", "{truncated"} {
		_, err := ParseDescription(raw)
		assert.True(t, errors.Is(err, ErrMalformedData), "raw=%q", raw)
	}
}

func TestDescription_SearchText(t *testing.T) {
	desc := Description{
		Content:  "Luffy mange de la viande",
		Metadata: DescriptionMetadata{Characters: []string{"Luffy", "Sanji"}},
	}
	text := desc.SearchText()
	assert.Contains(t, text, "Luffy mange de la viande")
	assert.Contains(t, text, "Luffy, Sanji")

	bare := Description{Content: "paysage"}
	assert.Equal(t, "paysage", bare.SearchText())
}

func TestPageStatus_Transitions(t *testing.T) {
	assert.True(t, PageNotStarted.CanTransitionTo(PageInProgress))
	assert.True(t, PageInProgress.CanTransitionTo(PagePendingReview))
	assert.True(t, PagePendingReview.CanTransitionTo(PageCompleted))
	assert.True(t, PagePendingReview.CanTransitionTo(PageRejected))
	assert.True(t, PageRejected.CanTransitionTo(PageInProgress))

	assert.False(t, PageNotStarted.CanTransitionTo(PageCompleted))
	assert.False(t, PageCompleted.CanTransitionTo(PageInProgress))
	assert.False(t, PageInProgress.CanTransitionTo(PageNotStarted))
}
