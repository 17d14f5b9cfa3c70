package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDocID_PagePrefix(t *testing.T) {
	id, err := ParseDocID("page-57")
	require.NoError(t, err)
	assert.Equal(t, int64(57), id)
}

func TestParseDocID_BubblePrefix(t *testing.T) {
	id, err := ParseDocID("bubble-104")
	require.NoError(t, err)
	assert.Equal(t, int64(104), id)
}

func TestParseDocID_Bare(t *testing.T) {
	id, err := ParseDocID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestParseDocID_Invalid(t *testing.T) {
	for _, raw := range []string{"", "page-", "page-abc", "chapter-3"} {
		_, err := ParseDocID(raw)
		assert.Error(t, err, "raw=%q", raw)
	}
}
