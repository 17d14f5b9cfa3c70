package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextOrder_EmptyPageStartsAtOne(t *testing.T) {
	assert.Equal(t, 1, NextOrder(nil))
}

func TestNextOrder_MaxPlusOne(t *testing.T) {
	bubbles := []Bubble{
		{Order: 1, Status: BubbleValidated},
		{Order: 3, Status: BubbleProposed},
		{Order: 2, Status: BubbleValidated},
	}
	assert.Equal(t, 4, NextOrder(bubbles))
}

func TestNextOrder_RejectedBubblesIgnored(t *testing.T) {
	bubbles := []Bubble{
		{Order: 1, Status: BubbleValidated},
		{Order: 7, Status: BubbleRejected},
	}
	assert.Equal(t, 2, NextOrder(bubbles))
}
