package domain

import (
	"time"

	"github.com/google/uuid"
)

// BubbleStatus is the moderation lifecycle state of a dialogue bubble.
type BubbleStatus string

const (
	BubbleProposed  BubbleStatus = "Proposed"
	BubbleValidated BubbleStatus = "Validated"
	BubbleRejected  BubbleStatus = "Rejected"
)

// Region is a rectangular zone in source-image pixel space.
type Region struct {
	X float64
	Y float64
	W float64
	H float64
}

// Bubble is a transcribed dialogue snippet drawn on a manga page.
// Keyword search hits are bubble-level; the annotation workflow that
// creates and moderates bubbles lives outside this service.
type Bubble struct {
	ID           uuid.UUID
	PageID       uuid.UUID
	Region       Region
	ProposedText string
	Status       BubbleStatus
	Order        int
	CreatorID    uuid.UUID
	Comment      string
	CreatedAt    time.Time
}

// NextOrder returns the display order for a new bubble on a page:
// max(order)+1 over non-rejected bubbles, starting at 1.
func NextOrder(existing []Bubble) int {
	max := 0
	for _, b := range existing {
		if b.Status == BubbleRejected {
			continue
		}
		if b.Order > max {
			max = b.Order
		}
	}
	return max + 1
}
