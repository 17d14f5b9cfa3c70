package domain

import (
	"math"
	"sort"
)

// CosineSimilarity computes dot(a,b) / (|a|*|b|). A zero-norm or
// mismatched-dimension pair scores 0 rather than NaN: a zero vector
// carries no meaning and must not poison a sort.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// ScoredVector pairs a corpus id with its embedding for scoring.
type ScoredVector struct {
	ID     string
	Vector []float32
}

// SimilarityScore is one scored corpus entry.
type SimilarityScore struct {
	ID         string
	Similarity float64
}

// ScoreCorpus scores every corpus vector against the query and returns
// results sorted by similarity descending. The sort is stable so equal
// scores preserve corpus order. Pure, single O(N*D) pass.
func ScoreCorpus(query []float32, corpus []ScoredVector) []SimilarityScore {
	scores := make([]SimilarityScore, len(corpus))
	for i, v := range corpus {
		scores[i] = SimilarityScore{ID: v.ID, Similarity: CosineSimilarity(query, v.Vector)}
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Similarity > scores[j].Similarity
	})
	return scores
}
