// internal/recommender/ranking/ranker.go
package ranking

import (
	"sort"

	"recommendation-engine/internal/models"
)

// Ranker orders scored candidates into a bounded list.
type Ranker struct {
	maxLimit int
}

// NewRanker caps every ranked list at maxLimit entries. A non-positive
// maxLimit means no cap.
func NewRanker(maxLimit int) *Ranker {
	return &Ranker{maxLimit: maxLimit}
}

// Rank returns a new slice sorted by score descending, ties broken by
// ascending candidate id, truncated to limit. The input is not modified.
// A limit of zero or above the cap falls back to the cap.
func (r *Ranker) Rank(scored []models.ScoredCandidate, limit int) []models.ScoredCandidate {
	out := make([]models.ScoredCandidate, len(scored))
	copy(out, scored)

	sort.SliceStable(out, func(i, j int) bool {
		return Less(out[i], out[j])
	})

	n := r.effectiveLimit(limit)
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func (r *Ranker) effectiveLimit(limit int) int {
	if r.maxLimit <= 0 {
		return limit
	}
	if limit <= 0 || limit > r.maxLimit {
		return r.maxLimit
	}
	return limit
}

// Less is the ranking order: higher score first, then lower candidate id.
func Less(a, b models.ScoredCandidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.CandidateID < b.CandidateID
}
