package models

import (
	"sort"
	"strings"
)

// ScoreTerm is one named contribution to a candidate's score.
type ScoreTerm struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// ScoredCandidate is produced per request and never persisted.
type ScoredCandidate struct {
	CandidateID int64       `json:"business_id"`
	Name        string      `json:"name,omitempty"`
	Score       float64     `json:"score"`
	Breakdown   []ScoreTerm `json:"breakdown"`
}

// Toggles switch individual scoring terms off for a request.
type Toggles struct {
	DisableLocation     bool `json:"disable_location,omitempty"`
	DisableInteractions bool `json:"disable_interactions,omitempty"`
	DisableDecay        bool `json:"disable_decay,omitempty"`
}

// RecommendationContext carries every request parameter that changes the
// content of a ranked list. All of it feeds the cache context hash.
type RecommendationContext struct {
	MaxResults int       `json:"max_results"`
	Categories []string  `json:"categories,omitempty"`
	Tags       []string  `json:"tags,omitempty"`
	Location   *GeoPoint `json:"location,omitempty"`
	Toggles    Toggles   `json:"toggles"`
}

// Canonical returns a copy with filter terms trimmed, lower-cased, de-duplicated
// and sorted. Two contexts that select the same candidates canonicalize equal.
func (rc RecommendationContext) Canonical() RecommendationContext {
	out := rc
	out.Categories = CanonicalTerms(rc.Categories)
	out.Tags = CanonicalTerms(rc.Tags)
	if rc.Location != nil {
		loc := *rc.Location
		out.Location = &loc
	}
	return out
}

// CanonicalTerms normalizes a filter list. It returns nil when nothing remains.
func CanonicalTerms(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		v := strings.ToLower(strings.TrimSpace(item))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

// Recommendations is the response of one recommendation request.
type Recommendations struct {
	UserID int64             `json:"user_id"`
	Source string            `json:"source"`
	Items  []ScoredCandidate `json:"recommendations"`
	Count  int               `json:"count"`
}

const (
	SourceCache    = "cache"
	SourceComputed = "computed"
)
