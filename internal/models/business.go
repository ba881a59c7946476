package models

// Candidate is a business eligible for recommendation.
type Candidate struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Categories  TagSet    `json:"categories"`
	Tags        TagSet    `json:"tags"`
	Location    *GeoPoint `json:"location,omitempty"`
	Popularity  float64   `json:"popularity_score"`
	Rating      float64   `json:"rating"`
	RatingCount int       `json:"rating_count"`
}

// CandidateFilter narrows the candidate listing on the store side. A candidate
// matches when one of its categories contains a Categories pattern or one of
// its tags contains a Tags pattern (case-insensitive substring). With both
// slices empty every candidate matches.
type CandidateFilter struct {
	Categories []string `json:"categories,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Limit      int      `json:"limit"`
}
