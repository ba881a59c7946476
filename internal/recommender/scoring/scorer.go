// internal/recommender/scoring/scorer.go
package scoring

import (
	"math"
	"time"

	apperrors "recommendation-engine/internal/common/errors"
	"recommendation-engine/internal/models"
)

// Term names, in breakdown order.
const (
	TermCategory    = "category_overlap"
	TermTag         = "tag_overlap"
	TermPopularity  = "popularity"
	TermLocation    = "location"
	TermInteraction = "interaction"
)

// Context is the per-request input to scoring that is not part of the user or candidate.
type Context struct {
	Now time.Time
	// Location overrides the profile location when set.
	Location *models.GeoPoint
	Toggles  models.Toggles
}

// Scorer is deterministic and has no side effects.
type Scorer struct {
	w Weights
}

func NewScorer(w Weights) *Scorer {
	return &Scorer{w: w}
}

func (s *Scorer) Weights() Weights {
	return s.w
}

// Score computes the total for one candidate. interactionWeight is the
// aggregate produced by AggregateInteractions for this (user, candidate) pair.
func (s *Scorer) Score(user *models.UserProfile, c *models.Candidate, interactionWeight float64, ctx Context) models.ScoredCandidate {
	var interests models.TagSet
	if user != nil {
		interests = user.Interests
	}

	category := overlap(interests, c.Categories) * s.w.Category
	tag := overlap(interests, c.Tags) * s.w.Tag
	popularity := s.normalizePopularity(c.Popularity) * s.w.Popularity
	location := s.locationTerm(user, c, ctx)

	interaction := 0.0
	if !ctx.Toggles.DisableInteractions {
		interaction = interactionWeight * s.w.Interaction
	}

	breakdown := []models.ScoreTerm{
		{Name: TermCategory, Value: category},
		{Name: TermTag, Value: tag},
		{Name: TermPopularity, Value: popularity},
		{Name: TermLocation, Value: location},
		{Name: TermInteraction, Value: interaction},
	}

	return models.ScoredCandidate{
		CandidateID: c.ID,
		Name:        c.Name,
		Score:       category + tag + popularity + location + interaction,
		Breakdown:   breakdown,
	}
}

// overlap is |interests ∩ set| / max(1, |set|).
func overlap(interests, set models.TagSet) float64 {
	if len(set) == 0 || len(interests) == 0 {
		return 0
	}
	return float64(interests.IntersectionCount(set)) / float64(len(set))
}

func (s *Scorer) normalizePopularity(p float64) float64 {
	if s.w.PopularityMax <= 0 || p <= 0 || math.IsNaN(p) {
		return 0
	}
	return math.Min(p/s.w.PopularityMax, 1)
}

func (s *Scorer) locationTerm(user *models.UserProfile, c *models.Candidate, ctx Context) float64 {
	if ctx.Toggles.DisableLocation || c.Location == nil {
		return 0
	}
	origin := ctx.Location
	if origin == nil && user != nil {
		origin = user.Location
	}
	if origin == nil {
		return 0
	}
	if DistanceKm(*origin, *c.Location) <= s.w.LocationRadiusKm {
		return s.w.LocationBonus
	}
	return 0
}

// Decay returns weight × exp(-ln2 × ageDays / halfLifeDays). Future timestamps count as age zero.
func Decay(weight float64, age time.Duration, halfLifeDays float64) float64 {
	if halfLifeDays <= 0 {
		return weight
	}
	ageDays := age.Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return weight * math.Exp(-math.Ln2*ageDays/halfLifeDays)
}

// AggregateInteractions sums per-kind weighted (and optionally decayed)
// interaction weights per candidate. An unknown kind is an error.
func (s *Scorer) AggregateInteractions(records []models.InteractionRecord, ctx Context) (map[int64]float64, error) {
	out := make(map[int64]float64)
	decay := s.w.DecayEnabled && !ctx.Toggles.DisableDecay

	for _, r := range records {
		if _, ok := models.ParseInteractionKind(string(r.Kind)); !ok {
			return nil, apperrors.NewInvalidInteractionKindError(string(r.Kind))
		}
		w := r.Weight * s.w.KindMultipliers[r.Kind]
		if decay {
			w = Decay(w, ctx.Now.Sub(r.Timestamp), s.w.HalfLifeDays)
		}
		out[r.CandidateID] += w
	}
	return out, nil
}
