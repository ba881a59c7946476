// internal/recommender/scoring/config.go
package scoring

import (
	"recommendation-engine/internal/common/config"
	"recommendation-engine/internal/models"
)

// Weights holds every coefficient used by the scorer.
type Weights struct {
	Category         float64
	Tag              float64
	Popularity       float64
	PopularityMax    float64
	LocationBonus    float64
	LocationRadiusKm float64
	Interaction      float64
	KindMultipliers  map[models.InteractionKind]float64
	DecayEnabled     bool
	HalfLifeDays     float64
}

// WeightsFromConfig converts the loaded scoring section.
func WeightsFromConfig(cfg config.ScoringConfig) Weights {
	w := Weights{
		Category:         cfg.CategoryWeight,
		Tag:              cfg.TagWeight,
		Popularity:       cfg.PopularityWeight,
		PopularityMax:    cfg.PopularityMax,
		LocationBonus:    cfg.LocationBonus,
		LocationRadiusKm: cfg.LocationRadiusKm,
		Interaction:      cfg.InteractionWeight,
		KindMultipliers:  make(map[models.InteractionKind]float64, len(cfg.InteractionMultiplier)),
		DecayEnabled:     cfg.DecayEnabled,
		HalfLifeDays:     cfg.HalfLifeDays,
	}
	for kind, m := range cfg.InteractionMultiplier {
		if k, ok := models.ParseInteractionKind(kind); ok {
			w.KindMultipliers[k] = m
		}
	}
	return w
}

// DefaultWeights returns the reference coefficients.
func DefaultWeights() Weights {
	return WeightsFromConfig(config.DefaultScoring())
}
