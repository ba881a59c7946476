// internal/recommender/service/service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	apperrors "recommendation-engine/internal/common/errors"
	"recommendation-engine/internal/common/logger"
	"recommendation-engine/internal/common/metrics"
	"recommendation-engine/internal/common/validation"
	"recommendation-engine/internal/models"
	"recommendation-engine/internal/recommender/cache"
	"recommendation-engine/internal/recommender/ranking"
	"recommendation-engine/internal/recommender/scoring"
)

// FeatureStore is the persistent source of users, businesses and interactions.
type FeatureStore interface {
	LoadUser(ctx context.Context, id int64) (*models.UserProfile, error)
	LoadCandidates(ctx context.Context, filter models.CandidateFilter) ([]models.Candidate, error)
	LoadInteractions(ctx context.Context, userID int64, since *time.Time, limit int) ([]models.InteractionRecord, error)
	UpsertInteraction(ctx context.Context, r models.InteractionRecord) error
	UpsertUser(ctx context.Context, u *models.UserProfile) error
	UpsertCandidate(ctx context.Context, c *models.Candidate) error
	DeleteUser(ctx context.Context, id int64) error
	DeleteCandidate(ctx context.Context, id int64) error
	Ping(ctx context.Context) error
}

// RecommendationCache stores ranked lists and feature vectors. Every error
// other than cache.ErrMiss is treated as the cache being unavailable.
type RecommendationCache interface {
	GetRanked(ctx context.Context, key string) ([]models.ScoredCandidate, error)
	PutRanked(ctx context.Context, key string, list []models.ScoredCandidate, ttl time.Duration) error
	GetUserFeatures(ctx context.Context, userID int64) (*models.UserFeatures, error)
	PutUserFeatures(ctx context.Context, f *models.UserFeatures, ttl time.Duration) error
	UserEpoch(ctx context.Context, userID int64) (int64, error)
	InvalidateUser(ctx context.Context, userID int64) (int, error)
	Ping(ctx context.Context) error
}

// Config holds the orchestration limits.
type Config struct {
	DefaultResults     int
	MaxResults         int
	CandidateLimit     int
	InteractionHistory int
	RankedTTL          time.Duration
	FeaturesTTL        time.Duration
	RetryBackoff       time.Duration
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces time.Now for scoring and interaction timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTracer sets the tracer used for operation spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// Service answers recommendation requests from the cache when it can and
// computes them from the feature store when it cannot. A nil cache disables
// caching entirely.
type Service struct {
	store  FeatureStore
	cache  RecommendationCache
	scorer *scoring.Scorer
	ranker *ranking.Ranker
	cfg    Config
	logger logger.Logger
	tracer trace.Tracer
	now    func() time.Time
	flight singleflight.Group
}

func New(store FeatureStore, rc RecommendationCache, scorer *scoring.Scorer, cfg Config, log logger.Logger, opts ...Option) *Service {
	if cfg.DefaultResults <= 0 {
		cfg.DefaultResults = 10
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 50
	}
	if cfg.DefaultResults > cfg.MaxResults {
		cfg.DefaultResults = cfg.MaxResults
	}
	if cfg.RankedTTL <= 0 {
		cfg.RankedTTL = 5 * time.Minute
	}
	if cfg.FeaturesTTL <= 0 {
		cfg.FeaturesTTL = time.Hour
	}

	s := &Service{
		store:  store,
		cache:  rc,
		scorer: scorer,
		ranker: ranking.NewRanker(cfg.MaxResults),
		cfg:    cfg,
		logger: log.WithFields(map[string]interface{}{"component": "service"}),
		tracer: otel.Tracer("recommendation-engine/service"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ==========================
// Recommendations
// ==========================

// GetRecommendations returns the ranked list for userID under rc. With
// bypassCache set the cached list is ignored but the fresh result is still
// written back.
func (s *Service) GetRecommendations(ctx context.Context, userID int64, rc models.RecommendationContext, bypassCache bool) (*models.Recommendations, error) {
	ctx, span := s.tracer.Start(ctx, "GetRecommendations", trace.WithAttributes(
		attribute.Int64("user.id", userID),
		attribute.Bool("cache.bypass", bypassCache),
	))
	defer span.End()

	result, err := s.getRecommendations(ctx, userID, rc, bypassCache)
	if err != nil {
		code := apperrors.Normalize(err).Code
		metrics.RecommendationErrors.WithLabelValues(string(code)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, string(code))
		return nil, err
	}

	metrics.RecommendationsServed.WithLabelValues(result.Source).Inc()
	span.SetAttributes(
		attribute.String("recommendations.source", result.Source),
		attribute.Int("recommendations.count", result.Count),
	)
	return result, nil
}

func (s *Service) getRecommendations(ctx context.Context, userID int64, rc models.RecommendationContext, bypassCache bool) (*models.Recommendations, error) {
	if userID <= 0 {
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("user id must be positive, got %d", userID))
	}
	rc, err := s.normalizeContext(rc)
	if err != nil {
		return nil, err
	}
	key := cache.RankedKey(userID, cache.ContextHash(rc))

	if !bypassCache && s.cache != nil {
		list, err := s.cache.GetRanked(ctx, key)
		switch {
		case err == nil:
			return newRecommendations(userID, models.SourceCache, list), nil
		case errors.Is(err, cache.ErrMiss):
		default:
			s.logger.Warn("cache read failed, computing directly", map[string]interface{}{
				"userId": userID,
				"error":  err,
			})
		}
	}

	var list []models.ScoredCandidate
	if bypassCache {
		list, err = s.computeAndStore(ctx, userID, rc, key, true)
	} else {
		// Concurrent misses for the same key share one computation.
		v, ferr, _ := s.flight.Do(key, func() (interface{}, error) {
			return s.computeAndStore(context.WithoutCancel(ctx), userID, rc, key, false)
		})
		err = ferr
		if v != nil {
			list = v.([]models.ScoredCandidate)
		}
	}
	if err != nil {
		return nil, err
	}
	return newRecommendations(userID, models.SourceComputed, list), nil
}

func newRecommendations(userID int64, source string, list []models.ScoredCandidate) *models.Recommendations {
	if list == nil {
		list = []models.ScoredCandidate{}
	}
	return &models.Recommendations{
		UserID: userID,
		Source: source,
		Items:  list,
		Count:  len(list),
	}
}

// normalizeContext clamps MaxResults and canonicalizes filters so that
// equivalent requests share a cache key.
func (s *Service) normalizeContext(rc models.RecommendationContext) (models.RecommendationContext, error) {
	rc = rc.Canonical()
	switch {
	case rc.MaxResults <= 0:
		rc.MaxResults = s.cfg.DefaultResults
	case rc.MaxResults > s.cfg.MaxResults:
		rc.MaxResults = s.cfg.MaxResults
	}
	if rc.Location != nil {
		if err := validation.GeoPoint.ValidateValue(rc.Location); err != nil {
			return rc, apperrors.NewInvalidInputError(err.Error())
		}
	}
	return rc, nil
}

func (s *Service) computeAndStore(ctx context.Context, userID int64, rc models.RecommendationContext, key string, bypassCache bool) ([]models.ScoredCandidate, error) {
	list, err := s.compute(ctx, userID, rc, bypassCache)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.PutRanked(ctx, key, list, s.cfg.RankedTTL); err != nil {
			s.logger.Warn("failed to cache ranked list", map[string]interface{}{
				"userId": userID,
				"key":    key,
				"error":  err,
			})
		}
	}
	return list, nil
}

func (s *Service) compute(ctx context.Context, userID int64, rc models.RecommendationContext, bypassCache bool) ([]models.ScoredCandidate, error) {
	ctx, span := s.tracer.Start(ctx, "ComputeRecommendations")
	defer span.End()

	features, err := s.userFeatures(ctx, userID, bypassCache)
	if err != nil {
		return nil, err
	}

	var candidates []models.Candidate
	err = s.withRetry(ctx, "load_candidates", func(ctx context.Context) error {
		var lerr error
		candidates, lerr = s.store.LoadCandidates(ctx, models.CandidateFilter{
			Categories: rc.Categories,
			Tags:       rc.Tags,
			Limit:      s.cfg.CandidateLimit,
		})
		return lerr
	})
	if err != nil {
		return nil, err
	}

	start := time.Now()
	sctx := scoring.Context{Now: s.now(), Location: rc.Location, Toggles: rc.Toggles}
	weights, err := s.scorer.AggregateInteractions(features.Interactions, sctx)
	if err != nil {
		return nil, err
	}

	user := features.Profile()
	scored := make([]models.ScoredCandidate, 0, len(candidates))
	for i := range candidates {
		c := &candidates[i]
		sc := s.scorer.Score(user, c, weights[c.ID], sctx)
		if sc.Score > 0 {
			scored = append(scored, sc)
		}
	}
	ranked := s.ranker.Rank(scored, rc.MaxResults)

	metrics.ScoringDuration.Observe(time.Since(start).Seconds())
	metrics.CandidatesScored.Observe(float64(len(candidates)))
	span.SetAttributes(
		attribute.Int("candidates.loaded", len(candidates)),
		attribute.Int("candidates.positive", len(scored)),
	)
	s.logger.Debug("recommendations computed", map[string]interface{}{
		"userId":     userID,
		"candidates": len(candidates),
		"positive":   len(scored),
		"returned":   len(ranked),
	})
	return ranked, nil
}

// userFeatures serves the feature vector from the cache unless bypassed,
// otherwise loads it from the store and writes it back.
func (s *Service) userFeatures(ctx context.Context, userID int64, bypassCache bool) (*models.UserFeatures, error) {
	if !bypassCache && s.cache != nil {
		f, err := s.cache.GetUserFeatures(ctx, userID)
		switch {
		case err == nil:
			return f, nil
		case errors.Is(err, cache.ErrMiss):
		default:
			s.logger.Warn("feature cache read failed, loading from store", map[string]interface{}{
				"userId": userID,
				"error":  err,
			})
		}
	}

	// The epoch is read before loading so a concurrent invalidation
	// suppresses the write-back below.
	var (
		epoch     int64
		epochRead bool
	)
	if s.cache != nil {
		var err error
		if epoch, err = s.cache.UserEpoch(ctx, userID); err == nil {
			epochRead = true
		}
	}

	var user *models.UserProfile
	if err := s.withRetry(ctx, "load_user", func(ctx context.Context) error {
		var lerr error
		user, lerr = s.store.LoadUser(ctx, userID)
		return lerr
	}); err != nil {
		return nil, err
	}

	var interactions []models.InteractionRecord
	if err := s.withRetry(ctx, "load_interactions", func(ctx context.Context) error {
		var lerr error
		interactions, lerr = s.store.LoadInteractions(ctx, userID, nil, s.cfg.InteractionHistory)
		return lerr
	}); err != nil {
		return nil, err
	}

	f := &models.UserFeatures{
		UserID:       user.ID,
		Interests:    user.Interests,
		Location:     user.Location,
		Interactions: interactions,
		ComputedAt:   s.now().UTC(),
		Epoch:        epoch,
	}
	if epochRead {
		if err := s.cache.PutUserFeatures(ctx, f, s.cfg.FeaturesTTL); err != nil {
			s.logger.Warn("failed to cache user features", map[string]interface{}{
				"userId": userID,
				"error":  err,
			})
		}
	}
	return f, nil
}

// ==========================
// Interactions
// ==========================

// RecordInteraction upserts the (user, business, kind) record and then
// invalidates the user's cached lists. The write is durable once this returns
// nil even if invalidation failed; stale entries then live at most one TTL.
func (s *Service) RecordInteraction(ctx context.Context, userID, candidateID int64, kind string, weight float64) (*models.InteractionRecord, error) {
	ctx, span := s.tracer.Start(ctx, "RecordInteraction", trace.WithAttributes(
		attribute.Int64("user.id", userID),
		attribute.Int64("business.id", candidateID),
		attribute.String("interaction.kind", kind),
	))
	defer span.End()

	k, ok := models.ParseInteractionKind(kind)
	if !ok {
		err := apperrors.NewInvalidInteractionKindError(kind)
		span.SetStatus(codes.Error, string(err.Code))
		return nil, err
	}
	if userID <= 0 || candidateID <= 0 {
		return nil, apperrors.NewInvalidInputError("user_id and business_id must be positive")
	}
	if weight <= 0 || math.IsNaN(weight) || math.IsInf(weight, 0) {
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("weight must be a finite number > 0, got %v", weight))
	}

	record := models.InteractionRecord{
		UserID:      userID,
		CandidateID: candidateID,
		Kind:        k,
		Weight:      weight,
		Timestamp:   s.now().UTC(),
	}
	if err := s.withRetry(ctx, "upsert_interaction", func(ctx context.Context) error {
		return s.store.UpsertInteraction(ctx, record)
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperrors.Normalize(err).Code))
		return nil, err
	}
	metrics.InteractionsRecorded.WithLabelValues(string(k)).Inc()

	s.invalidate(ctx, userID, "interaction recorded")
	return &record, nil
}

// ClearUserCache drops every cached entry for userID and reports how many
// keys were removed. Clearing an empty cache is not an error.
func (s *Service) ClearUserCache(ctx context.Context, userID int64) (int, error) {
	if userID <= 0 {
		return 0, apperrors.NewInvalidInputError(fmt.Sprintf("user id must be positive, got %d", userID))
	}
	if s.cache == nil {
		return 0, nil
	}
	n, err := s.cache.InvalidateUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.logger.Info("user cache cleared", map[string]interface{}{
		"userId":  userID,
		"deleted": n,
	})
	return n, nil
}

// invalidate drops the user's cache after a write. Failures are logged only.
func (s *Service) invalidate(ctx context.Context, userID int64, reason string) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.InvalidateUser(context.WithoutCancel(ctx), userID); err != nil {
		s.logger.Warn("cache invalidation failed, entries expire by ttl", map[string]interface{}{
			"userId": userID,
			"reason": reason,
			"error":  err,
		})
	}
}
