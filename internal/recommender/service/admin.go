package service

import (
	"context"
	"fmt"
	"strings"

	apperrors "recommendation-engine/internal/common/errors"
	"recommendation-engine/internal/models"
)

const (
	DefaultInteractionPage = 20
	MaxInteractionPage     = 100
)

// SyncUser upserts a user pushed from the upstream system of record and
// drops anything cached for it.
func (s *Service) SyncUser(ctx context.Context, u *models.UserProfile) error {
	if u == nil || u.ID <= 0 {
		return apperrors.NewInvalidInputError("user id must be positive")
	}
	if u.Interests == nil {
		u.Interests = models.NewTagSet()
	}
	if err := s.withRetry(ctx, "upsert_user", func(ctx context.Context) error {
		return s.store.UpsertUser(ctx, u)
	}); err != nil {
		return err
	}
	s.invalidate(ctx, u.ID, "user synced")
	s.logger.Info("user synced", map[string]interface{}{"userId": u.ID})
	return nil
}

// SyncCandidate upserts a business. Cached lists that include it refresh
// when their TTL runs out.
func (s *Service) SyncCandidate(ctx context.Context, c *models.Candidate) error {
	if c == nil || c.ID <= 0 {
		return apperrors.NewInvalidInputError("business id must be positive")
	}
	if strings.TrimSpace(c.Name) == "" {
		return apperrors.NewInvalidInputError("business name is required")
	}
	if err := s.withRetry(ctx, "upsert_candidate", func(ctx context.Context) error {
		return s.store.UpsertCandidate(ctx, c)
	}); err != nil {
		return err
	}
	s.logger.Info("business synced", map[string]interface{}{"businessId": c.ID})
	return nil
}

// DeleteUser removes a user with its interactions and cache entries.
func (s *Service) DeleteUser(ctx context.Context, id int64) error {
	if id <= 0 {
		return apperrors.NewInvalidInputError("user id must be positive")
	}
	if err := s.withRetry(ctx, "delete_user", func(ctx context.Context) error {
		return s.store.DeleteUser(ctx, id)
	}); err != nil {
		return err
	}
	s.invalidate(ctx, id, "user deleted")
	s.logger.Info("user deleted", map[string]interface{}{"userId": id})
	return nil
}

// DeleteCandidate removes a business and every interaction with it.
func (s *Service) DeleteCandidate(ctx context.Context, id int64) error {
	if id <= 0 {
		return apperrors.NewInvalidInputError("business id must be positive")
	}
	if err := s.withRetry(ctx, "delete_candidate", func(ctx context.Context) error {
		return s.store.DeleteCandidate(ctx, id)
	}); err != nil {
		return err
	}
	s.logger.Info("business deleted", map[string]interface{}{"businessId": id})
	return nil
}

// ListInteractions returns the user's most recent interactions. A zero limit
// selects the default page size.
func (s *Service) ListInteractions(ctx context.Context, userID int64, limit int) ([]models.InteractionRecord, error) {
	if userID <= 0 {
		return nil, apperrors.NewInvalidInputError("user id must be positive")
	}
	if limit == 0 {
		limit = DefaultInteractionPage
	}
	if limit < 1 || limit > MaxInteractionPage {
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("limit must be between 1 and %d", MaxInteractionPage))
	}

	var records []models.InteractionRecord
	err := s.withRetry(ctx, "load_interactions", func(ctx context.Context) error {
		var lerr error
		records, lerr = s.store.LoadInteractions(ctx, userID, nil, limit)
		return lerr
	})
	return records, err
}

// ==========================
// Health
// ==========================

const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// HealthReport summarizes backend reachability.
type HealthReport struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

// Health pings the store and the cache. Any failing backend marks the
// service degraded; recommendations still work without the cache.
func (s *Service) Health(ctx context.Context) HealthReport {
	report := HealthReport{Status: StatusHealthy, Components: map[string]string{}}

	check := func(name string, ping func(context.Context) error) {
		if err := ping(ctx); err != nil {
			report.Status = StatusDegraded
			report.Components[name] = err.Error()
			return
		}
		report.Components[name] = "ok"
	}

	check("postgres", s.store.Ping)
	if s.cache != nil {
		check("redis", s.cache.Ping)
	} else {
		report.Components["redis"] = "disabled"
	}
	return report
}
