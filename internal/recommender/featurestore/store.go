// internal/recommender/featurestore/store.go
package featurestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/lib/pq"

	apperrors "recommendation-engine/internal/common/errors"
	"recommendation-engine/internal/common/logger"
	"recommendation-engine/internal/common/validation"
	"recommendation-engine/internal/models"
)

const (
	// DefaultCandidateLimit bounds LoadCandidates when the filter sets no limit.
	DefaultCandidateLimit = 2000
	// MaxCandidateLimit is the hard ceiling on a single candidate listing.
	MaxCandidateLimit = 5000

	defaultQueryTimeout = 3 * time.Second

	pqForeignKeyViolation = "23503"
)

// Store reads and writes users, businesses and interactions in PostgreSQL.
// Each call is a single short statement or a short transaction.
type Store struct {
	db           *sql.DB
	queryTimeout time.Duration
	logger       logger.Logger
}

func NewStore(db *sql.DB, queryTimeout time.Duration, log logger.Logger) *Store {
	if queryTimeout <= 0 {
		queryTimeout = defaultQueryTimeout
	}
	return &Store{
		db:           db,
		queryTimeout: queryTimeout,
		logger:       log.WithFields(map[string]interface{}{"component": "featurestore"}),
	}
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.queryTimeout)
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return apperrors.NewStoreUnavailableError("ping", err)
	}
	return nil
}

// ==========================
// Reads
// ==========================

// LoadUser returns the profile for id. Malformed interests or location
// columns are dropped with a warning rather than failing the read.
func (s *Store) LoadUser(ctx context.Context, id int64) (*models.UserProfile, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		u                   models.UserProfile
		interests, location []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(username, ''), COALESCE(email, ''), interests, location
		FROM users
		WHERE id = $1`, id).Scan(&u.ID, &u.Username, &u.Email, &interests, &location)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("user", id)
	}
	if err != nil {
		return nil, apperrors.NewStoreUnavailableError("load_user", err)
	}

	var dropped int
	if u.Interests, dropped, err = decodeTagSet(interests); err != nil {
		s.logger.Warn("dropping malformed user interests", map[string]interface{}{
			"userId": id,
			"error":  err,
		})
		u.Interests = models.NewTagSet()
	} else if dropped > 0 {
		s.logger.Warn("dropping malformed user interests", map[string]interface{}{
			"userId":  id,
			"dropped": dropped,
		})
	}
	if u.Location, err = decodeLocation(location); err != nil {
		s.logger.Warn("dropping malformed user location", map[string]interface{}{
			"userId": id,
			"error":  err,
		})
		u.Location = nil
	}
	return &u, nil
}

// LoadCandidates lists businesses ordered by popularity then id. A business
// matches the filter when one of its categories contains a category pattern
// or one of its tags contains a tag pattern, case-insensitively. Rows with
// malformed set or location columns are skipped.
func (s *Store) LoadCandidates(ctx context.Context, filter models.CandidateFilter) ([]models.Candidate, error) {
	query, args := buildCandidateQuery(filter)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStoreUnavailableError("load_candidates", err)
	}
	defer rows.Close()

	candidates := make([]models.Candidate, 0, 64)
	skipped := 0
	for rows.Next() {
		var (
			c                          models.Candidate
			categories, tags, location []byte
		)
		if err := rows.Scan(
			&c.ID, &c.Name, &c.Description,
			&categories, &tags, &location,
			&c.Popularity, &c.Rating, &c.RatingCount,
		); err != nil {
			return nil, apperrors.NewStoreUnavailableError("load_candidates", err)
		}

		dropped, err := decodeCandidateColumns(&c, categories, tags, location)
		if err != nil {
			skipped++
			s.logger.Warn("skipping malformed candidate row", map[string]interface{}{
				"businessId": c.ID,
				"error":      err,
			})
			continue
		}
		if dropped > 0 {
			s.logger.Warn("dropping malformed candidate tags", map[string]interface{}{
				"businessId": c.ID,
				"dropped":    dropped,
			})
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreUnavailableError("load_candidates", err)
	}

	s.logger.Debug("candidates loaded", map[string]interface{}{
		"count":   len(candidates),
		"skipped": skipped,
	})
	return candidates, nil
}

func buildCandidateQuery(filter models.CandidateFilter) (string, []interface{}) {
	var (
		b       strings.Builder
		args    []interface{}
		clauses []string
	)
	b.WriteString(`
		SELECT id, name, COALESCE(description, ''), categories, tags, location,
		       COALESCE(popularity_score, 0), COALESCE(rating, 0), COALESCE(rating_count, 0)
		FROM businesses`)

	if patterns := likePatterns(filter.Categories); len(patterns) > 0 {
		args = append(args, pq.Array(patterns))
		clauses = append(clauses, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM jsonb_array_elements_text(COALESCE(categories, '[]'::jsonb)) AS c(v) WHERE c.v ILIKE ANY($%d))", len(args)))
	}
	if patterns := likePatterns(filter.Tags); len(patterns) > 0 {
		args = append(args, pq.Array(patterns))
		clauses = append(clauses, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM jsonb_array_elements_text(COALESCE(tags, '[]'::jsonb)) AS t(v) WHERE t.v ILIKE ANY($%d))", len(args)))
	}
	if len(clauses) > 0 {
		b.WriteString("\n\t\tWHERE ")
		b.WriteString(strings.Join(clauses, " OR "))
	}

	args = append(args, clampCandidateLimit(filter.Limit))
	fmt.Fprintf(&b, "\n\t\tORDER BY popularity_score DESC, id ASC\n\t\tLIMIT $%d", len(args))
	return b.String(), args
}

func clampCandidateLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultCandidateLimit
	case limit > MaxCandidateLimit:
		return MaxCandidateLimit
	default:
		return limit
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePatterns(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.ToLower(strings.TrimSpace(item))
		if item == "" {
			continue
		}
		out = append(out, "%"+likeEscaper.Replace(item)+"%")
	}
	return out
}

// LoadInteractions returns the user's interactions, newest first. since
// restricts the window when non-nil; limit <= 0 means no limit. Rows with
// an unknown kind are skipped.
func (s *Store) LoadInteractions(ctx context.Context, userID int64, since *time.Time, limit int) ([]models.InteractionRecord, error) {
	query := `
		SELECT user_id, business_id, interaction_type, weight, timestamp
		FROM user_interactions
		WHERE user_id = $1`
	args := []interface{}{userID}
	if since != nil {
		args = append(args, since.UTC())
		query += fmt.Sprintf(" AND timestamp >= $%d", len(args))
	}
	query += " ORDER BY timestamp DESC, id DESC"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStoreUnavailableError("load_interactions", err)
	}
	defer rows.Close()

	records := make([]models.InteractionRecord, 0, 16)
	for rows.Next() {
		var (
			r    models.InteractionRecord
			kind string
		)
		if err := rows.Scan(&r.UserID, &r.CandidateID, &kind, &r.Weight, &r.Timestamp); err != nil {
			return nil, apperrors.NewStoreUnavailableError("load_interactions", err)
		}
		k, ok := models.ParseInteractionKind(kind)
		if !ok {
			s.logger.Warn("skipping interaction with unknown kind", map[string]interface{}{
				"userId":     r.UserID,
				"businessId": r.CandidateID,
				"kind":       kind,
			})
			continue
		}
		r.Kind = k
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreUnavailableError("load_interactions", err)
	}
	return records, nil
}

// ==========================
// Writes
// ==========================

// UpsertInteraction inserts or replaces the record for (user, business, kind).
// An unknown user or business is NotFound.
func (s *Store) UpsertInteraction(ctx context.Context, r models.InteractionRecord) error {
	if _, ok := models.ParseInteractionKind(string(r.Kind)); !ok {
		return apperrors.NewInvalidInteractionKindError(string(r.Kind))
	}
	if r.Weight <= 0 || math.IsNaN(r.Weight) || math.IsInf(r.Weight, 0) {
		return apperrors.NewInvalidInputError(fmt.Sprintf("weight must be a finite number > 0, got %v", r.Weight))
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_interactions (user_id, business_id, interaction_type, weight, timestamp)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, business_id, interaction_type)
		DO UPDATE SET weight = EXCLUDED.weight, timestamp = EXCLUDED.timestamp`,
		r.UserID, r.CandidateID, string(r.Kind), r.Weight, r.Timestamp.UTC(),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation {
			if strings.Contains(pqErr.Constraint, "business") {
				return apperrors.NewNotFoundError("business", r.CandidateID)
			}
			return apperrors.NewNotFoundError("user", r.UserID)
		}
		return apperrors.NewStoreUnavailableError("upsert_interaction", err)
	}
	return nil
}

// UpsertUser inserts or replaces a user by id.
func (s *Store) UpsertUser(ctx context.Context, u *models.UserProfile) error {
	interests, location, err := encodeSetAndLocation(u.Interests, u.Location)
	if err != nil {
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, interests, location)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id)
		DO UPDATE SET username = EXCLUDED.username, email = EXCLUDED.email,
		              interests = EXCLUDED.interests, location = EXCLUDED.location`,
		u.ID, u.Username, u.Email, interests, location,
	)
	if err != nil {
		return apperrors.NewStoreUnavailableError("upsert_user", err)
	}
	return nil
}

// UpsertCandidate inserts or replaces a business by id.
func (s *Store) UpsertCandidate(ctx context.Context, c *models.Candidate) error {
	categories, location, err := encodeSetAndLocation(c.Categories, c.Location)
	if err != nil {
		return err
	}
	tags, err := json.Marshal(nonNilSet(c.Tags))
	if err != nil {
		return apperrors.NewInvalidInputError(fmt.Sprintf("tags: %v", err))
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO businesses (id, name, description, categories, tags, location, popularity_score, rating, rating_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id)
		DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description,
		              categories = EXCLUDED.categories, tags = EXCLUDED.tags,
		              location = EXCLUDED.location, popularity_score = EXCLUDED.popularity_score,
		              rating = EXCLUDED.rating, rating_count = EXCLUDED.rating_count`,
		c.ID, c.Name, c.Description, categories, tags, location, c.Popularity, c.Rating, c.RatingCount,
	)
	if err != nil {
		return apperrors.NewStoreUnavailableError("upsert_candidate", err)
	}
	return nil
}

// DeleteUser removes the user and all of its interactions.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	return s.deleteWithInteractions(ctx, "user", "users", "user_id", id)
}

// DeleteCandidate removes the business and every interaction that references it.
func (s *Store) DeleteCandidate(ctx context.Context, id int64) error {
	return s.deleteWithInteractions(ctx, "business", "businesses", "business_id", id)
}

func (s *Store) deleteWithInteractions(ctx context.Context, entity, table, fkColumn string, id int64) error {
	op := "delete_" + entity

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewStoreUnavailableError(op, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM user_interactions WHERE %s = $1", fkColumn), id); err != nil {
		return apperrors.NewStoreUnavailableError(op, err)
	}

	res, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", table), id)
	if err != nil {
		return apperrors.NewStoreUnavailableError(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.NewStoreUnavailableError(op, err)
	}
	if n == 0 {
		return apperrors.NewNotFoundError(entity, id)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewStoreUnavailableError(op, err)
	}
	return nil
}

// ==========================
// Column codecs
// ==========================

// decodeTagSet keeps the valid members of a JSON array column and reports how
// many were dropped. A column that is not an array is an error.
func decodeTagSet(raw []byte) (models.TagSet, int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return models.NewTagSet(), 0, nil
	}
	if err := validation.TagArray.Validate(raw); err != nil {
		return nil, 0, err
	}
	var items []interface{}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, 0, err
	}
	set := models.NewTagSet()
	dropped := 0
	for _, item := range items {
		if !validation.ValidTag(item) {
			dropped++
			continue
		}
		set.Add(item.(string))
	}
	return set, dropped, nil
}

func decodeLocation(raw []byte) (*models.GeoPoint, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if err := validation.GeoPoint.Validate(raw); err != nil {
		return nil, err
	}
	var p models.GeoPoint
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// decodeCandidateColumns returns the number of set members dropped.
func decodeCandidateColumns(c *models.Candidate, categories, tags, location []byte) (int, error) {
	var (
		err              error
		badCats, badTags int
	)
	if c.Categories, badCats, err = decodeTagSet(categories); err != nil {
		return 0, fmt.Errorf("categories: %w", err)
	}
	if c.Tags, badTags, err = decodeTagSet(tags); err != nil {
		return 0, fmt.Errorf("tags: %w", err)
	}
	if c.Location, err = decodeLocation(location); err != nil {
		return 0, fmt.Errorf("location: %w", err)
	}
	return badCats + badTags, nil
}

func nonNilSet(s models.TagSet) models.TagSet {
	if s == nil {
		return models.NewTagSet()
	}
	return s
}

// encodeSetAndLocation returns JSON for a set column and a nullable location column.
func encodeSetAndLocation(set models.TagSet, loc *models.GeoPoint) ([]byte, interface{}, error) {
	setJSON, err := json.Marshal(nonNilSet(set))
	if err != nil {
		return nil, nil, apperrors.NewInvalidInputError(err.Error())
	}
	if loc == nil {
		return setJSON, nil, nil
	}
	if err := validation.GeoPoint.ValidateValue(loc); err != nil {
		return nil, nil, apperrors.NewInvalidInputError(err.Error())
	}
	locJSON, err := json.Marshal(loc)
	if err != nil {
		return nil, nil, apperrors.NewInvalidInputError(err.Error())
	}
	return setJSON, locJSON, nil
}
