package featurestore

import (
	"context"
	"fmt"
)

// schemaDDL creates the three tables the store reads and writes. Production
// databases are migrated out of band; EnsureSchema is for development.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS users (
	id          BIGINT PRIMARY KEY,
	username    TEXT,
	email       TEXT,
	interests   JSONB NOT NULL DEFAULT '[]'::jsonb,
	location    JSONB,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS businesses (
	id               BIGINT PRIMARY KEY,
	name             TEXT NOT NULL,
	description      TEXT,
	categories       JSONB NOT NULL DEFAULT '[]'::jsonb,
	tags             JSONB NOT NULL DEFAULT '[]'::jsonb,
	location         JSONB,
	popularity_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	rating           DOUBLE PRECISION NOT NULL DEFAULT 0,
	rating_count     INTEGER NOT NULL DEFAULT 0,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_businesses_popularity ON businesses (popularity_score DESC, id ASC);

CREATE TABLE IF NOT EXISTS user_interactions (
	id               BIGSERIAL PRIMARY KEY,
	user_id          BIGINT NOT NULL REFERENCES users (id),
	business_id      BIGINT NOT NULL REFERENCES businesses (id),
	interaction_type TEXT NOT NULL,
	weight           DOUBLE PRECISION NOT NULL DEFAULT 1.0,
	timestamp        TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (user_id, business_id, interaction_type)
);

CREATE INDEX IF NOT EXISTS idx_user_interactions_user_ts ON user_interactions (user_id, timestamp DESC);
`

// EnsureSchema creates missing tables and indexes.
func (s *Store) EnsureSchema(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	s.logger.Info("feature store schema ensured", nil)
	return nil
}
