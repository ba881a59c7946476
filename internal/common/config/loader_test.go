package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalConfig = `
database:
  postgres:
    host: localhost
    database: recommendations
    user: recommender
  redis:
    address: localhost:6379
`

// ==========================
// Loader Tests
// ==========================

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "recommendation-engine", cfg.App.Name)
	assert.Equal(t, ":8000", cfg.Server.Address)
	assert.Equal(t, 5432, cfg.Database.Postgres.Port)
	assert.Equal(t, "disable", cfg.Database.Postgres.SSLMode)
	assert.Equal(t, 3000, cfg.Database.Postgres.QueryTimeout)

	assert.Equal(t, 300, cfg.Cache.RankedTTL)
	assert.Equal(t, 3600, cfg.Cache.FeaturesTTL)
	assert.Equal(t, uint32(5), cfg.Cache.BreakerFailures)

	assert.Equal(t, 10, cfg.Recommendation.DefaultResults)
	assert.Equal(t, 50, cfg.Recommendation.MaxResults)
	assert.Equal(t, 2000, cfg.Recommendation.CandidateLimit)

	assert.Equal(t, DefaultScoring().CategoryWeight, cfg.Scoring.CategoryWeight)
	assert.Equal(t, DefaultScoring().InteractionMultiplier, cfg.Scoring.InteractionMultiplier)
	assert.True(t, cfg.Scoring.DecayEnabled)
	assert.Equal(t, "recommendation-engine", cfg.Observability.ServiceName)
}

func TestLoadFromFile_ScoringOverrides(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalConfig+`
scoring:
  category_weight: 0
  location_bonus: 0.5
  decay_enabled: false
  interaction_multipliers:
    like: 4
`))
	require.NoError(t, err)

	assert.Equal(t, 0.0, cfg.Scoring.CategoryWeight, "explicit zero must survive defaulting")
	assert.Equal(t, 0.5, cfg.Scoring.LocationBonus)
	assert.Equal(t, DefaultScoring().TagWeight, cfg.Scoring.TagWeight)
	assert.False(t, cfg.Scoring.DecayEnabled)
	assert.Equal(t, 4.0, cfg.Scoring.InteractionMultiplier["like"])
	assert.Equal(t, 5.0, cfg.Scoring.InteractionMultiplier["purchase"])
}

func TestLoadFromFile_ClampsCandidateLimit(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalConfig+`
recommendation:
  candidate_limit: 100000
`))
	require.NoError(t, err)
	assert.Equal(t, candidateHardCap, cfg.Recommendation.CandidateLimit)
}

func TestLoadFromFile_ExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_REDIS_ADDRESS", "cache.internal:6380")

	cfg, err := LoadFromFile(writeConfig(t, `
database:
  postgres:
    host: localhost
    database: recommendations
    user: recommender
  redis:
    address: ${TEST_REDIS_ADDRESS}
`))
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6380", cfg.Database.Redis.Address)
}

func TestLoadFromFile_Validation(t *testing.T) {
	t.Setenv("DB_USER", "")

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name: "missing postgres host",
			body: `
database:
  postgres:
    database: recommendations
    user: recommender
  redis:
    address: localhost:6379
`,
			wantErr: "database.postgres.host is required",
		},
		{
			name: "missing postgres user",
			body: `
database:
  postgres:
    host: localhost
    database: recommendations
  redis:
    address: localhost:6379
`,
			wantErr: "database.postgres.user is required",
		},
		{
			name: "missing redis address",
			body: `
database:
  postgres:
    host: localhost
    database: recommendations
    user: recommender
`,
			wantErr: "database.redis.address is required",
		},
		{
			name: "default above max",
			body: minimalConfig + `
recommendation:
  default_results: 60
  max_results: 50
`,
			wantErr: "exceeds max_results",
		},
		{
			name: "negative multiplier",
			body: minimalConfig + `
scoring:
  interaction_multipliers:
    view: -1
`,
			wantErr: "scoring.interaction_multipliers.view",
		},
		{
			name: "negative half life",
			body: minimalConfig + `
scoring:
  half_life_days: -3
`,
			wantErr: "must be non-negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestDurations(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, GetDuration(1500))
	assert.Equal(t, 5*time.Minute, GetSeconds(300))
}
