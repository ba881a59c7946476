// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// candidateHardCap bounds how many businesses a single scoring pass may see.
const candidateHardCap = 5000

func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // env overlay is optional

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func finish(v *viper.Viper) (*Config, error) {
	setScoringDefaults(v)
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{".env", "../.env", "../../.env"}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// Find project root by looking for go.mod
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

func overrideEmptyConfig(cfg *Config) {
	if cfg.Database.Postgres.User == "" {
		cfg.Database.Postgres.User = os.Getenv("DB_USER")
	}
	if cfg.Database.Postgres.Password == "" {
		cfg.Database.Postgres.Password = os.Getenv("DB_PASSWORD")
	}
	if cfg.Database.Redis.Password == "" {
		cfg.Database.Redis.Password = os.Getenv("REDIS_PASSWORD")
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "recommendation-engine"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8000"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10000
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 15000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30000
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 20
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Postgres.QueryTimeout == 0 {
		cfg.Database.Postgres.QueryTimeout = 3000
	}
	if cfg.Database.Redis.PoolSize == 0 {
		cfg.Database.Redis.PoolSize = 20
	}

	applyScoringDefaults(&cfg.Scoring)

	if cfg.Cache.RankedTTL == 0 {
		cfg.Cache.RankedTTL = 300
	}
	if cfg.Cache.FeaturesTTL == 0 {
		cfg.Cache.FeaturesTTL = 3600
	}
	if cfg.Cache.BreakerFailures == 0 {
		cfg.Cache.BreakerFailures = 5
	}
	if cfg.Cache.BreakerOpenTimeout == 0 {
		cfg.Cache.BreakerOpenTimeout = 10000
	}
	if cfg.Cache.InvalidateScanCount == 0 {
		cfg.Cache.InvalidateScanCount = 100
	}

	if cfg.Recommendation.DefaultResults == 0 {
		cfg.Recommendation.DefaultResults = 10
	}
	if cfg.Recommendation.MaxResults == 0 {
		cfg.Recommendation.MaxResults = 50
	}
	if cfg.Recommendation.CandidateLimit == 0 {
		cfg.Recommendation.CandidateLimit = 2000
	}
	if cfg.Recommendation.CandidateLimit > candidateHardCap {
		cfg.Recommendation.CandidateLimit = candidateHardCap
	}
	if cfg.Recommendation.InteractionHistory == 0 {
		cfg.Recommendation.InteractionHistory = 100
	}
	if cfg.Recommendation.StoreRetryBackoff == 0 {
		cfg.Recommendation.StoreRetryBackoff = 100
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = cfg.App.Name
	}
}

// setScoringDefaults registers scoring defaults with viper so that an explicit
// zero in the config file is respected.
func setScoringDefaults(v *viper.Viper) {
	d := DefaultScoring()
	v.SetDefault("scoring.category_weight", d.CategoryWeight)
	v.SetDefault("scoring.tag_weight", d.TagWeight)
	v.SetDefault("scoring.popularity_weight", d.PopularityWeight)
	v.SetDefault("scoring.popularity_max", d.PopularityMax)
	v.SetDefault("scoring.location_bonus", d.LocationBonus)
	v.SetDefault("scoring.location_radius_km", d.LocationRadiusKm)
	v.SetDefault("scoring.interaction_weight", d.InteractionWeight)
	v.SetDefault("scoring.decay_enabled", d.DecayEnabled)
	v.SetDefault("scoring.half_life_days", d.HalfLifeDays)
}

func applyScoringDefaults(s *ScoringConfig) {
	if s.InteractionMultiplier == nil {
		s.InteractionMultiplier = map[string]float64{}
	}
	for kind, m := range DefaultScoring().InteractionMultiplier {
		if _, ok := s.InteractionMultiplier[kind]; !ok {
			s.InteractionMultiplier[kind] = m
		}
	}
}

// DefaultScoring returns the reference coefficients.
func DefaultScoring() ScoringConfig {
	return ScoringConfig{
		CategoryWeight:    0.60,
		TagWeight:         0.40,
		PopularityWeight:  0.10,
		PopularityMax:     10.0,
		LocationBonus:     0.20,
		LocationRadiusKm:  25.0,
		InteractionWeight: 0.05,
		InteractionMultiplier: map[string]float64{
			"view":     1.0,
			"like":     2.0,
			"share":    2.5,
			"save":     3.0,
			"purchase": 5.0,
		},
		DecayEnabled: true,
		HalfLifeDays: 14.0,
	}
}

// validateConfig validates critical configuration fields
func validateConfig(cfg *Config) error {
	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}
	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}
	if cfg.Recommendation.DefaultResults > cfg.Recommendation.MaxResults {
		return fmt.Errorf("recommendation.default_results (%d) exceeds max_results (%d)",
			cfg.Recommendation.DefaultResults, cfg.Recommendation.MaxResults)
	}
	if cfg.Scoring.HalfLifeDays < 0 || cfg.Scoring.LocationRadiusKm < 0 || cfg.Scoring.PopularityMax < 0 {
		return fmt.Errorf("scoring: half_life_days, location_radius_km and popularity_max must be non-negative")
	}
	for kind, m := range cfg.Scoring.InteractionMultiplier {
		if m < 0 {
			return fmt.Errorf("scoring.interaction_multipliers.%s must be non-negative", kind)
		}
	}
	return nil
}
