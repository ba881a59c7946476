// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App            AppConfig            `mapstructure:"app"`
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Scoring        ScoringConfig        `mapstructure:"scoring"`
	Cache          CacheConfig          `mapstructure:"cache"`
	Recommendation RecommendationConfig `mapstructure:"recommendation"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Observability  ObservabilityConfig  `mapstructure:"observability"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address         string `mapstructure:"address"`
	ReadTimeout     int    `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int    `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
	QueryTimeout   int    `mapstructure:"query_timeout"` // milliseconds
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// ScoringConfig holds every coefficient the scorer uses. None of them are
// compiled in; defaults are applied by the loader.
type ScoringConfig struct {
	CategoryWeight        float64            `mapstructure:"category_weight"`
	TagWeight             float64            `mapstructure:"tag_weight"`
	PopularityWeight      float64            `mapstructure:"popularity_weight"`
	PopularityMax         float64            `mapstructure:"popularity_max"`
	LocationBonus         float64            `mapstructure:"location_bonus"`
	LocationRadiusKm      float64            `mapstructure:"location_radius_km"`
	InteractionWeight     float64            `mapstructure:"interaction_weight"`
	InteractionMultiplier map[string]float64 `mapstructure:"interaction_multipliers"`
	DecayEnabled          bool               `mapstructure:"decay_enabled"`
	HalfLifeDays          float64            `mapstructure:"half_life_days"`
}

type CacheConfig struct {
	RankedTTL           int    `mapstructure:"ranked_ttl"`   // seconds
	FeaturesTTL         int    `mapstructure:"features_ttl"` // seconds
	BreakerFailures     uint32 `mapstructure:"breaker_failures"`
	BreakerOpenTimeout  int    `mapstructure:"breaker_open_timeout"` // milliseconds
	InvalidateScanCount int64  `mapstructure:"invalidate_scan_count"`
}

type RecommendationConfig struct {
	DefaultResults     int `mapstructure:"default_results"`
	MaxResults         int `mapstructure:"max_results"`
	CandidateLimit     int `mapstructure:"candidate_limit"`
	InteractionHistory int `mapstructure:"interaction_history"`
	StoreRetryBackoff  int `mapstructure:"store_retry_backoff"` // milliseconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ObservabilityConfig struct {
	ServiceName    string `mapstructure:"service_name"`
	TracingEnabled bool   `mapstructure:"tracing_enabled"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
}

// GetDuration converts milliseconds from config to time.Duration
func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// GetSeconds converts seconds from config to time.Duration
func GetSeconds(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
