// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	DB         DBConfig         `mapstructure:"db"`
	Storage    StorageConfig    `mapstructure:"storage"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Validation ValidationConfig `mapstructure:"validation"`
	Search     SearchConfig     `mapstructure:"search"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines bearer-token verification. The hosted auth provider
// issues the tokens; this service only checks them.
type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
	Audience  string `mapstructure:"audience"`
}

// DBConfig controls access to the relational database. An empty DSN selects
// the in-memory repositories for local development.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxConns     int    `mapstructure:"max_conns"`
	MinConns     int    `mapstructure:"min_conns"`
	EnsureSchema bool   `mapstructure:"ensure_schema"`
}

// StorageConfig names the bucket images were uploaded to and tunes signed
// URL issuance. An empty bucket selects the stub signer.
type StorageConfig struct {
	Bucket              string `mapstructure:"bucket"`
	Prefix              string `mapstructure:"prefix"`
	SignedURLTTLSeconds int    `mapstructure:"signed_url_ttl_seconds"`
	URLCacheSize        int    `mapstructure:"url_cache_size"`
	VerifyChecksums     bool   `mapstructure:"verify_checksums"`
}

// PubSubConfig holds metadata for job event notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MonitorConfig tunes the progress hub fan-out.
type MonitorConfig struct {
	BufferSize       int `mapstructure:"buffer_size"`
	SubscriberBuffer int `mapstructure:"subscriber_buffer"`
	MaxBatchEvents   int `mapstructure:"max_batch_events"`
	MaxBatchWaitMs   int `mapstructure:"max_batch_wait_ms"`
	SinkTimeoutMs    int `mapstructure:"sink_timeout_ms"`
}

// ValidationConfig tunes quality metric computation and the background
// worker pool that runs it.
type ValidationConfig struct {
	Workers          int     `mapstructure:"workers"`
	QueueDepth       int     `mapstructure:"queue_depth"`
	MinResponseLen   int     `mapstructure:"min_response_len"`
	TruncationLen    int     `mapstructure:"truncation_len"`
	ApproveThreshold float64 `mapstructure:"approve_threshold"`
	ReviewThreshold  float64 `mapstructure:"review_threshold"`
	FlagPenalty      float64 `mapstructure:"flag_penalty"`
}

// SearchConfig tunes the blended similarity scoring.
type SearchConfig struct {
	DefaultLimit         int     `mapstructure:"default_limit"`
	MaxLimit             int     `mapstructure:"max_limit"`
	RecencyHalfLifeHours int     `mapstructure:"recency_half_life_hours"`
	WeightSimilarity     float64 `mapstructure:"weight_similarity"`
	WeightRecency        float64 `mapstructure:"weight_recency"`
	WeightQuality        float64 `mapstructure:"weight_quality"`
}

// RateLimitConfig throttles API callers per authenticated subject.
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ARGUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.ensure_schema", false)
	v.SetDefault("storage.prefix", "images")
	v.SetDefault("storage.signed_url_ttl_seconds", 900)
	v.SetDefault("storage.url_cache_size", 4096)
	v.SetDefault("storage.verify_checksums", false)
	v.SetDefault("monitor.buffer_size", 1024)
	v.SetDefault("monitor.subscriber_buffer", 64)
	v.SetDefault("monitor.max_batch_events", 128)
	v.SetDefault("monitor.max_batch_wait_ms", 200)
	v.SetDefault("monitor.sink_timeout_ms", 2000)
	v.SetDefault("validation.workers", 4)
	v.SetDefault("validation.queue_depth", 256)
	v.SetDefault("validation.min_response_len", 20)
	v.SetDefault("validation.truncation_len", 4000)
	v.SetDefault("validation.approve_threshold", 0.8)
	v.SetDefault("validation.review_threshold", 0.4)
	v.SetDefault("validation.flag_penalty", 0.25)
	v.SetDefault("search.default_limit", 20)
	v.SetDefault("search.max_limit", 100)
	v.SetDefault("search.recency_half_life_hours", 168)
	v.SetDefault("search.weight_similarity", 0.7)
	v.SetDefault("search.weight_recency", 0.15)
	v.SetDefault("search.weight_quality", 0.15)
	v.SetDefault("ratelimit.enabled", false)
	v.SetDefault("ratelimit.rps", 25)
	v.SetDefault("ratelimit.burst", 50)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("server.request_timeout_seconds must be > 0")
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must be set when auth is enabled")
	}
	if c.Storage.SignedURLTTLSeconds <= 0 {
		return fmt.Errorf("storage.signed_url_ttl_seconds must be > 0")
	}
	if c.Monitor.BufferSize <= 0 || c.Monitor.SubscriberBuffer <= 0 {
		return fmt.Errorf("monitor.buffer_size and monitor.subscriber_buffer must be > 0")
	}
	if c.Validation.Workers <= 0 {
		return fmt.Errorf("validation.workers must be > 0")
	}
	if c.Validation.QueueDepth <= 0 {
		return fmt.Errorf("validation.queue_depth must be > 0")
	}
	if c.Validation.ReviewThreshold < 0 || c.Validation.ApproveThreshold > 1 ||
		c.Validation.ReviewThreshold >= c.Validation.ApproveThreshold {
		return fmt.Errorf("validation thresholds must satisfy 0 <= review_threshold < approve_threshold <= 1")
	}
	if c.Search.WeightSimilarity < 0 || c.Search.WeightRecency < 0 || c.Search.WeightQuality < 0 {
		return fmt.Errorf("search weights must be >= 0")
	}
	if c.Search.WeightSimilarity+c.Search.WeightRecency+c.Search.WeightQuality <= 0 {
		return fmt.Errorf("search weights must not all be zero")
	}
	if c.Search.DefaultLimit <= 0 || c.Search.MaxLimit < c.Search.DefaultLimit {
		return fmt.Errorf("search.max_limit must be >= search.default_limit > 0")
	}
	if c.RateLimit.Enabled && c.RateLimit.RPS <= 0 {
		return fmt.Errorf("ratelimit.rps must be > 0 when rate limiting is enabled")
	}
	return nil
}

// RequestTimeout converts the configured request budget into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// SignedURLTTL converts the signed URL lifetime into a duration.
func (c Config) SignedURLTTL() time.Duration {
	return time.Duration(c.Storage.SignedURLTTLSeconds) * time.Second
}

// RecencyHalfLife converts the search half-life into a duration.
func (c Config) RecencyHalfLife() time.Duration {
	return time.Duration(c.Search.RecencyHalfLifeHours) * time.Hour
}
