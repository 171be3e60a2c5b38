package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const (
	RateLimitBackendMemory = "memory"
	RateLimitBackendValkey = "valkey"
	RateLimitBackendOff    = "off"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"NP_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"NP_DB_MAX_CONNS" default:"8"`

	DedupWindowDays          int     `envconfig:"DEDUP_WINDOW_DAYS" default:"90"`
	DedupSimilarityThreshold float64 `envconfig:"DEDUP_SIMILARITY_THRESHOLD" default:"0.85"`
	PrimaryListLimit         int     `envconfig:"PRIMARY_LIST_LIMIT" default:"50"`

	RateLimitBackend   string `envconfig:"RATE_LIMIT_BACKEND" default:"memory"`
	RateLimitPerMinute int    `envconfig:"RATE_LIMIT_PER_MINUTE" default:"20"`
	ValkeyAddress      string `envconfig:"VALKEY_ADDRESS" default:"localhost:6379"`
	ValkeyPassword     string `envconfig:"VALKEY_PASSWORD" default:""`
	ValkeyTLS          bool   `envconfig:"VALKEY_TLS" default:"false"`

	CORSAllowedOrigins string `envconfig:"CORS_ALLOWED_ORIGINS" default:""`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("NP_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("NP_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("NP_DB_MIN_CONNS (%d) cannot exceed NP_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.DedupWindowDays < 1 {
		return fmt.Errorf("DEDUP_WINDOW_DAYS must be >= 1")
	}
	if c.DedupSimilarityThreshold <= 0 || c.DedupSimilarityThreshold > 1 {
		return fmt.Errorf("DEDUP_SIMILARITY_THRESHOLD must be in (0, 1]")
	}
	if c.PrimaryListLimit < 1 {
		return fmt.Errorf("PRIMARY_LIST_LIMIT must be >= 1")
	}

	switch c.RateLimitBackendName() {
	case RateLimitBackendMemory, RateLimitBackendOff:
	case RateLimitBackendValkey:
		if strings.TrimSpace(c.ValkeyAddress) == "" {
			return fmt.Errorf("VALKEY_ADDRESS is required when RATE_LIMIT_BACKEND=valkey")
		}
	default:
		return fmt.Errorf("RATE_LIMIT_BACKEND must be one of memory, valkey, off")
	}
	if c.RateLimitBackendName() != RateLimitBackendOff && c.RateLimitPerMinute < 1 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be >= 1")
	}
	return nil
}

func (c *Config) RateLimitBackendName() string {
	if c == nil {
		return RateLimitBackendOff
	}
	return strings.ToLower(strings.TrimSpace(c.RateLimitBackend))
}

func (c *Config) CORSAllowedOriginsList() []string {
	if c == nil {
		return nil
	}

	parts := strings.Split(c.CORSAllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		origin := strings.TrimSpace(part)
		if origin == "" {
			continue
		}
		if _, exists := seen[origin]; exists {
			continue
		}
		seen[origin] = struct{}{}
		origins = append(origins, origin)
	}
	return origins
}
