package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
type Config struct {
	PostgresURL          string `mapstructure:"POSTGRES_URL"`
	RedisAddr            string `mapstructure:"REDIS_ADDR"`
	ServerPort           string `mapstructure:"SERVER_PORT"`
	UserAgent            string `mapstructure:"USER_AGENT"`
	CrawlConcurrency     int    `mapstructure:"CRAWL_CONCURRENCY"`
	MaxPages             int    `mapstructure:"MAX_PAGES"`
	FetchTimeout         int    `mapstructure:"FETCH_TIMEOUT"`       // seconds
	StalenessThreshold   int    `mapstructure:"STALENESS_THRESHOLD"` // minutes
	EphemeralRetention   int    `mapstructure:"EPHEMERAL_RETENTION"` // days
	CleanupToken         string `mapstructure:"CLEANUP_TOKEN"`
	CleanupSchedule      string `mapstructure:"CLEANUP_SCHEDULE"` // cron spec, empty disables
	CheckConcurrency     int    `mapstructure:"CHECK_CONCURRENCY"`
}

// Load reads configuration from file or environment variables.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	// Attempt to read the .env file, but don't fail if it's not present
	// This allows configuration purely through environment variables in production
	_ = viper.ReadInConfig()

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("USER_AGENT", "auditor/1.0 (+https://example.com/bot)")
	viper.SetDefault("CRAWL_CONCURRENCY", 5)
	viper.SetDefault("MAX_PAGES", 100)
	viper.SetDefault("FETCH_TIMEOUT", 20)       // in seconds
	viper.SetDefault("STALENESS_THRESHOLD", 5)  // in minutes
	viper.SetDefault("EPHEMERAL_RETENTION", 14) // in days
	viper.SetDefault("CLEANUP_SCHEDULE", "@hourly")
	viper.SetDefault("CHECK_CONCURRENCY", 4)

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FetchTimeoutDuration returns the per-fetch timeout as a duration.
func (c *Config) FetchTimeoutDuration() time.Duration {
	return time.Duration(c.FetchTimeout) * time.Second
}

// StalenessThresholdDuration returns the liveness threshold as a duration.
// This is a heuristic, not a correctness guarantee: a slow but alive worker
// whose last transition is older than this will be presumed dead.
func (c *Config) StalenessThresholdDuration() time.Duration {
	return time.Duration(c.StalenessThreshold) * time.Minute
}

// EphemeralRetentionDuration returns the max age of organization-less audits.
func (c *Config) EphemeralRetentionDuration() time.Duration {
	return time.Duration(c.EphemeralRetention) * 24 * time.Hour
}
