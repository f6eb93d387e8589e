package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 5, cfg.CrawlConcurrency)
	assert.Equal(t, 100, cfg.MaxPages)
	assert.Equal(t, 20*time.Second, cfg.FetchTimeoutDuration())
	assert.Equal(t, 5*time.Minute, cfg.StalenessThresholdDuration())
	assert.Equal(t, 14*24*time.Hour, cfg.EphemeralRetentionDuration())
	assert.Equal(t, "@hourly", cfg.CleanupSchedule)
	assert.NotEmpty(t, cfg.UserAgent)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MAX_PAGES", "250")
	t.Setenv("STALENESS_THRESHOLD", "30")
	t.Setenv("CLEANUP_SCHEDULE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 250, cfg.MaxPages)
	assert.Equal(t, 30*time.Minute, cfg.StalenessThresholdDuration())
	assert.Empty(t, cfg.CleanupSchedule)
}
