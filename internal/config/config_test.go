package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetConfigDefaults(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	t.Setenv("SITEPULSE_ENV", Test)

	cfg := GetConfig()

	assert.True(t, cfg.IsTest())
	assert.Equal(t, 5*time.Second, cfg.FlushInterval())
	assert.Equal(t, 5*time.Minute, cfg.BlockedDomainsCacheTTL())
	assert.Equal(t, 30*time.Second, cfg.LiveSessionTimeout())
	assert.Equal(t, time.Minute, cfg.JobInterval())
	assert.Equal(t, 20, cfg.MaxHitsPerPathPerDay)
	assert.Equal(t, 100, cfg.MaxHitsTotalPerDay)
	assert.Equal(t, 10, cfg.TopResultsLimit)
	assert.Equal(t, 5, cfg.TopBrowsersLimit)
	assert.Equal(t, []string{"scottspence.com", "localhost", "127.0.0.1"}, cfg.InternalDomainList())
	assert.Equal(t, filepath.Join("storage", "sitepulse-test.db"), cfg.GetDatabasePath())
	assert.Same(t, cfg, GetConfig())
}

func TestGetConfigFromEnvironment(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	t.Setenv("SITEPULSE_ENV", Test)
	t.Setenv("SITEPULSE_FLUSH_INTERVAL_SECONDS", "2")
	t.Setenv("SITEPULSE_INTERNAL_DOMAINS", " Example.com, ,blog.example.org ")
	t.Setenv("SITEPULSE_MAX_HITS_PER_PATH_PER_DAY", "50")
	t.Setenv("SITEPULSE_ADMIN_API_KEY", "secret")

	cfg := GetConfig()

	assert.Equal(t, 2*time.Second, cfg.FlushInterval())
	assert.Equal(t, []string{"example.com", "blog.example.org"}, cfg.InternalDomainList())
	assert.Equal(t, 50, cfg.MaxHitsPerPathPerDay)
	assert.Equal(t, "secret", cfg.AdminAPIKey)
}

func TestValidate(t *testing.T) {
	valid := Config{
		Environment:          Development,
		DatabaseType:         SQLiteDatabase,
		FlushIntervalSeconds:      5,
		MaxHitsPerPathPerDay:      20,
		MaxHitsTotalPerDay:        100,
		JobIntervalSeconds:        60,
		LiveSessionTimeoutSeconds: 30,
		EventsRetentionDays:       400,
	}
	require.NoError(t, valid.validate())

	badEnv := valid
	badEnv.Environment = "staging"
	assert.Error(t, badEnv.validate())

	badFlush := valid
	badFlush.FlushIntervalSeconds = 0
	assert.Error(t, badFlush.validate())

	badThreshold := valid
	badThreshold.MaxHitsTotalPerDay = 0
	assert.Error(t, badThreshold.validate())

	badJobInterval := valid
	badJobInterval.JobIntervalSeconds = 0
	assert.Error(t, badJobInterval.validate())

	badLiveTimeout := valid
	badLiveTimeout.LiveSessionTimeoutSeconds = -1
	assert.Error(t, badLiveTimeout.validate())

	shortRetention := valid
	shortRetention.EventsRetentionDays = 30
	assert.Error(t, shortRetention.validate())

	yearRetention := valid
	yearRetention.EventsRetentionDays = 365
	assert.Error(t, yearRetention.validate(), "a leap year needs 366 days")

	minRetention := valid
	minRetention.EventsRetentionDays = MinEventsRetentionDays
	assert.NoError(t, minRetention.validate())

	keepForever := valid
	keepForever.EventsRetentionDays = 0
	assert.NoError(t, keepForever.validate())
}

func TestGetMaxOpenConns(t *testing.T) {
	assert.Equal(t, 1, (&Config{Environment: Test}).GetMaxOpenConns())
	assert.Equal(t, 3, (&Config{Environment: Production, DatabaseMaxOpenConns: 3}).GetMaxOpenConns())
}
