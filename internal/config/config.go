// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Database types
const (
	SQLiteDatabase = "sqlite"
)

const defaultSalt = "88888888888888888888888888888888"

// MinEventsRetentionDays is the shortest raw event retention that still
// covers a whole year, which the yearly rollup is rebuilt from. Zero
// disables cleanup.
const MinEventsRetentionDays = 366

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName     string   `mapstructure:"appname"`
	AppPort     string   `mapstructure:"appport"`
	Environment string   `mapstructure:"environment"`
	LogLevel    LogLevel `mapstructure:"loglevel"`
	PrivateKey  string   `mapstructure:"privatekey"` // salt for visitor hashes
	AdminAPIKey string   `mapstructure:"adminapikey"`

	// File paths
	DatabasePath          string `mapstructure:"storagepath"`
	DatabaseName          string `mapstructure:"-"` // Derived from other settings
	GeoDBPath             string `mapstructure:"geodbpath"`
	PublicDirectory       string `mapstructure:"publicdir"`
	PublicAssetsUrlPrefix string `mapstructure:"publicassetsurlprefix"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseType         string `mapstructure:"dbtype"`
	DatabaseMaxOpenConns int    `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int    `mapstructure:"dbmaxidleconns"`

	// Ingestion settings
	FlushIntervalSeconds       int    `mapstructure:"flushintervalseconds"`
	BlockedDomainsCacheTTLSecs int    `mapstructure:"blockeddomainscachettlseconds"`
	InternalDomains            string `mapstructure:"internaldomains"` // comma separated
	CountryHeader              string `mapstructure:"countryheader"`
	LiveSessionTimeoutSeconds  int    `mapstructure:"livesessiontimeoutseconds"`
	EventsRetentionDays        int    `mapstructure:"eventsretentiondays"`
	JobIntervalSeconds         int    `mapstructure:"jobintervalseconds"`
	MaxHitsPerPathPerDay       int    `mapstructure:"maxhitsperpathperday"`
	MaxHitsTotalPerDay         int    `mapstructure:"maxhitstotalperday"`
	TopResultsLimit            int    `mapstructure:"topresultslimit"`
	TopBrowsersLimit           int    `mapstructure:"topbrowserslimit"`
	EngagementMinViews         int    `mapstructure:"engagementminviews"`
	EngagementMaxResults       int    `mapstructure:"engagementmaxresults"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()

		v.SetDefault("appname", "sitepulse")
		v.SetDefault("appport", "3000")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("privatekey", defaultSalt)
		v.SetDefault("adminapikey", "")
		v.SetDefault("storagepath", "storage")
		v.SetDefault("geodbpath", "")
		v.SetDefault("publicdir", "public")
		v.SetDefault("publicassetsurlprefix", "/")
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("dbtype", SQLiteDatabase)
		v.SetDefault("dbmaxopenconns", 0)
		v.SetDefault("dbmaxidleconns", 0)
		v.SetDefault("flushintervalseconds", 5)
		v.SetDefault("blockeddomainscachettlseconds", 300)
		v.SetDefault("internaldomains", "scottspence.com,localhost,127.0.0.1")
		v.SetDefault("countryheader", "X-Country")
		v.SetDefault("livesessiontimeoutseconds", 30)
		v.SetDefault("eventsretentiondays", 400)
		v.SetDefault("jobintervalseconds", 60)
		v.SetDefault("maxhitsperpathperday", 20)
		v.SetDefault("maxhitstotalperday", 100)
		v.SetDefault("topresultslimit", 10)
		v.SetDefault("topbrowserslimit", 5)
		v.SetDefault("engagementminviews", 5)
		v.SetDefault("engagementmaxresults", 10)

		v.BindEnv("appname", "SITEPULSE_APP_NAME")
		v.BindEnv("appport", "SITEPULSE_APP_PORT")
		v.BindEnv("environment", "SITEPULSE_ENV")
		v.BindEnv("loglevel", "SITEPULSE_LOG_LEVEL")
		v.BindEnv("privatekey", "SITEPULSE_PRIVATE_KEY")
		v.BindEnv("adminapikey", "SITEPULSE_ADMIN_API_KEY")
		v.BindEnv("storagepath", "SITEPULSE_STORAGE_PATH")
		v.BindEnv("geodbpath", "SITEPULSE_GEO_DB_PATH")
		v.BindEnv("publicdir", "SITEPULSE_PUBLIC_DIR")
		v.BindEnv("publicassetsurlprefix", "SITEPULSE_PUBLIC_ASSETS_URL_PREFIX")
		v.BindEnv("logsdir", "SITEPULSE_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "SITEPULSE_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "SITEPULSE_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "SITEPULSE_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("dbtype", "SITEPULSE_DB_TYPE")
		v.BindEnv("dbmaxopenconns", "SITEPULSE_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "SITEPULSE_DB_MAX_IDLE_CONNS")
		v.BindEnv("flushintervalseconds", "SITEPULSE_FLUSH_INTERVAL_SECONDS")
		v.BindEnv("blockeddomainscachettlseconds", "SITEPULSE_BLOCKED_DOMAINS_CACHE_TTL_SECONDS")
		v.BindEnv("internaldomains", "SITEPULSE_INTERNAL_DOMAINS")
		v.BindEnv("countryheader", "SITEPULSE_COUNTRY_HEADER")
		v.BindEnv("livesessiontimeoutseconds", "SITEPULSE_LIVE_SESSION_TIMEOUT_SECONDS")
		v.BindEnv("eventsretentiondays", "SITEPULSE_EVENTS_RETENTION_DAYS")
		v.BindEnv("jobintervalseconds", "SITEPULSE_JOB_INTERVAL_SECONDS")
		v.BindEnv("maxhitsperpathperday", "SITEPULSE_MAX_HITS_PER_PATH_PER_DAY")
		v.BindEnv("maxhitstotalperday", "SITEPULSE_MAX_HITS_TOTAL_PER_DAY")
		v.BindEnv("topresultslimit", "SITEPULSE_TOP_RESULTS_LIMIT")
		v.BindEnv("topbrowserslimit", "SITEPULSE_TOP_BROWSERS_LIMIT")
		v.BindEnv("engagementminviews", "SITEPULSE_ENGAGEMENT_MIN_VIEWS")
		v.BindEnv("engagementmaxresults", "SITEPULSE_ENGAGEMENT_MAX_RESULTS")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}

		cfg.DatabaseName = cfg.GetDatabasePath()

		if cfg.PrivateKey == "" {
			log.Fatal("Private key is required")
		}
		if cfg.IsProduction() && cfg.PrivateKey == defaultSalt {
			log.Fatal("Production requires a unique SITEPULSE_PRIVATE_KEY (cannot use default)")
		}
	})
	return cfg
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	validDBTypes := map[string]bool{
		SQLiteDatabase: true,
	}
	if !validDBTypes[c.DatabaseType] {
		return fmt.Errorf("invalid database type: %s", c.DatabaseType)
	}

	if c.FlushIntervalSeconds <= 0 {
		return fmt.Errorf("flush interval must be positive: %d", c.FlushIntervalSeconds)
	}
	if c.MaxHitsPerPathPerDay <= 0 || c.MaxHitsTotalPerDay <= 0 {
		return fmt.Errorf("bot thresholds must be positive")
	}
	if c.JobIntervalSeconds <= 0 {
		return fmt.Errorf("job interval must be positive: %d", c.JobIntervalSeconds)
	}
	if c.LiveSessionTimeoutSeconds <= 0 {
		return fmt.Errorf("live session timeout must be positive: %d", c.LiveSessionTimeoutSeconds)
	}
	if c.EventsRetentionDays < 0 || (c.EventsRetentionDays > 0 && c.EventsRetentionDays < MinEventsRetentionDays) {
		return fmt.Errorf("events retention must be 0 (keep forever) or at least %d days: %d",
			MinEventsRetentionDays, c.EventsRetentionDays)
	}

	return nil
}

// GetDatabasePath returns the appropriate database path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.DatabasePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// FlushInterval is the period of the event queue flush timer.
func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalSeconds) * time.Second
}

// BlockedDomainsCacheTTL is how long the blocked referrer list is trusted before a refetch.
func (c *Config) BlockedDomainsCacheTTL() time.Duration {
	return time.Duration(c.BlockedDomainsCacheTTLSecs) * time.Second
}

// LiveSessionTimeout is the idle time after which a live session is swept.
func (c *Config) LiveSessionTimeout() time.Duration {
	return time.Duration(c.LiveSessionTimeoutSeconds) * time.Second
}

// JobInterval is the period of the rollup job.
func (c *Config) JobInterval() time.Duration {
	return time.Duration(c.JobIntervalSeconds) * time.Second
}

// InternalDomainList returns the lowercased internal domains used to hide self-referrals.
func (c *Config) InternalDomainList() []string {
	var domains []string
	for _, d := range strings.Split(c.InternalDomains, ",") {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			domains = append(domains, d)
		}
	}
	return domains
}

// GetPort returns the HTTP server port (implements cartridge.Config interface).
func (c *Config) GetPort() string {
	return c.AppPort
}

// GetPublicDirectory returns the path to public/static assets (implements cartridge.Config interface).
func (c *Config) GetPublicDirectory() string {
	return c.PublicDirectory
}

// GetAssetsPrefix returns the URL prefix for static assets (implements cartridge.Config interface).
func (c *Config) GetAssetsPrefix() string {
	return c.PublicAssetsUrlPrefix
}

// GetAppName returns the application name (implements cartridge.FactoryConfig interface).
func (c *Config) GetAppName() string {
	return c.AppName
}

// DatabaseDSN returns the database connection string (implements cartridge.FactoryConfig interface).
func (c *Config) DatabaseDSN() string {
	return c.GetDatabasePath()
}

// GetSessionSecret returns the session encryption key (implements cartridge.FactoryConfig interface).
func (c *Config) GetSessionSecret() string {
	return c.PrivateKey
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment
// If explicitly set via env var, uses that value. Otherwise:
// - Test: 1
// - Development/Production: 10 (concurrent reads for the overview queries)
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}

	if c.Environment == Test {
		return 1
	}

	return 10
}

// GetMaxIdleConns returns the appropriate MaxIdleConns value based on environment
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}

	if c.Environment == Test {
		return 1
	}

	return 5
}

// GetLogLevel returns the log level as a string (implements cartridge.LogConfigProvider).
func (c *Config) GetLogLevel() string {
	return string(c.LogLevel)
}

// GetLogDirectory returns the logs directory (implements cartridge.LogConfigProvider).
func (c *Config) GetLogDirectory() string {
	return c.LogsDirectory
}

// GetLogMaxSizeMB returns the max log file size in MB (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxSizeMB() int {
	return c.LogsMaxSizeInMb
}

// GetLogMaxBackups returns the max number of log backups (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxBackups() int {
	return c.LogsMaxBackups
}

// GetLogMaxAgeDays returns the max age in days for log files (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxAgeDays() int {
	return c.LogsMaxAgeInDays
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
