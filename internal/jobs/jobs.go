package jobs

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"sitepulse/internal/analytics"
	"sitepulse/internal/config"
	"sitepulse/internal/pkg/geoip"
	"sitepulse/internal/sessions"
)

// Job is a unit of periodic background work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Deps are the components background jobs operate on.
type Deps struct {
	DB         *gorm.DB
	Tracker    *sessions.Tracker
	Geo        *geoip.Resolver
	Thresholds analytics.BotThresholds
}

// NewJobs creates a scheduler with the stock job set:
//
//	rollup          every JobIntervalSeconds
//	session_sweep   every LiveSessionTimeoutSeconds
//	cleanup         daily
//	geo_reload      daily, only when a GeoLite database is configured
func NewJobs(deps Deps, cfg *config.Config, logger *slog.Logger) *Scheduler {
	s := NewScheduler(logger)
	s.Add(NewRollupJob(deps.DB, logger, deps.Thresholds), cfg.JobInterval())
	s.Add(NewSessionSweepJob(deps.Tracker, cfg.LiveSessionTimeout(), logger), cfg.LiveSessionTimeout())
	s.Add(NewCleanupJob(deps.DB, logger, cfg.EventsRetentionDays), 24*time.Hour)
	if deps.Geo.Enabled() {
		s.Add(NewGeoReloadJob(deps.Geo, logger), 24*time.Hour)
	}
	return s
}
