// Package pipeline assembles the ingestion and reporting components from
// configuration. One Pipeline is created per process and handed to the HTTP
// handlers; nothing in it is a package level global.
package pipeline

import (
	"log/slog"

	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"sitepulse/internal/analytics"
	"sitepulse/internal/blocklist"
	"sitepulse/internal/config"
	"sitepulse/internal/events"
	"sitepulse/internal/jobs"
	"sitepulse/internal/pkg/geoip"
	"sitepulse/internal/pkg/referrers"
	"sitepulse/internal/sessions"
)

// Pipeline owns the queue, live tracker and block list cache.
type Pipeline struct {
	Config     *config.Config
	Logger     *slog.Logger
	DB         *gorm.DB
	Queue      *events.Queue
	Collector  *events.Collector
	Tracker    *sessions.Tracker
	Blocklist  *blocklist.Cache
	Reader     *analytics.Reader
	Normaliser *referrers.Normaliser
	Geo        *geoip.Resolver
	Jobs       *jobs.Scheduler
}

// New wires every component on db. Nothing is started; see Workers.
func New(cfg *config.Config, db *gorm.DB, logger *slog.Logger) *Pipeline {
	geo := geoip.Open(cfg.GeoDBPath, logger)
	blocked := blocklist.NewCache(blocklist.NewGormStore(db, logger), cfg.BlockedDomainsCacheTTL(), logger)

	queue := events.NewQueue(events.NewStore(db, logger), logger,
		events.WithFlushInterval(cfg.FlushInterval()),
		events.WithReferrerFilter(blocked),
	)

	thresholds := BotThresholds(cfg)
	tracker := sessions.NewTracker()

	return &Pipeline{
		Config:    cfg,
		Logger:    logger,
		DB:        db,
		Queue:     queue,
		Collector: events.NewCollector(queue, cfg.PrivateKey, geo, logger),
		Tracker:   tracker,
		Blocklist: blocked,
		Reader: analytics.NewReader(db, logger, thresholds, analytics.Limits{
			Default:  cfg.TopResultsLimit,
			Browsers: cfg.TopBrowsersLimit,
		}),
		Normaliser: referrers.NewNormaliser(cfg.InternalDomainList()),
		Geo:        geo,
		Jobs: jobs.NewJobs(jobs.Deps{
			DB:         db,
			Tracker:    tracker,
			Geo:        geo,
			Thresholds: thresholds,
		}, cfg, logger),
	}
}

// BotThresholds reads the behavioural bot thresholds from cfg.
func BotThresholds(cfg *config.Config) analytics.BotThresholds {
	return analytics.BotThresholds{
		MaxHitsPerPathPerDay: cfg.MaxHitsPerPathPerDay,
		MaxHitsTotalPerDay:   cfg.MaxHitsTotalPerDay,
	}
}

// EngagementOptions returns the configured engagement listing with sortBy applied.
func (p *Pipeline) EngagementOptions(sortBy analytics.EngagementSort) analytics.EngagementOptions {
	opts := analytics.DefaultEngagementOptions()
	if p.Config.EngagementMinViews > 0 {
		opts.MinViews = int64(p.Config.EngagementMinViews)
	}
	if p.Config.EngagementMaxResults > 0 {
		opts.MaxResults = p.Config.EngagementMaxResults
	}
	if sortBy != "" {
		opts.SortBy = sortBy
	}
	return opts
}

// Workers returns the background workers the application must start and stop:
// the queue flush timer and the job scheduler. Stopping the queue flushes
// whatever is still buffered.
func (p *Pipeline) Workers() []cartridge.BackgroundWorker {
	return []cartridge.BackgroundWorker{p.Queue, p.Jobs}
}

// Close releases resources not owned by a worker.
func (p *Pipeline) Close() error {
	return p.Geo.Close()
}
