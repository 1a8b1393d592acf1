package jobs

import (
	"context"
	"log/slog"

	"sitepulse/internal/pkg/geoip"
)

// GeoReloadJob reopens the GeoLite database so a file replaced on disk by
// geoipupdate is picked up without a restart.
type GeoReloadJob struct {
	geo    *geoip.Resolver
	logger *slog.Logger
}

func NewGeoReloadJob(geo *geoip.Resolver, logger *slog.Logger) *GeoReloadJob {
	return &GeoReloadJob{geo: geo, logger: logger}
}

func (j *GeoReloadJob) Name() string { return "geo_reload" }

func (j *GeoReloadJob) Run(ctx context.Context) error {
	j.geo.Reload()
	j.logger.Debug("GeoLite database reloaded", slog.Bool("enabled", j.geo.Enabled()))
	return nil
}
