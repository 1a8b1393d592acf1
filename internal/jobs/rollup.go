package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"sitepulse/internal/analytics"
	"sitepulse/internal/timeframe"
)

// RollupJob refreshes the rollup buckets that can still change: today and
// yesterday for the daily table, and the current month and year.
type RollupJob struct {
	db         *gorm.DB
	logger     *slog.Logger
	thresholds analytics.BotThresholds
	now        func() time.Time
}

func NewRollupJob(db *gorm.DB, logger *slog.Logger, thresholds analytics.BotThresholds) *RollupJob {
	return &RollupJob{db: db, logger: logger, thresholds: thresholds, now: time.Now}
}

func (j *RollupJob) Name() string { return "rollup" }

// SetClock overrides the clock that picks the buckets to rebuild.
func (j *RollupJob) SetClock(now func() time.Time) { j.now = now }

func (j *RollupJob) Run(ctx context.Context) error {
	now := j.now()

	buckets := []struct {
		granularity timeframe.Granularity
		at          time.Time
	}{
		{timeframe.GranularityDaily, now.AddDate(0, 0, -1)},
		{timeframe.GranularityDaily, now},
		{timeframe.GranularityMonthly, now},
		{timeframe.GranularityYearly, now},
	}

	for _, b := range buckets {
		rows, err := analytics.RebuildRollup(ctx, j.db, j.logger, b.granularity, b.at, j.thresholds)
		if err != nil {
			return fmt.Errorf("rebuild %s rollup: %w", b.granularity, err)
		}
		j.logger.Debug("Rebuilt rollup",
			slog.String("granularity", string(b.granularity)),
			slog.String("bucket", b.granularity.BucketKey(b.at)),
			slog.Int64("paths", rows))
	}
	return nil
}
