package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"sitepulse/internal/config"
)

const cleanupBatchSize = 1000

// CleanupJob removes raw events older than the retention period. Rollup
// tables are kept, so retention never drops below
// config.MinEventsRetentionDays: the monthly and yearly buckets are rebuilt
// from raw events.
type CleanupJob struct {
	db            *gorm.DB
	logger        *slog.Logger
	retentionDays int
	now           func() time.Time
}

func NewCleanupJob(db *gorm.DB, logger *slog.Logger, retentionDays int) *CleanupJob {
	if retentionDays > 0 && retentionDays < config.MinEventsRetentionDays {
		logger.Warn("Event retention too short for yearly rollups, raising it",
			slog.Int("configured_days", retentionDays),
			slog.Int("retention_days", config.MinEventsRetentionDays))
		retentionDays = config.MinEventsRetentionDays
	}
	return &CleanupJob{
		db:            db,
		logger:        logger,
		retentionDays: retentionDays,
		now:           time.Now,
	}
}

func (j *CleanupJob) Name() string { return "cleanup" }

// SetClock overrides the clock the cutoff is computed from.
func (j *CleanupJob) SetClock(now func() time.Time) { j.now = now }

// Run deletes analytics_events and click_events rows created before the cutoff.
func (j *CleanupJob) Run(ctx context.Context) error {
	if j.retentionDays <= 0 {
		j.logger.Debug("Event retention disabled")
		return nil
	}

	cutoff := j.now().AddDate(0, 0, -j.retentionDays)

	j.logger.Info("Starting cleanup of old events",
		slog.Int("retention_days", j.retentionDays),
		slog.Time("cutoff_date", cutoff))

	for _, table := range []string{"analytics_events", "click_events"} {
		deleted, err := j.deleteBefore(ctx, table, cutoff.UnixMilli())
		if err != nil {
			return err
		}
		if deleted > 0 {
			j.logger.Info("Cleaned up old events",
				slog.String("table", table),
				slog.Int64("deleted_count", deleted))
		}
	}
	return nil
}

// deleteBefore deletes in batches so a large backlog does not hold the
// write lock for long.
func (j *CleanupJob) deleteBefore(ctx context.Context, table string, cutoffMillis int64) (int64, error) {
	query := `DELETE FROM ` + table + ` WHERE id IN (
        SELECT id FROM ` + table + ` WHERE created_at < ? LIMIT ?
    )`

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		var affected int64
		err := sqlite.PerformWrite(j.logger, j.db.WithContext(ctx), func(tx *gorm.DB) error {
			result := tx.Exec(query, cutoffMillis, cleanupBatchSize)
			if result.Error != nil {
				return result.Error
			}
			affected = result.RowsAffected
			return nil
		})
		if err != nil {
			return total, fmt.Errorf("delete old rows from %s: %w", table, err)
		}

		total += affected
		if affected < cleanupBatchSize {
			return total, nil
		}
	}
}
