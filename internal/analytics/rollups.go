package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"sitepulse/internal/timeframe"
)

// ===== Rollup Table Definitions =====

// AnalyticsDaily holds human page views per path and day (YYYY-MM-DD).
type AnalyticsDaily struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	Path           string `gorm:"uniqueIndex:idx_analytics_daily_unique;not null"`
	Bucket         string `gorm:"uniqueIndex:idx_analytics_daily_unique;index;size:10;not null"`
	Views          int64  `gorm:"not null;default:0"`
	UniqueVisitors int64  `gorm:"not null;default:0"`
}

// TableName overrides the table name used by AnalyticsDaily to `analytics_daily`
func (AnalyticsDaily) TableName() string {
	return "analytics_daily"
}

// AnalyticsMonthly holds human page views per path and month (YYYY-MM).
type AnalyticsMonthly struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	Path           string `gorm:"uniqueIndex:idx_analytics_monthly_unique;not null"`
	Bucket         string `gorm:"uniqueIndex:idx_analytics_monthly_unique;index;size:7;not null"`
	Views          int64  `gorm:"not null;default:0"`
	UniqueVisitors int64  `gorm:"not null;default:0"`
}

// TableName overrides the table name used by AnalyticsMonthly to `analytics_monthly`
func (AnalyticsMonthly) TableName() string {
	return "analytics_monthly"
}

// AnalyticsYearly holds human page views per path and year (YYYY).
type AnalyticsYearly struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	Path           string `gorm:"uniqueIndex:idx_analytics_yearly_unique;not null"`
	Bucket         string `gorm:"uniqueIndex:idx_analytics_yearly_unique;index;size:4;not null"`
	Views          int64  `gorm:"not null;default:0"`
	UniqueVisitors int64  `gorm:"not null;default:0"`
}

// TableName overrides the table name used by AnalyticsYearly to `analytics_yearly`
func (AnalyticsYearly) TableName() string {
	return "analytics_yearly"
}

// RollupModels lists the rollup tables for migrations.
func RollupModels() []any {
	return []any{&AnalyticsDaily{}, &AnalyticsMonthly{}, &AnalyticsYearly{}}
}

var rollupTables = map[timeframe.Granularity]string{
	timeframe.GranularityDaily:   "analytics_daily",
	timeframe.GranularityMonthly: "analytics_monthly",
	timeframe.GranularityYearly:  "analytics_yearly",
}

// RollupTable returns the table backing g.
func RollupTable(g timeframe.Granularity) (string, error) {
	table, ok := rollupTables[g]
	if !ok {
		return "", fmt.Errorf("no rollup table for granularity %q", g)
	}
	return table, nil
}

// RebuildRollup recomputes the bucket of granularity g containing t from
// analytics_events. Existing rows for the bucket are replaced, so rebuilding
// the current bucket repeatedly is safe. It returns the number of paths written.
func RebuildRollup(ctx context.Context, db *gorm.DB, logger *slog.Logger, g timeframe.Granularity, t time.Time, th BotThresholds) (int64, error) {
	table, err := RollupTable(g)
	if err != nil {
		return 0, err
	}

	start := g.Truncate(t)
	rng := timeframe.PeriodRange{Start: start, End: g.Next(start)}
	bucket := g.BucketKey(start)

	insert := `
    INSERT INTO ` + table + ` (path, bucket, views, unique_visitors)
    SELECT
        path,
        ?,
        COUNT(*),
        COUNT(DISTINCT visitor_hash)
    FROM analytics_events` + humanPageViewsFilter + `
    GROUP BY path`

	args := append([]any{bucket}, humanPageViewsArgs(rng, th)...)

	var written int64
	err = sqlite.PerformWrite(logger, db.WithContext(ctx), func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM "+table+" WHERE bucket = ?", bucket).Error; err != nil {
			return fmt.Errorf("clear %s bucket %s: %w", table, bucket, err)
		}
		result := tx.Exec(insert, args...)
		if result.Error != nil {
			return fmt.Errorf("fill %s bucket %s: %w", table, bucket, result.Error)
		}
		written = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

// RollupPage is a path's totals summed across rollup buckets.
type RollupPage struct {
	Path           string `json:"path"`
	Views          int64  `json:"views"`
	UniqueVisitors int64  `json:"unique_visitors"`
}

// TopPagesFromRollups sums the buckets of g overlapping rng and returns the
// paths with the most unique visitors. Summed unique visitors count a person
// once per bucket.
func TopPagesFromRollups(ctx context.Context, db *gorm.DB, g timeframe.Granularity, rng timeframe.PeriodRange, limit int) ([]RollupPage, error) {
	table, err := RollupTable(g)
	if err != nil {
		return nil, err
	}

	// End is exclusive; the last bucket is the one holding the instant before it.
	from := g.BucketKey(rng.Start)
	to := g.BucketKey(rng.End.Add(-time.Millisecond))

	query := `
    SELECT
        path,
        SUM(views) AS views,
        SUM(unique_visitors) AS unique_visitors
    FROM ` + table + `
    WHERE bucket >= ? AND bucket <= ?
    GROUP BY path
    ORDER BY unique_visitors DESC, views DESC, path ASC
    LIMIT ?`

	var pages []RollupPage
	if err := db.WithContext(ctx).Raw(query, from, to, limit).Scan(&pages).Error; err != nil {
		return nil, fmt.Errorf("error fetching top pages from %s: %w", table, err)
	}
	if pages == nil {
		pages = []RollupPage{}
	}
	return pages, nil
}
