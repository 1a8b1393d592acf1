package analytics

import (
	"context"
	"fmt"
	"log/slog"

	"sitepulse/internal/timeframe"
)

// Dimension is a column a breakdown groups by.
type Dimension string

const (
	DimensionPath    Dimension = "path"
	DimensionCountry Dimension = "country"
	DimensionBrowser Dimension = "browser"
	DimensionDevice  Dimension = "device_type"
)

// Only these expressions are ever interpolated into SQL.
var dimensionColumns = map[Dimension]string{
	DimensionPath:    "path",
	DimensionCountry: "COALESCE(NULLIF(country, ''), 'Unknown')",
	DimensionBrowser: "COALESCE(NULLIF(browser, ''), 'Unknown')",
	DimensionDevice:  "COALESCE(NULLIF(device_type, ''), 'Unknown')",
}

// Breakdown groups human page views in rng by dim, ordered by distinct
// visitors descending.
func (r *Reader) Breakdown(ctx context.Context, dim Dimension, rng timeframe.PeriodRange, limit int) ([]MetricCountResult, error) {
	column, ok := dimensionColumns[dim]
	if !ok {
		return nil, fmt.Errorf("unknown breakdown dimension %q", dim)
	}

	query := `
    SELECT
        ` + column + ` AS name,
        COUNT(*) AS views,
        COUNT(DISTINCT visitor_hash) AS visitors
    FROM analytics_events` + humanPageViewsFilter + `
    GROUP BY name
    ORDER BY visitors DESC, views DESC, name ASC
    LIMIT ?`

	args := append(humanPageViewsArgs(rng, r.thresholds), limit)

	var results []MetricCountResult
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&results).Error; err != nil {
		return nil, fmt.Errorf("error fetching %s breakdown: %w", dim, err)
	}
	return results, nil
}

func (r *Reader) breakdownOrEmpty(ctx context.Context, dim Dimension, rng timeframe.PeriodRange, limit int) []MetricCountResult {
	results, err := r.Breakdown(ctx, dim, rng, limit)
	if err != nil {
		r.logger.Error("Breakdown query failed",
			slog.String("dimension", string(dim)),
			slog.Any("error", err))
		return []MetricCountResult{}
	}
	if results == nil {
		return []MetricCountResult{}
	}
	return results
}

// TopPages returns the most visited paths.
func (r *Reader) TopPages(ctx context.Context, rng timeframe.PeriodRange) []MetricCountResult {
	return r.breakdownOrEmpty(ctx, DimensionPath, rng, r.limits.Default)
}

// TopCountries returns the countries sending the most visitors, as ISO codes.
func (r *Reader) TopCountries(ctx context.Context, rng timeframe.PeriodRange) []MetricCountResult {
	return r.breakdownOrEmpty(ctx, DimensionCountry, rng, r.limits.Default)
}

// TopBrowsers returns the most used browsers.
func (r *Reader) TopBrowsers(ctx context.Context, rng timeframe.PeriodRange) []MetricCountResult {
	return r.breakdownOrEmpty(ctx, DimensionBrowser, rng, r.limits.Browsers)
}

// TopDevices returns visitors by device type.
func (r *Reader) TopDevices(ctx context.Context, rng timeframe.PeriodRange) []MetricCountResult {
	return r.breakdownOrEmpty(ctx, DimensionDevice, rng, r.limits.Default)
}

// Totals is the headline view and visitor count for a period.
type Totals struct {
	Views    int64 `json:"views"`
	Visitors int64 `json:"visitors"`
}

// Totals counts human page views and distinct visitors in rng.
func (r *Reader) Totals(ctx context.Context, rng timeframe.PeriodRange) Totals {
	query := `
    SELECT
        COUNT(*) AS views,
        COUNT(DISTINCT visitor_hash) AS visitors
    FROM analytics_events` + humanPageViewsFilter

	var totals Totals
	if err := r.db.WithContext(ctx).Raw(query, humanPageViewsArgs(rng, r.thresholds)...).Scan(&totals).Error; err != nil {
		r.logger.Error("Totals query failed", slog.Any("error", err))
		return Totals{}
	}
	return totals
}
