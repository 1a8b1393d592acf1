// Package analytics holds the read side of the pipeline: aggregate queries
// over analytics_events and click_events, and the rollup tables built from them.
//
// The package is organized into focused modules:
//   - bots.go: behavioural bot detection by hit thresholds
//   - breakdowns.go: top-N pages, countries, browsers and devices
//   - referrers.go: referrer normalisation and grouping
//   - engagement.go: click-through rates per page
//   - rollups.go: daily, monthly and yearly rollup tables
//   - overview.go: dashboard payload assembled from the above
package analytics

import (
	"log/slog"

	"gorm.io/gorm"
)

// Unknown is reported for events without a country, browser or device.
const Unknown = "Unknown"

// Limits caps the number of rows returned per breakdown.
type Limits struct {
	Default  int
	Browsers int
}

// DefaultLimits returns the stock breakdown sizes.
func DefaultLimits() Limits {
	return Limits{Default: 10, Browsers: 5}
}

// MetricCountResult is one row of a breakdown.
type MetricCountResult struct {
	Name     string `json:"name"`
	Views    int64  `json:"views"`
	Visitors int64  `json:"visitors"`
}

// Reader runs the aggregate queries. Failures are logged and reported to the
// caller as empty results.
type Reader struct {
	db         *gorm.DB
	logger     *slog.Logger
	thresholds BotThresholds
	limits     Limits
}

// NewReader creates a Reader. Zero thresholds or limits fall back to the defaults.
func NewReader(db *gorm.DB, logger *slog.Logger, thresholds BotThresholds, limits Limits) *Reader {
	defaults := DefaultBotThresholds()
	if thresholds.MaxHitsPerPathPerDay <= 0 {
		thresholds.MaxHitsPerPathPerDay = defaults.MaxHitsPerPathPerDay
	}
	if thresholds.MaxHitsTotalPerDay <= 0 {
		thresholds.MaxHitsTotalPerDay = defaults.MaxHitsTotalPerDay
	}
	stock := DefaultLimits()
	if limits.Default <= 0 {
		limits.Default = stock.Default
	}
	if limits.Browsers <= 0 {
		limits.Browsers = stock.Browsers
	}
	return &Reader{db: db, logger: logger, thresholds: thresholds, limits: limits}
}

// Limits returns the configured breakdown sizes.
func (r *Reader) Limits() Limits {
	return r.limits
}

// Thresholds returns the behavioural bot thresholds in use.
func (r *Reader) Thresholds() BotThresholds {
	return r.thresholds
}
