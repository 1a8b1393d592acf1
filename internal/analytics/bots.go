package analytics

import (
	"context"
	"fmt"

	"sitepulse/internal/timeframe"

	"gorm.io/gorm"
)

// BotThresholds flags visitors whose hit counts are beyond what a reader produces.
type BotThresholds struct {
	// MaxHitsPerPathPerDay catches scrapers hammering a single page.
	MaxHitsPerPathPerDay int
	// MaxHitsTotalPerDay catches crawlers walking the whole site.
	MaxHitsTotalPerDay int
}

// DefaultBotThresholds returns the stock thresholds.
func DefaultBotThresholds() BotThresholds {
	return BotThresholds{MaxHitsPerPathPerDay: 20, MaxHitsTotalPerDay: 100}
}

// Visitor hashes rotate at local midnight, so grouping per hash and local
// calendar day keeps both counts per visitor day even when the window spans
// months. 'localtime' follows the same TZ as the process clock.
const behaviourBotSQL = `
    SELECT visitor_hash FROM analytics_events
    WHERE created_at >= ? AND created_at < ?
    GROUP BY visitor_hash, path, date(created_at / 1000, 'unixepoch', 'localtime')
    HAVING COUNT(*) > ?
    UNION
    SELECT visitor_hash FROM analytics_events
    WHERE created_at >= ? AND created_at < ?
    GROUP BY visitor_hash, date(created_at / 1000, 'unixepoch', 'localtime')
    HAVING COUNT(*) > ?`

func behaviourBotArgs(rng timeframe.PeriodRange, th BotThresholds) []any {
	start, end := rng.StartMillis(), rng.EndMillis()
	return []any{start, end, th.MaxHitsPerPathPerDay, start, end, th.MaxHitsTotalPerDay}
}

// GetBehaviourBotHashes returns the visitor hashes in rng that exceed either
// threshold. The two checks are independent and the result is their union.
func GetBehaviourBotHashes(ctx context.Context, db *gorm.DB, rng timeframe.PeriodRange, th BotThresholds) ([]string, error) {
	var hashes []string
	err := db.WithContext(ctx).
		Raw(behaviourBotSQL+" ORDER BY visitor_hash", behaviourBotArgs(rng, th)...).
		Scan(&hashes).Error
	if err != nil {
		return nil, fmt.Errorf("error fetching behaviour bot hashes: %w", err)
	}
	if hashes == nil {
		hashes = []string{}
	}
	return hashes, nil
}

// humanPageViewsFilter is the WHERE clause shared by every human traffic
// query. It expects the range bounds followed by behaviourBotArgs.
const humanPageViewsFilter = `
    WHERE created_at >= ? AND created_at < ?
    AND event_type = 'page_view'
    AND is_bot = 0
    AND visitor_hash NOT IN (` + behaviourBotSQL + `)`

func humanPageViewsArgs(rng timeframe.PeriodRange, th BotThresholds) []any {
	args := []any{rng.StartMillis(), rng.EndMillis()}
	return append(args, behaviourBotArgs(rng, th)...)
}
