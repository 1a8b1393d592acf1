package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"sitepulse/internal/pkg/referrers"
	"sitepulse/internal/timeframe"
)

// ReferrerRow is the raw count for one stored referrer URL.
type ReferrerRow struct {
	Referrer string
	Views    int64
	Visitors int64
}

// ReferrerStat is a traffic source after normalisation.
type ReferrerStat struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Views    int64  `json:"views"`
	Visitors int64  `json:"visitors"`
}

// AggregateReferrers groups rows by normalised source, sums their counts and
// drops internal navigation. Output is ordered by visitors descending; ties
// keep the order in which each source first appeared. A nil normaliser uses
// the default internal domains.
func AggregateReferrers(rows []ReferrerRow, normaliser *referrers.Normaliser) []ReferrerStat {
	if normaliser == nil {
		normaliser = referrers.NewNormaliser(nil)
	}

	index := make(map[string]int)
	stats := make([]ReferrerStat, 0, len(rows))

	for _, row := range rows {
		name := normaliser.Normalise(row.Referrer)
		if name == nil {
			continue
		}
		i, ok := index[*name]
		if !ok {
			i = len(stats)
			index[*name] = i
			stats = append(stats, ReferrerStat{Name: *name, Label: referrers.Label(*name)})
		}
		stats[i].Views += row.Views
		stats[i].Visitors += row.Visitors
	}

	sort.SliceStable(stats, func(i, j int) bool {
		return stats[i].Visitors > stats[j].Visitors
	})

	return stats
}

// ReferrerRows returns per-URL referrer counts for human page views in rng.
func (r *Reader) ReferrerRows(ctx context.Context, rng timeframe.PeriodRange) ([]ReferrerRow, error) {
	query := `
    SELECT
        referrer,
        COUNT(*) AS views,
        COUNT(DISTINCT visitor_hash) AS visitors
    FROM analytics_events` + humanPageViewsFilter + `
    AND referrer IS NOT NULL AND referrer != ''
    GROUP BY referrer
    ORDER BY visitors DESC, views DESC, referrer ASC`

	var rows []ReferrerRow
	if err := r.db.WithContext(ctx).Raw(query, humanPageViewsArgs(rng, r.thresholds)...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("error fetching referrers: %w", err)
	}
	return rows, nil
}

// TopReferrers returns the leading external traffic sources in rng.
func (r *Reader) TopReferrers(ctx context.Context, rng timeframe.PeriodRange, normaliser *referrers.Normaliser) []ReferrerStat {
	rows, err := r.ReferrerRows(ctx, rng)
	if err != nil {
		r.logger.Error("Referrer query failed", slog.Any("error", err))
		return []ReferrerStat{}
	}

	stats := AggregateReferrers(rows, normaliser)
	if len(stats) > r.limits.Default {
		stats = stats[:r.limits.Default]
	}
	return stats
}
