package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"sitepulse/internal/timeframe"
)

// EngagementSort selects the ordering of EngagementStats.Pages.
type EngagementSort string

const (
	SortByRate   EngagementSort = "rate"
	SortByClicks EngagementSort = "clicks"
)

// ParseEngagementSort maps a query value to a sort mode. Empty means rate.
func ParseEngagementSort(s string) (EngagementSort, error) {
	switch EngagementSort(s) {
	case "", SortByRate:
		return SortByRate, nil
	case SortByClicks:
		return SortByClicks, nil
	default:
		return "", fmt.Errorf("invalid engagement sort %q", s)
	}
}

// EngagementOptions controls which pages are listed.
type EngagementOptions struct {
	MinViews   int64
	MaxResults int
	SortBy     EngagementSort
}

// DefaultEngagementOptions lists pages with at least 5 human views, top 10 by rate.
func DefaultEngagementOptions() EngagementOptions {
	return EngagementOptions{MinViews: 5, MaxResults: 10, SortBy: SortByRate}
}

// PathCount is a per-path count fed into BuildEngagementStats.
type PathCount struct {
	Path  string
	Count int64
}

// PageEngagement is the click-through figure for one path.
type PageEngagement struct {
	Path           string  `json:"path"`
	Clicks         int64   `json:"clicks"`
	HumanViews     int64   `json:"human_views"`
	EngagementRate float64 `json:"engagement_rate"`
}

// EngagementStats lists the most engaging pages alongside site-wide totals.
type EngagementStats struct {
	Pages           []PageEngagement `json:"pages"`
	TotalClicks     int64            `json:"total_clicks"`
	TotalHumanViews int64            `json:"total_human_views"`
	OverallRate     float64          `json:"overall_rate"`
}

func engagementRate(clicks, views int64) float64 {
	if views == 0 {
		return 0
	}
	return math.Round(float64(clicks)/float64(views)*100*100) / 100
}

// BuildEngagementStats joins clicks and views per path. Pages with fewer
// than MinViews human views are left out of Pages but still count towards
// the totals.
func BuildEngagementStats(clicks, views []PathCount, opts EngagementOptions) EngagementStats {
	if opts.SortBy == "" {
		opts.SortBy = SortByRate
	}

	index := make(map[string]int)
	pages := make([]PageEngagement, 0, len(views)+len(clicks))
	entry := func(path string) *PageEngagement {
		i, ok := index[path]
		if !ok {
			i = len(pages)
			index[path] = i
			pages = append(pages, PageEngagement{Path: path})
		}
		return &pages[i]
	}

	stats := EngagementStats{Pages: []PageEngagement{}}
	for _, v := range views {
		entry(v.Path).HumanViews += v.Count
		stats.TotalHumanViews += v.Count
	}
	for _, c := range clicks {
		entry(c.Path).Clicks += c.Count
		stats.TotalClicks += c.Count
	}
	stats.OverallRate = engagementRate(stats.TotalClicks, stats.TotalHumanViews)

	for _, p := range pages {
		if p.HumanViews < opts.MinViews {
			continue
		}
		p.EngagementRate = engagementRate(p.Clicks, p.HumanViews)
		stats.Pages = append(stats.Pages, p)
	}

	sort.SliceStable(stats.Pages, func(i, j int) bool {
		a, b := stats.Pages[i], stats.Pages[j]
		if opts.SortBy == SortByClicks {
			return a.Clicks > b.Clicks
		}
		return a.EngagementRate > b.EngagementRate
	})

	if opts.MaxResults > 0 && len(stats.Pages) > opts.MaxResults {
		stats.Pages = stats.Pages[:opts.MaxResults]
	}
	return stats
}

// GetEngagementStats feeds BuildEngagementStats from click_events and human
// page views in rng.
func (r *Reader) GetEngagementStats(ctx context.Context, rng timeframe.PeriodRange, opts EngagementOptions) EngagementStats {
	empty := EngagementStats{Pages: []PageEngagement{}}

	var clicks []PathCount
	err := r.db.WithContext(ctx).Raw(`
    SELECT path, COUNT(*) AS count
    FROM click_events
    WHERE created_at >= ? AND created_at < ?
    GROUP BY path
    ORDER BY count DESC, path ASC`,
		rng.StartMillis(), rng.EndMillis(),
	).Scan(&clicks).Error
	if err != nil {
		r.logger.Error("Engagement click query failed", slog.Any("error", err))
		return empty
	}

	var views []PathCount
	err = r.db.WithContext(ctx).Raw(`
    SELECT path, COUNT(*) AS count
    FROM analytics_events`+humanPageViewsFilter+`
    GROUP BY path
    ORDER BY count DESC, path ASC`,
		humanPageViewsArgs(rng, r.thresholds)...,
	).Scan(&views).Error
	if err != nil {
		r.logger.Error("Engagement view query failed", slog.Any("error", err))
		return empty
	}

	return BuildEngagementStats(clicks, views, opts)
}
