package analytics

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/pariz/gountries"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"sitepulse/internal/pkg/async"
	"sitepulse/internal/pkg/referrers"
	"sitepulse/internal/timeframe"
)

// overviewWorkers bounds concurrent queries against the sqlite pool.
const overviewWorkers = 4

var countryLookup = gountries.New()

// Overview is the dashboard payload for one period.
type Overview struct {
	Period    timeframe.Period    `json:"period"`
	From      time.Time           `json:"from"`
	To        time.Time           `json:"to"`
	Totals    Totals              `json:"totals"`
	Pages     []MetricCountResult `json:"pages"`
	Countries []MetricCountResult `json:"countries"`
	Browsers  []MetricCountResult `json:"browsers"`
	Devices   []MetricCountResult `json:"devices"`
	Referrers []ReferrerStat      `json:"referrers"`
}

// Overview runs every breakdown for period concurrently and assembles the result.
func (r *Reader) Overview(ctx context.Context, period timeframe.Period, now time.Time, normaliser *referrers.Normaliser) (Overview, error) {
	rng, err := timeframe.GetPeriodBoundaries(period, now)
	if err != nil {
		return Overview{}, err
	}

	tasks := []async.Task{
		{Name: "totals", Execute: func(ctx context.Context) (any, error) { return r.Totals(ctx, rng), nil }},
		{Name: "pages", Execute: func(ctx context.Context) (any, error) { return r.TopPages(ctx, rng), nil }},
		{Name: "countries", Execute: func(ctx context.Context) (any, error) { return r.TopCountries(ctx, rng), nil }},
		{Name: "browsers", Execute: func(ctx context.Context) (any, error) { return r.TopBrowsers(ctx, rng), nil }},
		{Name: "devices", Execute: func(ctx context.Context) (any, error) { return r.TopDevices(ctx, rng), nil }},
		{Name: "referrers", Execute: func(ctx context.Context) (any, error) { return r.TopReferrers(ctx, rng, normaliser), nil }},
	}

	results := async.NewPool(overviewWorkers).Execute(ctx, tasks)
	for name, result := range results {
		if result.Err != nil {
			r.logger.Error("Overview task failed", slog.String("task", name), slog.Any("error", result.Err))
		}
	}

	overview := Overview{
		Period:    period,
		From:      rng.Start,
		To:        rng.End,
		Pages:     metricResultsOrEmpty(results, "pages"),
		Countries: countryDisplayNames(metricResultsOrEmpty(results, "countries")),
		Browsers:  metricResultsOrEmpty(results, "browsers"),
		Devices:   deviceLabels(metricResultsOrEmpty(results, "devices")),
		Referrers: []ReferrerStat{},
	}
	if result, ok := results["totals"]; ok && result.Data != nil {
		overview.Totals = result.Data.(Totals)
	}
	if result, ok := results["referrers"]; ok && result.Data != nil {
		overview.Referrers = result.Data.([]ReferrerStat)
	}
	return overview, nil
}

func metricResultsOrEmpty(results map[string]async.Result, name string) []MetricCountResult {
	if result, exists := results[name]; exists {
		if result.Data != nil {
			return result.Data.([]MetricCountResult)
		}
	}
	return []MetricCountResult{}
}

// countryDisplayNames swaps ISO codes for common country names.
func countryDisplayNames(items []MetricCountResult) []MetricCountResult {
	result := make([]MetricCountResult, len(items))
	for i, item := range items {
		result[i] = item
		result[i].Name = CountryName(item.Name)
	}
	return result
}

// CountryName returns the common English name for an ISO alpha-2 code, or the
// upper-cased code when it is not recognised.
func CountryName(code string) string {
	if code == "" || code == Unknown {
		return Unknown
	}
	country, err := countryLookup.FindCountryByAlpha(code)
	if err != nil {
		return strings.ToUpper(code)
	}
	return country.Name.Common
}

func deviceLabels(items []MetricCountResult) []MetricCountResult {
	caser := cases.Title(language.AmericanEnglish)
	result := make([]MetricCountResult, len(items))
	for i, item := range items {
		result[i] = item
		result[i].Name = caser.String(item.Name)
	}
	return result
}
