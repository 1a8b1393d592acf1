package timeframe

import (
	"fmt"
	"time"
)

// Granularity is the bucket size of a rollup table
type Granularity string

const (
	GranularityDaily   Granularity = "daily"
	GranularityMonthly Granularity = "monthly"
	GranularityYearly  Granularity = "yearly"
)

type granularitySpec struct {
	goFormat     string
	sqliteFormat string
}

var granularities = map[Granularity]granularitySpec{
	GranularityDaily:   {goFormat: "2006-01-02", sqliteFormat: "%Y-%m-%d"},
	GranularityMonthly: {goFormat: "2006-01", sqliteFormat: "%Y-%m"},
	GranularityYearly:  {goFormat: "2006", sqliteFormat: "%Y"},
}

// ParseGranularity validates a rollup granularity. Empty means daily.
func ParseGranularity(s string) (Granularity, error) {
	if s == "" {
		return GranularityDaily, nil
	}
	g := Granularity(s)
	if _, ok := granularities[g]; !ok {
		return "", fmt.Errorf("invalid granularity: %q", s)
	}
	return g, nil
}

// BucketKey formats t as the bucket label stored in rollup tables.
func (g Granularity) BucketKey(t time.Time) string {
	return t.Format(granularities[g].goFormat)
}

// SQLiteFormat returns the strftime pattern producing BucketKey values.
func (g Granularity) SQLiteFormat() string {
	return granularities[g].sqliteFormat
}

// Truncate returns the start of the bucket containing t, in t's location.
func (g Granularity) Truncate(t time.Time) time.Time {
	year, month, day := t.Date()
	switch g {
	case GranularityYearly:
		return time.Date(year, 1, 1, 0, 0, 0, 0, t.Location())
	case GranularityMonthly:
		return time.Date(year, month, 1, 0, 0, 0, 0, t.Location())
	default:
		return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
	}
}

// Next returns the start of the bucket after the one starting at start.
func (g Granularity) Next(start time.Time) time.Time {
	switch g {
	case GranularityYearly:
		return start.AddDate(1, 0, 0)
	case GranularityMonthly:
		return start.AddDate(0, 1, 0)
	default:
		return start.AddDate(0, 0, 1)
	}
}

// ParseDateRange parses inclusive YYYY-MM-DD bounds in loc. Missing bounds
// default to the 30 days ending today.
func ParseDateRange(fromDate, toDate string, now time.Time) (PeriodRange, error) {
	loc := now.Location()
	midnight := StartOfDay(now)

	from := midnight.AddDate(0, 0, -30)
	if fromDate != "" {
		parsed, err := time.ParseInLocation("2006-01-02", fromDate, loc)
		if err != nil {
			return PeriodRange{}, fmt.Errorf("invalid 'from' date: %w", err)
		}
		from = parsed
	}

	to := midnight.AddDate(0, 0, 1)
	if toDate != "" {
		parsed, err := time.ParseInLocation("2006-01-02", toDate, loc)
		if err != nil {
			return PeriodRange{}, fmt.Errorf("invalid 'to' date: %w", err)
		}
		to = parsed.AddDate(0, 0, 1)
	}

	if !from.Before(to) {
		return PeriodRange{}, fmt.Errorf("from date must be before to date")
	}

	return PeriodRange{Start: from, End: to}, nil
}
