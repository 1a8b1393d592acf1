package timeframe

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidPeriod is returned for period names outside the supported set.
var ErrInvalidPeriod = errors.New("invalid period")

// Period names a reporting window relative to now
type Period string

const (
	PeriodToday     Period = "today"
	PeriodYesterday Period = "yesterday"
	PeriodWeek      Period = "week"
	PeriodMonth     Period = "month"
	PeriodYear      Period = "year"
)

// Periods lists the supported periods in display order
var Periods = []Period{PeriodToday, PeriodYesterday, PeriodWeek, PeriodMonth, PeriodYear}

// Fixed lookbacks; month and year are not calendar aware.
var periodLookbackDays = map[Period]int{
	PeriodWeek:  7,
	PeriodMonth: 30,
	PeriodYear:  365,
}

type TimeProvider interface {
	Now(loc *time.Location) time.Time
}

// DefaultTimeProvider uses the system clock
type DefaultTimeProvider struct{}

// Now returns the current time in loc
func (p *DefaultTimeProvider) Now(loc *time.Location) time.Time {
	return time.Now().In(loc)
}

// PeriodRange is a half-open [Start, End) window.
type PeriodRange struct {
	Start time.Time
	End   time.Time
}

// StartMillis returns Start as epoch milliseconds, matching stored created_at values.
func (r PeriodRange) StartMillis() int64 {
	return r.Start.UnixMilli()
}

// EndMillis returns End as epoch milliseconds.
func (r PeriodRange) EndMillis() int64 {
	return r.End.UnixMilli()
}

// ParsePeriod validates a period name. An empty string means today.
func ParsePeriod(s string) (Period, error) {
	p := Period(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return PeriodToday, nil
	}
	for _, known := range Periods {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
}

// GetPeriodBoundaries returns the window for period, anchored on local
// midnight of now in now's location.
//
//	today      [midnight, now]
//	yesterday  [midnight-1d, midnight]
//	week       [midnight-7d, now]
//	month      [midnight-30d, now]
//	year       [midnight-365d, now]
func GetPeriodBoundaries(period Period, now time.Time) (PeriodRange, error) {
	midnight := StartOfDay(now)

	switch period {
	case PeriodToday:
		return PeriodRange{Start: midnight, End: now}, nil
	case PeriodYesterday:
		return PeriodRange{Start: midnight.AddDate(0, 0, -1), End: midnight}, nil
	case PeriodWeek, PeriodMonth, PeriodYear:
		days := periodLookbackDays[period]
		return PeriodRange{Start: midnight.AddDate(0, 0, -days), End: now}, nil
	default:
		return PeriodRange{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}
