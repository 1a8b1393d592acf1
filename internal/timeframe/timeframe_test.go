package timeframe_test

import (
	"testing"
	"time"

	"sitepulse/internal/timeframe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTimeProvider implements the TimeProvider interface for testing
type TestTimeProvider struct {
	CurrentTime time.Time
}

// Now returns the fixed test time, allowing stable tests with predictable times
func (t *TestTimeProvider) Now(loc *time.Location) time.Time {
	return t.CurrentTime.In(loc)
}

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic("Failed to load time zone location: " + name)
	}
	return loc
}

func TestGetPeriodBoundaries(t *testing.T) {
	now := time.Date(2025, 12, 30, 14, 30, 0, 0, time.Local)
	midnight := time.Date(2025, 12, 30, 0, 0, 0, 0, time.Local)

	testCases := []struct {
		period        timeframe.Period
		expectedStart time.Time
		expectedEnd   time.Time
	}{
		{timeframe.PeriodToday, midnight, now},
		{timeframe.PeriodYesterday, midnight.AddDate(0, 0, -1), midnight},
		{timeframe.PeriodWeek, midnight.AddDate(0, 0, -7), now},
		{timeframe.PeriodMonth, midnight.AddDate(0, 0, -30), now},
		{timeframe.PeriodYear, midnight.AddDate(0, 0, -365), now},
	}

	for _, tc := range testCases {
		t.Run(string(tc.period), func(t *testing.T) {
			r, err := timeframe.GetPeriodBoundaries(tc.period, now)
			require.NoError(t, err)
			assert.True(t, tc.expectedStart.Equal(r.Start), "start: expected %s, got %s", tc.expectedStart, r.Start)
			assert.True(t, tc.expectedEnd.Equal(r.End), "end: expected %s, got %s", tc.expectedEnd, r.End)
		})
	}
}

func TestGetPeriodBoundariesFixedOffsets(t *testing.T) {
	// March 31 minus 30 days is March 1, not February 28/29
	now := time.Date(2025, 3, 31, 9, 0, 0, 0, time.UTC)

	r, err := timeframe.GetPeriodBoundaries(timeframe.PeriodMonth, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), r.Start)

	// No leap day between the two dates, so 365 days is exactly one year here
	r, err = timeframe.GetPeriodBoundaries(timeframe.PeriodYear, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), r.Start)
}

func TestGetPeriodBoundariesUsesLocationOfNow(t *testing.T) {
	tokyo := mustLoadLocation("Asia/Tokyo")
	provider := &TestTimeProvider{CurrentTime: time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)}
	now := provider.Now(tokyo) // 2025-06-02 05:00 in Tokyo

	r, err := timeframe.GetPeriodBoundaries(timeframe.PeriodToday, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, tokyo), r.Start)
	assert.Equal(t, now.UnixMilli(), r.EndMillis())
}

func TestGetPeriodBoundariesInvalid(t *testing.T) {
	_, err := timeframe.GetPeriodBoundaries(timeframe.Period("fortnight"), time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, timeframe.ErrInvalidPeriod)
}

func TestParsePeriod(t *testing.T) {
	p, err := timeframe.ParsePeriod("")
	require.NoError(t, err)
	assert.Equal(t, timeframe.PeriodToday, p)

	p, err = timeframe.ParsePeriod(" Week ")
	require.NoError(t, err)
	assert.Equal(t, timeframe.PeriodWeek, p)

	_, err = timeframe.ParsePeriod("decade")
	assert.ErrorIs(t, err, timeframe.ErrInvalidPeriod)
}
