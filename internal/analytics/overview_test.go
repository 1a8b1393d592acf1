package analytics_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitepulse/internal/analytics"
	"sitepulse/internal/testsupport"
	"sitepulse/internal/timeframe"
)

func TestOverview(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	testsupport.CleanAllTables(db)
	seedTraffic(t, db)
	testsupport.CreatePageView(t, db, testsupport.PageView{Hash: "ref", Path: "/c", Referrer: "https://duckduckgo.com/", At: morning()})

	reader := newReader(db, analytics.DefaultLimits())
	overview, err := reader.Overview(context.Background(), timeframe.PeriodToday, fixedNow, nil)
	require.NoError(t, err)

	assert.Equal(t, timeframe.PeriodToday, overview.Period)
	assert.Equal(t, timeframe.StartOfDay(fixedNow), overview.From)
	assert.Equal(t, fixedNow, overview.To)
	assert.Equal(t, analytics.Totals{Views: 10, Visitors: 7}, overview.Totals)

	require.NotEmpty(t, overview.Pages)
	assert.Equal(t, "/a", overview.Pages[0].Name)

	require.Len(t, overview.Countries, 3)
	assert.Equal(t, "United States", overview.Countries[0].Name)
	assert.Equal(t, "United Kingdom", overview.Countries[1].Name)

	require.Len(t, overview.Devices, 2)
	assert.Equal(t, "Desktop", overview.Devices[0].Name)
	assert.Equal(t, "Mobile", overview.Devices[1].Name)

	assert.Equal(t, []analytics.ReferrerStat{
		{Name: "DuckDuckGo", Label: "DuckDuckGo", Views: 1, Visitors: 1},
	}, overview.Referrers)
}

func TestOverviewEmpty(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	testsupport.CleanAllTables(db)

	reader := newReader(db, analytics.DefaultLimits())
	overview, err := reader.Overview(context.Background(), timeframe.PeriodMonth, fixedNow, nil)
	require.NoError(t, err)

	assert.Equal(t, analytics.Totals{}, overview.Totals)
	assert.NotNil(t, overview.Pages)
	assert.NotNil(t, overview.Countries)
	assert.NotNil(t, overview.Browsers)
	assert.NotNil(t, overview.Devices)
	assert.NotNil(t, overview.Referrers)
}

func TestOverviewRejectsInvalidPeriod(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	reader := newReader(db, analytics.DefaultLimits())

	_, err := reader.Overview(context.Background(), timeframe.Period("decade"), fixedNow, nil)
	assert.ErrorIs(t, err, timeframe.ErrInvalidPeriod)
}

func TestCountryName(t *testing.T) {
	assert.Equal(t, "Germany", analytics.CountryName("DE"))
	assert.Equal(t, analytics.Unknown, analytics.CountryName(""))
	assert.Equal(t, analytics.Unknown, analytics.CountryName(analytics.Unknown))
	assert.Equal(t, "ZZ", analytics.CountryName("zz"))
}
