package analytics_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"sitepulse/internal/analytics"
	"sitepulse/internal/testsupport"
)

func newReader(db *gorm.DB, limits analytics.Limits) *analytics.Reader {
	return analytics.NewReader(db, testsupport.GetLogger(), analytics.DefaultBotThresholds(), limits)
}

// seedTraffic stores human traffic on /a, /b and /c plus a flagged crawler
// and a behavioural scraper that must never show up in breakdowns.
func seedTraffic(t *testing.T, db *gorm.DB) {
	t.Helper()
	at := morning()

	for i := 0; i < 3; i++ {
		testsupport.CreatePageView(t, db, testsupport.PageView{Hash: fmt.Sprintf("reader-a%d", i), Path: "/a", At: at})
	}
	testsupport.CreatePageViews(t, db, testsupport.PageView{Hash: "reader-b0", Path: "/b", Country: "GB", Browser: "Firefox", Device: "mobile", At: at}, 3)
	testsupport.CreatePageViews(t, db, testsupport.PageView{Hash: "reader-b1", Path: "/b", Country: "GB", Browser: "Safari", Device: "mobile", At: at}, 2)
	testsupport.CreatePageView(t, db, testsupport.PageView{Hash: "reader-c0", Path: "/c", Country: "DE", Browser: "Edge", At: at})

	testsupport.CreatePageViews(t, db, testsupport.PageView{Hash: "crawler", Path: "/c", IsBot: true, At: at}, 10)
	testsupport.CreatePageViews(t, db, testsupport.PageView{Hash: "scraper", Path: "/d", At: at}, 25)

	// custom events are not page views
	testsupport.CreatePageView(t, db, testsupport.PageView{Hash: "reader-a0", Path: "/a", EventName: "signup", At: at})
}

func TestBreakdowns(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	testsupport.CleanAllTables(db)
	seedTraffic(t, db)

	reader := newReader(db, analytics.DefaultLimits())
	ctx := context.Background()
	rng := todayRange(t)

	t.Run("top pages exclude bots and order by visitors", func(t *testing.T) {
		pages := reader.TopPages(ctx, rng)
		assert.Equal(t, []analytics.MetricCountResult{
			{Name: "/a", Views: 3, Visitors: 3},
			{Name: "/b", Views: 5, Visitors: 2},
			{Name: "/c", Views: 1, Visitors: 1},
		}, pages)
	})

	t.Run("countries", func(t *testing.T) {
		countries := reader.TopCountries(ctx, rng)
		assert.Equal(t, []analytics.MetricCountResult{
			{Name: "US", Views: 3, Visitors: 3},
			{Name: "GB", Views: 5, Visitors: 2},
			{Name: "DE", Views: 1, Visitors: 1},
		}, countries)
	})

	t.Run("devices", func(t *testing.T) {
		devices := reader.TopDevices(ctx, rng)
		require.Len(t, devices, 2)
		assert.Equal(t, "desktop", devices[0].Name)
		assert.Equal(t, int64(4), devices[0].Visitors)
		assert.Equal(t, "mobile", devices[1].Name)
	})

	t.Run("totals", func(t *testing.T) {
		assert.Equal(t, analytics.Totals{Views: 9, Visitors: 6}, reader.Totals(ctx, rng))
	})
}

func TestBreakdownLimits(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	testsupport.CleanAllTables(db)
	seedTraffic(t, db)

	reader := newReader(db, analytics.Limits{Default: 2, Browsers: 1})
	ctx := context.Background()
	rng := todayRange(t)

	assert.Len(t, reader.TopPages(ctx, rng), 2)
	browsers := reader.TopBrowsers(ctx, rng)
	require.Len(t, browsers, 1)
	assert.Equal(t, "Chrome", browsers[0].Name)
}

func TestBreakdownMissingValuesReportUnknown(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	testsupport.CleanAllTables(db)

	testsupport.CreatePageView(t, db, testsupport.PageView{Hash: "no-geo", At: morning()})
	require.NoError(t, db.Exec("UPDATE analytics_events SET country = NULL, browser = '' WHERE visitor_hash = ?", "no-geo").Error)

	reader := newReader(db, analytics.DefaultLimits())
	countries := reader.TopCountries(context.Background(), todayRange(t))
	require.Len(t, countries, 1)
	assert.Equal(t, analytics.Unknown, countries[0].Name)

	browsers := reader.TopBrowsers(context.Background(), todayRange(t))
	require.Len(t, browsers, 1)
	assert.Equal(t, analytics.Unknown, browsers[0].Name)
}

func TestBreakdownUnknownDimension(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	reader := newReader(db, analytics.DefaultLimits())

	_, err := reader.Breakdown(context.Background(), analytics.Dimension("referrer; DROP TABLE x"), todayRange(t), 10)
	assert.Error(t, err)
}

func TestBreakdownsDegradeToEmpty(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	require.NoError(t, db.Migrator().DropTable("analytics_events"))

	reader := newReader(db, analytics.DefaultLimits())
	ctx := context.Background()
	rng := todayRange(t)

	pages := reader.TopPages(ctx, rng)
	assert.NotNil(t, pages)
	assert.Empty(t, pages)
	assert.Equal(t, analytics.Totals{}, reader.Totals(ctx, rng))
	assert.Empty(t, reader.TopReferrers(ctx, rng, nil))
}
