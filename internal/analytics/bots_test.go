package analytics_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitepulse/internal/analytics"
	"sitepulse/internal/testsupport"
	"sitepulse/internal/timeframe"
)

// fixedNow is noon UTC; fixtures land at 10:00 the same day.
var fixedNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func morning() time.Time {
	return fixedNow.Add(-2 * time.Hour)
}

func todayRange(t *testing.T) timeframe.PeriodRange {
	t.Helper()
	rng, err := timeframe.GetPeriodBoundaries(timeframe.PeriodToday, fixedNow)
	require.NoError(t, err)
	return rng
}

func TestGetBehaviourBotHashes(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	testsupport.CleanAllTables(db)

	// over the per-path limit
	testsupport.CreatePageViews(t, db, testsupport.PageView{Hash: "hash-a", Path: "/x", At: morning()}, 21)
	// exactly at the per-path limit
	testsupport.CreatePageViews(t, db, testsupport.PageView{Hash: "hash-b", Path: "/x", At: morning()}, 20)
	// over the daily total, never more than 10 on one path
	for i := 0; i < 101; i++ {
		testsupport.CreatePageView(t, db, testsupport.PageView{Hash: "hash-c", Path: fmt.Sprintf("/p/%d", i%11), At: morning()})
	}
	// exactly at the daily total
	for i := 0; i < 100; i++ {
		testsupport.CreatePageView(t, db, testsupport.PageView{Hash: "hash-d", Path: fmt.Sprintf("/p/%d", i%10), At: morning()})
	}
	// hammering yesterday only
	testsupport.CreatePageViews(t, db, testsupport.PageView{Hash: "hash-e", Path: "/x", At: morning().AddDate(0, 0, -1)}, 30)

	hashes, err := analytics.GetBehaviourBotHashes(context.Background(), db, todayRange(t), analytics.DefaultBotThresholds())
	require.NoError(t, err)
	assert.Equal(t, []string{"hash-a", "hash-c"}, hashes)

	t.Run("thresholds are independent", func(t *testing.T) {
		th := analytics.BotThresholds{MaxHitsPerPathPerDay: 1000, MaxHitsTotalPerDay: 100}
		hashes, err := analytics.GetBehaviourBotHashes(context.Background(), db, todayRange(t), th)
		require.NoError(t, err)
		assert.Equal(t, []string{"hash-c"}, hashes)
	})

	t.Run("counts per day across a longer window", func(t *testing.T) {
		rng, err := timeframe.GetPeriodBoundaries(timeframe.PeriodWeek, fixedNow)
		require.NoError(t, err)

		hashes, err := analytics.GetBehaviourBotHashes(context.Background(), db, rng, analytics.DefaultBotThresholds())
		require.NoError(t, err)
		assert.Equal(t, []string{"hash-a", "hash-c", "hash-e"}, hashes)
	})
}

func TestGetBehaviourBotHashesGroupsByLocalDay(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	testsupport.CleanAllTables(db)

	now := time.Date(2024, 6, 15, 23, 50, 0, 0, time.Local)
	today := timeframe.StartOfDay(now)

	// one visitor day: just after local midnight and just before the next
	testsupport.CreatePageViews(t, db, testsupport.PageView{Hash: "same-day", Path: "/x", At: today.Add(10 * time.Minute)}, 11)
	testsupport.CreatePageViews(t, db, testsupport.PageView{Hash: "same-day", Path: "/x", At: today.Add(23*time.Hour + 30*time.Minute)}, 11)

	// two visitor days either side of local midnight, under the limit on each
	testsupport.CreatePageViews(t, db, testsupport.PageView{Hash: "two-days", Path: "/y", At: today.Add(-10 * time.Minute)}, 15)
	testsupport.CreatePageViews(t, db, testsupport.PageView{Hash: "two-days", Path: "/y", At: today.Add(10 * time.Minute)}, 15)

	rng := timeframe.PeriodRange{Start: today.AddDate(0, 0, -1), End: now}
	hashes, err := analytics.GetBehaviourBotHashes(context.Background(), db, rng, analytics.DefaultBotThresholds())
	require.NoError(t, err)
	assert.Equal(t, []string{"same-day"}, hashes)
}

func TestGetBehaviourBotHashesEmpty(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	testsupport.CleanAllTables(db)

	hashes, err := analytics.GetBehaviourBotHashes(context.Background(), db, todayRange(t), analytics.DefaultBotThresholds())
	require.NoError(t, err)
	assert.NotNil(t, hashes)
	assert.Empty(t, hashes)
}
