package seeder_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitepulse/internal/analytics"
	"sitepulse/internal/events"
	"sitepulse/internal/seeder"
	"sitepulse/internal/testsupport"
	"sitepulse/internal/timeframe"
)

func TestSeederRun(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	testsupport.CleanAllTables(db)

	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	s := seeder.NewSeeder(db, testsupport.GetLogger(), "test-salt", 200).WithSeed(7)

	result, err := s.Run(context.Background(), now)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, result.PageViews, 50)
	assert.Equal(t, 190, result.BotHits)

	var stored int64
	require.NoError(t, db.Model(&events.AnalyticsEvent{}).Count(&stored).Error)
	assert.Equal(t, int64(result.PageViews+result.BotHits), stored)

	var clicks int64
	require.NoError(t, db.Model(&events.ClickEvent{}).Count(&clicks).Error)
	assert.Equal(t, int64(result.Clicks), clicks)

	t.Run("scrapers are caught by the behavioural filter", func(t *testing.T) {
		rng, err := timeframe.GetPeriodBoundaries(timeframe.PeriodToday, now)
		require.NoError(t, err)

		hashes, err := analytics.GetBehaviourBotHashes(context.Background(), db, rng, analytics.DefaultBotThresholds())
		require.NoError(t, err)
		assert.Len(t, hashes, 2)
	})
}

func TestSeederRunHonoursCancellation(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := seeder.NewSeeder(db, testsupport.GetLogger(), "salt", 100).Run(ctx, time.Now())
	assert.ErrorIs(t, err, context.Canceled)
}
