package agent_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitepulse/internal/agent"
	"sitepulse/internal/analytics"
	"sitepulse/internal/testsupport"
)

func TestValidateReadOnlyQuery(t *testing.T) {
	t.Run("allows valid SELECT queries", func(t *testing.T) {
		valid := []string{
			"SELECT * FROM analytics_events",
			"select * from analytics_events",
			"SELECT path, COUNT(*) FROM analytics_events GROUP BY path",
			"SELECT * FROM analytics_daily WHERE bucket >= '2024-01-01'",
			"SELECT * FROM analytics_events WHERE path = '/delete-account'",
			"SELECT * FROM analytics_events WHERE path LIKE '%update%'",
			"WITH v AS (SELECT visitor_hash FROM analytics_events) SELECT COUNT(*) FROM v",
			"SELECT 1;",
		}

		for _, q := range valid {
			assert.NoError(t, agent.ValidateReadOnlyQuery(q), q)
		}
	})

	t.Run("blocks non-SELECT queries", func(t *testing.T) {
		invalid := []string{
			"INSERT INTO analytics_events VALUES (1, 2, 3)",
			"UPDATE analytics_events SET path = '/'",
			"DELETE FROM analytics_events",
			"DROP TABLE analytics_events",
			"CREATE TABLE evil (id INT)",
			"ALTER TABLE analytics_events ADD COLUMN evil TEXT",
		}

		for _, q := range invalid {
			assert.Error(t, agent.ValidateReadOnlyQuery(q), q)
		}
	})

	t.Run("blocks comments and stacked statements", func(t *testing.T) {
		invalid := []string{
			"SELECT * FROM analytics_events /* comment */",
			"SELECT * FROM analytics_events -- comment",
			"SELECT 1; SELECT 2;",
			"SELECT * FROM analytics_events;\nDELETE FROM click_events",
			"SELECT * FROM analytics_events;\tDROP TABLE click_events",
		}

		for _, q := range invalid {
			assert.Error(t, agent.ValidateReadOnlyQuery(q), q)
		}
	})

	t.Run("blocks SQLite dangerous functions", func(t *testing.T) {
		invalid := []string{
			"SELECT load_extension('evil.so')",
			"SELECT writefile('/tmp/evil', 'data')",
			"SELECT readfile('/etc/passwd')",
			"PRAGMA table_info(analytics_events)",
			"ATTACH DATABASE '/tmp/evil.db' AS evil",
		}

		for _, q := range invalid {
			assert.Error(t, agent.ValidateReadOnlyQuery(q), q)
		}
	})
}

func TestExecuteQuery(t *testing.T) {
	db := testsupport.SetupTestDB(t)
	testsupport.CleanAllTables(db)

	testsupport.CreatePageViews(t, db, testsupport.PageView{Path: "/a"}, 3)
	testsupport.CreatePageView(t, db, testsupport.PageView{Path: "/b"})

	resp, err := agent.ExecuteQuery(context.Background(), db,
		"SELECT path, COUNT(*) AS views FROM analytics_events GROUP BY path ORDER BY views DESC", time.Second)
	require.NoError(t, err)

	assert.Equal(t, []string{"path", "views"}, resp.Columns)
	require.Equal(t, 2, resp.RowCount)
	assert.Equal(t, "/a", resp.Rows[0][0])
	assert.EqualValues(t, 3, resp.Rows[0][1])
	assert.False(t, resp.Truncated)

	_, err = agent.ExecuteQuery(context.Background(), db, "DELETE FROM analytics_events", time.Second)
	assert.Error(t, err)
}

func TestGetSchema(t *testing.T) {
	db := testsupport.SetupTestDB(t)

	schema, err := agent.GetSchema(context.Background(), db, analytics.BotThresholds{MaxHitsPerPathPerDay: 7, MaxHitsTotalPerDay: 70})
	require.NoError(t, err)

	assert.Contains(t, schema.Schema, "analytics_events")
	assert.Contains(t, schema.Schema, "analytics_daily")
	assert.Contains(t, schema.Concepts, "timestamps")
	assert.Contains(t, schema.Concepts["bots"], "more than 7 hits on one path or 70 hits")
	assert.NotContains(t, schema.Concepts["bots"], "20")
}
