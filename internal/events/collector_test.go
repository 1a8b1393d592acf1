package events_test

import (
	"context"
	"testing"
	"time"

	"sitepulse/internal/events"
	"sitepulse/internal/testsupport"
	"sitepulse/internal/visitors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type fakeGeo map[string]string

func (g fakeGeo) Country(ip string) string {
	return g[ip]
}

func newTestCollector(t *testing.T, geo events.CountryResolver) (*events.Collector, *events.Queue, *recordingWriter, time.Time) {
	t.Helper()
	writer := &recordingWriter{}
	q := events.NewQueue(writer, testsupport.GetLogger())
	c := events.NewCollector(q, "test-salt", geo, testsupport.GetLogger())
	now := time.Date(2025, 12, 30, 14, 30, 0, 0, time.Local)
	c.SetClock(func() time.Time { return now })
	return c, q, writer, now
}

func TestCollectorPageView(t *testing.T) {
	c, q, writer, now := newTestCollector(t, fakeGeo{"203.0.113.7": "DE"})

	hash, err := c.PageView(events.PageViewInput{
		RequestInfo: events.RequestInfo{IPAddress: "203.0.113.7", UserAgent: chromeUA},
		Path:        "posts/hello?utm_source=x#top",
		Referrer:    "https://news.ycombinator.com/",
		Props:       map[string]any{"theme": "dark"},
	})
	require.NoError(t, err)
	assert.Equal(t, visitors.VisitorHash("203.0.113.7", chromeUA, "test-salt", now), hash)

	require.NoError(t, q.Flush(context.Background()))
	require.Len(t, writer.batches[0], 1)
	ev := writer.batches[0][0]

	assert.Equal(t, hash, ev.VisitorHash)
	assert.Equal(t, events.EventTypePageView, ev.EventType)
	assert.Equal(t, "/posts/hello", ev.Path)
	require.NotNil(t, ev.IP)
	assert.Equal(t, "203.0.113.0", *ev.IP)
	require.NotNil(t, ev.Country)
	assert.Equal(t, "DE", *ev.Country, "falls back to GeoIP without a header")
	require.NotNil(t, ev.Browser)
	assert.Equal(t, "Chrome", *ev.Browser)
	require.NotNil(t, ev.DeviceType)
	assert.Equal(t, "desktop", *ev.DeviceType)
	assert.False(t, ev.IsBot)
	require.NotNil(t, ev.Props)
	assert.JSONEq(t, `{"theme":"dark"}`, *ev.Props)
}

func TestCollectorCountryHeaderWins(t *testing.T) {
	c, _, _, _ := newTestCollector(t, fakeGeo{"203.0.113.7": "DE"})

	assert.Equal(t, "GB", c.ResolveCountry(events.RequestInfo{IPAddress: "203.0.113.7", Country: "gb"}))
	assert.Equal(t, "DE", c.ResolveCountry(events.RequestInfo{IPAddress: "203.0.113.7", Country: "XX"}))
	assert.Equal(t, "", c.ResolveCountry(events.RequestInfo{IPAddress: "198.51.100.1"}))
}

func TestCollectorCustomEvent(t *testing.T) {
	c, q, _, _ := newTestCollector(t, nil)

	_, err := c.PageView(events.PageViewInput{
		RequestInfo: events.RequestInfo{IPAddress: "10.0.0.1", UserAgent: chromeUA},
		Path:        "/pricing",
		EventName:   "plan_selected",
	})
	require.NoError(t, err)

	recent := q.RecentPageViews(1)
	require.Len(t, recent, 1)
	assert.Equal(t, events.EventTypeCustom, recent[0].EventType)
	require.NotNil(t, recent[0].EventName)
	assert.Equal(t, "plan_selected", *recent[0].EventName)
	assert.Nil(t, recent[0].Country)
}

func TestCollectorBotIsStillQueued(t *testing.T) {
	c, q, _, _ := newTestCollector(t, nil)

	_, err := c.PageView(events.PageViewInput{
		RequestInfo: events.RequestInfo{IPAddress: "66.249.66.1", UserAgent: "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"},
		Path:        "/",
	})
	require.NoError(t, err)

	recent := q.RecentPageViews(1)
	require.Len(t, recent, 1)
	assert.True(t, recent[0].IsBot)
}

func TestCollectorClick(t *testing.T) {
	c, q, writer, _ := newTestCollector(t, nil)

	_, err := c.Click(events.ClickInput{
		RequestInfo:  events.RequestInfo{IPAddress: "10.0.0.1", UserAgent: chromeUA},
		EventName:    "copy_code",
		EventContext: map[string]any{"language": "go"},
		Path:         "/posts/x",
	})
	require.NoError(t, err)
	require.NoError(t, q.Flush(context.Background()))

	require.Len(t, writer.clicks[0], 1)
	click := writer.clicks[0][0]
	assert.Equal(t, "copy_code", click.EventName)
	require.NotNil(t, click.EventContext)
	assert.JSONEq(t, `{"language":"go"}`, *click.EventContext)
}

func TestCollectorValidation(t *testing.T) {
	c, q, _, _ := newTestCollector(t, nil)

	_, err := c.PageView(events.PageViewInput{Path: "  "})
	assert.Error(t, err)

	_, err = c.Click(events.ClickInput{Path: "/"})
	assert.Error(t, err)

	_, err = c.Click(events.ClickInput{EventName: "cta"})
	assert.Error(t, err)

	assert.Equal(t, events.Pending{}, q.Pending())
}
