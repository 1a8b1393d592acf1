// Package v1_test contains tests for the API v1 handlers
package v1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "sitepulse/api/v1"
	"sitepulse/internal/events"
	"sitepulse/internal/pipeline"
	"sitepulse/internal/testsupport"
)

const readerUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func setupApp(t *testing.T) (*fiber.App, *pipeline.Pipeline) {
	t.Helper()
	db := testsupport.SetupTestDB(t)
	testsupport.CleanAllTables(db)
	p := testsupport.NewTestPipeline(t, db)
	return testsupport.CreateMinimalTestApp(t, db, p), p
}

func post(t *testing.T, app *fiber.App, path string, payload any) *http.Response {
	t.Helper()

	var body io.Reader = http.NoBody
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}

	req := httptest.NewRequest("POST", path, body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", readerUA)
	req.Header.Set("X-Forwarded-For", "198.51.100.23")

	resp, err := app.Test(req, 30000)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out), "body: %s", body)
	return out
}

func TestTrackPageViewHandler(t *testing.T) {
	t.Run("queues a page view", func(t *testing.T) {
		app, p := setupApp(t)

		resp := post(t, app, "/api/v1/track/pageview", map[string]any{
			"path":     "/blog/hello-world",
			"referrer": "https://news.ycombinator.com/",
		})
		require.Equal(t, http.StatusAccepted, resp.StatusCode)

		body := decode(t, resp)
		assert.Equal(t, "Event queued", body["message"])
		assert.Len(t, body["visitor_hash"], 16)
		assert.Equal(t, events.Pending{PageViews: 1}, p.Queue.Pending())

		require.NoError(t, p.Queue.Flush(context.Background()))

		var stored events.AnalyticsEvent
		require.NoError(t, p.DB.First(&stored).Error)
		assert.Equal(t, "/blog/hello-world", stored.Path)
		assert.Equal(t, events.EventTypePageView, stored.EventType)
		assert.Equal(t, body["visitor_hash"], stored.VisitorHash)
		require.NotNil(t, stored.Browser)
		assert.Equal(t, "Chrome", *stored.Browser)
	})

	t.Run("records a custom event", func(t *testing.T) {
		app, p := setupApp(t)

		resp := post(t, app, "/api/v1/track/pageview", map[string]any{
			"path":       "/pricing",
			"event_name": "signup",
			"props":      map[string]any{"plan": "pro"},
		})
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
		require.NoError(t, p.Queue.Flush(context.Background()))

		var stored events.AnalyticsEvent
		require.NoError(t, p.DB.First(&stored).Error)
		assert.Equal(t, events.EventTypeCustom, stored.EventType)
		require.NotNil(t, stored.EventName)
		assert.Equal(t, "signup", *stored.EventName)
	})

	t.Run("rejects a missing path", func(t *testing.T) {
		app, p := setupApp(t)

		resp := post(t, app, "/api/v1/track/pageview", map[string]any{"referrer": "https://example.com"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "path is required", decode(t, resp)["error"])
		assert.Equal(t, events.Pending{}, p.Queue.Pending())
	})

	t.Run("rejects malformed json", func(t *testing.T) {
		app, _ := setupApp(t)

		req := httptest.NewRequest("POST", "/api/v1/track/pageview", bytes.NewBufferString("{not json"))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req, 30000)
		require.NoError(t, err)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "Invalid request", decode(t, resp)["error"])
	})
}

func TestTrackClickHandler(t *testing.T) {
	app, p := setupApp(t)

	resp := post(t, app, "/api/v1/track/click", map[string]any{
		"event_name":    "copy_code",
		"event_context": map[string]any{"language": "go"},
		"path":          "/blog/hello-world",
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, events.Pending{Clicks: 1}, p.Queue.Pending())

	require.NoError(t, p.Queue.Flush(context.Background()))

	var stored events.ClickEvent
	require.NoError(t, p.DB.First(&stored).Error)
	assert.Equal(t, "copy_code", stored.EventName)
	assert.Equal(t, "/blog/hello-world", stored.Path)

	resp = post(t, app, "/api/v1/track/click", map[string]any{"path": "/x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "event_name is required", decode(t, resp)["error"])
}

func TestHeartbeatAndLive(t *testing.T) {
	app, p := setupApp(t)

	resp := post(t, app, "/api/v1/heartbeat", map[string]any{
		"session_id": "s1",
		"path":       "/a",
		"country":    "gb",
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = post(t, app, "/api/v1/heartbeat", map[string]any{"session_id": "s2", "path": "/b"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	session, ok := p.Tracker.Get("s1")
	require.True(t, ok)
	assert.Equal(t, "GB", session.Country)
	assert.Equal(t, "Chrome", session.Browser)
	assert.Equal(t, "desktop", session.DeviceType)

	req := httptest.NewRequest("GET", "/api/v1/live?path=/a", nil)
	liveResp, err := app.Test(req, 30000)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, liveResp.StatusCode)

	var live v1.LiveResponse
	body, err := io.ReadAll(liveResp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, &live))

	assert.Equal(t, 2, live.ActiveVisitors)
	assert.Equal(t, 1, live.PathViewers)
	assert.Equal(t, 2, live.Breakdown.ActiveVisitors)

	resp = post(t, app, "/api/v1/heartbeat", map[string]any{"session_id": "s3"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 2, p.Tracker.Len())
}

func getLive(t *testing.T, app *fiber.App) v1.LiveResponse {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/live", nil), 30000)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var live v1.LiveResponse
	require.NoError(t, json.Unmarshal(body, &live), "body: %s", body)
	return live
}

func TestLiveShowsQueuedPageViews(t *testing.T) {
	app, p := setupApp(t)

	for _, path := range []string{"/first", "/second"} {
		resp := post(t, app, "/api/v1/track/pageview", map[string]any{"path": path})
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
	}

	live := getLive(t, app)
	assert.Equal(t, events.Pending{PageViews: 2}, live.Pending)
	require.Len(t, live.Recent, 2)
	assert.Equal(t, "/second", live.Recent[0].Path)
	assert.Equal(t, "/first", live.Recent[1].Path)
	assert.False(t, live.Recent[0].At.IsZero())

	body, err := json.Marshal(live)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "visitor_hash")

	require.NoError(t, p.Queue.Flush(context.Background()))

	live = getLive(t, app)
	assert.Equal(t, events.Pending{}, live.Pending)
	assert.Empty(t, live.Recent)
}

func TestSessionEndHandler(t *testing.T) {
	t.Run("explicit session id", func(t *testing.T) {
		app, p := setupApp(t)
		p.Tracker.Heartbeat("s1", "/a", nil)

		resp := post(t, app, "/api/v1/session/end", map[string]any{"session_id": "s1"})
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, 0, p.Tracker.Len())
	})

	t.Run("empty beacon body falls back to visitor hash", func(t *testing.T) {
		app, p := setupApp(t)

		resp := post(t, app, "/api/v1/heartbeat", map[string]any{"path": "/a"})
		require.Equal(t, http.StatusNoContent, resp.StatusCode)
		require.Equal(t, 1, p.Tracker.Len())

		resp = post(t, app, "/api/v1/session/end", nil)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, 0, p.Tracker.Len())
	})
}

func TestCORSPreflight(t *testing.T) {
	app, _ := setupApp(t)

	req := httptest.NewRequest("OPTIONS", "/api/v1/track/pageview", nil)
	req.Header.Set("Origin", "https://scottspence.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := app.Test(req, 30000)
	require.NoError(t, err)

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
