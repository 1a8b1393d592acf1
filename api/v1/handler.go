package v1

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"sitepulse/internal/events"
	"sitepulse/internal/pipeline"
	"sitepulse/internal/pkg/user_agent"
	"sitepulse/internal/sessions"
)

const (
	msgEventQueued    = "Event queued"
	errInvalidRequest = "Invalid request"

	// recentViewsLimit caps the unflushed page views shown on /live.
	recentViewsLimit = 10
)

// PageViewRequest is the body of POST /api/v1/track/pageview. A non-empty
// event_name records a custom event instead of a page view.
type PageViewRequest struct {
	Path      string         `json:"path" validate:"required,max=2048"`
	Referrer  string         `json:"referrer" validate:"omitempty,max=2048"`
	EventName string         `json:"event_name" validate:"omitempty,max=128"`
	Props     map[string]any `json:"props"`
}

// ClickRequest is the body of POST /api/v1/track/click.
type ClickRequest struct {
	EventName    string         `json:"event_name" validate:"required,max=128"`
	EventContext map[string]any `json:"event_context"`
	Path         string         `json:"path" validate:"required,max=2048"`
}

// HeartbeatRequest is the body of POST /api/v1/heartbeat. Without a
// session_id the visitor hash of the request identifies the session.
type HeartbeatRequest struct {
	SessionID  string `json:"session_id" validate:"omitempty,max=64"`
	Path       string `json:"path" validate:"required,max=2048"`
	Country    string `json:"country" validate:"omitempty,len=2"`
	Browser    string `json:"browser" validate:"omitempty,max=64"`
	DeviceType string `json:"device_type" validate:"omitempty,oneof=desktop mobile tablet bot"`
}

// SessionEndRequest is the body of POST /api/v1/session/end.
type SessionEndRequest struct {
	SessionID string `json:"session_id" validate:"omitempty,max=64"`
}

// RecentView is a page view still waiting in the queue. Visitor hashes are
// not exposed.
type RecentView struct {
	Path    string    `json:"path"`
	Country string    `json:"country,omitempty"`
	At      time.Time `json:"at"`
}

// LiveResponse is returned by GET /api/v1/live.
type LiveResponse struct {
	ActiveVisitors int                `json:"active_visitors"`
	PathViewers    int                `json:"path_viewers"`
	Breakdown      sessions.Breakdown `json:"breakdown"`
	Pending        events.Pending     `json:"pending"`
	Recent         []RecentView       `json:"recent"`
}

// Handlers serves the public tracking API from one Pipeline.
type Handlers struct {
	p *pipeline.Pipeline
}

func NewHandlers(p *pipeline.Pipeline) *Handlers {
	return &Handlers{p: p}
}

// TrackPageViewHandler queues a page view or custom event.
func (h *Handlers) TrackPageViewHandler(ctx *cartridge.Context) error {
	var req PageViewRequest
	if err := parseBody(ctx.Ctx, &req); err != nil {
		ctx.Logger.Debug("Rejected page view", slog.Any("error", err))
		return handleError(ctx.Ctx, err)
	}

	hash, err := h.p.Collector.PageView(events.PageViewInput{
		RequestInfo: requestInfo(ctx.Ctx, h.p.Config.CountryHeader),
		Path:        req.Path,
		Referrer:    req.Referrer,
		EventName:   req.EventName,
		Props:       req.Props,
	})
	if err != nil {
		return handleError(ctx.Ctx, fiber.NewError(http.StatusBadRequest, err.Error()))
	}

	return ctx.Status(http.StatusAccepted).JSON(fiber.Map{
		"message":      msgEventQueued,
		"visitor_hash": hash,
	})
}

// TrackClickHandler queues a click event.
func (h *Handlers) TrackClickHandler(ctx *cartridge.Context) error {
	var req ClickRequest
	if err := parseBody(ctx.Ctx, &req); err != nil {
		ctx.Logger.Debug("Rejected click", slog.Any("error", err))
		return handleError(ctx.Ctx, err)
	}

	hash, err := h.p.Collector.Click(events.ClickInput{
		RequestInfo:  requestInfo(ctx.Ctx, h.p.Config.CountryHeader),
		EventName:    req.EventName,
		EventContext: req.EventContext,
		Path:         req.Path,
	})
	if err != nil {
		return handleError(ctx.Ctx, fiber.NewError(http.StatusBadRequest, err.Error()))
	}

	return ctx.Status(http.StatusAccepted).JSON(fiber.Map{
		"message":      msgEventQueued,
		"visitor_hash": hash,
	})
}

// HeartbeatHandler marks the visitor as live on a path. Metadata the client
// does not send is derived from the request.
func (h *Handlers) HeartbeatHandler(ctx *cartridge.Context) error {
	var req HeartbeatRequest
	if err := parseBody(ctx.Ctx, &req); err != nil {
		return handleError(ctx.Ctx, err)
	}

	info := requestInfo(ctx.Ctx, h.p.Config.CountryHeader)
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = h.p.Collector.VisitorHash(info)
	}

	meta := &sessions.Metadata{
		Country:    strings.ToUpper(req.Country),
		Browser:    req.Browser,
		DeviceType: req.DeviceType,
	}
	if meta.Country == "" {
		meta.Country = h.p.Collector.ResolveCountry(info)
	}
	if meta.Browser == "" || meta.DeviceType == "" {
		ua := user_agent.ParseUserAgent(info.UserAgent)
		if meta.Browser == "" {
			meta.Browser = ua.Browser
		}
		if meta.DeviceType == "" {
			meta.DeviceType = ua.DeviceType
		}
	}

	h.p.Tracker.Heartbeat(sessionID, req.Path, meta)
	return ctx.SendStatus(http.StatusNoContent)
}

// SessionEndHandler removes the visitor's live session.
func (h *Handlers) SessionEndHandler(ctx *cartridge.Context) error {
	var req SessionEndRequest
	// sendBeacon may post an empty body
	if len(ctx.Body()) > 0 {
		if err := parseBody(ctx.Ctx, &req); err != nil {
			return handleError(ctx.Ctx, err)
		}
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = h.p.Collector.VisitorHash(requestInfo(ctx.Ctx, h.p.Config.CountryHeader))
	}

	h.p.Tracker.RemoveSession(sessionID)
	return ctx.SendStatus(http.StatusNoContent)
}

// recentViews lists queued page views newest first.
func recentViews(queued []events.AnalyticsEvent) []RecentView {
	views := make([]RecentView, 0, len(queued))
	for i := len(queued) - 1; i >= 0; i-- {
		ev := queued[i]
		view := RecentView{Path: ev.Path, At: time.UnixMilli(ev.CreatedAt).UTC()}
		if ev.Country != nil {
			view.Country = *ev.Country
		}
		views = append(views, view)
	}
	return views
}

// LiveHandler reports who is on the site now. With ?path= it also counts the
// visitors currently on that path.
func (h *Handlers) LiveHandler(ctx *cartridge.Context) error {
	breakdown := h.p.Tracker.Breakdown()
	resp := LiveResponse{
		ActiveVisitors: breakdown.ActiveVisitors,
		Breakdown:      breakdown,
		Pending:        h.p.Queue.Pending(),
		Recent:         recentViews(h.p.Queue.RecentPageViews(recentViewsLimit)),
	}
	if path := ctx.Query("path"); path != "" {
		resp.PathViewers = h.p.Tracker.PathViewerCount(path)
	}
	return ctx.JSON(resp)
}
