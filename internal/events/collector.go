package events

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"sitepulse/internal/pkg/user_agent"
	"sitepulse/internal/visitors"
)

// CountryResolver maps an IP address to an ISO country code, "" if unknown.
type CountryResolver interface {
	Country(ipAddress string) string
}

// RequestInfo carries the request facts needed to attribute an event.
type RequestInfo struct {
	IPAddress string
	UserAgent string
	Country   string // from a CDN geo header, may be empty
}

// PageViewInput describes a page view or a named custom event.
type PageViewInput struct {
	RequestInfo
	Path      string
	Referrer  string
	EventName string
	Props     map[string]any
}

// ClickInput describes a click on a tracked element.
type ClickInput struct {
	RequestInfo
	EventName    string
	EventContext map[string]any
	Path         string
}

// Collector enriches request facts into events and queues them.
type Collector struct {
	queue  *Queue
	salt   string
	geo    CountryResolver
	logger *slog.Logger
	now    func() time.Time
}

// NewCollector creates a Collector. geo may be nil.
func NewCollector(queue *Queue, salt string, geo CountryResolver, logger *slog.Logger) *Collector {
	return &Collector{
		queue:  queue,
		salt:   salt,
		geo:    geo,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock overrides the clock used for visitor hash rotation.
func (c *Collector) SetClock(now func() time.Time) {
	c.now = now
}

// VisitorHash returns the daily visitor hash for a request.
func (c *Collector) VisitorHash(req RequestInfo) string {
	return visitors.VisitorHash(req.IPAddress, req.UserAgent, c.salt, c.now())
}

// ResolveCountry prefers the geo header and falls back to the GeoIP database.
func (c *Collector) ResolveCountry(req RequestInfo) string {
	if code := normaliseCountry(req.Country); code != "" {
		return code
	}
	if c.geo == nil {
		return ""
	}
	return normaliseCountry(c.geo.Country(req.IPAddress))
}

// PageView queues a page view, or a custom event when EventName is set.
// It returns the visitor hash the event was attributed to.
func (c *Collector) PageView(input PageViewInput) (string, error) {
	path := normalisePath(input.Path)
	if path == "" {
		return "", fmt.Errorf("path is required")
	}

	hash := c.VisitorHash(input.RequestInfo)
	ua := user_agent.ParseUserAgent(input.UserAgent)

	ev := AnalyticsEvent{
		VisitorHash: hash,
		EventType:   EventTypePageView,
		Path:        path,
		Referrer:    StringPtr(strings.TrimSpace(input.Referrer)),
		UserAgent:   input.UserAgent,
		IP:          StringPtr(visitors.AnonymiseIP(input.IPAddress)),
		Country:     StringPtr(c.ResolveCountry(input.RequestInfo)),
		Browser:     StringPtr(ua.Browser),
		DeviceType:  StringPtr(ua.DeviceType),
		OS:          StringPtr(ua.OS),
		IsBot:       ua.IsBot,
	}
	if input.EventName != "" {
		ev.EventType = EventTypeCustom
		ev.EventName = StringPtr(input.EventName)
	}
	if len(input.Props) > 0 {
		props, err := json.Marshal(input.Props)
		if err != nil {
			c.logger.Warn("Dropping unencodable event props", slog.Any("error", err))
		} else {
			ev.Props = StringPtr(string(props))
		}
	}

	c.queue.QueuePageView(ev)
	return hash, nil
}

// Click queues a click event and returns the visitor hash.
func (c *Collector) Click(input ClickInput) (string, error) {
	name := strings.TrimSpace(input.EventName)
	if name == "" {
		return "", fmt.Errorf("event name is required")
	}
	path := normalisePath(input.Path)
	if path == "" {
		return "", fmt.Errorf("path is required")
	}

	hash := c.VisitorHash(input.RequestInfo)
	ev := ClickEvent{
		EventName:   name,
		VisitorHash: hash,
		Path:        path,
	}
	if len(input.EventContext) > 0 {
		eventContext, err := json.Marshal(input.EventContext)
		if err != nil {
			c.logger.Warn("Dropping unencodable click context", slog.Any("error", err))
		} else {
			ev.EventContext = StringPtr(string(eventContext))
		}
	}

	c.queue.QueueClickEvent(ev)
	return hash, nil
}

// normalisePath trims the query string and fragment and ensures a leading slash.
func normalisePath(path string) string {
	path = strings.TrimSpace(path)
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return ""
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

// normaliseCountry accepts two letter codes only. XX and T1 are the
// unknown and Tor markers some CDNs send.
func normaliseCountry(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 2 || code == "XX" || code == "T1" {
		return ""
	}
	return code
}
