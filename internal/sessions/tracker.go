// Package sessions tracks which visitors are on the site right now, fed by
// client heartbeats. Nothing here is persisted.
package sessions

import (
	"sort"
	"sync"
	"time"

	"sitepulse/internal/metrics"
)

// Metadata is optional visitor detail sent with a heartbeat. Empty fields
// mean "not provided" and leave the stored value untouched.
type Metadata struct {
	Country    string `json:"country,omitempty"`
	Browser    string `json:"browser,omitempty"`
	DeviceType string `json:"device_type,omitempty"`
}

// Session is the live state of one visitor.
type Session struct {
	VisitorHash string    `json:"-"`
	Path        string    `json:"path"`
	Country     string    `json:"country,omitempty"`
	Browser     string    `json:"browser,omitempty"`
	DeviceType  string    `json:"device_type,omitempty"`
	PathViews   int       `json:"path_views"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`

	seq uint64
}

// Count is one row of a dimension breakdown.
type Count struct {
	Key      string `json:"key"`
	Visitors int    `json:"visitors"`
}

// PathCount is one row of the path breakdown.
type PathCount struct {
	Path     string `json:"path"`
	Views    int    `json:"views"`
	Visitors int    `json:"visitors"`
}

// Breakdown summarises all live sessions.
type Breakdown struct {
	ActiveVisitors int         `json:"active_visitors"`
	Countries      []Count     `json:"countries"`
	Browsers       []Count     `json:"browsers"`
	Devices        []Count     `json:"devices"`
	Paths          []PathCount `json:"paths"`
}

// Tracker holds live sessions keyed by visitor hash. Expiry is driven by
// the caller through RemoveStale.
type Tracker struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	nextSeq  uint64
	now      func() time.Time
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// SetClock overrides the clock used for LastSeen.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// Heartbeat records that visitorHash is on path. With nil meta the previous
// country, browser and device type are kept; otherwise each non-empty field
// replaces the stored one. The path is always replaced.
func (t *Tracker) Heartbeat(visitorHash, path string, meta *Metadata) {
	if visitorHash == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	s, ok := t.sessions[visitorHash]
	if !ok {
		t.nextSeq++
		s = &Session{VisitorHash: visitorHash, FirstSeen: now, seq: t.nextSeq}
		t.sessions[visitorHash] = s
	}

	if s.Path != path {
		s.Path = path
		s.PathViews = 0
	}
	s.PathViews++
	s.LastSeen = now

	if meta != nil {
		if meta.Country != "" {
			s.Country = meta.Country
		}
		if meta.Browser != "" {
			s.Browser = meta.Browser
		}
		if meta.DeviceType != "" {
			s.DeviceType = meta.DeviceType
		}
	}

	metrics.LiveSessions.Set(float64(len(t.sessions)))
}

// RemoveSession deletes a session. Missing hashes are ignored.
func (t *Tracker) RemoveSession(visitorHash string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.sessions, visitorHash)
	metrics.LiveSessions.Set(float64(len(t.sessions)))
}

// RemoveStale drops sessions not seen within olderThan and returns how many
// were removed.
func (t *Tracker) RemoveStale(olderThan time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-olderThan)
	removed := 0
	for hash, s := range t.sessions {
		if s.LastSeen.Before(cutoff) {
			delete(t.sessions, hash)
			removed++
		}
	}

	metrics.LiveSessions.Set(float64(len(t.sessions)))
	metrics.StaleSessionsRemoved.Add(float64(removed))
	return removed
}

// Get returns a copy of the session for visitorHash.
func (t *Tracker) Get(visitorHash string) (Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.sessions[visitorHash]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Len returns the number of live sessions.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// PathViewerCount returns the number of sessions currently on path.
func (t *Tracker) PathViewerCount(path string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	count := 0
	for _, s := range t.sessions {
		if s.Path == path {
			count++
		}
	}
	return count
}

// Breakdown counts live sessions per country, browser, device type and
// path. Rows are ordered by count descending; ties keep the order in which
// the key was first seen, oldest session first. Sessions without a value
// for a dimension are left out of that dimension only.
func (t *Tracker) Breakdown() Breakdown {
	ordered := t.snapshot()

	countries := newCounter()
	browsers := newCounter()
	devices := newCounter()
	paths := newCounter()
	pathViews := make(map[string]int)

	for _, s := range ordered {
		countries.add(s.Country)
		browsers.add(s.Browser)
		devices.add(s.DeviceType)
		paths.add(s.Path)
		pathViews[s.Path] += s.PathViews
	}

	pathRows := make([]PathCount, 0, len(paths.keys))
	for _, row := range paths.rows() {
		pathRows = append(pathRows, PathCount{Path: row.Key, Views: pathViews[row.Key], Visitors: row.Visitors})
	}

	return Breakdown{
		ActiveVisitors: len(ordered),
		Countries:      countries.rows(),
		Browsers:       browsers.rows(),
		Devices:        devices.rows(),
		Paths:          pathRows,
	}
}

// snapshot copies all sessions in insertion order.
func (t *Tracker) snapshot() []Session {
	t.mu.RLock()
	out := make([]Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, *s)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// counter counts keys, remembering first-seen order.
type counter struct {
	keys   []string
	counts map[string]int
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

func (c *counter) add(key string) {
	if key == "" {
		return
	}
	if _, seen := c.counts[key]; !seen {
		c.keys = append(c.keys, key)
	}
	c.counts[key]++
}

func (c *counter) rows() []Count {
	rows := make([]Count, 0, len(c.keys))
	for _, k := range c.keys {
		rows = append(rows, Count{Key: k, Visitors: c.counts[k]})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Visitors > rows[j].Visitors })
	return rows
}
