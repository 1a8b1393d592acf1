package events

// EventType distinguishes page views from named custom events.
type EventType string

const (
	EventTypePageView EventType = "page_view"
	EventTypeCustom   EventType = "custom"
)

// AnalyticsEvent is a page view or custom event, queued in memory and then
// persisted to analytics_events. CreatedAt is epoch milliseconds stamped at
// enqueue time.
type AnalyticsEvent struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	VisitorHash string    `gorm:"index:idx_analytics_events_visitor_created;size:16;not null"`
	EventType   EventType `gorm:"size:16;not null;default:page_view"`
	EventName   *string
	Path        string `gorm:"index;not null"`
	Referrer    *string
	UserAgent   string
	IP          *string
	Country     *string `gorm:"size:2"`
	Browser     *string
	DeviceType  *string
	OS          *string
	IsBot       bool    `gorm:"not null;default:false"`
	Props       *string `gorm:"type:text"`
	CreatedAt   int64   `gorm:"index;index:idx_analytics_events_visitor_created;not null;autoCreateTime:false"`
}

// TableName overrides the table name used by AnalyticsEvent to `analytics_events`
func (AnalyticsEvent) TableName() string {
	return "analytics_events"
}

// ClickEvent is a named click on a tracked element, persisted to click_events.
type ClickEvent struct {
	ID           uint    `gorm:"primaryKey;autoIncrement"`
	EventName    string  `gorm:"index;not null"`
	EventContext *string `gorm:"type:text"`
	VisitorHash  string  `gorm:"index;size:16;not null"`
	Path         string  `gorm:"index;not null"`
	CreatedAt    int64   `gorm:"index;not null;autoCreateTime:false"`
}

// TableName overrides the table name used by ClickEvent to `click_events`
func (ClickEvent) TableName() string {
	return "click_events"
}

// StringPtr returns nil for an empty string and a pointer to s otherwise.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
