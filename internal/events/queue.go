package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"sitepulse/internal/metrics"
)

// DefaultFlushInterval is used when no interval is configured.
const DefaultFlushInterval = 5 * time.Second

// BatchWriter persists one drained batch atomically.
type BatchWriter interface {
	WriteBatch(ctx context.Context, pageViews []AnalyticsEvent, clicks []ClickEvent) error
}

// ReferrerFilter decides whether a referrer must be dropped before queueing.
type ReferrerFilter interface {
	IsBlockedReferrer(referrer string) bool
}

// Pending holds the number of buffered events per queue.
type Pending struct {
	PageViews int `json:"page_views"`
	Clicks    int `json:"clicks"`
}

// Queue buffers events in memory and writes them in batches on a timer.
//
// Flushes are best effort: a batch whose write fails is logged and dropped,
// never retried.
type Queue struct {
	writer   BatchWriter
	filter   ReferrerFilter
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	// Buffers, guarded by mu
	mu        sync.Mutex
	pageViews []AnalyticsEvent
	clicks    []ClickEvent

	// Serialises flushes so batches reach the store in drain order
	flushMu sync.Mutex

	// Timer state, guarded by timerMu
	timerMu   sync.Mutex
	isRunning bool
	ticker    *time.Ticker
	cancel    context.CancelFunc
	done      chan struct{}
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithFlushInterval sets the timer period. Non-positive values are ignored.
func WithFlushInterval(d time.Duration) QueueOption {
	return func(q *Queue) {
		if d > 0 {
			q.interval = d
		}
	}
}

// WithReferrerFilter drops blocked referrers from queued page views.
func WithReferrerFilter(f ReferrerFilter) QueueOption {
	return func(q *Queue) {
		q.filter = f
	}
}

// WithClock overrides the clock used to stamp CreatedAt.
func WithClock(now func() time.Time) QueueOption {
	return func(q *Queue) {
		q.now = now
	}
}

// NewQueue creates a stopped queue writing to writer.
func NewQueue(writer BatchWriter, logger *slog.Logger, opts ...QueueOption) *Queue {
	q := &Queue{
		writer:   writer,
		logger:   logger,
		interval: DefaultFlushInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// QueuePageView appends ev to the page view buffer. It never blocks on I/O
// and never fails. CreatedAt is stamped here, and a referrer on the block
// list is cleared.
func (q *Queue) QueuePageView(ev AnalyticsEvent) {
	ev.CreatedAt = q.now().UnixMilli()
	if ev.Referrer != nil && q.filter != nil && q.filter.IsBlockedReferrer(*ev.Referrer) {
		ev.Referrer = nil
		metrics.BlockedReferrers.Inc()
	}

	q.mu.Lock()
	q.pageViews = append(q.pageViews, ev)
	depth := len(q.pageViews)
	q.mu.Unlock()

	metrics.EventsQueued.WithLabelValues(metrics.KindPageView).Inc()
	metrics.QueueDepth.WithLabelValues(metrics.KindPageView).Set(float64(depth))
}

// QueueClickEvent appends ev to the click buffer. Same guarantees as QueuePageView.
func (q *Queue) QueueClickEvent(ev ClickEvent) {
	ev.CreatedAt = q.now().UnixMilli()

	q.mu.Lock()
	q.clicks = append(q.clicks, ev)
	depth := len(q.clicks)
	q.mu.Unlock()

	metrics.EventsQueued.WithLabelValues(metrics.KindClick).Inc()
	metrics.QueueDepth.WithLabelValues(metrics.KindClick).Set(float64(depth))
}

// Pending returns the number of buffered events.
func (q *Queue) Pending() Pending {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Pending{PageViews: len(q.pageViews), Clicks: len(q.clicks)}
}

// RecentPageViews returns a copy of up to n of the newest unflushed page
// views, oldest first.
func (q *Queue) RecentPageViews(n int) []AnalyticsEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n <= 0 || n > len(q.pageViews) {
		n = len(q.pageViews)
	}
	recent := make([]AnalyticsEvent, n)
	copy(recent, q.pageViews[len(q.pageViews)-n:])
	return recent
}

// drain swaps both buffers out. Events queued afterwards go to the next flush.
func (q *Queue) drain() ([]AnalyticsEvent, []ClickEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()

	pageViews, clicks := q.pageViews, q.clicks
	q.pageViews, q.clicks = nil, nil

	metrics.QueueDepth.WithLabelValues(metrics.KindPageView).Set(0)
	metrics.QueueDepth.WithLabelValues(metrics.KindClick).Set(0)
	return pageViews, clicks
}

// Flush writes everything buffered as one batch. With nothing buffered it
// does not touch the store. A failed batch is logged, counted and discarded;
// the error is returned for callers that want to report it.
func (q *Queue) Flush(ctx context.Context) error {
	q.flushMu.Lock()
	defer q.flushMu.Unlock()

	pageViews, clicks := q.drain()
	if len(pageViews) == 0 && len(clicks) == 0 {
		return nil
	}

	batchID := uuid.NewString()
	start := time.Now()
	err := q.writer.WriteBatch(ctx, pageViews, clicks)
	duration := time.Since(start)
	metrics.RecordFlush(len(pageViews), len(clicks), duration, err)

	if err != nil {
		q.logger.Error("Failed to flush analytics batch, events discarded",
			slog.String("batch_id", batchID),
			slog.Int("page_views", len(pageViews)),
			slog.Int("clicks", len(clicks)),
			slog.Any("error", err))
		return fmt.Errorf("flush batch %s: %w", batchID, err)
	}

	q.logger.Debug("Flushed analytics batch",
		slog.String("batch_id", batchID),
		slog.Int("page_views", len(pageViews)),
		slog.Int("clicks", len(clicks)),
		slog.Duration("duration", duration))
	return nil
}

// StartFlushTimer starts periodic flushing. Calling it while running is a no-op.
func (q *Queue) StartFlushTimer() {
	q.timerMu.Lock()
	defer q.timerMu.Unlock()

	if q.isRunning {
		q.logger.Debug("Flush timer already running")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	q.ticker = time.NewTicker(q.interval)
	q.cancel = cancel
	q.done = make(chan struct{})
	q.isRunning = true

	go q.run(ctx, q.ticker, q.done)

	q.logger.Info("Flush timer started", slog.Duration("interval", q.interval))
}

func (q *Queue) run(ctx context.Context, ticker *time.Ticker, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ticker.C:
			// Not bound to ctx: stopping must not abort a write in progress.
			q.flushSafely(context.Background())
		case <-ctx.Done():
			return
		}
	}
}

func (q *Queue) flushSafely(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("Panic recovered in flush timer", slog.Any("panic", r))
		}
	}()
	// Errors are already logged and counted by Flush.
	_ = q.Flush(ctx)
}

// StopFlushTimer stops periodic flushing and flushes once more so the
// buffered events are not lost on shutdown. Calling it while stopped is a no-op.
func (q *Queue) StopFlushTimer() {
	q.timerMu.Lock()
	defer q.timerMu.Unlock()

	if !q.isRunning {
		return
	}

	q.ticker.Stop()
	q.cancel()
	<-q.done
	q.isRunning = false

	q.flushSafely(context.Background())
	q.logger.Info("Flush timer stopped")
}

// IsRunning reports whether the flush timer is active.
func (q *Queue) IsRunning() bool {
	q.timerMu.Lock()
	defer q.timerMu.Unlock()
	return q.isRunning
}

// Start implements cartridge.BackgroundWorker.
func (q *Queue) Start() error {
	q.StartFlushTimer()
	return nil
}

// Stop implements cartridge.BackgroundWorker.
func (q *Queue) Stop() {
	q.StopFlushTimer()
}
