package jobs

import (
	"context"
	"log/slog"
	"time"

	"sitepulse/internal/sessions"
)

// SessionSweepJob drops live sessions that stopped sending heartbeats.
type SessionSweepJob struct {
	tracker *sessions.Tracker
	timeout time.Duration
	logger  *slog.Logger
}

func NewSessionSweepJob(tracker *sessions.Tracker, timeout time.Duration, logger *slog.Logger) *SessionSweepJob {
	return &SessionSweepJob{tracker: tracker, timeout: timeout, logger: logger}
}

func (j *SessionSweepJob) Name() string { return "session_sweep" }

func (j *SessionSweepJob) Run(ctx context.Context) error {
	if removed := j.tracker.RemoveStale(j.timeout); removed > 0 {
		j.logger.Debug("Removed stale sessions", slog.Int("removed", removed), slog.Int("active", j.tracker.Len()))
	}
	return nil
}
