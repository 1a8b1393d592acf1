package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"sitepulse/internal/metrics"
)

type scheduledJob struct {
	job      Job
	interval time.Duration
	ticker   *time.Ticker
}

// Scheduler runs each job on its own ticker. A job never overlaps with
// itself; a tick that arrives while the previous run is in progress is skipped.
type Scheduler struct {
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	enabled   bool
	isRunning bool
	jobs      []*scheduledJob

	mu sync.Mutex
	wg sync.WaitGroup

	// Mutex to prevent concurrent executions of the same job
	processingMutex sync.Mutex
	processing      map[string]bool
}

func NewScheduler(logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		enabled:    true,
		processing: make(map[string]bool),
	}
}

// Add registers job to run every interval. Jobs added after Start are not
// run, and a job with a non-positive interval is not registered at all.
func (s *Scheduler) Add(job Job, interval time.Duration) {
	if interval <= 0 {
		s.logger.Error("Refusing to schedule job with non-positive interval",
			slog.String("job", job.Name()),
			slog.Duration("interval", interval))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, &scheduledJob{job: job, interval: interval})
}

// Jobs returns the names of registered jobs.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for _, j := range s.jobs {
		names = append(names, j.job.Name())
	}
	return names
}

// executeJobSafely runs a job only if the same job is not already executing
func (s *Scheduler) executeJobSafely(job Job) {
	name := job.Name()

	s.processingMutex.Lock()
	if s.processing[name] {
		s.logger.Debug("Skipping job execution - previous run still in progress", slog.String("job", name))
		s.processingMutex.Unlock()
		return
	}
	s.processing[name] = true
	s.processingMutex.Unlock()

	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", name),
				slog.Any("panic", r))
		}

		s.processingMutex.Lock()
		s.processing[name] = false
		s.processingMutex.Unlock()
	}()

	err := job.Run(s.ctx)
	metrics.RecordJob(name, time.Since(started), err)
	if err != nil {
		s.logger.Error("Error executing job", slog.String("job", name), slog.Any("error", err))
	}
}

// Start begins all background jobs.
// Implements cartridge.BackgroundWorker interface.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled {
		s.logger.Info("Background jobs are disabled.")
		return nil
	}

	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return nil
	}

	s.logger.Info("Starting background jobs...", slog.Int("jobs", len(s.jobs)))
	s.isRunning = true

	for _, j := range s.jobs {
		s.startJob(j)
	}

	return nil
}

func (s *Scheduler) startJob(j *scheduledJob) {
	s.logger.Info("Starting job", slog.String("job", j.job.Name()), slog.Duration("interval", j.interval))
	j.ticker = time.NewTicker(j.interval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.executeJobSafely(j.job)

		for {
			select {
			case <-j.ticker.C:
				s.executeJobSafely(j.job)
			case <-s.ctx.Done():
				s.logger.Info("Job stopped", slog.String("job", j.job.Name()))
				return
			}
		}
	}()
}

// Stop halts all background jobs and waits for running ones to return.
// Implements cartridge.BackgroundWorker interface.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.enabled = false
		s.mu.Unlock()
		return
	}

	s.logger.Info("Stopping background jobs...")
	s.enabled = false
	for _, j := range s.jobs {
		if j.ticker != nil {
			j.ticker.Stop()
		}
	}
	s.cancel()
	s.isRunning = false
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Background jobs stopped")
}

// IsRunning returns whether jobs are currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// RunNow executes the named job once, outside its schedule.
func (s *Scheduler) RunNow(name string) bool {
	s.mu.Lock()
	var target Job
	for _, j := range s.jobs {
		if j.job.Name() == name {
			target = j.job
			break
		}
	}
	s.mu.Unlock()

	if target == nil {
		return false
	}
	s.executeJobSafely(target)
	return true
}
