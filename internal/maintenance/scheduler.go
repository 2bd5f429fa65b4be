// Package maintenance runs housekeeping jobs on a cron schedule.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/starford/openme/internal/metrics"
)

// DefaultSchedule runs jobs every minute.
const DefaultSchedule = "* * * * *"

// retryDelay is how long the loop waits after a schedule error.
const retryDelay = 30 * time.Second

// Job is a named housekeeping task.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Scheduler runs its jobs sequentially at every tick of a cron expression.
type Scheduler struct {
	expr   string
	jobs   []Job
	logger *slog.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time

	mu      sync.Mutex
	running bool
}

// ValidSchedule reports whether expr is a cron expression gronx accepts.
func ValidSchedule(expr string) bool {
	return gronx.New().IsValid(expr)
}

// New creates a Scheduler. An empty expr uses DefaultSchedule.
func New(expr string, logger *slog.Logger, jobs ...Job) (*Scheduler, error) {
	if expr == "" {
		expr = DefaultSchedule
	}
	if !ValidSchedule(expr) {
		return nil, fmt.Errorf("maintenance: invalid schedule %q", expr)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		expr:   expr,
		jobs:   jobs,
		logger: logger,
		now:    time.Now,
		after:  time.After,
	}, nil
}

// Next returns the first tick strictly after from.
func (s *Scheduler) Next(from time.Time) (time.Time, error) {
	return gronx.NextTickAfter(s.expr, from, false)
}

// Run blocks until ctx is done, running every job at each tick.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("maintenance: started", slog.String("schedule", s.expr), slog.Int("jobs", len(s.jobs)))
	defer s.logger.Info("maintenance: stopped")

	for {
		now := s.now()
		next, err := s.Next(now)
		if err != nil {
			s.logger.Error("maintenance: next tick failed", slog.String("schedule", s.expr), slog.String("error", err.Error()))
			select {
			case <-s.after(retryDelay):
				continue
			case <-ctx.Done():
				return nil
			}
		}

		select {
		case <-s.after(next.Sub(now)):
			s.RunNow(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

// RunNow runs every job once. A tick that arrives while a run is in progress
// is skipped.
func (s *Scheduler) RunNow(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	for _, job := range s.jobs {
		if ctx.Err() != nil {
			return
		}
		err := job.Run(ctx)
		metrics.RecordMaintenance(job.Name, err == nil)
		if err != nil {
			s.logger.Warn("maintenance: job failed", slog.String("job", job.Name), slog.String("error", err.Error()))
		}
	}
}
