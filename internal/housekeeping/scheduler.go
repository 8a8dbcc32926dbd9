package housekeeping

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Job is one periodic background task.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs jobs once on start and then on their intervals.
type Scheduler struct {
	jobs   []Job
	logger *slog.Logger
}

// Handle owns a started scheduler. Stop cancels every job and waits for
// in-flight runs to return.
type Handle struct {
	cancel context.CancelFunc
	group  *errgroup.Group
	once   sync.Once
	err    error
}

// NewScheduler constructs a Scheduler. Jobs with a non-positive interval run
// only once.
func NewScheduler(logger *slog.Logger, jobs ...Job) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{jobs: jobs, logger: logger.With("component", "scheduler")}
}

// Start launches every job. Job errors are logged and never stop the loop.
func (s *Scheduler) Start(ctx context.Context) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(ctx)
	for _, job := range s.jobs {
		group.Go(func() error {
			s.loop(groupCtx, job)
			return nil
		})
	}
	return &Handle{cancel: cancel, group: group}
}

// Stop cancels the jobs and blocks until they exit. It is safe to call more
// than once.
func (h *Handle) Stop() error {
	if h == nil {
		return nil
	}
	h.once.Do(func() {
		h.cancel()
		h.err = h.group.Wait()
	})
	return h.err
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	s.runOnce(ctx, job)
	if job.Interval <= 0 {
		return
	}

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, job)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	if ctx.Err() != nil {
		return
	}
	started := time.Now()
	if err := job.Run(ctx); err != nil {
		if ctx.Err() != nil {
			s.logger.Debug("job interrupted", "job", job.Name, "error", err)
			return
		}
		s.logger.Error("job failed", "job", job.Name, "error", err, "duration", time.Since(started))
		return
	}
	s.logger.Debug("job finished", "job", job.Name, "duration", time.Since(started))
}
