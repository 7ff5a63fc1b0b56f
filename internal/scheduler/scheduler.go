// Package scheduler polls the task table once a minute and launches due
// tasks. Due-ness is computed from each task's cron expression and its last
// recorded run; only the single next slot is considered, so downtime does
// not produce a backlog of catch-up runs.
package scheduler

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"cronhub/internal/async"
	"cronhub/internal/logging"
	"cronhub/internal/store"
)

const (
	defaultInterval      = 60 * time.Second
	defaultMaxConcurrent = 5
)

// TaskSource supplies the schedulable tasks and their run history.
type TaskSource interface {
	ListTasks(ctx context.Context, filter store.TaskFilter) ([]*store.Task, error)
	LastRunTime(ctx context.Context, taskID string) (time.Time, bool, error)
}

// TaskRunner executes one task to completion.
type TaskRunner interface {
	Execute(ctx context.Context, taskID string) (*store.Execution, error)
}

// Metrics receives scheduler lifecycle events. All methods must be cheap.
type Metrics interface {
	TickCompleted(launched int)
	TaskStarted()
	TaskFinished(status string)
}

type nopMetrics struct{}

func (nopMetrics) TickCompleted(int)   {}
func (nopMetrics) TaskStarted()        {}
func (nopMetrics) TaskFinished(string) {}

// Scheduler is the polling loop. One instance per process.
type Scheduler struct {
	source   TaskSource
	runner   TaskRunner
	logger   logging.Logger
	metrics  Metrics
	interval time.Duration
	sem      *semaphore.Weighted

	mu      sync.Mutex
	running map[string]struct{}
	active  bool

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// Options tunes the loop. Zero values use defaults.
type Options struct {
	Interval      time.Duration
	MaxConcurrent int
	Metrics       Metrics
}

// New creates a scheduler. Call Start to begin polling.
func New(source TaskSource, runner TaskRunner, logger logging.Logger, opts Options) *Scheduler {
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	maxConcurrent := opts.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Scheduler{
		source:   source,
		runner:   runner,
		logger:   logging.OrNop(logger),
		metrics:  metrics,
		interval: interval,
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		running:  make(map[string]struct{}),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the polling loop in a background goroutine until Stop is called
// or ctx is cancelled. The first tick fires after one interval.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Scheduler started: interval=%s", s.interval)
	s.mu.Lock()
	s.active = true
	s.mu.Unlock()
	async.Go(s.logger, "scheduler-loop", func() {
		defer close(s.done)
		defer func() {
			s.mu.Lock()
			s.active = false
			s.mu.Unlock()
		}()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case now := <-ticker.C:
				s.Tick(ctx, now)
			}
		}
	})
}

// Stop halts the loop and waits for it to exit. Running tasks finish on
// their own; Stop does not interrupt them.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
	s.logger.Info("Scheduler stopped")
}

// IsRunning reports whether the polling loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Running returns the IDs of tasks currently executing.
func (s *Scheduler) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.running))
	for id := range s.running {
		ids = append(ids, id)
	}
	return ids
}

// Tick scans for due tasks at the given instant and launches them. Exported
// with an explicit clock so tests drive it directly.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	enabled := true
	tasks, err := s.source.ListTasks(ctx, store.TaskFilter{Enabled: &enabled, Scheduled: true})
	if err != nil {
		s.logger.Error("Scheduler: list tasks: %v", err)
		return
	}

	launched := 0
	for _, task := range tasks {
		due, err := s.isDue(ctx, task, now)
		if err != nil {
			s.logger.Error("Scheduler: due check for %s: %v", task.ID, err)
			continue
		}
		if !due {
			continue
		}
		if s.launch(ctx, task) {
			launched++
		}
	}
	s.metrics.TickCompleted(launched)
}

// isDue computes whether the task's next cron slot after its reference point
// has arrived. The reference is the last run's start time, or the current
// minute for tasks that never ran. Considering only one slot means slots
// missed during downtime are skipped rather than replayed.
func (s *Scheduler) isDue(ctx context.Context, task *store.Task, now time.Time) (bool, error) {
	schedule, err := store.ParseCron(task.Schedule)
	if err != nil {
		return false, err
	}

	lastRun, hasRun, err := s.source.LastRunTime(ctx, task.ID)
	if err != nil {
		return false, err
	}

	base := now.Truncate(time.Minute)
	if hasRun {
		base = lastRun
	}
	next := schedule.Next(base)
	if next.After(now) {
		return false, nil
	}
	if hasRun && !next.After(lastRun) {
		return false, nil
	}
	return true, nil
}

// launch starts the task in the background unless it is already running.
// Returns whether a goroutine was started.
func (s *Scheduler) launch(ctx context.Context, task *store.Task) bool {
	s.mu.Lock()
	if _, active := s.running[task.ID]; active {
		s.mu.Unlock()
		s.logger.Debug("Scheduler: task %s still running, skipping", task.ID)
		return false
	}
	s.running[task.ID] = struct{}{}
	s.mu.Unlock()

	s.logger.Info("Scheduler: launching task %s (%s)", task.Name, task.ID)
	async.Go(s.logger, "task-"+task.ID, func() {
		// The running set must shrink no matter how execution ends.
		defer func() {
			s.mu.Lock()
			delete(s.running, task.ID)
			s.mu.Unlock()
		}()

		if err := s.sem.Acquire(ctx, 1); err != nil {
			s.logger.Warn("Scheduler: task %s not started: %v", task.ID, err)
			return
		}
		defer s.sem.Release(1)

		s.metrics.TaskStarted()
		record, err := s.runner.Execute(ctx, task.ID)
		if err != nil {
			s.logger.Error("Scheduler: task %s failed to execute: %v", task.ID, err)
			s.metrics.TaskFinished("error")
			return
		}
		s.metrics.TaskFinished(string(record.Status))
	})
	return true
}
