package service

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tess1o/geopulse-sub001/internal/metrics"
	"github.com/tess1o/geopulse-sub001/internal/models"
	"github.com/tess1o/geopulse-sub001/internal/repository"
)

// SchedulerConfig tunes the background regeneration loops
type SchedulerConfig struct {
	InvalidationInterval time.Duration
	HighPriorityInterval time.Duration
	LowPriorityInterval  time.Duration
	CleanupInterval      time.Duration
	RetryDelay           time.Duration
	MaxRetries           int
	BatchSize            int
	Retention            time.Duration
}

// DefaultSchedulerConfig returns the scheduler defaults
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		InvalidationInterval: 5 * time.Second,
		HighPriorityInterval: 10 * time.Second,
		LowPriorityInterval:  time.Minute,
		CleanupInterval:      time.Hour,
		RetryDelay:           5 * time.Minute,
		MaxRetries:           3,
		BatchSize:            10,
		Retention:            7 * 24 * time.Hour,
	}
}

// RegenerationScheduler drains persisted regeneration tasks and the
// invalidation queue on independent periodic loops
type RegenerationScheduler struct {
	tasks     *repository.RegenerationTaskRepository
	events    *EventStore
	processor RangeGenerator
	queue     *InvalidationQueue
	cfg       SchedulerConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewRegenerationScheduler creates a new scheduler
func NewRegenerationScheduler(tasks *repository.RegenerationTaskRepository, events *EventStore, processor RangeGenerator, queue *InvalidationQueue, cfg SchedulerConfig, logger *slog.Logger) *RegenerationScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultSchedulerConfig().BatchSize
	}
	return &RegenerationScheduler{
		tasks:     tasks,
		events:    events,
		processor: processor,
		queue:     queue,
		cfg:       cfg,
		logger:    logger.With("component", "regeneration_scheduler"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run starts the four loops and blocks until ctx is done
func (s *RegenerationScheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.every(ctx, s.cfg.InvalidationInterval, "invalidation", func(ctx context.Context) error {
			_, err := s.queue.Drain(ctx)
			return err
		})
	})
	g.Go(func() error {
		return s.every(ctx, s.cfg.HighPriorityInterval, "high_priority", func(ctx context.Context) error {
			_, err := s.DrainHigh(ctx)
			return err
		})
	})
	g.Go(func() error {
		return s.every(ctx, s.cfg.LowPriorityInterval, "low_priority", func(ctx context.Context) error {
			_, err := s.DrainLow(ctx)
			return err
		})
	})
	g.Go(func() error {
		return s.every(ctx, s.cfg.CleanupInterval, "cleanup", func(ctx context.Context) error {
			_, err := s.Sweep(ctx)
			return err
		})
	})

	s.logger.Info("regeneration scheduler started")
	err := g.Wait()
	s.logger.Info("regeneration scheduler stopped")
	return err
}

// every runs fn on a ticker. Errors are logged, never fatal to the loop.
func (s *RegenerationScheduler) every(ctx context.Context, interval time.Duration, name string, fn func(context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				s.logger.Error("background loop iteration failed", "loop", name, "error", err)
			}
		}
	}
}

// DrainHigh processes a batch of HIGH priority tasks
func (s *RegenerationScheduler) DrainHigh(ctx context.Context) (int, error) {
	return s.drain(ctx, models.PriorityHigh)
}

// DrainLow processes a batch of LOW priority tasks. It does nothing while
// any HIGH priority task is pending.
func (s *RegenerationScheduler) DrainLow(ctx context.Context) (int, error) {
	high, err := s.tasks.CountActive(ctx, models.PriorityHigh)
	if err != nil {
		return 0, err
	}
	if high > 0 {
		s.logger.Debug("skipping low priority drain, high priority work pending", "high_pending", high)
		return 0, nil
	}
	return s.drain(ctx, models.PriorityLow)
}

func (s *RegenerationScheduler) drain(ctx context.Context, priority models.TaskPriority) (int, error) {
	tasks, err := s.tasks.ListRunnable(ctx, priority, s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	processed := 0
	for i := range tasks {
		if ctx.Err() != nil {
			break
		}
		ran, err := s.ProcessTask(ctx, &tasks[i])
		if err != nil {
			return processed, err
		}
		if ran {
			processed++
		}
	}
	return processed, nil
}

// ProcessTask claims and runs one task. It returns false when the task was
// skipped because another attempt is still within its retry delay or was
// claimed elsewhere. Regeneration failures are recorded on the task; only
// storage failures updating the task itself are returned.
func (s *RegenerationScheduler) ProcessTask(ctx context.Context, task *models.RegenerationTask) (bool, error) {
	now := s.now()
	if task.Status == models.TaskStatusProcessing && task.StartedAt != nil && now.Sub(*task.StartedAt) < s.cfg.RetryDelay {
		return false, nil
	}

	claimed, err := s.tasks.Claim(ctx, task.ID, now, now.Add(-s.cfg.RetryDelay))
	if err != nil {
		return false, err
	}
	if !claimed {
		return false, nil
	}

	log := s.logger.With("task_id", task.ID, "user_id", task.UserID, "priority", task.Priority)
	log.Info("processing regeneration task",
		"start", task.StartDate.Format(dateLayout), "end", task.EndDate.Format(dateLayout), "retry", task.RetryCount)

	if runErr := s.regenerate(ctx, task); runErr != nil {
		retries := task.RetryCount + 1
		status := models.TaskStatusPending
		outcome := "retry"
		if retries >= s.cfg.MaxRetries {
			status = models.TaskStatusFailed
			outcome = "failed"
		}
		metrics.RegenerationTasks.WithLabelValues(string(task.Priority), outcome).Inc()
		log.Warn("regeneration task failed", "retry_count", retries, "status", status, "error", runErr)
		return true, s.tasks.MarkRetry(ctx, task.ID, retries, status, runErr.Error(), s.now())
	}

	metrics.RegenerationTasks.WithLabelValues(string(task.Priority), "completed").Inc()
	log.Info("regeneration task completed")
	return true, s.tasks.MarkCompleted(ctx, task.ID, s.now())
}

// regenerate rebuilds the task's range in one bulk pass. Today is never
// persisted, so the range is clipped at the start of the current day.
func (s *RegenerationScheduler) regenerate(ctx context.Context, task *models.RegenerationTask) error {
	start := task.StartDate
	end := minTime(task.EndDate, models.DayStart(s.now()))
	if !end.After(start) {
		return nil
	}

	if err := s.events.DeleteTimelineData(ctx, task.UserID, start, end); err != nil {
		return err
	}
	return s.processor.GenerateRange(ctx, task.UserID, start, end)
}

// Sweep deletes finished tasks older than the retention window
func (s *RegenerationScheduler) Sweep(ctx context.Context) (int64, error) {
	deleted, err := s.tasks.DeleteFinishedBefore(ctx, s.now().Add(-s.cfg.Retention))
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.logger.Info("removed finished regeneration tasks", "count", deleted)
	}
	return deleted, nil
}
