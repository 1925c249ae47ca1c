package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/tess1o/geopulse-sub001/internal/metrics"
	"github.com/tess1o/geopulse-sub001/internal/models"
)

// RangeClass is where a requested range sits relative to today (UTC)
type RangeClass string

// RangeClass constants
const (
	RangePastOnly   RangeClass = "PAST_ONLY"
	RangeMixed      RangeClass = "MIXED"
	RangeFutureOnly RangeClass = "FUTURE_ONLY"
)

// Classify places [start, end) relative to the UTC day containing now
func Classify(now, start, end time.Time) (RangeClass, error) {
	if end.Before(start) {
		return "", fmt.Errorf("%w: end %s is before start %s", ErrInvalidRange, end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	todayStart := models.DayStart(now)
	tomorrowStart := todayStart.AddDate(0, 0, 1)

	switch {
	case !end.After(todayStart):
		return RangePastOnly, nil
	case !start.Before(tomorrowStart):
		return RangeFutureOnly, nil
	default:
		return RangeMixed, nil
	}
}

// TaskStore is the subset of task persistence the service needs
type TaskStore interface {
	TaskCreator
	CountActive(ctx context.Context, priority models.TaskPriority) (int64, error)
}

// QueueStatus summarises pending background work
type QueueStatus struct {
	HighPending         int64 `json:"highPending"`
	LowPending          int64 `json:"lowPending"`
	Draining            bool  `json:"draining"`
	InvalidationPending int   `json:"invalidationPending"`
	InvalidationFailed  int64 `json:"invalidationFailed"`
}

// TimelineService is the entry point for timeline reads and regeneration requests
type TimelineService struct {
	past      *PastRangeHandler
	mixed     *MixedHandler
	events    *EventStore
	processor RangeGenerator
	queue     *InvalidationQueue
	tasks     TaskStore
	logger    *slog.Logger
	now       func() time.Time
}

// NewTimelineService creates a new timeline service
func NewTimelineService(past *PastRangeHandler, mixed *MixedHandler, events *EventStore, processor RangeGenerator, queue *InvalidationQueue, tasks TaskStore, logger *slog.Logger) *TimelineService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TimelineService{
		past:      past,
		mixed:     mixed,
		events:    events,
		processor: processor,
		queue:     queue,
		tasks:     tasks,
		logger:    logger.With("component", "timeline_service"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// GetTimeline returns the user's timeline for [start, end)
func (s *TimelineService) GetTimeline(ctx context.Context, userID string, start, end time.Time) (*models.TimelineSnapshot, error) {
	start, end = start.UTC(), end.UTC()
	now := s.now()

	class, err := Classify(now, start, end)
	if err != nil {
		return nil, err
	}

	timer := time.Now()
	var snapshot *models.TimelineSnapshot
	switch class {
	case RangeFutureOnly:
		snapshot = models.NewSnapshot(userID, models.DataSourceLive, now)
	case RangePastOnly:
		snapshot, err = s.past.Handle(ctx, userID, start, end)
	default:
		snapshot, err = s.mixed.Handle(ctx, userID, start, end)
	}
	if err != nil {
		return nil, err
	}

	metrics.TimelineRequests.WithLabelValues(string(class), string(snapshot.DataSource)).Inc()
	s.logger.Debug("timeline served",
		"user_id", userID,
		"class", class,
		"source", snapshot.DataSource,
		"stays", len(snapshot.Stays),
		"trips", len(snapshot.Trips),
		"gaps", len(snapshot.DataGaps),
		"took", time.Since(timer))
	return snapshot, nil
}

// ForceRegenerate discards the cached past portion of [start, end),
// rebuilds it from raw GPS and returns the fresh timeline
func (s *TimelineService) ForceRegenerate(ctx context.Context, userID string, start, end time.Time) (*models.TimelineSnapshot, error) {
	start, end = start.UTC(), end.UTC()
	if _, err := Classify(s.now(), start, end); err != nil {
		return nil, err
	}

	pastEnd := minTime(end, models.DayStart(s.now()))
	if pastEnd.After(start) {
		if err := s.events.DeleteTimelineData(ctx, userID, start, pastEnd); err != nil {
			return nil, err
		}
		if err := s.processor.GenerateRange(ctx, userID, start, pastEnd); err != nil {
			if !errors.Is(err, ErrDetectionFailed) {
				return nil, err
			}
			s.logger.Warn("forced regeneration degraded", "user_id", userID, "error", err)
		}
	}
	return s.GetTimeline(ctx, userID, start, end)
}

// EnqueueHighPriority schedules one HIGH priority task covering every given
// day and flags the cached events of those days as stale
func (s *TimelineService) EnqueueHighPriority(ctx context.Context, userID string, dates []time.Time) (*models.RegenerationTask, error) {
	if len(dates) == 0 {
		return nil, fmt.Errorf("%w: no dates given", ErrInvalidRange)
	}
	days := make([]time.Time, len(dates))
	for i, d := range dates {
		days[i] = models.DayStart(d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	start := days[0]
	end := days[len(days)-1].AddDate(0, 0, 1)
	if _, err := s.events.MarkStale(ctx, userID, start, end); err != nil {
		return nil, err
	}
	return s.createTask(ctx, userID, start, end, models.PriorityHigh)
}

// EnqueueLowPriority schedules a LOW priority task for the whole days
// touched by [start, end)
func (s *TimelineService) EnqueueLowPriority(ctx context.Context, userID string, start, end time.Time) (*models.RegenerationTask, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("%w: empty range", ErrInvalidRange)
	}
	dayStart := models.DayStart(start)
	dayEnd := models.DayStart(end)
	if dayEnd.Before(end) {
		dayEnd = dayEnd.AddDate(0, 0, 1)
	}
	return s.createTask(ctx, userID, dayStart, dayEnd, models.PriorityLow)
}

func (s *TimelineService) createTask(ctx context.Context, userID string, start, end time.Time, priority models.TaskPriority) (*models.RegenerationTask, error) {
	now := s.now()
	task := &models.RegenerationTask{
		UserID:    userID,
		StartDate: start,
		EndDate:   end,
		Priority:  priority,
		Status:    models.TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, err
	}
	s.logger.Info("regeneration task queued",
		"task_id", task.ID,
		"user_id", userID,
		"priority", priority,
		"start", start.Format(dateLayout),
		"end", end.Format(dateLayout))
	return task, nil
}

// QueueStatus reports pending background work
func (s *TimelineService) QueueStatus(ctx context.Context) (*QueueStatus, error) {
	high, err := s.tasks.CountActive(ctx, models.PriorityHigh)
	if err != nil {
		return nil, err
	}
	low, err := s.tasks.CountActive(ctx, models.PriorityLow)
	if err != nil {
		return nil, err
	}
	return &QueueStatus{
		HighPending:         high,
		LowPending:          low,
		Draining:            s.queue.IsDraining(),
		InvalidationPending: s.queue.Len(),
		InvalidationFailed:  s.queue.FailedCount(),
	}, nil
}

// PublishLocationChange hands a favorite change to the invalidation queue
func (s *TimelineService) PublishLocationChange(ctx context.Context, event models.LocationChangeEvent) error {
	return s.queue.Publish(ctx, event)
}
