package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tess1o/geopulse-sub001/internal/metrics"
	"github.com/tess1o/geopulse-sub001/internal/models"
	"github.com/tess1o/geopulse-sub001/internal/spatial"
)

// DayRegenerator brings one cached day back in line with current inputs
type DayRegenerator interface {
	RegenerateDay(ctx context.Context, userID string, day time.Time) (Strategy, error)
}

// TaskCreator persists regeneration tasks
type TaskCreator interface {
	Create(ctx context.Context, task *models.RegenerationTask) error
}

// InvalidationConfig tunes the invalidation queue
type InvalidationConfig struct {
	MaxBatchSize int
	MaxRetries   int
	RetryDelay   time.Duration
	EventBuffer  int
}

// DefaultInvalidationConfig returns the queue defaults
func DefaultInvalidationConfig() InvalidationConfig {
	return InvalidationConfig{
		MaxBatchSize: 20,
		MaxRetries:   3,
		RetryDelay:   5 * time.Minute,
		EventBuffer:  64,
	}
}

// InvalidationItem is one (user, day) awaiting regeneration
type InvalidationItem struct {
	UserID     string
	Day        time.Time
	EnqueuedAt time.Time
	Attempts   int
	LastError  string
}

type dayKey struct {
	userID string
	day    int64
}

// InvalidationQueue holds deduplicated (user, day) keys whose cached
// timeline must be regenerated. Only one drain runs at a time.
type InvalidationQueue struct {
	mu    sync.Mutex
	items map[dayKey]*InvalidationItem
	order []dayKey

	events   chan models.LocationChangeEvent
	draining atomic.Bool
	failed   atomic.Int64

	store       *EventStore
	regenerator DayRegenerator
	tasks       TaskCreator
	cfg         InvalidationConfig
	logger      *slog.Logger
	now         func() time.Time
}

// NewInvalidationQueue creates a new invalidation queue. tasks may be nil,
// in which case items that exhaust their retries are only counted.
func NewInvalidationQueue(store *EventStore, regenerator DayRegenerator, tasks TaskCreator, cfg InvalidationConfig, logger *slog.Logger) *InvalidationQueue {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultInvalidationConfig().EventBuffer
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultInvalidationConfig().MaxBatchSize
	}
	return &InvalidationQueue{
		items:       map[dayKey]*InvalidationItem{},
		events:      make(chan models.LocationChangeEvent, cfg.EventBuffer),
		store:       store,
		regenerator: regenerator,
		tasks:       tasks,
		cfg:         cfg,
		logger:      logger.With("component", "invalidation_queue"),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// BatchSize returns how many items a drain pulls for a queue of length n
func BatchSize(n, maxBatch int) int {
	switch {
	case n <= 0:
		return 0
	case n <= 5:
		return 1
	case n <= 20:
		return minInt(5, maxBatch)
	case n <= 50:
		return minInt(10, maxBatch)
	default:
		return maxBatch
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Enqueue marks the cached events of each past day stale right away and
// queues the days for regeneration. Today and later are never cached and
// are skipped.
func (q *InvalidationQueue) Enqueue(ctx context.Context, userID string, days []time.Time) error {
	now := q.now()
	todayStart := models.DayStart(now)

	for _, d := range days {
		day := models.DayStart(d)
		if !day.Before(todayStart) {
			continue
		}
		if _, err := q.store.MarkStale(ctx, userID, day, day.Add(24*time.Hour)); err != nil {
			return fmt.Errorf("failed to mark %s stale: %w", day.Format(dateLayout), err)
		}

		key := dayKey{userID: userID, day: day.Unix()}
		q.mu.Lock()
		if _, exists := q.items[key]; !exists {
			q.items[key] = &InvalidationItem{UserID: userID, Day: day, EnqueuedAt: now}
			q.order = append(q.order, key)
		}
		q.mu.Unlock()
	}

	metrics.InvalidationQueueDepth.Set(float64(q.Len()))
	return nil
}

// ReportStale implements StaleReporter
func (q *InvalidationQueue) ReportStale(ctx context.Context, userID string, days []time.Time) error {
	return q.Enqueue(ctx, userID, days)
}

// Publish hands a location change to the queue's inbound channel
func (q *InvalidationQueue) Publish(ctx context.Context, event models.LocationChangeEvent) error {
	select {
	case q.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run consumes published location changes until ctx is done
func (q *InvalidationQueue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-q.events:
			if err := q.HandleLocationChange(ctx, event); err != nil {
				q.logger.Error("failed to handle location change",
					"type", event.Type, "favorite_id", event.FavoriteID, "error", err)
			}
		}
	}
}

// HandleLocationChange finds the stays a favorite change can affect and
// invalidates their days
func (q *InvalidationQueue) HandleLocationChange(ctx context.Context, event models.LocationChangeEvent) error {
	userID := event.UserID
	if userID == "" && event.Favorite != nil {
		userID = event.Favorite.UserID
	}

	var stays []models.Stay
	var err error
	switch event.Type {
	case models.LocationAdded:
		if event.Favorite == nil {
			return fmt.Errorf("location added event for favorite %d has no geometry", event.FavoriteID)
		}
		stays, err = q.staysInside(ctx, userID, *event.Favorite)
	case models.LocationRenamed, models.LocationDeleted:
		stays, err = q.store.FindStaysByFavorite(ctx, userID, event.FavoriteID)
	default:
		return fmt.Errorf("unknown location change type %q", event.Type)
	}
	if err != nil {
		return err
	}

	seen := map[time.Time]bool{}
	var days []time.Time
	for _, st := range stays {
		d := models.DayStart(st.StartTime)
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}

	q.logger.Info("location change invalidates days",
		"type", event.Type, "favorite_id", event.FavoriteID, "user_id", userID,
		"stays", len(stays), "days", len(days))
	return q.Enqueue(ctx, userID, days)
}

func (q *InvalidationQueue) staysInside(ctx context.Context, userID string, fav models.FavoriteLocation) ([]models.Stay, error) {
	b := FavoriteBounds(fav)
	candidates, err := q.store.FindStaysInBounds(ctx, userID, b.MinLat, b.MinLon, b.MaxLat, b.MaxLon)
	if err != nil {
		return nil, err
	}
	if fav.Type == models.FavoriteArea {
		return candidates, nil
	}

	var inside []models.Stay
	for _, st := range candidates {
		if spatial.WithinRadius(fav.Latitude, fav.Longitude, st.Latitude, st.Longitude, fav.RadiusMeters) {
			inside = append(inside, st)
		}
	}
	return inside, nil
}

// Drain regenerates one adaptively sized batch. It returns 0 without doing
// anything when another drain is already running.
func (q *InvalidationQueue) Drain(ctx context.Context) (int, error) {
	if !q.draining.CompareAndSwap(false, true) {
		return 0, nil
	}
	defer q.draining.Store(false)

	batch := q.takeBatch()
	for _, item := range batch {
		if err := ctx.Err(); err != nil {
			q.requeue(item)
			continue
		}

		strategy, err := q.regenerator.RegenerateDay(ctx, item.UserID, item.Day)
		if err == nil {
			metrics.InvalidationItems.WithLabelValues("ok", string(strategy)).Inc()
			continue
		}

		item.Attempts++
		item.LastError = err.Error()
		if item.Attempts >= q.cfg.MaxRetries {
			q.drop(ctx, item)
			continue
		}
		q.logger.Warn("day regeneration failed, will retry",
			"user_id", item.UserID, "day", item.Day.Format(dateLayout), "attempt", item.Attempts, "error", err)
		q.requeue(item)
	}

	metrics.InvalidationQueueDepth.Set(float64(q.Len()))
	return len(batch), nil
}

// takeBatch removes up to BatchSize eligible items from the front of the queue.
// A failed item becomes eligible again once attempts*RetryDelay has passed
// since it was first enqueued.
func (q *InvalidationQueue) takeBatch() []*InvalidationItem {
	now := q.now()
	q.mu.Lock()
	defer q.mu.Unlock()

	size := BatchSize(len(q.order), q.cfg.MaxBatchSize)
	batch := make([]*InvalidationItem, 0, size)
	remaining := q.order[:0]
	for _, key := range q.order {
		item := q.items[key]
		eligible := item.Attempts == 0 || now.Sub(item.EnqueuedAt) >= time.Duration(item.Attempts)*q.cfg.RetryDelay
		if len(batch) < size && eligible {
			batch = append(batch, item)
			delete(q.items, key)
			continue
		}
		remaining = append(remaining, key)
	}
	q.order = remaining
	return batch
}

func (q *InvalidationQueue) requeue(item *InvalidationItem) {
	key := dayKey{userID: item.UserID, day: item.Day.Unix()}
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.items[key]; exists {
		return
	}
	q.items[key] = item
	q.order = append(q.order, key)
}

// drop gives up on an item and hands the day to the task scheduler
func (q *InvalidationQueue) drop(ctx context.Context, item *InvalidationItem) {
	q.failed.Add(1)
	metrics.InvalidationItems.WithLabelValues("failed", "").Inc()
	q.logger.Error("day regeneration failed permanently",
		"user_id", item.UserID, "day", item.Day.Format(dateLayout), "attempts", item.Attempts, "error", item.LastError)

	if q.tasks == nil {
		return
	}
	task := &models.RegenerationTask{
		UserID:    item.UserID,
		StartDate: item.Day,
		EndDate:   item.Day.Add(24 * time.Hour),
		Priority:  models.PriorityHigh,
		Status:    models.TaskStatusPending,
		CreatedAt: q.now(),
	}
	if err := q.tasks.Create(ctx, task); err != nil {
		q.logger.Error("failed to escalate invalidation to a regeneration task", "user_id", item.UserID, "error", err)
	}
}

// Len returns the number of queued keys
func (q *InvalidationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}

// IsDraining reports whether a drain is running
func (q *InvalidationQueue) IsDraining() bool {
	return q.draining.Load()
}

// FailedCount returns how many items were dropped after exhausting retries
func (q *InvalidationQueue) FailedCount() int64 {
	return q.failed.Load()
}
