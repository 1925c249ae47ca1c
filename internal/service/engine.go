package service

import (
	"context"
	"database/sql"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/tess1o/geopulse-sub001/internal/analysis/detection"
	"github.com/tess1o/geopulse-sub001/internal/config"
	"github.com/tess1o/geopulse-sub001/internal/repository"
)

// Engine wires the timeline components over one database
type Engine struct {
	Timeline  *TimelineService
	Scheduler *RegenerationScheduler
	Queue     *InvalidationQueue
	Processor *OvernightProcessor
	Selector  *StrategySelector
	Events    *EventStore

	GPS         *repository.GPSRepository
	Favorites   *repository.FavoriteRepository
	Preferences *repository.PreferenceRepository
	Tasks       *repository.RegenerationTaskRepository
}

// NewEngine builds the full component graph. geocoder may be nil.
func NewEngine(db *sql.DB, cfg config.QueueConfig, geocoder Geocoder, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	gps := repository.NewGPSRepository(db)
	favorites := repository.NewFavoriteRepository(db)
	prefs := repository.NewPreferenceRepository(db)
	tasks := repository.NewRegenerationTaskRepository(db)

	events := NewEventStore(db)
	versions := NewVersionService(favorites, prefs)
	resolver := NewFavoriteResolver(favorites, geocoder, logger)
	generator := NewGenerator(gps, detection.NewStaypointDetector(), resolver, logger)
	processor := NewOvernightProcessor(events, gps, generator, prefs, versions, logger)
	assembler := NewAssembler(events)

	selector := NewStrategySelector(events, favorites, resolver, processor, versions, DeletionStrategy(cfg.DeletionStrategy), logger)
	queue := NewInvalidationQueue(events, selector, tasks, InvalidationConfig{
		MaxBatchSize: cfg.MaxBatchSize,
		MaxRetries:   cfg.MaxInvalidationRetry,
		RetryDelay:   cfg.RetryDelay,
	}, logger)

	past := NewPastRangeHandler(events, processor, assembler, versions, queue, logger)
	mixed := NewMixedHandler(past, generator, assembler, prefs, logger)

	scheduler := NewRegenerationScheduler(tasks, events, processor, queue, SchedulerConfig{
		InvalidationInterval: cfg.InvalidationInterval,
		HighPriorityInterval: cfg.HighPriorityInterval,
		LowPriorityInterval:  cfg.LowPriorityInterval,
		CleanupInterval:      cfg.CleanupInterval,
		RetryDelay:           cfg.RetryDelay,
		MaxRetries:           cfg.MaxRetries,
		BatchSize:            cfg.TaskBatchSize,
		Retention:            cfg.Retention,
	}, logger)

	return &Engine{
		Timeline:    NewTimelineService(past, mixed, events, processor, queue, tasks, logger),
		Scheduler:   scheduler,
		Queue:       queue,
		Processor:   processor,
		Selector:    selector,
		Events:      events,
		GPS:         gps,
		Favorites:   favorites,
		Preferences: prefs,
		Tasks:       tasks,
	}
}

// RunBackground runs the location-change consumer and the scheduler loops
// until ctx is done
func (e *Engine) RunBackground(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.Queue.Run(ctx) })
	g.Go(func() error { return e.Scheduler.Run(ctx) })
	return g.Wait()
}
