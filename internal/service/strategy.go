package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/tess1o/geopulse-sub001/internal/models"
)

// Strategy is how much of a cached day gets recomputed
type Strategy string

// Strategy constants
const (
	StrategyLocationOnly   Strategy = "LOCATION_RESOLUTION_ONLY"
	StrategySelectiveMerge Strategy = "SELECTIVE_MERGE"
	StrategyFull           Strategy = "FULL"
)

// DeletionStrategy decides what happens to stays named after a deleted favorite
type DeletionStrategy string

// DeletionStrategy constants
const (
	DeletionKeepName          DeletionStrategy = "KEEP_NAME"
	DeletionRevertToGeocoding DeletionStrategy = "REVERT_TO_GEOCODING"
)

const (
	mergeWindow           = 2 * time.Hour
	selectiveMergeMaxSize = 10
)

// StrategySelector picks and runs the cheapest regeneration that brings a
// day's stale stays back in line
type StrategySelector struct {
	events    *EventStore
	favorites FavoriteStore
	resolver  LocationResolver
	processor RangeGenerator
	versions  *VersionService
	deletion  DeletionStrategy
	logger    *slog.Logger
}

// NewStrategySelector creates a new strategy selector
func NewStrategySelector(events *EventStore, favorites FavoriteStore, resolver LocationResolver, processor RangeGenerator, versions *VersionService, deletion DeletionStrategy, logger *slog.Logger) *StrategySelector {
	if logger == nil {
		logger = slog.Default()
	}
	if deletion == "" {
		deletion = DeletionKeepName
	}
	return &StrategySelector{
		events:    events,
		favorites: favorites,
		resolver:  resolver,
		processor: processor,
		versions:  versions,
		deletion:  deletion,
		logger:    logger.With("component", "strategy_selector"),
	}
}

// Select picks a strategy for a day's stale stays
func Select(stale []models.Stay) Strategy {
	if len(stale) == 0 {
		return StrategyFull
	}

	allNamed := true
	for _, st := range stale {
		if !st.ReferencesFavorite() {
			allNamed = false
			break
		}
	}
	if allNamed {
		return StrategyLocationOnly
	}

	if len(stale) <= selectiveMergeMaxSize && HasMergeOpportunity(stale) {
		return StrategySelectiveMerge
	}
	return StrategyFull
}

// HasMergeOpportunity reports whether two stays at the same favorite lie
// within two hours of each other. It is a coarse heuristic, not a recomputation.
func HasMergeOpportunity(stays []models.Stay) bool {
	for i := range stays {
		if stays[i].FavoriteID == nil {
			continue
		}
		for j := i + 1; j < len(stays); j++ {
			if stays[j].FavoriteID == nil || *stays[j].FavoriteID != *stays[i].FavoriteID {
				continue
			}
			a, b := stays[i], stays[j]
			if b.StartTime.Before(a.StartTime) {
				a, b = b, a
			}
			if b.StartTime.Sub(a.End()) <= mergeWindow {
				return true
			}
		}
	}
	return false
}

// RegenerateDay implements DayRegenerator
func (s *StrategySelector) RegenerateDay(ctx context.Context, userID string, day time.Time) (Strategy, error) {
	dayStart := models.DayStart(day)
	dayEnd := dayStart.Add(24 * time.Hour)

	stale, err := s.events.FindStaleStays(ctx, userID, dayStart, dayEnd)
	if err != nil {
		return "", err
	}

	strategy := Select(stale)
	s.logger.Debug("regenerating day", "user_id", userID, "day", dayStart.Format(dateLayout),
		"stale_stays", len(stale), "strategy", strategy)

	switch strategy {
	case StrategyLocationOnly:
		if err := s.resolveStays(ctx, userID, dayStart, dayEnd, stale); err != nil {
			return strategy, err
		}
		return strategy, nil

	default:
		// merging changes stay boundaries, which only detection can redo
		return StrategyFull, s.full(ctx, userID, dayStart, dayEnd)
	}
}

func (s *StrategySelector) full(ctx context.Context, userID string, dayStart, dayEnd time.Time) error {
	if err := s.events.DeleteTimelineData(ctx, userID, dayStart, dayEnd); err != nil {
		return err
	}
	return s.processor.GenerateRange(ctx, userID, dayStart, dayEnd)
}

// resolveStays re-names stale stays in place, updating the slice, then
// stamps the whole day with its current version
func (s *StrategySelector) resolveStays(ctx context.Context, userID string, dayStart, dayEnd time.Time, stale []models.Stay) error {
	favorites, err := s.favorites.ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	existing := make(map[int64]bool, len(favorites))
	for _, f := range favorites {
		existing[f.ID] = true
	}

	version, err := s.versions.Compute(ctx, userID, dayStart)
	if err != nil {
		return err
	}

	for i := range stale {
		st := &stale[i]
		if st.FavoriteID != nil && !existing[*st.FavoriteID] {
			s.applyDeletion(ctx, userID, st)
		} else {
			applyLocation(st, s.resolver.Resolve(ctx, userID, st.Latitude, st.Longitude))
		}
		st.IsStale = false
		st.TimelineVersion = version
		if err := s.events.UpdateStayLocation(ctx, st); err != nil {
			return err
		}
	}

	return s.events.StampDay(ctx, userID, dayStart, dayEnd, version)
}

// applyDeletion renames a stay whose favorite no longer exists. The stay
// never keeps the deleted favorite's id.
func (s *StrategySelector) applyDeletion(ctx context.Context, userID string, st *models.Stay) {
	keepName := func() {
		st.LocationSource = models.LocationSourceHistorical
		st.FavoriteID = nil
		st.GeocodingID = nil
	}

	if s.deletion != DeletionRevertToGeocoding {
		keepName()
		return
	}

	loc := s.resolver.Resolve(ctx, userID, st.Latitude, st.Longitude)
	if loc.Source == models.LocationSourceHistorical {
		keepName()
		return
	}
	applyLocation(st, loc)
}
