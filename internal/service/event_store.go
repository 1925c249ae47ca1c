package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tess1o/geopulse-sub001/internal/database"
	"github.com/tess1o/geopulse-sub001/internal/models"
	"github.com/tess1o/geopulse-sub001/internal/repository"
)

// DayEvents are the generated events owned by one UTC day
type DayEvents struct {
	Day   time.Time
	Stays []models.Stay
	Trips []models.Trip
	Gaps  []models.DataGap
}

// EventStore is the storage-facing accessor for persisted timeline events
type EventStore struct {
	db    *sql.DB
	stays *repository.StayRepository
	trips *repository.TripRepository
	gaps  *repository.DataGapRepository
	now   func() time.Time
}

// NewEventStore creates a new event store over the given database
func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{
		db:    db,
		stays: repository.NewStayRepository(db),
		trips: repository.NewTripRepository(db),
		gaps:  repository.NewDataGapRepository(db),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// HasCompleteData reports whether every UTC day touched by [start, end) is
// served from cache
func (s *EventStore) HasCompleteData(ctx context.Context, userID string, start, end time.Time) (bool, error) {
	missing, err := s.MissingDays(ctx, userID, start, end)
	if err != nil {
		return false, err
	}
	return len(missing) == 0, nil
}

// MissingDays returns the UTC days touched by [start, end) that hold no
// cached events. A day is cached when a stay or trip starts in it, or when a
// single stay or gap covers all of it. Events running in from an earlier day
// do not count.
func (s *EventStore) MissingDays(ctx context.Context, userID string, start, end time.Time) ([]time.Time, error) {
	missing := []time.Time{}
	for d := models.DayStart(start); d.Before(end); d = d.AddDate(0, 0, 1) {
		cached, err := s.dayCached(ctx, userID, d, d.AddDate(0, 0, 1))
		if err != nil {
			return nil, err
		}
		if !cached {
			missing = append(missing, d)
		}
	}
	return missing, nil
}

func (s *EventStore) dayCached(ctx context.Context, userID string, dayStart, dayEnd time.Time) (bool, error) {
	stays, err := s.stays.CountStartingIn(ctx, userID, dayStart, dayEnd)
	if err != nil || stays > 0 {
		return stays > 0, err
	}
	trips, err := s.trips.CountStartingIn(ctx, userID, dayStart, dayEnd)
	if err != nil || trips > 0 {
		return trips > 0, err
	}
	covered, err := s.gaps.ExistsCovering(ctx, userID, dayStart, dayEnd)
	if err != nil || covered {
		return covered, err
	}
	return s.stays.ExistsCovering(ctx, userID, dayStart, dayEnd)
}

// GetExistingEvents returns every persisted event intersecting [start, end).
// Events crossing the range edges are returned whole.
func (s *EventStore) GetExistingEvents(ctx context.Context, userID string, start, end time.Time) (*models.TimelineSnapshot, error) {
	snapshot := models.NewSnapshot(userID, models.DataSourceCached, s.now())

	stays, err := s.stays.FindOverlapping(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}
	trips, err := s.trips.FindOverlapping(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}
	gaps, err := s.gaps.FindOverlapping(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}

	snapshot.Stays = stays
	snapshot.Trips = trips
	snapshot.DataGaps = gaps

	// lastUpdated is the newest write among the returned events
	var newest time.Time
	for _, st := range stays {
		if st.LastUpdated.After(newest) {
			newest = st.LastUpdated
		}
	}
	for _, tr := range trips {
		if tr.LastUpdated.After(newest) {
			newest = tr.LastUpdated
		}
	}
	for _, g := range gaps {
		if g.LastUpdated.After(newest) {
			newest = g.LastUpdated
		}
	}
	if !newest.IsZero() {
		snapshot.LastUpdated = newest
	}
	return snapshot, nil
}

// latestFinder is one event table viewed through the TimelineEvent projection
type latestFinder func(ctx context.Context, userID string, ts time.Time) (models.TimelineEvent, error)

func (s *EventStore) latestFinders() []latestFinder {
	return []latestFinder{
		func(ctx context.Context, userID string, ts time.Time) (models.TimelineEvent, error) {
			st, err := s.stays.FindLatestEndingBefore(ctx, userID, ts)
			if err != nil || st == nil {
				return nil, err
			}
			return *st, nil
		},
		func(ctx context.Context, userID string, ts time.Time) (models.TimelineEvent, error) {
			tr, err := s.trips.FindLatestEndingBefore(ctx, userID, ts)
			if err != nil || tr == nil {
				return nil, err
			}
			return *tr, nil
		},
		func(ctx context.Context, userID string, ts time.Time) (models.TimelineEvent, error) {
			g, err := s.gaps.FindLatestEndingBefore(ctx, userID, ts)
			if err != nil || g == nil {
				return nil, err
			}
			return *g, nil
		},
	}
}

// FindLatestEventBefore returns the stay, trip or gap with the latest end
// time not after ts, or nil when the user has no earlier events
func (s *EventStore) FindLatestEventBefore(ctx context.Context, userID string, ts time.Time) (models.TimelineEvent, error) {
	var latest models.TimelineEvent
	for _, find := range s.latestFinders() {
		event, err := find(ctx, userID, ts)
		if err != nil {
			return nil, err
		}
		if event == nil {
			continue
		}
		if latest == nil || event.End().After(latest.End()) {
			latest = event
		}
	}
	return latest, nil
}

// FindEventOpenAt returns the stay or trip that started before ts and is
// still running at ts, or nil when nothing is open
func (s *EventStore) FindEventOpenAt(ctx context.Context, userID string, ts time.Time) (models.TimelineEvent, error) {
	st, err := s.stays.FindOpenAt(ctx, userID, ts)
	if err != nil {
		return nil, err
	}
	tr, err := s.trips.FindOpenAt(ctx, userID, ts)
	if err != nil {
		return nil, err
	}
	switch {
	case st != nil && (tr == nil || !tr.StartTime.After(st.StartTime)):
		return *st, nil
	case tr != nil:
		return *tr, nil
	}
	return nil, nil
}

// DeleteTimelineData removes all events owned by [start, end), that is,
// every stay, trip and gap whose start lies in the range
func (s *EventStore) DeleteTimelineData(ctx context.Context, userID string, start, end time.Time) error {
	return database.Transaction(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := s.stays.WithTx(tx).DeleteStartingIn(ctx, userID, start, end); err != nil {
			return err
		}
		if _, err := s.trips.WithTx(tx).DeleteStartingIn(ctx, userID, start, end); err != nil {
			return err
		}
		if _, err := s.gaps.WithTx(tx).DeleteStartingIn(ctx, userID, start, end); err != nil {
			return err
		}
		return nil
	})
}

// PersistDay writes one day's events in a single transaction, tagging each
// with the day's version
func (s *EventStore) PersistDay(ctx context.Context, userID string, day DayEvents, version string) error {
	now := s.now()
	err := database.Transaction(ctx, s.db, func(tx *sql.Tx) error {
		stays := s.stays.WithTx(tx)
		for i := range day.Stays {
			st := &day.Stays[i]
			st.UserID, st.TimelineVersion, st.LastUpdated, st.IsStale = userID, version, now, false
			if err := stays.Insert(ctx, st); err != nil {
				return err
			}
		}

		trips := s.trips.WithTx(tx)
		for i := range day.Trips {
			tr := &day.Trips[i]
			tr.UserID, tr.TimelineVersion, tr.LastUpdated, tr.IsStale = userID, version, now, false
			if err := trips.Insert(ctx, tr); err != nil {
				return err
			}
		}

		gaps := s.gaps.WithTx(tx)
		for i := range day.Gaps {
			g := &day.Gaps[i]
			g.UserID, g.TimelineVersion, g.LastUpdated = userID, version, now
			if err := gaps.Insert(ctx, g); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to persist day %s: %w", day.Day.Format(dateLayout), err)
	}
	return nil
}

// ExtendEvent moves a persisted stay or trip's end in place and returns the
// number of rows updated. Gaps are never extended.
func (s *EventStore) ExtendEvent(ctx context.Context, event models.TimelineEvent, newEnd time.Time, version string) (int64, error) {
	duration := int64(newEnd.Sub(event.Start()) / time.Second)
	switch e := event.(type) {
	case models.Stay:
		return s.stays.UpdateEnd(ctx, e.ID, newEnd, duration, version, s.now())
	case models.Trip:
		return s.trips.UpdateEnd(ctx, e.ID, newEnd, duration, version, s.now())
	default:
		return 0, nil
	}
}

// MarkStale flags the stays and trips of [start, end) as stale
func (s *EventStore) MarkStale(ctx context.Context, userID string, start, end time.Time) (int64, error) {
	var marked int64
	err := database.Transaction(ctx, s.db, func(tx *sql.Tx) error {
		n, err := s.stays.WithTx(tx).MarkStale(ctx, userID, start, end)
		if err != nil {
			return err
		}
		marked = n
		_, err = s.trips.WithTx(tx).MarkStale(ctx, userID, start, end)
		return err
	})
	return marked, err
}

// StampDay sets a fresh version on every event of [start, end) and clears stale flags
func (s *EventStore) StampDay(ctx context.Context, userID string, start, end time.Time, version string) error {
	now := s.now()
	return database.Transaction(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := s.stays.WithTx(tx).StampDay(ctx, userID, start, end, version, now); err != nil {
			return err
		}
		if _, err := s.trips.WithTx(tx).StampDay(ctx, userID, start, end, version, now); err != nil {
			return err
		}
		_, err := s.gaps.WithTx(tx).StampDay(ctx, userID, start, end, version, now)
		return err
	})
}

// FindStaleStays returns the stale stays starting in [start, end)
func (s *EventStore) FindStaleStays(ctx context.Context, userID string, start, end time.Time) ([]models.Stay, error) {
	return s.stays.FindStale(ctx, userID, start, end)
}

// FindStaysByFavorite returns the user's stays named after the favorite
func (s *EventStore) FindStaysByFavorite(ctx context.Context, userID string, favoriteID int64) ([]models.Stay, error) {
	return s.stays.FindByFavorite(ctx, userID, favoriteID)
}

// FindStaysInBounds returns the user's stays inside a bounding box
func (s *EventStore) FindStaysInBounds(ctx context.Context, userID string, minLat, minLon, maxLat, maxLon float64) ([]models.Stay, error) {
	return s.stays.FindInBounds(ctx, userID, minLat, minLon, maxLat, maxLon)
}

// UpdateStayLocation persists a stay's resolved location fields
func (s *EventStore) UpdateStayLocation(ctx context.Context, stay *models.Stay) error {
	stay.LastUpdated = s.now()
	return s.stays.UpdateLocation(ctx, stay)
}
