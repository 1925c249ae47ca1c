package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tess1o/geopulse-sub001/internal/config"
	"github.com/tess1o/geopulse-sub001/internal/database"
	"github.com/tess1o/geopulse-sub001/internal/models"
)

const testUser = "u1"

const (
	homeLat, homeLon     = 50.4500, 30.5200
	officeLat, officeLon = 50.4600, 30.5400
)

// testNow sits well after the fixture days so they are all in the past
var testNow = time.Date(2024, 8, 20, 12, 0, 0, 0, time.UTC)

func day(d int) time.Time {
	return time.Date(2024, 8, d, 0, 0, 0, 0, time.UTC)
}

func at(d, h, m int) time.Time {
	return day(d).Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "timeline.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.NewMigrationManager(db).RunMigrations(context.Background()))
	return db
}

type engineOption func(*config.QueueConfig)

func withDeletionStrategy(s DeletionStrategy) engineOption {
	return func(c *config.QueueConfig) { c.DeletionStrategy = string(s) }
}

func newTestEngine(t *testing.T, geocoder Geocoder, opts ...engineOption) *Engine {
	t.Helper()
	cfg := config.Default().Queue
	for _, opt := range opts {
		opt(&cfg)
	}
	e := NewEngine(openTestDB(t), cfg, geocoder, quietLogger)
	setNow(e, testNow)
	return e
}

// setNow pins the clock of every time-aware component
func setNow(e *Engine, now time.Time) {
	clock := func() time.Time { return now }
	e.Timeline.now = clock
	e.Timeline.past.now = clock
	e.Timeline.mixed.now = clock
	e.Queue.now = clock
	e.Scheduler.now = clock
	e.Events.now = clock
}

// dwell returns one point per minute at a fixed location in [from, to]
func dwell(lat, lon float64, from, to time.Time) []models.GPSPoint {
	var points []models.GPSPoint
	for ts := from; !ts.After(to); ts = ts.Add(time.Minute) {
		points = append(points, models.GPSPoint{UserID: testUser, Timestamp: ts, Latitude: lat, Longitude: lon})
	}
	return points
}

// travel returns one point per minute strictly between from and to
func travel(lat1, lon1, lat2, lon2 float64, from, to time.Time) []models.GPSPoint {
	var points []models.GPSPoint
	steps := int(to.Sub(from) / time.Minute)
	for i := 1; i < steps; i++ {
		f := float64(i) / float64(steps)
		points = append(points, models.GPSPoint{
			UserID:    testUser,
			Timestamp: from.Add(time.Duration(i) * time.Minute),
			Latitude:  lat1 + (lat2-lat1)*f,
			Longitude: lon1 + (lon2-lon1)*f,
		})
	}
	return points
}

// enableGaps stores preferences with data gap detection switched on
func enableGaps(t *testing.T, e *Engine, threshold, minDuration time.Duration) {
	t.Helper()
	prefs := models.DefaultTimelinePreferences(testUser)
	th := int64(threshold / time.Second)
	md := int64(minDuration / time.Second)
	prefs.DataGapThresholdSeconds = &th
	prefs.DataGapMinDurationSeconds = &md
	require.NoError(t, e.Preferences.Save(context.Background(), prefs))
}

func insertPoints(t *testing.T, e *Engine, batches ...[]models.GPSPoint) {
	t.Helper()
	for _, points := range batches {
		require.NoError(t, e.GPS.InsertBatch(context.Background(), points))
	}
}

func currentVersion(t *testing.T, e *Engine, d time.Time) string {
	t.Helper()
	v, err := NewVersionService(e.Favorites, e.Preferences).Compute(context.Background(), testUser, d)
	require.NoError(t, err)
	return v
}

func insertStay(t *testing.T, e *Engine, st models.Stay) models.Stay {
	t.Helper()
	st.UserID = testUser
	if st.TimelineVersion == "" {
		st.TimelineVersion = currentVersion(t, e, st.StartTime)
	}
	if st.LastUpdated.IsZero() {
		st.LastUpdated = testNow
	}
	require.NoError(t, e.Events.stays.Insert(context.Background(), &st))
	return st
}

func requireSameTime(t *testing.T, want, got time.Time, msgAndArgs ...interface{}) {
	t.Helper()
	require.WithinDuration(t, want, got, 0, msgAndArgs...)
}

type fakeGeocoder struct {
	name string
	id   int64
	err  error
}

func (g *fakeGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (string, int64, error) {
	return g.name, g.id, g.err
}

type fakeRegenerator struct {
	mu    sync.Mutex
	err   error
	calls []time.Time
}

func (r *fakeRegenerator) RegenerateDay(ctx context.Context, userID string, d time.Time) (Strategy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, d)
	return StrategyFull, r.err
}

func (r *fakeRegenerator) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type generatedRange struct {
	start, end time.Time
}

type fakeRangeGenerator struct {
	err   error
	calls []generatedRange
}

func (g *fakeRangeGenerator) GenerateRange(ctx context.Context, userID string, start, end time.Time) error {
	g.calls = append(g.calls, generatedRange{start: start, end: end})
	return g.err
}

type fakeFinder struct {
	event models.TimelineEvent
	asked []time.Time
}

func (f *fakeFinder) FindLatestEventBefore(ctx context.Context, userID string, ts time.Time) (models.TimelineEvent, error) {
	f.asked = append(f.asked, ts)
	if f.event == nil || f.event.End().After(ts) {
		return nil, nil
	}
	return f.event, nil
}

var errBoom = errors.New("boom")
