package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tess1o/geopulse-sub001/internal/models"
	"github.com/tess1o/geopulse-sub001/internal/spatial"
)

func TestBatchSize(t *testing.T) {
	tests := []struct {
		n, want int
	}{
		{0, 0},
		{1, 1},
		{5, 1},
		{6, 5},
		{20, 5},
		{21, 10},
		{50, 10},
		{51, 20},
		{60, 20},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BatchSize(tt.n, 20), "n=%d", tt.n)
	}
	assert.Equal(t, 3, BatchSize(10, 3), "never above the configured maximum")
}

func newTestQueue(t *testing.T, e *Engine, regen DayRegenerator, cfg InvalidationConfig) *InvalidationQueue {
	t.Helper()
	q := NewInvalidationQueue(e.Events, regen, e.Tasks, cfg, quietLogger)
	q.now = func() time.Time { return testNow }
	return q
}

func TestDrain_FullQueueTakesMaximumBatch(t *testing.T) {
	e := newTestEngine(t, nil)
	regen := &fakeRegenerator{}
	q := newTestQueue(t, e, regen, InvalidationConfig{MaxBatchSize: 20, MaxRetries: 3, RetryDelay: time.Minute})
	ctx := context.Background()

	var days []time.Time
	for i := 0; i < 60; i++ {
		days = append(days, day(1).AddDate(0, -3, i))
	}
	require.NoError(t, q.Enqueue(ctx, testUser, days))
	require.Equal(t, 60, q.Len())

	n, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
	assert.Equal(t, 20, regen.callCount())
	assert.Equal(t, 40, q.Len())
	requireSameTime(t, days[0], regen.calls[0], "oldest keys drain first")
}

func TestEnqueue_DeduplicatesAndSkipsToday(t *testing.T) {
	e := newTestEngine(t, nil)
	q := newTestQueue(t, e, &fakeRegenerator{}, DefaultInvalidationConfig())
	ctx := context.Background()
	insertStay(t, e, models.Stay{StartTime: at(15, 10, 0), DurationSeconds: 600, Latitude: 1, Longitude: 1})

	require.NoError(t, q.Enqueue(ctx, testUser, []time.Time{at(15, 1, 0), at(15, 22, 0), at(20, 6, 0), at(21, 0, 0)}))
	assert.Equal(t, 1, q.Len())

	stale, err := e.Events.FindStaleStays(ctx, testUser, day(15), day(16))
	require.NoError(t, err)
	assert.Len(t, stale, 1, "enqueue marks the day stale right away")

	require.NoError(t, q.Enqueue(ctx, "u2", []time.Time{day(15)}))
	assert.Equal(t, 2, q.Len(), "keys are per user")
}

func TestDrain_RetriesThenEscalates(t *testing.T) {
	e := newTestEngine(t, nil)
	regen := &fakeRegenerator{err: errBoom}
	q := newTestQueue(t, e, regen, InvalidationConfig{MaxBatchSize: 20, MaxRetries: 3, RetryDelay: 5 * time.Minute})
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testUser, []time.Time{day(15)}))

	n, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, q.Len(), "failed item is requeued")

	n, err = q.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "retry waits for the delay")

	q.now = func() time.Time { return testNow.Add(5 * time.Minute) }
	n, err = q.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	q.now = func() time.Time { return testNow.Add(10 * time.Minute) }
	n, err = q.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, 3, regen.callCount())
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, int64(1), q.FailedCount())

	high, err := e.Tasks.CountActive(ctx, models.PriorityHigh)
	require.NoError(t, err)
	assert.Equal(t, int64(1), high, "exhausted item becomes a high priority task")
}

func TestDrain_SingleFlight(t *testing.T) {
	e := newTestEngine(t, nil)
	regen := &fakeRegenerator{}
	q := newTestQueue(t, e, regen, DefaultInvalidationConfig())
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, testUser, []time.Time{day(15)}))

	q.draining.Store(true)
	n, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, regen.callCount())

	q.draining.Store(false)
	n, err = q.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, q.IsDraining())
}

func TestHandleLocationChange_AddedPointMatchesRadius(t *testing.T) {
	e := newTestEngine(t, nil)
	q := newTestQueue(t, e, &fakeRegenerator{}, DefaultInvalidationConfig())
	ctx := context.Background()

	insideLat, _ := spatial.DestinationPoint(officeLat, officeLon, 0, 50)
	cornerLat, cornerLon := spatial.DestinationPoint(officeLat, officeLon, 45, 130)
	insertStay(t, e, models.Stay{StartTime: at(15, 10, 0), DurationSeconds: 600, Latitude: insideLat, Longitude: officeLon})
	insertStay(t, e, models.Stay{StartTime: at(16, 10, 0), DurationSeconds: 600, Latitude: cornerLat, Longitude: cornerLon})
	insertStay(t, e, models.Stay{StartTime: at(17, 10, 0), DurationSeconds: 600, Latitude: homeLat, Longitude: homeLon})

	fav := &models.FavoriteLocation{ID: 9, UserID: testUser, Name: "Office", Type: models.FavoritePoint,
		Latitude: officeLat, Longitude: officeLon, RadiusMeters: 100}
	require.NoError(t, q.HandleLocationChange(ctx, models.LocationChangeEvent{Type: models.LocationAdded, FavoriteID: 9, Favorite: fav}))

	require.Equal(t, 1, q.Len())
	_, queued := q.items[dayKey{userID: testUser, day: day(15).Unix()}]
	assert.True(t, queued)
}

func TestHandleLocationChange_AddedAreaMatchesBox(t *testing.T) {
	e := newTestEngine(t, nil)
	q := newTestQueue(t, e, &fakeRegenerator{}, DefaultInvalidationConfig())
	ctx := context.Background()

	insertStay(t, e, models.Stay{StartTime: at(15, 10, 0), DurationSeconds: 600, Latitude: 50.455, Longitude: 30.53})
	insertStay(t, e, models.Stay{StartTime: at(16, 10, 0), DurationSeconds: 600, Latitude: 50.455, Longitude: 30.53})
	insertStay(t, e, models.Stay{StartTime: at(17, 10, 0), DurationSeconds: 600, Latitude: 50.47, Longitude: 30.53})

	fav := &models.FavoriteLocation{ID: 4, UserID: testUser, Name: "Park", Type: models.FavoriteArea,
		NorthEastLat: 50.46, NorthEastLon: 30.54, SouthWestLat: 50.45, SouthWestLon: 30.52}
	require.NoError(t, q.HandleLocationChange(ctx, models.LocationChangeEvent{Type: models.LocationAdded, FavoriteID: 4, Favorite: fav}))

	assert.Equal(t, 2, q.Len())
}

func TestHandleLocationChange_RenamedUsesReferences(t *testing.T) {
	e := newTestEngine(t, nil)
	q := newTestQueue(t, e, &fakeRegenerator{}, DefaultInvalidationConfig())
	ctx := context.Background()

	favID := int64(12)
	insertStay(t, e, models.Stay{StartTime: at(15, 10, 0), DurationSeconds: 600, FavoriteID: &favID, LocationSource: models.LocationSourceFavorite})
	insertStay(t, e, models.Stay{StartTime: at(15, 14, 0), DurationSeconds: 600, FavoriteID: &favID, LocationSource: models.LocationSourceFavorite})
	insertStay(t, e, models.Stay{StartTime: at(16, 10, 0), DurationSeconds: 600})

	require.NoError(t, q.HandleLocationChange(ctx, models.LocationChangeEvent{Type: models.LocationRenamed, UserID: testUser, FavoriteID: favID}))
	assert.Equal(t, 1, q.Len())

	err := q.HandleLocationChange(ctx, models.LocationChangeEvent{Type: models.LocationAdded, UserID: testUser, FavoriteID: 1})
	assert.Error(t, err, "added events need geometry")
}

func TestRun_ConsumesPublishedEvents(t *testing.T) {
	e := newTestEngine(t, nil)
	q := newTestQueue(t, e, &fakeRegenerator{}, DefaultInvalidationConfig())
	favID := int64(3)
	insertStay(t, e, models.Stay{StartTime: at(15, 10, 0), DurationSeconds: 600, FavoriteID: &favID})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	require.NoError(t, q.Publish(ctx, models.LocationChangeEvent{Type: models.LocationDeleted, UserID: testUser, FavoriteID: favID}))
	assert.Eventually(t, func() bool { return q.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
