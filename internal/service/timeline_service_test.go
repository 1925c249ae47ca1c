package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tess1o/geopulse-sub001/internal/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		start, end time.Time
		want       RangeClass
	}{
		{"yesterday", day(19), day(20), RangePastOnly},
		{"ends exactly at today start", day(15), day(20), RangePastOnly},
		{"today only", day(20), day(21), RangeMixed},
		{"spans into today", day(18), at(20, 6, 0), RangeMixed},
		{"spans into tomorrow", day(19), day(22), RangeMixed},
		{"tomorrow", day(21), day(22), RangeFutureOnly},
		{"empty range in the past", day(10), day(10), RangePastOnly},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(testNow, tt.start, tt.end)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Classify(testNow, day(16), day(15))
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestGetTimeline_RejectsInvertedRange(t *testing.T) {
	e := newTestEngine(t, nil)
	_, err := e.Timeline.GetTimeline(context.Background(), testUser, day(16), day(15))
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestGetTimeline_FutureRangeIsEmptyLive(t *testing.T) {
	e := newTestEngine(t, nil)
	snap, err := e.Timeline.GetTimeline(context.Background(), testUser, day(22), day(23))
	require.NoError(t, err)
	assert.Equal(t, models.DataSourceLive, snap.DataSource)
	assert.True(t, snap.IsEmpty())
}

func TestGetTimeline_DayWithoutDataIsOneGap(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	enableGaps(t, e, 3*time.Hour, 30*time.Minute)

	snap, err := e.Timeline.GetTimeline(ctx, testUser, day(15), day(16))
	require.NoError(t, err)

	assert.Equal(t, models.DataSourceCached, snap.DataSource)
	assert.Empty(t, snap.Stays)
	assert.Empty(t, snap.Trips)
	require.Len(t, snap.DataGaps, 1)
	requireSameTime(t, day(15), snap.DataGaps[0].StartTime)
	requireSameTime(t, day(16), snap.DataGaps[0].EndTime)

	// second read is served from the persisted gap
	complete, err := e.Events.HasCompleteData(ctx, testUser, day(15), day(16))
	require.NoError(t, err)
	assert.True(t, complete)

	again, err := e.Timeline.GetTimeline(ctx, testUser, day(15), day(16))
	require.NoError(t, err)
	require.Len(t, again.DataGaps, 1)
	assert.Equal(t, snap.DataGaps[0].ID, again.DataGaps[0].ID)
}

func TestGetTimeline_GapsAreOffByDefault(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	insertPoints(t, e, dwell(officeLat, officeLon, at(16, 10, 0), at(16, 12, 0)))

	empty, err := e.Timeline.GetTimeline(ctx, testUser, day(15), day(16))
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())
	assert.Empty(t, empty.DataGaps)

	snap, err := e.Timeline.GetTimeline(ctx, testUser, day(16), day(17))
	require.NoError(t, err)
	require.Len(t, snap.Stays, 1)
	assert.Empty(t, snap.DataGaps, "silences before and after the stay are not gaps without a threshold")

	stored, err := e.Events.gaps.FindOverlapping(ctx, testUser, day(15), day(17))
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestGetTimeline_StayCrossingMidnightIsReturnedWhole(t *testing.T) {
	e := newTestEngine(t, nil)
	insertStay(t, e, models.Stay{
		StartTime:       at(14, 23, 0),
		DurationSeconds: 4 * 60 * 60,
		Latitude:        homeLat,
		Longitude:       homeLon,
		LocationName:    "Home",
		LocationSource:  models.LocationSourceGeocoded,
	})

	snap, err := e.Timeline.GetTimeline(context.Background(), testUser, day(15), at(15, 23, 59).Add(59*time.Second))
	require.NoError(t, err)

	assert.Equal(t, models.DataSourceCached, snap.DataSource)
	assert.False(t, snap.IsStale)
	require.Len(t, snap.Stays, 1)
	requireSameTime(t, at(14, 23, 0), snap.Stays[0].StartTime)
	assert.Equal(t, int64(4*60*60), snap.Stays[0].DurationSeconds, "stay must not be truncated at midnight")
}

func TestGetTimeline_GeneratesAndCachesPastDay(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	enableGaps(t, e, 3*time.Hour, 30*time.Minute)
	insertPoints(t, e,
		dwell(homeLat, homeLon, at(15, 8, 0), at(15, 9, 0)),
		travel(homeLat, homeLon, officeLat, officeLon, at(15, 9, 0), at(15, 9, 20)),
		dwell(officeLat, officeLon, at(15, 9, 20), at(15, 17, 0)),
	)

	snap, err := e.Timeline.GetTimeline(ctx, testUser, day(15), day(16))
	require.NoError(t, err)

	require.Len(t, snap.Stays, 2)
	require.Len(t, snap.Trips, 1)
	assert.NotZero(t, snap.Stays[0].ID, "events are persisted before being returned")
	requireSameTime(t, at(15, 8, 0), snap.Stays[0].StartTime)
	requireSameTime(t, at(15, 17, 0), snap.Stays[1].End())
	assert.Equal(t, models.LocationSourceHistorical, snap.Stays[0].LocationSource)
	assert.Equal(t, HistoricalName(snap.Stays[0].Latitude, snap.Stays[0].Longitude), snap.Stays[0].LocationName)

	version := currentVersion(t, e, day(15))
	for _, st := range snap.Stays {
		assert.Equal(t, version, st.TimelineVersion)
	}

	// morning silence and the evening after the last point become gaps
	require.Len(t, snap.DataGaps, 2)
	requireSameTime(t, day(15), snap.DataGaps[0].StartTime)
	requireSameTime(t, at(15, 8, 0), snap.DataGaps[0].EndTime)
	requireSameTime(t, at(15, 17, 0), snap.DataGaps[1].StartTime)
	requireSameTime(t, day(16), snap.DataGaps[1].EndTime)
}

func TestGetTimeline_OverlappingStayDoesNotMarkDayCached(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	insertPoints(t, e,
		dwell(homeLat, homeLon, at(14, 22, 0), at(15, 9, 0)),
		travel(homeLat, homeLon, officeLat, officeLon, at(15, 9, 0), at(15, 9, 20)),
		dwell(officeLat, officeLon, at(15, 9, 20), at(15, 17, 0)),
	)

	night, err := e.Timeline.GetTimeline(ctx, testUser, day(14), at(15, 3, 0))
	require.NoError(t, err)
	require.Len(t, night.Stays, 1)
	home := night.Stays[0]
	requireSameTime(t, at(15, 9, 0), home.End(), "the partial request still sees the whole night")

	complete, err := e.Events.HasCompleteData(ctx, testUser, day(15), day(16))
	require.NoError(t, err)
	assert.True(t, complete, "the 15th was generated whole by the first request")

	snap, err := e.Timeline.GetTimeline(ctx, testUser, day(15), day(16))
	require.NoError(t, err)

	require.Len(t, snap.Stays, 2)
	require.Len(t, snap.Trips, 1)
	assert.Equal(t, home.ID, snap.Stays[0].ID)
	requireSameTime(t, at(14, 22, 0), snap.Stays[0].StartTime)
	requireSameTime(t, at(15, 9, 0), snap.Stays[0].End())
	requireSameTime(t, at(15, 9, 0), snap.Trips[0].StartTime)
	requireSameTime(t, at(15, 9, 20), snap.Stays[1].StartTime)
	requireSameTime(t, at(15, 17, 0), snap.Stays[1].End())
}

func TestGetTimeline_CachedOvernightStayAloneLeavesDayMissing(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	insertStay(t, e, models.Stay{StartTime: at(14, 22, 0), DurationSeconds: 11 * 3600, Latitude: homeLat, Longitude: homeLon})
	insertPoints(t, e, dwell(officeLat, officeLon, at(15, 10, 0), at(15, 17, 0)))

	complete, err := e.Events.HasCompleteData(ctx, testUser, day(15), day(16))
	require.NoError(t, err)
	assert.False(t, complete)

	snap, err := e.Timeline.GetTimeline(ctx, testUser, day(15), day(16))
	require.NoError(t, err)
	require.Len(t, snap.Stays, 2, "the rest of the 15th is generated")
	requireSameTime(t, at(15, 10, 0), snap.Stays[1].StartTime)
}

func TestGetTimeline_MidnightStayIsContinuousAcrossDayQueries(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	enableGaps(t, e, 3*time.Hour, 30*time.Minute)
	insertPoints(t, e,
		dwell(homeLat, homeLon, at(14, 22, 0), at(15, 7, 0)),
		travel(homeLat, homeLon, officeLat, officeLon, at(15, 7, 0), at(15, 7, 20)),
		dwell(officeLat, officeLon, at(15, 7, 20), at(15, 9, 0)),
	)

	first, err := e.Timeline.GetTimeline(ctx, testUser, day(14), day(15))
	require.NoError(t, err)
	require.Len(t, first.Stays, 1)
	home := first.Stays[0]

	second, err := e.Timeline.GetTimeline(ctx, testUser, day(15), day(16))
	require.NoError(t, err)

	seen := 0
	for _, st := range second.Stays {
		if st.StartTime.Before(day(15)) {
			seen++
			assert.Equal(t, home.ID, st.ID)
			requireSameTime(t, at(14, 22, 0), st.StartTime)
			requireSameTime(t, at(15, 7, 0), st.End(), "the stay is not cut at midnight")
		}
	}
	assert.Equal(t, 1, seen, "the overnight stay appears exactly once")

	require.Len(t, second.Stays, 2)
	require.Len(t, second.Trips, 1)
	requireSameTime(t, at(15, 7, 20), second.Stays[1].StartTime)
	require.Len(t, second.DataGaps, 1, "the evening silence of the 15th is generated too")
	requireSameTime(t, at(15, 9, 0), second.DataGaps[0].StartTime)
	requireSameTime(t, day(16), second.DataGaps[0].EndTime)

	for _, g := range append(first.DataGaps, second.DataGaps...) {
		overlaps := g.StartTime.Before(second.Stays[0].End()) && g.EndTime.After(second.Stays[0].StartTime)
		assert.False(t, overlaps, "gap %s-%s overlaps the overnight stay", g.StartTime, g.EndTime)
	}
}

func TestGetTimeline_TripsNeverOverlapGaps(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	enableGaps(t, e, 5*time.Minute, 0)

	var commute []models.GPSPoint
	for _, p := range travel(homeLat, homeLon, officeLat, officeLon, at(15, 9, 0), at(15, 9, 20)) {
		if p.Timestamp.After(at(15, 9, 5)) && p.Timestamp.Before(at(15, 9, 14)) {
			continue
		}
		commute = append(commute, p)
	}
	insertPoints(t, e,
		dwell(homeLat, homeLon, at(15, 8, 0), at(15, 9, 0)),
		commute,
		dwell(officeLat, officeLon, at(15, 9, 20), at(15, 17, 0)),
	)

	snap, err := e.Timeline.GetTimeline(ctx, testUser, day(15), day(16))
	require.NoError(t, err)

	require.Len(t, snap.Trips, 2)
	require.NotEmpty(t, snap.DataGaps)
	for _, tr := range snap.Trips {
		for _, g := range snap.DataGaps {
			overlaps := tr.StartTime.Before(g.EndTime) && tr.End().After(g.StartTime)
			assert.False(t, overlaps, "trip %s-%s overlaps gap %s-%s", tr.StartTime, tr.End(), g.StartTime, g.EndTime)
		}
	}
}

func TestGetTimeline_StaleCacheIsServedAndReported(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	insertStay(t, e, models.Stay{
		StartTime:       at(15, 10, 0),
		DurationSeconds: 3600,
		Latitude:        officeLat,
		Longitude:       officeLon,
		TimelineVersion: "outdated",
	})

	snap, err := e.Timeline.GetTimeline(ctx, testUser, day(15), day(16))
	require.NoError(t, err)

	assert.True(t, snap.IsStale)
	assert.Equal(t, models.DataSourceRegenerating, snap.DataSource)
	require.Len(t, snap.Stays, 1)
	assert.Equal(t, 1, e.Queue.Len(), "stale day is queued for regeneration")
}

func TestGetTimeline_TodayNeverHasFutureGaps(t *testing.T) {
	e := newTestEngine(t, nil)
	enableGaps(t, e, 3*time.Hour, 30*time.Minute)
	insertPoints(t, e, dwell(homeLat, homeLon, at(20, 8, 0), at(20, 9, 0)))

	snap, err := e.Timeline.GetTimeline(context.Background(), testUser, day(20), day(21))
	require.NoError(t, err)

	assert.Equal(t, models.DataSourceLive, snap.DataSource)
	require.Len(t, snap.Stays, 1)
	assert.Zero(t, snap.Stays[0].ID, "today is never persisted")
	require.NotEmpty(t, snap.DataGaps)
	for _, g := range snap.DataGaps {
		assert.False(t, g.EndTime.After(testNow), "gap %s-%s ends after now", g.StartTime, g.EndTime)
	}
	last := snap.DataGaps[len(snap.DataGaps)-1]
	requireSameTime(t, at(20, 9, 0), last.StartTime)
	requireSameTime(t, testNow, last.EndTime)
}

func TestGetTimeline_MixedCombinesCacheAndLive(t *testing.T) {
	e := newTestEngine(t, nil)
	enableGaps(t, e, 3*time.Hour, 30*time.Minute)
	insertPoints(t, e,
		dwell(officeLat, officeLon, at(19, 10, 0), at(19, 17, 0)),
		dwell(homeLat, homeLon, at(20, 8, 0), at(20, 9, 0)),
	)

	snap, err := e.Timeline.GetTimeline(context.Background(), testUser, day(19), day(21))
	require.NoError(t, err)

	assert.Equal(t, models.DataSourceMixed, snap.DataSource)
	require.Len(t, snap.Stays, 2)
	assert.NotZero(t, snap.Stays[0].ID, "yesterday comes from the cache")
	assert.Zero(t, snap.Stays[1].ID, "today is generated live")
	require.NotEmpty(t, snap.DataGaps)
	for _, g := range snap.DataGaps {
		assert.False(t, g.EndTime.After(testNow))
	}
	for i := 1; i < len(snap.DataGaps); i++ {
		assert.False(t, snap.DataGaps[i].StartTime.Before(snap.DataGaps[i-1].StartTime), "gaps are chronological")
	}
}

func TestForceRegenerate_RebuildsCachedDay(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	old := insertStay(t, e, models.Stay{
		StartTime:       at(15, 1, 0),
		DurationSeconds: 600,
		Latitude:        1,
		Longitude:       1,
	})
	insertPoints(t, e, dwell(officeLat, officeLon, at(15, 10, 0), at(15, 17, 0)))

	snap, err := e.Timeline.ForceRegenerate(ctx, testUser, day(15), day(16))
	require.NoError(t, err)

	require.Len(t, snap.Stays, 1)
	assert.NotEqual(t, old.ID, snap.Stays[0].ID)
	requireSameTime(t, at(15, 10, 0), snap.Stays[0].StartTime)
}

func TestEnqueueHighPriority_CoversAllDatesAndMarksStale(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	insertStay(t, e, models.Stay{StartTime: at(16, 10, 0), DurationSeconds: 600, Latitude: 1, Longitude: 1})

	task, err := e.Timeline.EnqueueHighPriority(ctx, testUser, []time.Time{at(17, 5, 0), at(15, 23, 0), at(16, 12, 0)})
	require.NoError(t, err)

	assert.Equal(t, models.PriorityHigh, task.Priority)
	assert.Equal(t, models.TaskStatusPending, task.Status)
	requireSameTime(t, day(15), task.StartDate)
	requireSameTime(t, day(18), task.EndDate)

	stale, err := e.Events.FindStaleStays(ctx, testUser, day(15), day(18))
	require.NoError(t, err)
	assert.Len(t, stale, 1)

	_, err = e.Timeline.EnqueueHighPriority(ctx, testUser, nil)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestEnqueueLowPriority_RoundsToWholeDays(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()

	task, err := e.Timeline.EnqueueLowPriority(ctx, testUser, at(10, 6, 0), at(12, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, models.PriorityLow, task.Priority)
	requireSameTime(t, day(10), task.StartDate)
	requireSameTime(t, day(13), task.EndDate)

	status, err := e.Timeline.QueueStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), status.HighPending)
	assert.Equal(t, int64(1), status.LowPending)
	assert.False(t, status.Draining)

	_, err = e.Timeline.EnqueueLowPriority(ctx, testUser, day(12), day(12))
	assert.ErrorIs(t, err, ErrInvalidRange)
}
