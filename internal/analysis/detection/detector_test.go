package detection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tess1o/geopulse-sub001/internal/models"
)

var testDay = time.Date(2024, 8, 15, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return testDay.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

// dwell returns one point per minute at a fixed location in [from, to]
func dwell(lat, lon float64, from, to time.Time) []models.GPSPoint {
	var points []models.GPSPoint
	for t := from; !t.After(to); t = t.Add(time.Minute) {
		points = append(points, models.GPSPoint{Timestamp: t, Latitude: lat, Longitude: lon})
	}
	return points
}

// travel returns one point per minute strictly between from and to,
// interpolated linearly between the two coordinates
func travel(lat1, lon1, lat2, lon2 float64, from, to time.Time) []models.GPSPoint {
	var points []models.GPSPoint
	steps := int(to.Sub(from) / time.Minute)
	for i := 1; i < steps; i++ {
		f := float64(i) / float64(steps)
		points = append(points, models.GPSPoint{
			Timestamp: from.Add(time.Duration(i) * time.Minute),
			Latitude:  lat1 + (lat2-lat1)*f,
			Longitude: lon1 + (lon2-lon1)*f,
		})
	}
	return points
}

func testConfig() Config {
	return ConfigFromPreferences(models.DefaultTimelinePreferences("u1"))
}

const (
	homeLat, homeLon     = 50.4500, 30.5200
	officeLat, officeLon = 50.4600, 30.5400
)

func commuteDay() []models.GPSPoint {
	var points []models.GPSPoint
	points = append(points, dwell(homeLat, homeLon, at(8, 0), at(9, 0))...)
	points = append(points, travel(homeLat, homeLon, officeLat, officeLon, at(9, 0), at(9, 20))...)
	points = append(points, dwell(officeLat, officeLon, at(9, 20), at(11, 0))...)
	return points
}

func TestDetect_StaysAndTripBetween(t *testing.T) {
	result, err := NewStaypointDetector().Detect(commuteDay(), testConfig())
	require.NoError(t, err)

	require.Len(t, result.Stays, 2)
	require.Len(t, result.Trips, 1)

	home, office := result.Stays[0], result.Stays[1]
	assert.Equal(t, at(8, 0), home.StartTime)
	assert.Equal(t, at(9, 0), home.End())
	assert.InDelta(t, homeLat, home.Latitude, 1e-6)
	assert.Equal(t, at(9, 20), office.StartTime)
	assert.Equal(t, at(11, 0), office.End())

	trip := result.Trips[0]
	assert.Equal(t, home.End(), trip.StartTime, "trip should start when the first stay ends")
	assert.Equal(t, office.StartTime, trip.End(), "trip should end when the next stay starts")
	assert.InDelta(t, 1800, trip.DistanceMeters, 150)
	assert.Equal(t, models.MovementWalk, trip.MovementType)
	assert.Contains(t, trip.PathJSON, "[30.52,50.45]", "path is stored as [lon, lat] pairs")
}

func TestDetect_MergesNearbyConsecutiveStays(t *testing.T) {
	// Second spot is ~110m north: outside the staypoint radius, inside the merge distance.
	var points []models.GPSPoint
	points = append(points, dwell(homeLat, homeLon, at(8, 0), at(8, 30))...)
	points = append(points, dwell(homeLat+0.001, homeLon, at(8, 31), at(9, 0))...)

	cfg := testConfig()
	cfg.MergeEnabled = false
	unmerged, err := NewStaypointDetector().Detect(points, cfg)
	require.NoError(t, err)
	assert.Len(t, unmerged.Stays, 2)
	assert.Len(t, unmerged.Trips, 1)

	cfg.MergeEnabled = true
	merged, err := NewStaypointDetector().Detect(points, cfg)
	require.NoError(t, err)
	require.Len(t, merged.Stays, 1)
	assert.Empty(t, merged.Trips)
	assert.Equal(t, at(8, 0), merged.Stays[0].StartTime)
	assert.Equal(t, at(9, 0), merged.Stays[0].End())
}

func TestDetect_SplitsOnPointGap(t *testing.T) {
	var points []models.GPSPoint
	points = append(points, dwell(homeLat, homeLon, at(1, 0), at(1, 30))...)
	points = append(points, dwell(homeLat, homeLon, at(5, 0), at(5, 30))...)

	cfg := testConfig()
	cfg.MergeEnabled = false
	result, err := NewStaypointDetector().Detect(points, cfg)
	require.NoError(t, err)
	assert.Len(t, result.Stays, 2)
	assert.Empty(t, result.Trips, "no movement is invented across the silence")
}

func TestDetect_NoTripAcrossLongSilence(t *testing.T) {
	var points []models.GPSPoint
	points = append(points, dwell(homeLat, homeLon, at(8, 0), at(9, 0))...)
	points = append(points, dwell(officeLat, officeLon, at(15, 0), at(17, 0))...)

	result, err := NewStaypointDetector().Detect(points, testConfig())
	require.NoError(t, err)
	require.Len(t, result.Stays, 2)
	assert.Empty(t, result.Trips)
}

// commuteWithHole drops the points of 09:06-09:13 from the commute
func commuteWithHole() []models.GPSPoint {
	var points []models.GPSPoint
	for _, p := range commuteDay() {
		if p.Timestamp.After(at(9, 5)) && p.Timestamp.Before(at(9, 14)) {
			continue
		}
		points = append(points, p)
	}
	return points
}

func TestDetect_TripsNeverOverlapDataGaps(t *testing.T) {
	thresholds := GapThresholds{Threshold: 5 * time.Minute}
	cfg := testConfig()
	cfg.MaxPointGap = 0
	cfg.GapBreak = thresholds.Threshold

	points := commuteWithHole()
	result, err := NewStaypointDetector().Detect(points, cfg)
	require.NoError(t, err)
	gaps := DetectDataGaps(points, nil, at(8, 0), at(11, 0), thresholds)

	require.Len(t, gaps, 1)
	assert.Equal(t, at(9, 5), gaps[0].StartTime)
	assert.Equal(t, at(9, 14), gaps[0].EndTime)

	require.Len(t, result.Trips, 2, "the commute is cut in two at the silence")
	assert.Equal(t, at(9, 0), result.Trips[0].StartTime)
	assert.Equal(t, at(9, 5), result.Trips[0].End())
	assert.Equal(t, at(9, 14), result.Trips[1].StartTime)
	assert.Equal(t, at(9, 20), result.Trips[1].End())

	for _, tr := range result.Trips {
		for _, g := range gaps {
			overlaps := tr.StartTime.Before(g.EndTime) && tr.End().After(g.StartTime)
			assert.False(t, overlaps, "trip %s-%s overlaps gap %s-%s", tr.StartTime, tr.End(), g.StartTime, g.EndTime)
		}
	}
}

func TestDetect_GapBreakSplitsStays(t *testing.T) {
	var points []models.GPSPoint
	points = append(points, dwell(homeLat, homeLon, at(8, 0), at(8, 30))...)
	points = append(points, dwell(homeLat, homeLon, at(8, 40), at(9, 10))...)

	cfg := testConfig()
	merged, err := NewStaypointDetector().Detect(points, cfg)
	require.NoError(t, err)
	assert.Len(t, merged.Stays, 1, "without gap detection the short silence is absorbed")

	cfg.GapBreak = 10 * time.Minute
	split, err := NewStaypointDetector().Detect(points, cfg)
	require.NoError(t, err)
	require.Len(t, split.Stays, 2, "a silence that becomes a gap is never merged over")
	assert.Equal(t, at(8, 30), split.Stays[0].End())
	assert.Equal(t, at(8, 40), split.Stays[1].StartTime)
	assert.Empty(t, split.Trips)
}

func TestConfigFromPreferences_GapBreakFollowsThreshold(t *testing.T) {
	prefs := models.DefaultTimelinePreferences("u1")
	assert.Zero(t, ConfigFromPreferences(prefs).GapBreak, "gaps are off by default")

	threshold := int64(3600)
	prefs.DataGapThresholdSeconds = &threshold
	assert.Equal(t, time.Hour, ConfigFromPreferences(prefs).GapBreak)
}

func TestDetect_ShortDwellIsNotAStay(t *testing.T) {
	points := dwell(homeLat, homeLon, at(8, 0), at(8, 5))
	result, err := NewStaypointDetector().Detect(points, testConfig())
	require.NoError(t, err)
	assert.Empty(t, result.Stays)
	assert.Empty(t, result.Trips, "a stationary run is not a trip either")
}

func TestDetect_EmptyInput(t *testing.T) {
	result, err := NewStaypointDetector().Detect(nil, testConfig())
	require.NoError(t, err)
	assert.Empty(t, result.Stays)
	assert.Empty(t, result.Trips)
}

func TestDetect_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.StaypointRadiusMeters = 0
	_, err := NewStaypointDetector().Detect(commuteDay(), cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestDetect_Deterministic(t *testing.T) {
	d := NewStaypointDetector()
	first, err := d.Detect(commuteDay(), testConfig())
	require.NoError(t, err)
	second, err := d.Detect(commuteDay(), testConfig())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestClassifyMovement(t *testing.T) {
	tests := []struct {
		name     string
		distance float64
		duration int64
		want     models.MovementType
	}{
		{"zero duration", 100, 0, models.MovementUnknown},
		{"walking", 1000, 1000, models.MovementWalk},
		{"cycling", 5000, 1000, models.MovementBicycle},
		{"driving", 20000, 1000, models.MovementCar},
		{"train", 50000, 1000, models.MovementTrain},
		{"flight", 200000, 1000, models.MovementFlight},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyMovement(tt.distance, tt.duration))
		})
	}
}
