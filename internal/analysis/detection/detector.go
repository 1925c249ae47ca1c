// Package detection turns raw GPS points into stays, trips and data gaps.
// Everything here is pure: no I/O, deterministic for identical input.
package detection

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/tess1o/geopulse-sub001/internal/models"
	"github.com/tess1o/geopulse-sub001/internal/spatial"
)

// ErrInvalidConfig is returned when detection thresholds cannot be used
var ErrInvalidConfig = errors.New("invalid detection config")

// Config holds the thresholds used by staypoint detection
type Config struct {
	StaypointRadiusMeters  float64
	MinStayDuration        time.Duration
	TripMinDistanceMeters  float64
	TripMinDuration        time.Duration
	MaxPointGap            time.Duration // 0 disables splitting on point gaps
	GapBreak               time.Duration // silences this long become data gaps; 0 when gaps are off
	MergeEnabled           bool
	MergeMaxDistanceMeters float64
	MergeMaxGap            time.Duration
}

// ConfigFromPreferences converts user preferences into a detection config
func ConfigFromPreferences(p *models.TimelinePreferences) Config {
	return Config{
		StaypointRadiusMeters:  p.StaypointRadiusMeters,
		MinStayDuration:        time.Duration(p.StayMinDurationSeconds) * time.Second,
		TripMinDistanceMeters:  p.TripMinDistanceMeters,
		TripMinDuration:        time.Duration(p.TripMinDurationSeconds) * time.Second,
		MaxPointGap:            time.Duration(p.MaxPointGapSeconds) * time.Second,
		MergeEnabled:           p.MergeEnabled,
		MergeMaxDistanceMeters: p.MergeMaxDistanceMeters,
		MergeMaxGap:            time.Duration(p.MergeMaxGapSeconds) * time.Second,
		GapBreak:               time.Duration(p.GapThreshold()) * time.Second,
	}
}

// breaks reports whether the silence between two consecutive points ends any
// stay or trip running across it
func (c Config) breaks(silence time.Duration) bool {
	if c.MaxPointGap > 0 && silence > c.MaxPointGap {
		return true
	}
	return c.GapBreak > 0 && silence >= c.GapBreak
}

// Validate checks that the config can drive detection
func (c Config) Validate() error {
	if c.StaypointRadiusMeters <= 0 {
		return fmt.Errorf("%w: staypoint radius must be positive", ErrInvalidConfig)
	}
	if c.MinStayDuration <= 0 {
		return fmt.Errorf("%w: minimum stay duration must be positive", ErrInvalidConfig)
	}
	if c.MaxPointGap < 0 || c.TripMinDuration < 0 || c.MergeMaxGap < 0 || c.GapBreak < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Result is the output of a detection run. Stays and trips carry times,
// coordinates and trip metrics only; naming and ownership are set by callers.
type Result struct {
	Stays []models.Stay
	Trips []models.Trip
}

// Detector detects stays and trips from ordered GPS points
type Detector interface {
	Detect(points []models.GPSPoint, cfg Config) (*Result, error)
}

// StaypointDetector clusters points by radius and dwell time
type StaypointDetector struct{}

// NewStaypointDetector creates a new staypoint detector
func NewStaypointDetector() *StaypointDetector {
	return &StaypointDetector{}
}

// cluster is a run of points, by index, that forms one stay
type cluster struct {
	first, last int
	center      spatial.Point
	weight      int
}

// Detect implements Detector
func (d *StaypointDetector) Detect(points []models.GPSPoint, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	result := &Result{Stays: []models.Stay{}, Trips: []models.Trip{}}
	if len(points) == 0 {
		return result, nil
	}

	sorted := make([]models.GPSPoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	clusters := findClusters(sorted, cfg)
	if cfg.MergeEnabled {
		clusters = mergeClusters(sorted, clusters, cfg)
	}

	for _, c := range clusters {
		start := sorted[c.first].Timestamp
		end := sorted[c.last].Timestamp
		result.Stays = append(result.Stays, models.Stay{
			StartTime:       start,
			DurationSeconds: int64(end.Sub(start) / time.Second),
			Latitude:        c.center.Lat,
			Longitude:       c.center.Lon,
		})
	}

	result.Trips = buildTrips(sorted, clusters, cfg)
	return result, nil
}

// findClusters runs the classic radius/duration staypoint scan: grow a window
// from an anchor point while points stay within the radius, and accept it as
// a stay if it lasts at least the minimum duration.
func findClusters(points []models.GPSPoint, cfg Config) []cluster {
	var clusters []cluster
	i := 0
	for i < len(points) {
		anchor := points[i]
		j := i + 1
		for j < len(points) {
			if cfg.breaks(points[j].Timestamp.Sub(points[j-1].Timestamp)) {
				break
			}
			if spatial.HaversineDistance(anchor.Latitude, anchor.Longitude, points[j].Latitude, points[j].Longitude) > cfg.StaypointRadiusMeters {
				break
			}
			j++
		}

		if points[j-1].Timestamp.Sub(anchor.Timestamp) >= cfg.MinStayDuration {
			clusters = append(clusters, newCluster(points, i, j-1))
			i = j
			continue
		}
		i++
	}
	return clusters
}

func newCluster(points []models.GPSPoint, first, last int) cluster {
	members := make([]spatial.Point, 0, last-first+1)
	for k := first; k <= last; k++ {
		members = append(members, spatial.Point{Lat: points[k].Latitude, Lon: points[k].Longitude})
	}
	return cluster{first: first, last: last, center: spatial.Centroid(members), weight: len(members)}
}

// mergeClusters joins consecutive stays that are close in space and time
func mergeClusters(points []models.GPSPoint, clusters []cluster, cfg Config) []cluster {
	if len(clusters) < 2 {
		return clusters
	}

	merged := []cluster{clusters[0]}
	for _, next := range clusters[1:] {
		prev := &merged[len(merged)-1]
		gap := points[next.first].Timestamp.Sub(points[prev.last].Timestamp)
		dist := spatial.HaversineDistance(prev.center.Lat, prev.center.Lon, next.center.Lat, next.center.Lon)
		if gap <= cfg.MergeMaxGap && dist <= cfg.MergeMaxDistanceMeters && !cfg.breaks(gap) {
			total := float64(prev.weight + next.weight)
			prev.center = spatial.Point{
				Lat: (prev.center.Lat*float64(prev.weight) + next.center.Lat*float64(next.weight)) / total,
				Lon: (prev.center.Lon*float64(prev.weight) + next.center.Lon*float64(next.weight)) / total,
			}
			prev.weight += next.weight
			prev.last = next.last
			continue
		}
		merged = append(merged, next)
	}
	return merged
}

// buildTrips creates trips for the movement between consecutive stays, plus
// leading and trailing movement when it is long enough to matter. Movement is
// never bridged across a breaking silence: each side becomes its own trip.
func buildTrips(points []models.GPSPoint, clusters []cluster, cfg Config) []models.Trip {
	trips := []models.Trip{}
	add := func(from, to int, checked bool) {
		for _, run := range splitRuns(points, from, to, cfg) {
			t, ok := newTrip(points, run[0], run[1])
			if !ok || (checked && !qualifies(t, cfg)) {
				continue
			}
			trips = append(trips, t)
		}
	}

	if len(clusters) == 0 {
		add(0, len(points)-1, true)
		return trips
	}

	if clusters[0].first > 0 {
		add(0, clusters[0].first, true)
	}

	for k := 0; k+1 < len(clusters); k++ {
		add(clusters[k].last, clusters[k+1].first, false)
	}

	last := clusters[len(clusters)-1].last
	if last < len(points)-1 {
		add(last, len(points)-1, true)
	}
	return trips
}

// splitRuns cuts the index range [from, to] at every breaking silence
func splitRuns(points []models.GPSPoint, from, to int, cfg Config) [][2]int {
	var runs [][2]int
	runStart := from
	for k := from + 1; k <= to; k++ {
		if cfg.breaks(points[k].Timestamp.Sub(points[k-1].Timestamp)) {
			runs = append(runs, [2]int{runStart, k - 1})
			runStart = k
		}
	}
	return append(runs, [2]int{runStart, to})
}

func qualifies(t models.Trip, cfg Config) bool {
	return t.DistanceMeters >= cfg.TripMinDistanceMeters &&
		time.Duration(t.DurationSeconds)*time.Second >= cfg.TripMinDuration
}

func newTrip(points []models.GPSPoint, from, to int) (models.Trip, bool) {
	if to <= from {
		return models.Trip{}, false
	}
	start := points[from].Timestamp
	end := points[to].Timestamp
	duration := int64(end.Sub(start) / time.Second)
	if duration <= 0 {
		return models.Trip{}, false
	}

	path := make([]spatial.Point, 0, to-from+1)
	coords := make([][2]float64, 0, to-from+1)
	for k := from; k <= to; k++ {
		path = append(path, spatial.Point{Lat: points[k].Latitude, Lon: points[k].Longitude})
		coords = append(coords, [2]float64{points[k].Longitude, points[k].Latitude})
	}
	distance := spatial.PathLength(path)
	pathJSON, _ := json.Marshal(coords)

	return models.Trip{
		StartTime:       start,
		DurationSeconds: duration,
		StartLatitude:   points[from].Latitude,
		StartLongitude:  points[from].Longitude,
		EndLatitude:     points[to].Latitude,
		EndLongitude:    points[to].Longitude,
		DistanceMeters:  distance,
		MovementType:    ClassifyMovement(distance, duration),
		PathJSON:        string(pathJSON),
	}, true
}
