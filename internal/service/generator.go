package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tess1o/geopulse-sub001/internal/analysis/detection"
	"github.com/tess1o/geopulse-sub001/internal/metrics"
	"github.com/tess1o/geopulse-sub001/internal/models"
)

// GenerationResult holds freshly generated, not yet persisted events
type GenerationResult struct {
	Stays []models.Stay
	Trips []models.Trip
	Gaps  []models.DataGap
}

// Generator runs the generation pipeline: detection, stay naming and data
// gap detection. It never touches persisted timeline events.
type Generator struct {
	gps      GPSSource
	detector detection.Detector
	resolver LocationResolver
	logger   *slog.Logger
}

// NewGenerator creates a new generation pipeline
func NewGenerator(gps GPSSource, detector detection.Detector, resolver LocationResolver, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		gps:      gps,
		detector: detector,
		resolver: resolver,
		logger:   logger.With("component", "generator"),
	}
}

// Run turns points into events. Gaps are detected over [windowStart,
// windowEnd) only; anchor is the last known point before the window, if any.
func (g *Generator) Run(ctx context.Context, userID string, points []models.GPSPoint, anchor *time.Time, windowStart, windowEnd time.Time, prefs *models.TimelinePreferences) (*GenerationResult, error) {
	detected, err := g.detector.Detect(points, detection.ConfigFromPreferences(prefs))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDetectionFailed, err)
	}

	result := &GenerationResult{
		Stays: detected.Stays,
		Trips: detected.Trips,
		Gaps:  detection.DetectDataGaps(points, anchor, windowStart, windowEnd, detection.GapThresholdsFromPreferences(prefs)),
	}
	for i := range result.Stays {
		st := &result.Stays[i]
		st.UserID = userID
		applyLocation(st, g.resolver.Resolve(ctx, userID, st.Latitude, st.Longitude))
	}
	for i := range result.Trips {
		result.Trips[i].UserID = userID
	}
	for i := range result.Gaps {
		result.Gaps[i].UserID = userID
	}
	return result, nil
}

// Generate fetches points for [start, end) and runs the pipeline over them
func (g *Generator) Generate(ctx context.Context, userID string, start, end time.Time, prefs *models.TimelinePreferences) (*GenerationResult, error) {
	timer := time.Now()
	defer func() {
		metrics.GenerationDuration.WithLabelValues("window").Observe(time.Since(timer).Seconds())
	}()

	points, err := g.gps.FetchPoints(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}

	var anchor *time.Time
	last, err := g.gps.FindLastBefore(ctx, userID, start)
	if err != nil {
		return nil, err
	}
	if last != nil {
		anchor = &last.Timestamp
	}

	g.logger.Debug("generating timeline", "user_id", userID, "start", start, "end", end, "points", len(points))
	return g.Run(ctx, userID, points, anchor, start, end, prefs)
}
