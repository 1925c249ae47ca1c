package service

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/tess1o/geopulse-sub001/internal/metrics"
	"github.com/tess1o/geopulse-sub001/internal/models"
)

// OvernightProcessor regenerates and persists past ranges. An event left
// open at the range start is extended in place rather than cut at midnight.
type OvernightProcessor struct {
	events    *EventStore
	gps       GPSSource
	generator *Generator
	prefs     PreferenceStore
	versions  *VersionService
	logger    *slog.Logger
}

// NewOvernightProcessor creates a new overnight processor
func NewOvernightProcessor(events *EventStore, gps GPSSource, generator *Generator, prefs PreferenceStore, versions *VersionService, logger *slog.Logger) *OvernightProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &OvernightProcessor{
		events:    events,
		gps:       gps,
		generator: generator,
		prefs:     prefs,
		versions:  versions,
		logger:    logger.With("component", "overnight_processor"),
	}
}

// GenerateRange implements RangeGenerator. The whole range is detected in
// one pass and persisted one UTC day per transaction.
func (p *OvernightProcessor) GenerateRange(ctx context.Context, userID string, start, end time.Time) error {
	if !end.After(start) {
		return nil
	}

	timer := time.Now()
	defer func() {
		metrics.GenerationDuration.WithLabelValues("range").Observe(time.Since(timer).Seconds())
	}()

	prefs, err := p.prefs.Get(ctx, userID)
	if err != nil {
		return err
	}

	// a stay or trip still running at start is continued before anything
	// that merely ended earlier
	prev, err := p.events.FindEventOpenAt(ctx, userID, start)
	if err != nil {
		return err
	}
	if prev == nil {
		prev, err = p.events.FindLatestEventBefore(ctx, userID, start)
		if err != nil {
			return err
		}
	}

	var result *GenerationResult
	if prev != nil && prev.Kind() != models.EventKindDataGap {
		result, err = p.extend(ctx, userID, prev, start, end, prefs)
		if err != nil {
			return err
		}
	}
	if result == nil {
		result, err = p.generator.Generate(ctx, userID, start, end, prefs)
		if err != nil {
			return err
		}
	}

	return p.persistByDay(ctx, userID, start, end, result)
}

// extend runs detection from the start of prev so that an event still open
// at start is seen whole. The first generated event of prev's kind updates
// prev in place; events starting at or after start are returned for
// persisting. A nil result means the standard path should be used.
func (p *OvernightProcessor) extend(ctx context.Context, userID string, prev models.TimelineEvent, start, end time.Time, prefs *models.TimelinePreferences) (*GenerationResult, error) {
	points, err := p.gps.FetchPoints(ctx, userID, prev.Start(), end)
	if err != nil {
		return nil, err
	}

	generated, err := p.generator.Run(ctx, userID, points, nil, start, end, prefs)
	if err != nil {
		return nil, err
	}

	match, ok := firstOfKind(generated, prev.Kind())
	if !ok || !match.Start().Before(start) {
		p.logger.Debug("no continuation found, using standard path", "user_id", userID, "start", start)
		return nil, nil
	}

	if match.End().After(prev.End()) {
		version, err := p.versions.Compute(ctx, userID, prev.Start())
		if err != nil {
			return nil, err
		}
		affected, err := p.events.ExtendEvent(ctx, prev, match.End(), version)
		if err != nil {
			return nil, err
		}
		if affected != 1 {
			metrics.OvernightConsistencyWarnings.Inc()
			p.logger.Warn("overnight extension did not update exactly one row",
				"user_id", userID, "kind", prev.Kind(), "affected", affected)
		}
	}

	result := &GenerationResult{Gaps: generated.Gaps}
	for _, st := range generated.Stays {
		if !st.StartTime.Before(start) && !(match.Kind() == models.EventKindStay && st.StartTime.Equal(match.Start())) {
			result.Stays = append(result.Stays, st)
		}
	}
	for _, tr := range generated.Trips {
		if !tr.StartTime.Before(start) && !(match.Kind() == models.EventKindTrip && tr.StartTime.Equal(match.Start())) {
			result.Trips = append(result.Trips, tr)
		}
	}
	return result, nil
}

func firstOfKind(result *GenerationResult, kind models.EventKind) (models.TimelineEvent, bool) {
	switch kind {
	case models.EventKindStay:
		if len(result.Stays) > 0 {
			return result.Stays[0], true
		}
	case models.EventKindTrip:
		if len(result.Trips) > 0 {
			return result.Trips[0], true
		}
	}
	return nil, false
}

// persistByDay groups events by the UTC day of their start and commits each
// day on its own. Days already committed stay committed if a later day fails.
func (p *OvernightProcessor) persistByDay(ctx context.Context, userID string, start, end time.Time, result *GenerationResult) error {
	days := map[time.Time]*DayEvents{}
	dayOf := func(t time.Time) *DayEvents {
		d := models.DayStart(t)
		if days[d] == nil {
			days[d] = &DayEvents{Day: d}
		}
		return days[d]
	}

	for _, st := range result.Stays {
		de := dayOf(st.StartTime)
		de.Stays = append(de.Stays, st)
	}
	for _, tr := range result.Trips {
		de := dayOf(tr.StartTime)
		de.Trips = append(de.Trips, tr)
	}
	for _, g := range splitGapsByDay(result.Gaps) {
		de := dayOf(g.StartTime)
		de.Gaps = append(de.Gaps, g)
	}

	ordered := make([]time.Time, 0, len(days))
	for d := range days {
		ordered = append(ordered, d)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Before(ordered[j]) })

	for _, d := range ordered {
		version, err := p.versions.Compute(ctx, userID, d)
		if err != nil {
			return err
		}
		if err := p.events.PersistDay(ctx, userID, *days[d], version); err != nil {
			return err
		}
	}

	p.logger.Info("timeline generated",
		"user_id", userID, "start", start, "end", end, "days", len(ordered),
		"stays", len(result.Stays), "trips", len(result.Trips), "gaps", len(result.Gaps))
	return nil
}

// splitGapsByDay cuts gaps at UTC midnight so each day owns its own coverage
func splitGapsByDay(gaps []models.DataGap) []models.DataGap {
	var out []models.DataGap
	for _, g := range gaps {
		for g.EndTime.After(models.DayStart(g.StartTime).Add(24 * time.Hour)) {
			cut := models.DayStart(g.StartTime).Add(24 * time.Hour)
			head := g
			head.EndTime = cut
			out = append(out, head)
			g.StartTime = cut
		}
		out = append(out, g)
	}
	return out
}
