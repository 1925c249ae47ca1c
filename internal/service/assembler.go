package service

import (
	"context"
	"time"

	"github.com/tess1o/geopulse-sub001/internal/analysis/detection"
	"github.com/tess1o/geopulse-sub001/internal/models"
)

// latestEventFinder is the part of EventStore the assembler needs
type latestEventFinder interface {
	FindLatestEventBefore(ctx context.Context, userID string, ts time.Time) (models.TimelineEvent, error)
}

// Assembler merges partial snapshots and stitches them to earlier history
type Assembler struct {
	events latestEventFinder
}

// NewAssembler creates a new timeline assembler
func NewAssembler(events latestEventFinder) *Assembler {
	return &Assembler{events: events}
}

// Combine merges a past and a live snapshot. When the silence between the
// last past activity and the first live activity passes the user's gap
// thresholds, a data gap spanning exactly that silence is added.
func (a *Assembler) Combine(past, today *models.TimelineSnapshot, prefs *models.TimelinePreferences) *models.TimelineSnapshot {
	combined := models.NewSnapshot(past.UserID, models.DataSourceMixed, today.LastUpdated)
	combined.Stays = append(append(combined.Stays, past.Stays...), today.Stays...)
	combined.Trips = append(append(combined.Trips, past.Trips...), today.Trips...)
	combined.DataGaps = append(append(combined.DataGaps, past.DataGaps...), today.DataGaps...)
	combined.IsStale = past.IsStale || today.IsStale
	combined.SortEvents()

	pastEnd, okPast := lastActivityEnd(past)
	todayStart, okToday := firstActivityStart(today)
	if !okPast || !okToday || !todayStart.After(pastEnd) {
		return combined
	}

	if !detection.GapThresholdsFromPreferences(prefs).Qualifies(todayStart.Sub(pastEnd)) {
		return combined
	}
	if gapOverlaps(combined.DataGaps, pastEnd, todayStart) {
		return combined
	}

	combined.DataGaps = append(combined.DataGaps, models.DataGap{
		UserID:    past.UserID,
		StartTime: pastEnd,
		EndTime:   todayStart,
	})
	combined.SortEvents()
	return combined
}

// Enhance prepends a stretched copy of the latest earlier event when it does
// not already end where the snapshot begins. Gap-only snapshots are left alone.
func (a *Assembler) Enhance(ctx context.Context, snapshot *models.TimelineSnapshot, requestStart time.Time) error {
	if !snapshot.HasActivity() && len(snapshot.DataGaps) > 0 {
		return nil
	}

	firstStart := requestStart
	if earliest, ok := snapshot.EarliestStart(); ok {
		firstStart = earliest
	}
	lookup := requestStart
	if firstStart.Before(lookup) {
		lookup = firstStart
	}

	prev, err := a.events.FindLatestEventBefore(ctx, snapshot.UserID, lookup)
	if err != nil {
		return err
	}
	if prev == nil || !prev.End().Before(firstStart) {
		return nil
	}

	stretched := int64(firstStart.Sub(prev.Start()) / time.Second)
	switch e := prev.(type) {
	case models.Stay:
		e.DurationSeconds = stretched
		snapshot.Stays = append([]models.Stay{e}, snapshot.Stays...)
	case models.Trip:
		e.DurationSeconds = stretched
		snapshot.Trips = append([]models.Trip{e}, snapshot.Trips...)
	case models.DataGap:
		e.EndTime = firstStart
		snapshot.DataGaps = append([]models.DataGap{e}, snapshot.DataGaps...)
	}
	return nil
}

func lastActivityEnd(s *models.TimelineSnapshot) (time.Time, bool) {
	var end time.Time
	ok := false
	for _, st := range s.Stays {
		if !ok || st.End().After(end) {
			end, ok = st.End(), true
		}
	}
	for _, tr := range s.Trips {
		if !ok || tr.End().After(end) {
			end, ok = tr.End(), true
		}
	}
	return end, ok
}

func firstActivityStart(s *models.TimelineSnapshot) (time.Time, bool) {
	var start time.Time
	ok := false
	for _, st := range s.Stays {
		if !ok || st.StartTime.Before(start) {
			start, ok = st.StartTime, true
		}
	}
	for _, tr := range s.Trips {
		if !ok || tr.StartTime.Before(start) {
			start, ok = tr.StartTime, true
		}
	}
	return start, ok
}

func gapOverlaps(gaps []models.DataGap, start, end time.Time) bool {
	for _, g := range gaps {
		if g.StartTime.Before(end) && g.EndTime.After(start) {
			return true
		}
	}
	return false
}
