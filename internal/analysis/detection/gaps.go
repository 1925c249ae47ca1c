package detection

import (
	"time"

	"github.com/tess1o/geopulse-sub001/internal/models"
)

// GapThresholds controls data gap materialization. A gap is recorded when the
// silence between two points is at least Threshold and the recorded interval
// is at least MinDuration. A zero Threshold disables gap detection.
type GapThresholds struct {
	Threshold   time.Duration
	MinDuration time.Duration
}

// GapThresholdsFromPreferences converts user preferences into gap thresholds
func GapThresholdsFromPreferences(p *models.TimelinePreferences) GapThresholds {
	return GapThresholds{
		Threshold:   time.Duration(p.GapThreshold()) * time.Second,
		MinDuration: time.Duration(p.GapMinDuration()) * time.Second,
	}
}

// Enabled reports whether gaps are detected at all
func (g GapThresholds) Enabled() bool {
	return g.Threshold > 0
}

// Qualifies reports whether a silence of length d becomes a data gap
func (g GapThresholds) Qualifies(d time.Duration) bool {
	return g.Enabled() && d >= g.Threshold && d >= g.MinDuration
}

// DetectDataGaps finds intervals in [windowStart, windowEnd) without points.
// anchor, when set, is the time of the last known point before the window;
// silences measured from it are clipped to windowStart. Gaps never extend
// past windowEnd.
func DetectDataGaps(points []models.GPSPoint, anchor *time.Time, windowStart, windowEnd time.Time, th GapThresholds) []models.DataGap {
	gaps := []models.DataGap{}
	if !th.Enabled() || !windowEnd.After(windowStart) {
		return gaps
	}

	cursor := windowStart
	if anchor != nil && anchor.Before(windowStart) {
		cursor = *anchor
	}

	emit := func(from, to time.Time) {
		if to.Sub(from) < th.Threshold {
			return
		}
		if from.Before(windowStart) {
			from = windowStart
		}
		if to.After(windowEnd) {
			to = windowEnd
		}
		if to.After(from) && to.Sub(from) >= th.MinDuration {
			gaps = append(gaps, models.DataGap{StartTime: from, EndTime: to})
		}
	}

	for _, p := range points {
		if p.Timestamp.Before(windowStart) {
			if p.Timestamp.After(cursor) {
				cursor = p.Timestamp
			}
			continue
		}
		if !p.Timestamp.Before(windowEnd) {
			break
		}
		emit(cursor, p.Timestamp)
		if p.Timestamp.After(cursor) {
			cursor = p.Timestamp
		}
	}
	emit(cursor, windowEnd)
	return gaps
}
