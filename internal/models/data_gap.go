package models

import "time"

// DataGap records an interval without any GPS coverage.
// It is data, not an error: it separates "nothing happened" from "no idea".
type DataGap struct {
	ID              int64     `json:"id" db:"id"`
	UserID          string    `json:"userId" db:"user_id"`
	StartTime       time.Time `json:"startTime" db:"start_time"`
	EndTime         time.Time `json:"endTime" db:"end_time"`
	TimelineVersion string    `json:"timelineVersion,omitempty" db:"timeline_version"`
	LastUpdated     time.Time `json:"lastUpdated" db:"last_updated"`
}

// Kind implements TimelineEvent
func (g DataGap) Kind() EventKind { return EventKindDataGap }

// Start implements TimelineEvent
func (g DataGap) Start() time.Time { return g.StartTime }

// End implements TimelineEvent
func (g DataGap) End() time.Time { return g.EndTime }

// DurationSeconds returns the gap length in seconds
func (g DataGap) DurationSeconds() int64 {
	return int64(g.EndTime.Sub(g.StartTime) / time.Second)
}
