package models

import (
	"sort"
	"time"
)

// EventKind identifies the variant of a TimelineEvent
type EventKind string

// EventKind constants
const (
	EventKindStay    EventKind = "STAY"
	EventKindTrip    EventKind = "TRIP"
	EventKindDataGap EventKind = "DATA_GAP"
)

// TimelineEvent is implemented by Stay, Trip and DataGap
type TimelineEvent interface {
	Kind() EventKind
	Start() time.Time
	End() time.Time
}

// DataSource tells the caller how a snapshot was produced
type DataSource string

// DataSource constants
const (
	DataSourceLive         DataSource = "LIVE"
	DataSourceCached       DataSource = "CACHED"
	DataSourceMixed        DataSource = "MIXED"
	DataSourceRegenerating DataSource = "REGENERATING"
)

// TimelineSnapshot is the value returned for a timeline request
type TimelineSnapshot struct {
	UserID      string     `json:"userId"`
	Stays       []Stay     `json:"stays"`
	Trips       []Trip     `json:"trips"`
	DataGaps    []DataGap  `json:"dataGaps"`
	DataSource  DataSource `json:"dataSource"`
	LastUpdated time.Time  `json:"lastUpdated"`
	IsStale     bool       `json:"isStale"`
}

// NewSnapshot returns an empty snapshot with non-nil event lists
func NewSnapshot(userID string, source DataSource, now time.Time) *TimelineSnapshot {
	return &TimelineSnapshot{
		UserID:      userID,
		Stays:       []Stay{},
		Trips:       []Trip{},
		DataGaps:    []DataGap{},
		DataSource:  source,
		LastUpdated: now,
	}
}

// IsEmpty reports whether the snapshot holds no events at all
func (s *TimelineSnapshot) IsEmpty() bool {
	return len(s.Stays) == 0 && len(s.Trips) == 0 && len(s.DataGaps) == 0
}

// HasActivity reports whether the snapshot contains any stay or trip
func (s *TimelineSnapshot) HasActivity() bool {
	return len(s.Stays) > 0 || len(s.Trips) > 0
}

// EarliestStart returns the earliest start across all events.
// ok is false for an empty snapshot.
func (s *TimelineSnapshot) EarliestStart() (t time.Time, ok bool) {
	for _, e := range s.Events() {
		if !ok || e.Start().Before(t) {
			t, ok = e.Start(), true
		}
	}
	return t, ok
}

// Events returns every event ordered by start time
func (s *TimelineSnapshot) Events() []TimelineEvent {
	events := make([]TimelineEvent, 0, len(s.Stays)+len(s.Trips)+len(s.DataGaps))
	for _, st := range s.Stays {
		events = append(events, st)
	}
	for _, tr := range s.Trips {
		events = append(events, tr)
	}
	for _, g := range s.DataGaps {
		events = append(events, g)
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Start().Before(events[j].Start())
	})
	return events
}

// SortEvents orders each event list by start time
func (s *TimelineSnapshot) SortEvents() {
	sort.SliceStable(s.Stays, func(i, j int) bool { return s.Stays[i].StartTime.Before(s.Stays[j].StartTime) })
	sort.SliceStable(s.Trips, func(i, j int) bool { return s.Trips[i].StartTime.Before(s.Trips[j].StartTime) })
	sort.SliceStable(s.DataGaps, func(i, j int) bool { return s.DataGaps[i].StartTime.Before(s.DataGaps[j].StartTime) })
}

// DayStart truncates t to 00:00 UTC of its day
func DayStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
