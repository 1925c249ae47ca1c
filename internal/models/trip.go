package models

import "time"

// MovementType classifies how a trip was travelled
type MovementType string

// MovementType constants
const (
	MovementWalk    MovementType = "WALK"
	MovementBicycle MovementType = "BICYCLE"
	MovementCar     MovementType = "CAR"
	MovementTrain   MovementType = "TRAIN"
	MovementFlight  MovementType = "FLIGHT"
	MovementUnknown MovementType = "UNKNOWN"
)

// Trip represents movement between two stays
type Trip struct {
	ID              int64     `json:"id" db:"id"`
	UserID          string    `json:"userId" db:"user_id"`
	StartTime       time.Time `json:"timestamp" db:"start_time"`
	DurationSeconds int64     `json:"tripDuration" db:"duration_seconds"`

	// Origin and destination
	StartLatitude  float64 `json:"startLatitude" db:"start_lat"`
	StartLongitude float64 `json:"startLongitude" db:"start_lon"`
	EndLatitude    float64 `json:"endLatitude" db:"end_lat"`
	EndLongitude   float64 `json:"endLongitude" db:"end_lon"`

	// Trip characteristics
	DistanceMeters float64      `json:"distanceMeters" db:"distance_meters"`
	MovementType   MovementType `json:"movementType" db:"movement_type"`
	PathJSON       string       `json:"path,omitempty" db:"path_json"` // JSON array of [lon, lat] pairs

	// Cache bookkeeping
	IsStale         bool      `json:"isStale" db:"is_stale"`
	TimelineVersion string    `json:"timelineVersion,omitempty" db:"timeline_version"`
	LastUpdated     time.Time `json:"lastUpdated" db:"last_updated"`
}

// Kind implements TimelineEvent
func (t Trip) Kind() EventKind { return EventKindTrip }

// Start implements TimelineEvent
func (t Trip) Start() time.Time { return t.StartTime }

// End implements TimelineEvent
func (t Trip) End() time.Time {
	return t.StartTime.Add(time.Duration(t.DurationSeconds) * time.Second)
}
