package models

import "time"

// LocationSource tells where a stay's location name came from
type LocationSource string

// LocationSource constants
const (
	LocationSourceFavorite   LocationSource = "FAVORITE"
	LocationSourceGeocoded   LocationSource = "GEOCODED"
	LocationSourceHistorical LocationSource = "HISTORICAL"
)

// Stay represents a period spent at one location
type Stay struct {
	ID              int64     `json:"id" db:"id"`
	UserID          string    `json:"userId" db:"user_id"`
	StartTime       time.Time `json:"timestamp" db:"start_time"`
	DurationSeconds int64     `json:"stayDuration" db:"duration_seconds"`
	Latitude        float64   `json:"latitude" db:"latitude"`
	Longitude       float64   `json:"longitude" db:"longitude"`

	// Location resolution
	LocationName   string         `json:"locationName" db:"location_name"`
	LocationSource LocationSource `json:"locationSource" db:"location_source"`
	FavoriteID     *int64         `json:"favoriteId,omitempty" db:"favorite_id"`
	GeocodingID    *int64         `json:"geocodingId,omitempty" db:"geocoding_id"`

	// Cache bookkeeping
	IsStale         bool      `json:"isStale" db:"is_stale"`
	TimelineVersion string    `json:"timelineVersion,omitempty" db:"timeline_version"`
	LastUpdated     time.Time `json:"lastUpdated" db:"last_updated"`
}

// Kind implements TimelineEvent
func (s Stay) Kind() EventKind { return EventKindStay }

// Start implements TimelineEvent
func (s Stay) Start() time.Time { return s.StartTime }

// End implements TimelineEvent
func (s Stay) End() time.Time {
	return s.StartTime.Add(time.Duration(s.DurationSeconds) * time.Second)
}

// ReferencesFavorite reports whether the stay was named after a favorite location
func (s Stay) ReferencesFavorite() bool {
	return s.FavoriteID != nil
}
