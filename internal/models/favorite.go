package models

import "time"

// FavoriteType is the geometry kind of a favorite location
type FavoriteType string

// FavoriteType constants
const (
	FavoritePoint FavoriteType = "POINT"
	FavoriteArea  FavoriteType = "AREA"
)

// FavoriteLocation is a user-named place. POINT favorites match within
// RadiusMeters of their center, AREA favorites match inside their bounding box.
type FavoriteLocation struct {
	ID           int64        `json:"id" db:"id"`
	UserID       string       `json:"userId" db:"user_id"`
	Name         string       `json:"name" db:"name"`
	Type         FavoriteType `json:"type" db:"type"`
	Latitude     float64      `json:"latitude" db:"latitude"`
	Longitude    float64      `json:"longitude" db:"longitude"`
	RadiusMeters float64      `json:"radiusMeters" db:"radius_meters"`

	// Bounding box, AREA only
	NorthEastLat float64 `json:"northEastLat,omitempty" db:"ne_lat"`
	NorthEastLon float64 `json:"northEastLon,omitempty" db:"ne_lon"`
	SouthWestLat float64 `json:"southWestLat,omitempty" db:"sw_lat"`
	SouthWestLon float64 `json:"southWestLon,omitempty" db:"sw_lon"`

	City    string `json:"city,omitempty" db:"city"`
	Country string `json:"country,omitempty" db:"country"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// LocationChangeType describes what happened to a favorite
type LocationChangeType string

// LocationChangeType constants
const (
	LocationAdded   LocationChangeType = "ADDED"
	LocationRenamed LocationChangeType = "RENAMED"
	LocationDeleted LocationChangeType = "DELETED"
)

// LocationChangeEvent is published whenever a favorite is added, renamed or
// deleted. Favorite carries the geometry as it was when the event happened.
type LocationChangeEvent struct {
	Type       LocationChangeType `json:"type" binding:"required,oneof=ADDED RENAMED DELETED"`
	UserID     string             `json:"userId"`
	FavoriteID int64              `json:"favoriteId" binding:"required"`
	Favorite   *FavoriteLocation  `json:"favorite,omitempty"`
}
