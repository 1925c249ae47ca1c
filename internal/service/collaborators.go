package service

import (
	"context"
	"time"

	"github.com/tess1o/geopulse-sub001/internal/models"
)

// GPSSource supplies raw GPS points
type GPSSource interface {
	FetchPoints(ctx context.Context, userID string, start, end time.Time) ([]models.GPSPoint, error)
	FindLastBefore(ctx context.Context, userID string, ts time.Time) (*models.GPSPoint, error)
}

// PreferenceStore supplies per-user generation settings
type PreferenceStore interface {
	Get(ctx context.Context, userID string) (*models.TimelinePreferences, error)
}

// FavoriteStore is the read side of the named-location registry
type FavoriteStore interface {
	ListByUser(ctx context.Context, userID string) ([]models.FavoriteLocation, error)
}

// Geocoder reverse-geocodes coordinates. Implementations may call remote providers.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (name string, geocodingID int64, err error)
}

// ResolvedLocation is the outcome of naming a stay
type ResolvedLocation struct {
	Name        string
	Source      models.LocationSource
	FavoriteID  *int64
	GeocodingID *int64
}

// LocationResolver names a coordinate. It never fails: problems downgrade
// the result to a historical, coordinate-derived name.
type LocationResolver interface {
	Resolve(ctx context.Context, userID string, lat, lon float64) ResolvedLocation
}

// RangeGenerator regenerates and persists a user's timeline for a past range.
// Callers delete the range first.
type RangeGenerator interface {
	GenerateRange(ctx context.Context, userID string, start, end time.Time) error
}

// StaleReporter receives the days a reader found stale
type StaleReporter interface {
	ReportStale(ctx context.Context, userID string, days []time.Time) error
}
