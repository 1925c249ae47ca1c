package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tess1o/geopulse-sub001/internal/models"
	"github.com/tess1o/geopulse-sub001/internal/spatial"
)

// FavoriteResolver names stays from the user's favorites first, then an
// optional geocoder, and finally from the coordinates themselves
type FavoriteResolver struct {
	favorites FavoriteStore
	geocoder  Geocoder
	logger    *slog.Logger
}

// NewFavoriteResolver creates a resolver. geocoder may be nil.
func NewFavoriteResolver(favorites FavoriteStore, geocoder Geocoder, logger *slog.Logger) *FavoriteResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &FavoriteResolver{
		favorites: favorites,
		geocoder:  geocoder,
		logger:    logger.With("component", "location_resolver"),
	}
}

// Resolve implements LocationResolver
func (r *FavoriteResolver) Resolve(ctx context.Context, userID string, lat, lon float64) ResolvedLocation {
	favorites, err := r.favorites.ListByUser(ctx, userID)
	if err != nil {
		r.logger.Warn("favorite lookup failed, falling back", "user_id", userID, "error", err)
	} else if fav := MatchFavorite(favorites, lat, lon); fav != nil {
		id := fav.ID
		return ResolvedLocation{Name: fav.Name, Source: models.LocationSourceFavorite, FavoriteID: &id}
	}

	if r.geocoder != nil {
		name, geoID, err := r.geocoder.ReverseGeocode(ctx, lat, lon)
		if err != nil {
			r.logger.Warn("reverse geocoding failed", "lat", lat, "lon", lon, "error", err)
		} else if name != "" {
			id := geoID
			return ResolvedLocation{Name: name, Source: models.LocationSourceGeocoded, GeocodingID: &id}
		}
	}

	return ResolvedLocation{Name: HistoricalName(lat, lon), Source: models.LocationSourceHistorical}
}

// MatchFavorite returns the favorite containing the coordinate. The nearest
// matching POINT favorite wins over AREA favorites.
func MatchFavorite(favorites []models.FavoriteLocation, lat, lon float64) *models.FavoriteLocation {
	var best *models.FavoriteLocation
	bestDist := 0.0
	for i := range favorites {
		f := &favorites[i]
		if f.Type != models.FavoritePoint {
			continue
		}
		if !spatial.WithinRadius(f.Latitude, f.Longitude, lat, lon, f.RadiusMeters) {
			continue
		}
		d := spatial.HaversineDistance(f.Latitude, f.Longitude, lat, lon)
		if best == nil || d < bestDist {
			best, bestDist = f, d
		}
	}
	if best != nil {
		return best
	}

	for i := range favorites {
		f := &favorites[i]
		if f.Type == models.FavoriteArea && FavoriteBounds(*f).Contains(lat, lon) {
			return f
		}
	}
	return nil
}

// FavoriteBounds returns the rectangle a favorite can match inside
func FavoriteBounds(f models.FavoriteLocation) spatial.Bounds {
	if f.Type == models.FavoriteArea {
		return spatial.NewBounds(f.SouthWestLat, f.SouthWestLon, f.NorthEastLat, f.NorthEastLon)
	}
	return spatial.BoundsAround(f.Latitude, f.Longitude, f.RadiusMeters)
}

// HistoricalName is the fallback name derived from coordinates
func HistoricalName(lat, lon float64) string {
	return fmt.Sprintf("%.5f, %.5f", lat, lon)
}

func applyLocation(stay *models.Stay, loc ResolvedLocation) {
	stay.LocationName = loc.Name
	stay.LocationSource = loc.Source
	stay.FavoriteID = loc.FavoriteID
	stay.GeocodingID = loc.GeocodingID
}
