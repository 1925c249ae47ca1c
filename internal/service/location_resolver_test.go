package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tess1o/geopulse-sub001/internal/models"
	"github.com/tess1o/geopulse-sub001/internal/spatial"
)

func TestMatchFavorite(t *testing.T) {
	favorites := []models.FavoriteLocation{
		{ID: 1, Name: "Campus", Type: models.FavoriteArea,
			SouthWestLat: 50.44, SouthWestLon: 30.50, NorthEastLat: 50.47, NorthEastLon: 30.56},
		{ID: 2, Name: "Office", Type: models.FavoritePoint, Latitude: officeLat, Longitude: officeLon, RadiusMeters: 100},
		{ID: 3, Name: "Cafe", Type: models.FavoritePoint, Latitude: officeLat + 0.0005, Longitude: officeLon, RadiusMeters: 100},
	}

	match := MatchFavorite(favorites, officeLat, officeLon)
	require.NotNil(t, match)
	assert.Equal(t, int64(2), match.ID, "nearest point favorite wins")

	match = MatchFavorite(favorites, homeLat, homeLon)
	require.NotNil(t, match)
	assert.Equal(t, int64(1), match.ID, "area favorite when no point matches")

	assert.Nil(t, MatchFavorite(favorites, 48.85, 2.35))
}

func TestFavoriteResolver_Resolve(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	office := &models.FavoriteLocation{UserID: testUser, Name: "Office", Type: models.FavoritePoint,
		Latitude: officeLat, Longitude: officeLon, RadiusMeters: 100}
	require.NoError(t, e.Favorites.Create(ctx, office))

	t.Run("favorite first", func(t *testing.T) {
		r := NewFavoriteResolver(e.Favorites, &fakeGeocoder{name: "Street", id: 5}, quietLogger)
		nearLat, nearLon := spatial.DestinationPoint(officeLat, officeLon, 90, 40)
		loc := r.Resolve(ctx, testUser, nearLat, nearLon)
		assert.Equal(t, models.LocationSourceFavorite, loc.Source)
		assert.Equal(t, "Office", loc.Name)
		require.NotNil(t, loc.FavoriteID)
		assert.Equal(t, office.ID, *loc.FavoriteID)
	})

	t.Run("geocoder next", func(t *testing.T) {
		r := NewFavoriteResolver(e.Favorites, &fakeGeocoder{name: "Street", id: 5}, quietLogger)
		loc := r.Resolve(ctx, testUser, homeLat, homeLon)
		assert.Equal(t, models.LocationSourceGeocoded, loc.Source)
		assert.Equal(t, "Street", loc.Name)
		assert.Nil(t, loc.FavoriteID)
	})

	t.Run("failures degrade to coordinates", func(t *testing.T) {
		r := NewFavoriteResolver(e.Favorites, &fakeGeocoder{err: errBoom}, quietLogger)
		loc := r.Resolve(ctx, testUser, homeLat, homeLon)
		assert.Equal(t, models.LocationSourceHistorical, loc.Source)
		assert.Equal(t, "50.45000, 30.52000", loc.Name)
	})
}
