package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tess1o/geopulse-sub001/internal/models"
)

func TestFingerprint(t *testing.T) {
	prefs := models.DefaultTimelinePreferences(testUser)
	favs := []models.FavoriteLocation{
		{ID: 2, Name: "Office", Type: models.FavoritePoint, Latitude: officeLat, Longitude: officeLon, RadiusMeters: 100},
		{ID: 1, Name: "Home", Type: models.FavoritePoint, Latitude: homeLat, Longitude: homeLon, RadiusMeters: 50},
	}
	base := Fingerprint(testUser, day(15), favs, prefs)

	t.Run("stable for the same inputs", func(t *testing.T) {
		reordered := []models.FavoriteLocation{favs[1], favs[0]}
		assert.Equal(t, base, Fingerprint(testUser, at(15, 18, 30), reordered, prefs))
	})

	t.Run("per day and user", func(t *testing.T) {
		assert.NotEqual(t, base, Fingerprint(testUser, day(16), favs, prefs))
		assert.NotEqual(t, base, Fingerprint("u2", day(15), favs, prefs))
	})

	t.Run("favorite changes", func(t *testing.T) {
		renamed := append([]models.FavoriteLocation(nil), favs...)
		renamed[0].Name = "Work"
		assert.NotEqual(t, base, Fingerprint(testUser, day(15), renamed, prefs))

		moved := append([]models.FavoriteLocation(nil), favs...)
		moved[1].RadiusMeters = 80
		assert.NotEqual(t, base, Fingerprint(testUser, day(15), moved, prefs))

		assert.NotEqual(t, base, Fingerprint(testUser, day(15), favs[:1], prefs))
	})

	t.Run("preference changes", func(t *testing.T) {
		changed := *prefs
		changed.StaypointRadiusMeters = 80
		assert.NotEqual(t, base, Fingerprint(testUser, day(15), favs, &changed))

		threshold := int64(3600)
		withGaps := *prefs
		withGaps.DataGapThresholdSeconds = &threshold
		assert.NotEqual(t, base, Fingerprint(testUser, day(15), favs, &withGaps))
	})
}

func TestVersionService(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	versions := NewVersionService(e.Favorites, e.Preferences)

	before, err := versions.Compute(ctx, testUser, day(15))
	require.NoError(t, err)
	assert.True(t, versions.IsCurrent(before, before))
	assert.False(t, versions.IsCurrent("", before), "missing fingerprint is stale")

	require.NoError(t, e.Favorites.Create(ctx, &models.FavoriteLocation{
		UserID: testUser, Name: "Gym", Type: models.FavoritePoint, Latitude: 1, Longitude: 1, RadiusMeters: 30,
	}))
	after, err := versions.Compute(ctx, testUser, day(15))
	require.NoError(t, err)
	assert.False(t, versions.IsCurrent(before, after))
}
