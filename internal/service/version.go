package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tess1o/geopulse-sub001/internal/models"
)

const dateLayout = "2006-01-02"

// VersionService computes the content fingerprint a day's cached events are
// checked against. There is no dependency graph: any change to a user's
// favorites or generation preferences changes every day's fingerprint.
type VersionService struct {
	favorites FavoriteStore
	prefs     PreferenceStore
}

// NewVersionService creates a new version service
func NewVersionService(favorites FavoriteStore, prefs PreferenceStore) *VersionService {
	return &VersionService{favorites: favorites, prefs: prefs}
}

// Compute returns the current fingerprint for the user's day containing date
func (s *VersionService) Compute(ctx context.Context, userID string, date time.Time) (string, error) {
	favorites, err := s.favorites.ListByUser(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to load favorites: %w", err)
	}
	prefs, err := s.prefs.Get(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to load preferences: %w", err)
	}
	return Fingerprint(userID, date, favorites, prefs), nil
}

// IsCurrent reports whether a stored fingerprint matches the current one.
// A missing fingerprint is never current.
func (s *VersionService) IsCurrent(stored, current string) bool {
	return stored != "" && stored == current
}

// Fingerprint hashes the inputs that determine a day's generated timeline
func Fingerprint(userID string, date time.Time, favorites []models.FavoriteLocation, prefs *models.TimelinePreferences) string {
	sorted := make([]models.FavoriteLocation, len(favorites))
	copy(sorted, favorites)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var b strings.Builder
	fmt.Fprintf(&b, "user=%s\ndate=%s\n", userID, models.DayStart(date).Format(dateLayout))
	for _, f := range sorted {
		fmt.Fprintf(&b, "fav=%d|%s|%s|%.7f|%.7f|%.2f|%.7f|%.7f|%.7f|%.7f|%s|%s\n",
			f.ID, f.Name, f.Type, f.Latitude, f.Longitude, f.RadiusMeters,
			f.NorthEastLat, f.NorthEastLon, f.SouthWestLat, f.SouthWestLon,
			f.City, f.Country)
	}
	if prefs != nil {
		fmt.Fprintf(&b, "detect=%.2f|%d|%.2f|%d|%d|%s\n",
			prefs.StaypointRadiusMeters, prefs.StayMinDurationSeconds,
			prefs.TripMinDistanceMeters, prefs.TripMinDurationSeconds,
			prefs.MaxPointGapSeconds, prefs.Algorithm)
		fmt.Fprintf(&b, "merge=%t|%.2f|%d\n",
			prefs.MergeEnabled, prefs.MergeMaxDistanceMeters, prefs.MergeMaxGapSeconds)
		fmt.Fprintf(&b, "gaps=%s|%s\n",
			optionalSeconds(prefs.DataGapThresholdSeconds), optionalSeconds(prefs.DataGapMinDurationSeconds))
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func optionalSeconds(v *int64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}
