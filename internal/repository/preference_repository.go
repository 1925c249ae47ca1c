package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tess1o/geopulse-sub001/internal/models"
)

// PreferenceRepository handles database operations for timeline preferences
type PreferenceRepository struct {
	db DBTX
}

// NewPreferenceRepository creates a new preference repository
func NewPreferenceRepository(db DBTX) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

// Get returns the user's stored preferences, falling back to defaults
func (r *PreferenceRepository) Get(ctx context.Context, userID string) (*models.TimelinePreferences, error) {
	p := models.TimelinePreferences{UserID: userID}
	var mergeEnabled int
	var threshold, minDuration sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT staypoint_radius_meters, stay_min_duration_seconds,
			trip_min_distance_meters, trip_min_duration_seconds, max_point_gap_seconds, algorithm,
			merge_enabled, merge_max_distance_meters, merge_max_gap_seconds,
			data_gap_threshold_seconds, data_gap_min_duration_seconds
		FROM timeline_preferences WHERE user_id = ?`,
		userID,
	).Scan(
		&p.StaypointRadiusMeters, &p.StayMinDurationSeconds,
		&p.TripMinDistanceMeters, &p.TripMinDurationSeconds, &p.MaxPointGapSeconds, &p.Algorithm,
		&mergeEnabled, &p.MergeMaxDistanceMeters, &p.MergeMaxGapSeconds,
		&threshold, &minDuration,
	)
	if err == sql.ErrNoRows {
		return models.DefaultTimelinePreferences(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get preferences: %w", err)
	}
	p.MergeEnabled = mergeEnabled != 0
	p.DataGapThresholdSeconds = int64Ptr(threshold)
	p.DataGapMinDurationSeconds = int64Ptr(minDuration)
	return &p, nil
}

// Save inserts or replaces the user's preferences
func (r *PreferenceRepository) Save(ctx context.Context, p *models.TimelinePreferences) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO timeline_preferences (
			user_id, staypoint_radius_meters, stay_min_duration_seconds,
			trip_min_distance_meters, trip_min_duration_seconds, max_point_gap_seconds, algorithm,
			merge_enabled, merge_max_distance_meters, merge_max_gap_seconds,
			data_gap_threshold_seconds, data_gap_min_duration_seconds
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			staypoint_radius_meters = excluded.staypoint_radius_meters,
			stay_min_duration_seconds = excluded.stay_min_duration_seconds,
			trip_min_distance_meters = excluded.trip_min_distance_meters,
			trip_min_duration_seconds = excluded.trip_min_duration_seconds,
			max_point_gap_seconds = excluded.max_point_gap_seconds,
			algorithm = excluded.algorithm,
			merge_enabled = excluded.merge_enabled,
			merge_max_distance_meters = excluded.merge_max_distance_meters,
			merge_max_gap_seconds = excluded.merge_max_gap_seconds,
			data_gap_threshold_seconds = excluded.data_gap_threshold_seconds,
			data_gap_min_duration_seconds = excluded.data_gap_min_duration_seconds`,
		p.UserID, p.StaypointRadiusMeters, p.StayMinDurationSeconds,
		p.TripMinDistanceMeters, p.TripMinDurationSeconds, p.MaxPointGapSeconds, p.Algorithm,
		boolInt(p.MergeEnabled), p.MergeMaxDistanceMeters, p.MergeMaxGapSeconds,
		nullInt64(p.DataGapThresholdSeconds), nullInt64(p.DataGapMinDurationSeconds),
	)
	if err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}
