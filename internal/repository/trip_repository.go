package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tess1o/geopulse-sub001/internal/models"
)

const tripColumns = `id, user_id, start_time, duration_seconds,
	start_lat, start_lon, end_lat, end_lon,
	distance_meters, movement_type, path_json,
	is_stale, timeline_version, last_updated`

// TripRepository handles database operations for timeline trips
type TripRepository struct {
	db DBTX
}

// NewTripRepository creates a new trip repository
func NewTripRepository(db DBTX) *TripRepository {
	return &TripRepository{db: db}
}

// WithTx returns a repository bound to the given transaction
func (r *TripRepository) WithTx(tx *sql.Tx) *TripRepository {
	return &TripRepository{db: tx}
}

func scanTrip(row scanner) (*models.Trip, error) {
	var t models.Trip
	var start, lastUpdated int64
	var isStale int
	err := row.Scan(
		&t.ID, &t.UserID, &start, &t.DurationSeconds,
		&t.StartLatitude, &t.StartLongitude, &t.EndLatitude, &t.EndLongitude,
		&t.DistanceMeters, &t.MovementType, &t.PathJSON,
		&isStale, &t.TimelineVersion, &lastUpdated,
	)
	if err != nil {
		return nil, err
	}
	t.StartTime = fromUnix(start)
	t.LastUpdated = fromUnix(lastUpdated)
	t.IsStale = isStale != 0
	return &t, nil
}

func (r *TripRepository) query(ctx context.Context, query string, args ...interface{}) ([]models.Trip, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trips: %w", err)
	}
	defer rows.Close()

	trips := []models.Trip{}
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trip: %w", err)
		}
		trips = append(trips, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trips: %w", err)
	}
	return trips, nil
}

// CountStartingIn counts trips whose start lies in [start, end)
func (r *TripRepository) CountStartingIn(ctx context.Context, userID string, start, end time.Time) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM timeline_trips WHERE user_id = ? AND start_time >= ? AND start_time < ?`,
		userID, unix(start), unix(end),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count trips: %w", err)
	}
	return count, nil
}

// FindOpenAt returns the latest-starting trip that began before ts and ends
// after it. Returns nil, nil when there is none.
func (r *TripRepository) FindOpenAt(ctx context.Context, userID string, ts time.Time) (*models.Trip, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+tripColumns+` FROM timeline_trips
		WHERE user_id = ? AND start_time < ? AND end_time > ?
		ORDER BY start_time DESC LIMIT 1`,
		userID, unix(ts), unix(ts),
	)
	t, err := scanTrip(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get open trip: %w", err)
	}
	return t, nil
}

// FindOverlapping returns trips intersecting [start, end) in full, ordered by start
func (r *TripRepository) FindOverlapping(ctx context.Context, userID string, start, end time.Time) ([]models.Trip, error) {
	return r.query(ctx,
		`SELECT `+tripColumns+` FROM timeline_trips
		WHERE user_id = ? AND start_time < ? AND end_time > ?
		ORDER BY start_time`,
		userID, unix(end), unix(start),
	)
}

// FindLatestEndingBefore returns the trip with the latest end time not after ts.
// Returns nil, nil when there is none.
func (r *TripRepository) FindLatestEndingBefore(ctx context.Context, userID string, ts time.Time) (*models.Trip, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+tripColumns+` FROM timeline_trips
		WHERE user_id = ? AND end_time <= ?
		ORDER BY end_time DESC, start_time DESC LIMIT 1`,
		userID, unix(ts),
	)
	t, err := scanTrip(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest trip: %w", err)
	}
	return t, nil
}

// Insert persists a trip and sets its ID
func (r *TripRepository) Insert(ctx context.Context, t *models.Trip) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO timeline_trips (
			user_id, start_time, end_time, duration_seconds,
			start_lat, start_lon, end_lat, end_lon,
			distance_meters, movement_type, path_json,
			is_stale, timeline_version, last_updated
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.UserID, unix(t.StartTime), unix(t.End()), t.DurationSeconds,
		t.StartLatitude, t.StartLongitude, t.EndLatitude, t.EndLongitude,
		t.DistanceMeters, t.MovementType, t.PathJSON,
		boolInt(t.IsStale), t.TimelineVersion, unix(t.LastUpdated),
	)
	if err != nil {
		return fmt.Errorf("failed to insert trip: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get trip id: %w", err)
	}
	t.ID = id
	return nil
}

// UpdateEnd moves a trip's end time in place and returns the rows affected
func (r *TripRepository) UpdateEnd(ctx context.Context, id int64, end time.Time, durationSeconds int64, version string, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE timeline_trips
		SET end_time = ?, duration_seconds = ?, timeline_version = ?, last_updated = ?
		WHERE id = ?`,
		unix(end), durationSeconds, version, unix(now), id,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update trip end: %w", err)
	}
	return result.RowsAffected()
}

// MarkStale flags every trip starting in [start, end) as stale
func (r *TripRepository) MarkStale(ctx context.Context, userID string, start, end time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE timeline_trips SET is_stale = 1
		WHERE user_id = ? AND start_time >= ? AND start_time < ?`,
		userID, unix(start), unix(end),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark trips stale: %w", err)
	}
	return result.RowsAffected()
}

// DeleteStartingIn removes trips whose start lies in [start, end)
func (r *TripRepository) DeleteStartingIn(ctx context.Context, userID string, start, end time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM timeline_trips WHERE user_id = ? AND start_time >= ? AND start_time < ?`,
		userID, unix(start), unix(end),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete trips: %w", err)
	}
	return result.RowsAffected()
}

// StampDay sets the version of every trip starting in [start, end) and clears the stale flag
func (r *TripRepository) StampDay(ctx context.Context, userID string, start, end time.Time, version string, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE timeline_trips SET is_stale = 0, timeline_version = ?, last_updated = ?
		WHERE user_id = ? AND start_time >= ? AND start_time < ?`,
		version, unix(now), userID, unix(start), unix(end),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to stamp trips: %w", err)
	}
	return result.RowsAffected()
}
