package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tess1o/geopulse-sub001/internal/models"
)

const stayColumns = `id, user_id, start_time, duration_seconds, latitude, longitude,
	location_name, location_source, favorite_id, geocoding_id,
	is_stale, timeline_version, last_updated`

// StayRepository handles database operations for timeline stays
type StayRepository struct {
	db DBTX
}

// NewStayRepository creates a new stay repository
func NewStayRepository(db DBTX) *StayRepository {
	return &StayRepository{db: db}
}

// WithTx returns a repository bound to the given transaction
func (r *StayRepository) WithTx(tx *sql.Tx) *StayRepository {
	return &StayRepository{db: tx}
}

func scanStay(row scanner) (*models.Stay, error) {
	var s models.Stay
	var start, lastUpdated int64
	var favoriteID, geocodingID sql.NullInt64
	var isStale int
	err := row.Scan(
		&s.ID, &s.UserID, &start, &s.DurationSeconds, &s.Latitude, &s.Longitude,
		&s.LocationName, &s.LocationSource, &favoriteID, &geocodingID,
		&isStale, &s.TimelineVersion, &lastUpdated,
	)
	if err != nil {
		return nil, err
	}
	s.StartTime = fromUnix(start)
	s.LastUpdated = fromUnix(lastUpdated)
	s.FavoriteID = int64Ptr(favoriteID)
	s.GeocodingID = int64Ptr(geocodingID)
	s.IsStale = isStale != 0
	return &s, nil
}

func (r *StayRepository) query(ctx context.Context, query string, args ...interface{}) ([]models.Stay, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stays: %w", err)
	}
	defer rows.Close()

	stays := []models.Stay{}
	for rows.Next() {
		s, err := scanStay(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stay: %w", err)
		}
		stays = append(stays, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stays: %w", err)
	}
	return stays, nil
}

// CountStartingIn counts stays whose start lies in [start, end)
func (r *StayRepository) CountStartingIn(ctx context.Context, userID string, start, end time.Time) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM timeline_stays WHERE user_id = ? AND start_time >= ? AND start_time < ?`,
		userID, unix(start), unix(end),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count stays: %w", err)
	}
	return count, nil
}

// ExistsCovering reports whether a single stay contains all of [start, end)
func (r *StayRepository) ExistsCovering(ctx context.Context, userID string, start, end time.Time) (bool, error) {
	var exists int
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM timeline_stays WHERE user_id = ? AND start_time <= ? AND end_time >= ?)`,
		userID, unix(start), unix(end),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check covering stay: %w", err)
	}
	return exists == 1, nil
}

// FindOpenAt returns the latest-starting stay that began before ts and ends
// after it. Returns nil, nil when there is none.
func (r *StayRepository) FindOpenAt(ctx context.Context, userID string, ts time.Time) (*models.Stay, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+stayColumns+` FROM timeline_stays
		WHERE user_id = ? AND start_time < ? AND end_time > ?
		ORDER BY start_time DESC LIMIT 1`,
		userID, unix(ts), unix(ts),
	)
	s, err := scanStay(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get open stay: %w", err)
	}
	return s, nil
}

// FindOverlapping returns stays intersecting [start, end) in full, ordered by start
func (r *StayRepository) FindOverlapping(ctx context.Context, userID string, start, end time.Time) ([]models.Stay, error) {
	return r.query(ctx,
		`SELECT `+stayColumns+` FROM timeline_stays
		WHERE user_id = ? AND start_time < ? AND end_time > ?
		ORDER BY start_time`,
		userID, unix(end), unix(start),
	)
}

// FindStartingIn returns stays whose start lies in [start, end), ordered by start
func (r *StayRepository) FindStartingIn(ctx context.Context, userID string, start, end time.Time) ([]models.Stay, error) {
	return r.query(ctx,
		`SELECT `+stayColumns+` FROM timeline_stays
		WHERE user_id = ? AND start_time >= ? AND start_time < ?
		ORDER BY start_time`,
		userID, unix(start), unix(end),
	)
}

// FindStale returns stale stays whose start lies in [start, end)
func (r *StayRepository) FindStale(ctx context.Context, userID string, start, end time.Time) ([]models.Stay, error) {
	return r.query(ctx,
		`SELECT `+stayColumns+` FROM timeline_stays
		WHERE user_id = ? AND is_stale = 1 AND start_time >= ? AND start_time < ?
		ORDER BY start_time`,
		userID, unix(start), unix(end),
	)
}

// FindByFavorite returns every stay of the user that references the favorite
func (r *StayRepository) FindByFavorite(ctx context.Context, userID string, favoriteID int64) ([]models.Stay, error) {
	return r.query(ctx,
		`SELECT `+stayColumns+` FROM timeline_stays
		WHERE user_id = ? AND favorite_id = ?
		ORDER BY start_time`,
		userID, favoriteID,
	)
}

// FindInBounds returns stays whose coordinates fall inside the bounding box
func (r *StayRepository) FindInBounds(ctx context.Context, userID string, minLat, minLon, maxLat, maxLon float64) ([]models.Stay, error) {
	return r.query(ctx,
		`SELECT `+stayColumns+` FROM timeline_stays
		WHERE user_id = ? AND latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ?
		ORDER BY start_time`,
		userID, minLat, maxLat, minLon, maxLon,
	)
}

// FindLatestEndingBefore returns the stay with the latest end time not after ts.
// Returns nil, nil when there is none.
func (r *StayRepository) FindLatestEndingBefore(ctx context.Context, userID string, ts time.Time) (*models.Stay, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+stayColumns+` FROM timeline_stays
		WHERE user_id = ? AND end_time <= ?
		ORDER BY end_time DESC, start_time DESC LIMIT 1`,
		userID, unix(ts),
	)
	s, err := scanStay(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest stay: %w", err)
	}
	return s, nil
}

// Insert persists a stay and sets its ID
func (r *StayRepository) Insert(ctx context.Context, s *models.Stay) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO timeline_stays (
			user_id, start_time, end_time, duration_seconds, latitude, longitude,
			location_name, location_source, favorite_id, geocoding_id,
			is_stale, timeline_version, last_updated
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.UserID, unix(s.StartTime), unix(s.End()), s.DurationSeconds, s.Latitude, s.Longitude,
		s.LocationName, s.LocationSource, nullInt64(s.FavoriteID), nullInt64(s.GeocodingID),
		boolInt(s.IsStale), s.TimelineVersion, unix(s.LastUpdated),
	)
	if err != nil {
		return fmt.Errorf("failed to insert stay: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get stay id: %w", err)
	}
	s.ID = id
	return nil
}

// UpdateEnd moves a stay's end time in place and returns the rows affected
func (r *StayRepository) UpdateEnd(ctx context.Context, id int64, end time.Time, durationSeconds int64, version string, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE timeline_stays
		SET end_time = ?, duration_seconds = ?, timeline_version = ?, last_updated = ?
		WHERE id = ?`,
		unix(end), durationSeconds, version, unix(now), id,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update stay end: %w", err)
	}
	return result.RowsAffected()
}

// UpdateLocation rewrites the resolved location and cache fields of a stay
func (r *StayRepository) UpdateLocation(ctx context.Context, s *models.Stay) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE timeline_stays
		SET location_name = ?, location_source = ?, favorite_id = ?, geocoding_id = ?,
			is_stale = ?, timeline_version = ?, last_updated = ?
		WHERE id = ?`,
		s.LocationName, s.LocationSource, nullInt64(s.FavoriteID), nullInt64(s.GeocodingID),
		boolInt(s.IsStale), s.TimelineVersion, unix(s.LastUpdated), s.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update stay %d: %w", s.ID, err)
	}
	return nil
}

// MarkStale flags every stay starting in [start, end) as stale
func (r *StayRepository) MarkStale(ctx context.Context, userID string, start, end time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE timeline_stays SET is_stale = 1
		WHERE user_id = ? AND start_time >= ? AND start_time < ?`,
		userID, unix(start), unix(end),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark stays stale: %w", err)
	}
	return result.RowsAffected()
}

// DeleteStartingIn removes stays whose start lies in [start, end)
func (r *StayRepository) DeleteStartingIn(ctx context.Context, userID string, start, end time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM timeline_stays WHERE user_id = ? AND start_time >= ? AND start_time < ?`,
		userID, unix(start), unix(end),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stays: %w", err)
	}
	return result.RowsAffected()
}

// StampDay sets the version of every stay starting in [start, end) and clears the stale flag
func (r *StayRepository) StampDay(ctx context.Context, userID string, start, end time.Time, version string, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE timeline_stays SET is_stale = 0, timeline_version = ?, last_updated = ?
		WHERE user_id = ? AND start_time >= ? AND start_time < ?`,
		version, unix(now), userID, unix(start), unix(end),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to stamp stays: %w", err)
	}
	return result.RowsAffected()
}
