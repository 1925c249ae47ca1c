package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tess1o/geopulse-sub001/internal/models"
)

// GPSRepository reads raw GPS points
type GPSRepository struct {
	db DBTX
}

// NewGPSRepository creates a new GPS point repository
func NewGPSRepository(db DBTX) *GPSRepository {
	return &GPSRepository{db: db}
}

// FetchPoints returns the user's points in [start, end) ordered by time
func (r *GPSRepository) FetchPoints(ctx context.Context, userID string, start, end time.Time) ([]models.GPSPoint, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, timestamp, latitude, longitude, accuracy, velocity
		FROM gps_points
		WHERE user_id = ? AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp`,
		userID, unix(start), unix(end),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query gps points: %w", err)
	}
	defer rows.Close()

	points := []models.GPSPoint{}
	for rows.Next() {
		var p models.GPSPoint
		var ts int64
		if err := rows.Scan(&p.ID, &p.UserID, &ts, &p.Latitude, &p.Longitude, &p.Accuracy, &p.Velocity); err != nil {
			return nil, fmt.Errorf("failed to scan gps point: %w", err)
		}
		p.Timestamp = fromUnix(ts)
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate gps points: %w", err)
	}
	return points, nil
}

// FindLastBefore returns the latest point strictly before ts, or nil, nil
func (r *GPSRepository) FindLastBefore(ctx context.Context, userID string, ts time.Time) (*models.GPSPoint, error) {
	var p models.GPSPoint
	var t int64
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, timestamp, latitude, longitude, accuracy, velocity
		FROM gps_points
		WHERE user_id = ? AND timestamp < ?
		ORDER BY timestamp DESC LIMIT 1`,
		userID, unix(ts),
	).Scan(&p.ID, &p.UserID, &t, &p.Latitude, &p.Longitude, &p.Accuracy, &p.Velocity)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last gps point: %w", err)
	}
	p.Timestamp = fromUnix(t)
	return &p, nil
}

// InsertBatch stores points in one statement per point
func (r *GPSRepository) InsertBatch(ctx context.Context, points []models.GPSPoint) error {
	for i := range points {
		p := &points[i]
		result, err := r.db.ExecContext(ctx,
			`INSERT INTO gps_points (user_id, timestamp, latitude, longitude, accuracy, velocity)
			VALUES (?, ?, ?, ?, ?, ?)`,
			p.UserID, unix(p.Timestamp), p.Latitude, p.Longitude, p.Accuracy, p.Velocity,
		)
		if err != nil {
			return fmt.Errorf("failed to insert gps point: %w", err)
		}
		if id, err := result.LastInsertId(); err == nil {
			p.ID = id
		}
	}
	return nil
}
