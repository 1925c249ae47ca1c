package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tess1o/geopulse-sub001/internal/models"
)

const gapColumns = `id, user_id, start_time, end_time, timeline_version, last_updated`

// DataGapRepository handles database operations for data gaps
type DataGapRepository struct {
	db DBTX
}

// NewDataGapRepository creates a new data gap repository
func NewDataGapRepository(db DBTX) *DataGapRepository {
	return &DataGapRepository{db: db}
}

// WithTx returns a repository bound to the given transaction
func (r *DataGapRepository) WithTx(tx *sql.Tx) *DataGapRepository {
	return &DataGapRepository{db: tx}
}

func scanGap(row scanner) (*models.DataGap, error) {
	var g models.DataGap
	var start, end, lastUpdated int64
	if err := row.Scan(&g.ID, &g.UserID, &start, &end, &g.TimelineVersion, &lastUpdated); err != nil {
		return nil, err
	}
	g.StartTime = fromUnix(start)
	g.EndTime = fromUnix(end)
	g.LastUpdated = fromUnix(lastUpdated)
	return &g, nil
}

// ExistsCovering reports whether a single gap contains all of [start, end)
func (r *DataGapRepository) ExistsCovering(ctx context.Context, userID string, start, end time.Time) (bool, error) {
	var exists int
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM timeline_data_gaps WHERE user_id = ? AND start_time <= ? AND end_time >= ?)`,
		userID, unix(start), unix(end),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check covering gap: %w", err)
	}
	return exists == 1, nil
}

// FindOverlapping returns gaps intersecting [start, end) in full, ordered by start
func (r *DataGapRepository) FindOverlapping(ctx context.Context, userID string, start, end time.Time) ([]models.DataGap, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+gapColumns+` FROM timeline_data_gaps
		WHERE user_id = ? AND start_time < ? AND end_time > ?
		ORDER BY start_time`,
		userID, unix(end), unix(start),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query data gaps: %w", err)
	}
	defer rows.Close()

	gaps := []models.DataGap{}
	for rows.Next() {
		g, err := scanGap(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan data gap: %w", err)
		}
		gaps = append(gaps, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate data gaps: %w", err)
	}
	return gaps, nil
}

// FindLatestEndingBefore returns the gap with the latest end time not after ts.
// Returns nil, nil when there is none.
func (r *DataGapRepository) FindLatestEndingBefore(ctx context.Context, userID string, ts time.Time) (*models.DataGap, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+gapColumns+` FROM timeline_data_gaps
		WHERE user_id = ? AND end_time <= ?
		ORDER BY end_time DESC, start_time DESC LIMIT 1`,
		userID, unix(ts),
	)
	g, err := scanGap(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest data gap: %w", err)
	}
	return g, nil
}

// Insert persists a data gap and sets its ID
func (r *DataGapRepository) Insert(ctx context.Context, g *models.DataGap) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO timeline_data_gaps (user_id, start_time, end_time, timeline_version, last_updated)
		VALUES (?, ?, ?, ?, ?)`,
		g.UserID, unix(g.StartTime), unix(g.EndTime), g.TimelineVersion, unix(g.LastUpdated),
	)
	if err != nil {
		return fmt.Errorf("failed to insert data gap: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get data gap id: %w", err)
	}
	g.ID = id
	return nil
}

// DeleteStartingIn removes gaps whose start lies in [start, end)
func (r *DataGapRepository) DeleteStartingIn(ctx context.Context, userID string, start, end time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM timeline_data_gaps WHERE user_id = ? AND start_time >= ? AND start_time < ?`,
		userID, unix(start), unix(end),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete data gaps: %w", err)
	}
	return result.RowsAffected()
}

// StampDay sets the version of every gap starting in [start, end)
func (r *DataGapRepository) StampDay(ctx context.Context, userID string, start, end time.Time, version string, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE timeline_data_gaps SET timeline_version = ?, last_updated = ?
		WHERE user_id = ? AND start_time >= ? AND start_time < ?`,
		version, unix(now), userID, unix(start), unix(end),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to stamp data gaps: %w", err)
	}
	return result.RowsAffected()
}
