package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tess1o/geopulse-sub001/internal/models"
)

const favoriteColumns = `id, user_id, name, type, latitude, longitude, radius_meters,
	ne_lat, ne_lon, sw_lat, sw_lon, city, country, created_at, updated_at`

// FavoriteRepository handles database operations for favorite locations
type FavoriteRepository struct {
	db DBTX
}

// NewFavoriteRepository creates a new favorite location repository
func NewFavoriteRepository(db DBTX) *FavoriteRepository {
	return &FavoriteRepository{db: db}
}

func scanFavorite(row scanner) (*models.FavoriteLocation, error) {
	var f models.FavoriteLocation
	var createdAt, updatedAt int64
	err := row.Scan(
		&f.ID, &f.UserID, &f.Name, &f.Type, &f.Latitude, &f.Longitude, &f.RadiusMeters,
		&f.NorthEastLat, &f.NorthEastLon, &f.SouthWestLat, &f.SouthWestLon,
		&f.City, &f.Country, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	f.CreatedAt = fromUnix(createdAt)
	f.UpdatedAt = fromUnix(updatedAt)
	return &f, nil
}

// ListByUser returns the user's favorites ordered by ID
func (r *FavoriteRepository) ListByUser(ctx context.Context, userID string) ([]models.FavoriteLocation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+favoriteColumns+` FROM favorite_locations WHERE user_id = ? ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query favorites: %w", err)
	}
	defer rows.Close()

	favorites := []models.FavoriteLocation{}
	for rows.Next() {
		f, err := scanFavorite(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan favorite: %w", err)
		}
		favorites = append(favorites, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate favorites: %w", err)
	}
	return favorites, nil
}

// GetByID returns a favorite, or nil, nil when it does not exist
func (r *FavoriteRepository) GetByID(ctx context.Context, id int64) (*models.FavoriteLocation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+favoriteColumns+` FROM favorite_locations WHERE id = ?`, id)
	f, err := scanFavorite(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get favorite %d: %w", id, err)
	}
	return f, nil
}

// Create inserts a favorite and sets its ID
func (r *FavoriteRepository) Create(ctx context.Context, f *models.FavoriteLocation) error {
	now := time.Now().UTC()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	f.UpdatedAt = now
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO favorite_locations (
			user_id, name, type, latitude, longitude, radius_meters,
			ne_lat, ne_lon, sw_lat, sw_lon, city, country, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.UserID, f.Name, f.Type, f.Latitude, f.Longitude, f.RadiusMeters,
		f.NorthEastLat, f.NorthEastLon, f.SouthWestLat, f.SouthWestLon,
		f.City, f.Country, unix(f.CreatedAt), unix(f.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert favorite: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get favorite id: %w", err)
	}
	f.ID = id
	return nil
}

// Rename changes a favorite's name
func (r *FavoriteRepository) Rename(ctx context.Context, id int64, name string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE favorite_locations SET name = ?, updated_at = ? WHERE id = ?`,
		name, unix(time.Now().UTC()), id,
	)
	if err != nil {
		return fmt.Errorf("failed to rename favorite %d: %w", id, err)
	}
	return nil
}

// Delete removes a favorite
func (r *FavoriteRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM favorite_locations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete favorite %d: %w", id, err)
	}
	return nil
}
