package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tess1o/geopulse-sub001/internal/models"
)

const taskColumns = `id, user_id, start_date, end_date, priority, status, retry_count,
	error_message, first_attempt_at, started_at, completed_at, created_at, updated_at`

// RegenerationTaskRepository handles database operations for regeneration tasks
type RegenerationTaskRepository struct {
	db DBTX
}

// NewRegenerationTaskRepository creates a new regeneration task repository
func NewRegenerationTaskRepository(db DBTX) *RegenerationTaskRepository {
	return &RegenerationTaskRepository{db: db}
}

func scanTask(row scanner) (*models.RegenerationTask, error) {
	var t models.RegenerationTask
	var startDate, endDate, createdAt, updatedAt int64
	var firstAttempt, started, completed sql.NullInt64
	err := row.Scan(
		&t.ID, &t.UserID, &startDate, &endDate, &t.Priority, &t.Status, &t.RetryCount,
		&t.ErrorMessage, &firstAttempt, &started, &completed, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.StartDate = fromUnix(startDate)
	t.EndDate = fromUnix(endDate)
	t.FirstAttemptAt = timePtr(firstAttempt)
	t.StartedAt = timePtr(started)
	t.CompletedAt = timePtr(completed)
	t.CreatedAt = fromUnix(createdAt)
	t.UpdatedAt = fromUnix(updatedAt)
	return &t, nil
}

// Create creates a new pending regeneration task
func (r *RegenerationTaskRepository) Create(ctx context.Context, task *models.RegenerationTask) error {
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	task.UpdatedAt = task.CreatedAt

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO timeline_regeneration_tasks (
			user_id, start_date, end_date, priority, status, retry_count,
			error_message, first_attempt_at, started_at, completed_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.UserID, unix(task.StartDate), unix(task.EndDate), task.Priority, task.Status, task.RetryCount,
		task.ErrorMessage, nullUnix(task.FirstAttemptAt), nullUnix(task.StartedAt), nullUnix(task.CompletedAt),
		unix(task.CreatedAt), unix(task.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create regeneration task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	task.ID = id
	return nil
}

// GetByID retrieves a task, or nil, nil when it does not exist
func (r *RegenerationTaskRepository) GetByID(ctx context.Context, id int64) (*models.RegenerationTask, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM timeline_regeneration_tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get regeneration task: %w", err)
	}
	return task, nil
}

// ListRunnable returns pending and in-flight tasks of a priority, oldest first
func (r *RegenerationTaskRepository) ListRunnable(ctx context.Context, priority models.TaskPriority, limit int) ([]models.RegenerationTask, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM timeline_regeneration_tasks
		WHERE priority = ? AND status IN ('PENDING', 'PROCESSING')
		ORDER BY created_at, id LIMIT ?`,
		priority, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query regeneration tasks: %w", err)
	}
	defer rows.Close()

	tasks := []models.RegenerationTask{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan regeneration task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate regeneration tasks: %w", err)
	}
	return tasks, nil
}

// CountActive counts PENDING and PROCESSING tasks of a priority
func (r *RegenerationTaskRepository) CountActive(ctx context.Context, priority models.TaskPriority) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM timeline_regeneration_tasks WHERE priority = ? AND status IN ('PENDING', 'PROCESSING')`,
		priority,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count regeneration tasks: %w", err)
	}
	return count, nil
}

// Claim moves a task to PROCESSING. It only succeeds when the task is
// PENDING, or PROCESSING with a start older than staleBefore.
func (r *RegenerationTaskRepository) Claim(ctx context.Context, id int64, now, staleBefore time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE timeline_regeneration_tasks
		SET status = 'PROCESSING', started_at = ?, first_attempt_at = COALESCE(first_attempt_at, ?), updated_at = ?
		WHERE id = ? AND (status = 'PENDING' OR (status = 'PROCESSING' AND (started_at IS NULL OR started_at <= ?)))`,
		unix(now), unix(now), unix(now), id, unix(staleBefore),
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim regeneration task %d: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected == 1, nil
}

// MarkCompleted marks a task as completed
func (r *RegenerationTaskRepository) MarkCompleted(ctx context.Context, id int64, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE timeline_regeneration_tasks
		SET status = 'COMPLETED', completed_at = ?, error_message = '', updated_at = ?
		WHERE id = ?`,
		unix(now), unix(now), id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete regeneration task %d: %w", id, err)
	}
	return nil
}

// MarkRetry records a failed attempt and sets the next status
func (r *RegenerationTaskRepository) MarkRetry(ctx context.Context, id int64, retryCount int, status models.TaskStatus, errMsg string, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE timeline_regeneration_tasks
		SET status = ?, retry_count = ?, error_message = ?, updated_at = ?
		WHERE id = ?`,
		status, retryCount, errMsg, unix(now), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update regeneration task %d: %w", id, err)
	}
	return nil
}

// DeleteFinishedBefore removes COMPLETED and FAILED tasks last updated before cutoff
func (r *RegenerationTaskRepository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM timeline_regeneration_tasks
		WHERE status IN ('COMPLETED', 'FAILED') AND updated_at < ?`,
		unix(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete finished regeneration tasks: %w", err)
	}
	return result.RowsAffected()
}
