package models

import "time"

// RegenerationTask is a persisted request to rebuild a user's timeline over a date range
type RegenerationTask struct {
	ID     int64  `json:"id" db:"id"`
	UserID string `json:"userId" db:"user_id"`

	// Range, [StartDate, EndDate)
	StartDate time.Time `json:"startDate" db:"start_date"`
	EndDate   time.Time `json:"endDate" db:"end_date"`

	Priority     TaskPriority `json:"priority" db:"priority"`
	Status       TaskStatus   `json:"status" db:"status"`
	RetryCount   int          `json:"retryCount" db:"retry_count"`
	ErrorMessage string       `json:"errorMessage,omitempty" db:"error_message"`

	// Execution info
	FirstAttemptAt *time.Time `json:"firstAttemptAt,omitempty" db:"first_attempt_at"`
	StartedAt      *time.Time `json:"startedAt,omitempty" db:"started_at"`
	CompletedAt    *time.Time `json:"completedAt,omitempty" db:"completed_at"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// TaskPriority orders regeneration work
type TaskPriority string

// TaskPriority constants
const (
	PriorityHigh TaskPriority = "HIGH"
	PriorityLow  TaskPriority = "LOW"
)

// TaskStatus is the lifecycle state of a regeneration task
type TaskStatus string

// TaskStatus constants
const (
	TaskStatusPending    TaskStatus = "PENDING"
	TaskStatusProcessing TaskStatus = "PROCESSING"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
	TaskStatusFailed     TaskStatus = "FAILED"
)

// IsTerminal reports whether the task will not run again
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}
