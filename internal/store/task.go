package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/reminder-api/internal/domain"
)

// TaskPredicate restricts which row a conditional update may touch.
// Zero-valued fields impose no restriction, except ID which is required.
type TaskPredicate struct {
	ID uuid.UUID

	// StatusIn limits the update to rows whose current status is listed.
	StatusIn []domain.TaskStatus

	// NotCancelled requires cancelled_at to be NULL.
	NotCancelled bool

	// LockToken requires the row to hold this lease token.
	LockToken *uuid.UUID
}

// TaskPatch describes the writes of a conditional update. Nil fields are
// left untouched.
//
// When Status is set, the lifecycle timestamp matching the new status is
// stamped with Now, but only if it is still NULL.
type TaskPatch struct {
	Title   *string
	DueDate *time.Time
	Status  *domain.TaskStatus

	// IncrementAttempts adds one to the attempt counter.
	IncrementAttempts bool

	// LastError replaces last_error; ClearLastError sets it to NULL.
	LastError      *string
	ClearLastError bool

	// LockToken takes the lease (locked_at is set to Now); ClearLock
	// releases it.
	LockToken *uuid.UUID
	ClearLock bool

	// Now is the write time used for updated_at and stamped timestamps.
	Now time.Time
}

// TaskStore defines the persistence contract for tasks.
type TaskStore interface {
	// Insert stores a new task.
	Insert(ctx context.Context, task *domain.Task) error

	// ConditionalUpdate applies patch to the row matching pred in a single
	// atomic write and returns how many rows were affected (0 or 1).
	ConditionalUpdate(ctx context.Context, pred TaskPredicate, patch TaskPatch) (int64, error)

	// FindByID returns the task or ErrTaskNotFound.
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// FindByUserID returns the user's tasks ordered by due date ascending.
	FindByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.Task, error)

	// FindByStatus returns up to limit tasks in status ordered by due date
	// ascending. A limit of zero means no limit.
	FindByStatus(ctx context.Context, status domain.TaskStatus, limit int) ([]*domain.Task, error)

	// FindExpiredLeases returns EXECUTING tasks locked before the cutoff.
	FindExpiredLeases(ctx context.Context, lockedBefore time.Time, limit int) ([]*domain.Task, error)

	// Delete removes the task and its notifications. Returns ErrTaskNotFound
	// when nothing was deleted.
	Delete(ctx context.Context, id uuid.UUID) error
}

// StampFor returns a pointer to the lifecycle timestamp field of t that
// corresponds to status, or nil for statuses without one.
func StampFor(t *domain.Task, status domain.TaskStatus) **time.Time {
	switch status {
	case domain.TaskStatusScheduled:
		return &t.ScheduledAt
	case domain.TaskStatusExecuting:
		return &t.ExecutingAt
	case domain.TaskStatusExecuted:
		return &t.ExecutedAt
	case domain.TaskStatusCancelled:
		return &t.CancelledAt
	}
	return nil
}

// StampColumn returns the column holding the lifecycle timestamp for
// status, or "" when the status has none.
func StampColumn(status domain.TaskStatus) string {
	switch status {
	case domain.TaskStatusScheduled:
		return "scheduled_at"
	case domain.TaskStatusExecuting:
		return "executing_at"
	case domain.TaskStatusExecuted:
		return "executed_at"
	case domain.TaskStatusCancelled:
		return "cancelled_at"
	}
	return ""
}
