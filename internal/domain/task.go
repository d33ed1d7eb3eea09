package domain

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

// Possible task status values
const (
	TaskStatusCreated   TaskStatus = "CREATED"
	TaskStatusScheduled TaskStatus = "SCHEDULED"
	TaskStatusExecuting TaskStatus = "EXECUTING"
	TaskStatusExecuted  TaskStatus = "EXECUTED"
	TaskStatusFailed    TaskStatus = "FAILED"
	TaskStatusCancelled TaskStatus = "CANCELLED"
)

// DefaultMaxAttempts is the number of claims a task gets before it fails.
const DefaultMaxAttempts = 3

// MaxTitleLength is the longest title a task may carry, in characters.
const MaxTitleLength = 255

// Common validation errors for Task
var (
	ErrEmptyTaskID       = errors.New("task ID cannot be empty")
	ErrEmptyTaskUserID   = errors.New("task user ID cannot be empty")
	ErrEmptyTaskTitle    = errors.New("task title cannot be empty")
	ErrTaskTitleLength   = errors.New("task title is too long")
	ErrEmptyDueDate      = errors.New("task due date cannot be empty")
	ErrInvalidTaskStatus = errors.New("invalid task status")
)

// transitions lists, for every source status, the statuses it may move to.
var transitions = map[TaskStatus][]TaskStatus{
	TaskStatusCreated:   {TaskStatusScheduled, TaskStatusCancelled},
	TaskStatusScheduled: {TaskStatusExecuting, TaskStatusCancelled},
	TaskStatusExecuting: {TaskStatusExecuted, TaskStatusScheduled, TaskStatusFailed, TaskStatusCancelled},
}

// Task is a user-owned item with a due date at which a reminder fires.
// Lifecycle timestamps are written once, when the status first enters the
// matching state. LockToken and LockedAt describe the lease held by the
// worker that claimed the task, and are nil outside EXECUTING.
type Task struct {
	ID          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	DueDate     time.Time  `json:"dueDate"`
	UserID      uuid.UUID  `json:"userId"`
	Status      TaskStatus `json:"status"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
	ExecutingAt *time.Time `json:"executingAt,omitempty"`
	ExecutedAt  *time.Time `json:"executedAt,omitempty"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"maxAttempts"`
	LastError   *string    `json:"lastError,omitempty"`
	LockToken   *uuid.UUID `json:"lockToken,omitempty"`
	LockedAt    *time.Time `json:"lockedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// TaskChanges is a partial update of a task. Nil fields are left untouched.
type TaskChanges struct {
	Title   *string
	DueDate *time.Time
	Status  *TaskStatus
}

// IsEmpty reports whether the changes would modify nothing.
func (c TaskChanges) IsEmpty() bool {
	return c.Title == nil && c.DueDate == nil && c.Status == nil
}

// NewTask creates a task in CREATED status with a fresh ID.
// Returns an error if validation fails.
func NewTask(userID uuid.UUID, title string, dueDate time.Time, maxAttempts int) (*Task, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	now := time.Now().UTC()
	task := &Task{
		ID:          uuid.New(),
		Title:       strings.TrimSpace(title),
		DueDate:     dueDate.UTC(),
		UserID:      userID,
		Status:      TaskStatusCreated,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the Task has valid data.
// Returns an error if any field fails validation.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}
	if t.UserID == uuid.Nil {
		return ErrEmptyTaskUserID
	}
	if err := ValidateTitle(t.Title); err != nil {
		return err
	}
	if t.DueDate.IsZero() {
		return ErrEmptyDueDate
	}
	if !t.Status.IsValid() {
		return ErrInvalidTaskStatus
	}
	return nil
}

// ValidateTitle checks the title length bounds.
func ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return ErrEmptyTaskTitle
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return ErrTaskTitleLength
	}
	return nil
}

// IsValid reports whether s is a known status.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusCreated, TaskStatusScheduled, TaskStatusExecuting,
		TaskStatusExecuted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusExecuted || s == TaskStatusFailed || s == TaskStatusCancelled
}

// CanTransition reports whether a task in from may move to to.
func CanTransition(from, to TaskStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllowedSources returns every status from which to is reachable in one
// step. The result is suitable as the status predicate of a conditional
// update.
func AllowedSources(to TaskStatus) []TaskStatus {
	var sources []TaskStatus
	for _, from := range []TaskStatus{TaskStatusCreated, TaskStatusScheduled, TaskStatusExecuting} {
		if CanTransition(from, to) {
			sources = append(sources, from)
		}
	}
	return sources
}

// updateTransitions are the edges a task edit may write. Claiming and
// finalizing an execution belong to the reminder worker.
var updateTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusScheduled: {TaskStatusCreated},
	TaskStatusCancelled: {TaskStatusCreated, TaskStatusScheduled, TaskStatusExecuting},
}

// UpdateSources returns the statuses from which an edit may move a task to
// to. It is a subset of AllowedSources.
func UpdateSources(to TaskStatus) []TaskStatus {
	return append([]TaskStatus(nil), updateTransitions[to]...)
}

// AttemptsExhausted reports whether another claim would exceed MaxAttempts.
func (t *Task) AttemptsExhausted() bool {
	return t.Attempts >= t.MaxAttempts
}

// WaitDuration is the time between the reminder being registered and the
// task being claimed. Zero when either timestamp is missing.
func (t *Task) WaitDuration() time.Duration {
	if t.ScheduledAt == nil || t.ExecutingAt == nil {
		return 0
	}
	return t.ExecutingAt.Sub(*t.ScheduledAt)
}

// ExecutionDuration is the time between claim and successful finalization.
func (t *Task) ExecutionDuration() time.Duration {
	if t.ExecutingAt == nil || t.ExecutedAt == nil {
		return 0
	}
	return t.ExecutedAt.Sub(*t.ExecutingAt)
}
