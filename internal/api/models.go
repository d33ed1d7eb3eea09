package api

import (
	"time"

	"github.com/phrazzld/reminder-api/internal/domain"
)

// Request and response bodies of the HTTP API. Dates travel as RFC3339
// strings and IDs as canonical UUID strings.

// CreateTaskRequest defines the payload for creating a task.
type CreateTaskRequest struct {
	Title   string `json:"title"   validate:"required,min=1,max=255"`
	DueDate string `json:"dueDate" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	UserID  string `json:"userId"  validate:"required,uuid"`
}

// UpdateTaskRequest defines the payload for a partial task update.
type UpdateTaskRequest struct {
	Title   *string `json:"title,omitempty"   validate:"omitempty,min=1,max=255"`
	DueDate *string `json:"dueDate,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Status  *string `json:"status,omitempty"  validate:"omitempty,oneof=SCHEDULED CANCELLED"`
}

// TaskResponse represents the response data for a task.
type TaskResponse struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	DueDate     time.Time  `json:"dueDate"`
	UserID      string     `json:"userId"`
	Status      string     `json:"status"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
	ExecutingAt *time.Time `json:"executingAt,omitempty"`
	ExecutedAt  *time.Time `json:"executedAt,omitempty"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"maxAttempts"`
	LastError   *string    `json:"lastError,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// CreateNotificationRequest defines the payload for creating a notification.
type CreateNotificationRequest struct {
	TaskID  string `json:"taskId"           validate:"required,uuid"`
	Type    string `json:"type"             validate:"required,max=50"`
	Message string `json:"message"          validate:"required,min=1,max=500"`
	Status  string `json:"status,omitempty" validate:"omitempty,oneof=PENDING SENT FAILED"`
}

// UpdateNotificationRequest defines the payload for a partial notification update.
type UpdateNotificationRequest struct {
	Type    *string `json:"type,omitempty"    validate:"omitempty,min=1,max=50"`
	Status  *string `json:"status,omitempty"  validate:"omitempty,oneof=PENDING SENT FAILED"`
	Message *string `json:"message,omitempty" validate:"omitempty,min=1,max=500"`
}

// NotificationResponse represents the response data for a notification.
type NotificationResponse struct {
	ID        string     `json:"id"`
	TaskID    string     `json:"taskId"`
	Type      string     `json:"type"`
	Status    string     `json:"status"`
	Message   string     `json:"message"`
	SentAt    *time.Time `json:"sentAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

func taskToResponse(t *domain.Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID.String(),
		Title:       t.Title,
		DueDate:     t.DueDate,
		UserID:      t.UserID.String(),
		Status:      string(t.Status),
		ScheduledAt: t.ScheduledAt,
		ExecutingAt: t.ExecutingAt,
		ExecutedAt:  t.ExecutedAt,
		CancelledAt: t.CancelledAt,
		Attempts:    t.Attempts,
		MaxAttempts: t.MaxAttempts,
		LastError:   t.LastError,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func tasksToResponse(tasks []*domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskToResponse(t))
	}
	return out
}

func notificationToResponse(n *domain.Notification) NotificationResponse {
	return NotificationResponse{
		ID:        n.ID.String(),
		TaskID:    n.TaskID.String(),
		Type:      string(n.Type),
		Status:    string(n.Status),
		Message:   n.Message,
		SentAt:    n.SentAt,
		CreatedAt: n.CreatedAt,
	}
}

func notificationsToResponse(list []*domain.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(list))
	for _, n := range list {
		out = append(out, notificationToResponse(n))
	}
	return out
}
