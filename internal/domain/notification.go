package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NotificationType classifies why a notification was produced.
type NotificationType string

// NotificationTypeTaskReminder is produced when a task's reminder fires.
const NotificationTypeTaskReminder NotificationType = "TASK_REMINDER"

// NotificationStatus tracks delivery of a notification.
type NotificationStatus string

// Possible notification status values
const (
	NotificationStatusPending NotificationStatus = "PENDING"
	NotificationStatusSent    NotificationStatus = "SENT"
	NotificationStatusFailed  NotificationStatus = "FAILED"
)

// Field bounds for notifications.
const (
	MaxNotificationTypeLength    = 50
	MaxNotificationMessageLength = 500
)

// Common validation errors for Notification
var (
	ErrEmptyNotificationID       = errors.New("notification ID cannot be empty")
	ErrEmptyNotificationTaskID   = errors.New("notification task ID cannot be empty")
	ErrEmptyNotificationType     = errors.New("notification type cannot be empty")
	ErrEmptyNotificationMessage  = errors.New("notification message cannot be empty")
	ErrInvalidNotificationField  = errors.New("invalid notification field")
	ErrInvalidNotificationStatus = errors.New("invalid notification status")
)

// Notification is a message produced for a task.
type Notification struct {
	ID        uuid.UUID          `json:"id"`
	TaskID    uuid.UUID          `json:"taskId"`
	Type      NotificationType   `json:"type"`
	Status    NotificationStatus `json:"status"`
	Message   string             `json:"message"`
	SentAt    *time.Time         `json:"sentAt,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
}

// NotificationChanges is a partial update of a notification.
type NotificationChanges struct {
	Type    *NotificationType
	Status  *NotificationStatus
	Message *string
	SentAt  *time.Time
}

// NewNotification creates a PENDING notification for taskID.
func NewNotification(taskID uuid.UUID, notificationType NotificationType, message string) (*Notification, error) {
	n := &Notification{
		ID:        uuid.New(),
		TaskID:    taskID,
		Type:      notificationType,
		Status:    NotificationStatusPending,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}

	if err := n.Validate(); err != nil {
		return nil, err
	}

	return n, nil
}

// NewTaskReminder creates the reminder notification for a task.
func NewTaskReminder(taskID uuid.UUID) (*Notification, error) {
	return NewNotification(taskID, NotificationTypeTaskReminder, ReminderMessage(taskID))
}

// ReminderMessage is the message text of a task reminder.
func ReminderMessage(taskID uuid.UUID) string {
	return fmt.Sprintf("Reminder for task %s", taskID)
}

// Validate checks if the Notification has valid data.
func (n *Notification) Validate() error {
	if n.ID == uuid.Nil {
		return ErrEmptyNotificationID
	}
	if n.TaskID == uuid.Nil {
		return ErrEmptyNotificationTaskID
	}
	if strings.TrimSpace(string(n.Type)) == "" {
		return ErrEmptyNotificationType
	}
	if len(n.Type) > MaxNotificationTypeLength {
		return fmt.Errorf("%w: type exceeds %d characters", ErrInvalidNotificationField, MaxNotificationTypeLength)
	}
	if strings.TrimSpace(n.Message) == "" {
		return ErrEmptyNotificationMessage
	}
	if len([]rune(n.Message)) > MaxNotificationMessageLength {
		return fmt.Errorf("%w: message exceeds %d characters", ErrInvalidNotificationField, MaxNotificationMessageLength)
	}
	if !n.Status.IsValid() {
		return ErrInvalidNotificationStatus
	}
	return nil
}

// Apply copies non-nil changes onto n and revalidates.
func (n *Notification) Apply(c NotificationChanges) error {
	if c.Type != nil {
		n.Type = *c.Type
	}
	if c.Status != nil {
		n.Status = *c.Status
	}
	if c.Message != nil {
		n.Message = *c.Message
	}
	if c.SentAt != nil {
		sentAt := c.SentAt.UTC()
		n.SentAt = &sentAt
	}
	return n.Validate()
}

// IsValid reports whether s is a known notification status.
func (s NotificationStatus) IsValid() bool {
	switch s {
	case NotificationStatusPending, NotificationStatusSent, NotificationStatusFailed:
		return true
	}
	return false
}
