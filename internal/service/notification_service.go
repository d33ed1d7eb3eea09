package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/reminder-api/internal/domain"
	"github.com/phrazzld/reminder-api/internal/platform/logger"
	"github.com/phrazzld/reminder-api/internal/store"
)

// CreateNotificationInput contains the fields of a new notification.
type CreateNotificationInput struct {
	TaskID  uuid.UUID
	Type    domain.NotificationType
	Message string
	// Status defaults to PENDING.
	Status domain.NotificationStatus
}

// UpdateNotificationInput is a partial notification update.
type UpdateNotificationInput struct {
	Type    *domain.NotificationType
	Status  *domain.NotificationStatus
	Message *string
}

// NotificationService provides CRUD operations on notifications.
type NotificationService struct {
	store  store.NotificationStore
	logger *slog.Logger
	now    func() time.Time
}

// NewNotificationService creates a new NotificationService.
func NewNotificationService(s store.NotificationStore, log *slog.Logger) (*NotificationService, error) {
	if s == nil {
		return nil, &NotificationServiceError{
			Operation: "create_service",
			Message:   "notification store cannot be nil",
		}
	}
	if log == nil {
		log = slog.Default()
	}
	return &NotificationService{
		store:  s,
		logger: log.With(slog.String("component", "notification_service")),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Create stores a new notification.
func (s *NotificationService) Create(ctx context.Context, input CreateNotificationInput) (*domain.Notification, error) {
	n, err := domain.NewNotification(input.TaskID, input.Type, input.Message)
	if err != nil {
		return nil, NewNotificationServiceError("create_notification", "invalid notification", err)
	}
	if input.Status != "" {
		if err := n.Apply(domain.NotificationChanges{Status: &input.Status}); err != nil {
			return nil, NewNotificationServiceError("create_notification", "invalid notification", err)
		}
		s.stampSent(n)
	}

	if err := s.store.Create(ctx, n); err != nil {
		return nil, NewNotificationServiceError("create_notification", "failed to create notification", err)
	}

	logger.FromContextOrDefault(ctx, s.logger).Debug("notification created",
		slog.String("notification_id", n.ID.String()),
		slog.String("task_id", n.TaskID.String()))
	return n, nil
}

// Get returns a notification by ID.
func (s *NotificationService) Get(ctx context.Context, id uuid.UUID) (*domain.Notification, error) {
	n, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, NewNotificationServiceError("get_notification", "failed to retrieve notification", err)
	}
	return n, nil
}

// Update applies input to a notification. Moving to SENT stamps SentAt once.
func (s *NotificationService) Update(
	ctx context.Context,
	id uuid.UUID,
	input UpdateNotificationInput,
) (*domain.Notification, error) {
	n, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, NewNotificationServiceError("update_notification", "failed to retrieve notification", err)
	}

	if err := n.Apply(domain.NotificationChanges{
		Type:    input.Type,
		Status:  input.Status,
		Message: input.Message,
	}); err != nil {
		return nil, NewNotificationServiceError("update_notification", "invalid notification", err)
	}
	s.stampSent(n)

	if err := s.store.Update(ctx, n); err != nil {
		return nil, NewNotificationServiceError("update_notification", "failed to update notification", err)
	}
	return n, nil
}

// Delete removes a notification.
func (s *NotificationService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return NewNotificationServiceError("delete_notification", "failed to delete notification", err)
	}
	return nil
}

// ListByTask returns the notifications of a task, newest first.
func (s *NotificationService) ListByTask(ctx context.Context, taskID uuid.UUID) ([]*domain.Notification, error) {
	list, err := s.store.FindByTaskID(ctx, taskID)
	if err != nil {
		return nil, NewNotificationServiceError("list_notifications", "failed to list notifications of task", err)
	}
	return list, nil
}

// ListByStatus returns the notifications in status, newest first.
func (s *NotificationService) ListByStatus(
	ctx context.Context,
	status domain.NotificationStatus,
) ([]*domain.Notification, error) {
	if !status.IsValid() {
		return nil, NewNotificationServiceError("list_notifications", "invalid status", domain.ErrInvalidNotificationStatus)
	}
	list, err := s.store.FindByStatus(ctx, status)
	if err != nil {
		return nil, NewNotificationServiceError("list_notifications", "failed to list notifications by status", err)
	}
	return list, nil
}

func (s *NotificationService) stampSent(n *domain.Notification) {
	if n.Status == domain.NotificationStatusSent && n.SentAt == nil {
		now := s.now()
		n.SentAt = &now
	}
}
