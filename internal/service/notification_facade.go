package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/reminder-api/internal/domain"
	"github.com/phrazzld/reminder-api/internal/events"
	"github.com/phrazzld/reminder-api/internal/platform/logger"
	"github.com/phrazzld/reminder-api/internal/redact"
	"github.com/phrazzld/reminder-api/internal/store"
)

// NotificationFacade turns task arrivals into reminder notifications and
// publishes the notification lifecycle events of the CRUD operations.
type NotificationFacade struct {
	service *NotificationService
	bus     events.Bus
	logger  *slog.Logger
}

// NewNotificationFacade creates a new NotificationFacade.
func NewNotificationFacade(svc *NotificationService, bus events.Bus, log *slog.Logger) (*NotificationFacade, error) {
	if svc == nil {
		return nil, &NotificationServiceError{
			Operation: "create_service",
			Message:   "notification service cannot be nil",
		}
	}
	if bus == nil {
		return nil, &NotificationServiceError{
			Operation: "create_service",
			Message:   "event bus cannot be nil",
		}
	}
	if log == nil {
		log = slog.Default()
	}
	return &NotificationFacade{
		service: svc,
		bus:     bus,
		logger:  log.With(slog.String("component", "notification_facade")),
	}, nil
}

// Start subscribes the facade to task arrivals.
func (f *NotificationFacade) Start(ctx context.Context) error {
	if err := f.bus.Subscribe(ctx, events.TopicTaskArrived, events.HandlerFunc(f.HandleTaskArrived)); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", events.TopicTaskArrived, err)
	}
	f.logger.Info("notification facade subscribed", slog.String("topic", events.TopicTaskArrived))
	return nil
}

// HandleTaskArrived creates the reminder notification of the arrived task
// unless it already has one. The existence check is not atomic with the
// insert, so two concurrent deliveries of the same arrival can both pass it.
func (f *NotificationFacade) HandleTaskArrived(ctx context.Context, event *events.Event) error {
	var payload events.TaskArrivedPayload
	if err := event.UnmarshalPayload(&payload); err != nil {
		return err
	}
	if payload.TaskID == uuid.Nil {
		return fmt.Errorf("%w: task-arrived event %s has no task ID", domain.ErrInvalidID, event.ID)
	}

	log := logger.FromContextOrDefault(ctx, f.logger).With(
		slog.String("task_id", payload.TaskID.String()),
		slog.String("event_id", event.ID.String()))

	existing, err := f.service.ListByTask(ctx, payload.TaskID)
	if err != nil {
		return err
	}
	for _, n := range existing {
		if n.Type == domain.NotificationTypeTaskReminder {
			log.Debug("reminder already exists, skipping",
				slog.String("notification_id", n.ID.String()))
			return nil
		}
	}

	n, err := f.service.Create(ctx, CreateNotificationInput{
		TaskID:  payload.TaskID,
		Type:    domain.NotificationTypeTaskReminder,
		Message: domain.ReminderMessage(payload.TaskID),
	})
	if err != nil {
		if errors.Is(err, store.ErrInvalidEntity) {
			// The task was removed after its reminder fired.
			log.Warn("task no longer exists, reminder dropped", slog.String("error", redact.Error(err)))
			return nil
		}
		return err
	}

	if err := f.bus.Publish(ctx, events.TopicNotificationCreated, notificationPayload(n)); err != nil {
		return fmt.Errorf("failed to publish %s: %w", events.TopicNotificationCreated, err)
	}

	log.Info("reminder notification created", slog.String("notification_id", n.ID.String()))
	return nil
}

// CreateNotification stores a notification and publishes notification.created.
func (f *NotificationFacade) CreateNotification(
	ctx context.Context,
	input CreateNotificationInput,
) (*domain.Notification, error) {
	n, err := f.service.Create(ctx, input)
	if err != nil {
		return nil, err
	}
	if err := f.bus.Publish(ctx, events.TopicNotificationCreated, notificationPayload(n)); err != nil {
		return nil, NewNotificationServiceError("create_notification", "failed to publish event", err)
	}
	return n, nil
}

// GetNotification returns a notification by ID.
func (f *NotificationFacade) GetNotification(ctx context.Context, id uuid.UUID) (*domain.Notification, error) {
	return f.service.Get(ctx, id)
}

// UpdateNotification updates a notification and publishes
// notification.updated, plus notification.sent when it moved to SENT.
func (f *NotificationFacade) UpdateNotification(
	ctx context.Context,
	id uuid.UUID,
	input UpdateNotificationInput,
) (*domain.Notification, error) {
	before, err := f.service.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	n, err := f.service.Update(ctx, id, input)
	if err != nil {
		return nil, err
	}

	payload := notificationPayload(n)
	if err := f.bus.Publish(ctx, events.TopicNotificationUpdated, payload); err != nil {
		return nil, NewNotificationServiceError("update_notification", "failed to publish event", err)
	}
	if before.Status != domain.NotificationStatusSent && n.Status == domain.NotificationStatusSent {
		if err := f.bus.Publish(ctx, events.TopicNotificationSent, payload); err != nil {
			return nil, NewNotificationServiceError("update_notification", "failed to publish sent event", err)
		}
	}
	return n, nil
}

// DeleteNotification removes a notification and publishes notification.deleted.
func (f *NotificationFacade) DeleteNotification(ctx context.Context, id uuid.UUID) error {
	n, err := f.service.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := f.service.Delete(ctx, id); err != nil {
		return err
	}
	payload := events.NotificationPayload{NotificationID: id, TaskID: n.TaskID}
	if err := f.bus.Publish(ctx, events.TopicNotificationDeleted, payload); err != nil {
		return NewNotificationServiceError("delete_notification", "failed to publish event", err)
	}
	return nil
}

// ListByTask returns the notifications of a task.
func (f *NotificationFacade) ListByTask(ctx context.Context, taskID uuid.UUID) ([]*domain.Notification, error) {
	return f.service.ListByTask(ctx, taskID)
}

// ListByStatus returns the notifications in status.
func (f *NotificationFacade) ListByStatus(
	ctx context.Context,
	status domain.NotificationStatus,
) ([]*domain.Notification, error) {
	return f.service.ListByStatus(ctx, status)
}

func notificationPayload(n *domain.Notification) events.NotificationPayload {
	return events.NotificationPayload{
		NotificationID: n.ID,
		TaskID:         n.TaskID,
		Type:           string(n.Type),
		Status:         string(n.Status),
		Message:        n.Message,
	}
}
