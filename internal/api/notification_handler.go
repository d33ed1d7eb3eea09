package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/reminder-api/internal/api/shared"
	"github.com/phrazzld/reminder-api/internal/domain"
	"github.com/phrazzld/reminder-api/internal/platform/logger"
	"github.com/phrazzld/reminder-api/internal/service"
)

// NotificationService is the notification use-case surface the handlers
// call. service.NotificationFacade implements it.
type NotificationService interface {
	CreateNotification(ctx context.Context, input service.CreateNotificationInput) (*domain.Notification, error)
	GetNotification(ctx context.Context, id uuid.UUID) (*domain.Notification, error)
	UpdateNotification(
		ctx context.Context,
		id uuid.UUID,
		input service.UpdateNotificationInput,
	) (*domain.Notification, error)
	DeleteNotification(ctx context.Context, id uuid.UUID) error
	ListByTask(ctx context.Context, taskID uuid.UUID) ([]*domain.Notification, error)
	ListByStatus(ctx context.Context, status domain.NotificationStatus) ([]*domain.Notification, error)
}

// NotificationHandler handles notification-related HTTP requests
type NotificationHandler struct {
	notifications NotificationService
	logger        *slog.Logger
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(notifications NotificationService, log *slog.Logger) *NotificationHandler {
	if notifications == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("notification service cannot be nil for NotificationHandler")
	}
	if log == nil {
		log = slog.Default()
	}
	return &NotificationHandler{
		notifications: notifications,
		logger:        log.With(slog.String("component", "notification_handler")),
	}
}

// CreateNotification handles POST /notifications requests.
func (h *NotificationHandler) CreateNotification(w http.ResponseWriter, r *http.Request) {
	var req CreateNotificationRequest
	if !parseAndValidateRequest(w, r, &req) {
		return
	}

	n, err := h.notifications.CreateNotification(r.Context(), service.CreateNotificationInput{
		TaskID:  uuid.MustParse(req.TaskID),
		Type:    domain.NotificationType(req.Type),
		Message: req.Message,
		Status:  domain.NotificationStatus(req.Status),
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create notification")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, notificationToResponse(n))
}

// GetNotification handles GET /notifications/{id} requests.
func (h *NotificationHandler) GetNotification(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	id, ok := handlePathUUID(w, r, "id", log)
	if !ok {
		return
	}

	n, err := h.notifications.GetNotification(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to retrieve notification")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, notificationToResponse(n))
}

// UpdateNotification handles PUT /notifications/{id} requests.
func (h *NotificationHandler) UpdateNotification(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	id, ok := handlePathUUID(w, r, "id", log)
	if !ok {
		return
	}

	var req UpdateNotificationRequest
	if !parseAndValidateRequest(w, r, &req) {
		return
	}

	var input service.UpdateNotificationInput
	if req.Type != nil {
		notificationType := domain.NotificationType(*req.Type)
		input.Type = &notificationType
	}
	if req.Status != nil {
		status := domain.NotificationStatus(*req.Status)
		input.Status = &status
	}
	input.Message = req.Message

	n, err := h.notifications.UpdateNotification(r.Context(), id, input)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to update notification")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, notificationToResponse(n))
}

// DeleteNotification handles DELETE /notifications/{id} requests.
func (h *NotificationHandler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	id, ok := handlePathUUID(w, r, "id", log)
	if !ok {
		return
	}

	if err := h.notifications.DeleteNotification(r.Context(), id); err != nil {
		HandleAPIError(w, r, err, "Failed to delete notification")
		return
	}

	shared.RespondNoContent(w)
}

// ListByTask handles GET /notifications/task/{taskId} requests.
func (h *NotificationHandler) ListByTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	taskID, ok := handlePathUUID(w, r, "taskId", log)
	if !ok {
		return
	}

	list, err := h.notifications.ListByTask(r.Context(), taskID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list notifications")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, notificationsToResponse(list))
}

// ListByStatus handles GET /notifications/status/{status} requests.
func (h *NotificationHandler) ListByStatus(w http.ResponseWriter, r *http.Request) {
	status := domain.NotificationStatus(chi.URLParam(r, "status"))
	if !status.IsValid() {
		HandleAPIError(w, r, domain.ErrInvalidNotificationStatus, "")
		return
	}

	list, err := h.notifications.ListByStatus(r.Context(), status)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list notifications")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, notificationsToResponse(list))
}
