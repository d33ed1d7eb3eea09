package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/reminder-api/internal/domain"
	"github.com/phrazzld/reminder-api/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockNotificationService is a mock implementation of NotificationService for testing
type MockNotificationService struct {
	CreateNotificationFn func(ctx context.Context, input service.CreateNotificationInput) (*domain.Notification, error)
	GetNotificationFn    func(ctx context.Context, id uuid.UUID) (*domain.Notification, error)
	UpdateNotificationFn func(
		ctx context.Context,
		id uuid.UUID,
		input service.UpdateNotificationInput,
	) (*domain.Notification, error)
	DeleteNotificationFn func(ctx context.Context, id uuid.UUID) error
	ListByTaskFn         func(ctx context.Context, taskID uuid.UUID) ([]*domain.Notification, error)
	ListByStatusFn       func(ctx context.Context, status domain.NotificationStatus) ([]*domain.Notification, error)
}

func (m *MockNotificationService) CreateNotification(
	ctx context.Context,
	input service.CreateNotificationInput,
) (*domain.Notification, error) {
	if m.CreateNotificationFn != nil {
		return m.CreateNotificationFn(ctx, input)
	}
	return nil, errors.New("CreateNotification not mocked")
}

func (m *MockNotificationService) GetNotification(ctx context.Context, id uuid.UUID) (*domain.Notification, error) {
	if m.GetNotificationFn != nil {
		return m.GetNotificationFn(ctx, id)
	}
	return nil, errors.New("GetNotification not mocked")
}

func (m *MockNotificationService) UpdateNotification(
	ctx context.Context,
	id uuid.UUID,
	input service.UpdateNotificationInput,
) (*domain.Notification, error) {
	if m.UpdateNotificationFn != nil {
		return m.UpdateNotificationFn(ctx, id, input)
	}
	return nil, errors.New("UpdateNotification not mocked")
}

func (m *MockNotificationService) DeleteNotification(ctx context.Context, id uuid.UUID) error {
	if m.DeleteNotificationFn != nil {
		return m.DeleteNotificationFn(ctx, id)
	}
	return errors.New("DeleteNotification not mocked")
}

func (m *MockNotificationService) ListByTask(ctx context.Context, taskID uuid.UUID) ([]*domain.Notification, error) {
	if m.ListByTaskFn != nil {
		return m.ListByTaskFn(ctx, taskID)
	}
	return nil, errors.New("ListByTask not mocked")
}

func (m *MockNotificationService) ListByStatus(
	ctx context.Context,
	status domain.NotificationStatus,
) ([]*domain.Notification, error) {
	if m.ListByStatusFn != nil {
		return m.ListByStatusFn(ctx, status)
	}
	return nil, errors.New("ListByStatus not mocked")
}

var fixedNotificationID = uuid.MustParse("33333333-3333-3333-3333-333333333333")

func sampleNotification() *domain.Notification {
	return &domain.Notification{
		ID:        fixedNotificationID,
		TaskID:    fixedTaskID,
		Type:      domain.NotificationTypeTaskReminder,
		Status:    domain.NotificationStatusPending,
		Message:   domain.ReminderMessage(fixedTaskID),
		CreatedAt: fixedTime,
	}
}

func newNotificationRouter(svc NotificationService) http.Handler {
	r := chi.NewRouter()
	r.Route("/notifications", NewNotificationHandler(svc, discardLogger()).Routes)
	return r
}

func TestNotificationHandler_CreateNotification(t *testing.T) {
	t.Parallel()

	var got service.CreateNotificationInput
	svc := &MockNotificationService{
		CreateNotificationFn: func(_ context.Context, input service.CreateNotificationInput) (*domain.Notification, error) {
			got = input
			return sampleNotification(), nil
		},
	}
	router := newNotificationRouter(svc)

	body := map[string]string{"taskId": fixedTaskID.String(), "type": "TASK_REMINDER", "message": "hello"}
	w := doRequest(t, router, http.MethodPost, "/notifications", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, fixedTaskID, got.TaskID)
	assert.Equal(t, domain.NotificationTypeTaskReminder, got.Type)
	assert.Empty(t, got.Status)

	var resp NotificationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, fixedNotificationID.String(), resp.ID)
	assert.Equal(t, "PENDING", resp.Status)

	tests := []struct {
		name   string
		body   map[string]string
		errMsg string
	}{
		{"missing message", map[string]string{"taskId": fixedTaskID.String(), "type": "TASK_REMINDER"}, "Invalid Message: required field"},
		{"bad status", map[string]string{"taskId": fixedTaskID.String(), "type": "T", "message": "m", "status": "LOST"}, "Invalid Status: invalid value"},
		{"bad task id", map[string]string{"taskId": "x", "type": "T", "message": "m"}, "Invalid TaskID: invalid UUID format"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := doRequest(t, router, http.MethodPost, "/notifications", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tc.errMsg, decodeError(t, w).Error)
		})
	}
}

func TestNotificationHandler_UpdateNotification(t *testing.T) {
	t.Parallel()

	var got service.UpdateNotificationInput
	svc := &MockNotificationService{
		UpdateNotificationFn: func(
			_ context.Context,
			id uuid.UUID,
			input service.UpdateNotificationInput,
		) (*domain.Notification, error) {
			got = input
			n := sampleNotification()
			n.Status = domain.NotificationStatusSent
			sentAt := fixedTime.Add(time.Minute)
			n.SentAt = &sentAt
			return n, nil
		},
	}

	w := doRequest(t, newNotificationRouter(svc), http.MethodPut,
		"/notifications/"+fixedNotificationID.String(), map[string]string{"status": "SENT"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotNil(t, got.Status)
	assert.Equal(t, domain.NotificationStatusSent, *got.Status)
	assert.Nil(t, got.Message)
	assert.Nil(t, got.Type)

	var resp NotificationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.SentAt)
}

func TestNotificationHandler_GetAndDelete(t *testing.T) {
	t.Parallel()

	svc := &MockNotificationService{
		GetNotificationFn: func(context.Context, uuid.UUID) (*domain.Notification, error) {
			return nil, service.ErrNotificationNotFound
		},
		DeleteNotificationFn: func(_ context.Context, id uuid.UUID) error {
			if id == fixedNotificationID {
				return nil
			}
			return service.ErrNotificationNotFound
		},
	}
	router := newNotificationRouter(svc)

	w := doRequest(t, router, http.MethodGet, "/notifications/"+fixedNotificationID.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Notification not found", decodeError(t, w).Error)

	w = doRequest(t, router, http.MethodDelete, "/notifications/"+fixedNotificationID.String(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doRequest(t, router, http.MethodDelete, "/notifications/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNotificationHandler_Lists(t *testing.T) {
	t.Parallel()

	svc := &MockNotificationService{
		ListByTaskFn: func(_ context.Context, taskID uuid.UUID) ([]*domain.Notification, error) {
			assert.Equal(t, fixedTaskID, taskID)
			return []*domain.Notification{sampleNotification()}, nil
		},
		ListByStatusFn: func(_ context.Context, status domain.NotificationStatus) ([]*domain.Notification, error) {
			assert.Equal(t, domain.NotificationStatusPending, status)
			return []*domain.Notification{}, nil
		},
	}
	router := newNotificationRouter(svc)

	w := doRequest(t, router, http.MethodGet, "/notifications/task/"+fixedTaskID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp []NotificationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 1)

	w = doRequest(t, router, http.MethodGet, "/notifications/status/PENDING", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = doRequest(t, router, http.MethodGet, "/notifications/status/LOST", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid notification status", decodeError(t, w).Error)
}
