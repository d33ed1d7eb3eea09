package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/reminder-api/internal/api/shared"
	"github.com/phrazzld/reminder-api/internal/domain"
	"github.com/phrazzld/reminder-api/internal/service"
	"github.com/phrazzld/reminder-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockTaskService is a mock implementation of TaskService for testing
type MockTaskService struct {
	CreateTaskFn   func(ctx context.Context, input service.CreateTaskInput) (*domain.Task, error)
	UpdateTaskFn   func(ctx context.Context, id uuid.UUID, input service.UpdateTaskInput) (*domain.Task, error)
	DeleteTaskFn   func(ctx context.Context, id uuid.UUID) error
	GetTaskFn      func(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	GetUserTasksFn func(ctx context.Context, userID uuid.UUID) ([]*domain.Task, error)
}

func (m *MockTaskService) CreateTask(ctx context.Context, input service.CreateTaskInput) (*domain.Task, error) {
	if m.CreateTaskFn != nil {
		return m.CreateTaskFn(ctx, input)
	}
	return nil, errors.New("CreateTask not mocked")
}

func (m *MockTaskService) UpdateTask(
	ctx context.Context,
	id uuid.UUID,
	input service.UpdateTaskInput,
) (*domain.Task, error) {
	if m.UpdateTaskFn != nil {
		return m.UpdateTaskFn(ctx, id, input)
	}
	return nil, errors.New("UpdateTask not mocked")
}

func (m *MockTaskService) DeleteTask(ctx context.Context, id uuid.UUID) error {
	if m.DeleteTaskFn != nil {
		return m.DeleteTaskFn(ctx, id)
	}
	return errors.New("DeleteTask not mocked")
}

func (m *MockTaskService) GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	if m.GetTaskFn != nil {
		return m.GetTaskFn(ctx, id)
	}
	return nil, errors.New("GetTask not mocked")
}

func (m *MockTaskService) GetUserTasks(ctx context.Context, userID uuid.UUID) ([]*domain.Task, error) {
	if m.GetUserTasksFn != nil {
		return m.GetUserTasksFn(ctx, userID)
	}
	return nil, errors.New("GetUserTasks not mocked")
}

var (
	fixedTaskID = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	fixedUserID = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	fixedTime   = time.Date(2026, time.April, 1, 12, 0, 0, 0, time.UTC)
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleTask() *domain.Task {
	scheduledAt := fixedTime
	return &domain.Task{
		ID:          fixedTaskID,
		Title:       "Water the plants",
		DueDate:     fixedTime.Add(time.Hour),
		UserID:      fixedUserID,
		Status:      domain.TaskStatusScheduled,
		ScheduledAt: &scheduledAt,
		MaxAttempts: 3,
		CreatedAt:   fixedTime,
		UpdatedAt:   fixedTime,
	}
}

func newTaskRouter(svc TaskService) http.Handler {
	r := chi.NewRouter()
	r.Route("/tasks", NewTaskHandler(svc, discardLogger()).Routes)
	return r
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewBuffer(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) shared.ErrorResponse {
	t.Helper()
	var resp shared.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestTaskHandler_CreateTask(t *testing.T) {
	t.Parallel()

	validBody := map[string]string{
		"title":   "Water the plants",
		"dueDate": "2026-04-01T13:00:00Z",
		"userId":  fixedUserID.String(),
	}

	tests := []struct {
		name           string
		body           any
		createErr      error
		expectedStatus int
		expectedErrMsg string
	}{
		{
			name:           "created",
			body:           validBody,
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "malformed json",
			body:           `{"title":`,
			expectedStatus: http.StatusBadRequest,
			expectedErrMsg: "Invalid request format",
		},
		{
			name:           "empty body",
			body:           "",
			expectedStatus: http.StatusBadRequest,
			expectedErrMsg: "Request body is required",
		},
		{
			name:           "unknown field",
			body:           `{"title":"x","dueDate":"2026-04-01T13:00:00Z","userId":"` + fixedUserID.String() + `","owner":"me"}`,
			expectedStatus: http.StatusBadRequest,
			expectedErrMsg: "Invalid request format",
		},
		{
			name:           "missing title",
			body:           map[string]string{"dueDate": "2026-04-01T13:00:00Z", "userId": fixedUserID.String()},
			expectedStatus: http.StatusBadRequest,
			expectedErrMsg: "Invalid Title: required field",
		},
		{
			name:           "bad due date",
			body:           map[string]string{"title": "x", "dueDate": "tomorrow", "userId": fixedUserID.String()},
			expectedStatus: http.StatusBadRequest,
			expectedErrMsg: "Invalid DueDate: invalid date format, expected RFC3339",
		},
		{
			name:           "bad user id",
			body:           map[string]string{"title": "x", "dueDate": "2026-04-01T13:00:00Z", "userId": "42"},
			expectedStatus: http.StatusBadRequest,
			expectedErrMsg: "Invalid UserID: invalid UUID format",
		},
		{
			name:           "domain validation",
			body:           validBody,
			createErr:      &service.TaskServiceError{Operation: "create_task", Err: domain.ErrEmptyTaskTitle},
			expectedStatus: http.StatusBadRequest,
			expectedErrMsg: "Task title cannot be empty",
		},
		{
			name: "scheduler failure",
			body: validBody,
			createErr: &service.TaskServiceError{
				Operation: "create_task",
				Message:   "failed to schedule reminder",
				Err:       errors.New("dial tcp 10.0.0.5:5432: connection refused"),
			},
			expectedStatus: http.StatusInternalServerError,
			expectedErrMsg: "Failed to create task",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got service.CreateTaskInput
			svc := &MockTaskService{
				CreateTaskFn: func(_ context.Context, input service.CreateTaskInput) (*domain.Task, error) {
					got = input
					if tc.createErr != nil {
						return nil, tc.createErr
					}
					return sampleTask(), nil
				},
			}

			w := doRequest(t, newTaskRouter(svc), http.MethodPost, "/tasks", tc.body)
			require.Equal(t, tc.expectedStatus, w.Code, w.Body.String())

			if tc.expectedErrMsg != "" {
				resp := decodeError(t, w)
				assert.Equal(t, tc.expectedErrMsg, resp.Error)
				assert.NotContains(t, w.Body.String(), "10.0.0.5")
				return
			}

			var resp TaskResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, fixedTaskID.String(), resp.ID)
			assert.Equal(t, "SCHEDULED", resp.Status)
			assert.Equal(t, fixedUserID, got.UserID)
			assert.Equal(t, "Water the plants", got.Title)
			assert.True(t, fixedTime.Add(time.Hour).Equal(got.DueDate))
		})
	}
}

func TestTaskHandler_GetTask(t *testing.T) {
	t.Parallel()

	svc := &MockTaskService{
		GetTaskFn: func(_ context.Context, id uuid.UUID) (*domain.Task, error) {
			if id == fixedTaskID {
				return sampleTask(), nil
			}
			return nil, service.ErrTaskNotFound
		},
	}
	router := newTaskRouter(svc)

	w := doRequest(t, router, http.MethodGet, "/tasks/"+fixedTaskID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp TaskResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Water the plants", resp.Title)
	require.NotNil(t, resp.ScheduledAt)

	w = doRequest(t, router, http.MethodGet, "/tasks/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Task not found", decodeError(t, w).Error)

	w = doRequest(t, router, http.MethodGet, "/tasks/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid ID format", decodeError(t, w).Error)
}

func TestTaskHandler_UpdateTask(t *testing.T) {
	t.Parallel()

	t.Run("maps fields", func(t *testing.T) {
		var got service.UpdateTaskInput
		svc := &MockTaskService{
			UpdateTaskFn: func(_ context.Context, id uuid.UUID, input service.UpdateTaskInput) (*domain.Task, error) {
				got = input
				return sampleTask(), nil
			},
		}
		body := map[string]string{"dueDate": "2026-04-02T08:30:00+02:00", "status": "CANCELLED"}
		w := doRequest(t, newTaskRouter(svc), http.MethodPut, "/tasks/"+fixedTaskID.String(), body)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		assert.Nil(t, got.Title)
		require.NotNil(t, got.DueDate)
		assert.Equal(t, time.Date(2026, 4, 2, 6, 30, 0, 0, time.UTC), *got.DueDate)
		require.NotNil(t, got.Status)
		assert.Equal(t, domain.TaskStatusCancelled, *got.Status)
	})

	t.Run("unknown status", func(t *testing.T) {
		w := doRequest(t, newTaskRouter(&MockTaskService{}), http.MethodPut,
			"/tasks/"+fixedTaskID.String(), map[string]string{"status": "DONE"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Invalid Status: invalid value", decodeError(t, w).Error)
	})

	t.Run("invalid transition", func(t *testing.T) {
		svc := &MockTaskService{
			UpdateTaskFn: func(context.Context, uuid.UUID, service.UpdateTaskInput) (*domain.Task, error) {
				return nil, &service.TaskServiceError{
					Operation: "update_task",
					Err:       fmt.Errorf("%w: CANCELLED -> SCHEDULED", domain.ErrInvalidTransition),
				}
			},
		}
		w := doRequest(t, newTaskRouter(svc), http.MethodPut,
			"/tasks/"+fixedTaskID.String(), map[string]string{"status": "SCHEDULED"})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "Status transition not allowed", decodeError(t, w).Error)
	})
}

func TestTaskHandler_DeleteTask(t *testing.T) {
	t.Parallel()

	var deleted uuid.UUID
	svc := &MockTaskService{
		DeleteTaskFn: func(_ context.Context, id uuid.UUID) error {
			deleted = id
			return nil
		},
	}
	w := doRequest(t, newTaskRouter(svc), http.MethodDelete, "/tasks/"+fixedTaskID.String(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
	assert.Equal(t, fixedTaskID, deleted)

	svc.DeleteTaskFn = func(context.Context, uuid.UUID) error {
		return &service.TaskServiceError{Operation: "delete_task", Err: errors.New("broker down")}
	}
	w = doRequest(t, newTaskRouter(svc), http.MethodDelete, "/tasks/"+fixedTaskID.String(), nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to delete task", decodeError(t, w).Error)
}

func TestTaskHandler_GetUserTasks(t *testing.T) {
	t.Parallel()

	svc := &MockTaskService{
		GetUserTasksFn: func(_ context.Context, userID uuid.UUID) ([]*domain.Task, error) {
			if userID == fixedUserID {
				return []*domain.Task{sampleTask()}, nil
			}
			return []*domain.Task{}, nil
		},
	}
	router := newTaskRouter(svc)

	w := doRequest(t, router, http.MethodGet, "/tasks/user/"+fixedUserID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp []TaskResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, fixedUserID.String(), resp[0].UserID)

	w = doRequest(t, router, http.MethodGet, "/tasks/user/"+uuid.NewString(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestTaskHandler_StoreNotFound(t *testing.T) {
	t.Parallel()

	svc := &MockTaskService{
		GetTaskFn: func(context.Context, uuid.UUID) (*domain.Task, error) {
			return nil, fmt.Errorf("lookup: %w", store.ErrTaskNotFound)
		},
	}
	w := doRequest(t, newTaskRouter(svc), http.MethodGet, "/tasks/"+fixedTaskID.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNewTaskHandler_NilService(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { NewTaskHandler(nil, nil) })
}
