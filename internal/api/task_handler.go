package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/reminder-api/internal/api/shared"
	"github.com/phrazzld/reminder-api/internal/domain"
	"github.com/phrazzld/reminder-api/internal/platform/logger"
	"github.com/phrazzld/reminder-api/internal/service"
)

// TaskService is the task use-case surface the handlers call.
// service.TaskFacade implements it.
type TaskService interface {
	CreateTask(ctx context.Context, input service.CreateTaskInput) (*domain.Task, error)
	UpdateTask(ctx context.Context, id uuid.UUID, input service.UpdateTaskInput) (*domain.Task, error)
	DeleteTask(ctx context.Context, id uuid.UUID) error
	GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	GetUserTasks(ctx context.Context, userID uuid.UUID) ([]*domain.Task, error)
}

// TaskHandler handles task-related HTTP requests
type TaskHandler struct {
	tasks  TaskService
	logger *slog.Logger
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(tasks TaskService, log *slog.Logger) *TaskHandler {
	if tasks == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("task service cannot be nil for TaskHandler")
	}
	if log == nil {
		log = slog.Default()
	}
	return &TaskHandler{
		tasks:  tasks,
		logger: log.With(slog.String("component", "task_handler")),
	}
}

// CreateTask handles POST /tasks requests.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if !parseAndValidateRequest(w, r, &req) {
		return
	}

	due, err := parseDueDate(req.DueDate)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	created, err := h.tasks.CreateTask(r.Context(), service.CreateTaskInput{
		Title:   req.Title,
		DueDate: due,
		UserID:  uuid.MustParse(req.UserID),
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create task")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, taskToResponse(created))
}

// GetTask handles GET /tasks/{id} requests.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	id, ok := handlePathUUID(w, r, "id", log)
	if !ok {
		return
	}

	t, err := h.tasks.GetTask(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to retrieve task")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(t))
}

// UpdateTask handles PUT /tasks/{id} requests.
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	id, ok := handlePathUUID(w, r, "id", log)
	if !ok {
		return
	}

	var req UpdateTaskRequest
	if !parseAndValidateRequest(w, r, &req) {
		return
	}

	input := service.UpdateTaskInput{Title: req.Title}
	if req.DueDate != nil {
		due, err := parseDueDate(*req.DueDate)
		if err != nil {
			HandleAPIError(w, r, err, "")
			return
		}
		input.DueDate = &due
	}
	if req.Status != nil {
		status := domain.TaskStatus(*req.Status)
		input.Status = &status
	}

	updated, err := h.tasks.UpdateTask(r.Context(), id, input)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to update task")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(updated))
}

// DeleteTask handles DELETE /tasks/{id} requests.
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	id, ok := handlePathUUID(w, r, "id", log)
	if !ok {
		return
	}

	if err := h.tasks.DeleteTask(r.Context(), id); err != nil {
		HandleAPIError(w, r, err, "Failed to delete task")
		return
	}

	shared.RespondNoContent(w)
}

// GetUserTasks handles GET /tasks/user/{userId} requests.
func (h *TaskHandler) GetUserTasks(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	userID, ok := handlePathUUID(w, r, "userId", log)
	if !ok {
		return
	}

	tasks, err := h.tasks.GetUserTasks(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to retrieve tasks")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, tasksToResponse(tasks))
}
