package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/reminder-api/internal/cache"
	"github.com/phrazzld/reminder-api/internal/domain"
	"github.com/phrazzld/reminder-api/internal/events"
	"github.com/phrazzld/reminder-api/internal/platform/logger"
	"github.com/phrazzld/reminder-api/internal/redact"
	"github.com/phrazzld/reminder-api/internal/scheduler"
	"github.com/phrazzld/reminder-api/internal/task"
)

// CreateTaskInput contains the fields of a new task.
type CreateTaskInput struct {
	Title   string
	DueDate time.Time
	UserID  uuid.UUID
}

// UpdateTaskInput is a partial task update. Nil fields are left untouched.
type UpdateTaskInput struct {
	Title   *string
	DueDate *time.Time
	Status  *domain.TaskStatus
}

// TaskFacadeConfig holds facade settings.
type TaskFacadeConfig struct {
	// CacheTTL bounds how long task reads are served from the cache.
	CacheTTL time.Duration
}

// TaskFacade coordinates the task repository, the reminder queue, the event
// bus and the read cache for the task use cases.
//
// Cache operations never fail a request. Events are published after the
// store write; task.created is best-effort, task.updated and task.deleted
// are awaited.
type TaskFacade struct {
	repo      *task.Repository
	queue     scheduler.Queue
	publisher task.Publisher
	cache     *cache.Guard
	config    TaskFacadeConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewTaskFacade creates a new TaskFacade.
// It returns an error if any of the required dependencies are nil.
func NewTaskFacade(
	repo *task.Repository,
	queue scheduler.Queue,
	publisher task.Publisher,
	readCache *cache.Guard,
	config TaskFacadeConfig,
	log *slog.Logger,
) (*TaskFacade, error) {
	if repo == nil {
		return nil, &TaskServiceError{
			Operation: "create_service",
			Message:   "repo cannot be nil",
		}
	}
	if queue == nil {
		return nil, &TaskServiceError{
			Operation: "create_service",
			Message:   "queue cannot be nil",
		}
	}
	if publisher == nil {
		return nil, &TaskServiceError{
			Operation: "create_service",
			Message:   "publisher cannot be nil",
		}
	}
	if log == nil {
		log = slog.Default()
	}
	if readCache == nil {
		readCache = cache.NewGuard(nil, log)
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = cache.DefaultTTL
	}

	return &TaskFacade{
		repo:      repo,
		queue:     queue,
		publisher: publisher,
		cache:     readCache,
		config:    config,
		logger:    log.With(slog.String("component", "task_facade")),
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// CreateTask persists a task, registers its reminder and moves it to
// SCHEDULED. A failed registration is returned and leaves the task CREATED.
func (f *TaskFacade) CreateTask(ctx context.Context, input CreateTaskInput) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, f.logger)

	created, err := f.repo.Create(ctx, input.Title, input.DueDate, input.UserID)
	if err != nil {
		return nil, NewTaskServiceError("create_task", "failed to persist task", err)
	}

	if err := f.scheduleReminder(ctx, log, created); err != nil {
		return nil, NewTaskServiceError("create_task", "failed to schedule reminder", err)
	}

	scheduled, err := f.repo.UpdateStatus(ctx, created.ID, domain.TaskStatusScheduled)
	if err != nil {
		return nil, NewTaskServiceError("create_task", "failed to mark task scheduled", err)
	}

	if err := f.publisher.Publish(ctx, events.TopicTaskCreated, scheduled); err != nil {
		log.Warn("failed to publish task created event",
			slog.String("task_id", scheduled.ID.String()),
			slog.String("error", redact.Error(err)))
	}
	f.cache.Del(ctx, cache.UserTasksKey(scheduled.UserID))

	log.Info("task created",
		slog.String("task_id", scheduled.ID.String()),
		slog.String("user_id", scheduled.UserID.String()),
		slog.Time("due_date", scheduled.DueDate))
	return scheduled, nil
}

// UpdateTask applies input to the task. Moving a task to SCHEDULED or giving
// a SCHEDULED task a new due date (re)registers its reminder; a terminal
// status removes it. Statuses owned by the reminder worker are rejected with
// domain.ErrInvalidTransition.
func (f *TaskFacade) UpdateTask(ctx context.Context, id uuid.UUID, input UpdateTaskInput) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, f.logger).With(slog.String("task_id", id.String()))

	updated, err := f.repo.Update(ctx, id, domain.TaskChanges{
		Title:   input.Title,
		DueDate: input.DueDate,
		Status:  input.Status,
	})
	if err != nil {
		return nil, NewTaskServiceError("update_task", "failed to update task", err)
	}

	switch {
	case updated.Status.IsTerminal():
		if err := task.CancelReminder(ctx, f.queue, id); err != nil {
			log.Warn("failed to cancel reminder of finished task", slog.String("error", redact.Error(err)))
		}
	case updated.Status == domain.TaskStatusScheduled && (input.DueDate != nil || input.Status != nil):
		if err := task.CancelReminder(ctx, f.queue, id); err != nil {
			return nil, NewTaskServiceError("update_task", "failed to cancel reminder", err)
		}
		if err := f.scheduleReminder(ctx, log, updated); err != nil {
			return nil, NewTaskServiceError("update_task", "failed to reschedule reminder", err)
		}
	}

	if err := f.publisher.Publish(ctx, events.TopicTaskUpdated, updated); err != nil {
		return nil, NewTaskServiceError("update_task", "failed to publish task updated event", err)
	}
	f.cache.Del(ctx, cache.TaskKey(id), cache.UserTasksKey(updated.UserID))

	log.Info("task updated", slog.String("status", string(updated.Status)))
	return updated, nil
}

// DeleteTask removes the task and its reminder. Cancelling the task before
// removal is best-effort: an in-flight worker then fails to finalize. A task
// that is already gone is not an error, so the operation can be repeated.
func (f *TaskFacade) DeleteTask(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, f.logger).With(slog.String("task_id", id.String()))

	existing, err := f.repo.FindByID(ctx, id)
	if err != nil {
		log.Debug("task lookup before delete failed", slog.String("error", redact.Error(err)))
		existing = nil
	}

	if err := task.CancelReminder(ctx, f.queue, id); err != nil {
		return NewTaskServiceError("delete_task", "failed to cancel reminder", err)
	}

	if existing != nil && !existing.Status.IsTerminal() {
		if _, err := f.repo.UpdateStatus(ctx, id, domain.TaskStatusCancelled); err != nil {
			log.Warn("failed to cancel task before delete", slog.String("error", redact.Error(err)))
		}
	}

	if err := f.repo.Delete(ctx, id); err != nil && !isNotFound(err) {
		return NewTaskServiceError("delete_task", "failed to delete task", err)
	}

	if err := f.publisher.Publish(ctx, events.TopicTaskDeleted, events.TaskDeletedPayload{TaskID: id}); err != nil {
		return NewTaskServiceError("delete_task", "failed to publish task deleted event", err)
	}

	keys := []string{cache.TaskKey(id)}
	if existing != nil {
		keys = append(keys, cache.UserTasksKey(existing.UserID))
	}
	f.cache.Del(ctx, keys...)

	log.Info("task deleted")
	return nil
}

// GetTask returns the task, serving it from the cache when possible.
func (f *TaskFacade) GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	key := cache.TaskKey(id)

	var cached domain.Task
	if f.cache.GetJSON(ctx, key, &cached) {
		return &cached, nil
	}

	t, err := f.repo.FindByID(ctx, id)
	if err != nil {
		return nil, NewTaskServiceError("get_task", "failed to retrieve task", err)
	}
	f.cache.SetJSON(ctx, key, t, f.config.CacheTTL)
	return t, nil
}

// GetUserTasks returns the user's tasks ordered by due date, serving them
// from the cache when possible.
func (f *TaskFacade) GetUserTasks(ctx context.Context, userID uuid.UUID) ([]*domain.Task, error) {
	key := cache.UserTasksKey(userID)

	var cached []*domain.Task
	if f.cache.GetJSON(ctx, key, &cached) {
		return cached, nil
	}

	tasks, err := f.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, NewTaskServiceError("get_user_tasks", "failed to retrieve user tasks", err)
	}
	f.cache.SetJSON(ctx, key, tasks, f.config.CacheTTL)
	return tasks, nil
}

// scheduleReminder registers the reminder of t to fire at its due date.
// A due date in the past registers nothing.
func (f *TaskFacade) scheduleReminder(ctx context.Context, log *slog.Logger, t *domain.Task) error {
	delay := t.DueDate.Sub(f.now())
	if delay <= 0 {
		log.Warn("due date already passed, reminder not registered",
			slog.String("task_id", t.ID.String()),
			slog.Time("due_date", t.DueDate))
		return nil
	}

	if err := task.ScheduleReminder(ctx, f.queue, t.ID, delay); err != nil {
		return fmt.Errorf("failed to register reminder of task %s: %w", t.ID, err)
	}

	log.Debug("reminder registered",
		slog.String("task_id", t.ID.String()),
		slog.String("job_id", scheduler.ReminderJobID(t.ID)),
		slog.Duration("delay", delay))
	return nil
}
