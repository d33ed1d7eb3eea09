package task

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
)

// ReminderPayload is the job payload of a task reminder.
type ReminderPayload struct {
	TaskID uuid.UUID `json:"taskId"`
}

// ScheduleReminder registers the reminder job of taskID to fire after delay,
// replacing any earlier registration.
func ScheduleReminder(ctx context.Context, q scheduler.Queue, taskID uuid.UUID, delay time.Duration) error {
	return q.ScheduleJob(ctx, scheduler.ReminderQueue, scheduler.ReminderJobName,
		ReminderPayload{TaskID: taskID},
		scheduler.JobOptions{Delay: delay, JobID: scheduler.ReminderJobID(taskID)})
}

// CancelReminder removes the reminder job of taskID if one is pending.
func CancelReminder(ctx context.Context, q scheduler.Queue, taskID uuid.UUID) error {
	return q.CancelJob(ctx, scheduler.ReminderQueue, scheduler.ReminderJobID(taskID))
}

// invalidate drops the cached reads that show t, so they are rebuilt with
// its new status.
func invalidate(ctx context.Context, g *cache.Guard, t *domain.Task) {
	g.Del(ctx, cache.TaskKey(t.ID), cache.UserTasksKey(t.UserID))
}

// Publisher is the part of events.Bus the worker needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// ReminderWorker handles due reminder jobs. Jobs may be delivered more than
// once and to several processes at the same time; the claim makes sure only
// one delivery publishes the arrival event.
type ReminderWorker struct {
	repo      *Repository
	publisher Publisher
	cache     *cache.Guard
	logger    *slog.Logger
}

// NewReminderWorker creates a ReminderWorker. Every status change it makes
// invalidates the task's entries in readCache, which may be nil.
func NewReminderWorker(repo *Repository, publisher Publisher, readCache *cache.Guard, log *slog.Logger) *ReminderWorker {
	if log == nil {
		log = slog.Default()
	}
	if readCache == nil {
		readCache = cache.NewGuard(nil, log)
	}
	return &ReminderWorker{
		repo:      repo,
		publisher: publisher,
		cache:     readCache,
		logger:    log.With(slog.String("component", "reminder_worker")),
	}
}

// Register installs the worker as the handler of reminder jobs.
func (w *ReminderWorker) Register(b scheduler.Backend) {
	b.Register(scheduler.ReminderQueue, scheduler.ReminderJobName, w.HandleJob)
}

// HandleJob implements scheduler.Handler. Only a failed claim is returned to
// the queue for another delivery; everything after the claim is recorded on
// the task itself.
func (w *ReminderWorker) HandleJob(ctx context.Context, job *scheduler.Job) error {
	var payload ReminderPayload
	if err := job.Decode(&payload); err != nil {
		// Redelivery cannot fix a bad payload.
		logger.FromContextOrDefault(ctx, w.logger).Error("dropping reminder job with malformed payload",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()))
		return nil
	}

	log := logger.FromContextOrDefault(ctx, w.logger).With(
		slog.String("job_id", job.ID),
		slog.Int("job_attempt", job.Attempt))
	return w.Process(logger.WithContext(ctx, log), payload.TaskID)
}

// Process runs claim, publish and finalize for one delivery of the reminder
// of taskID.
func (w *ReminderWorker) Process(ctx context.Context, taskID uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, w.logger).With(slog.String("task_id", taskID.String()))

	lease, err := w.repo.Claim(ctx, taskID)
	if err != nil {
		log.Error("failed to claim task", slog.String("error", redact.Error(err)))
		return err
	}
	if lease == nil {
		log.Debug("task not claimable, skipping delivery")
		return nil
	}

	t, err := w.repo.FindByID(ctx, taskID)
	if err == nil {
		invalidate(ctx, w.cache, t)
		err = w.publisher.Publish(ctx, events.TopicTaskArrived, events.TaskArrivedPayload{
			TaskID:  t.ID,
			UserID:  t.UserID,
			DueDate: t.DueDate,
		})
	}
	if err != nil {
		w.finalizeFailure(ctx, log, *lease, err)
		return nil
	}

	w.finalizeSuccess(ctx, log, *lease)
	return nil
}

func (w *ReminderWorker) finalizeSuccess(ctx context.Context, log *slog.Logger, lease Lease) {
	t, err := w.repo.FinalizeExecuted(ctx, lease)
	if err != nil {
		log.Error("failed to mark task executed", slog.String("error", redact.Error(err)))
		return
	}
	invalidate(ctx, w.cache, t)

	log.Info("reminder delivered",
		slog.Int("attempts", t.Attempts),
		slog.Int64("wait_ms", t.WaitDuration().Milliseconds()),
		slog.Int64("execution_ms", t.ExecutionDuration().Milliseconds()))
}

func (w *ReminderWorker) finalizeFailure(ctx context.Context, log *slog.Logger, lease Lease, cause error) {
	msg := fmt.Sprintf("publish %s: %s", events.TopicTaskArrived, redact.Error(cause))

	t, err := w.repo.FinalizePublishFailed(ctx, lease, msg)
	if err != nil {
		log.Error("failed to record publish failure",
			slog.String("publish_error", msg),
			slog.String("error", redact.Error(err)))
		return
	}
	invalidate(ctx, w.cache, t)

	if t.Status == domain.TaskStatusFailed {
		log.Error("reminder failed, attempts exhausted",
			slog.String("error", msg),
			slog.Int("attempts", t.Attempts),
			slog.Int("max_attempts", t.MaxAttempts))
		return
	}
	log.Warn("reminder publish failed, task is retryable",
		slog.String("error", msg),
		slog.Int("attempts", t.Attempts),
		slog.Int("max_attempts", t.MaxAttempts))
}
