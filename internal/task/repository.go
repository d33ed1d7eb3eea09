package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/reminder-api/internal/domain"
	"github.com/phrazzld/reminder-api/internal/platform/logger"
	"github.com/phrazzld/reminder-api/internal/store"
)

// Lease identifies a successful claim. Finalizing under a lease only
// succeeds while the task still holds the same token.
type Lease struct {
	TaskID uuid.UUID
	Token  uuid.UUID
}

// RepositoryConfig holds repository settings.
type RepositoryConfig struct {
	// MaxAttempts is given to every new task.
	MaxAttempts int
}

// Repository owns task status changes. Every status write is a conditional
// update restricted to the allowed source statuses of the target, so the
// state machine is enforced by the store's atomicity rather than by a
// preceding read.
type Repository struct {
	store  store.TaskStore
	config RepositoryConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewRepository creates a Repository over s.
func NewRepository(s store.TaskStore, config RepositoryConfig, log *slog.Logger) *Repository {
	if s == nil {
		panic("task store cannot be nil")
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = domain.DefaultMaxAttempts
	}
	if log == nil {
		log = slog.Default()
	}
	return &Repository{
		store:  s,
		config: config,
		logger: log.With(slog.String("component", "task_repository")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create inserts a new task in CREATED status.
func (r *Repository) Create(ctx context.Context, title string, dueDate time.Time, userID uuid.UUID) (*domain.Task, error) {
	t, err := domain.NewTask(userID, title, dueDate, r.config.MaxAttempts)
	if err != nil {
		return nil, err
	}
	if err := r.store.Insert(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	logger.FromContextOrDefault(ctx, r.logger).Debug("task created",
		slog.String("task_id", t.ID.String()),
		slog.String("user_id", userID.String()))
	return t, nil
}

// Update applies changes and returns the updated task. A status change
// stamps the matching lifecycle timestamp if it is still unset and fails
// with domain.ErrInvalidTransition when the current status does not allow
// it. Only CREATED -> SCHEDULED and cancellation may be written here; the
// edges into and out of EXECUTING belong to Claim and the Finalize methods.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, changes domain.TaskChanges) (*domain.Task, error) {
	if changes.IsEmpty() {
		return r.FindByID(ctx, id)
	}

	pred := store.TaskPredicate{ID: id}
	patch := store.TaskPatch{Now: r.now()}

	if changes.Title != nil {
		if err := domain.ValidateTitle(*changes.Title); err != nil {
			return nil, err
		}
		patch.Title = changes.Title
	}
	if changes.DueDate != nil {
		if changes.DueDate.IsZero() {
			return nil, domain.ErrEmptyDueDate
		}
		due := changes.DueDate.UTC()
		patch.DueDate = &due
	}
	if changes.Status != nil {
		to := *changes.Status
		if !to.IsValid() {
			return nil, domain.ErrInvalidTaskStatus
		}
		if to == domain.TaskStatusExecuting {
			return nil, fmt.Errorf("%w: EXECUTING is only entered by a claim", domain.ErrInvalidTransition)
		}
		pred.StatusIn = domain.UpdateSources(to)
		if len(pred.StatusIn) == 0 {
			return nil, fmt.Errorf("%w: %s is only written by the reminder worker", domain.ErrInvalidTransition, to)
		}
		patch.Status = &to
		patch.ClearLock = true
	}

	n, err := r.store.ConditionalUpdate(ctx, pred, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	if n == 0 {
		return nil, r.explainMiss(ctx, id, changes.Status)
	}
	return r.FindByID(ctx, id)
}

// UpdateStatus moves the task to status; see Update.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus) (*domain.Task, error) {
	return r.Update(ctx, id, domain.TaskChanges{Status: &status})
}

// ClaimForExecution reports whether this caller won the right to execute
// the task.
func (r *Repository) ClaimForExecution(ctx context.Context, id uuid.UUID) (bool, error) {
	lease, err := r.Claim(ctx, id)
	if err != nil {
		return false, err
	}
	return lease != nil, nil
}

// Claim moves a SCHEDULED, uncancelled task to EXECUTING in one conditional
// write, counting the attempt and taking a lease. It returns nil when the
// task was not claimable: already claimed, cancelled, finished or missing.
func (r *Repository) Claim(ctx context.Context, id uuid.UUID) (*Lease, error) {
	token := uuid.New()
	executing := domain.TaskStatusExecuting

	n, err := r.store.ConditionalUpdate(ctx,
		store.TaskPredicate{
			ID:           id,
			StatusIn:     []domain.TaskStatus{domain.TaskStatusScheduled},
			NotCancelled: true,
		},
		store.TaskPatch{
			Status:            &executing,
			IncrementAttempts: true,
			ClearLastError:    true,
			LockToken:         &token,
			Now:               r.now(),
		})
	if err != nil {
		return nil, fmt.Errorf("failed to claim task: %w", err)
	}
	if n != 1 {
		return nil, nil
	}
	return &Lease{TaskID: id, Token: token}, nil
}

// MarkExecuted finalizes a successful execution.
func (r *Repository) MarkExecuted(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return r.markExecuted(ctx, id, nil)
}

// FinalizeExecuted is MarkExecuted conditional on the lease.
func (r *Repository) FinalizeExecuted(ctx context.Context, lease Lease) (*domain.Task, error) {
	return r.markExecuted(ctx, lease.TaskID, &lease.Token)
}

func (r *Repository) markExecuted(ctx context.Context, id uuid.UUID, token *uuid.UUID) (*domain.Task, error) {
	executed := domain.TaskStatusExecuted
	n, err := r.store.ConditionalUpdate(ctx,
		store.TaskPredicate{
			ID:        id,
			StatusIn:  []domain.TaskStatus{domain.TaskStatusExecuting},
			LockToken: token,
		},
		store.TaskPatch{
			Status:         &executed,
			ClearLastError: true,
			ClearLock:      true,
			Now:            r.now(),
		})
	if err != nil {
		return nil, fmt.Errorf("failed to mark task executed: %w", err)
	}
	if n == 0 {
		return nil, r.explainMiss(ctx, id, &executed)
	}
	return r.FindByID(ctx, id)
}

// MarkPublishFailed records a failed publish. The task returns to SCHEDULED
// while attempts remain and moves to FAILED once they are used up. No
// reminder job is registered for the retry; the reconciliation sweep of
// Maintainer is responsible for that.
func (r *Repository) MarkPublishFailed(ctx context.Context, id uuid.UUID, errMsg string) (*domain.Task, error) {
	return r.markPublishFailed(ctx, id, nil, errMsg)
}

// FinalizePublishFailed is MarkPublishFailed conditional on the lease.
func (r *Repository) FinalizePublishFailed(ctx context.Context, lease Lease, errMsg string) (*domain.Task, error) {
	return r.markPublishFailed(ctx, lease.TaskID, &lease.Token, errMsg)
}

func (r *Repository) markPublishFailed(
	ctx context.Context,
	id uuid.UUID,
	token *uuid.UUID,
	errMsg string,
) (*domain.Task, error) {
	current, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	next := domain.TaskStatusScheduled
	if current.AttemptsExhausted() {
		next = domain.TaskStatusFailed
	}

	n, err := r.store.ConditionalUpdate(ctx,
		store.TaskPredicate{
			ID:        id,
			StatusIn:  []domain.TaskStatus{domain.TaskStatusExecuting},
			LockToken: token,
		},
		store.TaskPatch{
			Status:    &next,
			LastError: &errMsg,
			ClearLock: true,
			Now:       r.now(),
		})
	if err != nil {
		return nil, fmt.Errorf("failed to record publish failure: %w", err)
	}
	if n == 0 {
		return nil, r.explainMiss(ctx, id, &next)
	}
	return r.FindByID(ctx, id)
}

// ReleaseExpiredLease returns a task whose claim outlived its lease to
// SCHEDULED, or to FAILED when its attempts are used up. It reports false
// when the lease changed hands or the task was finalized in the meantime.
func (r *Repository) ReleaseExpiredLease(ctx context.Context, t *domain.Task, reason string) (*domain.Task, bool, error) {
	if t.LockToken == nil {
		return nil, false, nil
	}

	next := domain.TaskStatusScheduled
	if t.AttemptsExhausted() {
		next = domain.TaskStatusFailed
	}

	n, err := r.store.ConditionalUpdate(ctx,
		store.TaskPredicate{
			ID:        t.ID,
			StatusIn:  []domain.TaskStatus{domain.TaskStatusExecuting},
			LockToken: t.LockToken,
		},
		store.TaskPatch{
			Status:    &next,
			LastError: &reason,
			ClearLock: true,
			Now:       r.now(),
		})
	if err != nil {
		return nil, false, fmt.Errorf("failed to release lease: %w", err)
	}
	if n == 0 {
		return nil, false, nil
	}

	released, err := r.FindByID(ctx, t.ID)
	if err != nil {
		return nil, false, err
	}
	return released, true, nil
}

// FindByID returns the task or store.ErrTaskNotFound.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	t, err := r.store.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find task %s: %w", id, err)
	}
	return t, nil
}

// FindByUserID returns the user's tasks ordered by due date. An unknown
// user has no tasks.
func (r *Repository) FindByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.Task, error) {
	tasks, err := r.store.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks of user %s: %w", userID, err)
	}
	return tasks, nil
}

// FindByStatus returns up to limit tasks in status.
func (r *Repository) FindByStatus(ctx context.Context, status domain.TaskStatus, limit int) ([]*domain.Task, error) {
	return r.store.FindByStatus(ctx, status, limit)
}

// FindExpiredLeases returns EXECUTING tasks claimed more than timeout ago.
func (r *Repository) FindExpiredLeases(ctx context.Context, timeout time.Duration, limit int) ([]*domain.Task, error) {
	return r.store.FindExpiredLeases(ctx, r.now().Add(-timeout), limit)
}

// Delete permanently removes the task and its notifications.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	return nil
}

// explainMiss turns a conditional update that matched nothing into the
// error describing why.
func (r *Repository) explainMiss(ctx context.Context, id uuid.UUID, target *domain.TaskStatus) error {
	current, err := r.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("failed to update task %s: %w", id, err)
		}
		return fmt.Errorf("failed to reload task %s: %w", id, err)
	}
	if target == nil {
		return fmt.Errorf("%w: task %s", store.ErrUpdateFailed, id)
	}
	return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current.Status, *target)
}
