package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/reminder-api/internal/domain"
	"github.com/phrazzld/reminder-api/internal/platform/logger"
	"github.com/phrazzld/reminder-api/internal/store"
)

const taskColumns = `id, title, due_date, user_id, status, scheduled_at, executing_at, executed_at,
	cancelled_at, attempts, max_attempts, last_error, lock_token, locked_at, created_at, updated_at`

// PostgresTaskStore implements the store.TaskStore interface
// using a PostgreSQL database as the storage backend.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a new PostgreSQL implementation of the TaskStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

// Ensure PostgresTaskStore implements store.TaskStore interface
var _ store.TaskStore = (*PostgresTaskStore)(nil)

// Insert implements store.TaskStore.Insert
func (s *PostgresTaskStore) Insert(ctx context.Context, task *domain.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := task.Validate(); err != nil {
		log.Warn("task validation failed during insert",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO tasks (id, title, due_date, user_id, status, attempts, max_attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		task.ID,
		task.Title,
		task.DueDate,
		task.UserID,
		task.Status,
		task.Attempts,
		task.MaxAttempts,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		log.Error("failed to insert task",
			slog.String("error", err.Error()),
			slog.String("task_id", task.ID.String()))
		return store.NewStoreError("task", "insert", "failed to insert task", MapError(err))
	}

	log.Debug("task inserted",
		slog.String("task_id", task.ID.String()),
		slog.String("user_id", task.UserID.String()))
	return nil
}

// ConditionalUpdate implements store.TaskStore.ConditionalUpdate as a single
// UPDATE whose WHERE clause encodes the predicate.
func (s *PostgresTaskStore) ConditionalUpdate(
	ctx context.Context,
	pred store.TaskPredicate,
	patch store.TaskPatch,
) (int64, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query, args := buildConditionalUpdate(pred, patch)
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to apply conditional task update",
			slog.String("error", err.Error()),
			slog.String("task_id", pred.ID.String()))
		return 0, store.NewStoreError("task", "conditional_update", "failed to update task", MapError(err))
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// buildConditionalUpdate renders the UPDATE statement and its arguments.
func buildConditionalUpdate(pred store.TaskPredicate, patch store.TaskPatch) (string, []any) {
	now := patch.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var (
		sets  []string
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	nowArg := arg(now)

	if patch.Title != nil {
		sets = append(sets, "title = "+arg(*patch.Title))
	}
	if patch.DueDate != nil {
		sets = append(sets, "due_date = "+arg(patch.DueDate.UTC()))
	}
	if patch.Status != nil {
		sets = append(sets, "status = "+arg(string(*patch.Status)))
		if col := store.StampColumn(*patch.Status); col != "" {
			sets = append(sets, fmt.Sprintf("%s = COALESCE(%s, %s)", col, col, nowArg))
		}
	}
	if patch.IncrementAttempts {
		sets = append(sets, "attempts = attempts + 1")
	}
	switch {
	case patch.LastError != nil:
		sets = append(sets, "last_error = "+arg(*patch.LastError))
	case patch.ClearLastError:
		sets = append(sets, "last_error = NULL")
	}
	switch {
	case patch.LockToken != nil:
		sets = append(sets, "lock_token = "+arg(*patch.LockToken), "locked_at = "+nowArg)
	case patch.ClearLock:
		sets = append(sets, "lock_token = NULL", "locked_at = NULL")
	}
	sets = append(sets, "updated_at = "+nowArg)

	where = append(where, "id = "+arg(pred.ID))
	if len(pred.StatusIn) > 0 {
		placeholders := make([]string, len(pred.StatusIn))
		for i, st := range pred.StatusIn {
			placeholders[i] = arg(string(st))
		}
		where = append(where, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if pred.NotCancelled {
		where = append(where, "cancelled_at IS NULL")
	}
	if pred.LockToken != nil {
		where = append(where, "lock_token = "+arg(*pred.LockToken))
	}

	query := "UPDATE tasks SET " + strings.Join(sets, ", ") + " WHERE " + strings.Join(where, " AND ")
	return query, args
}

// FindByID implements store.TaskStore.FindByID
// Returns store.ErrTaskNotFound if the task does not exist.
func (s *PostgresTaskStore) FindByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrTaskNotFound
		}
		log.Error("failed to get task by ID",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return nil, MapError(err)
	}
	return task, nil
}

// FindByUserID implements store.TaskStore.FindByUserID
func (s *PostgresTaskStore) FindByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = $1 ORDER BY due_date ASC, created_at ASC`
	return s.queryTasks(ctx, "find_by_user", query, userID)
}

// FindByStatus implements store.TaskStore.FindByStatus
func (s *PostgresTaskStore) FindByStatus(
	ctx context.Context,
	status domain.TaskStatus,
	limit int,
) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE status = $1 ORDER BY due_date ASC, created_at ASC`
	args := []any{string(status)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	return s.queryTasks(ctx, "find_by_status", query, args...)
}

// FindExpiredLeases implements store.TaskStore.FindExpiredLeases
func (s *PostgresTaskStore) FindExpiredLeases(
	ctx context.Context,
	lockedBefore time.Time,
	limit int,
) ([]*domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE status = 'EXECUTING' AND locked_at IS NOT NULL AND locked_at < $1
		ORDER BY locked_at ASC`
	args := []any{lockedBefore}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	return s.queryTasks(ctx, "find_expired_leases", query, args...)
}

// Delete implements store.TaskStore.Delete. Notifications are removed in the
// same transaction when the store owns the connection.
func (s *PostgresTaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	if db, ok := s.db.(*sql.DB); ok {
		return store.RunInTransaction(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
			return s.deleteTask(ctx, tx, id)
		})
	}
	return s.deleteTask(ctx, s.db, id)
}

func (s *PostgresTaskStore) deleteTask(ctx context.Context, db store.DBTX, id uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if _, err := db.ExecContext(ctx, `DELETE FROM notifications WHERE task_id = $1`, id); err != nil {
		log.Error("failed to delete task notifications",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return MapError(err)
	}

	result, err := db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		log.Error("failed to delete task",
			slog.String("error", err.Error()),
			slog.String("task_id", id.String()))
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrTaskNotFound)
}

func (s *PostgresTaskStore) queryTasks(ctx context.Context, op, query string, args ...any) ([]*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query tasks", slog.String("op", op), slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	tasks := make([]*domain.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			log.Error("failed to scan task row", slog.String("op", op), slog.String("error", err.Error()))
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}
	return tasks, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		t           domain.Task
		status      string
		scheduledAt sql.NullTime
		executingAt sql.NullTime
		executedAt  sql.NullTime
		cancelledAt sql.NullTime
		lastError   sql.NullString
		lockToken   uuid.NullUUID
		lockedAt    sql.NullTime
	)

	err := row.Scan(
		&t.ID, &t.Title, &t.DueDate, &t.UserID, &status,
		&scheduledAt, &executingAt, &executedAt, &cancelledAt,
		&t.Attempts, &t.MaxAttempts, &lastError, &lockToken, &lockedAt,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Status = domain.TaskStatus(status)
	t.ScheduledAt = nullTime(scheduledAt)
	t.ExecutingAt = nullTime(executingAt)
	t.ExecutedAt = nullTime(executedAt)
	t.CancelledAt = nullTime(cancelledAt)
	t.LockedAt = nullTime(lockedAt)
	if lastError.Valid {
		msg := lastError.String
		t.LastError = &msg
	}
	if lockToken.Valid {
		token := lockToken.UUID
		t.LockToken = &token
	}
	return &t, nil
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	at := v.Time.UTC()
	return &at
}
