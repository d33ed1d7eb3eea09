package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/reminder-api/internal/domain"
	"github.com/phrazzld/reminder-api/internal/platform/logger"
	"github.com/phrazzld/reminder-api/internal/store"
)

const notificationColumns = `id, task_id, type, status, message, sent_at, created_at`

// PostgresNotificationStore implements store.NotificationStore on PostgreSQL.
type PostgresNotificationStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresNotificationStore creates a new PostgreSQL notification store.
// If logger is nil, a default logger will be used.
func NewPostgresNotificationStore(db store.DBTX, logger *slog.Logger) *PostgresNotificationStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresNotificationStore{
		db:     db,
		logger: logger.With(slog.String("component", "notification_store")),
	}
}

var _ store.NotificationStore = (*PostgresNotificationStore)(nil)

// Create implements store.NotificationStore.Create.
// A missing parent task surfaces as store.ErrInvalidEntity.
func (s *PostgresNotificationStore) Create(ctx context.Context, n *domain.Notification) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := n.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO notifications (id, task_id, type, status, message, sent_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		n.ID, n.TaskID, string(n.Type), string(n.Status), n.Message, n.SentAt, n.CreatedAt)
	if err != nil {
		log.Error("failed to insert notification",
			slog.String("error", err.Error()),
			slog.String("notification_id", n.ID.String()),
			slog.String("task_id", n.TaskID.String()))
		return store.NewStoreError("notification", "insert", "failed to insert notification", MapError(err))
	}
	return nil
}

// Update implements store.NotificationStore.Update
func (s *PostgresNotificationStore) Update(ctx context.Context, n *domain.Notification) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := n.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		UPDATE notifications
		SET type = $2, status = $3, message = $4, sent_at = $5
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query,
		n.ID, string(n.Type), string(n.Status), n.Message, n.SentAt)
	if err != nil {
		log.Error("failed to update notification",
			slog.String("error", err.Error()),
			slog.String("notification_id", n.ID.String()))
		return store.NewStoreError("notification", "update", "failed to update notification", MapError(err))
	}
	return CheckRowsAffected(result, store.ErrNotificationNotFound)
}

// Delete implements store.NotificationStore.Delete
func (s *PostgresNotificationStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = $1`, id)
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrNotificationNotFound)
}

// FindByID implements store.NotificationStore.FindByID
func (s *PostgresNotificationStore) FindByID(ctx context.Context, id uuid.UUID) (*domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`
	n, err := scanNotification(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotificationNotFound
		}
		return nil, MapError(err)
	}
	return n, nil
}

// FindByTaskID implements store.NotificationStore.FindByTaskID
func (s *PostgresNotificationStore) FindByTaskID(
	ctx context.Context,
	taskID uuid.UUID,
) ([]*domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE task_id = $1 ORDER BY created_at DESC`
	return s.query(ctx, query, taskID)
}

// FindByStatus implements store.NotificationStore.FindByStatus
func (s *PostgresNotificationStore) FindByStatus(
	ctx context.Context,
	status domain.NotificationStatus,
) ([]*domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE status = $1 ORDER BY created_at DESC`
	return s.query(ctx, query, string(status))
}

func (s *PostgresNotificationStore) query(ctx context.Context, query string, args ...any) ([]*domain.Notification, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query notifications", slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]*domain.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification row: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notification rows: %w", err)
	}
	return out, nil
}

func scanNotification(row rowScanner) (*domain.Notification, error) {
	var (
		n      domain.Notification
		typ    string
		status string
		sentAt sql.NullTime
	)
	if err := row.Scan(&n.ID, &n.TaskID, &typ, &status, &n.Message, &sentAt, &n.CreatedAt); err != nil {
		return nil, err
	}
	n.Type = domain.NotificationType(typ)
	n.Status = domain.NotificationStatus(status)
	n.SentAt = nullTime(sentAt)
	return &n, nil
}
