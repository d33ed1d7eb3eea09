package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/reminder-api/internal/domain"
)

// NotificationStore defines the persistence contract for notifications.
// List methods return newest first.
type NotificationStore interface {
	Create(ctx context.Context, n *domain.Notification) error
	Update(ctx context.Context, n *domain.Notification) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Notification, error)
	FindByTaskID(ctx context.Context, taskID uuid.UUID) ([]*domain.Notification, error)
	FindByStatus(ctx context.Context, status domain.NotificationStatus) ([]*domain.Notification, error)
}
