package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/phrazzld/reminder-api/internal/domain"
	"github.com/phrazzld/reminder-api/internal/store"
)

type notificationStore Store

var _ store.NotificationStore = (*notificationStore)(nil)

func (s *notificationStore) Create(ctx context.Context, n *domain.Notification) error {
	if err := n.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[n.TaskID]; !ok {
		return fmt.Errorf("%w: task with ID %s not found", store.ErrInvalidEntity, n.TaskID)
	}
	if _, ok := s.notifications[n.ID]; ok {
		return fmt.Errorf("%w: notification %s", store.ErrDuplicate, n.ID)
	}
	s.notifications[n.ID] = cloneNotification(*n)
	return nil
}

func (s *notificationStore) Update(ctx context.Context, n *domain.Notification) error {
	if err := n.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notifications[n.ID]; !ok {
		return store.ErrNotificationNotFound
	}
	s.notifications[n.ID] = cloneNotification(*n)
	return nil
}

func (s *notificationStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notifications[id]; !ok {
		return store.ErrNotificationNotFound
	}
	delete(s.notifications, id)
	return nil
}

func (s *notificationStore) FindByID(ctx context.Context, id uuid.UUID) (*domain.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.notifications[id]
	if !ok {
		return nil, store.ErrNotificationNotFound
	}
	out := cloneNotification(n)
	return &out, nil
}

func (s *notificationStore) FindByTaskID(ctx context.Context, taskID uuid.UUID) ([]*domain.Notification, error) {
	return s.collect(func(n domain.Notification) bool { return n.TaskID == taskID }), nil
}

func (s *notificationStore) FindByStatus(ctx context.Context, status domain.NotificationStatus) ([]*domain.Notification, error) {
	return s.collect(func(n domain.Notification) bool { return n.Status == status }), nil
}

func (s *notificationStore) collect(keep func(domain.Notification) bool) []*domain.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Notification, 0)
	for _, n := range s.notifications {
		if keep(n) {
			c := cloneNotification(n)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func cloneNotification(n domain.Notification) domain.Notification {
	n.SentAt = cloneTime(n.SentAt)
	return n
}
