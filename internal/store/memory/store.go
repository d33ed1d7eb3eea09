// Package memory provides in-process implementations of the store contracts.
// A single mutex serialises every write, so each conditional update is atomic
// with respect to every other operation on the store.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/reminder-api/internal/domain"
	"github.com/phrazzld/reminder-api/internal/store"
)

// Store holds tasks and notifications in maps keyed by ID.
type Store struct {
	mu            sync.RWMutex
	tasks         map[uuid.UUID]domain.Task
	notifications map[uuid.UUID]domain.Notification
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		tasks:         make(map[uuid.UUID]domain.Task),
		notifications: make(map[uuid.UUID]domain.Notification),
	}
}

// Tasks returns the store viewed as a store.TaskStore.
func (s *Store) Tasks() store.TaskStore { return (*taskStore)(s) }

// Notifications returns the store viewed as a store.NotificationStore.
func (s *Store) Notifications() store.NotificationStore { return (*notificationStore)(s) }

type taskStore Store

var _ store.TaskStore = (*taskStore)(nil)

func (s *taskStore) Insert(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[task.ID]; ok {
		return fmt.Errorf("%w: task %s", store.ErrDuplicate, task.ID)
	}
	s.tasks[task.ID] = cloneTask(*task)
	return nil
}

func (s *taskStore) ConditionalUpdate(ctx context.Context, pred store.TaskPredicate, patch store.TaskPatch) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[pred.ID]
	if !ok || !matches(t, pred) {
		return 0, nil
	}

	applyPatch(&t, patch)
	s.tasks[t.ID] = t
	return 1, nil
}

func (s *taskStore) FindByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	out := cloneTask(t)
	return &out, nil
}

func (s *taskStore) FindByUserID(ctx context.Context, userID uuid.UUID) ([]*domain.Task, error) {
	return s.collect(func(t domain.Task) bool { return t.UserID == userID }, 0), nil
}

func (s *taskStore) FindByStatus(ctx context.Context, status domain.TaskStatus, limit int) ([]*domain.Task, error) {
	return s.collect(func(t domain.Task) bool { return t.Status == status }, limit), nil
}

func (s *taskStore) FindExpiredLeases(ctx context.Context, lockedBefore time.Time, limit int) ([]*domain.Task, error) {
	return s.collect(func(t domain.Task) bool {
		return t.Status == domain.TaskStatusExecuting && t.LockedAt != nil && t.LockedAt.Before(lockedBefore)
	}, limit), nil
}

func (s *taskStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return store.ErrTaskNotFound
	}
	delete(s.tasks, id)
	for nid, n := range s.notifications {
		if n.TaskID == id {
			delete(s.notifications, nid)
		}
	}
	return nil
}

func (s *taskStore) collect(keep func(domain.Task) bool, limit int) []*domain.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Task, 0)
	for _, t := range s.tasks {
		if keep(t) {
			c := cloneTask(t)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].DueDate.Before(out[j].DueDate)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func matches(t domain.Task, pred store.TaskPredicate) bool {
	if len(pred.StatusIn) > 0 && !slices.Contains(pred.StatusIn, t.Status) {
		return false
	}
	if pred.NotCancelled && t.CancelledAt != nil {
		return false
	}
	if pred.LockToken != nil && (t.LockToken == nil || *t.LockToken != *pred.LockToken) {
		return false
	}
	return true
}

func applyPatch(t *domain.Task, p store.TaskPatch) {
	now := p.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.DueDate != nil {
		t.DueDate = p.DueDate.UTC()
	}
	if p.Status != nil {
		t.Status = *p.Status
		if stamp := store.StampFor(t, *p.Status); stamp != nil && *stamp == nil {
			at := now
			*stamp = &at
		}
	}
	if p.IncrementAttempts {
		t.Attempts++
	}
	if p.ClearLastError {
		t.LastError = nil
	}
	if p.LastError != nil {
		msg := *p.LastError
		t.LastError = &msg
	}
	if p.ClearLock {
		t.LockToken = nil
		t.LockedAt = nil
	}
	if p.LockToken != nil {
		token := *p.LockToken
		at := now
		t.LockToken = &token
		t.LockedAt = &at
	}
	t.UpdatedAt = now
}

// cloneTask copies t so callers never share pointer fields with the map.
func cloneTask(t domain.Task) domain.Task {
	t.ScheduledAt = cloneTime(t.ScheduledAt)
	t.ExecutingAt = cloneTime(t.ExecutingAt)
	t.ExecutedAt = cloneTime(t.ExecutedAt)
	t.CancelledAt = cloneTime(t.CancelledAt)
	t.LockedAt = cloneTime(t.LockedAt)
	if t.LastError != nil {
		msg := *t.LastError
		t.LastError = &msg
	}
	if t.LockToken != nil {
		token := *t.LockToken
		t.LockToken = &token
	}
	return t
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
