package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/reminder-api/internal/domain"
	"github.com/phrazzld/reminder-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTask(t *testing.T, s store.TaskStore, status domain.TaskStatus) *domain.Task {
	t.Helper()
	task, err := domain.NewTask(uuid.New(), "pay rent", time.Now().Add(time.Hour), 3)
	require.NoError(t, err)
	task.Status = status
	require.NoError(t, s.Insert(context.Background(), task))
	return task
}

func statusPtr(s domain.TaskStatus) *domain.TaskStatus { return &s }

func TestTaskStore_InsertAndFind(t *testing.T) {
	ctx := context.Background()
	s := New().Tasks()

	task := newTask(t, s, domain.TaskStatusCreated)

	got, err := s.FindByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.Title, got.Title)

	got.Title = "mutated"
	again, err := s.FindByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "pay rent", again.Title, "returned tasks must be copies")

	assert.ErrorIs(t, s.Insert(ctx, task), store.ErrDuplicate)

	_, err = s.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}

func TestTaskStore_ConditionalUpdate(t *testing.T) {
	ctx := context.Background()
	s := New().Tasks()
	task := newTask(t, s, domain.TaskStatusScheduled)

	t.Run("predicate mismatch touches nothing", func(t *testing.T) {
		n, err := s.ConditionalUpdate(ctx,
			store.TaskPredicate{ID: task.ID, StatusIn: []domain.TaskStatus{domain.TaskStatusExecuting}},
			store.TaskPatch{Status: statusPtr(domain.TaskStatusExecuted)})
		require.NoError(t, err)
		assert.Zero(t, n)

		got, _ := s.FindByID(ctx, task.ID)
		assert.Equal(t, domain.TaskStatusScheduled, got.Status)
	})

	t.Run("stamps timestamp once", func(t *testing.T) {
		first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		token := uuid.New()
		n, err := s.ConditionalUpdate(ctx,
			store.TaskPredicate{ID: task.ID, StatusIn: []domain.TaskStatus{domain.TaskStatusScheduled}, NotCancelled: true},
			store.TaskPatch{Status: statusPtr(domain.TaskStatusExecuting), IncrementAttempts: true, LockToken: &token, Now: first})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		// retry back to SCHEDULED then claim again: executing_at keeps the first value
		_, err = s.ConditionalUpdate(ctx, store.TaskPredicate{ID: task.ID},
			store.TaskPatch{Status: statusPtr(domain.TaskStatusScheduled), ClearLock: true, Now: first.Add(time.Minute)})
		require.NoError(t, err)
		_, err = s.ConditionalUpdate(ctx, store.TaskPredicate{ID: task.ID},
			store.TaskPatch{Status: statusPtr(domain.TaskStatusExecuting), IncrementAttempts: true, Now: first.Add(2 * time.Minute)})
		require.NoError(t, err)

		got, err := s.FindByID(ctx, task.ID)
		require.NoError(t, err)
		require.NotNil(t, got.ExecutingAt)
		assert.Equal(t, first, *got.ExecutingAt)
		assert.Equal(t, 2, got.Attempts)
		assert.Nil(t, got.LockToken)
	})

	t.Run("lock token predicate", func(t *testing.T) {
		other := uuid.New()
		n, err := s.ConditionalUpdate(ctx, store.TaskPredicate{ID: task.ID, LockToken: &other},
			store.TaskPatch{Status: statusPtr(domain.TaskStatusFailed)})
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("unknown id", func(t *testing.T) {
		n, err := s.ConditionalUpdate(ctx, store.TaskPredicate{ID: uuid.New()}, store.TaskPatch{})
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestTaskStore_ConcurrentClaim(t *testing.T) {
	ctx := context.Background()
	s := New().Tasks()
	task := newTask(t, s, domain.TaskStatusScheduled)

	const workers = 32
	var wins atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token := uuid.New()
			n, err := s.ConditionalUpdate(ctx,
				store.TaskPredicate{ID: task.ID, StatusIn: []domain.TaskStatus{domain.TaskStatusScheduled}, NotCancelled: true},
				store.TaskPatch{Status: statusPtr(domain.TaskStatusExecuting), IncrementAttempts: true, LockToken: &token})
			assert.NoError(t, err)
			wins.Add(n)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins.Load())
	got, err := s.FindByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempts)
}

func TestTaskStore_Queries(t *testing.T) {
	ctx := context.Background()
	s := New().Tasks()
	userID := uuid.New()

	late, _ := domain.NewTask(userID, "late", time.Now().Add(2*time.Hour), 3)
	early, _ := domain.NewTask(userID, "early", time.Now().Add(time.Hour), 3)
	require.NoError(t, s.Insert(ctx, late))
	require.NoError(t, s.Insert(ctx, early))
	newTask(t, s, domain.TaskStatusScheduled)

	tasks, err := s.FindByUserID(ctx, userID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "early", tasks[0].Title)
	assert.Equal(t, "late", tasks[1].Title)

	none, err := s.FindByUserID(ctx, uuid.New())
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	created, err := s.FindByStatus(ctx, domain.TaskStatusCreated, 1)
	require.NoError(t, err)
	assert.Len(t, created, 1)
}

func TestTaskStore_FindExpiredLeases(t *testing.T) {
	ctx := context.Background()
	s := New().Tasks()
	stale := newTask(t, s, domain.TaskStatusScheduled)
	fresh := newTask(t, s, domain.TaskStatusScheduled)

	now := time.Now().UTC()
	claim := func(id uuid.UUID, at time.Time) {
		token := uuid.New()
		_, err := s.ConditionalUpdate(ctx, store.TaskPredicate{ID: id},
			store.TaskPatch{Status: statusPtr(domain.TaskStatusExecuting), LockToken: &token, Now: at})
		require.NoError(t, err)
	}
	claim(stale.ID, now.Add(-10*time.Minute))
	claim(fresh.ID, now)

	expired, err := s.FindExpiredLeases(ctx, now.Add(-5*time.Minute), 0)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, stale.ID, expired[0].ID)
}

func TestStore_DeleteCascadesNotifications(t *testing.T) {
	ctx := context.Background()
	s := New()
	task := newTask(t, s.Tasks(), domain.TaskStatusExecuted)

	n, err := domain.NewTaskReminder(task.ID)
	require.NoError(t, err)
	require.NoError(t, s.Notifications().Create(ctx, n))

	require.NoError(t, s.Tasks().Delete(ctx, task.ID))

	_, err = s.Notifications().FindByID(ctx, n.ID)
	assert.ErrorIs(t, err, store.ErrNotificationNotFound)
	assert.ErrorIs(t, s.Tasks().Delete(ctx, task.ID), store.ErrTaskNotFound)
}

func TestNotificationStore(t *testing.T) {
	ctx := context.Background()
	s := New()
	task := newTask(t, s.Tasks(), domain.TaskStatusExecuted)
	ns := s.Notifications()

	t.Run("requires existing task", func(t *testing.T) {
		orphan, err := domain.NewTaskReminder(uuid.New())
		require.NoError(t, err)
		assert.ErrorIs(t, ns.Create(ctx, orphan), store.ErrInvalidEntity)
	})

	older, err := domain.NewTaskReminder(task.ID)
	require.NoError(t, err)
	older.CreatedAt = time.Now().Add(-time.Minute)
	newer, err := domain.NewNotification(task.ID, "DIGEST", "weekly digest")
	require.NoError(t, err)
	require.NoError(t, ns.Create(ctx, older))
	require.NoError(t, ns.Create(ctx, newer))

	t.Run("by task newest first", func(t *testing.T) {
		list, err := ns.FindByTaskID(ctx, task.ID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, newer.ID, list[0].ID)
	})

	t.Run("update and by status", func(t *testing.T) {
		older.Status = domain.NotificationStatusSent
		require.NoError(t, ns.Update(ctx, older))

		sent, err := ns.FindByStatus(ctx, domain.NotificationStatusSent)
		require.NoError(t, err)
		require.Len(t, sent, 1)
		assert.Equal(t, older.ID, sent[0].ID)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, ns.Delete(ctx, newer.ID))
		assert.ErrorIs(t, ns.Delete(ctx, newer.ID), store.ErrNotificationNotFound)
	})
}
