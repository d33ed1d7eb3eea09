package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/phrazzld/reminder-api/internal/events"
	"github.com/phrazzld/reminder-api/internal/scheduler"
	"github.com/phrazzld/reminder-api/internal/store/memory"
	"github.com/phrazzld/reminder-api/internal/task"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type scheduledCall struct {
	queue   string
	jobName string
	payload any
	opts    scheduler.JobOptions
}

// MockQueue records registrations. ScheduleJobFn and CancelJobFn, when set,
// decide the result of the matching call.
type MockQueue struct {
	mu            sync.Mutex
	scheduled     []scheduledCall
	cancelled     []string
	ScheduleJobFn func(opts scheduler.JobOptions) error
	CancelJobFn   func(jobID string) error
}

func (m *MockQueue) ScheduleJob(_ context.Context, queueName, jobName string, payload any, opts scheduler.JobOptions) error {
	if m.ScheduleJobFn != nil {
		if err := m.ScheduleJobFn(opts); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scheduled = append(m.scheduled, scheduledCall{queue: queueName, jobName: jobName, payload: payload, opts: opts})
	return nil
}

func (m *MockQueue) CancelJob(_ context.Context, _ string, jobID string) error {
	if m.CancelJobFn != nil {
		if err := m.CancelJobFn(jobID); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = append(m.cancelled, jobID)
	return nil
}

func (m *MockQueue) GetJob(context.Context, string, string) (*scheduler.Job, error) {
	return nil, nil
}

func (m *MockQueue) UpdateJob(context.Context, string, string, any, time.Duration) error {
	return scheduler.ErrJobNotFound
}

func (m *MockQueue) Scheduled() []scheduledCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]scheduledCall(nil), m.scheduled...)
}

func (m *MockQueue) Cancelled() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.cancelled...)
}

type publishedEvent struct {
	topic   string
	payload any
}

// MockBus records publishes and subscriptions. PublishFn, when set, decides
// the result of Publish.
type MockBus struct {
	mu          sync.Mutex
	published   []publishedEvent
	subscribers map[string]events.Handler
	PublishFn   func(topic string) error
}

func (m *MockBus) Publish(_ context.Context, topic string, payload any) error {
	if m.PublishFn != nil {
		if err := m.PublishFn(topic); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, publishedEvent{topic: topic, payload: payload})
	return nil
}

func (m *MockBus) Subscribe(_ context.Context, topic string, handler events.Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribers == nil {
		m.subscribers = make(map[string]events.Handler)
	}
	m.subscribers[topic] = handler
	return nil
}

func (m *MockBus) Close() error { return nil }

func (m *MockBus) Topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	topics := make([]string, 0, len(m.published))
	for _, p := range m.published {
		topics = append(topics, p.topic)
	}
	return topics
}

func (m *MockBus) Published() []publishedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]publishedEvent(nil), m.published...)
}

// failingCache fails every operation.
type failingCache struct{}

var errCacheDown = errors.New("cache unavailable")

func (failingCache) Get(context.Context, string) ([]byte, error) { return nil, errCacheDown }

func (failingCache) Set(context.Context, string, []byte, time.Duration) error { return errCacheDown }

func (failingCache) Del(context.Context, ...string) error { return errCacheDown }

type fixture struct {
	store *memory.Store
	repo  *task.Repository
	queue *MockQueue
	bus   *MockBus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := memory.New()
	return &fixture{
		store: s,
		repo:  task.NewRepository(s.Tasks(), task.RepositoryConfig{}, discardLogger()),
		queue: &MockQueue{},
		bus:   &MockBus{},
	}
}

func (fx *fixture) notificationFacade(t *testing.T) *NotificationFacade {
	t.Helper()
	svc, err := NewNotificationService(fx.store.Notifications(), discardLogger())
	require.NoError(t, err)
	f, err := NewNotificationFacade(svc, fx.bus, discardLogger())
	require.NoError(t, err)
	return f
}
