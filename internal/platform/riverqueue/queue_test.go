package riverqueue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/phrazzld/reminder-api/internal/scheduler"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestArgs_Kind(t *testing.T) {
	assert.Equal(t, "scheduled_job", Args{}.Kind())

	encoded, err := json.Marshal(Args{JobKey: "task-reminder-1", JobName: "task-reminder", Payload: json.RawMessage(`{"taskId":"1"}`)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"job_key":"task-reminder-1","job_name":"task-reminder","payload":{"taskId":"1"}}`, string(encoded))
}

func TestDispatchWorker_Work(t *testing.T) {
	q := &Queue{logger: testLogger(), handlers: make(map[string]scheduler.Handler)}
	w := &dispatchWorker{queue: q}
	scheduledAt := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

	job := &river.Job[Args]{
		JobRow: &rivertype.JobRow{
			ID:          42,
			Queue:       scheduler.ReminderQueue,
			Attempt:     2,
			MaxAttempts: 5,
			ScheduledAt: scheduledAt,
		},
		Args: Args{JobKey: "task-reminder-abc", JobName: scheduler.ReminderJobName, Payload: json.RawMessage(`{}`)},
	}

	t.Run("missing handler cancels the job", func(t *testing.T) {
		err := w.Work(context.Background(), job)
		assert.Error(t, err)
	})

	t.Run("dispatches by queue and name", func(t *testing.T) {
		var got *scheduler.Job
		q.Register(scheduler.ReminderQueue, scheduler.ReminderJobName, func(ctx context.Context, j *scheduler.Job) error {
			got = j
			return nil
		})

		require.NoError(t, w.Work(context.Background(), job))
		require.NotNil(t, got)
		assert.Equal(t, "task-reminder-abc", got.ID)
		assert.Equal(t, 2, got.Attempt)
		assert.Equal(t, 5, got.MaxAttempts)
		assert.Equal(t, scheduledAt, got.RunAt)
	})

	t.Run("handler errors surface for retry", func(t *testing.T) {
		boom := errors.New("store unavailable")
		q.Register(scheduler.ReminderQueue, scheduler.ReminderJobName, func(ctx context.Context, j *scheduler.Job) error {
			return boom
		})
		assert.ErrorIs(t, w.Work(context.Background(), job), boom)
	})
}

func TestQueue_Integration(t *testing.T) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("Skipping integration test - DATABASE_URL environment variable required")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool, testLogger()))

	q, err := New(pool, Config{Queues: []string{scheduler.ReminderQueue}, Workers: 1}, testLogger())
	require.NoError(t, err)

	jobID := "task-reminder-" + time.Now().Format("150405.000000000")
	t.Cleanup(func() { _ = q.CancelJob(context.Background(), scheduler.ReminderQueue, jobID) })

	require.NoError(t, q.ScheduleJob(ctx, scheduler.ReminderQueue, scheduler.ReminderJobName,
		map[string]string{"taskId": "first"}, scheduler.JobOptions{Delay: time.Hour, JobID: jobID}))
	require.NoError(t, q.ScheduleJob(ctx, scheduler.ReminderQueue, scheduler.ReminderJobName,
		map[string]string{"taskId": "second"}, scheduler.JobOptions{Delay: time.Hour, JobID: jobID}))

	ids, err := pendingJobIDs(ctx, pool, scheduler.ReminderQueue, jobID)
	require.NoError(t, err)
	assert.Len(t, ids, 1, "rescheduling replaces the pending job")

	job, err := q.GetJob(ctx, scheduler.ReminderQueue, jobID)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.JSONEq(t, `{"taskId":"second"}`, string(job.Payload))

	require.NoError(t, q.UpdateJob(ctx, scheduler.ReminderQueue, jobID, map[string]string{"taskId": "third"}, 2*time.Hour))
	job, err = q.GetJob(ctx, scheduler.ReminderQueue, jobID)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.JSONEq(t, `{"taskId":"third"}`, string(job.Payload))

	require.NoError(t, q.CancelJob(ctx, scheduler.ReminderQueue, jobID))
	require.NoError(t, q.CancelJob(ctx, scheduler.ReminderQueue, jobID))
	job, err = q.GetJob(ctx, scheduler.ReminderQueue, jobID)
	require.NoError(t, err)
	assert.Nil(t, job)

	err = q.UpdateJob(ctx, scheduler.ReminderQueue, jobID, nil, time.Minute)
	assert.ErrorIs(t, err, scheduler.ErrJobNotFound)
}
