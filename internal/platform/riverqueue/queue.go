// Package riverqueue implements scheduler.Backend on River, a Postgres-backed
// job queue. Jobs survive restarts and are shared by every process connected
// to the same database.
package riverqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/phrazzld/reminder-api/internal/scheduler"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/riverqueue/river/rivertype"
)

// JobKind is the River kind shared by every scheduled job. The logical job
// name travels in the args.
const JobKind = "scheduled_job"

// Args are the River job args of a scheduled job.
type Args struct {
	JobKey  string          `json:"job_key"`
	JobName string          `json:"job_name"`
	Payload json.RawMessage `json:"payload"`
}

// Kind implements river.JobArgs.
func (Args) Kind() string { return JobKind }

// Config configures a Queue.
type Config struct {
	// Queues lists the River queues this process works.
	Queues []string

	// Workers is the concurrency of each queue.
	Workers int

	// MaxAttempts is used for jobs registered without JobOptions.Attempts.
	MaxAttempts int
}

// pendingStates are the River job states that have not started running.
const pendingStates = `('available', 'scheduled', 'retryable', 'pending')`

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queue is a scheduler.Backend backed by a River client.
type Queue struct {
	pool        *pgxpool.Pool
	client      *river.Client[pgx.Tx]
	maxAttempts int
	logger      *slog.Logger

	mu       sync.RWMutex
	handlers map[string]scheduler.Handler
}

var _ scheduler.Backend = (*Queue)(nil)

// New creates a Queue over pool. Handlers may be registered until Start.
func New(pool *pgxpool.Pool, cfg Config, logger *slog.Logger) (*Queue, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Queues) == 0 {
		cfg.Queues = []string{scheduler.ReminderQueue}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = scheduler.DefaultMaxAttempts
	}

	q := &Queue{
		pool:        pool,
		maxAttempts: cfg.MaxAttempts,
		logger:      logger.With(slog.String("component", "river_scheduler")),
		handlers:    make(map[string]scheduler.Handler),
	}

	workers := river.NewWorkers()
	if err := river.AddWorkerSafely(workers, &dispatchWorker{queue: q}); err != nil {
		return nil, fmt.Errorf("failed to register river worker: %w", err)
	}

	queues := make(map[string]river.QueueConfig, len(cfg.Queues))
	for _, name := range cfg.Queues {
		queues[name] = river.QueueConfig{MaxWorkers: cfg.Workers}
	}

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues:      queues,
		Workers:     workers,
		MaxAttempts: cfg.MaxAttempts,
		Logger:      q.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create river client: %w", err)
	}
	q.client = client
	return q, nil
}

// Migrate applies River's schema migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), &rivermigrate.Config{Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to create river migrator: %w", err)
	}
	res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return fmt.Errorf("failed to migrate river schema: %w", err)
	}
	if logger != nil {
		logger.Info("river schema migrated", slog.Int("versions_applied", len(res.Versions)))
	}
	return nil
}

// Register implements scheduler.Backend.Register
func (q *Queue) Register(queueName, jobName string, handler scheduler.Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[queueName+"/"+jobName] = handler
}

func (q *Queue) handler(queueName, jobName string) scheduler.Handler {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.handlers[queueName+"/"+jobName]
}

// Start implements scheduler.Backend.Start
func (q *Queue) Start(ctx context.Context) error {
	if err := q.client.Start(ctx); err != nil {
		return fmt.Errorf("failed to start river client: %w", err)
	}
	q.logger.Info("river client started")
	return nil
}

// Stop implements scheduler.Backend.Stop, waiting for running jobs.
func (q *Queue) Stop(ctx context.Context) error {
	if err := q.client.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop river client: %w", err)
	}
	q.logger.Info("river client stopped")
	return nil
}

// ScheduleJob implements scheduler.Queue.ScheduleJob. Pending jobs with
// the same key are cancelled in the same transaction as the insert.
func (q *Queue) ScheduleJob(
	ctx context.Context,
	queueName, jobName string,
	payload any,
	opts scheduler.JobOptions,
) error {
	if queueName == "" {
		return scheduler.ErrEmptyQueueName
	}
	data, err := scheduler.EncodePayload(payload)
	if err != nil {
		return err
	}
	jobID := scheduler.ResolveJobID(opts)

	insertOpts := &river.InsertOpts{
		Queue:       queueName,
		MaxAttempts: opts.Attempts,
	}
	if insertOpts.MaxAttempts <= 0 {
		insertOpts.MaxAttempts = q.maxAttempts
	}
	if opts.Delay > 0 {
		insertOpts.ScheduledAt = time.Now().Add(opts.Delay)
	}

	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := q.cancelPending(ctx, tx, queueName, jobID); err != nil {
		return err
	}

	res, err := q.client.InsertTx(ctx, tx, Args{JobKey: jobID, JobName: jobName, Payload: data}, insertOpts)
	if err != nil {
		return fmt.Errorf("failed to insert river job: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	q.logger.Debug("job scheduled",
		slog.String("queue", queueName),
		slog.String("job_name", jobName),
		slog.String("job_id", jobID),
		slog.Int64("river_job_id", res.Job.ID),
		slog.Duration("delay", opts.Delay))
	return nil
}

// CancelJob implements scheduler.Queue.CancelJob
func (q *Queue) CancelJob(ctx context.Context, queueName, jobID string) error {
	ids, err := pendingJobIDs(ctx, q.pool, queueName, jobID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := q.client.JobCancel(ctx, id); err != nil && !errors.Is(err, rivertype.ErrNotFound) {
			return fmt.Errorf("failed to cancel river job %d: %w", id, err)
		}
	}
	return nil
}

// GetJob implements scheduler.Queue.GetJob
func (q *Queue) GetJob(ctx context.Context, queueName, jobID string) (*scheduler.Job, error) {
	query := `
		SELECT args, scheduled_at, attempt, max_attempts
		FROM river_job
		WHERE kind = $1 AND queue = $2 AND args->>'job_key' = $3 AND state IN ` + pendingStates + `
		ORDER BY id DESC
		LIMIT 1
	`
	var (
		encoded     []byte
		scheduledAt time.Time
		attempt     int
		maxAttempts int
	)
	err := q.pool.QueryRow(ctx, query, JobKind, queueName, jobID).Scan(&encoded, &scheduledAt, &attempt, &maxAttempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up river job: %w", err)
	}

	var args Args
	if err := json.Unmarshal(encoded, &args); err != nil {
		return nil, fmt.Errorf("failed to decode river job args: %w", err)
	}
	return &scheduler.Job{
		ID:          args.JobKey,
		Queue:       queueName,
		Name:        args.JobName,
		Payload:     args.Payload,
		RunAt:       scheduledAt.UTC(),
		Attempt:     attempt,
		MaxAttempts: maxAttempts,
	}, nil
}

// UpdateJob implements scheduler.Queue.UpdateJob
func (q *Queue) UpdateJob(
	ctx context.Context,
	queueName, jobID string,
	payload any,
	delay time.Duration,
) error {
	job, err := q.GetJob(ctx, queueName, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("%w: %s/%s", scheduler.ErrJobNotFound, queueName, jobID)
	}
	return q.ScheduleJob(ctx, queueName, job.Name, payload, scheduler.JobOptions{
		Delay:    delay,
		JobID:    jobID,
		Attempts: job.MaxAttempts,
	})
}

func (q *Queue) cancelPending(ctx context.Context, tx pgx.Tx, queueName, jobID string) error {
	ids, err := pendingJobIDs(ctx, tx, queueName, jobID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := q.client.JobCancelTx(ctx, tx, id); err != nil && !errors.Is(err, rivertype.ErrNotFound) {
			return fmt.Errorf("failed to cancel river job %d: %w", id, err)
		}
	}
	return nil
}

func pendingJobIDs(ctx context.Context, db querier, queueName, jobID string) ([]int64, error) {
	query := `
		SELECT id FROM river_job
		WHERE kind = $1 AND queue = $2 AND args->>'job_key' = $3 AND state IN ` + pendingStates
	rows, err := db.Query(ctx, query, JobKind, queueName, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up river jobs: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to read river job ids: %w", err)
	}
	return ids, nil
}
