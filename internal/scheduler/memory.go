package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// MemoryQueueConfig configures a MemoryQueue.
type MemoryQueueConfig struct {
	// Workers is the number of goroutines running handlers.
	Workers int

	// BufferSize bounds the number of due jobs waiting for a worker.
	BufferSize int

	// MaxAttempts is used for jobs registered without JobOptions.Attempts.
	MaxAttempts int

	// RetryBackoff is multiplied by the attempt number to delay a retry.
	RetryBackoff time.Duration
}

// DefaultMemoryQueueConfig returns a MemoryQueueConfig with reasonable defaults
func DefaultMemoryQueueConfig() MemoryQueueConfig {
	return MemoryQueueConfig{
		Workers:      2,
		BufferSize:   100,
		MaxAttempts:  DefaultMaxAttempts,
		RetryBackoff: time.Second,
	}
}

type pendingJob struct {
	job   Job
	timer *time.Timer
}

// MemoryQueue is an in-process Backend. Each pending job holds a timer that
// moves it onto a bounded channel when due, where a worker pool picks it up.
// Pending jobs are lost when the process exits.
type MemoryQueue struct {
	mu       sync.Mutex
	pending  map[string]*pendingJob
	handlers map[string]Handler
	stopped  bool

	ready  chan *Job
	done   chan struct{}
	pool   *WorkerPool
	config MemoryQueueConfig
	logger *slog.Logger
}

var _ Backend = (*MemoryQueue)(nil)

// NewMemoryQueue creates a MemoryQueue. Call Start to begin running handlers.
func NewMemoryQueue(config MemoryQueueConfig, logger *slog.Logger) *MemoryQueue {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultMemoryQueueConfig()
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.BufferSize <= 0 {
		config.BufferSize = defaults.BufferSize
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = defaults.RetryBackoff
	}

	q := &MemoryQueue{
		pending:  make(map[string]*pendingJob),
		handlers: make(map[string]Handler),
		ready:    make(chan *Job, config.BufferSize),
		done:     make(chan struct{}),
		config:   config,
		logger:   logger.With(slog.String("component", "memory_scheduler")),
	}
	q.pool = NewWorkerPool(q.ready, WorkerPoolConfig{WorkerCount: config.Workers}, q.process, q.logger)
	return q
}

// Register implements Backend.Register
func (q *MemoryQueue) Register(queueName, jobName string, handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[handlerKey(queueName, jobName)] = handler
}

// Start implements Backend.Start
func (q *MemoryQueue) Start(ctx context.Context) error {
	q.pool.Start()
	return nil
}

// Stop implements Backend.Stop. Pending jobs are discarded.
func (q *MemoryQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return nil
	}
	q.stopped = true
	for key, pj := range q.pending {
		pj.timer.Stop()
		delete(q.pending, key)
	}
	close(q.done)
	q.mu.Unlock()

	q.pool.Stop()
	return nil
}

// ScheduleJob implements Queue.ScheduleJob
func (q *MemoryQueue) ScheduleJob(
	ctx context.Context,
	queueName, jobName string,
	payload any,
	opts JobOptions,
) error {
	if queueName == "" {
		return ErrEmptyQueueName
	}
	data, err := EncodePayload(payload)
	if err != nil {
		return err
	}

	maxAttempts := opts.Attempts
	if maxAttempts <= 0 {
		maxAttempts = q.config.MaxAttempts
	}

	job := Job{
		ID:          ResolveJobID(opts),
		Queue:       queueName,
		Name:        jobName,
		Payload:     data,
		MaxAttempts: maxAttempts,
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return ErrQueueStopped
	}
	q.armLocked(job, opts.Delay)

	q.logger.Debug("job scheduled",
		slog.String("queue", queueName),
		slog.String("job_name", jobName),
		slog.String("job_id", job.ID),
		slog.Duration("delay", opts.Delay))
	return nil
}

// CancelJob implements Queue.CancelJob
func (q *MemoryQueue) CancelJob(ctx context.Context, queueName, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := handlerKey(queueName, jobID)
	if pj, ok := q.pending[key]; ok {
		pj.timer.Stop()
		delete(q.pending, key)
		q.logger.Debug("job cancelled", slog.String("queue", queueName), slog.String("job_id", jobID))
	}
	return nil
}

// GetJob implements Queue.GetJob
func (q *MemoryQueue) GetJob(ctx context.Context, queueName, jobID string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	pj, ok := q.pending[handlerKey(queueName, jobID)]
	if !ok {
		return nil, nil
	}
	job := pj.job
	return &job, nil
}

// UpdateJob implements Queue.UpdateJob
func (q *MemoryQueue) UpdateJob(
	ctx context.Context,
	queueName, jobID string,
	payload any,
	delay time.Duration,
) error {
	data, err := EncodePayload(payload)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	pj, ok := q.pending[handlerKey(queueName, jobID)]
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrJobNotFound, queueName, jobID)
	}
	job := pj.job
	job.Payload = data
	q.armLocked(job, delay)
	return nil
}

// Len returns the number of pending jobs.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// armLocked registers job to fire after delay, replacing any pending job
// with the same key. The caller must hold q.mu.
func (q *MemoryQueue) armLocked(job Job, delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	key := handlerKey(job.Queue, job.ID)
	if prev, ok := q.pending[key]; ok {
		prev.timer.Stop()
	}

	job.RunAt = time.Now().UTC().Add(delay)
	pj := &pendingJob{job: job}
	q.pending[key] = pj
	pj.timer = time.AfterFunc(delay, func() { q.fire(key, pj) })
}

// fire hands a due job to the worker pool unless it was cancelled or
// replaced in the meantime.
func (q *MemoryQueue) fire(key string, pj *pendingJob) {
	q.mu.Lock()
	if cur, ok := q.pending[key]; !ok || cur != pj {
		q.mu.Unlock()
		return
	}
	delete(q.pending, key)
	q.mu.Unlock()

	job := pj.job
	job.Attempt++

	select {
	case q.ready <- &job:
	case <-q.done:
	}
}

func (q *MemoryQueue) process(ctx context.Context, job *Job) {
	log := q.logger.With(
		slog.String("queue", job.Queue),
		slog.String("job_name", job.Name),
		slog.String("job_id", job.ID),
		slog.Int("attempt", job.Attempt),
	)

	q.mu.Lock()
	handler, ok := q.handlers[handlerKey(job.Queue, job.Name)]
	q.mu.Unlock()
	if !ok {
		log.Warn("no handler registered for job")
		return
	}

	err := runHandler(ctx, handler, job)
	if err == nil {
		log.Debug("job done")
		return
	}

	if job.Attempt >= job.MaxAttempts {
		log.Error("job failed, attempts exhausted", slog.String("error", err.Error()))
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	// A registration made while the job was running takes precedence.
	if _, replaced := q.pending[handlerKey(job.Queue, job.ID)]; replaced || q.stopped {
		return
	}
	backoff := q.config.RetryBackoff * time.Duration(job.Attempt)
	q.armLocked(*job, backoff)
	log.Warn("job failed, will retry",
		slog.String("error", err.Error()),
		slog.Duration("backoff", backoff))
}

// runHandler invokes handler, converting a panic into an error.
func runHandler(ctx context.Context, handler Handler, job *Job) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job handler panicked: %v", p)
		}
	}()
	return handler(ctx, job)
}
