package scheduler

import (
	"context"
	"log/slog"
	"sync"
)

// WorkerPool manages worker goroutines that run jobs read from a channel.
type WorkerPool struct {
	// jobs provides the delivered jobs to process
	jobs <-chan *Job

	// workerCount is the number of concurrent workers to start
	workerCount int

	// wg tracks active worker goroutines for clean shutdown
	wg sync.WaitGroup

	// ctx is used for cancellation and shutdown signaling
	ctx    context.Context
	cancel context.CancelFunc

	logger *slog.Logger

	// process runs a single job
	process func(ctx context.Context, job *Job)
}

// WorkerPoolConfig holds configuration options for the worker pool
type WorkerPoolConfig struct {
	// WorkerCount determines how many concurrent worker goroutines to start
	// If zero or negative, defaults to 1
	WorkerCount int
}

// NewWorkerPool creates a new worker pool reading from jobs.
func NewWorkerPool(
	jobs <-chan *Job,
	config WorkerPoolConfig,
	process func(ctx context.Context, job *Job),
	logger *slog.Logger,
) *WorkerPool {
	workerCount := config.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
		logger.Warn("invalid worker count specified, using default",
			slog.Int("specified_count", config.WorkerCount),
			slog.Int("default_count", 1))
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		jobs:        jobs,
		workerCount: workerCount,
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger,
		process:     process,
	}
}

// Start launches the worker goroutines.
func (p *WorkerPool) Start() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info("worker pool started", slog.Int("worker_count", p.workerCount))
}

// Stop signals the workers to exit and waits for running jobs to finish.
func (p *WorkerPool) Stop() {
	p.cancel()
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("starting worker", slog.Int("worker_id", id))

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug("stopping worker", slog.Int("worker_id", id))
			return

		case job, ok := <-p.jobs:
			if !ok {
				p.logger.Debug("job channel closed, stopping worker", slog.Int("worker_id", id))
				return
			}
			p.process(context.Background(), job)
		}
	}
}
