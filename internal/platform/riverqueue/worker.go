package riverqueue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/reminder-api/internal/scheduler"
	"github.com/riverqueue/river"
)

// dispatchWorker runs the scheduler.Handler registered for a job's queue
// and name.
type dispatchWorker struct {
	river.WorkerDefaults[Args]
	queue *Queue
}

// Work implements river.Worker.
func (w *dispatchWorker) Work(ctx context.Context, job *river.Job[Args]) error {
	handler := w.queue.handler(job.Queue, job.Args.JobName)
	if handler == nil {
		w.queue.logger.Warn("no handler registered for job",
			slog.String("queue", job.Queue),
			slog.String("job_name", job.Args.JobName),
			slog.String("job_id", job.Args.JobKey))
		return river.JobCancel(fmt.Errorf("no handler for %s/%s", job.Queue, job.Args.JobName))
	}

	return handler(ctx, toSchedulerJob(job))
}

func toSchedulerJob(job *river.Job[Args]) *scheduler.Job {
	return &scheduler.Job{
		ID:          job.Args.JobKey,
		Queue:       job.Queue,
		Name:        job.Args.JobName,
		Payload:     job.Args.Payload,
		RunAt:       job.ScheduledAt.UTC(),
		Attempt:     job.Attempt,
		MaxAttempts: job.MaxAttempts,
	}
}
