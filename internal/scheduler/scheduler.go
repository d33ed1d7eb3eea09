// Package scheduler defines the delayed-job queue used to fire task
// reminders, together with an in-process implementation.
//
// A queue delivers each registered job at least once after its delay has
// elapsed. Several consumers may compete for the same queue, and a job may be
// delivered more than once, so handlers must be idempotent.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Reminder queue and job names.
const (
	ReminderQueue   = "task-reminder"
	ReminderJobName = "task-reminder"
)

// DefaultMaxAttempts is the number of times a failing job is delivered
// before the queue gives up on it.
const DefaultMaxAttempts = 5

// Common scheduler errors
var (
	// ErrJobNotFound is returned by UpdateJob when no job is registered
	// under the given ID.
	ErrJobNotFound = errors.New("job not found")

	// ErrQueueStopped is returned when scheduling on a stopped queue.
	ErrQueueStopped = errors.New("scheduler queue is stopped")

	// ErrEmptyQueueName is returned when a queue name is missing.
	ErrEmptyQueueName = errors.New("queue name cannot be empty")
)

// JobOptions controls how a job is registered.
type JobOptions struct {
	// Delay before the job becomes due. Zero or negative means now.
	Delay time.Duration

	// JobID identifies the job within its queue. Registering a job under
	// an ID that is already pending replaces the earlier registration.
	// A random ID is generated when empty.
	JobID string

	// Attempts bounds deliveries of a failing job. Zero uses the queue default.
	Attempts int
}

// Job is a registered unit of delayed work.
type Job struct {
	ID      string          `json:"id"`
	Queue   string          `json:"queue"`
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
	RunAt   time.Time       `json:"runAt"`

	// Attempt is the 1-based delivery number, set when the job is handed
	// to a handler.
	Attempt     int `json:"attempt"`
	MaxAttempts int `json:"maxAttempts"`
}

// Decode unmarshals the job payload into v.
func (j *Job) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("failed to decode payload of job %s: %w", j.ID, err)
	}
	return nil
}

// Handler processes a delivered job. A returned error makes the queue
// deliver the job again until its attempts are used up.
type Handler func(ctx context.Context, job *Job) error

// Queue is the producer side of the delayed-job queue.
type Queue interface {
	// ScheduleJob registers a job to run after opts.Delay.
	ScheduleJob(ctx context.Context, queueName, jobName string, payload any, opts JobOptions) error

	// CancelJob removes a pending job. A missing job is not an error.
	CancelJob(ctx context.Context, queueName, jobID string) error

	// GetJob returns the pending job or nil when there is none.
	GetJob(ctx context.Context, queueName, jobID string) (*Job, error)

	// UpdateJob replaces the payload and delay of a pending job.
	// Returns ErrJobNotFound when there is no pending job.
	UpdateJob(ctx context.Context, queueName, jobID string, payload any, delay time.Duration) error
}

// Backend is a Queue that also runs handlers for the jobs it delivers.
// Handlers must be registered before Start.
type Backend interface {
	Queue
	Register(queueName, jobName string, handler Handler)
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// ReminderJobID returns the job ID of a task's reminder.
func ReminderJobID(taskID uuid.UUID) string {
	return "task-reminder-" + taskID.String()
}

// EncodePayload marshals a job payload.
func EncodePayload(payload any) (json.RawMessage, error) {
	if raw, ok := payload.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job payload: %w", err)
	}
	return data, nil
}

// ResolveJobID returns the job ID from opts or a fresh random one.
func ResolveJobID(opts JobOptions) string {
	if opts.JobID != "" {
		return opts.JobID
	}
	return uuid.New().String()
}

func handlerKey(queueName, jobName string) string {
	return queueName + "/" + jobName
}
