// Package task implements the task state machine and the reminder pipeline.
//
// Repository is the only writer of task status. ReminderWorker is invoked by
// the delayed-job queue when a reminder is due and runs the
// claim-publish-finalize sequence: a conditional update grants exactly one
// delivery the right to publish, so redundant deliveries are absorbed.
// Maintainer runs the background sweeps that release expired claims and
// re-register reminder jobs for scheduled tasks that lost theirs.
package task
