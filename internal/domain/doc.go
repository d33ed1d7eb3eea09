// Package domain contains the core business entities of the reminder service:
// user-owned tasks with their lifecycle state machine, and the notifications
// produced when a task's reminder fires. It is independent of any storage,
// queue, or transport.
package domain
