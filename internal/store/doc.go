// Package store defines the persistence contracts of the reminder service.
//
// TaskStore exposes a conditional update primitive: a patch is applied only
// to rows matching a predicate, and the number of affected rows is returned.
// Claims and status transitions are built on it, so correctness under
// concurrent workers relies on the atomicity of a single conditional write
// rather than on any in-process locking. Implementations live in
// internal/platform/postgres and internal/store/memory.
package store
