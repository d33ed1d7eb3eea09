// Package cache defines the read cache used by the service layer.
//
// The cache only ever holds time-bounded copies of store data. Callers go
// through Guard, which turns every backend failure into a logged miss so that
// a broken cache degrades reads to the store instead of failing them.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is the lifetime of cached task reads.
const DefaultTTL = time.Hour

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Cache is a byte-oriented key/value cache with per-entry lifetimes.
type Cache interface {
	// Get returns the value stored under key, or ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key for ttl.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Del removes keys. Missing keys are ignored.
	Del(ctx context.Context, keys ...string) error
}

// TaskKey is the cache key of a single task.
func TaskKey(id uuid.UUID) string {
	return "tasks." + id.String()
}

// UserTasksKey is the cache key of a user's task list.
func UserTasksKey(userID uuid.UUID) string {
	return "users." + userID.String() + ".tasks"
}

// Nop is a Cache that stores nothing. It backs the "none" driver.
type Nop struct{}

var _ Cache = Nop{}

// Get implements Cache.Get
func (Nop) Get(context.Context, string) ([]byte, error) { return nil, ErrMiss }

// Set implements Cache.Set
func (Nop) Set(context.Context, string, []byte, time.Duration) error { return nil }

// Del implements Cache.Del
func (Nop) Del(context.Context, ...string) error { return nil }
