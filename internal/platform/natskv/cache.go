// Package natskv implements cache.Cache on a NATS JetStream key/value bucket.
//
// JetStream KV expiry is bucket-wide: the bucket is created with the
// configured TTL and the per-call ttl passed to Set is only checked for
// being positive.
package natskv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/phrazzld/reminder-api/internal/cache"
)

// Config holds NATS KV cache configuration.
type Config struct {
	// Conn is the NATS connection to use.
	Conn *nats.Conn

	// Bucket is the KV bucket name.
	Bucket string

	// TTL is the lifetime of every entry in the bucket.
	TTL time.Duration

	// MaxValueSize is the maximum value size in bytes.
	// Default: 1MB
	MaxValueSize int32
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Bucket:       "reminder-cache",
		TTL:          cache.DefaultTTL,
		MaxValueSize: 1024 * 1024,
	}
}

// Cache implements cache.Cache using JetStream KV.
type Cache struct {
	kv     jetstream.KeyValue
	logger *slog.Logger
}

var _ cache.Cache = (*Cache)(nil)

// New creates or updates the bucket and returns a cache backed by it.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Cache, error) {
	if cfg.Conn == nil {
		return nil, fmt.Errorf("nats connection required")
	}
	defaults := DefaultConfig()
	if cfg.Bucket == "" {
		cfg.Bucket = defaults.Bucket
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaults.TTL
	}
	if cfg.MaxValueSize <= 0 {
		cfg.MaxValueSize = defaults.MaxValueSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	js, err := jetstream.New(cfg.Conn)
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:       cfg.Bucket,
		TTL:          cfg.TTL,
		History:      1,
		MaxValueSize: cfg.MaxValueSize,
	})
	if err != nil {
		return nil, fmt.Errorf("create kv bucket: %w", err)
	}

	return &Cache{
		kv:     kv,
		logger: logger.With(slog.String("component", "nats_kv_cache"), slog.String("bucket", cfg.Bucket)),
	}, nil
}

// Get implements cache.Cache.Get
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := c.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, cache.ErrMiss
		}
		return nil, fmt.Errorf("kv get: %w", err)
	}
	return entry.Value(), nil
}

// Set implements cache.Cache.Set
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if _, err := c.kv.Put(ctx, key, value); err != nil {
		return fmt.Errorf("kv put: %w", err)
	}
	return nil
}

// Del implements cache.Cache.Del
func (c *Cache) Del(ctx context.Context, keys ...string) error {
	var errs []error
	for _, key := range keys {
		if err := c.kv.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
			errs = append(errs, fmt.Errorf("kv delete %s: %w", key, err))
		}
	}
	if len(errs) > 0 {
		c.logger.Debug("kv delete failed", slog.Int("failed_keys", len(errs)))
	}
	return errors.Join(errs...)
}
