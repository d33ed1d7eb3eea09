package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/phrazzld/reminder-api/internal/platform/logger"
	"github.com/phrazzld/reminder-api/internal/redact"
)

// Guard wraps a Cache so that no cache failure reaches the caller. Errors are
// logged and reported as misses.
type Guard struct {
	cache  Cache
	logger *slog.Logger
}

// NewGuard wraps c. A nil cache behaves like Nop.
func NewGuard(c Cache, log *slog.Logger) *Guard {
	if c == nil {
		c = Nop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Guard{
		cache:  c,
		logger: log.With(slog.String("component", "cache")),
	}
}

// GetJSON decodes the cached value of key into v and reports whether it did.
func (g *Guard) GetJSON(ctx context.Context, key string, v any) bool {
	data, err := g.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			g.log(ctx).Warn("cache get failed",
				slog.String("key", key),
				slog.String("error", redact.Error(err)))
		}
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		g.log(ctx).Warn("discarding undecodable cache entry",
			slog.String("key", key),
			slog.String("error", err.Error()))
		g.Del(ctx, key)
		return false
	}
	return true
}

// SetJSON stores v under key for ttl.
func (g *Guard) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		g.log(ctx).Warn("cache encode failed",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return
	}
	if err := g.cache.Set(ctx, key, data, ttl); err != nil {
		g.log(ctx).Warn("cache set failed",
			slog.String("key", key),
			slog.String("error", redact.Error(err)))
	}
}

// Del invalidates keys.
func (g *Guard) Del(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := g.cache.Del(ctx, keys...); err != nil {
		g.log(ctx).Warn("cache invalidation failed",
			slog.Any("keys", keys),
			slog.String("error", redact.Error(err)))
	}
}

func (g *Guard) log(ctx context.Context) *slog.Logger {
	return logger.FromContextOrDefault(ctx, g.logger)
}
