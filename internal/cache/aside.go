package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"giftpool/internal/middleware"

	"github.com/redis/go-redis/v9"
)

// Aside returns the value cached under key, or calls load and caches what it returns
// for ttl. Load errors are never cached. Redis failures are logged and fall through to
// load, so a broken cache only costs latency.
func Aside[T any](ctx context.Context, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	if client != nil {
		raw, err := client.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var v T
			if err := json.Unmarshal(raw, &v); err == nil {
				return v, nil
			}
			warn(ctx, "cache entry unreadable", key, err)
		case !errors.Is(err, redis.Nil):
			warn(ctx, "cache read failed", key, err)
		}
	}

	v, err := load(ctx)
	if err != nil || client == nil {
		return v, err
	}
	if raw, err := json.Marshal(v); err != nil {
		warn(ctx, "cache encode failed", key, err)
	} else if err := client.Set(ctx, key, raw, ttl).Err(); err != nil {
		warn(ctx, "cache write failed", key, err)
	}
	return v, nil
}

func warn(ctx context.Context, msg, key string, err error) {
	middleware.Logger.WarnContext(ctx, msg, slog.String("key", key), slog.String("error", err.Error()))
}
