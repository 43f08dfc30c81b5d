package api

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const headerIdempotencyKey = "Idempotency-Key"

// RedisDeduper stores used idempotency keys in Redis so all instances
// reject a replayed write.
type RedisDeduper struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper using the provided Redis client and TTL.
func NewRedisDeduper(client *redis.Client, prefix string, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisDeduper) key(scope, key string) string {
	return fmt.Sprintf("%s:idem:%s:%s", r.prefix, scope, key)
}

// Add records the key if it does not already exist. It returns true when the
// key was newly added.
func (r *RedisDeduper) Add(ctx context.Context, scope, key string) (bool, error) {
	return r.client.SetNX(ctx, r.key(scope, key), 1, r.ttl).Result()
}

// Remove deletes a previously recorded key so the caller may retry after a failure.
func (r *RedisDeduper) Remove(ctx context.Context, scope, key string) error {
	return r.client.Del(ctx, r.key(scope, key)).Err()
}

// idempotent rejects a request whose Idempotency-Key the same actor already
// used. The key is released again when the request fails.
func idempotent(d Deduper, logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.Request().Header.Get(headerIdempotencyKey)
			if d == nil || key == "" {
				return next(c)
			}
			ctx := c.Request().Context()
			scope := c.Request().Method + ":" + c.Path() + ":" + headerActor(c, "anonymous")
			added, err := d.Add(ctx, scope, key)
			if err != nil {
				// Writes proceed without dedup while Redis is unavailable.
				logger.WithError(err).Warn("idempotency check failed")
				return next(c)
			}
			if !added {
				return errDuplicateRequest
			}
			err = next(c)
			if err != nil || c.Response().Status >= 400 {
				if rerr := d.Remove(context.WithoutCancel(ctx), scope, key); rerr != nil {
					logger.Errorf("dedupe rollback failed, err: %v, key: %s, scope: %s", rerr, key, scope)
				}
			}
			return err
		}
	}
}
