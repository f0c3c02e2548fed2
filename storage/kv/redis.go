package kv

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/masomo-portal/core/session"
)

// Redis is a session.Store shared by every instance of the portal.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ session.Store = (*Redis)(nil)

// NewRedis returns a Redis store whose keys expire `ttl` (session.DefaultTTL if <= 0) plus a grace period after their last write.
func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = session.DefaultTTL
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl + evictionGrace}
}

func (r *Redis) redisKey(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + ":" + key
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, r.redisKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", session.ErrKeyNotFound
		}
		return "", errors.Wrap(err, "redis get")
	}
	return val, nil
}

func (r *Redis) Set(ctx context.Context, key, value string) error {
	return errors.Wrap(r.client.Set(ctx, r.redisKey(key), value, r.ttl).Err(), "redis set")
}

func (r *Redis) Remove(ctx context.Context, key string) error {
	return errors.Wrap(r.client.Del(ctx, r.redisKey(key)).Err(), "redis del")
}

// Ping checks the connection to the server.
func (r *Redis) Ping(ctx context.Context) error {
	return errors.Wrap(r.client.Ping(ctx).Err(), "redis ping")
}
