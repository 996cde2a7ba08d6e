package ratelimit

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// RedisStore shares counters across instances. Keys are "<prefix>:<key>".
type RedisStore struct {
	client *goredis.Client
	prefix string
}

func NewRedisStore(client *goredis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "ratelimit"}
}

func (s *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (Counter, error) {
	redisKey := fmt.Sprintf("%s:%s", s.prefix, key)

	pipe := s.client.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.TTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Counter{}, fmt.Errorf("redis error: %w", err)
	}

	c := Counter{Count: incr.Val(), TTL: ttl.Val()}

	// A key without expiry (first hit, or an earlier EXPIRE that never landed)
	// would otherwise count forever.
	if c.Count == 1 || c.TTL < 0 {
		if err := s.client.Expire(ctx, redisKey, window).Err(); err != nil {
			return Counter{}, fmt.Errorf("redis error: %w", err)
		}
		c.TTL = window
	}
	return c, nil
}
