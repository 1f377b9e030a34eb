package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const rateLimitWindow = time.Minute

// RedisLimitStore counts requests in fixed one-minute windows shared by every instance.
type RedisLimitStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisLimitStore(client *redis.Client, prefix string) *RedisLimitStore {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisLimitStore{client: client, prefix: prefix, now: time.Now}
}

func (s *RedisLimitStore) Take(ctx context.Context, key string, rpm int) (Decision, error) {
	now := s.now()
	window := now.Truncate(rateLimitWindow)
	redisKey := s.prefix + ":" + key + ":" + strconv.FormatInt(window.Unix(), 10)

	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.Expire(ctx, redisKey, 2*rateLimitWindow)
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("redis rate limit: %w", err)
	}

	if incr.Val() > int64(rpm) {
		return Decision{RetryAfter: window.Add(rateLimitWindow).Sub(now)}, nil
	}
	return Decision{Allowed: true}, nil
}
