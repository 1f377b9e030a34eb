package revocation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "revoked"

// RedisList shares revoked tokens between instances and keeps them across restarts.
type RedisList struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisList(client *redis.Client, prefix string) *RedisList {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisList{client: client, prefix: prefix, now: time.Now}
}

func (l *RedisList) WithClock(now func() time.Time) *RedisList {
	l.now = now
	return l
}

func (l *RedisList) Blacklist(ctx context.Context, token string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(l.now())
	if ttl <= 0 {
		return nil
	}

	if err := l.client.Set(ctx, l.key(token), expiresAt.UnixNano(), ttl).Err(); err != nil {
		return fmt.Errorf("redis set revoked token: %w", err)
	}
	return nil
}

func (l *RedisList) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	raw, err := l.client.Get(ctx, l.key(token)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get revoked token: %w", err)
	}

	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, fmt.Errorf("parse revoked token expiry: %w", err)
	}
	return time.Unix(0, nanos).After(l.now()), nil
}

func (l *RedisList) key(token string) string {
	return l.prefix + ":" + tokenKey(token)
}
