package revocation

import (
	"context"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryList keeps revoked tokens in process memory, keyed by their SHA-256 hash.
// Entries are lost on restart.
type MemoryList struct {
	cache *cache.Cache
	now   func() time.Time
}

// NewMemoryList returns an empty list. The go-cache janitor is off; expired entries are
// purged by StartSweeper so removal follows the list's own clock.
func NewMemoryList() *MemoryList {
	return &MemoryList{
		cache: cache.New(cache.NoExpiration, 0),
		now:   time.Now,
	}
}

// WithClock replaces the time source used for expiry checks. Call it before sharing the list.
func (l *MemoryList) WithClock(now func() time.Time) *MemoryList {
	l.now = now
	return l
}

// StartSweeper runs Sweep every interval until ctx is cancelled.
func (l *MemoryList) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

func (l *MemoryList) Blacklist(_ context.Context, token string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(l.now())
	if ttl <= 0 {
		return nil
	}

	key := tokenKey(token)
	if existing, ok := l.cache.Get(key); ok && !existing.(time.Time).Before(expiresAt) {
		return nil
	}

	l.cache.Set(key, expiresAt, ttl)
	return nil
}

// IsBlacklisted reports true only while the recorded expiry is strictly after now.
func (l *MemoryList) IsBlacklisted(_ context.Context, token string) (bool, error) {
	v, ok := l.cache.Get(tokenKey(token))
	if !ok {
		return false, nil
	}
	return v.(time.Time).After(l.now()), nil
}

// Sweep removes every entry whose token has expired and returns how many were removed.
func (l *MemoryList) Sweep() int {
	now := l.now()
	removed := 0
	for key, item := range l.cache.Items() {
		if expiry, ok := item.Object.(time.Time); ok && !expiry.After(now) {
			l.cache.Delete(key)
			removed++
		}
	}
	l.cache.DeleteExpired()

	if removed > 0 {
		slog.Debug("revocation list swept", "removed", removed)
	}
	return removed
}

// Len returns the number of entries currently held.
func (l *MemoryList) Len() int {
	return l.cache.ItemCount()
}

// Close drops every entry.
func (l *MemoryList) Close() {
	l.cache.Flush()
}
