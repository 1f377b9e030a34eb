package service

import (
	"context"
	"log/slog"
	"time"
)

type expiredTokenCleaner interface {
	CleanExpired(ctx context.Context) (int64, error)
}

// TokenJanitor periodically deletes refresh tokens past their expiry. Rotation already
// rejects them, so this only bounds table growth.
type TokenJanitor struct {
	tokens expiredTokenCleaner
}

func NewTokenJanitor(tokens expiredTokenCleaner) *TokenJanitor {
	return &TokenJanitor{tokens: tokens}
}

// RunOnce performs a single cleanup pass and returns the number of rows removed.
func (j *TokenJanitor) RunOnce(ctx context.Context) int64 {
	removed, err := j.tokens.CleanExpired(ctx)
	if err != nil {
		slog.Error("failed to clean expired refresh tokens", "error", err)
		return 0
	}
	if removed > 0 {
		slog.Info("expired refresh tokens removed", "count", removed)
	}
	return removed
}

// StartCleanupTicker runs RunOnce every interval until ctx is cancelled.
func (j *TokenJanitor) StartCleanupTicker(ctx context.Context, interval time.Duration) {
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
			j.RunOnce(ctx)
		}
	}
}
