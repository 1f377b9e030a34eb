package middleware

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"go-business-hub/internal/metrics"
)

type Tier string

const (
	TierGeneral Tier = "general"
	TierLogin   Tier = "login"
	TierRefresh Tier = "refresh"

	defaultLoginRPM   = 10
	defaultRefreshRPM = 20
)

// RateLimits are requests per minute per client IP. A non-positive general limit disables
// limiting of general traffic.
type RateLimits struct {
	GeneralRPM int
	LoginRPM   int
	RefreshRPM int
}

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// LimitStore counts requests per key.
type LimitStore interface {
	Take(ctx context.Context, key string, rpm int) (Decision, error)
}

type RateLimitMiddleware struct {
	limits RateLimits
	store  LimitStore
}

func NewRateLimitMiddleware(limits RateLimits, store LimitStore) *RateLimitMiddleware {
	if limits.LoginRPM <= 0 {
		limits.LoginRPM = defaultLoginRPM
	}
	if limits.RefreshRPM <= 0 {
		limits.RefreshRPM = defaultRefreshRPM
	}
	if store == nil {
		store = NewMemoryLimitStore()
	}

	return &RateLimitMiddleware{limits: limits, store: store}
}

// Handler rejects over-limit requests with 429 before any token is parsed.
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tier, exempt := classify(r)
		if exempt {
			next.ServeHTTP(w, r)
			return
		}

		rpm := m.rpm(tier)
		if rpm <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		metrics.RateLimitRequests.WithLabelValues(string(tier)).Inc()

		decision, err := m.store.Take(r.Context(), string(tier)+":"+ClientIP(r), rpm)
		if err != nil {
			// A broken shared store must not take the API down with it.
			slog.Warn("rate limit store unavailable, allowing request", "tier", tier, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		if !decision.Allowed {
			metrics.RateLimitHits.WithLabelValues(string(tier)).Inc()
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(decision.RetryAfter)))
			writeJSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *RateLimitMiddleware) rpm(tier Tier) int {
	switch tier {
	case TierLogin:
		return m.limits.LoginRPM
	case TierRefresh:
		return m.limits.RefreshRPM
	default:
		return m.limits.GeneralRPM
	}
}

func classify(r *http.Request) (Tier, bool) {
	path := strings.TrimSuffix(strings.ToLower(r.URL.Path), "/")
	switch {
	case path == "/health" || path == "/metrics":
		return "", true
	case path == "/api/auth/login":
		return TierLogin, false
	case path == "/api/auth/refresh":
		return TierRefresh, false
	default:
		return TierGeneral, false
	}
}

func retryAfterSeconds(d time.Duration) int {
	return max(1, int(math.Ceil(d.Seconds())))
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryLimitStore keeps a token bucket per key in process memory.
type MemoryLimitStore struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	now     func() time.Time
}

func NewMemoryLimitStore() *MemoryLimitStore {
	return &MemoryLimitStore{clients: map[string]*clientLimiter{}, now: time.Now}
}

func (s *MemoryLimitStore) Take(_ context.Context, key string, rpm int) (Decision, error) {
	now := s.now()
	limiter := s.getLimiter(key, rpm, now)

	reservation := limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return Decision{RetryAfter: time.Minute}, nil
	}

	delay := reservation.DelayFrom(now)
	if delay > 0 {
		reservation.CancelAt(now)
		return Decision{RetryAfter: delay}, nil
	}

	return Decision{Allowed: true}, nil
}

func (s *MemoryLimitStore) getLimiter(key string, rpm int, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, exists := s.clients[key]; exists {
		entry.lastSeen = now
		s.gcLocked(now)
		return entry.limiter
	}

	created := &clientLimiter{
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), rpm),
		lastSeen: now,
	}
	s.clients[key] = created
	s.gcLocked(now)

	return created.limiter
}

func (s *MemoryLimitStore) gcLocked(now time.Time) {
	if len(s.clients) < 1000 {
		return
	}

	cutoff := now.Add(-10 * time.Minute)
	for key, entry := range s.clients {
		if entry.lastSeen.Before(cutoff) {
			delete(s.clients, key)
		}
	}
}
