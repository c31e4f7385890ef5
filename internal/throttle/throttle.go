// Package throttle implements per-scope, per-caller request rate limiting
// (spec.md §4.5's sync_push/sync_pull/conflict_resolution scopes), the same
// token-bucket shape the teacher's internal/sync/bandwidth.go uses for
// byte-rate limiting, repointed at request counts keyed by (scope, caller)
// instead of a single shared byte budget.
package throttle

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/taskmaster/syncserver/internal/serverconfig"
)

// Scope names a throttled operation kind.
type Scope string

const (
	ScopeSyncPush           Scope = "sync_push"
	ScopeSyncPull           Scope = "sync_pull"
	ScopeConflictResolution Scope = "conflict_resolution"
)

// Limiter holds one token bucket per (scope, caller) key, created lazily on
// first use and never evicted — a long-running server accumulates one
// bucket per distinct caller it has ever seen, which the teacher's
// BandwidthLimiter avoids needing to think about by having exactly one
// shared bucket; this package's per-caller fan-out is new, not adapted.
type Limiter struct {
	cfg     serverconfig.ThrottleConfig
	logger  *slog.Logger
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// New builds a Limiter from the throttle config section. Falls back to
// slog.Default() if logger is nil, matching every New* constructor in the
// teacher's internal/sync package.
func New(cfg serverconfig.ThrottleConfig, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		cfg:     cfg,
		logger:  logger,
		buckets: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether a request in the given scope, from the given
// caller key (user id, or client address for unauthenticated callers per
// spec.md §4.5), may proceed right now. It never blocks.
func (l *Limiter) Allow(scope Scope, callerKey string) bool {
	return l.bucketFor(scope, callerKey).Allow()
}

// RetryAfter returns the duration a caller should wait before retrying,
// for the Retry-After header on a 429 response.
func (l *Limiter) RetryAfter(scope Scope, callerKey string) time.Duration {
	reservation := l.bucketFor(scope, callerKey).Reserve()
	delay := reservation.Delay()
	reservation.Cancel()
	return delay
}

func (l *Limiter) bucketFor(scope Scope, callerKey string) *rate.Limiter {
	key := string(scope) + ":" + callerKey

	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[key]; ok {
		return b
	}

	limit := l.scopeLimit(scope)
	b := rate.NewLimiter(rate.Limit(limit.RatePerSecond), limit.Burst)
	l.buckets[key] = b
	l.logger.Debug("throttle: bucket created", "scope", scope, "caller", callerKey,
		"rate_per_second", limit.RatePerSecond, "burst", limit.Burst)
	return b
}

func (l *Limiter) scopeLimit(scope Scope) serverconfig.ScopeLimit {
	switch scope {
	case ScopeSyncPush:
		return l.cfg.SyncPush
	case ScopeSyncPull:
		return l.cfg.SyncPull
	case ScopeConflictResolution:
		return l.cfg.ConflictResolution
	default:
		return serverconfig.ScopeLimit{RatePerSecond: 1, Burst: 1}
	}
}
