// Package throttle bounds the rate of authentication attempts and escalates
// to per-account lockout under sustained failure. Rate limiting and lockout
// are independent controls: the sliding window throttles request volume for
// an identifier regardless of identity validity, while lockout sticks to the
// account across source addresses.
package throttle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"homeledger/internal/interfaces"
	"homeledger/internal/model"
)

// RateLimiter is a sliding-window attempt counter keyed by opaque
// identifiers. Windows are recomputed relative to "now" on every call, not
// aligned to fixed buckets. The single mutex makes increment-and-check
// atomic: two concurrent calls for the same identifier cannot both slip
// under the limit.
type RateLimiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	now      func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{attempts: make(map[string][]time.Time), now: time.Now}
}

// NewRateLimiterAt builds a limiter with an injected clock for tests.
func NewRateLimiterAt(now func() time.Time) *RateLimiter {
	return &RateLimiter{attempts: make(map[string][]time.Time), now: now}
}

// Allow discards attempts older than the window, then either records a new
// attempt and returns true, or returns false without recording when the
// identifier is already at the limit.
func (l *RateLimiter) Allow(identifier string, limit int, window time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-window)

	recent := l.attempts[identifier][:0]
	for _, at := range l.attempts[identifier] {
		if at.After(cutoff) {
			recent = append(recent, at)
		}
	}

	if len(recent) >= limit {
		l.attempts[identifier] = recent
		return false
	}

	l.attempts[identifier] = append(recent, now)
	return true
}

// Sweep drops identifiers whose every recorded attempt has aged out of the
// window, so the map stays bounded in a long-running process.
func (l *RateLimiter) Sweep(window time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-window)
	for id, attempts := range l.attempts {
		// Attempts are appended in order; the last one is the newest.
		if len(attempts) == 0 || !attempts[len(attempts)-1].After(cutoff) {
			delete(l.attempts, id)
		}
	}
}

// Throttle combines the in-process rate limiter with the durable per-account
// failure counter and lockout expiry on the user row.
type Throttle struct {
	users   interfaces.UserRepository
	limiter *RateLimiter

	maxAttempts int
	lockFor     time.Duration
	limit       int
	window      time.Duration

	now func() time.Time
}

type Config struct {
	MaxFailedAttempts int
	LockoutDuration   time.Duration
	RateLimit         int
	RateWindow        time.Duration
}

func New(users interfaces.UserRepository, cfg Config) *Throttle {
	return &Throttle{
		users:       users,
		limiter:     NewRateLimiter(),
		maxAttempts: cfg.MaxFailedAttempts,
		lockFor:     cfg.LockoutDuration,
		limit:       cfg.RateLimit,
		window:      cfg.RateWindow,
		now:         time.Now,
	}
}

// NewAt builds a throttle with an injected clock for tests.
func NewAt(users interfaces.UserRepository, cfg Config, now func() time.Time) *Throttle {
	t := New(users, cfg)
	t.limiter = NewRateLimiterAt(now)
	t.now = now
	return t
}

// Identifier derives the opaque rate-limit key for an email address.
func Identifier(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(sum[:])
}

// CheckRateLimit reports whether another attempt for the identifier is
// allowed right now.
func (t *Throttle) CheckRateLimit(identifier string) bool {
	return t.limiter.Allow(identifier, t.limit, t.window)
}

// SweepIdle evicts identifiers that have gone a full window without an
// attempt. Meant to be called periodically.
func (t *Throttle) SweepIdle() {
	t.limiter.Sweep(t.window)
}

// RecordFailedLogin bumps the user's failed-attempt counter; the storage
// layer sets the lockout expiry once the counter reaches the maximum.
func (t *Throttle) RecordFailedLogin(ctx context.Context, userID uuid.UUID) error {
	_, err := t.users.RecordLoginFailure(ctx, userID, t.maxAttempts, t.lockFor)
	return err
}

// RecordSuccessfulLogin resets the counter and clears any lockout.
func (t *Throttle) RecordSuccessfulLogin(ctx context.Context, userID uuid.UUID) error {
	return t.users.RecordLoginSuccess(ctx, userID)
}

// IsLocked reports whether the user has a lockout expiry still in the
// future.
func (t *Throttle) IsLocked(u *model.User) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(t.now())
}
