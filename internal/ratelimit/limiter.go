// Package ratelimit provides sliding-window throttling of recovery-sensitive
// operations, keyed by (operation, subject). It is an approximate throttle
// by design: Check never records, so callers probe first and commit an
// attempt separately, and concurrent checks near the limit may both pass.
package ratelimit

import (
	"sync"
	"time"

	"github.com/tandemlabs/tandem/internal/config"
	"github.com/tandemlabs/tandem/internal/logging"
)

// Default limits applied to operations without explicit configuration.
const (
	DefaultLimit  = 5
	DefaultWindow = 60 * time.Second
)

// Limit describes one operation's attempt budget over a trailing window.
type Limit struct {
	Limit  int
	Window time.Duration
}

// Result is the outcome of a Check.
type Result struct {
	// Allowed is true when fewer than the limit of attempts fall inside the
	// trailing window.
	Allowed bool
	// RetryAfter is, for a blocked result, the time until the oldest
	// in-window attempt expires. Zero when Allowed.
	RetryAfter time.Duration
}

type key struct {
	operation string
	subject   string
}

// Limiter is a sliding-window rate limiter. It is safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	ops      map[string]Limit
	fallback Limit
	attempts map[key][]time.Time
	logger   *logging.Logger

	// now is swappable for deterministic tests.
	now func() time.Time
}

// New creates a Limiter with the given per-operation limits. Operations not
// present in ops use the package defaults.
func New(ops map[string]Limit, logger *logging.Logger) *Limiter {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if ops == nil {
		ops = map[string]Limit{}
	}
	return &Limiter{
		ops:      ops,
		fallback: Limit{Limit: DefaultLimit, Window: DefaultWindow},
		attempts: make(map[key][]time.Time),
		logger:   logger,
		now:      time.Now,
	}
}

// FromConfig creates a Limiter from the ratelimit configuration section.
func FromConfig(cfg config.RateLimitConfig, logger *logging.Logger) *Limiter {
	ops := make(map[string]Limit, len(cfg.Operations))
	for name, op := range cfg.Operations {
		ops[name] = Limit{
			Limit:  op.Limit,
			Window: time.Duration(op.WindowSecs) * time.Second,
		}
	}
	l := New(ops, logger)
	if cfg.DefaultLimit > 0 && cfg.DefaultWindowSecs > 0 {
		l.fallback = Limit{
			Limit:  cfg.DefaultLimit,
			Window: cfg.DefaultWindow(),
		}
	}
	return l
}

// Check reports whether another attempt at (operation, subject) is currently
// allowed. It never records an attempt; use Record to commit one.
func (l *Limiter) Check(operation, subject string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim := l.limitFor(operation)
	k := key{operation: operation, subject: subject}
	now := l.now()

	recent := l.pruneLocked(k, now, lim.Window)
	if len(recent) < lim.Limit {
		return Result{Allowed: true}
	}

	// Oldest in-window attempt determines when a slot frees up.
	retryAfter := lim.Window - now.Sub(recent[0])
	if retryAfter <= 0 {
		retryAfter = time.Nanosecond
	}

	l.logger.Debug("rate limit exceeded",
		"operation", operation,
		"key", subject,
		"attempts", len(recent),
		"limit", lim.Limit,
		"retry_after", retryAfter.String())

	return Result{Allowed: false, RetryAfter: retryAfter}
}

// Record commits an attempt at (operation, subject). The stored list is
// bounded near twice the configured limit so a hot key cannot grow memory
// without bound.
func (l *Limiter) Record(operation, subject string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim := l.limitFor(operation)
	k := key{operation: operation, subject: subject}
	now := l.now()

	recent := append(l.pruneLocked(k, now, lim.Window), now)
	if max := lim.Limit * 2; len(recent) > max {
		recent = recent[len(recent)-max:]
	}
	l.attempts[k] = recent
}

// Reset clears the attempt history for (operation, subject). Resetting an
// unknown key is a no-op.
func (l *Limiter) Reset(operation, subject string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, key{operation: operation, subject: subject})
}

// limitFor returns the limit for an operation, falling back to defaults.
// Must be called with the lock held.
func (l *Limiter) limitFor(operation string) Limit {
	if lim, ok := l.ops[operation]; ok && lim.Limit > 0 && lim.Window > 0 {
		return lim
	}
	return l.fallback
}

// pruneLocked drops attempts older than the window and returns the survivors.
// Must be called with the lock held.
func (l *Limiter) pruneLocked(k key, now time.Time, window time.Duration) []time.Time {
	stored := l.attempts[k]
	cutoff := now.Add(-window)

	i := 0
	for i < len(stored) && !stored[i].After(cutoff) {
		i++
	}
	recent := stored[i:]

	if len(recent) == 0 {
		delete(l.attempts, k)
		return nil
	}
	l.attempts[k] = recent
	return recent
}
