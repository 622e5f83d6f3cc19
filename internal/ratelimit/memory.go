package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	// sweepInterval is how often idle callers are evicted; idleEviction is
	// how long a caller may be silent before its budget state is dropped.
	// Re-admitted callers start from a full budget again, which errs on the
	// permissive side for intermittent query traffic.
	sweepInterval = time.Minute
	idleEviction  = 10 * time.Minute
)

// budget tracks the remaining query allowance for one caller. level is
// fractional so refill accrues smoothly between requests.
type budget struct {
	level   float64
	touched time.Time
}

// MemoryLimiter enforces per-caller query budgets in process memory. Each
// caller key (user, client address) refills at a sustained rate up to a burst
// ceiling. Suitable for a single-node deployment; budgets reset on restart.
type MemoryLimiter struct {
	refillPerSec float64
	ceiling      float64

	mu      sync.Mutex
	budgets map[string]*budget

	closeOnce sync.Once
	done      chan struct{}
}

// NewMemoryLimiter creates a limiter refilling rate tokens per second per
// caller with the given burst ceiling, and starts the idle-caller sweeper.
// Callers must Close to stop it.
func NewMemoryLimiter(rate float64, burst int) *MemoryLimiter {
	l := &MemoryLimiter{
		refillPerSec: rate,
		ceiling:      float64(burst),
		budgets:      make(map[string]*budget),
		done:         make(chan struct{}),
	}
	go l.sweep()
	return l
}

// Allow spends one unit of key's budget. A caller seen for the first time
// starts with a full budget.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.budgets[key]
	if !ok {
		l.budgets[key] = &budget{level: l.ceiling - 1, touched: now}
		return true, nil
	}

	b.level += now.Sub(b.touched).Seconds() * l.refillPerSec
	if b.level > l.ceiling {
		b.level = l.ceiling
	}
	b.touched = now

	if b.level < 1 {
		return false, nil
	}
	b.level--
	return true, nil
}

// Close stops the sweeper. Idempotent.
func (l *MemoryLimiter) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	return nil
}

func (l *MemoryLimiter) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.evictIdle(time.Now().Add(-idleEviction))
		}
	}
}

func (l *MemoryLimiter) evictIdle(cutoff time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, b := range l.budgets {
		if b.touched.Before(cutoff) {
			delete(l.budgets, key)
		}
	}
}
