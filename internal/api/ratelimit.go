package api

import (
	"sync"
	"time"

	"github.com/JakeFAU/bookwatch/internal/catalog"
)

// rateLimitSweepEvery is how many allow calls pass between sweeps of aged-out
// keys, so abandoned API keys do not pin their windows forever.
const rateLimitSweepEvery = 256

// rateLimiter enforces a per-API-key sliding window.
type rateLimiter struct {
	limit  int
	period time.Duration
	clock  catalog.Clock

	mu      sync.Mutex
	calls   uint64
	windows map[string][]time.Time
}

// rateLimitInfo reports the caller's remaining budget.
type rateLimitInfo struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

func newRateLimiter(limit int, period time.Duration, clock catalog.Clock) *rateLimiter {
	return &rateLimiter{
		limit:   limit,
		period:  period,
		clock:   clock,
		windows: make(map[string][]time.Time),
	}
}

// allow records one request for key and reports whether it fits the window.
// When the limit is hit, the returned info carries the time the window frees
// up.
func (l *rateLimiter) allow(key string) (rateLimitInfo, bool) {
	now := l.clock.Now()
	windowStart := now.Add(-l.period)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.calls++
	if l.calls%rateLimitSweepEvery == 0 {
		l.cleanupLocked(windowStart)
	}

	window := l.windows[key][:0]
	for _, t := range l.windows[key] {
		if t.After(windowStart) {
			window = append(window, t)
		}
	}

	if len(window) >= l.limit {
		l.windows[key] = window
		return rateLimitInfo{
			Limit:     l.limit,
			Remaining: 0,
			Reset:     window[0].Add(l.period),
		}, false
	}

	window = append(window, now)
	l.windows[key] = window
	return rateLimitInfo{
		Limit:     l.limit,
		Remaining: l.limit - len(window),
		Reset:     now.Add(l.period),
	}, true
}

// cleanup drops keys whose whole window has aged out.
func (l *rateLimiter) cleanup() {
	threshold := l.clock.Now().Add(-l.period)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.cleanupLocked(threshold)
}

func (l *rateLimiter) cleanupLocked(threshold time.Time) {
	for key, window := range l.windows {
		if len(window) == 0 || window[len(window)-1].Before(threshold) {
			delete(l.windows, key)
		}
	}
}
