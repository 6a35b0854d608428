// Package server implements a fixed-window rate limiter for per-connection
// throttling that protects the hub from abusive senders.
package server

import (
	"sync"
	"time"
)

// rateLimiter counts messages inside a fixed window. A burst at the end of
// one window followed by a burst at the start of the next can admit up to
// twice maxMessages in a short real-time span; that boundary behavior is a
// documented approximation, not a sliding-window algorithm.
type rateLimiter struct {
	mu          sync.Mutex
	count       int
	windowStart time.Time
	window      time.Duration
	maxMessages int
}

func newRateLimiter(window time.Duration, maxMessages int) *rateLimiter {
	if window <= 0 {
		window = 2 * time.Second
	}
	if maxMessages <= 0 {
		maxMessages = 1
	}

	return &rateLimiter{
		window:      window,
		maxMessages: maxMessages,
	}
}

// allow reports whether a message arriving at now is admitted. Once now
// falls outside [windowStart, windowStart+window) the bucket resets
// atomically: count becomes 1 and the window restarts at now.
func (rl *rateLimiter) allow(now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.windowStart.IsZero() || now.Sub(rl.windowStart) >= rl.window {
		rl.count = 1
		rl.windowStart = now
		return true
	}

	if rl.count >= rl.maxMessages {
		return false
	}

	rl.count++
	return true
}
