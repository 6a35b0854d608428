package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterFixedWindow(t *testing.T) {
	rl := newRateLimiter(2*time.Second, 10)
	base := time.Unix(1000, 0)

	// Ten messages early in the window all pass.
	for i := 0; i < 10; i++ {
		assert.True(t, rl.allow(base.Add(100*time.Millisecond)), "message %d", i+1)
	}

	// The eleventh inside the same window is rejected.
	assert.False(t, rl.allow(base.Add(200*time.Millisecond)))

	// Past the window boundary the bucket resets atomically.
	assert.True(t, rl.allow(base.Add(2100*time.Millisecond)))

	// The reset left count at 1, so nine more fit in the new window.
	for i := 0; i < 9; i++ {
		assert.True(t, rl.allow(base.Add(2200*time.Millisecond)), "message %d after reset", i+1)
	}
	assert.False(t, rl.allow(base.Add(2300*time.Millisecond)))
}

// TestRateLimiterBoundaryBurst pins the documented fixed-window
// approximation: a burst at the end of one window plus a burst at the start
// of the next admits up to twice the per-window maximum in a short span.
func TestRateLimiterBoundaryBurst(t *testing.T) {
	rl := newRateLimiter(2*time.Second, 10)
	base := time.Unix(2000, 0)

	admitted := 0
	for i := 0; i < 10; i++ {
		if rl.allow(base.Add(1900 * time.Millisecond)) {
			admitted++
		}
	}
	for i := 0; i < 10; i++ {
		if rl.allow(base.Add(3900 * time.Millisecond)) {
			admitted++
		}
	}

	assert.Equal(t, 20, admitted)
}

func TestRateLimiterDefaults(t *testing.T) {
	rl := newRateLimiter(0, 0)
	assert.True(t, rl.allow(time.Now()))
	assert.False(t, rl.allow(time.Now()))
}
