package moderation

import (
	"sync"
	"time"
)

// minSweepInterval bounds how often Record scans for idle users.
const minSweepInterval = time.Minute

// RateWindowTracker counts each user's messages inside a sliding window.
type RateWindowTracker struct {
	window     time.Duration
	sweepEvery time.Duration

	mu        sync.Mutex
	events    map[string][]time.Time
	lastSweep time.Time
}

func NewRateWindowTracker(window time.Duration) *RateWindowTracker {
	return &RateWindowTracker{
		window:     window,
		sweepEvery: max(window, minSweepInterval),
		events:     make(map[string][]time.Time),
	}
}

// Record appends now to the user's sequence, drops entries older than the
// window relative to now and returns how many remain.
func (t *RateWindowTracker) Record(userID string, now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	events := append(t.events[userID], now)
	kept := events[:0]
	for _, ts := range events {
		if now.Sub(ts) <= t.window {
			kept = append(kept, ts)
		}
	}
	t.events[userID] = kept

	if now.Sub(t.lastSweep) >= t.sweepEvery {
		t.sweep(now)
		t.lastSweep = now
	}
	return len(kept)
}

// sweep drops users whose newest message has left the window.
func (t *RateWindowTracker) sweep(now time.Time) {
	for userID, events := range t.events {
		if len(events) == 0 || now.Sub(events[len(events)-1]) > t.window {
			delete(t.events, userID)
		}
	}
}

// Reset empties the user's sequence so the burst that tripped the limit
// cannot trip it again.
func (t *RateWindowTracker) Reset(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.events, userID)
}

// Users returns how many users are tracked.
func (t *RateWindowTracker) Users() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.events)
}

// Len returns the user's current sequence length without recording.
func (t *RateWindowTracker) Len(userID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.events[userID])
}
