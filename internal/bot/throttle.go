package bot

import (
	"sync"
	"time"
)

// throttleSweepAt bounds the tracking map: once it grows past this many
// users, expired entries are evicted on the next stamp.
const throttleSweepAt = 1024

// Throttle enforces a per-user minimum interval between accepted
// events. Used to absorb /start double-taps and bot-list crawlers.
type Throttle struct {
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	last map[int64]time.Time
}

func NewThrottle(window time.Duration) *Throttle {
	return &Throttle{
		window: window,
		now:    time.Now,
		last:   make(map[int64]time.Time),
	}
}

// Allow reports whether userID may proceed and, if so, stamps the
// attempt. A denied attempt does not refresh the window.
func (t *Throttle) Allow(userID int64) bool {
	if t.window <= 0 {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if prev, ok := t.last[userID]; ok && now.Sub(prev) < t.window {
		return false
	}
	if len(t.last) >= throttleSweepAt {
		t.sweep(now)
	}
	t.last[userID] = now
	return true
}

func (t *Throttle) sweep(now time.Time) {
	for id, ts := range t.last {
		if now.Sub(ts) >= t.window {
			delete(t.last, id)
		}
	}
}
