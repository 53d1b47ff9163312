package slidingwindow

import (
	"sync"
	"time"
)

// Source: https://github.com/RussellLuo/slidingwindow

// Limiter is an in-memory sliding window rate limiter. It tracks the count
// of events inside the current window and the timestamp of the last call;
// WaitTill can push the last-call timestamp into the future to block all
// events until a server-dictated time.
type Limiter struct {
	// The start boundary (timestamp in nanoseconds) of the window.
	start int64

	// The last call
	last int64

	interval int64

	// The total count of events happened in the window.
	count int64

	// The maximum count of events allowed per window.
	max int64
	mu  sync.Mutex
}

// Allow checks whether an event may happen now. If allowed it counts the
// event and returns true; otherwise it returns false and the remaining
// duration until the next event can happen.
func (lim *Limiter) Allow() (bool, time.Duration) {
	lim.mu.Lock()
	defer lim.mu.Unlock()

	now := time.Now().UnixNano()
	if now < lim.last {
		// Date set to future for blocking
		return false, time.Duration(lim.last - now)
	}
	if lim.count < lim.max {
		// Queue not full - can allow and increment
		lim.count++
		lim.last = now
		return true, 0
	}

	timeSinceStart := now - lim.start
	timeSinceLast := now - lim.last

	if timeSinceLast > lim.interval || timeSinceStart > lim.interval {
		// Last Call long ago - reset and allow
		lim.count = 1
		lim.last = now
		lim.start = now
		return true, 0
	}

	remainingTime := lim.interval - timeSinceStart
	lim.last = now
	return false, time.Duration(remainingTime)
}

// Check returns whether an event would be allowed now, without counting it,
// and the remaining time until the next event can happen.
func (lim *Limiter) Check() (bool, time.Duration) {
	lim.mu.Lock()
	defer lim.mu.Unlock()
	now := time.Now().UnixNano()
	if now < lim.last {
		// Date set to future for blocking
		return false, time.Duration(lim.last - now)
	}
	if lim.count < lim.max {
		// Queue not full
		return true, 0
	}

	timeSinceStart := now - lim.start
	timeSinceLast := now - lim.last

	if timeSinceLast > lim.interval || timeSinceStart > lim.interval {
		// Last Call long ago
		return true, 0
	}
	return false, time.Duration(lim.interval - timeSinceStart)
}

// Interval returns the interval duration configured for the rate limiter.
func (lim *Limiter) Interval() time.Duration {
	lim.mu.Lock()
	defer lim.mu.Unlock()
	return time.Duration(lim.interval)
}

// WaitTill forces the last-call time to the given time. Events are blocked
// until then regardless of the window state.
func (lim *Limiter) WaitTill(now time.Time) {
	lim.mu.Lock()
	defer lim.mu.Unlock()
	lim.last = now.UnixNano()
}

// NewLimiter returns a new Limiter that limits events to maxevents
// per interval duration.
func NewLimiter(interval time.Duration, maxevents int64) Limiter {
	now := time.Now().UnixNano()
	return Limiter{interval: int64(interval), max: maxevents, start: now, last: now}
}
