package botclient

import (
	"sync"
	"time"
)

// WindowLimiter is a fixed-window request budget with a cooldown: points
// replenish at each window boundary, but exhausting the budget blocks ALL
// consumption for blockDuration, outlasting the window reset. This mirrors
// the quota behavior the bot service enforces server-side.
type WindowLimiter struct {
	mu           sync.Mutex
	capacity     int
	window       time.Duration
	block        time.Duration
	points       int
	windowStart  time.Time
	blockedUntil time.Time
	nowFn        func() time.Time
}

// NewWindowLimiter returns a limiter with capacity points per window and a
// block cooldown on exhaustion.
func NewWindowLimiter(capacity int, window, block time.Duration) *WindowLimiter {
	now := time.Now()
	return &WindowLimiter{
		capacity:    capacity,
		window:      window,
		block:       block,
		points:      capacity,
		windowStart: now,
		nowFn:       time.Now,
	}
}

// Consume takes n points from the current window. It returns ErrRateLimited
// while the limiter is blocked or when the window has fewer than n points
// left; the failing attempt itself triggers the block.
func (l *WindowLimiter) Consume(n int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.nowFn()
	if now.Before(l.blockedUntil) {
		return ErrRateLimited
	}
	if now.Sub(l.windowStart) >= l.window {
		l.windowStart = now
		l.points = l.capacity
	}
	if n > l.points {
		l.blockedUntil = now.Add(l.block)
		return ErrRateLimited
	}
	l.points -= n
	return nil
}
