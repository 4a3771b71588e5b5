package binance

import (
	"context"
	"sync"
	"time"
)

// RateLimiter tracks request weight inside a sliding window so the supplier
// stays under Binance's per-minute weight budget. Acquire blocks until the
// weight fits or the context is cancelled.
type RateLimiter struct {
	mu       sync.Mutex
	budget   int
	window   time.Duration
	requests []weightedRequest
}

type weightedRequest struct {
	at     time.Time
	weight int
}

// NewRateLimiter creates a limiter with the given weight budget per window
func NewRateLimiter(budget int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		budget: budget,
		window: window,
	}
}

// Acquire reserves weight, waiting for older requests to leave the window if
// the budget is exhausted.
func (r *RateLimiter) Acquire(ctx context.Context, weight int) error {
	for {
		wait, ok := r.tryAcquire(weight)
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// tryAcquire reserves weight if it fits, otherwise returns how long to wait
// before the oldest in-window request expires.
func (r *RateLimiter) tryAcquire(weight int) (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	recent := r.requests[:0]
	used := 0
	for _, req := range r.requests {
		if req.at.After(windowStart) {
			recent = append(recent, req)
			used += req.weight
		}
	}
	r.requests = recent

	if used+weight > r.budget && len(r.requests) > 0 {
		return r.requests[0].at.Sub(windowStart) + 10*time.Millisecond, false
	}

	r.requests = append(r.requests, weightedRequest{at: now, weight: weight})
	return 0, true
}

// Usage returns the weight currently consumed inside the window
func (r *RateLimiter) Usage() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	windowStart := time.Now().Add(-r.window)
	used := 0
	for _, req := range r.requests {
		if req.at.After(windowStart) {
			used += req.weight
		}
	}
	return used
}
