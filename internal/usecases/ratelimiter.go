package usecases

import "context"

// RateLimiter is a semaphore bounding how many store operations run at once.
// It protects the backend from request bursts without queueing unbounded work:
// a caller whose context expires while waiting gets the context error.
type RateLimiter struct {
	semaphore     chan struct{}
	maxConcurrent int
}

// NewRateLimiter creates a limiter admitting up to maxConcurrent operations.
func NewRateLimiter(maxConcurrent int) *RateLimiter {
	if maxConcurrent < 1 {
		maxConcurrent = 10
	}
	return &RateLimiter{
		semaphore:     make(chan struct{}, maxConcurrent),
		maxConcurrent: maxConcurrent,
	}
}

// Acquire blocks until a slot frees up or the context is done.
func (rl *RateLimiter) Acquire(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case rl.semaphore <- struct{}{}:
		return nil
	}
}

// Release frees a slot for the next caller.
func (rl *RateLimiter) Release() {
	select {
	case <-rl.semaphore:
	default:
		// Guards against release without a matching acquire.
	}
}
