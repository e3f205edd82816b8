package memory

import (
	"context"
	"sync"
	"time"

	"github.com/goquant/arbsentinel/internal/domain"
)

const waitPollInterval = 50 * time.Millisecond

// RateLimiter is an in-process token bucket per key. Each key's bucket holds
// up to limit tokens and refills at limit tokens per window.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens   float64
	lastFill time.Time
}

// NewRateLimiter returns an empty RateLimiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{buckets: make(map[string]*bucket)}
}

// Allow reports whether one operation for key is permitted under limit ops
// per window, consuming a token if so.
func (rl *RateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(limit), lastFill: now}
		rl.buckets[key] = b
	}

	refill := now.Sub(b.lastFill).Seconds() * float64(limit) / window.Seconds()
	b.tokens += refill
	if b.tokens > float64(limit) {
		b.tokens = float64(limit)
	}
	b.lastFill = now

	if b.tokens < 1 {
		return false, nil
	}
	b.tokens--
	return true, nil
}

// Wait blocks until an operation for key is permitted or ctx is done. Waiters
// poll at a fixed interval, so delivery order among concurrent waiters on the
// same key is not strict; callers that need ordering serialize externally.
func (rl *RateLimiter) Wait(ctx context.Context, key string, limit int, window time.Duration) error {
	for {
		allowed, err := rl.Allow(ctx, key, limit, window)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		timer := time.NewTimer(waitPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Compile-time interface check.
var _ domain.RateLimiter = (*RateLimiter)(nil)
