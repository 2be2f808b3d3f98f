// Package backoff provides jittered exponential retry and an adaptive rate
// limiter for resilient clients.
package backoff

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Policy configures retry behavior.
type Policy struct {
	MaxAttempts  int           // 0 falls back to the default cap
	InitialDelay time.Duration // delay before the second attempt
	MaxDelay     time.Duration // cap on the growing delay
	Multiplier   float64       // delay growth factor
	Jitter       bool          // add 0-25% random jitter per wait
}

// Default returns the policy used when callers pass a zero value.
func Default() Policy {
	return Policy{
		MaxAttempts:  10,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

func (p Policy) normalized() Policy {
	def := Default()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = def.InitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = def.Multiplier
	}
	return p
}

// Delay returns the wait before the given 1-based attempt, without jitter.
// Attempt 1 runs immediately.
func (p Policy) Delay(attempt int) time.Duration {
	p = p.normalized()
	if attempt <= 1 {
		return 0
	}
	d := p.InitialDelay
	for i := 2; i < attempt; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Retry runs fn until it succeeds, the context is cancelled, or the attempt
// budget is exhausted. fn receives the 1-based attempt number.
func Retry(ctx context.Context, p Policy, fn func(attempt int) error) error {
	p = p.normalized()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if wait := p.Delay(attempt); wait > 0 {
			if p.Jitter {
				wait += time.Duration(rand.Int63n(int64(wait/4) + 1))
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		if lastErr = fn(attempt); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("max attempts (%d) exceeded: %w", p.MaxAttempts, lastErr)
}

// AdaptiveLimiter wraps a token bucket whose rate climbs on success and
// halves on pressure. Thread-safe.
type AdaptiveLimiter struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	minLimit rate.Limit
	maxLimit rate.Limit
	stepUp   rate.Limit
}

// NewAdaptiveLimiter creates a limiter starting at initial requests per
// second, bounded to [min, max].
func NewAdaptiveLimiter(initial, min, max rate.Limit) *AdaptiveLimiter {
	if initial < min {
		initial = min
	}
	if initial > max {
		initial = max
	}
	burst := int(initial)
	if burst < 1 {
		burst = 1
	}
	return &AdaptiveLimiter{
		limiter:  rate.NewLimiter(initial, burst),
		minLimit: min,
		maxLimit: max,
		stepUp:   1,
	}
}

// Wait blocks until a token is available or the context ends.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// Success nudges the rate up after a request that went through.
func (a *AdaptiveLimiter) Success() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.adjust(a.limiter.Limit() + a.stepUp)
}

// Backpressure halves the rate after a failed or throttled request.
func (a *AdaptiveLimiter) Backpressure() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.adjust(a.limiter.Limit() / 2)
}

// Limit returns the current requests per second.
func (a *AdaptiveLimiter) Limit() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return float64(a.limiter.Limit())
}

func (a *AdaptiveLimiter) adjust(l rate.Limit) {
	if l > a.maxLimit {
		l = a.maxLimit
	}
	if l < a.minLimit {
		l = a.minLimit
	}
	if l != a.limiter.Limit() {
		a.limiter.SetLimit(l)
		burst := int(l)
		if burst < 1 {
			burst = 1
		}
		a.limiter.SetBurst(burst)
	}
}
