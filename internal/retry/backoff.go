// Package retry provides bounded, classified retry for establishing the
// database connection. The change feed deliberately does not use it: a
// failed delta pass is retried by the next poll cycle instead.
package retry

import (
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy computes the delay before each retry attempt.
type BackoffStrategy interface {
	// NextDelay returns the delay before retry attempt n (0-based).
	NextDelay(attempt int) time.Duration

	// MaxAttempts returns the retry budget. Negative means unlimited.
	MaxAttempts() int
}

// ExponentialBackoff implements exponential backoff with jitter.
type ExponentialBackoff struct {
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
	maxAttempts  int
	jitter       float64
	jitterFunc   func() float64
}

// BackoffOption is a functional option for configuring ExponentialBackoff.
type BackoffOption func(*ExponentialBackoff)

// WithInitialDelay sets the delay before the first retry attempt.
func WithInitialDelay(d time.Duration) BackoffOption {
	return func(b *ExponentialBackoff) { b.initialDelay = d }
}

// WithMaxDelay caps the delay between retry attempts.
func WithMaxDelay(d time.Duration) BackoffOption {
	return func(b *ExponentialBackoff) { b.maxDelay = d }
}

// WithJitterFunc sets a custom random source for jitter (tests).
func WithJitterFunc(f func() float64) BackoffOption {
	return func(b *ExponentialBackoff) { b.jitterFunc = f }
}

// NewExponentialBackoff creates a backoff strategy with sensible defaults:
// 100ms initial delay, doubling, 1m cap, 10% jitter.
func NewExponentialBackoff(maxAttempts int, opts ...BackoffOption) *ExponentialBackoff {
	b := &ExponentialBackoff{
		initialDelay: 100 * time.Millisecond,
		maxDelay:     1 * time.Minute,
		multiplier:   2.0,
		maxAttempts:  maxAttempts,
		jitter:       0.1,
		jitterFunc:   rand.Float64,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NextDelay returns the delay before retry attempt n (0-based).
func (b *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(b.initialDelay) * math.Pow(b.multiplier, float64(attempt))
	if delay > float64(b.maxDelay) {
		delay = float64(b.maxDelay)
	}

	if b.jitter > 0 {
		// jitterFunc in [0,1) maps to a factor in [1-j, 1+j).
		factor := 1 + b.jitter*(2*b.jitterFunc()-1)
		delay *= factor
	}

	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// MaxAttempts returns the retry budget.
func (b *ExponentialBackoff) MaxAttempts() int {
	return b.maxAttempts
}
