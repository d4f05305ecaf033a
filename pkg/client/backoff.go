package client

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Backoff computes reconnect delays:
//
//	delay = min(Initial * Factor^(attempt-1), Max) * U[1-Jitter, 1+Jitter]
//
// Once MaxAttempts delays have been handed out NextDelay reports false
// until Reset.
type Backoff struct {
	cfg BackoffConfig

	mu      sync.Mutex
	attempt int
	rand    func() float64
}

// NewBackoff returns a Backoff for cfg.
func NewBackoff(cfg BackoffConfig) *Backoff {
	return &Backoff{cfg: cfg, rand: rand.Float64}
}

// NextDelay returns the delay before the next attempt and advances the
// counter. ok is false when no attempts remain.
func (b *Backoff) NextDelay() (delay time.Duration, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attempt >= b.cfg.MaxAttempts {
		return 0, false
	}
	b.attempt++
	base := b.base(b.attempt)
	if b.cfg.Jitter <= 0 {
		return base, true
	}
	scale := 1 - b.cfg.Jitter + 2*b.cfg.Jitter*b.rand()
	return time.Duration(float64(base) * scale), true
}

// Base returns the unjittered delay for the given 1-based attempt.
func (b *Backoff) Base(attempt int) time.Duration {
	return b.base(attempt)
}

func (b *Backoff) base(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(b.cfg.Initial) * math.Pow(b.cfg.Factor, float64(attempt-1))
	if d > float64(b.cfg.Max) || math.IsInf(d, 0) {
		return b.cfg.Max
	}
	return time.Duration(d)
}

// Attempt returns the number of delays handed out since the last Reset.
func (b *Backoff) Attempt() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempt
}

// Reset starts the schedule over.
func (b *Backoff) Reset() {
	b.mu.Lock()
	b.attempt = 0
	b.mu.Unlock()
}
