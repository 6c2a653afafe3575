// Package circuit rate-limits client relaunches. Repeated launch failures
// in a row push the breaker into a cooldown so the controller stops
// hammering a broken browser environment with back-to-back restarts.
package circuit

import (
	"sync"
	"time"
)

type Breaker struct {
	mu        sync.RWMutex
	threshold int
	cooldown  time.Duration

	failures      int
	cooldownUntil time.Time
}

// NewBreaker trips after threshold consecutive failures and then holds
// relaunches off for the cooldown period.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{threshold: threshold, cooldown: cooldown}
}

// RecordFailure counts one launch failure. Returns true when the failure
// tripped the breaker into cooldown.
func (b *Breaker) RecordFailure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.failures >= b.threshold {
		b.cooldownUntil = time.Now().Add(b.cooldown)
		b.failures = 0
		return true
	}
	return false
}

// RetryDelay returns the delay to use before the next relaunch attempt:
// the given base delay, stretched to cover any active cooldown.
func (b *Breaker) RetryDelay(base time.Duration) time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if remaining := time.Until(b.cooldownUntil); remaining > base {
		return remaining
	}
	return base
}

// InCooldown reports whether the breaker is currently holding relaunches off.
func (b *Breaker) InCooldown() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return time.Now().Before(b.cooldownUntil)
}

// Reset clears the failure streak, called once a launch produces any
// successful client event.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.cooldownUntil = time.Time{}
}

// Failures returns the current consecutive-failure count.
func (b *Breaker) Failures() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.failures
}
