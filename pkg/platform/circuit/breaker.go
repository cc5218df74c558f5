// Package circuit implements a small circuit breaker for optional fast paths.
package circuit

import (
	"sync"
	"time"
)

// Breaker prevents thundering herd on index outages. When the index is
// unhealthy the circuit opens and the fast path is skipped without attempting
// the call; reads then come from the ledger alone.
type Breaker struct {
	mu sync.RWMutex

	threshold int           // failures to trigger open
	cooldown  time.Duration // how long to stay open

	failures  int       // consecutive failures
	openUntil time.Time // when to transition from open to half-open
	isOpen    bool
}

// NewBreaker creates a breaker that opens after threshold consecutive
// failures and stays open for cooldown.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
	}
}

// Allow returns true if the circuit is closed (healthy) or half-open (testing).
func (b *Breaker) Allow() bool {
	b.mu.RLock()
	if !b.isOpen {
		b.mu.RUnlock()
		return true
	}

	expired := time.Now().After(b.openUntil)
	b.mu.RUnlock()

	if expired {
		// Transition to half-open - allow one request through.
		b.mu.Lock()
		defer b.mu.Unlock()

		// Double-check after acquiring write lock.
		if b.isOpen && time.Now().After(b.openUntil) {
			b.isOpen = false
			b.failures = 0
		}
		return !b.isOpen
	}

	return false
}

// RecordSuccess records a successful operation, closing the circuit.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.isOpen = false
}

// RecordFailure records a failed operation, potentially opening the circuit.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.failures >= b.threshold {
		b.isOpen = true
		b.openUntil = time.Now().Add(b.cooldown)
	}
}

// IsOpen returns true if the circuit is currently open.
func (b *Breaker) IsOpen() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.isOpen
}

// Reset manually closes the circuit.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.isOpen = false
}
