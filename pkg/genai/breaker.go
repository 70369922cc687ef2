package genai

import (
	"sync"
	"time"
)

// DefaultCooldown is how long remote calls stay suspended after a hard
// quota-exhaustion signal. A policy constant, not a derived truth;
// configurable for that reason.
const DefaultCooldown = 30 * time.Minute

// CooldownStore persists the breaker deadline so a restart inside the
// cooldown window still respects it. Implemented by persist.Bridge.
type CooldownStore interface {
	SaveCooldown(until time.Time)
	LoadCooldown() (time.Time, bool)
}

// Breaker suspends all remote calls for a fixed window after quota
// exhaustion. There is no explicit active→idle transition: once the
// wall clock passes the deadline the breaker simply reads as idle.
type Breaker struct {
	mu       sync.Mutex
	until    time.Time
	duration time.Duration
	store    CooldownStore
	now      func() time.Time
}

// NewBreaker creates a breaker with the given cooldown duration. A nil
// store disables persistence; otherwise any previously persisted
// deadline is restored.
func NewBreaker(duration time.Duration, store CooldownStore) *Breaker {
	if duration <= 0 {
		duration = DefaultCooldown
	}
	b := &Breaker{duration: duration, store: store, now: time.Now}
	if store != nil {
		if until, ok := store.LoadCooldown(); ok {
			b.until = until
		}
	}
	return b
}

// Check returns a CooldownError while the breaker is active, nil
// otherwise. Called before every attempt, including retries.
func (b *Breaker) Check() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.now().Before(b.until) {
		return &CooldownError{Until: b.until}
	}
	return nil
}

// Trip arms the breaker for the full cooldown window and persists the
// deadline. Returns the deadline.
func (b *Breaker) Trip() time.Time {
	b.mu.Lock()
	b.until = b.now().Add(b.duration)
	until := b.until
	b.mu.Unlock()

	if b.store != nil {
		b.store.SaveCooldown(until)
	}
	return until
}

// Reset clears an active cooldown.
func (b *Breaker) Reset() {
	b.mu.Lock()
	b.until = time.Time{}
	b.mu.Unlock()

	if b.store != nil {
		b.store.SaveCooldown(time.Time{})
	}
}

// Until returns the active deadline, or ok=false when idle.
func (b *Breaker) Until() (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.now().Before(b.until) {
		return b.until, true
	}
	return time.Time{}, false
}
