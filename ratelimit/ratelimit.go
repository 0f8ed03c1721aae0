// Package ratelimit implements per-key cooldowns.
package ratelimit

import (
	"sync"
	"time"

	"devspace-backend/errs"
)

type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}

var SystemClock = ClockFunc(time.Now)

// Limiter allows one action per key per cooldown window.
type Limiter interface {
	// Check records an action for key and reports whether it was allowed.
	// When it was not, remaining is the time left until the next allowed action.
	Check(key string) (remaining time.Duration, ok bool)
}

// Cooldown is an in-memory Limiter. Entries expire once their window has passed.
type Cooldown struct {
	window time.Duration
	clock  Clock

	mu      sync.Mutex
	expires map[string]time.Time
}

func NewCooldown(window time.Duration, clock Clock) *Cooldown {
	if clock == nil {
		clock = SystemClock
	}

	return &Cooldown{
		window:  window,
		clock:   clock,
		expires: make(map[string]time.Time),
	}
}

func (c *Cooldown) Check(key string) (time.Duration, bool) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if until, ok := c.expires[key]; ok && now.Before(until) {
		return until.Sub(now), false
	}
	c.expires[key] = now.Add(c.window)

	return 0, true
}

// Reset forgets the cooldown for key.
func (c *Cooldown) Reset(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.expires, key)
}

// Prune drops expired entries and returns how many were removed.
func (c *Cooldown) Prune() int {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k, until := range c.expires {
		if !now.Before(until) {
			delete(c.expires, k)
			n++
		}
	}
	return n
}

func (c *Cooldown) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.expires)
}

// Unlimited never throttles.
type Unlimited struct{}

func (Unlimited) Check(string) (time.Duration, bool) {
	return 0, true
}

// CooldownError is returned by Guard while a key is throttled.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return errs.ErrCooldown.Error()
}

func (e *CooldownError) Unwrap() error {
	return errs.ErrCooldown
}

// Guard records an action for key and returns a *CooldownError when limiter refuses it.
func Guard(limiter Limiter, key string) error {
	if remaining, ok := limiter.Check(key); !ok {
		return &CooldownError{Remaining: remaining}
	}
	return nil
}
