// Package retry retries model calls that fail with transient errors, using
// exponential backoff with jitter.
package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// Config holds retry parameters.
type Config struct {
	// MaxAttempts counts the initial request as attempt 1.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Jitter scales each delay by a random factor in [1-Jitter, 1+Jitter].
	Jitter float64
}

// DefaultConfig retries up to 5 attempts starting at one second.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// Disabled makes a single attempt.
func Disabled() Config {
	return Config{MaxAttempts: 1}
}

// WithAttempts returns c with MaxAttempts set to n. Values below 1 mean 1.
func (c Config) WithAttempts(n int) Config {
	c.MaxAttempts = max(n, 1)
	return c
}

// Delay returns the backoff before retry number attempt (0-indexed).
func (c Config) Delay(attempt int) time.Duration {
	attempt = max(attempt, 0)
	delay := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt))
	if c.MaxDelay > 0 && delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}
	if c.Jitter > 0 {
		delay *= 1.0 + (rand.Float64()*2-1)*c.Jitter
	}
	return time.Duration(delay)
}
