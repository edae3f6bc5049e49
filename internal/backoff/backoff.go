// Package backoff implements the retry policy applied after an
// unexpected stream disconnect.
package backoff

import "time"

// DefaultBase is the first retry delay.
const DefaultBase = time.Second

// DefaultMaxAttempts caps automatic retries; past it the connection
// stays down until something triggers a fresh connect.
const DefaultMaxAttempts = 10

// Policy computes exponential retry delays. The zero value is not
// usable; construct with New.
type Policy struct {
	base        time.Duration
	maxAttempts int
}

// New returns a Policy with the given base delay and attempt ceiling.
// Non-positive arguments fall back to the defaults.
func New(base time.Duration, maxAttempts int) Policy {
	if base <= 0 {
		base = DefaultBase
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return Policy{base: base, maxAttempts: maxAttempts}
}

// Allowed reports whether a retry should be scheduled for the given
// attempt number (1-based).
func (p Policy) Allowed(attempt int) bool {
	return attempt >= 1 && attempt <= p.maxAttempts
}

// Delay returns the wait before the given attempt: base × 2^(attempt−1).
// Attempts below 1 are treated as 1. The shift is clamped so large
// attempt numbers cannot overflow.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	shift := uint(attempt - 1)
	if shift > 20 {
		shift = 20
	}
	return p.base << shift
}

// MaxAttempts returns the configured attempt ceiling.
func (p Policy) MaxAttempts() int {
	return p.maxAttempts
}
