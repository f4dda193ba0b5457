package main

import (
	"math/rand/v2"
	"time"
)

const jitterWindow = 250 * time.Millisecond

// backoff doubles the wait after each failed batch, capped at max, and
// always adds up to jitterWindow so replicas do not poll in lockstep.
type backoff struct {
	base    time.Duration
	max     time.Duration
	current time.Duration
	jitter  func(time.Duration) time.Duration
}

func newBackoff(base, max time.Duration) *backoff {
	if base <= 0 {
		base = time.Duration(defaultPollMs) * time.Millisecond
	}
	if max < base {
		max = base
	}
	return &backoff{base: base, max: max, current: base, jitter: randomJitter}
}

func (b *backoff) next() time.Duration {
	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}
	return b.current + b.jitter(jitterWindow)
}

func (b *backoff) idle() time.Duration {
	return b.base + b.jitter(jitterWindow)
}

func (b *backoff) reset() {
	b.current = b.base
}

func randomJitter(window time.Duration) time.Duration {
	if window <= 0 {
		return 0
	}
	return rand.N(window)
}
