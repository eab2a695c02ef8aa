package stream

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy is the reconnect backoff: exponential, capped and jittered.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// Jitter is the randomization factor, 0.2 means ±20%.
	Jitter     float64
	Multiplier float64
}

// DefaultPolicy starts at 1s and caps at 30s with ±20% jitter.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Jitter:          0.2,
		Multiplier:      2,
	}
}

// BackOff builds a backoff that never gives up.
func (p Policy) BackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.RandomizationFactor = p.Jitter
	if p.Multiplier > 0 {
		b.Multiplier = p.Multiplier
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
