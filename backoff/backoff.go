// Package backoff computes retry delays for reconnects, handshake
// retries, and best-effort log redelivery. Every Strategy is stateless
// and safe to share across goroutines.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before retry attempt n, where attempts are
// 1-indexed: attempt 1 is the first retry after the initial failure.
type Strategy interface {
	Delay(attempt int) time.Duration
}

// Constant returns the same delay on every attempt. Useful for a retry
// loop that just wants a fixed cadence, e.g. polling a peer that's
// expected to come back quickly.
type Constant struct {
	Interval time.Duration
}

func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// Linear grows the delay by a fixed step per attempt: attempt*Initial,
// clamped to Max once Max is positive.
type Linear struct {
	Initial time.Duration
	Max     time.Duration
}

func NewLinear(initial, ceiling time.Duration) *Linear {
	return &Linear{Initial: initial, Max: ceiling}
}

func (l *Linear) Delay(attempt int) time.Duration {
	return clamp(l.Initial*time.Duration(attempt), l.Max)
}

// Exponential doubles the delay on each successive attempt:
// Initial*2^(attempt-1), clamped to Max once Max is positive.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

func NewExponential(initial, ceiling time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: ceiling}
}

func (e *Exponential) Delay(attempt int) time.Duration {
	return clamp(scaleByAttempt(e.Initial, attempt), e.Max)
}

// ExponentialWithJitter picks a random delay in [0, Exponential's delay]
// for the same attempt number (full jitter). Spreading retries across
// that whole range, rather than always waiting the full computed delay,
// keeps a fleet of independently-reconnecting clients from all hammering
// the same endpoint on the same tick.
type ExponentialWithJitter struct {
	Initial time.Duration
	Max     time.Duration
}

func NewExponentialWithJitter(initial, ceiling time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: ceiling}
}

func (e *ExponentialWithJitter) Delay(attempt int) time.Duration {
	ceiling := clamp(scaleByAttempt(e.Initial, attempt), e.Max)
	return time.Duration(rand.Float64() * float64(ceiling)) //nolint:gosec // jitter, not a secret
}

// DefaultStrategy is what callers in this module reach for absent a more
// specific need: exponential growth from 1s up to a 1m ceiling, jittered.
func DefaultStrategy() Strategy {
	return NewExponentialWithJitter(1*time.Second, 1*time.Minute)
}

func scaleByAttempt(initial time.Duration, attempt int) time.Duration {
	return time.Duration(float64(initial) * math.Pow(2, float64(attempt-1)))
}

// clamp caps d at ceiling, unless ceiling is zero or negative (no cap).
func clamp(d, ceiling time.Duration) time.Duration {
	if ceiling > 0 && d > ceiling {
		return ceiling
	}
	return d
}
