// Package backoff provides delay strategies for reconnect loops.
// It supports constant, linear, capped exponential and random backoff, plus a
// jitter decorator that spreads delays without leaving the configured ceiling.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff defines the interface for backoff strategies.
type Backoff interface {
	// Next returns the duration to wait before the given attempt.
	// Attempts are numbered from 1.
	Next(attempt int64) time.Duration
}

// Default returns exponential backoff starting at one second, doubling, capped at thirty seconds.
func Default() Backoff {
	return ExponentialD()
}

// Linear creates a linear backoff strategy: base + step*(attempt-1).
func Linear(base, step time.Duration) Backoff {
	return linearBackoff{base: base, step: step}
}

// LinearD returns the default linear backoff strategy.
// Default values: base = 1 second, step = 5 seconds
func LinearD() Backoff {
	return Linear(time.Second, time.Second*5)
}

// Random creates a random backoff strategy that returns a random duration between min and max.
func Random(min, max time.Duration) Backoff {
	return randomBackoff{min: min, max: max}
}

// RandomD returns the default random backoff strategy.
// Default values: min = 2 seconds, max = 5 seconds
func RandomD() Backoff {
	return Random(time.Second*2, time.Second*5)
}

// Exponential creates a capped exponential backoff strategy.
//
// The delay for attempt n is min(base * factor^(n-1), max). A factor below 1 is
// treated as 1, which yields a fixed interval. A max of zero or less disables the cap.
func Exponential(base time.Duration, factor float64, max time.Duration) Backoff {
	if base < 0 {
		base = 0
	}
	if factor < 1 {
		factor = 1
	}
	return exponentialBackoff{base: base, factor: factor, max: max}
}

// ExponentialD returns the default exponential backoff strategy.
// Default values: base = 1 second, factor = 2, max = 30 seconds
func ExponentialD() Backoff {
	return Exponential(time.Second, 2, time.Second*30)
}

// Constant creates a constant backoff strategy that returns the same duration for each retry.
func Constant(dur time.Duration) Backoff {
	return constantBackoff{duration: dur}
}

// ConstantD returns the default constant backoff strategy.
// Default value: 3 seconds
func ConstantD() Backoff {
	return Constant(time.Second * 3)
}

// Jitter wraps b with symmetric jitter of up to ±fraction of each delay.
//
// fraction is clamped to [0, 0.1]. The result never drops below zero and never
// exceeds max when max is positive.
func Jitter(b Backoff, fraction float64, max time.Duration) Backoff {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > MaxJitter {
		fraction = MaxJitter
	}
	return jitterBackoff{inner: b, fraction: fraction, max: max, rand: rand.Float64}
}

// MaxJitter is the largest jitter fraction Jitter accepts.
const MaxJitter = 0.1

type constantBackoff struct {
	duration time.Duration
}

func (b constantBackoff) Next(attempt int64) time.Duration {
	return b.duration
}

type exponentialBackoff struct {
	base   time.Duration
	factor float64
	max    time.Duration
}

func (b exponentialBackoff) Next(attempt int64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(b.base) * math.Pow(b.factor, float64(attempt-1))
	if b.max > 0 && d > float64(b.max) {
		return b.max
	}
	if d >= math.MaxInt64 || math.IsInf(d, 0) || math.IsNaN(d) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

type linearBackoff struct {
	base time.Duration
	step time.Duration
}

func (b linearBackoff) Next(attempt int64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return b.base + time.Duration(attempt-1)*b.step
}

type randomBackoff struct {
	min time.Duration
	max time.Duration
}

func (b randomBackoff) Next(attempt int64) time.Duration {
	return time.Duration(float64(b.min) + float64(b.max-b.min)*rand.Float64())
}

type jitterBackoff struct {
	inner    Backoff
	fraction float64
	max      time.Duration
	rand     func() float64
}

func (b jitterBackoff) Next(attempt int64) time.Duration {
	d := b.inner.Next(attempt)
	if b.fraction == 0 || d <= 0 {
		return d
	}
	// rand() is in [0,1); map to [-1,1).
	offset := float64(d) * b.fraction * (2*b.rand() - 1)
	j := time.Duration(float64(d) + offset)
	if j < 0 {
		j = 0
	}
	if b.max > 0 && j > b.max {
		j = b.max
	}
	return j
}
