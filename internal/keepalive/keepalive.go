// Package keepalive probes an open connection with ping frames and reports
// when the peer stops answering.
//
// A KeepAlive has no lock of its own. Every method must be called while the
// owner's lock is held, and timer callbacks re-enter through the exec function
// the owner supplies, which acquires that same lock.
package keepalive

import (
	"time"

	"github.com/jonboulle/clockwork"
)

type KeepAlive struct {
	clock       clockwork.Clock
	exec        func(func())
	interval    time.Duration
	timeout     time.Duration
	gen         uint64
	ticker      clockwork.Timer
	deadline    clockwork.Timer
	pingFunc    func()
	timeoutFunc func()
	pongFunc    func(rtt time.Duration)
	pingTime    time.Time
	lastPong    time.Time
}

// New creates a monitor. An interval of zero or less disables it.
func New(clock clockwork.Clock, interval, timeout time.Duration, exec func(func())) *KeepAlive {
	return &KeepAlive{
		clock:    clock,
		exec:     exec,
		interval: interval,
		timeout:  timeout,
	}
}

func (k *KeepAlive) PingFunc(f func()) {
	k.pingFunc = f
}
func (k *KeepAlive) TimeoutFunc(f func()) {
	k.timeoutFunc = f
}
func (k *KeepAlive) PongFunc(f func(rtt time.Duration)) {
	k.pongFunc = f
}

func (k *KeepAlive) Enabled() bool {
	return k.interval > 0
}

// Start arms the ping interval, replacing any timers from an earlier Start.
func (k *KeepAlive) Start() {
	k.Stop()
	if !k.Enabled() {
		return
	}
	k.lastPong = k.clock.Now()
	k.arm(k.gen)
}

// Stop cancels every pending timer. It is safe to call repeatedly.
func (k *KeepAlive) Stop() {
	k.gen++
	if k.ticker != nil {
		k.ticker.Stop()
		k.ticker = nil
	}
	k.disarm()
}

func (k *KeepAlive) Running() bool {
	return k.ticker != nil
}

// Waiting reports whether a ping is outstanding.
func (k *KeepAlive) Waiting() bool {
	return k.deadline != nil
}

// HandlePong records liveness and cancels the outstanding timeout, if any.
func (k *KeepAlive) HandlePong() {
	now := k.clock.Now()
	k.lastPong = now
	if k.deadline == nil {
		return
	}
	rtt := now.Sub(k.pingTime)
	k.disarm()
	if k.pongFunc != nil {
		k.pongFunc(rtt)
	}
}

// LastPong is the time of the last pong, or of Start when none arrived yet.
func (k *KeepAlive) LastPong() time.Time {
	return k.lastPong
}

func (k *KeepAlive) arm(gen uint64) {
	k.ticker = k.clock.AfterFunc(k.interval, func() {
		k.exec(func() { k.tick(gen) })
	})
}

func (k *KeepAlive) disarm() {
	if k.deadline != nil {
		k.deadline.Stop()
		k.deadline = nil
	}
}

func (k *KeepAlive) tick(gen uint64) {
	if gen != k.gen {
		return
	}
	k.arm(gen)
	if k.deadline != nil {
		// previous ping still unanswered; its timeout is already running
		return
	}
	k.pingTime = k.clock.Now()
	k.deadline = k.clock.AfterFunc(k.timeout, func() {
		k.exec(func() { k.expire(gen) })
	})
	if k.pingFunc != nil {
		k.pingFunc()
	}
}

func (k *KeepAlive) expire(gen uint64) {
	if gen != k.gen || k.deadline == nil {
		return
	}
	k.Stop()
	if k.timeoutFunc != nil {
		k.timeoutFunc()
	}
}
