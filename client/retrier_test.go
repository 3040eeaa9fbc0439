package client

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sutext.github.io/tether/backoff"
)

type locked struct {
	mu sync.Mutex
}

func (l *locked) exec(f func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	f()
}

func TestRetrierLimit(t *testing.T) {
	r := NewRetrier(3, backoff.Exponential(time.Second, 2, 10*time.Second), clockwork.NewFakeClock(), nil)
	var delays []time.Duration
	for {
		d, ok := r.next(nil)
		if !ok {
			break
		}
		delays = append(delays, d)
	}
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, delays)
	assert.True(t, r.exhausted())
	assert.EqualValues(t, 3, r.Count())

	r.reset()
	assert.False(t, r.exhausted())
	d, ok := r.next(nil)
	assert.True(t, ok)
	assert.Equal(t, time.Second, d)
}

func TestRetrierUnbounded(t *testing.T) {
	r := NewRetrier(0, backoff.Constant(time.Second), clockwork.NewFakeClock(), nil)
	for range 1000 {
		_, ok := r.next(nil)
		require.True(t, ok)
	}
	assert.False(t, r.exhausted())
}

func TestRetrierFilter(t *testing.T) {
	fatal := errors.New("unauthorized")
	r := NewRetrier(0, backoff.Constant(time.Second), clockwork.NewFakeClock(), nil).Filter(func(err error) bool {
		return errors.Is(err, fatal)
	})
	_, ok := r.next(fatal)
	assert.False(t, ok)
	assert.False(t, r.exhausted())
	_, ok = r.next(errors.New("reset by peer"))
	assert.True(t, ok)
}

func TestRetrierCancel(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := &locked{}
	r := NewRetrier(0, backoff.Constant(time.Second), clock, l.exec)
	var fired int
	l.exec(func() { r.retry(time.Second, func() { fired++ }) })
	waitTimers(t, clock, 1)
	l.exec(r.cancel)
	clock.Advance(time.Hour)
	l.exec(func() {
		assert.Zero(t, fired)
		assert.False(t, r.pending())
	})
}

func TestRetrierRetryReplacesPending(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := &locked{}
	r := NewRetrier(0, backoff.Constant(time.Second), clock, l.exec)
	done := make(chan string, 2)
	l.exec(func() {
		r.retry(time.Second, func() { done <- "first" })
		r.retry(2*time.Second, func() { done <- "second" })
	})
	clock.Advance(2 * time.Second)
	select {
	case got := <-done:
		assert.Equal(t, "second", got)
	case <-time.After(waitFor):
		t.Fatal("retry never fired")
	}
	assert.Never(t, func() bool { return len(done) > 0 }, 50*time.Millisecond, tick)
}
