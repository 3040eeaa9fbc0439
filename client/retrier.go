package client

import (
	"time"

	"github.com/jonboulle/clockwork"
	"sutext.github.io/tether/backoff"
)

// Retrier decides whether and when to reconnect. Like the keepalive monitor
// it is guarded by the client lock; its timer re-enters through exec.
type Retrier struct {
	limit   uint
	count   uint
	backoff backoff.Backoff
	filter  func(error) bool
	clock   clockwork.Clock
	exec    func(func())
	timer   clockwork.Timer
	seq     uint64
}

// NewRetrier creates a retrier allowing limit consecutive attempts. A limit of
// zero never gives up.
func NewRetrier(limit uint, b backoff.Backoff, clock clockwork.Clock, exec func(func())) *Retrier {
	return &Retrier{
		limit:   limit,
		backoff: b,
		clock:   clock,
		exec:    exec,
	}
}

// Filter makes the retrier refuse reasons for which f reports true.
func (r *Retrier) Filter(f func(error) bool) *Retrier {
	r.filter = f
	return r
}

// next consumes one attempt and returns its delay. ok is false when the
// reason is filtered or the ceiling is reached.
func (r *Retrier) next(reason error) (time.Duration, bool) {
	if r.filter != nil && r.filter(reason) {
		return 0, false
	}
	if r.exhausted() {
		return 0, false
	}
	r.count++
	return r.backoff.Next(int64(r.count)), true
}

func (r *Retrier) exhausted() bool {
	return r.limit > 0 && r.count >= r.limit
}

// retry runs fn after delay unless cancel or another retry happens first.
func (r *Retrier) retry(delay time.Duration, fn func()) {
	r.cancel()
	seq := r.seq
	r.timer = r.clock.AfterFunc(delay, func() {
		r.exec(func() {
			if seq != r.seq {
				return
			}
			r.timer = nil
			fn()
		})
	})
}

func (r *Retrier) cancel() {
	r.seq++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Retrier) pending() bool {
	return r.timer != nil
}

// reset forgets every consumed attempt.
func (r *Retrier) reset() {
	r.count = 0
}

func (r *Retrier) Count() uint {
	return r.count
}
