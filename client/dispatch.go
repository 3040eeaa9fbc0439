package client

import (
	"fmt"

	"sutext.github.io/tether/xlog"
)

// OnMessage registers h for every inbound application message. The returned
// function removes h.
func (c *Client) OnMessage(h func(*Message)) func() {
	id := c.onMessage.Add(h)
	return func() { c.onMessage.Remove(id) }
}

// OnStateChange registers h for every state transition. h sees each
// transition once, in order.
func (c *Client) OnStateChange(h func(State)) func() {
	id := c.onState.Add(h)
	return func() { c.onState.Remove(id) }
}

// OnError registers h for transport failures, heartbeat timeouts and
// reconnect exhaustion. Errors are passed through unchanged; match them with
// errors.Is against the xerr codes.
func (c *Client) OnError(h func(error)) func() {
	id := c.onError.Add(h)
	return func() { c.onError.Remove(id) }
}

// dispatch queues task on the notification goroutine. Callers hold the lock,
// so the queue order is the event order.
func (c *Client) dispatch(task func()) {
	if err := c.notify.Push(task); err != nil {
		c.logger.Debug("notification dropped", xlog.Err(err))
	}
}

// emitState, emitError and emitMessage take the subscriber snapshot when the
// event happens, so a later subscriber never sees it. A subscriber removed
// before delivery is skipped.
func (c *Client) emitState(s State) {
	hs := c.onState.Entries()
	c.dispatch(func() {
		for _, h := range hs {
			if c.onState.Has(h.ID) {
				c.safely("state", func() { h.Value(s) })
			}
		}
	})
}

func (c *Client) emitError(err error) {
	hs := c.onError.Entries()
	c.dispatch(func() {
		for _, h := range hs {
			if c.onError.Has(h.ID) {
				c.safely("error", func() { h.Value(err) })
			}
		}
	})
}

func (c *Client) emitMessage(msg *Message) {
	hs := c.onMessage.Entries()
	c.dispatch(func() {
		for _, h := range hs {
			if c.onMessage.Has(h.ID) {
				c.safely("message", func() { h.Value(msg) })
			}
		}
	})
}

// safely runs one handler, keeping a panic from reaching the others.
func (c *Client) safely(kind string, f func()) {
	c.handling.Add(1)
	defer func() {
		c.handling.Add(-1)
		if r := recover(); r != nil {
			c.logger.Error("handler panicked", xlog.Str("handler", kind), xlog.Str("panic", fmt.Sprint(r)))
		}
	}()
	f()
}
