// Package stats defines the instrumentation hooks a client reports through.
//
// Handlers are invoked synchronously while the client holds its internal lock,
// so implementations must be quick and must not call back into the client.
package stats

import (
	"context"
	"time"
)

type ConnInfo struct {
	SessionID string // per-client id, stable across reconnects
	URL       string // target address
}
type ConnStats interface {
	isConnStats()
}

// ConnBegin is reported when a dial starts.
type ConnBegin struct {
	Attempt   uint // reconnect attempt that triggered the dial, 0 for a caller Connect
	BeginTime time.Time
}

func (*ConnBegin) isConnStats() {}

// ConnEnd is reported when a dial finishes, successfully or not.
type ConnEnd struct {
	Attempt   uint
	Error     error
	BeginTime time.Time
	EndTime   time.Time
}

func (*ConnEnd) isConnStats() {}

// ConnClose is reported when an open or opening transport goes away.
type ConnClose struct {
	Intentional bool
	Reason      error
}

func (*ConnClose) isConnStats() {}

// ReconnectScheduled is reported each time a reconnect timer is armed.
type ReconnectScheduled struct {
	Attempt uint
	Delay   time.Duration
}

func (*ReconnectScheduled) isConnStats() {}

// ReconnectExhausted is reported once when the attempt ceiling is reached.
type ReconnectExhausted struct {
	Attempts uint
}

func (*ReconnectExhausted) isConnStats() {}

type MessageStats interface {
	isMessageStats()
}

// MessageIn is reported for every inbound application frame.
type MessageIn struct {
	Size      int
	Malformed bool
	Dropped   bool
}

func (*MessageIn) isMessageStats() {}

// MessageOut is reported for every outbound application frame.
type MessageOut struct {
	Size    int
	Queued  bool // true when buffered instead of written
	Flushed bool // true when written from the outbox
	Error   error
}

func (*MessageOut) isMessageStats() {}

// MessageEvicted is reported when a full outbox drops old entries.
type MessageEvicted struct {
	Count int
}

func (*MessageEvicted) isMessageStats() {}

type HeartbeatStats interface {
	isHeartbeatStats()
}

type Ping struct{}

func (*Ping) isHeartbeatStats() {}

type Pong struct {
	RTT time.Duration
}

func (*Pong) isHeartbeatStats() {}

type HeartbeatTimeout struct {
	Timeout time.Duration
}

func (*HeartbeatTimeout) isHeartbeatStats() {}

type Handler interface {
	TagConn(ctx context.Context, info *ConnInfo) context.Context
	HandleConn(ctx context.Context, stats ConnStats)
	HandleMessage(ctx context.Context, stats MessageStats)
	HandleHeartbeat(ctx context.Context, stats HeartbeatStats)
}

// Nop is a Handler that ignores everything.
type Nop struct{}

func (Nop) TagConn(ctx context.Context, _ *ConnInfo) context.Context { return ctx }
func (Nop) HandleConn(context.Context, ConnStats)                    {}
func (Nop) HandleMessage(context.Context, MessageStats)              {}
func (Nop) HandleHeartbeat(context.Context, HeartbeatStats)          {}

type multi []Handler

// Multi reports to every handler in order.
func Multi(handlers ...Handler) Handler {
	switch len(handlers) {
	case 0:
		return Nop{}
	case 1:
		return handlers[0]
	}
	return multi(handlers)
}

func (m multi) TagConn(ctx context.Context, info *ConnInfo) context.Context {
	for _, h := range m {
		ctx = h.TagConn(ctx, info)
	}
	return ctx
}
func (m multi) HandleConn(ctx context.Context, s ConnStats) {
	for _, h := range m {
		h.HandleConn(ctx, s)
	}
}
func (m multi) HandleMessage(ctx context.Context, s MessageStats) {
	for _, h := range m {
		h.HandleMessage(ctx, s)
	}
}
func (m multi) HandleHeartbeat(ctx context.Context, s HeartbeatStats) {
	for _, h := range m {
		h.HandleHeartbeat(ctx, s)
	}
}
