// Package client keeps a message-stream connection alive across network
// failures: it reconnects with backoff, probes liveness with heartbeats and
// buffers outbound messages while the transport is down.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"sutext.github.io/tether/internal/keepalive"
	"sutext.github.io/tether/internal/queue"
	"sutext.github.io/tether/internal/safe"
	"sutext.github.io/tether/outbox"
	"sutext.github.io/tether/stats"
	"sutext.github.io/tether/xerr"
	"sutext.github.io/tether/xlog"
)

// Client is safe for concurrent use. Handlers registered with OnMessage,
// OnStateChange and OnError run one at a time on a dedicated goroutine, in the
// order the events occurred, and may call any Client method.
type Client struct {
	mu          sync.Mutex
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	opts        *Options
	url         string
	sessionID   string
	logger      *xlog.Logger
	clock       clockwork.Clock
	dialer      Dialer
	dialErr     error
	state       State
	conn        Conn
	gen         uint64
	dialing     bool
	cancelDial  context.CancelFunc
	intentional bool
	destroyed   bool
	retrier     *Retrier
	keepalive   *keepalive.KeepAlive
	outbox      outbox.Store
	notify      *queue.Queue
	handling    atomic.Int32
	onMessage   *safe.Registry[func(*Message)]
	onState     *safe.Registry[func(State)]
	onError     *safe.Registry[func(error)]
	stats       stats.Handler
	statsCtx    context.Context
}

// New creates a disconnected client for address. Nothing is dialed until
// Connect is called.
func New(address string, options ...Option) *Client {
	opts := newOptions(options...)
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		ctx:       ctx,
		cancel:    cancel,
		opts:      opts,
		url:       address,
		sessionID: uuid.NewString(),
		clock:     opts.clock,
		dialer:    opts.dialer,
		state:     StateDisconnected,
		outbox:    opts.outbox,
		notify:    queue.New(),
		onMessage: safe.NewRegistry[func(*Message)](),
		onState:   safe.NewRegistry[func(State)](),
		onError:   safe.NewRegistry[func(error)](),
		stats:     opts.statsHandler,
	}
	c.logger = opts.logger.With("session", c.sessionID, "url", address)
	if c.dialer == nil {
		c.dialer, c.dialErr = NewDialer(address, opts.writeTimeout)
	}
	c.statsCtx = c.stats.TagConn(ctx, &stats.ConnInfo{SessionID: c.sessionID, URL: address})
	c.retrier = NewRetrier(opts.maxAttempts, opts.backoff, c.clock, c.exec).Filter(opts.retryFilter)
	c.keepalive = keepalive.New(c.clock, opts.pingInterval, opts.pingTimeout, c.exec)
	c.keepalive.PingFunc(func() {
		c.stats.HandleHeartbeat(c.statsCtx, &stats.Ping{})
		if err := c.write([]byte(PingPayload)); err != nil {
			c.logger.Warn("send ping failed", xlog.Err(err))
		}
	})
	c.keepalive.PongFunc(func(rtt time.Duration) {
		c.stats.HandleHeartbeat(c.statsCtx, &stats.Pong{RTT: rtt})
		c.logger.Debug("pong", xlog.Duration("rtt", rtt))
	})
	c.keepalive.TimeoutFunc(c.heartbeatTimeout)
	return c
}

// exec runs f under the client lock. Timer and transport goroutines enter
// the state machine only through it.
func (c *Client) exec(f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f()
}

// Connect starts dialing in the background. It returns at once; progress is
// reported through OnStateChange and OnError. Calling Connect while a dial is
// in flight or the connection is open does nothing.
func (c *Client) Connect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		c.logger.Warn("connect on destroyed client")
		return
	}
	if (c.state == StateConnecting || c.state == StateConnected) && (c.dialing || c.conn != nil) {
		c.logger.Debug("already connecting or connected", xlog.State(c.state.String()))
		return
	}
	switch c.state {
	case StateDisconnected, StateError:
		c.retrier.reset()
	}
	if c.retrier.pending() {
		c.logger.Debug("reconnect timer replaced by connect", xlog.Attempt(c.retrier.Count()))
	}
	c.retrier.cancel()
	c.dial(c.retrier.Count())
}

func (c *Client) dial(attempt uint) {
	c.intentional = false
	c.gen++
	gen := c.gen
	c.setState(StateConnecting)
	begin := c.clock.Now()
	c.stats.HandleConn(c.statsCtx, &stats.ConnBegin{Attempt: attempt, BeginTime: begin})
	c.logger.Debug("dialing", xlog.Attempt(attempt))
	if c.dialErr != nil {
		c.stats.HandleConn(c.statsCtx, &stats.ConnEnd{Attempt: attempt, Error: c.dialErr, BeginTime: begin, EndTime: begin})
		c.handleError(gen, c.dialErr)
		c.handleClose(gen, c.dialErr)
		return
	}
	var ctx context.Context
	var cancel context.CancelFunc
	if c.opts.dialTimeout > 0 {
		ctx, cancel = context.WithTimeout(c.ctx, c.opts.dialTimeout)
	} else {
		ctx, cancel = context.WithCancel(c.ctx)
	}
	c.dialing = true
	c.cancelDial = cancel
	dialer := c.dialer
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		conn, err := dialer.Dial(ctx, c.url, c.opts.protocols, c.opts.header)
		cancel()
		c.exec(func() {
			c.stats.HandleConn(c.statsCtx, &stats.ConnEnd{Attempt: attempt, Error: err, BeginTime: begin, EndTime: c.clock.Now()})
			if gen != c.gen {
				if conn != nil {
					_ = conn.Close(CloseGoingAway, "stale connection")
				}
				return
			}
			c.dialing = false
			c.cancelDial = nil
			if err != nil {
				c.logger.Error("dial failed", xlog.Attempt(attempt), xlog.Err(err))
				c.handleError(gen, err)
				c.handleClose(gen, err)
				return
			}
			c.handleOpen(gen, conn)
		})
	}()
}

func (c *Client) handleOpen(gen uint64, conn Conn) {
	if gen != c.gen {
		return
	}
	attempts := c.retrier.Count()
	c.conn = conn
	c.retrier.reset()
	c.setState(StateConnected)
	c.logger.Info("connected", xlog.Attempt(attempts))
	c.keepalive.Start()
	if c.keepalive.Running() {
		c.logger.Debug("heartbeat started", xlog.Duration("interval", c.opts.pingInterval), xlog.Duration("timeout", c.opts.pingTimeout))
	}
	c.flush()
	c.wg.Add(1)
	go c.recv(gen, conn)
}

func (c *Client) recv(gen uint64, conn Conn) {
	defer c.wg.Done()
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.exec(func() {
				if !isCleanClose(err) {
					c.handleError(gen, err)
				}
				c.handleClose(gen, err)
			})
			return
		}
		c.exec(func() {
			c.handleMessage(gen, data)
		})
	}
}

func isCleanClose(err error) bool {
	var ce *CloseError
	return errors.As(err, &ce) || errors.Is(err, io.EOF)
}

func (c *Client) handleError(gen uint64, err error) {
	if gen != c.gen {
		return
	}
	c.emitError(err)
}

func (c *Client) handleMessage(gen uint64, data []byte) {
	if gen != c.gen {
		return
	}
	switch string(data) {
	case PingPayload:
		if err := c.write([]byte(PongPayload)); err != nil {
			c.logger.Warn("send pong failed", xlog.Err(err))
		}
		return
	case PongPayload:
		if !c.keepalive.Waiting() {
			c.logger.Debug("unsolicited pong")
		}
		c.keepalive.HandlePong()
		return
	}
	msg, err := decode(data)
	if err != nil {
		if c.opts.decodePolicy == DecodeDrop {
			c.logger.Warn("dropping malformed message", xlog.Int("size", len(data)), xlog.Err(err))
			c.stats.HandleMessage(c.statsCtx, &stats.MessageIn{Size: len(data), Malformed: true, Dropped: true})
			return
		}
		c.logger.Debug("wrapping malformed message", xlog.Int("size", len(data)), xlog.Err(err))
		c.stats.HandleMessage(c.statsCtx, &stats.MessageIn{Size: len(data), Malformed: true})
		msg = wrapRaw(data)
	} else {
		c.stats.HandleMessage(c.statsCtx, &stats.MessageIn{Size: len(data)})
	}
	c.emitMessage(msg)
}

// handleClose runs when the transport of generation gen went away, whether
// it was open or still dialing.
func (c *Client) handleClose(gen uint64, reason error) {
	if gen != c.gen {
		return
	}
	c.gen++
	c.keepalive.Stop()
	opened := c.state == StateConnected
	if c.conn != nil {
		_ = c.conn.Close(CloseGoingAway, "")
		c.conn = nil
	}
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	c.dialing = false
	c.stats.HandleConn(c.statsCtx, &stats.ConnClose{Intentional: c.intentional, Reason: reason})
	if c.intentional {
		c.setState(StateDisconnected)
		return
	}
	if opened {
		c.logger.Warn("connection lost", xlog.Err(reason))
	}
	if !c.opts.autoReconnect {
		if opened {
			c.setState(StateDisconnected)
		} else {
			c.setState(StateError)
		}
		return
	}
	delay, ok := c.retrier.next(reason)
	if !ok {
		c.setState(StateDisconnected)
		if c.retrier.exhausted() {
			attempts := c.retrier.Count()
			c.logger.Error("giving up reconnecting", xlog.Attempt(attempts))
			c.stats.HandleConn(c.statsCtx, &stats.ReconnectExhausted{Attempts: attempts})
			c.emitError(fmt.Errorf("%w after %d attempts, last error: %v", xerr.ReconnectExhausted, attempts, reason))
		} else {
			c.logger.Info("not reconnecting", xlog.Err(reason))
		}
		return
	}
	attempt := c.retrier.Count()
	c.setState(StateReconnecting)
	c.logger.Info("reconnect scheduled", xlog.Attempt(attempt), xlog.Duration("delay", delay))
	c.stats.HandleConn(c.statsCtx, &stats.ReconnectScheduled{Attempt: attempt, Delay: delay})
	if f := c.opts.onReconnect; f != nil {
		c.dispatch(func() {
			c.safely("reconnect", func() { f(attempt) })
		})
	}
	c.retrier.retry(delay, func() {
		c.dial(attempt)
	})
}

func (c *Client) heartbeatTimeout() {
	c.logger.Warn("heartbeat timeout", xlog.Duration("timeout", c.opts.pingTimeout))
	c.stats.HandleHeartbeat(c.statsCtx, &stats.HeartbeatTimeout{Timeout: c.opts.pingTimeout})
	if c.conn != nil {
		if err := c.conn.Close(CloseHeartbeatTimeout, "Heartbeat timeout"); err != nil {
			c.logger.Debug("close after heartbeat timeout", xlog.Err(err))
		}
		c.conn = nil
	}
	err := fmt.Errorf("%w: no pong within %s", xerr.HeartbeatTimeout, c.opts.pingTimeout)
	c.emitError(err)
	c.handleClose(c.gen, err)
}

// Disconnect closes the connection with a normal closure, cancels every
// pending timer and clears the outbox. No reconnect follows until Connect is
// called again. It is safe to call in any state.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnect(CloseNormal, "Normal closure")
}

func (c *Client) disconnect(code int, reason string) {
	c.intentional = true
	c.gen++
	if c.retrier.pending() {
		c.logger.Debug("pending reconnect cancelled", xlog.Attempt(c.retrier.Count()))
	}
	c.retrier.cancel()
	c.keepalive.Stop()
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	c.dialing = false
	if c.conn != nil {
		if err := c.conn.Close(code, reason); err != nil {
			c.logger.Debug("close transport", xlog.Err(err))
		}
		c.conn = nil
	}
	c.clearOutbox()
	if c.state != StateDisconnected {
		c.stats.HandleConn(c.statsCtx, &stats.ConnClose{Intentional: true})
		c.logger.Info("disconnected")
	}
	c.setState(StateDisconnected)
}

// Send transmits message, or buffers it while the connection is down.
//
// message may be a string, []byte or json.RawMessage sent verbatim, a Message,
// or any value whose JSON encoding is an object with a non-empty "type" field.
// Send fails when message cannot be encoded, after Destroy, or when queueing
// is disabled and the message cannot be written now. A write failure with
// queueing disabled is also reported through OnError.
func (c *Client) Send(message any) error {
	frame, err := encode(message)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return xerr.ClientDestroyed
	}
	if c.state == StateConnected && c.conn != nil {
		err := c.conn.WriteMessage([]byte(frame))
		c.stats.HandleMessage(c.statsCtx, &stats.MessageOut{Size: len(frame), Error: err})
		if err == nil {
			c.logger.Debug("sent", xlog.Int("size", len(frame)))
			return nil
		}
		if !c.opts.queueMessages {
			c.logger.Error("send failed", xlog.Err(err))
			err = fmt.Errorf("send: %w", err)
			c.emitError(err)
			return err
		}
		c.logger.Warn("send failed, queueing", xlog.Err(err))
		c.enqueue(frame)
		return nil
	}
	if !c.opts.queueMessages {
		return fmt.Errorf("%w: state is %s", xerr.ConnectionIsClosed, c.state)
	}
	c.enqueue(frame)
	return nil
}

func (c *Client) write(data []byte) error {
	if c.conn == nil {
		return xerr.ConnectionIsClosed
	}
	return c.conn.WriteMessage(data)
}

func (c *Client) enqueue(frame string) {
	evicted, err := c.outbox.Push(c.ctx, frame)
	if err != nil {
		c.logger.Error("queue message failed", xlog.Err(err))
		c.emitError(fmt.Errorf("%w: %w", xerr.OutboxUnavailable, err))
		return
	}
	if evicted > 0 {
		c.logger.Warn("outbox full, dropped oldest", xlog.Int("dropped", evicted), xlog.Int("capacity", c.outbox.Cap()))
		c.stats.HandleMessage(c.statsCtx, &stats.MessageEvicted{Count: evicted})
	}
	c.stats.HandleMessage(c.statsCtx, &stats.MessageOut{Size: len(frame), Queued: true})
}

// flush writes the outbox in order and stops at the first failure, putting the
// failed message back at the head.
func (c *Client) flush() {
	flushed := 0
	for c.conn != nil {
		frame, ok, err := c.outbox.Pop(c.ctx)
		if err != nil {
			c.logger.Error("read outbox failed", xlog.Err(err))
			c.emitError(fmt.Errorf("%w: %w", xerr.OutboxUnavailable, err))
			break
		}
		if !ok {
			break
		}
		if err := c.conn.WriteMessage([]byte(frame)); err != nil {
			c.stats.HandleMessage(c.statsCtx, &stats.MessageOut{Size: len(frame), Flushed: true, Error: err})
			c.logger.Warn("flush interrupted", xlog.Int("flushed", flushed), xlog.Err(err))
			if err := c.outbox.Requeue(c.ctx, frame); err != nil {
				c.logger.Error("requeue failed", xlog.Err(err))
			}
			break
		}
		flushed++
		c.stats.HandleMessage(c.statsCtx, &stats.MessageOut{Size: len(frame), Flushed: true})
	}
	if flushed > 0 {
		c.logger.Info("flushed outbox", xlog.Int("count", flushed))
	}
}

func (c *Client) clearOutbox() {
	if err := c.outbox.Clear(c.ctx); err != nil {
		c.logger.Error("clear outbox failed", xlog.Err(err))
	}
}

func (c *Client) setState(s State) {
	if c.state == s {
		return
	}
	c.logger.Debug("state change", xlog.Str("from", c.state.String()), xlog.Str("to", s.String()))
	c.state = s
	c.emitState(s)
}

// Destroy disconnects, drops every handler and the outbox, and stops the
// dispatch goroutine. Handlers see the final transition to Disconnected
// before Destroy returns, unless Destroy is called from a handler. The client
// cannot be used afterwards.
func (c *Client) Destroy() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		c.awaitNotify()
		return
	}
	c.disconnect(CloseNormal, "Normal closure")
	c.destroyed = true
	c.cancel()
	c.dispatch(func() {
		c.onMessage.Clear()
		c.onState.Clear()
		c.onError.Clear()
	})
	c.mu.Unlock()
	c.notify.Close()
	c.awaitNotify()
	c.wg.Wait()
}

// awaitNotify waits for queued notifications to finish. From inside a handler
// it returns at once, since the dispatch goroutine is the caller.
func (c *Client) awaitNotify() {
	if c.handling.Load() == 0 {
		<-c.notify.Done()
	}
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// ReconnectAttempts is the number of reconnects scheduled since the last
// successful open.
func (c *Client) ReconnectAttempts() uint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retrier.Count()
}

// QueueSize is the number of buffered outbound messages.
func (c *Client) QueueSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, err := c.outbox.Len(c.ctx)
	if err != nil {
		c.logger.Error("outbox length", xlog.Err(err))
		return 0
	}
	return n
}

func (c *Client) ClearQueue() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearOutbox()
}

// LastPong is when the peer last answered a heartbeat, or when the current
// connection opened if it has not answered yet.
func (c *Client) LastPong() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keepalive.LastPong()
}

func (c *Client) SessionID() string {
	return c.sessionID
}

func (c *Client) URL() string {
	return c.url
}
