package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"sutext.github.io/tether/stats"
	"sutext.github.io/tether/xlog"
)

var (
	errDial  = errors.New("connection refused")
	errWrite = errors.New("broken pipe")
)

type fakeConn struct {
	in       chan []byte
	closed   chan struct{}
	once     sync.Once
	mu       sync.Mutex
	sent     []string
	writeOK  int // writes allowed before failing, negative means unlimited
	code     int
	reason   string
	readErr  error
	closedBy string
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:      make(chan []byte, 64),
		closed:  make(chan struct{}),
		writeOK: -1,
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case b := <-c.in:
		return b, nil
	case <-c.closed:
		c.mu.Lock()
		defer c.mu.Unlock()
		return nil, c.readErr
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	default:
	}
	if c.writeOK == 0 {
		return errWrite
	}
	if c.writeOK > 0 {
		c.writeOK--
	}
	c.sent = append(c.sent, string(data))
	return nil
}

func (c *fakeConn) Close(code int, reason string) error {
	c.mu.Lock()
	if c.closedBy == "" {
		c.closedBy = "local"
		c.code = code
		c.reason = reason
		c.readErr = &CloseError{Code: code, Reason: reason}
	}
	c.mu.Unlock()
	c.once.Do(func() { close(c.closed) })
	return nil
}

// drop simulates the peer going away.
func (c *fakeConn) drop() {
	c.mu.Lock()
	if c.closedBy == "" {
		c.closedBy = "remote"
		c.readErr = io.EOF
	}
	c.mu.Unlock()
	c.once.Do(func() { close(c.closed) })
}

func (c *fakeConn) push(frame string) {
	c.in <- []byte(frame)
}

func (c *fakeConn) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

func (c *fakeConn) CloseCode() (int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code, c.reason
}

// fakeDialer records every dial and hands out fakeConns.
type fakeDialer struct {
	mu      sync.Mutex
	dials   int
	conns   []*fakeConn
	fail    bool
	block   bool
	writeOK int
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{writeOK: -1}
}

func (d *fakeDialer) Dial(ctx context.Context, _ string, _ []string, _ http.Header) (Conn, error) {
	d.mu.Lock()
	d.dials++
	fail, block := d.fail, d.block
	d.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if fail {
		return nil, errDial
	}
	conn := newFakeConn()
	d.mu.Lock()
	conn.writeOK = d.writeOK
	d.conns = append(d.conns, conn)
	d.mu.Unlock()
	return conn, nil
}

func (d *fakeDialer) setFail(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = fail
}

func (d *fakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// recorder subscribes to every event a client emits.
type recorder struct {
	mu     sync.Mutex
	states []State
	errs   []error
	msgs   []*Message
}

func record(c *Client) *recorder {
	r := &recorder{}
	c.OnStateChange(func(s State) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.states = append(r.states, s)
	})
	c.OnError(func(err error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.errs = append(r.errs, err)
	})
	c.OnMessage(func(m *Message) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.msgs = append(r.msgs, m)
	})
	return r
}

func (r *recorder) States() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func (r *recorder) Messages() []*Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Message(nil), r.msgs...)
}

// Errors returns the recorded errors matching target, or all of them when
// target is nil.
func (r *recorder) Errors(target error) []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []error
	for _, err := range r.errs {
		if target == nil || errors.Is(err, target) {
			out = append(out, err)
		}
	}
	return out
}

// statsRecorder keeps the reconnect delays a client reports.
type statsRecorder struct {
	stats.Nop
	mu     sync.Mutex
	delays []time.Duration
	evicts int
}

func (s *statsRecorder) HandleConn(_ context.Context, st stats.ConnStats) {
	if r, ok := st.(*stats.ReconnectScheduled); ok {
		s.mu.Lock()
		s.delays = append(s.delays, r.Delay)
		s.mu.Unlock()
	}
}

func (s *statsRecorder) HandleMessage(_ context.Context, st stats.MessageStats) {
	if e, ok := st.(*stats.MessageEvicted); ok {
		s.mu.Lock()
		s.evicts += e.Count
		s.mu.Unlock()
	}
}

func (s *statsRecorder) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func newTestClient(t *testing.T, dialer Dialer, clock clockwork.Clock, options ...Option) *Client {
	t.Helper()
	base := []Option{
		WithDialer(dialer),
		WithClock(clock),
		WithLogger(xlog.Discard()),
		WithHeartbeat(0, 0),
	}
	c := New("ws://tether.test/stream", append(base, options...)...)
	t.Cleanup(c.Destroy)
	return c
}

func waitState(t *testing.T, c *Client, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State() == want }, waitFor, tick, "state never became %s, is %s", want, c.State())
}

func waitDials(t *testing.T, d *fakeDialer, want int) {
	t.Helper()
	require.Eventually(t, func() bool { return d.Dials() == want }, waitFor, tick, "dials = %d, want %d", d.Dials(), want)
}

func waitTimers(t *testing.T, clock *clockwork.FakeClock, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, n))
}

// connected builds a client and waits for its first connection to open.
func connected(t *testing.T, options ...Option) (*Client, *fakeDialer, *clockwork.FakeClock, *recorder) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	dialer := newFakeDialer()
	c := newTestClient(t, dialer, clock, options...)
	r := record(c)
	c.Connect()
	waitState(t, c, StateConnected)
	return c, dialer, clock, r
}
