package client

import (
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"sutext.github.io/tether/backoff"
	"sutext.github.io/tether/outbox"
	"sutext.github.io/tether/stats"
	"sutext.github.io/tether/xlog"
)

type Options struct {
	protocols         []string
	header            http.Header
	autoReconnect     bool
	reconnectDelay    time.Duration
	maxReconnectDelay time.Duration
	multiplier        float64
	jitter            float64
	maxAttempts       uint
	backoff           backoff.Backoff
	retryFilter       func(error) bool
	onReconnect       func(attempt uint)
	pingInterval      time.Duration
	pingTimeout       time.Duration
	queueMessages     bool
	maxQueueSize      int
	outbox            outbox.Store
	decodePolicy      DecodePolicy
	dialer            Dialer
	dialTimeout       time.Duration
	writeTimeout      time.Duration
	clock             clockwork.Clock
	logger            *xlog.Logger
	debug             bool
	statsHandler      stats.Handler
}

type Option struct {
	f func(*Options)
}

func newOptions(options ...Option) *Options {
	opts := &Options{
		autoReconnect:     true,
		reconnectDelay:    time.Second,
		maxReconnectDelay: 30 * time.Second,
		multiplier:        2,
		pingInterval:      30 * time.Second,
		pingTimeout:       5 * time.Second,
		queueMessages:     true,
		maxQueueSize:      outbox.DefaultCapacity,
		dialTimeout:       10 * time.Second,
		writeTimeout:      10 * time.Second,
	}
	for _, o := range options {
		o.f(opts)
	}
	if opts.clock == nil {
		opts.clock = clockwork.NewRealClock()
	}
	if opts.logger == nil {
		opts.logger = xlog.Default()
	}
	if opts.debug {
		opts.logger = opts.logger.WithLevel(xlog.LevelDebug)
	}
	if opts.statsHandler == nil {
		opts.statsHandler = stats.Nop{}
	}
	if opts.outbox == nil {
		opts.outbox = outbox.NewMemory(opts.maxQueueSize)
	}
	if opts.backoff == nil {
		opts.backoff = backoff.Exponential(opts.reconnectDelay, opts.multiplier, opts.maxReconnectDelay)
		if opts.jitter > 0 {
			opts.backoff = backoff.Jitter(opts.backoff, opts.jitter, opts.maxReconnectDelay)
		}
	}
	return opts
}

// WithProtocols sets the sub-protocols offered during the handshake.
func WithProtocols(protocols ...string) Option {
	return Option{f: func(o *Options) {
		o.protocols = protocols
	}}
}

// WithHeader sets static headers sent with every handshake.
func WithHeader(header http.Header) Option {
	return Option{f: func(o *Options) {
		o.header = header
	}}
}

func WithAutoReconnect(enabled bool) Option {
	return Option{f: func(o *Options) {
		o.autoReconnect = enabled
	}}
}

// WithReconnectDelay sets the delay before the first reconnect attempt.
func WithReconnectDelay(d time.Duration) Option {
	return Option{f: func(o *Options) {
		o.reconnectDelay = d
	}}
}

// WithMaxReconnectDelay caps the reconnect delay.
func WithMaxReconnectDelay(d time.Duration) Option {
	return Option{f: func(o *Options) {
		o.maxReconnectDelay = d
	}}
}

// WithBackoffMultiplier sets the growth factor between attempts. Values below
// one are treated as one.
func WithBackoffMultiplier(f float64) Option {
	return Option{f: func(o *Options) {
		o.multiplier = f
	}}
}

// WithJitter randomizes each delay by up to ±fraction of itself. The fraction
// is clamped to backoff.MaxJitter.
func WithJitter(fraction float64) Option {
	return Option{f: func(o *Options) {
		o.jitter = fraction
	}}
}

// WithMaxReconnectAttempts bounds consecutive reconnect attempts. Zero means
// unbounded.
func WithMaxReconnectAttempts(n uint) Option {
	return Option{f: func(o *Options) {
		o.maxAttempts = n
	}}
}

// WithBackoff replaces the delay policy built from the reconnect delay,
// multiplier, ceiling and jitter options.
func WithBackoff(b backoff.Backoff) Option {
	return Option{f: func(o *Options) {
		o.backoff = b
	}}
}

// WithRetryFilter skips reconnecting when f reports true for the close reason.
func WithRetryFilter(f func(error) bool) Option {
	return Option{f: func(o *Options) {
		o.retryFilter = f
	}}
}

// WithOnReconnect registers a callback invoked with the attempt number each
// time a reconnect is scheduled. It runs on the dispatch goroutine.
func WithOnReconnect(f func(attempt uint)) Option {
	return Option{f: func(o *Options) {
		o.onReconnect = f
	}}
}

// WithHeartbeat sets the ping interval and the pong timeout. An interval of
// zero disables heartbeats.
func WithHeartbeat(interval, timeout time.Duration) Option {
	return Option{f: func(o *Options) {
		o.pingInterval = interval
		o.pingTimeout = timeout
	}}
}

// WithQueueMessages controls whether Send buffers while disconnected.
func WithQueueMessages(enabled bool) Option {
	return Option{f: func(o *Options) {
		o.queueMessages = enabled
	}}
}

func WithMaxQueueSize(n int) Option {
	return Option{f: func(o *Options) {
		o.maxQueueSize = n
	}}
}

// WithOutbox stores buffered messages in s instead of memory. The store's own
// capacity applies and WithMaxQueueSize is ignored.
func WithOutbox(s outbox.Store) Option {
	return Option{f: func(o *Options) {
		o.outbox = s
	}}
}

func WithDecodePolicy(p DecodePolicy) Option {
	return Option{f: func(o *Options) {
		o.decodePolicy = p
	}}
}

// WithDialer overrides the transport selected from the URL scheme.
func WithDialer(d Dialer) Option {
	return Option{f: func(o *Options) {
		o.dialer = d
	}}
}

func WithDialTimeout(d time.Duration) Option {
	return Option{f: func(o *Options) {
		o.dialTimeout = d
	}}
}

func WithWriteTimeout(d time.Duration) Option {
	return Option{f: func(o *Options) {
		o.writeTimeout = d
	}}
}

// WithClock sets the time source for every timer the client arms.
func WithClock(c clockwork.Clock) Option {
	return Option{f: func(o *Options) {
		o.clock = c
	}}
}

func WithLogger(l *xlog.Logger) Option {
	return Option{f: func(o *Options) {
		o.logger = l
	}}
}

// WithDebug lowers the logger to debug level.
func WithDebug(debug bool) Option {
	return Option{f: func(o *Options) {
		o.debug = debug
	}}
}

func WithStatsHandler(h stats.Handler) Option {
	return Option{f: func(o *Options) {
		o.statsHandler = h
	}}
}
