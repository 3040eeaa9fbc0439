package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"sutext.github.io/tether/stats"
	"sutext.github.io/tether/xlog"
)

// promStats exposes client activity as Prometheus collectors.
type promStats struct {
	stats.Nop
	states      *prometheus.CounterVec
	messages    *prometheus.CounterVec
	dialSeconds *prometheus.HistogramVec
	reconnects  prometheus.Counter
	evicted     prometheus.Counter
	rttSeconds  prometheus.Histogram
}

func newPromStats(reg prometheus.Registerer) *promStats {
	p := &promStats{
		states: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tether_connection_events_total",
				Help: "Connection lifecycle events",
			},
			[]string{"event"},
		),
		messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tether_messages_total",
				Help: "Application frames by direction and outcome",
			},
			[]string{"direction", "outcome"},
		),
		dialSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tether_dial_duration_seconds",
				Help:    "Duration of transport dials",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tether_reconnects_scheduled_total",
			Help: "Reconnect attempts scheduled",
		}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tether_outbox_evicted_total",
			Help: "Queued messages dropped because the outbox was full",
		}),
		rttSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tether_heartbeat_rtt_seconds",
			Help:    "Ping to pong round trip",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(p.states, p.messages, p.dialSeconds, p.reconnects, p.evicted, p.rttSeconds)
	return p
}

func (p *promStats) HandleConn(_ context.Context, s stats.ConnStats) {
	switch s := s.(type) {
	case *stats.ConnEnd:
		result := "ok"
		if s.Error != nil {
			result = "error"
		}
		p.dialSeconds.WithLabelValues(result).Observe(s.EndTime.Sub(s.BeginTime).Seconds())
	case *stats.ConnClose:
		if s.Intentional {
			p.states.WithLabelValues("disconnect").Inc()
		} else {
			p.states.WithLabelValues("lost").Inc()
		}
	case *stats.ReconnectScheduled:
		p.reconnects.Inc()
	case *stats.ReconnectExhausted:
		p.states.WithLabelValues("exhausted").Inc()
	}
}

func (p *promStats) HandleMessage(_ context.Context, s stats.MessageStats) {
	switch s := s.(type) {
	case *stats.MessageIn:
		outcome := "delivered"
		switch {
		case s.Dropped:
			outcome = "dropped"
		case s.Malformed:
			outcome = "wrapped"
		}
		p.messages.WithLabelValues("in", outcome).Inc()
	case *stats.MessageOut:
		outcome := "sent"
		switch {
		case s.Error != nil:
			outcome = "failed"
		case s.Queued:
			outcome = "queued"
		case s.Flushed:
			outcome = "flushed"
		}
		p.messages.WithLabelValues("out", outcome).Inc()
	case *stats.MessageEvicted:
		p.evicted.Add(float64(s.Count))
	}
}

func (p *promStats) HandleHeartbeat(_ context.Context, s stats.HeartbeatStats) {
	switch s := s.(type) {
	case *stats.Pong:
		p.rttSeconds.Observe(s.RTT.Seconds())
	case *stats.HeartbeatTimeout:
		p.states.WithLabelValues("heartbeat_timeout").Inc()
	}
}

type metricsServer struct {
	logger *xlog.Logger
	server *http.Server
}

func newMetricsServer(addr string, gatherer prometheus.Gatherer, logger *xlog.Logger) *metricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return &metricsServer{
		logger: logger,
		server: &http.Server{
			Addr:         addr,
			Handler:      otelhttp.NewHandler(mux, "tether.metrics"),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

func (s *metricsServer) Start() {
	s.logger.Info("Starting metrics HTTP server", xlog.Str("listen", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("metrics server error", xlog.Err(err))
	}
}

func (s *metricsServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
