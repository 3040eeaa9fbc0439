package main

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sutext.github.io/tether/stats"
	"sutext.github.io/tether/xlog"
)

func TestPromStats(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := newPromStats(reg)
	ctx := context.Background()
	begin := time.Now()

	p.HandleConn(ctx, &stats.ConnEnd{BeginTime: begin, EndTime: begin.Add(20 * time.Millisecond)})
	p.HandleConn(ctx, &stats.ConnEnd{Error: errors.New("refused"), BeginTime: begin, EndTime: begin})
	p.HandleConn(ctx, &stats.ConnClose{})
	p.HandleConn(ctx, &stats.ConnClose{Intentional: true})
	p.HandleConn(ctx, &stats.ReconnectScheduled{Attempt: 1, Delay: time.Second})
	p.HandleConn(ctx, &stats.ReconnectScheduled{Attempt: 2, Delay: 2 * time.Second})
	p.HandleConn(ctx, &stats.ReconnectExhausted{Attempts: 2})
	p.HandleMessage(ctx, &stats.MessageIn{Size: 10})
	p.HandleMessage(ctx, &stats.MessageIn{Size: 3, Malformed: true})
	p.HandleMessage(ctx, &stats.MessageOut{Size: 4, Queued: true})
	p.HandleMessage(ctx, &stats.MessageOut{Size: 4, Flushed: true})
	p.HandleMessage(ctx, &stats.MessageEvicted{Count: 3})
	p.HandleHeartbeat(ctx, &stats.Pong{RTT: 5 * time.Millisecond})
	p.HandleHeartbeat(ctx, &stats.HeartbeatTimeout{Timeout: time.Second})

	assert.Equal(t, 1.0, testutil.ToFloat64(p.states.WithLabelValues("lost")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.states.WithLabelValues("disconnect")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.states.WithLabelValues("exhausted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.states.WithLabelValues("heartbeat_timeout")))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.reconnects))
	assert.Equal(t, 3.0, testutil.ToFloat64(p.evicted))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.messages.WithLabelValues("in", "delivered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.messages.WithLabelValues("in", "wrapped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.messages.WithLabelValues("out", "queued")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.messages.WithLabelValues("out", "flushed")))
	assert.Equal(t, 2, testutil.CollectAndCount(p.dialSeconds))
	assert.Equal(t, 1, testutil.CollectAndCount(p.rttSeconds))
}

func TestMetricsServer(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	reg := prometheus.NewRegistry()
	p := newPromStats(reg)
	p.HandleConn(context.Background(), &stats.ReconnectScheduled{Attempt: 1, Delay: time.Second})

	s := newMetricsServer(addr, reg, xlog.Discard())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Start()
	}()
	defer func() {
		require.NoError(t, s.Shutdown(context.Background()))
		<-done
	}()

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil || resp.StatusCode != http.StatusOK {
			return false
		}
		body = string(data)
		return true
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, body, "tether_reconnects_scheduled_total 1")
}
