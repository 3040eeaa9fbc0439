package main

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
	"sutext.github.io/tether/client"
	"sutext.github.io/tether/stats"
	"sutext.github.io/tether/xlog"
)

func TestLoadConfig(t *testing.T) {
	cfg, err := readConfig("testdata/tether.yaml")
	require.NoError(t, err)
	assert.Equal(t, "wss://stream.example.com/v1/live", cfg.URL)
	assert.Equal(t, []string{"tether.v1"}, cfg.Protocols)
	assert.Equal(t, "Bearer example", cfg.Headers["Authorization"])
	assert.Equal(t, xlog.LevelDebug, cfg.Level())
	assert.Equal(t, 500*time.Millisecond, cfg.Reconnect.Delay)
	assert.Equal(t, 20*time.Second, cfg.Reconnect.MaxDelay)
	assert.Equal(t, 1.5, cfg.Reconnect.Multiplier)
	assert.Equal(t, uint(8), cfg.Reconnect.MaxAttempts)
	assert.Nil(t, cfg.Reconnect.Enabled)
	require.NotNil(t, cfg.Heartbeat)
	assert.Equal(t, 15*time.Second, cfg.Heartbeat.Interval)
	assert.Equal(t, 3*time.Second, cfg.Heartbeat.Timeout)
	require.NotNil(t, cfg.Queue.Enabled)
	assert.True(t, *cfg.Queue.Enabled)
	assert.Equal(t, 250, cfg.Queue.MaxSize)
	assert.Equal(t, "tether.inbound", cfg.Kafka.Topic)
	assert.Equal(t, ":9464", cfg.Prometheus.Listen)
}

func TestLoadSampleConfig(t *testing.T) {
	_, err := readConfig("tether.yaml")
	assert.NoError(t, err)
}

func TestLoadConfigInvalid(t *testing.T) {
	_, err := readConfig("testdata/missing.yaml")
	assert.Error(t, err)

	_, err = readConfig("testdata/bad_policy.yaml")
	assert.Error(t, err)

	_, err = readConfig("testdata/no_topic.yaml")
	assert.ErrorContains(t, err, "kafka topic")

	cfg := &config{URL: "ws://x", LogFormat: "xml"}
	assert.Error(t, cfg.validate())
	cfg = &config{URL: "ws://x", Transport: "quic"}
	assert.Error(t, cfg.validate())
	cfg = &config{URL: "ws://x", Reconnect: reconnectConfig{Multiplier: 0.5}}
	assert.Error(t, cfg.validate())
	assert.Error(t, (&config{}).validate())
}

func TestClientOptions(t *testing.T) {
	cfg, err := readConfig("testdata/minimal.yaml")
	require.NoError(t, err)
	assert.Nil(t, cfg.Heartbeat)

	opts, rdb, err := cfg.clientOptions(xlog.Discard(), stats.Nop{})
	require.NoError(t, err)
	assert.Nil(t, rdb)

	c := client.New(cfg.URL, opts...)
	defer c.Destroy()
	assert.Equal(t, "ws://localhost:8080/ws", c.URL())
	assert.Equal(t, client.StateDisconnected, c.State())
	require.NoError(t, c.Send(`{"type":"hello"}`))
	assert.Equal(t, 1, c.QueueSize())
}

func TestClientOptionsQueueDisabled(t *testing.T) {
	off := false
	cfg := &config{URL: "ws://localhost:8080/ws", Queue: queueConfig{Enabled: &off}}
	opts, _, err := cfg.clientOptions(xlog.Discard(), stats.Nop{})
	require.NoError(t, err)

	c := client.New(cfg.URL, opts...)
	defer c.Destroy()
	assert.Error(t, c.Send(`{"type":"hello"}`))
}

func TestClientOptionsRedisUnreachable(t *testing.T) {
	cfg := &config{
		URL:   "ws://localhost:8080/ws",
		Queue: queueConfig{Redis: &redisConfig{Address: "127.0.0.1:1"}},
	}
	_, rdb, err := cfg.clientOptions(xlog.Discard(), stats.Nop{})
	assert.Error(t, err)
	assert.Nil(t, rdb)
}

func TestClientOptionsNetTransport(t *testing.T) {
	server := httptest.NewServer(websocket.Handler(func(ws *websocket.Conn) {
		_, _ = io.Copy(ws, ws)
	}))
	defer server.Close()

	cfg := &config{URL: "ws" + strings.TrimPrefix(server.URL, "http"), Transport: "xnet"}
	require.NoError(t, cfg.validate())
	opts, _, err := cfg.clientOptions(xlog.Discard(), stats.Nop{})
	require.NoError(t, err)

	c := client.New(cfg.URL, opts...)
	defer c.Destroy()
	var mu sync.Mutex
	var got []string
	c.OnMessage(func(m *client.Message) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, m.Type)
	})
	c.Connect()
	require.NoError(t, c.Send(`{"type":"echo"}`))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "echo", got[0])
}
