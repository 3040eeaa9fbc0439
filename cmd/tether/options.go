package main

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"sutext.github.io/tether/client"
	"sutext.github.io/tether/outbox"
	"sutext.github.io/tether/stats"
	"sutext.github.io/tether/xlog"
)

const (
	defaultOutboxKey    = "tether:outbox"
	defaultWriteTimeout = 10 * time.Second
)

// clientOptions maps the config onto client options. The returned redis
// client, if any, must be closed by the caller.
func (c *config) clientOptions(logger *xlog.Logger, handler stats.Handler) ([]client.Option, *redis.Client, error) {
	policy, err := client.ParseDecodePolicy(c.DecodePolicy)
	if err != nil {
		return nil, nil, err
	}
	opts := []client.Option{
		client.WithLogger(logger),
		client.WithDecodePolicy(policy),
		client.WithStatsHandler(handler),
		client.WithMaxReconnectAttempts(c.Reconnect.MaxAttempts),
		client.WithJitter(c.Reconnect.Jitter),
		client.WithOnReconnect(func(attempt uint) {
			logger.Info("reconnecting", xlog.Attempt(attempt))
		}),
	}
	if c.Transport == "xnet" {
		opts = append(opts, client.WithDialer(&client.NetWebSocketDialer{WriteTimeout: defaultWriteTimeout}))
	}
	if len(c.Protocols) > 0 {
		opts = append(opts, client.WithProtocols(c.Protocols...))
	}
	if len(c.Headers) > 0 {
		header := http.Header{}
		for k, v := range c.Headers {
			header.Set(k, v)
		}
		opts = append(opts, client.WithHeader(header))
	}
	if c.Reconnect.Enabled != nil {
		opts = append(opts, client.WithAutoReconnect(*c.Reconnect.Enabled))
	}
	if c.Reconnect.Delay > 0 {
		opts = append(opts, client.WithReconnectDelay(c.Reconnect.Delay))
	}
	if c.Reconnect.MaxDelay > 0 {
		opts = append(opts, client.WithMaxReconnectDelay(c.Reconnect.MaxDelay))
	}
	if c.Reconnect.Multiplier >= 1 {
		opts = append(opts, client.WithBackoffMultiplier(c.Reconnect.Multiplier))
	}
	if c.Heartbeat != nil {
		opts = append(opts, client.WithHeartbeat(c.Heartbeat.Interval, c.Heartbeat.Timeout))
	}
	if c.Queue.Enabled != nil {
		opts = append(opts, client.WithQueueMessages(*c.Queue.Enabled))
	}
	if c.Queue.MaxSize > 0 {
		opts = append(opts, client.WithMaxQueueSize(c.Queue.MaxSize))
	}
	var rdb *redis.Client
	if r := c.Queue.Redis; r != nil && r.Address != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     r.Address,
			Password: r.Password,
			DB:       r.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, nil, err
		}
		key := r.Key
		if key == "" {
			key = defaultOutboxKey
		}
		opts = append(opts, client.WithOutbox(outbox.NewRedis(rdb, key, c.Queue.MaxSize)))
	}
	return opts, rdb, nil
}
