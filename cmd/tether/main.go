// Command tether keeps a resilient connection to a real-time endpoint. Lines
// read from stdin are sent as messages and inbound messages are printed to
// stdout, optionally republished to Kafka.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"sutext.github.io/tether/client"
	"sutext.github.io/tether/metrics"
	"sutext.github.io/tether/stats"
	"sutext.github.io/tether/xlog"
)

var errStdinClosed = errors.New("stdin closed")

func main() {
	path := flag.String("config", "tether.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := readConfig(*path)
	if err != nil {
		xlog.Error("Failed to read config", xlog.Str("path", *path), xlog.Err(err))
		os.Exit(1)
	}
	logger := cfg.Logger()
	xlog.SetDefault(logger)

	ctx, cancel := context.WithCancelCause(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		cancel(fmt.Errorf("tether signal received: %v", sig))
	}()

	instance := uuid.NewString()
	tel := newTelemetry(ctx, cfg, instance, logger)
	var handlers []stats.Handler
	if cfg.Metrics.Enabled {
		handlers = append(handlers, metrics.New(nil))
	}
	if cfg.Trace.Enabled {
		handlers = append(handlers, newTracer(otel.GetTracerProvider()))
	}
	var ms *metricsServer
	if cfg.Prometheus.Listen != "" {
		registry := prometheus.NewRegistry()
		handlers = append(handlers, newPromStats(registry))
		ms = newMetricsServer(cfg.Prometheus.Listen, registry, logger)
		go ms.Start()
	}

	opts, rdb, err := cfg.clientOptions(logger, stats.Multi(handlers...))
	if err != nil {
		logger.Error("Failed to build client options", xlog.Err(err))
		os.Exit(1)
	}
	c := client.New(cfg.URL, opts...)

	var kafka *bridge
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := newKafkaProducer(cfg.Kafka.Brokers)
		if err != nil {
			logger.Error("Failed to create kafka producer", xlog.Err(err))
		} else {
			kafka = newBridge(producer, cfg.Kafka.Topic, c.SessionID(), logger)
		}
	}

	out := bufio.NewWriter(os.Stdout)
	c.OnMessage(func(m *client.Message) {
		fmt.Fprintln(out, string(m.Raw))
		out.Flush()
		if kafka != nil {
			_ = kafka.forward(m)
		}
	})
	c.OnStateChange(func(s client.State) {
		logger.Info("state changed", xlog.State(s.String()))
	})
	c.OnError(func(err error) {
		logger.Warn("client error", xlog.Err(err))
	})
	c.Connect()

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			if err := c.Send(line); err != nil {
				logger.Warn("send failed", xlog.Err(err))
			}
		}
		cancel(errStdinClosed)
	}()

	<-ctx.Done()
	logger.Info("tether shutting down", xlog.Str("cause", context.Cause(ctx).Error()))
	done := make(chan struct{})
	go func() {
		defer close(done)
		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		c.Destroy()
		if kafka != nil {
			_ = kafka.Close()
		}
		if rdb != nil {
			_ = rdb.Close()
		}
		if ms != nil {
			_ = ms.Shutdown(shutdownCtx)
		}
		_ = tel.Shutdown(shutdownCtx)
	}()
	timeout := time.NewTimer(15 * time.Second)
	defer timeout.Stop()
	select {
	case <-timeout.C:
		logger.Warn("tether graceful shutdown timeout")
	case <-done:
		logger.Debug("tether graceful shutdown")
	}
}
