package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
	"sutext.github.io/tether/client"
	"sutext.github.io/tether/xlog"
)

type reconnectConfig struct {
	Enabled     *bool         `yaml:"enabled"`
	Delay       time.Duration `yaml:"delay"`
	MaxDelay    time.Duration `yaml:"maxDelay"`
	Multiplier  float64       `yaml:"multiplier"`
	Jitter      float64       `yaml:"jitter"`
	MaxAttempts uint          `yaml:"maxAttempts"`
}
type heartbeatConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}
type redisConfig struct {
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
}
type queueConfig struct {
	Enabled *bool        `yaml:"enabled"`
	MaxSize int          `yaml:"maxSize"`
	Redis   *redisConfig `yaml:"redis"`
}
type kafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}
type metricsConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Interval     int    `yaml:"interval"`
	TenantID     string `yaml:"tenantID"`
	ServiceName  string `yaml:"serviceName"`
	OTLPEndpoint string `yaml:"otlpEndpoint"`
}

// period is the export interval, one minute unless configured.
func (c metricsConfig) period() time.Duration {
	if c.Interval <= 0 {
		return time.Minute
	}
	return time.Duration(c.Interval) * time.Second
}

type traceConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ServiceName  string `yaml:"serviceName"`
	OTLPEndpoint string `yaml:"otlpEndpoint"`
}
type prometheusConfig struct {
	Listen string `yaml:"listen"`
}
type config struct {
	URL          string            `yaml:"url"`
	Transport    string            `yaml:"transport"`
	Protocols    []string          `yaml:"protocols"`
	Headers      map[string]string `yaml:"headers"`
	LogLevel     string            `yaml:"logLevel"`
	LogFormat    string            `yaml:"logFormat"`
	DecodePolicy string            `yaml:"decodePolicy"`
	Reconnect    reconnectConfig   `yaml:"reconnect"`
	Heartbeat    *heartbeatConfig  `yaml:"heartbeat"`
	Queue        queueConfig       `yaml:"queue"`
	Kafka        kafkaConfig       `yaml:"kafka"`
	Metrics      metricsConfig     `yaml:"metrics"`
	Trace        traceConfig       `yaml:"trace"`
	Prometheus   prometheusConfig  `yaml:"prometheus"`
}

func readConfig(path string) (*config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *config) validate() error {
	if c.URL == "" {
		return fmt.Errorf("url is required")
	}
	switch c.Transport {
	case "", "gorilla", "xnet":
	default:
		return fmt.Errorf("invalid transport: %s", c.Transport)
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s", c.LogFormat)
	}
	if _, err := client.ParseDecodePolicy(c.DecodePolicy); err != nil {
		return err
	}
	if c.Reconnect.Multiplier != 0 && c.Reconnect.Multiplier < 1 {
		return fmt.Errorf("invalid reconnect multiplier: %v", c.Reconnect.Multiplier)
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka topic is required when brokers are set")
	}
	return nil
}

func (c *config) Level() slog.Level {
	return xlog.ParseLevel(c.LogLevel)
}

func (c *config) Logger() *xlog.Logger {
	if c.LogFormat == "json" {
		return xlog.NewJSON(c.Level())
	}
	return xlog.NewText(c.Level())
}
