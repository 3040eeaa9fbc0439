// Package metrics implements stats.Handler with OpenTelemetry instruments.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"sutext.github.io/tether/stats"
)

const scope = "sutext.github.io/tether"

type milliDuration struct {
	metric.Float64Histogram
}

func newDuration(meter metric.Meter, name string, description string) milliDuration {
	f, err := meter.Float64Histogram(name,
		metric.WithUnit("ms"),
		metric.WithDescription(description),
	)
	if err != nil {
		otel.Handle(err)
		return milliDuration{noop.Float64Histogram{}}
	}
	return milliDuration{f}
}
func (f milliDuration) Record(ctx context.Context, d time.Duration, labels ...attribute.KeyValue) {
	f.Float64Histogram.Record(ctx, float64(d)/float64(time.Millisecond), metric.WithAttributeSet(attribute.NewSet(labels...)))
}

type counter struct {
	metric.Int64Counter
}

func newCounter(meter metric.Meter, name string, description string) counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		otel.Handle(err)
		return counter{noop.Int64Counter{}}
	}
	return counter{c}
}
func (c counter) Inc(ctx context.Context, labels ...attribute.KeyValue) {
	c.Add(ctx, 1, metric.WithAttributeSet(attribute.NewSet(labels...)))
}

type infoKey struct{}

// Recorder reports client activity as OTel counters and histograms.
type Recorder struct {
	connects        counter
	connectDuration milliDuration
	closes          counter
	reconnects      counter
	reconnectDelay  milliDuration
	exhausted       counter
	messages        counter
	evicted         counter
	heartbeats      counter
	rtt             milliDuration
}

var _ stats.Handler = (*Recorder)(nil)

// New builds a Recorder on meter. A nil meter uses the global MeterProvider.
func New(meter metric.Meter) *Recorder {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(scope)
	}
	return &Recorder{
		connects:        newCounter(meter, "tether.connect.attempts", "Transport dials by result"),
		connectDuration: newDuration(meter, "tether.connect.duration", "Transport dial duration in milliseconds"),
		closes:          newCounter(meter, "tether.connect.closes", "Transport closures"),
		reconnects:      newCounter(meter, "tether.reconnect.scheduled", "Reconnect attempts scheduled"),
		reconnectDelay:  newDuration(meter, "tether.reconnect.delay", "Reconnect backoff delay in milliseconds"),
		exhausted:       newCounter(meter, "tether.reconnect.exhausted", "Reconnect cycles that hit the attempt ceiling"),
		messages:        newCounter(meter, "tether.messages", "Application frames by direction and outcome"),
		evicted:         newCounter(meter, "tether.outbox.evicted", "Queued messages dropped because the outbox was full"),
		heartbeats:      newCounter(meter, "tether.heartbeat", "Heartbeat probes by result"),
		rtt:             newDuration(meter, "tether.heartbeat.rtt", "Ping to pong round trip in milliseconds"),
	}
}

func urlAttr(ctx context.Context) attribute.KeyValue {
	if info, ok := ctx.Value(infoKey{}).(*stats.ConnInfo); ok {
		return attribute.String("tether.url", info.URL)
	}
	return attribute.String("tether.url", "")
}

func (r *Recorder) TagConn(ctx context.Context, info *stats.ConnInfo) context.Context {
	return context.WithValue(ctx, infoKey{}, info)
}

func (r *Recorder) HandleConn(ctx context.Context, s stats.ConnStats) {
	url := urlAttr(ctx)
	switch s := s.(type) {
	case *stats.ConnBegin:
	case *stats.ConnEnd:
		result := "ok"
		if s.Error != nil {
			result = "error"
		}
		r.connects.Inc(ctx, url, attribute.String("result", result))
		r.connectDuration.Record(ctx, s.EndTime.Sub(s.BeginTime), url, attribute.Bool("isok", s.Error == nil))
	case *stats.ConnClose:
		r.closes.Inc(ctx, url, attribute.Bool("intentional", s.Intentional))
	case *stats.ReconnectScheduled:
		r.reconnects.Inc(ctx, url)
		r.reconnectDelay.Record(ctx, s.Delay, url)
	case *stats.ReconnectExhausted:
		r.exhausted.Inc(ctx, url)
	}
}

func (r *Recorder) HandleMessage(ctx context.Context, s stats.MessageStats) {
	url := urlAttr(ctx)
	switch s := s.(type) {
	case *stats.MessageIn:
		outcome := "delivered"
		switch {
		case s.Dropped:
			outcome = "dropped"
		case s.Malformed:
			outcome = "wrapped"
		}
		r.messages.Inc(ctx, url, attribute.String("direction", "in"), attribute.String("outcome", outcome))
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
		r.messages.Inc(ctx, url, attribute.String("direction", "out"), attribute.String("outcome", outcome))
	case *stats.MessageEvicted:
		r.evicted.Add(ctx, int64(s.Count), metric.WithAttributeSet(attribute.NewSet(url)))
	}
}

func (r *Recorder) HandleHeartbeat(ctx context.Context, s stats.HeartbeatStats) {
	url := urlAttr(ctx)
	switch s := s.(type) {
	case *stats.Ping:
		r.heartbeats.Inc(ctx, url, attribute.String("result", "ping"))
	case *stats.Pong:
		r.heartbeats.Inc(ctx, url, attribute.String("result", "pong"))
		r.rtt.Record(ctx, s.RTT, url)
	case *stats.HeartbeatTimeout:
		r.heartbeats.Inc(ctx, url, attribute.String("result", "timeout"))
	}
}
