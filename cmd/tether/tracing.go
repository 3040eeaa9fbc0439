package main

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"sutext.github.io/tether/stats"
)

// tracer turns dial attempts into spans and records heartbeat timeouts and
// reconnect exhaustion as short error spans.
type tracer struct {
	stats.Nop
	mu     sync.Mutex
	tracer trace.Tracer
	attrs  []attribute.KeyValue
	dial   trace.Span
}

func newTracer(provider trace.TracerProvider) *tracer {
	return &tracer{
		tracer: provider.Tracer("tether.client", trace.WithInstrumentationVersion("1.0.0")),
	}
}

func (t *tracer) TagConn(ctx context.Context, info *stats.ConnInfo) context.Context {
	t.mu.Lock()
	t.attrs = []attribute.KeyValue{
		attribute.String("tether.session", info.SessionID),
		attribute.String("tether.url", info.URL),
	}
	t.mu.Unlock()
	return ctx
}

func (t *tracer) HandleConn(ctx context.Context, s stats.ConnStats) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch s := s.(type) {
	case *stats.ConnBegin:
		if t.dial != nil {
			t.dial.End()
		}
		_, t.dial = t.tracer.Start(ctx, "tether.dial",
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithTimestamp(s.BeginTime),
			trace.WithAttributes(t.attrs...),
			trace.WithAttributes(attribute.Int64("tether.attempt", int64(s.Attempt))),
		)
	case *stats.ConnEnd:
		if t.dial == nil {
			return
		}
		if s.Error != nil {
			t.dial.RecordError(s.Error)
			t.dial.SetStatus(codes.Error, s.Error.Error())
		}
		t.dial.End(trace.WithTimestamp(s.EndTime))
		t.dial = nil
	case *stats.ReconnectExhausted:
		_, span := t.tracer.Start(ctx, "tether.reconnect.exhausted", trace.WithAttributes(t.attrs...))
		span.SetAttributes(attribute.Int64("tether.attempts", int64(s.Attempts)))
		span.SetStatus(codes.Error, "reconnect attempts exhausted")
		span.End()
	}
}

func (t *tracer) HandleHeartbeat(ctx context.Context, s stats.HeartbeatStats) {
	timeout, ok := s.(*stats.HeartbeatTimeout)
	if !ok {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, span := t.tracer.Start(ctx, "tether.heartbeat.timeout", trace.WithAttributes(t.attrs...))
	span.SetAttributes(attribute.String("tether.timeout", timeout.Timeout.String()))
	span.SetStatus(codes.Error, "heartbeat timeout")
	span.End()
}
