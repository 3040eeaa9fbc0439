package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"sutext.github.io/tether/stats"
)

func newTestTracer(t *testing.T) (*tracer, *tracetest.SpanRecorder) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	provider := tracesdk.NewTracerProvider(tracesdk.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	tr := newTracer(provider)
	tr.TagConn(context.Background(), &stats.ConnInfo{SessionID: "s1", URL: "ws://example.com"})
	return tr, rec
}

func attr(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracerDialSpans(t *testing.T) {
	tr, rec := newTestTracer(t)
	ctx := context.Background()
	begin := time.Now()

	tr.HandleConn(ctx, &stats.ConnBegin{Attempt: 0, BeginTime: begin})
	tr.HandleConn(ctx, &stats.ConnEnd{Attempt: 0, Error: errors.New("refused"), BeginTime: begin, EndTime: begin.Add(time.Millisecond)})
	tr.HandleConn(ctx, &stats.ConnBegin{Attempt: 1, BeginTime: begin})
	tr.HandleConn(ctx, &stats.ConnEnd{Attempt: 1, BeginTime: begin, EndTime: begin.Add(2 * time.Millisecond)})

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "tether.dial", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, codes.Unset, spans[1].Status().Code)
	v, ok := attr(spans[1].Attributes(), "tether.attempt")
	require.True(t, ok)
	assert.Equal(t, int64(1), v.AsInt64())
	v, ok = attr(spans[1].Attributes(), "tether.session")
	require.True(t, ok)
	assert.Equal(t, "s1", v.AsString())
}

func TestTracerFailureSpans(t *testing.T) {
	tr, rec := newTestTracer(t)
	ctx := context.Background()

	tr.HandleHeartbeat(ctx, &stats.Ping{})
	tr.HandleHeartbeat(ctx, &stats.HeartbeatTimeout{Timeout: 5 * time.Second})
	tr.HandleConn(ctx, &stats.ReconnectExhausted{Attempts: 3})
	tr.HandleConn(ctx, &stats.ConnEnd{})

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "tether.heartbeat.timeout", spans[0].Name())
	assert.Equal(t, "tether.reconnect.exhausted", spans[1].Name())
	for _, s := range spans {
		assert.Equal(t, codes.Error, s.Status().Code)
	}
}
