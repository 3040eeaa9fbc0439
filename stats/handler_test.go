package stats

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type ctxKey string

type recorder struct {
	name   string
	events *[]string
}

func (r recorder) TagConn(ctx context.Context, _ *ConnInfo) context.Context {
	*r.events = append(*r.events, r.name+":tag")
	return context.WithValue(ctx, ctxKey(r.name), true)
}
func (r recorder) HandleConn(context.Context, ConnStats) {
	*r.events = append(*r.events, r.name+":conn")
}
func (r recorder) HandleMessage(context.Context, MessageStats) {
	*r.events = append(*r.events, r.name+":message")
}
func (r recorder) HandleHeartbeat(context.Context, HeartbeatStats) {
	*r.events = append(*r.events, r.name+":heartbeat")
}

func TestMulti(t *testing.T) {
	assert.Equal(t, Nop{}, Multi())

	var events []string
	a := recorder{name: "a", events: &events}
	assert.Equal(t, a, Multi(a))

	h := Multi(a, recorder{name: "b", events: &events})
	ctx := h.TagConn(context.Background(), &ConnInfo{SessionID: "s", URL: "ws://x"})
	assert.Equal(t, true, ctx.Value(ctxKey("a")))
	assert.Equal(t, true, ctx.Value(ctxKey("b")))

	h.HandleConn(ctx, &ConnBegin{})
	h.HandleMessage(ctx, &MessageIn{})
	h.HandleHeartbeat(ctx, &Ping{})
	assert.Equal(t, []string{
		"a:tag", "b:tag",
		"a:conn", "b:conn",
		"a:message", "b:message",
		"a:heartbeat", "b:heartbeat",
	}, events)
}
