package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/wrapperspb"
	"sutext.github.io/tether/xerr"
)

// DefaultGRPCMethod is the bidirectional streaming method used when a grpc
// address has no path.
const DefaultGRPCMethod = "/tether.Stream/Connect"

// GRPCStreamDesc describes the streaming method GRPCDialer calls. Servers
// register a handler for it with the same name and must send header metadata
// (grpc.ServerStream.SendHeader) as soon as they accept the stream; the
// connection counts as open only then.
var GRPCStreamDesc = grpc.StreamDesc{
	StreamName:    "Connect",
	ClientStreams: true,
	ServerStreams: true,
}

// GRPCDialer carries frames as google.protobuf.StringValue messages over a
// bidirectional stream. Addresses look like grpc://host:port/pkg.Service/Method.
type GRPCDialer struct {
	// Options are appended after the defaults (insecure credentials and the
	// otelgrpc stats handler).
	Options []grpc.DialOption
}

func (d *GRPCDialer) Dial(ctx context.Context, rawURL string, protocols []string, header http.Header) (Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", xerr.InvalidAddress, err)
	}
	method := u.Path
	if method == "" || method == "/" {
		method = DefaultGRPCMethod
	}
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
	opts = append(opts, d.Options...)
	cc, err := grpc.NewClient("passthrough:///"+u.Host, opts...)
	if err != nil {
		return nil, err
	}
	md := metadata.MD{}
	for k, vs := range header {
		md.Append(strings.ToLower(k), vs...)
	}
	if len(protocols) > 0 {
		md.Append("tether-protocol", protocols...)
	}
	// the stream outlives the dial context; ctx only bounds stream creation
	sctx, cancel := context.WithCancel(metadata.NewOutgoingContext(context.Background(), md))
	stop := context.AfterFunc(ctx, cancel)
	stream, err := cc.NewStream(sctx, &GRPCStreamDesc, method)
	if err == nil {
		err = awaitHeader(stream)
	}
	stop()
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		cancel()
		cc.Close()
		return nil, err
	}
	return &grpcConn{cc: cc, stream: stream, cancel: cancel}, nil
}

var errNoHeader = errors.New("grpc stream ended before the server accepted it")

// awaitHeader blocks until the server answers the stream. Header hides the
// failure cause, so it is read back with RecvMsg.
func awaitHeader(stream grpc.ClientStream) error {
	if md, _ := stream.Header(); md != nil {
		return nil
	}
	err := stream.RecvMsg(new(wrapperspb.StringValue))
	if err == nil || errors.Is(err, io.EOF) {
		return errNoHeader
	}
	return err
}

type grpcConn struct {
	cc     *grpc.ClientConn
	stream grpc.ClientStream
	cancel context.CancelFunc
}

func (c *grpcConn) ReadMessage() ([]byte, error) {
	var frame wrapperspb.StringValue
	if err := c.stream.RecvMsg(&frame); err != nil {
		return nil, err
	}
	return []byte(frame.GetValue()), nil
}

func (c *grpcConn) WriteMessage(data []byte) error {
	return c.stream.SendMsg(wrapperspb.String(string(data)))
}

func (c *grpcConn) Close(int, string) error {
	_ = c.stream.CloseSend()
	c.cancel()
	return c.cc.Close()
}
