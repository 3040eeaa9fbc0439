package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"sutext.github.io/tether/xerr"
)

// Conn is an open message-stream transport.
//
// ReadMessage is called from a single reader goroutine. WriteMessage and Close
// are never called concurrently with each other.
type Conn interface {
	// ReadMessage blocks for the next frame and returns an error once the
	// transport is closed.
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	// Close sends a close frame with code and reason where the transport
	// supports it, then releases the connection.
	Close(code int, reason string) error
}

// Dialer opens transports. Dial must honour ctx cancellation.
type Dialer interface {
	Dial(ctx context.Context, url string, protocols []string, header http.Header) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, url string, protocols []string, header http.Header) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, url string, protocols []string, header http.Header) (Conn, error) {
	return f(ctx, url, protocols, header)
}

// CloseError is the error a Conn reports when the peer closed with a code.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("closed with code %d: %s", e.Code, e.Reason)
}

// NewDialer picks a transport for the scheme of rawURL: ws and wss use
// WebSocketDialer, grpc uses GRPCDialer.
func NewDialer(rawURL string, writeTimeout time.Duration) (Dialer, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", xerr.InvalidAddress, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host in %q", xerr.InvalidAddress, rawURL)
	}
	switch u.Scheme {
	case "ws", "wss":
		return &WebSocketDialer{WriteTimeout: writeTimeout}, nil
	case "grpc":
		return &GRPCDialer{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", xerr.TransportNotSupported, u.Scheme)
	}
}
