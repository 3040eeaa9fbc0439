package client

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/websocket"
)

// NetWebSocketDialer dials with golang.org/x/net/websocket. The origin header
// is derived from the target address unless Origin is set.
type NetWebSocketDialer struct {
	Origin       string
	WriteTimeout time.Duration
}

func (d *NetWebSocketDialer) Dial(ctx context.Context, rawURL string, protocols []string, header http.Header) (Conn, error) {
	origin := d.Origin
	if origin == "" {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, err
		}
		scheme := "http"
		if u.Scheme == "wss" {
			scheme = "https"
		}
		origin = scheme + "://" + u.Host
	}
	config, err := websocket.NewConfig(rawURL, origin)
	if err != nil {
		return nil, err
	}
	config.Protocol = protocols
	if header != nil {
		config.Header = header.Clone()
	}
	ws, err := config.DialContext(ctx)
	if err != nil {
		return nil, err
	}
	return &xnetConn{conn: ws, writeTimeout: d.WriteTimeout}, nil
}

type xnetConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func (c *xnetConn) ReadMessage() ([]byte, error) {
	var data []byte
	if err := websocket.Message.Receive(c.conn, &data); err != nil {
		return nil, err
	}
	return data, nil
}

func (c *xnetConn) WriteMessage(data []byte) error {
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	return websocket.Message.Send(c.conn, string(data))
}

// Close sends code in a close frame. x/net cannot carry a close reason.
func (c *xnetConn) Close(code int, _ string) error {
	if code == CloseNormal {
		return c.conn.Close()
	}
	// Conn.Close always sends 1000, so the real code goes out first
	err := c.conn.WriteClose(code)
	_ = c.conn.Close()
	return err
}
