// Package tether is a resilient real-time connection client. NewClient is a
// shorthand for client.New; the implementation lives in the client package.
package tether

import (
	"sutext.github.io/tether/client"
)

// NewClient builds a client for address. Unless WithDialer is given,
// client.New asks client.NewDialer for a transport matching the address
// scheme. An unsupported scheme is reported through OnError on Connect.
func NewClient(address string, opts ...client.Option) *client.Client {
	return client.New(address, opts...)
}
