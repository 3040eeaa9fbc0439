package client

// State is the connection state of a Client.
type State uint8

const (
	// StateDisconnected is the initial state and the state after Disconnect
	// or after reconnection gives up.
	StateDisconnected State = iota
	// StateConnecting means a dial is in flight.
	StateConnecting
	// StateConnected means the transport reported a successful open.
	StateConnected
	// StateReconnecting means a reconnect timer is pending.
	StateReconnecting
	// StateError means the transport failed and no retry will follow until
	// the caller connects again.
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Close codes sent to the peer.
const (
	CloseNormal           = 1000
	CloseGoingAway        = 1001
	CloseHeartbeatTimeout = 4000
)

// Reserved heartbeat payloads. They are answered and consumed by the client
// and never reach message handlers.
const (
	PingPayload = "ping"
	PongPayload = "pong"
)
