package xerr

type Error uint16

const (
	ConnectionIsClosed Error = iota
	InvalidMessage
	InvalidAddress
	TransportNotSupported
	HeartbeatTimeout
	ReconnectExhausted
	ClientDestroyed
	OutboxUnavailable
)

var errorMap = map[Error]string{
	ConnectionIsClosed:    "connection is closed",
	InvalidMessage:        "invalid message",
	InvalidAddress:        "invalid address",
	TransportNotSupported: "transport not supported",
	HeartbeatTimeout:      "heartbeat timeout",
	ReconnectExhausted:    "reconnect attempts exhausted",
	ClientDestroyed:       "client destroyed",
	OutboxUnavailable:     "outbox unavailable",
}

func (e Error) Error() string {
	return errorMap[e]
}
func (e Error) String() string {
	return errorMap[e]
}
