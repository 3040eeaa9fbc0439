package client

import (
	"bytes"
	"encoding/json"
	"fmt"

	"sutext.github.io/tether/xerr"
)

// RawType is the type given to inbound frames that are not valid structured
// messages when the DecodeWrap policy is in effect.
const RawType = "message"

// Message is a structured frame: a JSON object with a "type" discriminator.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
	// Raw is the frame as received. It is not serialized.
	Raw []byte `json:"-"`
}

// NewMessage builds a Message whose data field is the JSON encoding of data.
func NewMessage(typ string, data any) (*Message, error) {
	m := &Message{Type: typ}
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		m.Data = b
	}
	return m, nil
}

// Decode unmarshals the full frame into v.
func (m *Message) Decode(v any) error {
	return json.Unmarshal(m.Raw, v)
}

// DecodeData unmarshals the data field into v.
func (m *Message) DecodeData(v any) error {
	return json.Unmarshal(m.Data, v)
}

// DecodePolicy selects what happens to inbound frames that are not valid
// structured messages.
type DecodePolicy uint8

const (
	// DecodeWrap delivers the frame as a Message of type RawType whose data is
	// the frame text as a JSON string.
	DecodeWrap DecodePolicy = iota
	// DecodeDrop logs and discards the frame.
	DecodeDrop
)

func (p DecodePolicy) String() string {
	switch p {
	case DecodeWrap:
		return "wrap"
	case DecodeDrop:
		return "drop"
	default:
		return "unknown"
	}
}

// ParseDecodePolicy accepts "wrap" or "drop".
func ParseDecodePolicy(s string) (DecodePolicy, error) {
	switch s {
	case "", "wrap":
		return DecodeWrap, nil
	case "drop":
		return DecodeDrop, nil
	default:
		return DecodeWrap, fmt.Errorf("unknown decode policy %q", s)
	}
}

func decode(frame []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(frame, &m); err != nil {
		return nil, err
	}
	if m.Type == "" {
		return nil, fmt.Errorf("message has no type")
	}
	m.Raw = frame
	return &m, nil
}

func wrapRaw(frame []byte) *Message {
	data, _ := json.Marshal(string(frame))
	return &Message{Type: RawType, Data: data, Raw: frame}
}

type typed struct {
	Type string `json:"type"`
}

// encode turns anything Send accepts into the text frame to transmit.
func encode(v any) (string, error) {
	switch m := v.(type) {
	case nil:
		return "", fmt.Errorf("%w: nil message", xerr.InvalidMessage)
	case string:
		return m, nil
	case []byte:
		return string(m), nil
	case json.RawMessage:
		return string(m), nil
	case Message:
		return encodeMessage(&m)
	case *Message:
		if m == nil {
			return "", fmt.Errorf("%w: nil message", xerr.InvalidMessage)
		}
		return encodeMessage(m)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%w: %w", xerr.InvalidMessage, err)
	}
	var t typed
	if !bytes.HasPrefix(bytes.TrimSpace(b), []byte("{")) || json.Unmarshal(b, &t) != nil || t.Type == "" {
		return "", fmt.Errorf("%w: structured messages need a type field", xerr.InvalidMessage)
	}
	return string(b), nil
}

func encodeMessage(m *Message) (string, error) {
	if m.Type == "" {
		return "", fmt.Errorf("%w: structured messages need a type field", xerr.InvalidMessage)
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("%w: %w", xerr.InvalidMessage, err)
	}
	return string(b), nil
}
