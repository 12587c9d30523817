// Package types holds the wire-level vocabulary shared by the controller,
// its transports and the host driver.
package types

import (
	"errors"
	"fmt"
	"math"
)

// MessageType is the string tag carried in every message's "type" field.
type MessageType string

// Outgoing status message types.
const (
	StatusConstructor       MessageType = "constructor"
	StatusHello             MessageType = "hello"
	StatusResize            MessageType = "resize"
	StatusLoading           MessageType = "loading"
	StatusLoaded            MessageType = "loaded"
	StatusError             MessageType = "error"
	StatusFatalError        MessageType = "fatalError"
	StatusInvalidError      MessageType = "invalidError"
	StatusReady             MessageType = "ready"
	StatusMarkdownLoad      MessageType = "markdownLoad"
	StatusContainerSizeLoad MessageType = "containerSizeLoad"
)

// Incoming host message types.
const (
	MessageLoad          MessageType = "load"
	MessageReadyAck      MessageType = "readyAck"
	MessageContainerSize MessageType = "containerSize"
	MessageUnload        MessageType = "unload"
)

// IsStatus returns true if t is one of the outgoing status types.
func (t MessageType) IsStatus() bool {
	switch t {
	case StatusConstructor, StatusHello, StatusResize, StatusLoading, StatusLoaded,
		StatusError, StatusFatalError, StatusInvalidError, StatusReady,
		StatusMarkdownLoad, StatusContainerSizeLoad:
		return true
	}
	return false
}

// IsFailure returns true for the error-class status types.
func (t MessageType) IsFailure() bool {
	return t == StatusError || t == StatusFatalError || t == StatusInvalidError
}

// Payload keys used by the protocol.
const (
	KeyType   = "type"
	KeyHeight = "height"
	KeyAck    = "ack"
	KeyError  = "error"
	KeyData   = "data"
	KeyWidth  = "width"
	KeyKind   = "kind"
)

// Message is a single one-shot message. Senders keep no history.
type Message struct {
	Type    MessageType
	Payload map[string]any
}

// NewMessage builds a message, copying payload so later caller mutation
// cannot leak into a message already handed to a transport.
func NewMessage(t MessageType, payload map[string]any) Message {
	m := Message{Type: t}
	if len(payload) > 0 {
		m.Payload = make(map[string]any, len(payload))
		for k, v := range payload {
			m.Payload[k] = v
		}
	}
	return m
}

// Fields flattens the message into its wire shape: {"type": ..., ...payload}.
func (m Message) Fields() map[string]any {
	out := make(map[string]any, len(m.Payload)+1)
	for k, v := range m.Payload {
		out[k] = v
	}
	out[KeyType] = string(m.Type)
	return out
}

// ErrMissingType is returned when a wire map has no string "type" field.
var ErrMissingType = errors.New("message has no type")

// FromFields rebuilds a Message from its wire shape.
func FromFields(fields map[string]any) (Message, error) {
	raw, ok := fields[KeyType].(string)
	if !ok || raw == "" {
		return Message{}, ErrMissingType
	}
	payload := make(map[string]any, len(fields))
	for k, v := range fields {
		if k == KeyType {
			continue
		}
		payload[k] = v
	}
	if len(payload) == 0 {
		payload = nil
	}
	return Message{Type: MessageType(raw), Payload: payload}, nil
}

// Int reads an integral payload value. Wire decoders hand numbers back as
// any of the Go numeric kinds, so all of them are accepted.
func (m Message) Int(key string) (int, bool) {
	return toInt(m.Payload[key])
}

// Text reads a string payload value.
func (m Message) Text(key string) (string, bool) {
	s, ok := m.Payload[key].(string)
	return s, ok
}

// Bool reads a boolean payload value.
func (m Message) Bool(key string) bool {
	b, _ := m.Payload[key].(bool)
	return b
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		if n > math.MaxInt {
			return 0, false
		}
		return int(n), true
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	default:
		return 0, false
	}
}

// floatToInt accepts integral values inside int's range, [MinInt, -MinInt).
func floatToInt(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < float64(math.MinInt) || f >= -float64(math.MinInt) {
		return 0, false
	}
	return int(f), true
}

// ReadyPayload is the payload of a ready status.
func ReadyPayload(height int) map[string]any {
	return map[string]any{KeyHeight: height, KeyAck: true}
}

// ResizePayload is the payload of a resize status.
func ResizePayload(height int) map[string]any {
	return map[string]any{KeyHeight: height}
}

// ErrorPayload is the payload of the error-class statuses.
func ErrorPayload(text string) map[string]any {
	return map[string]any{KeyError: text}
}

func (m Message) String() string {
	return fmt.Sprintf("%s%v", m.Type, m.Payload)
}
