package types

import (
	"errors"
	"fmt"
	"html"
)

// ErrMalformedLoad marks a load event missing required fields. It is a
// contract breach by the host, not a render failure.
var ErrMalformedLoad = errors.New("malformed load event")

// RenderRequest is the content and initial width carried by one load event.
// It is immutable after ParseRenderRequest returns.
type RenderRequest struct {
	// Data is the decoded content payload.
	Data string
	// Width is the container width in whole pixels.
	Width int
	// Kind optionally selects the content builder (svg, html, geo).
	Kind string
}

// ParseRenderRequest extracts a RenderRequest from a load message.
// The data field arrives HTML-escaped and is unescaped here.
func ParseRenderRequest(m Message) (RenderRequest, error) {
	if m.Type != MessageLoad {
		return RenderRequest{}, fmt.Errorf("%w: unexpected type %q", ErrMalformedLoad, m.Type)
	}
	data, ok := m.Text(KeyData)
	if !ok {
		return RenderRequest{}, fmt.Errorf("%w: missing %q", ErrMalformedLoad, KeyData)
	}
	width, ok := m.Int(KeyWidth)
	if !ok {
		return RenderRequest{}, fmt.Errorf("%w: missing or non-integral %q", ErrMalformedLoad, KeyWidth)
	}
	kind, _ := m.Text(KeyKind)
	return RenderRequest{
		Data:  html.UnescapeString(data),
		Width: width,
		Kind:  kind,
	}, nil
}

// LoadMessage builds the host-side load message for req. Data is escaped
// the same way the host page escapes it.
func LoadMessage(req RenderRequest) Message {
	payload := map[string]any{
		KeyData:  html.EscapeString(req.Data),
		KeyWidth: req.Width,
	}
	if req.Kind != "" {
		payload[KeyKind] = req.Kind
	}
	return Message{Type: MessageLoad, Payload: payload}
}
