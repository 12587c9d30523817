package types //nolint:revive // types is a valid package name

import (
	"errors"
	"testing"
)

func TestParseRenderRequest_UnescapesData(t *testing.T) {
	m := Message{Type: MessageLoad, Payload: map[string]any{
		KeyData:  "&lt;svg&gt;A&lt;/svg&gt;",
		KeyWidth: float64(300),
	}}

	req, err := ParseRenderRequest(m)
	if err != nil {
		t.Fatalf("ParseRenderRequest failed: %v", err)
	}
	if req.Data != "<svg>A</svg>" {
		t.Errorf("expected unescaped data, got %q", req.Data)
	}
	if req.Width != 300 {
		t.Errorf("expected width 300, got %d", req.Width)
	}
}

func TestParseRenderRequest_Malformed(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"wrong type", Message{Type: MessageReadyAck}},
		{"missing data", Message{Type: MessageLoad, Payload: map[string]any{KeyWidth: 10}}},
		{"missing width", Message{Type: MessageLoad, Payload: map[string]any{KeyData: "x"}}},
		{"string width", Message{Type: MessageLoad, Payload: map[string]any{KeyData: "x", KeyWidth: "10"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRenderRequest(tt.msg)
			if !errors.Is(err, ErrMalformedLoad) {
				t.Errorf("expected ErrMalformedLoad, got %v", err)
			}
		})
	}
}

func TestLoadMessage_RoundTrip(t *testing.T) {
	want := RenderRequest{Data: `<svg viewBox="0 0 10 5"></svg>`, Width: 450, Kind: "svg"}

	got, err := ParseRenderRequest(LoadMessage(want))
	if err != nil {
		t.Fatalf("ParseRenderRequest failed: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}
