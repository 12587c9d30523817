package ipc

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pithecene-io/framesync/types"
)

// encodeFrame encodes a raw payload with length prefix.
func encodeFrame(payload []byte) []byte {
	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)
	return buf
}

func TestFrameEncoder_WritesDecodableFrames(t *testing.T) {
	var buf bytes.Buffer
	enc := NewFrameEncoder(&buf)

	if err := enc.WriteMessage(types.NewMessage(types.StatusReady, types.ReadyPayload(240))); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	if err := enc.WriteMessage(types.NewMessage(types.StatusResize, types.ResizePayload(300))); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	dec := NewFrameDecoder(&buf)

	first, err := dec.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if first.Type != types.StatusReady {
		t.Errorf("expected ready, got %s", first.Type)
	}
	if h, _ := first.Int(types.KeyHeight); h != 240 {
		t.Errorf("expected height 240, got %d", h)
	}
	if !first.Bool(types.KeyAck) {
		t.Error("expected ack=true")
	}

	second, err := dec.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if second.Type != types.StatusResize {
		t.Errorf("expected resize, got %s", second.Type)
	}

	if _, err := dec.ReadMessage(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF after last frame, got %v", err)
	}
}

func TestFrameDecoder_PartialLengthPrefix(t *testing.T) {
	dec := NewFrameDecoder(bytes.NewReader([]byte{0x00, 0x01}))

	_, err := dec.ReadFrame()
	if !IsFatalFrameError(err) {
		t.Fatalf("expected fatal frame error, got %v", err)
	}
	var frameErr *FrameError
	if !errors.As(err, &frameErr) || frameErr.Kind != FrameErrorPartial {
		t.Errorf("expected FrameErrorPartial, got %v", err)
	}
}

func TestFrameDecoder_PartialPayload(t *testing.T) {
	frame := encodeFrame([]byte("abcdef"))
	dec := NewFrameDecoder(bytes.NewReader(frame[:len(frame)-2]))

	_, err := dec.ReadFrame()
	if !IsFatalFrameError(err) {
		t.Fatalf("expected fatal frame error, got %v", err)
	}
}

func TestFrameDecoder_TooLarge(t *testing.T) {
	var prefix [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], MaxPayloadSize+1)
	dec := NewFrameDecoder(bytes.NewReader(prefix[:]))

	_, err := dec.ReadFrame()
	var frameErr *FrameError
	if !errors.As(err, &frameErr) || frameErr.Kind != FrameErrorTooLarge {
		t.Fatalf("expected FrameErrorTooLarge, got %v", err)
	}
	if !frameErr.IsFatal() {
		t.Error("expected oversized frame to be fatal")
	}
}

func TestDecodeMessage_NotFatal(t *testing.T) {
	tests := []struct {
		name    string
		payload func(t *testing.T) []byte
	}{
		{
			name:    "garbage",
			payload: func(*testing.T) []byte { return []byte{0xc1} },
		},
		{
			name: "missing type",
			payload: func(t *testing.T) []byte {
				b, err := msgpack.Marshal(map[string]any{"height": 1})
				if err != nil {
					t.Fatalf("marshal: %v", err)
				}
				return b
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeMessage(tt.payload(t))
			var frameErr *FrameError
			if !errors.As(err, &frameErr) || frameErr.Kind != FrameErrorDecode {
				t.Fatalf("expected FrameErrorDecode, got %v", err)
			}
			if frameErr.IsFatal() {
				t.Error("decode errors must not be fatal")
			}
		})
	}
}

func TestDecodeMessage_LoadEvent(t *testing.T) {
	frame, err := EncodeFrame(types.LoadMessage(types.RenderRequest{Data: "<svg>A</svg>", Width: 300}))
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}

	m, err := DecodeMessage(frame[LengthPrefixSize:])
	if err != nil {
		t.Fatalf("DecodeMessage failed: %v", err)
	}
	req, err := types.ParseRenderRequest(m)
	if err != nil {
		t.Fatalf("ParseRenderRequest failed: %v", err)
	}
	if req.Data != "<svg>A</svg>" || req.Width != 300 {
		t.Errorf("unexpected request %+v", req)
	}
}
