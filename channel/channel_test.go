package channel

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pithecene-io/framesync/ipc"
	"github.com/pithecene-io/framesync/loop"
	"github.com/pithecene-io/framesync/types"
)

func TestBus_StandaloneLoopsBack(t *testing.T) {
	l := loop.New(8)
	bus := NewBus(l, nil, nil)

	var got []int
	bus.OnReceive(types.StatusReady, func(m types.Message) error {
		h, _ := m.Int(types.KeyHeight)
		got = append(got, h)
		return nil
	})

	if bus.Embedded() {
		t.Fatal("bus without parent must be standalone")
	}

	bus.Send(types.StatusReady, types.ReadyPayload(10))
	bus.Send(types.StatusReady, types.ReadyPayload(20))
	if len(got) != 0 {
		t.Fatal("loopback delivery must wait for the next loop turn")
	}

	l.RunPending()
	if len(got) != 2 || got[0] != 10 || got[1] != 20 {
		t.Errorf("expected [10 20], got %v", got)
	}
}

func TestBus_OnReceiveReplacesHandler(t *testing.T) {
	l := loop.New(8)
	bus := NewBus(l, nil, nil)

	var first, second int
	bus.OnReceive(types.MessageReadyAck, func(types.Message) error { first++; return nil })
	bus.OnReceive(types.MessageReadyAck, func(types.Message) error { second++; return nil })

	bus.Dispatch(types.Message{Type: types.MessageReadyAck})
	if first != 0 || second != 1 {
		t.Errorf("expected only the latest handler to run, got first=%d second=%d", first, second)
	}
}

func TestBus_HandlerErrorGoesToUnhandled(t *testing.T) {
	bus := NewBus(loop.New(1), nil, nil)
	boom := errors.New("boom")
	bus.OnReceive(types.MessageLoad, func(types.Message) error { return boom })

	var gotErr error
	var gotType types.MessageType
	bus.OnUnhandled(func(m types.Message, err error) {
		gotType = m.Type
		gotErr = err
	})

	bus.Dispatch(types.Message{Type: types.MessageLoad})
	if !errors.Is(gotErr, boom) || gotType != types.MessageLoad {
		t.Errorf("expected unhandled(load, boom), got (%s, %v)", gotType, gotErr)
	}
}

func TestBus_EmbeddedSendWritesParent(t *testing.T) {
	local, remote := Pipe()
	defer local.Close()
	defer remote.Close()

	bus := NewBus(loop.New(1), local, nil)
	if !bus.Embedded() {
		t.Fatal("bus with parent must be embedded")
	}

	go bus.Send(types.StatusResize, types.ResizePayload(77))

	m, err := remote.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if m.Type != types.StatusResize {
		t.Errorf("expected resize, got %s", m.Type)
	}
	if h, _ := m.Int(types.KeyHeight); h != 77 {
		t.Errorf("expected height 77, got %d", h)
	}
}

func TestBus_ListenDispatchesInArrivalOrder(t *testing.T) {
	local, remote := Pipe()
	l := loop.New(16)
	bus := NewBus(l, local, nil)

	var got []types.MessageType
	for _, mt := range []types.MessageType{types.MessageLoad, types.MessageReadyAck, types.MessageContainerSize} {
		bus.OnReceive(mt, func(m types.Message) error {
			got = append(got, m.Type)
			return nil
		})
	}

	errCh := make(chan error, 1)
	go func() { errCh <- bus.Listen(t.Context()) }()

	for _, mt := range []types.MessageType{types.MessageLoad, types.MessageReadyAck, types.MessageContainerSize} {
		if err := remote.WriteMessage(types.Message{Type: mt}); err != nil {
			t.Fatalf("WriteMessage failed: %v", err)
		}
	}
	_ = remote.Close()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Listen returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Listen did not return at end of stream")
	}

	l.RunPending()
	want := []types.MessageType{types.MessageLoad, types.MessageReadyAck, types.MessageContainerSize}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

// rawPipe is Pipe with direct access to the writer feeding local, so tests
// can inject bytes that are not valid frames.
func rawPipe() (local *StreamTransport, raw io.Writer, remote *StreamTransport) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	return NewStreamTransport(ar, aw), bw, NewStreamTransport(br, bw)
}

func TestBus_ListenSkipsUndecodable(t *testing.T) {
	local, raw, remote := rawPipe()
	l := loop.New(16)
	bus := NewBus(l, local, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- bus.Listen(t.Context()) }()

	// A well-formed frame whose payload is not a message.
	frame := []byte{0, 0, 0, 1, 0xc1}
	go func() {
		_, _ = raw.Write(frame)
		_ = remote.WriteMessage(types.Message{Type: types.MessageReadyAck})
	}()

	// Loop tasks: one invalidError send, one dispatch.
	invalid := make(chan types.Message, 1)
	go func() {
		m, err := remote.ReadMessage()
		if err == nil {
			invalid <- m
		}
	}()

	deadline := time.After(5 * time.Second)
	for ran := 0; ran < 2; {
		ran += l.RunPending()
		select {
		case <-deadline:
			t.Fatal("timed out waiting for loop tasks")
		case <-time.After(time.Millisecond):
		}
	}

	select {
	case m := <-invalid:
		if m.Type != types.StatusInvalidError {
			t.Errorf("expected invalidError, got %s", m.Type)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no invalidError status sent")
	}

	_ = remote.Close()
	<-errCh
}

func TestBus_ListenFatalFrame(t *testing.T) {
	local, raw, remote := rawPipe()
	defer func() { _ = remote.Close() }()
	bus := NewBus(loop.New(1), local, nil)

	go func() {
		_, _ = raw.Write([]byte{0xff, 0xff, 0xff, 0xff})
	}()

	err := bus.Listen(t.Context())
	if !ipc.IsFatalFrameError(err) {
		t.Errorf("expected fatal frame error, got %v", err)
	}
}

func TestBus_StandaloneListenBlocksUntilDone(t *testing.T) {
	bus := NewBus(loop.New(1), nil, nil)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if err := bus.Listen(ctx); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestWebSocketTransport_RoundTrip(t *testing.T) {
	serverSide := make(chan *WebSocketTransport, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tr, err := UpgradeWebSocket(w, r)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		serverSide <- tr
	}))
	defer ts.Close()

	client, err := DialWebSocket(t.Context(), "ws"+strings.TrimPrefix(ts.URL, "http"))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	var server *WebSocketTransport
	select {
	case server = <-serverSide:
	case <-time.After(5 * time.Second):
		t.Fatal("server never upgraded")
	}

	if err := client.WriteMessage(types.NewMessage(types.StatusReady, types.ReadyPayload(320))); err != nil {
		t.Fatalf("write: %v", err)
	}
	m, err := server.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if m.Type != types.StatusReady {
		t.Errorf("expected ready, got %s", m.Type)
	}
	if h, ok := m.Int(types.KeyHeight); !ok || h != 320 {
		t.Errorf("expected height 320, got %d", h)
	}
	if !m.Bool(types.KeyAck) {
		t.Error("expected ack=true")
	}

	_ = server.Close()
}
