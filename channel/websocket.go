package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pithecene-io/framesync/types"
)

// writeTimeout bounds a single websocket write.
const writeTimeout = 10 * time.Second

// WebSocketTransport carries messages as JSON text frames.
type WebSocketTransport struct {
	conn *websocket.Conn
	// gorilla connections allow one concurrent writer.
	wmu sync.Mutex
}

// NewWebSocketTransport wraps an established connection.
func NewWebSocketTransport(conn *websocket.Conn) *WebSocketTransport {
	return &WebSocketTransport{conn: conn}
}

// DialWebSocket connects to a host websocket endpoint.
func DialWebSocket(ctx context.Context, url string) (*WebSocketTransport, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("channel: dial %s: %w", url, err)
	}
	return NewWebSocketTransport(conn), nil
}

var upgrader = websocket.Upgrader{
	// The host page and the rendering frame live on different origins.
	CheckOrigin: func(*http.Request) bool { return true },
}

// UpgradeWebSocket upgrades an HTTP request from an embedded controller.
func UpgradeWebSocket(w http.ResponseWriter, r *http.Request) (*WebSocketTransport, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("channel: upgrade: %w", err)
	}
	return NewWebSocketTransport(conn), nil
}

// WriteMessage implements Transport.
func (t *WebSocketTransport) WriteMessage(m types.Message) error {
	t.wmu.Lock()
	defer t.wmu.Unlock()

	_ = t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := t.conn.WriteJSON(m.Fields()); err != nil {
		return fmt.Errorf("channel: websocket write: %w", err)
	}
	return nil
}

// ReadMessage implements Transport. A normal close is reported as io.EOF.
func (t *WebSocketTransport) ReadMessage() (types.Message, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return types.Message{}, io.EOF
		}
		return types.Message{}, err
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return types.Message{}, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	m, err := types.FromFields(fields)
	if err != nil {
		return types.Message{}, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	return m, nil
}

// Close sends a close frame and closes the connection.
func (t *WebSocketTransport) Close() error {
	t.wmu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	werr := t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	t.wmu.Unlock()

	cerr := t.conn.Close()
	if werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
		return errors.Join(werr, cerr)
	}
	return cerr
}

var _ Transport = (*WebSocketTransport)(nil)
