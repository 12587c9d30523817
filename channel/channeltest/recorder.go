// Package channeltest provides an in-memory Channel that records every
// sent message, for driving controllers synchronously in tests.
package channeltest

import (
	"sync"

	"github.com/pithecene-io/framesync/channel"
	"github.com/pithecene-io/framesync/types"
)

// Recorder is a channel.Channel that keeps sent messages in order and lets
// tests deliver incoming messages directly to the registered handlers.
type Recorder struct {
	mu       sync.Mutex
	sent     []types.Message
	handlers map[types.MessageType]channel.Handler
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{handlers: make(map[types.MessageType]channel.Handler)}
}

// Send implements channel.Channel.
func (r *Recorder) Send(t types.MessageType, payload map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, types.NewMessage(t, payload))
}

// OnReceive implements channel.Channel.
func (r *Recorder) OnReceive(t types.MessageType, h channel.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[t] = h
}

// Deliver invokes the handler registered for m and returns its error.
// Messages without a handler are ignored.
func (r *Recorder) Deliver(m types.Message) error {
	r.mu.Lock()
	h := r.handlers[m.Type]
	r.mu.Unlock()
	if h == nil {
		return nil
	}
	return h(m)
}

// Sent returns a copy of all sent messages.
func (r *Recorder) Sent() []types.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.Message, len(r.sent))
	copy(out, r.sent)
	return out
}

// SentOfType returns the sent messages of type t.
func (r *Recorder) SentOfType(t types.MessageType) []types.Message {
	var out []types.Message
	for _, m := range r.Sent() {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

// Types returns the sent message types in order.
func (r *Recorder) Types() []types.MessageType {
	sent := r.Sent()
	out := make([]types.MessageType, len(sent))
	for i, m := range sent {
		out[i] = m.Type
	}
	return out
}

// Reset forgets all sent messages.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}

var _ channel.Channel = (*Recorder)(nil)
