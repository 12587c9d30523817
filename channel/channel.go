// Package channel implements the two-way typed message bus between the
// embedded controller and its host.
//
// When a parent transport is attached, Send writes to the parent. Without
// one the bus is standalone: Send loops the message back into the bus on the
// next loop turn, so the same controller logic runs embedded or not.
//
// Delivery order matches arrival order. Handlers run on the event loop, one
// at a time, with no batching.
package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/pithecene-io/framesync/iox"
	"github.com/pithecene-io/framesync/ipc"
	"github.com/pithecene-io/framesync/log"
	"github.com/pithecene-io/framesync/loop"
	"github.com/pithecene-io/framesync/metrics"
	"github.com/pithecene-io/framesync/types"
)

// Handler handles one incoming message. A returned error is an uncaught
// fault and goes to the bus's unhandled hook.
type Handler func(types.Message) error

// Channel is the send/receive contract the controller depends on.
type Channel interface {
	// Send is fire-and-forget. It never fails from the caller's view.
	Send(t types.MessageType, payload map[string]any)
	// OnReceive registers the handler for t, replacing any previous one.
	OnReceive(t types.MessageType, h Handler)
}

// Transport carries messages to and from the parent.
type Transport interface {
	WriteMessage(types.Message) error
	ReadMessage() (types.Message, error)
	Close() error
}

// ErrUndecodable wraps transport read errors for a single bad message.
// The stream stays usable after it.
var ErrUndecodable = errors.New("undecodable message")

// Bus is the loop-confined Channel implementation.
type Bus struct {
	loop   *loop.Loop
	parent Transport
	logger *log.Logger
	// metrics is set before Listen starts and read only by Listen.
	metrics *metrics.Collector

	mu        sync.Mutex
	handlers  map[types.MessageType]Handler
	unhandled func(types.Message, error)
}

// NewBus creates a bus. A nil parent makes the bus standalone (loopback).
func NewBus(l *loop.Loop, parent Transport, logger *log.Logger) *Bus {
	if logger == nil {
		logger = log.Nop()
	}
	return &Bus{
		loop:     l,
		parent:   parent,
		logger:   logger,
		handlers: make(map[types.MessageType]Handler),
	}
}

// SetMetrics attaches a collector counting undecodable messages.
// Must be called before Listen.
func (b *Bus) SetMetrics(c *metrics.Collector) {
	b.metrics = c
}

// Embedded reports whether a parent transport is attached.
func (b *Bus) Embedded() bool {
	return b.parent != nil
}

// Send implements Channel.
func (b *Bus) Send(t types.MessageType, payload map[string]any) {
	m := types.NewMessage(t, payload)

	if b.parent == nil {
		if !b.loop.Post(func() { b.Dispatch(m) }) {
			b.logger.Debug("loopback send dropped, loop closed", map[string]any{"type": string(t)})
		}
		return
	}

	if err := b.parent.WriteMessage(m); err != nil {
		b.logger.Debug("send failed", map[string]any{"type": string(t), "error": err.Error()})
	}
}

// OnReceive implements Channel.
func (b *Bus) OnReceive(t types.MessageType, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if h == nil {
		delete(b.handlers, t)
		return
	}
	b.handlers[t] = h
}

// OnUnhandled sets the hook receiving handler errors.
func (b *Bus) OnUnhandled(fn func(types.Message, error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unhandled = fn
}

// Dispatch runs the handler registered for m. Must be called on the loop.
func (b *Bus) Dispatch(m types.Message) {
	b.mu.Lock()
	h := b.handlers[m.Type]
	unhandled := b.unhandled
	b.mu.Unlock()

	if h == nil {
		b.logger.Debug("no handler for message", map[string]any{"type": string(m.Type)})
		return
	}

	if err := h(m); err != nil {
		if unhandled == nil {
			b.logger.Error("unhandled message error", map[string]any{"type": string(m.Type), "error": err.Error()})
			return
		}
		unhandled(m, err)
	}
}

// Listen reads messages from the parent and posts their dispatch to the
// loop until the transport ends, a fatal read error occurs, or ctx is done.
// A standalone bus has nothing to read and blocks until ctx is done.
//
// Returns nil on clean end of stream.
func (b *Bus) Listen(ctx context.Context) error {
	if b.parent == nil {
		<-ctx.Done()
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		m, err := b.parent.ReadMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Is(err, ErrUndecodable) {
				b.metrics.IncInvalidMessage()
				b.logger.Warn("skipping undecodable message", map[string]any{"error": err.Error()})
				b.loop.Post(func() {
					b.Send(types.StatusInvalidError, types.ErrorPayload(err.Error()))
				})
				continue
			}
			return fmt.Errorf("channel: read: %w", err)
		}

		if !b.loop.Post(func() { b.Dispatch(m) }) {
			return nil
		}
	}
}

// Close closes the parent transport, if any.
func (b *Bus) Close() error {
	if b.parent == nil {
		return nil
	}
	return b.parent.Close()
}

// StreamTransport carries ipc frames over a byte stream pair.
type StreamTransport struct {
	dec     *ipc.FrameDecoder
	enc     *ipc.FrameEncoder
	closers []io.Closer
}

// NewStreamTransport reads frames from r and writes frames to w. Any of r
// and w that implement io.Closer are closed by Close.
func NewStreamTransport(r io.Reader, w io.Writer) *StreamTransport {
	t := &StreamTransport{
		dec: ipc.NewFrameDecoder(r),
		enc: ipc.NewFrameEncoder(w),
	}
	if c, ok := w.(io.Closer); ok {
		t.closers = append(t.closers, c)
	}
	if c, ok := r.(io.Closer); ok {
		t.closers = append(t.closers, c)
	}
	return t
}

// WriteMessage implements Transport.
func (t *StreamTransport) WriteMessage(m types.Message) error {
	return t.enc.WriteMessage(m)
}

// ReadMessage implements Transport.
func (t *StreamTransport) ReadMessage() (types.Message, error) {
	m, err := t.dec.ReadMessage()
	if err != nil {
		var frameErr *ipc.FrameError
		if errors.As(err, &frameErr) && frameErr.Kind == ipc.FrameErrorDecode {
			return types.Message{}, fmt.Errorf("%w: %v", ErrUndecodable, err)
		}
		return types.Message{}, err
	}
	return m, nil
}

// Close implements Transport.
func (t *StreamTransport) Close() error {
	return iox.CloseAll(t.closers...)
}

// Pipe returns two connected in-memory transports. Messages written to one
// are read from the other.
func Pipe() (*StreamTransport, *StreamTransport) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	return NewStreamTransport(ar, aw), NewStreamTransport(br, bw)
}

var (
	_ Channel   = (*Bus)(nil)
	_ Transport = (*StreamTransport)(nil)
)
