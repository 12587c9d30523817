// Package host plays the embedding page: it drives an embedded controller
// over a transport, answers its readiness announcements and records every
// status it emits.
package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pithecene-io/framesync/channel"
	"github.com/pithecene-io/framesync/log"
	"github.com/pithecene-io/framesync/types"
)

// Direction of a recorded message.
type Direction string

const (
	// Inbound messages were sent by the controller.
	Inbound Direction = "in"
	// Outbound messages were sent by the host.
	Outbound Direction = "out"
)

// Event is one recorded message.
type Event struct {
	At        time.Time     `json:"at" yaml:"at"`
	Direction Direction     `json:"direction" yaml:"direction"`
	Message   types.Message `json:"-" yaml:"-"`
}

// DriverConfig configures a Driver.
type DriverConfig struct {
	// AutoAck answers ready{ack:true} with readyAck. A real host does this
	// after it has resized and repainted the frame.
	AutoAck bool
	// AckDelay stands in for the host's resize and repaint time.
	AckDelay time.Duration
	// OnEvent observes every recorded event. Called from the reading
	// goroutine for inbound events.
	OnEvent func(Event)
	Logger  *log.Logger
}

// Driver is the host side of one frame.
type Driver struct {
	transport channel.Transport
	config    DriverConfig
	logger    *log.Logger

	mu      sync.Mutex
	events  []Event
	height  int
	width   int
	changed chan struct{}
}

// NewDriver creates a Driver over t.
func NewDriver(t channel.Transport, cfg DriverConfig) *Driver {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}
	return &Driver{
		transport: t,
		config:    cfg,
		logger:    logger,
		changed:   make(chan struct{}),
	}
}

// Load sends new content at the given container width.
func (d *Driver) Load(req types.RenderRequest) error {
	d.mu.Lock()
	d.width = req.Width
	d.mu.Unlock()
	return d.send(types.LoadMessage(req))
}

// Resize reports a new container width.
func (d *Driver) Resize(width int) error {
	d.mu.Lock()
	d.width = width
	d.mu.Unlock()
	return d.send(types.NewMessage(types.MessageContainerSize, map[string]any{types.KeyWidth: width}))
}

// Unload tells the controller the page is going away.
func (d *Driver) Unload() error {
	return d.send(types.Message{Type: types.MessageUnload})
}

// Ack acknowledges a ready announcement.
func (d *Driver) Ack() error {
	return d.send(types.Message{Type: types.MessageReadyAck})
}

// Height returns the frame height last announced by ready or resize.
func (d *Driver) Height() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.height
}

// Width returns the container width last sent to the controller.
func (d *Driver) Width() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.width
}

// Events returns a copy of all recorded events.
func (d *Driver) Events() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Event, len(d.events))
	copy(out, d.events)
	return out
}

// Run reads controller statuses until the transport ends or ctx is done.
// Returns nil on clean end of stream.
func (d *Driver) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		m, err := d.transport.ReadMessage()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Is(err, channel.ErrUndecodable) {
				d.logger.Warn("skipping undecodable status", map[string]any{"error": err.Error()})
				continue
			}
			return fmt.Errorf("host: read: %w", err)
		}
		d.receive(ctx, m)
	}
}

// WaitFor blocks until a status of one of the given types arrives after
// the first `after` events, returning it and its event index.
func (d *Driver) WaitFor(ctx context.Context, after int, want ...types.MessageType) (types.Message, int, error) {
	for {
		d.mu.Lock()
		for i := after; i < len(d.events); i++ {
			e := d.events[i]
			if e.Direction != Inbound {
				continue
			}
			for _, t := range want {
				if e.Message.Type == t {
					d.mu.Unlock()
					return e.Message, i, nil
				}
			}
		}
		changed := d.changed
		d.mu.Unlock()

		select {
		case <-ctx.Done():
			return types.Message{}, 0, fmt.Errorf("host: waiting for %v: %w", want, ctx.Err())
		case <-changed:
		}
	}
}

// Close closes the transport.
func (d *Driver) Close() error {
	return d.transport.Close()
}

func (d *Driver) receive(ctx context.Context, m types.Message) {
	switch m.Type {
	case types.StatusReady, types.StatusResize:
		if h, ok := m.Int(types.KeyHeight); ok {
			d.mu.Lock()
			d.height = h
			d.mu.Unlock()
		}
	}
	d.record(Inbound, m)

	if m.Type == types.StatusReady && m.Bool(types.KeyAck) && d.config.AutoAck {
		if d.config.AckDelay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(d.config.AckDelay):
			}
		}
		if err := d.Ack(); err != nil {
			d.logger.Warn("ack failed", map[string]any{"error": err.Error()})
		}
	}
}

func (d *Driver) send(m types.Message) error {
	if err := d.transport.WriteMessage(m); err != nil {
		return fmt.Errorf("host: send %s: %w", m.Type, err)
	}
	d.record(Outbound, m)
	return nil
}

func (d *Driver) record(dir Direction, m types.Message) {
	e := Event{At: time.Now(), Direction: dir, Message: m}
	d.mu.Lock()
	d.events = append(d.events, e)
	close(d.changed)
	d.changed = make(chan struct{})
	d.mu.Unlock()

	if d.config.OnEvent != nil {
		d.config.OnEvent(e)
	}
}
