// Package renderer defines the opaque content-drawing boundary used by the
// lifecycle controller, plus reference builders for SVG diagrams, sanitized
// HTML (rendered markdown) and GeoJSON.
//
// A Renderer remembers the last width it was told to use. Callers skip
// redundant renders themselves; Render at an unchanged width is still safe.
package renderer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"sync"

	"github.com/pithecene-io/framesync/types"
)

// Renderer draws content at a width and reports the resulting height.
type Renderer interface {
	// Render lays out and draws at width, returning the content height in
	// whole pixels. Render also records width as the current width.
	Render(ctx context.Context, width int) (int, error)
	// Width returns the last width the renderer was told to use.
	Width() int
	// SetWidth records width without rendering.
	SetWidth(width int)
}

// Builder turns a load request into a configured renderer. When existing is
// non-nil and compatible, implementations update it in place so that
// adapter-local view state (zoom, pan) survives new content.
type Builder interface {
	BuildOrUpdate(req types.RenderRequest, existing Renderer) (Renderer, error)
}

// BuilderFunc adapts a function to the Builder interface.
type BuilderFunc func(req types.RenderRequest, existing Renderer) (Renderer, error)

// BuildOrUpdate implements Builder.
func (f BuilderFunc) BuildOrUpdate(req types.RenderRequest, existing Renderer) (Renderer, error) {
	return f(req, existing)
}

// Announcer is implemented by renderers that have a content-specific status
// to send once their content has been loaded.
type Announcer interface {
	Announce() (types.MessageType, map[string]any)
}

// ErrDetached is returned by renderers used after Close.
var ErrDetached = errors.New("renderer detached")

// FailureKind classifies render failures.
type FailureKind int

const (
	// FailureContent indicates content that cannot be laid out.
	FailureContent FailureKind = iota
	// FailureWidth indicates an unusable width.
	FailureWidth
	// FailureCanceled indicates the render context ended first.
	FailureCanceled
)

func (k FailureKind) String() string {
	switch k {
	case FailureContent:
		return "content"
	case FailureWidth:
		return "width"
	case FailureCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// RenderFailure reports that a renderer could not produce a layout.
type RenderFailure struct {
	Kind   FailureKind
	Engine string
	Width  int
	Err    error
	stack  string
}

// NewRenderFailure creates a failure capturing the current goroutine stack.
func NewRenderFailure(kind FailureKind, engine string, width int, err error) *RenderFailure {
	return &RenderFailure{
		Kind:   kind,
		Engine: engine,
		Width:  width,
		Err:    err,
		stack:  string(debug.Stack()),
	}
}

func (e *RenderFailure) Error() string {
	return fmt.Sprintf("%s render failed at width %d: %v", e.Engine, e.Width, e.Err)
}

func (e *RenderFailure) Unwrap() error {
	return e.Err
}

// StackTrace returns the stack captured when the failure was created.
func (e *RenderFailure) StackTrace() string {
	return e.stack
}

// IsRenderFailure returns true if err is or wraps a *RenderFailure.
func IsRenderFailure(err error) bool {
	var rf *RenderFailure
	return errors.As(err, &rf)
}

// ViewState is adapter-local state that survives content swaps.
type ViewState struct {
	Zoom float64
	PanX float64
	PanY float64
}

// layoutFunc computes the height for width from already-parsed content.
type layoutFunc func(width int) (float64, error)

// frame holds what every reference renderer shares: current width,
// mount state, view state, and the detached flag.
type frame struct {
	engine string

	mu       sync.Mutex
	width    int
	mounted  bool
	detached bool
	view     ViewState
	layout   layoutFunc
	renders  int
}

func newFrame(engine string) *frame {
	return &frame{engine: engine, view: ViewState{Zoom: 1}}
}

// Render implements Renderer.
func (f *frame) Render(ctx context.Context, width int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.detached {
		return 0, ErrDetached
	}
	f.width = width
	if err := ctx.Err(); err != nil {
		return 0, NewRenderFailure(FailureCanceled, f.engine, width, err)
	}
	if width <= 0 {
		return 0, NewRenderFailure(FailureWidth, f.engine, width, fmt.Errorf("width must be positive"))
	}

	h, err := f.layout(width)
	if err != nil {
		return 0, NewRenderFailure(FailureContent, f.engine, width, err)
	}
	f.mounted = true
	f.renders++
	return int(math.Round(h)), nil
}

// Width implements Renderer.
func (f *frame) Width() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.width
}

// SetWidth implements Renderer.
func (f *frame) SetWidth(width int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.width = width
}

// Mounted reports whether at least one render has succeeded.
func (f *frame) Mounted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mounted
}

// Renders returns the number of successful renders.
func (f *frame) Renders() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.renders
}

// View returns the current view state.
func (f *frame) View() ViewState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.view
}

// SetView replaces the view state.
func (f *frame) SetView(v ViewState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.view = v
}

// Close detaches the renderer. Later renders return ErrDetached.
func (f *frame) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detached = true
	f.mounted = false
	return nil
}

func (f *frame) setLayout(fn layoutFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.layout = fn
	f.mounted = false
}
