// Package renderertest provides a scriptable Renderer and Builder for tests.
package renderertest

import (
	"context"
	"sync"

	"github.com/pithecene-io/framesync/renderer"
	"github.com/pithecene-io/framesync/types"
)

// Fake is a Renderer that records every render width. Height defaults to
// half the width unless HeightFunc is set; Fail makes every render fail.
type Fake struct {
	mu         sync.Mutex
	width      int
	calls      []int
	closed     bool
	Data       string
	HeightFunc func(width int) int
	Fail       error
	// Zoom stands in for adapter-local view state that must survive reuse.
	Zoom float64
}

// Render implements renderer.Renderer.
func (f *Fake) Render(_ context.Context, width int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, renderer.ErrDetached
	}
	f.calls = append(f.calls, width)
	f.width = width
	if f.Fail != nil {
		return 0, renderer.NewRenderFailure(renderer.FailureContent, "fake", width, f.Fail)
	}
	if f.HeightFunc != nil {
		return f.HeightFunc(width), nil
	}
	return width / 2, nil
}

// Width implements renderer.Renderer.
func (f *Fake) Width() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.width
}

// SetWidth implements renderer.Renderer.
func (f *Fake) SetWidth(width int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.width = width
}

// Close detaches the renderer.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Calls returns the widths passed to Render, in order.
func (f *Fake) Calls() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.calls))
	copy(out, f.calls)
	return out
}

// Builder builds Fake renderers and reuses an existing Fake when given one.
type Builder struct {
	mu    sync.Mutex
	built []*Fake
	// Fail is applied to every renderer the builder returns.
	Fail error
	// BuildErr makes BuildOrUpdate itself fail.
	BuildErr error
}

// BuildOrUpdate implements renderer.Builder.
func (b *Builder) BuildOrUpdate(req types.RenderRequest, existing renderer.Renderer) (renderer.Renderer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.BuildErr != nil {
		return nil, b.BuildErr
	}
	f, ok := existing.(*Fake)
	if !ok {
		f = &Fake{}
		b.built = append(b.built, f)
	}
	f.mu.Lock()
	f.Data = req.Data
	f.width = req.Width
	f.Fail = b.Fail
	f.mu.Unlock()
	return f, nil
}

// Built returns every renderer constructed (not reused) so far.
func (b *Builder) Built() []*Fake {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Fake, len(b.built))
	copy(out, b.built)
	return out
}

var (
	_ renderer.Renderer = (*Fake)(nil)
	_ renderer.Builder  = (*Builder)(nil)
)
