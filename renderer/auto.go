package renderer

import (
	"fmt"
	"strings"

	"github.com/pithecene-io/framesync/types"
)

// Content kinds understood by Auto.
const (
	KindSVG  = "svg"
	KindHTML = "html"
	KindGeo  = "geo"
)

// Auto picks a builder from the request's kind, or sniffs the content when
// no kind is given. It reuses the existing renderer when the chosen builder
// accepts it.
type Auto struct {
	builders map[string]Builder
}

// NewAuto returns an Auto builder with the reference builders registered.
func NewAuto() *Auto {
	return &Auto{builders: map[string]Builder{
		KindSVG:  SVGBuilder{},
		KindHTML: NewHTMLBuilder(),
		KindGeo:  GeoBuilder{},
	}}
}

// Register adds or replaces the builder for kind.
func (a *Auto) Register(kind string, b Builder) {
	a.builders[kind] = b
}

// ForKind returns the builder for kind.
func (a *Auto) ForKind(kind string) (Builder, error) {
	b, ok := a.builders[kind]
	if !ok {
		return nil, fmt.Errorf("renderer: unknown kind %q", kind)
	}
	return b, nil
}

// BuildOrUpdate implements Builder.
func (a *Auto) BuildOrUpdate(req types.RenderRequest, existing Renderer) (Renderer, error) {
	kind := req.Kind
	if kind == "" {
		kind = Sniff(req.Data)
	}
	b, err := a.ForKind(kind)
	if err != nil {
		return nil, err
	}
	return b.BuildOrUpdate(req, existing)
}

// Sniff guesses the content kind from its leading bytes.
func Sniff(data string) string {
	trimmed := strings.TrimSpace(data)
	switch {
	case strings.HasPrefix(trimmed, "{"):
		return KindGeo
	case strings.HasPrefix(trimmed, "<svg"), strings.HasPrefix(trimmed, "<?xml"):
		return KindSVG
	default:
		return KindHTML
	}
}
