package renderer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pithecene-io/framesync/types"
)

// Intrinsic size browsers give an SVG with no usable dimensions.
const (
	defaultSVGWidth  = 300
	defaultSVGHeight = 150
)

// SVG renders a diagram scaled to the container width, keeping its aspect ratio.
type SVG struct {
	*frame
	aspect float64
}

// SVGBuilder builds SVG renderers.
type SVGBuilder struct{}

// BuildOrUpdate implements Builder.
func (SVGBuilder) BuildOrUpdate(req types.RenderRequest, existing Renderer) (Renderer, error) {
	w, h, err := svgSize(req.Data)
	if err != nil {
		return nil, err
	}

	r, ok := existing.(*SVG)
	if !ok {
		r = &SVG{frame: newFrame("svg")}
	}
	r.aspect = h / w
	aspect := r.aspect
	r.setLayout(func(width int) (float64, error) {
		return float64(width) * aspect, nil
	})
	r.SetWidth(req.Width)
	return r, nil
}

// svgSize reads the root svg element's viewBox, falling back to its
// width/height attributes and then to the default intrinsic size.
func svgSize(data string) (float64, float64, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("svg: parse: %w", err)
	}
	root := doc.Find("svg").First()
	if root.Length() == 0 {
		return 0, 0, errors.New("svg: no <svg> element")
	}

	if vb, ok := root.Attr("viewBox"); ok {
		if w, h, ok := parseViewBox(vb); ok {
			return w, h, nil
		}
	}
	// The HTML parser lower-cases attribute names.
	if vb, ok := root.Attr("viewbox"); ok {
		if w, h, ok := parseViewBox(vb); ok {
			return w, h, nil
		}
	}

	w, wok := parseLength(root.AttrOr("width", ""))
	h, hok := parseLength(root.AttrOr("height", ""))
	switch {
	case wok && hok:
		return w, h, nil
	case wok:
		return w, w * defaultSVGHeight / defaultSVGWidth, nil
	case hok:
		return h * defaultSVGWidth / defaultSVGHeight, h, nil
	default:
		return defaultSVGWidth, defaultSVGHeight, nil
	}
}

func parseViewBox(s string) (float64, float64, bool) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' || r == '\n' })
	if len(fields) != 4 {
		return 0, 0, false
	}
	w, err1 := strconv.ParseFloat(fields[2], 64)
	h, err2 := strconv.ParseFloat(fields[3], 64)
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}

func parseLength(s string) (float64, bool) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "px")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
